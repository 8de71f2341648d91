package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/DominicWuest/verscepter/pkg/verscepter"
)

type ServerType int

const (
	HTTP ServerType = iota
)

type Server interface {
	// Handler returns the handler serving the API of the passed session
	Handler() http.Handler
	// Drained returns a channel which is closed once the session's boundary was sent to a client or the session was cancelled by one
	Drained() <-chan struct{}
}

// NewServer creates a server of the passed type for the passed session
func NewServer(serverType ServerType, session *verscepter.Session) (Server, error) {
	switch serverType {
	case HTTP:
		return newHttpServer(session), nil
	}
	return nil, fmt.Errorf("%d is not a valid server type", serverType)
}

// Serve creates a server of the passed type for the passed session and serves it on localhost at the passed port until the session ends
func Serve(serverType ServerType, port int, session *verscepter.Session) error {
	server, err := NewServer(serverType, session)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("localhost:%d", port),
		Handler: server.Handler(),
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-session.Done():
		// Let the boundary get picked up by a client
		if !session.Cancelled() {
			<-server.Drained()
		}
		return srv.Shutdown(context.Background())
	}
}
