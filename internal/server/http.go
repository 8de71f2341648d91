package server

import (
	"errors"
	"net/http"
	"sync"

	"github.com/DominicWuest/verscepter/pkg/verscepter"
	"github.com/gin-gonic/gin"
)

type httpServer struct {
	session *verscepter.Session

	mu          sync.Mutex
	candidates  map[string]verscepter.Candidate
	drained     chan struct{}
	drainedOnce sync.Once

	router *gin.Engine
}

func newHttpServer(session *verscepter.Session) *httpServer {
	h := &httpServer{
		session: session,

		candidates: make(map[string]verscepter.Candidate),
		drained:    make(chan struct{}),
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/candidate", h.getCandidate)
	router.POST("/isGood/:candidateId", h.postIsGood)
	router.POST("/isBad/:candidateId", h.postIsBad)
	router.DELETE("/session", h.deleteSession)

	h.router = router
	return h
}

func (h *httpServer) Handler() http.Handler {
	return h.router
}

func (h *httpServer) Drained() <-chan struct{} {
	return h.drained
}

type versionResponse struct {
	Version string `json:"version"`
	Source  string `json:"source"`
	State   string `json:"state"`
}

func toVersionResponse(v verscepter.VersionRecord) versionResponse {
	return versionResponse{
		Version: v.Version,
		Source:  v.Source.String(),
		State:   v.State.String(),
	}
}

type candidateResponse struct {
	CandidateID string `json:"candidateId"`
	SessionID   string `json:"sessionId"`

	Step      int `json:"step"`
	StepsLeft int `json:"stepsLeft"`

	Version versionResponse `json:"version"`
}

type boundaryResponse struct {
	LastGood versionResponse `json:"lastGood"`
	FirstBad versionResponse `json:"firstBad"`

	LastGoodIndex int `json:"lastGoodIndex"`
	FirstBadIndex int `json:"firstBadIndex"`
}

func (h *httpServer) getCandidate(c *gin.Context) {
	candidate, boundary, err := h.session.Next(c.Request.Context())
	if errors.Is(err, verscepter.ErrSessionClosed) {
		c.AbortWithStatus(http.StatusGone)
		return
	} else if err != nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	if boundary != nil {
		c.JSON(http.StatusOK, boundaryResponse{
			LastGood: toVersionResponse(boundary.LastGood),
			FirstBad: toVersionResponse(boundary.FirstBad),

			LastGoodIndex: boundary.LastGoodIndex,
			FirstBadIndex: boundary.FirstBadIndex,
		})
		h.drainedOnce.Do(func() { close(h.drained) })
		return
	}

	h.mu.Lock()
	h.candidates[candidate.ID] = *candidate
	h.mu.Unlock()

	c.JSON(http.StatusOK, candidateResponse{
		CandidateID: candidate.ID,
		SessionID:   candidate.SessionID,

		Step:      candidate.Step,
		StepsLeft: candidate.StepsLeft,

		Version: toVersionResponse(candidate.Version),
	})
}

// takeCandidate removes the candidate with the passed id and returns it
func (h *httpServer) takeCandidate(id string) (verscepter.Candidate, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	candidate, found := h.candidates[id]
	delete(h.candidates, id)
	return candidate, found
}

func (h *httpServer) postIsGood(c *gin.Context) {
	if candidate, found := h.takeCandidate(c.Param("candidateId")); found {
		candidate.IsGood()
		c.AbortWithStatus(http.StatusOK)
	} else {
		c.AbortWithStatus(http.StatusNotFound)
	}
}

func (h *httpServer) postIsBad(c *gin.Context) {
	if candidate, found := h.takeCandidate(c.Param("candidateId")); found {
		candidate.IsBad()
		c.AbortWithStatus(http.StatusOK)
	} else {
		c.AbortWithStatus(http.StatusNotFound)
	}
}

func (h *httpServer) deleteSession(c *gin.Context) {
	h.session.Cancel()
	h.drainedOnce.Do(func() { close(h.drained) })
	c.AbortWithStatus(http.StatusOK)
}
