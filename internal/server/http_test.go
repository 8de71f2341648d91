package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DominicWuest/verscepter/pkg/verscepter"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func generateVersionRange(n int) []verscepter.VersionRecord {
	versions := make([]verscepter.VersionRecord, n)
	for i := range versions {
		versions[i] = verscepter.VersionRecord{Version: fmt.Sprintf("%d.0.0", i+1)}
	}
	return versions
}

func newTestServer(t *testing.T, versions []verscepter.VersionRecord) (*verscepter.Session, Server) {
	session, err := verscepter.StartSession(versions, nil)
	require.NoError(t, err)

	srv, err := NewServer(HTTP, session)
	require.NoError(t, err)
	return session, srv
}

func do(srv Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHttpServerBisection(t *testing.T) {
	versions := generateVersionRange(8)
	firstBad := 6
	session, srv := newTestServer(t, versions)

	for i := 0; ; i++ {
		require.Less(t, i, 10, "Bisection did not terminate")

		w := do(srv, http.MethodGet, "/candidate")
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

		if _, done := body["firstBad"]; done {
			var boundary boundaryResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &boundary))
			assert.Equal(t, versions[firstBad-1].Version, boundary.LastGood.Version)
			assert.Equal(t, versions[firstBad].Version, boundary.FirstBad.Version)
			assert.Equal(t, firstBad, boundary.FirstBadIndex)
			break
		}

		var candidate candidateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &candidate))
		assert.Equal(t, session.ID, candidate.SessionID)
		assert.Equal(t, i+1, candidate.Step)

		judgment := "/isGood/"
		if verscepter.IndexOf(versions, candidate.Version.Version) >= firstBad {
			judgment = "/isBad/"
		}
		assert.Equal(t, http.StatusOK, do(srv, http.MethodPost, judgment+candidate.CandidateID).Code)
		// A candidate can only be rated once
		assert.Equal(t, http.StatusNotFound, do(srv, http.MethodPost, judgment+candidate.CandidateID).Code)
	}

	<-session.Done()
	<-srv.Drained()
	assert.Equal(t, http.StatusGone, do(srv, http.MethodGet, "/candidate").Code)
}

func TestHttpServerUnknownCandidate(t *testing.T) {
	session, srv := newTestServer(t, generateVersionRange(4))
	defer session.Cancel()

	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodPost, "/isGood/unknown").Code)
	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodPost, "/isBad/unknown").Code)
}

func TestHttpServerCancel(t *testing.T) {
	session, srv := newTestServer(t, generateVersionRange(4))

	assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/candidate").Code)
	assert.Equal(t, http.StatusOK, do(srv, http.MethodDelete, "/session").Code)

	<-session.Done()
	<-srv.Drained()
	assert.True(t, session.Cancelled())
	assert.Equal(t, http.StatusGone, do(srv, http.MethodGet, "/candidate").Code)
}

func TestNewServerInvalidType(t *testing.T) {
	session, err := verscepter.StartSession(generateVersionRange(2), nil)
	require.NoError(t, err)
	defer session.Cancel()

	_, err = NewServer(ServerType(42), session)
	assert.Error(t, err)
}
