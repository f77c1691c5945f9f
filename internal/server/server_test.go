package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeRuns struct {
	asOf     time.Time
	outcomes []domain.Outcome
	err      error
}

func (f *fakeRuns) RunOnce(_ context.Context, asOf time.Time) ([]domain.Outcome, error) {
	f.asOf = asOf
	return f.outcomes, f.err
}

func newTestServer(t *testing.T, runs RunTrigger) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := &Server{db: db, runs: runs, log: zap.NewNop()}
	s.engine = s.newEngine()
	return s
}

func postRun(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/internal/runs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeRuns{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTriggerRunSummarizesOutcomes(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	runs := &fakeRuns{outcomes: []domain.Outcome{
		{ProfileID: p1, Kind: domain.OutcomeGenerated, InvoiceID: snowflake.ID(77), OccurrenceIndex: 3},
		{ProfileID: p2, Kind: domain.OutcomeFailed, Err: domain.ErrConflict},
	}}
	s := newTestServer(t, runs)

	rec := postRun(t, s, `{"as_of":"2026-01-31"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, runs.asOf.Equal(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)))

	var resp triggerRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Counts["generated"])
	assert.Equal(t, 1, resp.Counts["failed"])
	assert.Equal(t, "77", resp.Outcomes[0].InvoiceID)
	assert.Equal(t, 3, resp.Outcomes[0].OccurrenceIndex)
	assert.Equal(t, "profile_concurrently_modified", resp.Outcomes[1].Error)
}

func TestTriggerRunRejectsBadDate(t *testing.T) {
	s := newTestServer(t, &fakeRuns{})

	for _, body := range []string{`{}`, `{"as_of":"31/01/2026"}`, `not json`} {
		rec := postRun(t, s, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "validation_error")
	}
}

func TestTriggerRunEnumerationFailure(t *testing.T) {
	s := newTestServer(t, &fakeRuns{err: errors.New("db down")})

	rec := postRun(t, s, `{"as_of":"2026-01-31"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
