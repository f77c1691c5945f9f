package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/recurring/internal/observability/context"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"go.uber.org/zap"
)

type triggerRunRequest struct {
	AsOf string `json:"as_of" binding:"required,datetime=2006-01-02"`
}

type outcomeResponse struct {
	ProfileID       string `json:"profile_id"`
	Outcome         string `json:"outcome"`
	InvoiceID       string `json:"invoice_id,omitempty"`
	OccurrenceIndex int    `json:"occurrence_index,omitempty"`
	Error           string `json:"error,omitempty"`
	Degraded        bool   `json:"degraded,omitempty"`
}

type triggerRunResponse struct {
	AsOf     string            `json:"as_of"`
	Total    int               `json:"total"`
	Counts   map[string]int    `json:"counts"`
	Outcomes []outcomeResponse `json:"outcomes"`
}

// TriggerRun runs generation synchronously for the requested as-of date.
func (s *Server) TriggerRun(c *gin.Context) {
	var req triggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("as_of", "invalid_as_of", "as_of must be a date formatted as YYYY-MM-DD"))
		return
	}
	asOf, err := time.Parse(time.DateOnly, req.AsOf)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), "operator", "http")
	outcomes, err := s.runs.RunOnce(ctx, asOf)
	if err != nil {
		s.log.Warn("run.trigger_failed", zap.String("as_of", req.AsOf), zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	c.JSON(http.StatusOK, summarize(req.AsOf, outcomes))
}

func summarize(asOf string, outcomes []domain.Outcome) triggerRunResponse {
	resp := triggerRunResponse{
		AsOf:     asOf,
		Total:    len(outcomes),
		Counts:   map[string]int{},
		Outcomes: make([]outcomeResponse, 0, len(outcomes)),
	}
	for _, out := range outcomes {
		resp.Counts[string(out.Kind)]++
		item := outcomeResponse{
			ProfileID:       out.ProfileID.String(),
			Outcome:         string(out.Kind),
			OccurrenceIndex: out.OccurrenceIndex,
			Degraded:        out.Degraded,
		}
		if out.InvoiceID != 0 {
			item.InvoiceID = out.InvoiceID.String()
		}
		if out.Err != nil {
			item.Error = out.Err.Error()
		}
		resp.Outcomes = append(resp.Outcomes, item)
	}
	return resp
}
