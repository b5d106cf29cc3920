package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/profile"
)

type searchRequest struct {
	Profile *profile.Profile `json:"profile" binding:"required"`
}

type evaluateRequest struct {
	Profile *profile.Profile `json:"profile" binding:"required"`
	JobIDs  []string         `json:"job_ids"`
}

type evaluateResponse struct {
	Evaluation *model.Evaluation `json:"evaluation"`
	Saved      bool              `json:"saved"`
}

type enrichmentRequest struct {
	BatchSize int `json:"batch_size" binding:"gte=0"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.svc.Health(c.Request.Context())
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	res, err := s.svc.Search(c.Request.Context(), req.Profile)
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	eval, err := s.svc.Evaluate(c.Request.Context(), req.Profile, req.JobIDs)
	switch {
	case err != nil && eval != nil:
		// The evaluation ran but could not be stored.
		s.logger.Warn("evaluation not saved", zap.String("profile_id", eval.ProfileID), zap.Error(err))
		c.JSON(http.StatusOK, evaluateResponse{Evaluation: eval})
	case err != nil:
		respondFailure(c, err)
	default:
		c.JSON(http.StatusCreated, evaluateResponse{Evaluation: eval, Saved: true})
	}
}

func (s *Server) latestEvaluation(c *gin.Context) {
	profileID := c.Query("profile_id")
	if profileID == "" {
		respondError(c, http.StatusBadRequest, "invalid_input", "profile_id is required")
		return
	}

	eval, err := s.svc.LatestEvaluation(c.Request.Context(), profileID)
	if err != nil {
		respondFailure(c, err)
		return
	}
	if eval == nil {
		respondError(c, http.StatusNotFound, "not_found", "no evaluation for profile "+profileID)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *Server) enrichment(c *gin.Context) {
	var req enrichmentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
	}

	status, err := s.svc.TriggerEnrichment(c.Request.Context(), req.BatchSize)
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) purge(c *gin.Context) {
	removed, err := s.svc.PurgeStale(c.Request.Context())
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
