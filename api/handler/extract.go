package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pageshot-ai/pageshot/cache"
	"github.com/pageshot-ai/pageshot/capture"
	"github.com/pageshot-ai/pageshot/models"
	"github.com/pageshot-ai/pageshot/pipeline"
)

// Extract returns a handler for POST /api/v1/extract: synchronous capture
// and extraction of a single URL. cc may be nil to disable caching.
func Extract(p *pipeline.Pipeline, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": models.APIError{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		key := cache.Key(req.URL, req.RecordKind)
		if cc != nil && req.CacheMaxAgeMs > 0 {
			if cached, hit := cc.Get(key, req.CacheMaxAgeMs); hit {
				resp := *cached
				resp.CacheStatus = "hit"
				resp.TotalMs = time.Since(start).Milliseconds()
				c.JSON(http.StatusOK, resp)
				return
			}
		}

		target := models.Target{
			URL:         req.URL,
			Kind:        req.RecordKind,
			Instruction: req.Instruction,
		}
		if err := target.Validate(); err != nil {
			perr := err.(*models.PipelineError)
			c.JSON(http.StatusBadRequest, models.ExtractResponse{
				Success: false,
				Error:   perr.ToDetail(),
				TotalMs: time.Since(start).Milliseconds(),
			})
			return
		}

		ov := capture.Overrides{FullPage: req.FullPage}
		if req.Timeout > 0 {
			ov.Timeout = time.Duration(req.Timeout) * time.Second
		}

		item := p.Run(c.Request.Context(), target, ov)

		resp := models.ExtractResponse{
			Success:  item.Success,
			Record:   item.Record,
			Artifact: item.Artifact,
			Error:    item.Failure,
			TotalMs:  time.Since(start).Milliseconds(),
		}
		if req.CacheMaxAgeMs > 0 {
			resp.CacheStatus = "miss"
		}

		if item.Success {
			if cc != nil {
				cc.Set(key, &resp)
			}
			c.JSON(http.StatusOK, resp)
			return
		}
		c.JSON(failureStatus(item.Failure), resp)
	}
}

// failureStatus maps a pipeline failure to an HTTP status code.
func failureStatus(detail *models.ErrorDetail) int {
	if detail == nil {
		return http.StatusInternalServerError
	}
	switch detail.Kind {
	case models.FailInvalidTarget, models.FailUnknownKind:
		return http.StatusBadRequest
	case models.FailExtractionTimeout:
		return http.StatusGatewayTimeout
	case models.FailCapture, models.FailInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
