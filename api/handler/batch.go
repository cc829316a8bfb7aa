package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pageshot-ai/pageshot/capture"
	"github.com/pageshot-ai/pageshot/config"
	"github.com/pageshot-ai/pageshot/models"
	"github.com/pageshot-ai/pageshot/pipeline"
	"github.com/pageshot-ai/pageshot/record"
	"github.com/pageshot-ai/pageshot/storage"
	"github.com/pageshot-ai/pageshot/webhook"
)

// batchStore holds all in-flight and completed batch jobs.
var batchStore sync.Map

func init() {
	// Expire batch jobs older than 1 hour.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour).Unix()
			batchStore.Range(func(key, value any) bool {
				job := value.(*models.BatchJob)
				if job.CreatedAt < cutoff {
					batchStore.Delete(key)
				}
				return true
			})
		}
	}()
}

// PostBatch returns a handler for POST /api/v1/batch. It validates the
// request, registers a job, and runs the batch in the background.
func PostBatch(o *pipeline.Orchestrator, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": models.APIError{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		if len(req.URLs) > cfg.Batch.MaxURLs {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": models.APIError{
					Code:    models.ErrCodeInvalidInput,
					Message: fmt.Sprintf("maximum %d URLs per batch", cfg.Batch.MaxURLs),
				},
			})
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		jobID := "batch-" + uuid.NewString()
		job := models.NewBatchJob(jobID, req.RecordKind, len(req.URLs), cancel)
		batchStore.Store(jobID, job)

		go runBatch(ctx, o, cfg, job, req)

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     jobID,
			Status: "processing",
			Total:  len(req.URLs),
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := loadJob(c)
		if !ok {
			return
		}

		status, completed, result := job.Snapshot()
		resp := models.BatchStatusResponse{
			ID:        job.ID,
			Status:    status,
			Completed: completed,
			Total:     job.Total,
		}
		if status != "processing" {
			resp.Result = result
		}
		c.JSON(http.StatusOK, resp)
	}
}

// CancelBatch returns a handler for DELETE /api/v1/batch/:id. Queued items
// are dropped without a capture attempt; in-flight items stop at their next
// timeout checkpoint. Already-finished results are kept.
func CancelBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := loadJob(c)
		if !ok {
			return
		}

		if job.Status() == "processing" && job.Cancel != nil {
			job.Cancel()
		}
		c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "status": "cancelling"})
	}
}

// ExportBatch returns a handler for GET /api/v1/batch/:id/export.
// format=json (default) or format=csv.
func ExportBatch(validator *record.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := loadJob(c)
		if !ok {
			return
		}
		_, _, result := job.Snapshot()
		if result == nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": models.APIError{
					Code:    models.ErrCodeInvalidInput,
					Message: "batch is still processing",
				},
			})
			return
		}

		switch c.DefaultQuery("format", "json") {
		case "csv":
			c.Header("Content-Type", "text/csv")
			c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", job.ID))
			if err := storage.ExportCSV(c.Writer, result, job.Kind, validator); err != nil {
				slog.Error("csv export failed", "id", job.ID, "error", err)
			}
		case "json":
			c.Header("Content-Type", "application/json")
			if err := storage.ExportJSON(c.Writer, result); err != nil {
				slog.Error("json export failed", "id", job.ID, "error", err)
			}
		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error": models.APIError{
					Code:    models.ErrCodeInvalidInput,
					Message: "format must be json or csv",
				},
			})
		}
	}
}

func loadJob(c *gin.Context) (*models.BatchJob, bool) {
	val, ok := batchStore.Load(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": models.APIError{
				Code:    models.ErrCodeNotFound,
				Message: "batch job not found",
			},
		})
		return nil, false
	}
	return val.(*models.BatchJob), true
}

// runBatch drives the orchestrator and records progress on the job.
func runBatch(ctx context.Context, o *pipeline.Orchestrator, cfg *config.Config, job *models.BatchJob, req models.BatchRequest) {
	defer job.Cancel()

	targets := pipeline.MakeTargets(req.URLs, req.RecordKind)
	ov := capture.Overrides{FullPage: req.Options.FullPage}
	if req.Options.Timeout > 0 {
		ov.Timeout = time.Duration(req.Options.Timeout) * time.Second
	}

	progress := func(completed, total int, item *models.ItemResult) {
		job.SetCompleted(completed)
	}

	result, err := o.Run(ctx, targets, o.DefaultConcurrency(req.Options.Concurrency), ov, progress)
	if err != nil {
		job.Finish("failed", nil)
		slog.Error("batch job rejected", "id", job.ID, "error", err)
		return
	}

	status := "completed"
	switch {
	case ctx.Err() != nil:
		status = "cancelled"
	case result.Succeeded == 0:
		status = "failed"
	case result.Failed > 0:
		status = "partial"
	}
	job.Finish(status, result)

	if req.WebhookURL != "" {
		webhook.DeliverAsync(req.WebhookURL, cfg.Webhook.Secret, &webhook.Event{
			Type:      "batch.completed",
			JobID:     job.ID,
			Timestamp: time.Now().Unix(),
			Data: gin.H{
				"status":    status,
				"total":     job.Total,
				"succeeded": result.Succeeded,
				"failed":    result.Failed,
			},
		})
	}
}
