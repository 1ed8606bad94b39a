package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseFox/internal/pkg/jobqueue"
)

// QueueInspector reads job queue state.
type QueueInspector interface {
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
	GetRetrySize(ctx context.Context) (int64, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
}

// QueueController exposes job queue state to operators
type QueueController struct {
	queue QueueInspector
}

func NewQueueController(queue QueueInspector) *QueueController {
	return &QueueController{queue: queue}
}

// HandleQueueStats returns queue depths and lifetime job counters.
func (qc *QueueController) HandleQueueStats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	pending, err := qc.queue.GetQueueSize(ctx)
	if err != nil {
		return qc.unavailable(c)
	}
	processing, err := qc.queue.GetProcessingSize(ctx)
	if err != nil {
		return qc.unavailable(c)
	}
	retry, err := qc.queue.GetRetrySize(ctx)
	if err != nil {
		return qc.unavailable(c)
	}
	stats, err := qc.queue.GetJobStats(ctx)
	if err != nil {
		return qc.unavailable(c)
	}

	return c.JSON(fiber.Map{
		"pending":    pending,
		"processing": processing,
		"retry":      retry,
		"stats":      stats,
	})
}

func (qc *QueueController) unavailable(c *fiber.Ctx) error {
	return respondError(c, fiber.StatusServiceUnavailable, "queue_unavailable", "job queue is not reachable")
}
