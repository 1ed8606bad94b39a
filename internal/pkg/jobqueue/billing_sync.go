package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
)

const reconcileScanCount = 100

// SnapshotSyncer is the part of billing.Syncer the queue needs.
type SnapshotSyncer interface {
	Sync(ctx context.Context, customerID string) (*billing.SubscriptionSnapshot, error)
}

// SyncDispatcher runs customer syncs on the job queue. It implements
// billing.Dispatcher.
type SyncDispatcher struct {
	queue  *Queue
	syncer SnapshotSyncer
	audit  billing.AuditLog
}

// NewSyncDispatcher registers the subscription sync handler on queue.
// audit may be nil.
func NewSyncDispatcher(queue *Queue, syncer SnapshotSyncer, audit billing.AuditLog) *SyncDispatcher {
	d := &SyncDispatcher{queue: queue, syncer: syncer, audit: audit}
	queue.RegisterHandler(JobTypeSubscriptionSync, d.handle)
	return d
}

// DispatchSync enqueues a sync. When Redis refuses the job, the sync runs
// detached in this process instead of being dropped.
func (d *SyncDispatcher) DispatchSync(ctx context.Context, req billing.SyncRequest) error {
	payload := SubscriptionSyncJobPayload{
		CustomerID: req.CustomerID,
		EventID:    req.EventID,
		EventType:  req.EventType,
		AuditID:    req.AuditID,
	}
	job, err := d.queue.EnqueueJob(ctx, JobTypeSubscriptionSync, payload.ToMap())
	if err == nil {
		log.Debugf("[JobQueue] Sync for customer %s queued as job %s", req.CustomerID, job.ID)
		return nil
	}

	log.Warnf("[JobQueue] Could not enqueue sync for customer %s, running detached: %v", req.CustomerID, err)
	if derr := d.queue.RunDetached(func(ctx context.Context) {
		_ = d.run(ctx, payload)
	}); derr != nil {
		return fmt.Errorf("enqueue sync: %v: %w", err, derr)
	}
	return nil
}

func (d *SyncDispatcher) handle(ctx context.Context, job *Job) error {
	payload, err := SubscriptionSyncJobPayloadFromMap(job.Payload)
	if err != nil {
		job.MaxRetries = 0
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.CustomerID == "" {
		job.MaxRetries = 0
		return errors.New("payload has no customer_id")
	}

	err = d.run(ctx, *payload)
	if errors.Is(err, billing.ErrInvalidArgument) {
		// A malformed customer id fails the same way on every attempt.
		job.MaxRetries = 0
	}
	return err
}

func (d *SyncDispatcher) run(ctx context.Context, p SubscriptionSyncJobPayload) error {
	_, err := d.syncer.Sync(ctx, p.CustomerID)
	if d.audit != nil && p.AuditID != 0 {
		if merr := d.audit.MarkProcessed(ctx, p.AuditID, err); merr != nil {
			log.Warnf("[JobQueue] Failed to update audit row %d: %v", p.AuditID, merr)
		}
	}
	return err
}

// Reconcile enqueues a sync for every customer that has a snapshot, so
// customers whose webhooks were lost converge anyway.
func (d *SyncDispatcher) Reconcile(ctx context.Context) error {
	iter := d.queue.client.Scan(ctx, 0, billing.SnapshotKeyPattern, reconcileScanCount).Iterator()
	queued := 0
	for iter.Next(ctx) {
		customerID, ok := billing.CustomerIDFromSnapshotKey(iter.Val())
		if !ok {
			continue
		}
		payload := SubscriptionSyncJobPayload{CustomerID: customerID, EventType: "reconcile"}
		if _, err := d.queue.EnqueueJob(ctx, JobTypeSubscriptionSync, payload.ToMap()); err != nil {
			return fmt.Errorf("enqueue reconcile for %s: %w", customerID, err)
		}
		queued++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan snapshots: %w", err)
	}
	log.Infof("[JobQueue] Reconcile queued %d customer sync(s)", queued)
	return nil
}
