package activitypub

import (
	"log"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
)

// Checkpoint names the Inbox Pipeline stage a CheckpointRecord was
// written at (spec §4.C9).
type Checkpoint string

const (
	CheckpointReceived    Checkpoint = "received"
	CheckpointParsed      Checkpoint = "parsed"
	CheckpointActorKnown  Checkpoint = "actor_known"
	CheckpointVerified    Checkpoint = "verified"
	CheckpointDeduped     Checkpoint = "deduped"
	CheckpointEnqueued    Checkpoint = "enqueued"
	CheckpointDispatched  Checkpoint = "dispatched"
	CheckpointSuspended   Checkpoint = "suspended"
)

// Status is the outcome recorded alongside a Checkpoint.
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusWarning Status = "warning"
	StatusIgnored Status = "ignored"
)

// ObservabilityStore appends checkpoint records for every inbound
// request's journey through the pipeline and exposes the query surface
// an operator (or the admin TUI) uses to debug a stuck or rejected
// delivery.
type ObservabilityStore struct {
	database Database
	debug    bool
}

func NewObservabilityStore(database Database, conf *util.AppConfig) *ObservabilityStore {
	return &ObservabilityStore{database: database, debug: conf.Conf.DebugObservability}
}

// Record appends a checkpoint. rawBody is only persisted when the
// DebugObservability flag is set, since it may contain content the
// operator hasn't consented to retain in plaintext. A nil receiver is
// a no-op, so call sites that run without an ObservabilityStore wired
// in (most test fixtures) don't need to guard every call.
func (o *ObservabilityStore) Record(requestID string, checkpoint Checkpoint, status Status, activityID, details string, rawBody []byte) {
	if o == nil {
		return
	}
	rec := &domain.CheckpointRecord{
		RequestID:  requestID,
		Checkpoint: string(checkpoint),
		Status:     string(status),
		ActivityID: activityID,
		Details:    details,
	}
	if o.debug && status != StatusOK {
		rec.RawBody = string(rawBody)
	}
	if err := o.database.WriteCheckpoint(rec); err != nil {
		log.Printf("ObservabilityStore: failed to write checkpoint %s/%s: %v", requestID, checkpoint, err)
	}
}

// Timeline returns every checkpoint recorded for requestID, in order.
func (o *ObservabilityStore) Timeline(requestID string) ([]domain.CheckpointRecord, error) {
	if o == nil {
		return nil, nil
	}
	return o.database.ReadCheckpointsByRequestID(requestID)
}

// ActivityTimeline returns every checkpoint ever recorded against
// activityID, across every request that touched it (redeliveries reuse
// the activity's own id on a fresh request_id).
func (o *ObservabilityStore) ActivityTimeline(activityID string) ([]domain.CheckpointRecord, error) {
	if o == nil {
		return nil, nil
	}
	return o.database.ReadCheckpointsByActivityID(activityID)
}

// RecentFailures returns error-status checkpoints written within window,
// for an operator scanning recent rejections.
func (o *ObservabilityStore) RecentFailures(window time.Duration) ([]domain.CheckpointRecord, error) {
	if o == nil {
		return nil, nil
	}
	return o.database.ReadFailedCheckpointsSince(window)
}

// StuckRequests returns request IDs that never reached a successful
// "dispatched" checkpoint and have been in the pipeline longer than
// minAge. No TUI screen calls it.
func (o *ObservabilityStore) StuckRequests(minAge time.Duration) ([]string, error) {
	if o == nil {
		return nil, nil
	}
	return o.database.ReadIncompleteRequestIDs(minAge)
}

// Trim enforces the retention policy: completed (ok/ignored) records
// expire after 24h, everything else after 7 days, so failed deliveries
// stay inspectable long enough to debug.
func (o *ObservabilityStore) Trim() {
	if o == nil {
		return
	}
	if err := o.database.TrimCheckpoints(); err != nil {
		log.Printf("ObservabilityStore: trim failed: %v", err)
	}
}
