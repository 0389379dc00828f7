package domain

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the Activity Queue stream a QueuedMessage lives on
// (spec §4.C4).
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityNormal Priority = "normal"
	PriorityBulk   Priority = "bulk"
)

// QueuedMessage is a durable record of one Activity Queue entry: either
// an inbound activity awaiting dispatch, or an outbound delivery task
// awaiting a destination POST. It mirrors spec §3's "Queued Message" and
// §6's persisted `queued_message` schema.
type QueuedMessage struct {
	Id            uuid.UUID
	Priority      Priority
	Group         string // consumer group name, e.g. "inbox-dispatch" or "outbox-fanout"
	ActivityID    string // idempotency key = the activity's own id
	Payload       string // raw JSON envelope
	Destination   string // inbox URI, empty for ingress messages
	Attempts      int
	FirstSeenAt   time.Time
	NextEligibleAt time.Time
	LastError     string
	ClaimedBy     string // consumer id owning this message's PEL slot, empty if unclaimed
	ClaimedAt     *time.Time
	Acked         bool
	CreatedAt     time.Time
}

// DLQMessage is a terminal hold for a QueuedMessage that exhausted its
// retry budget (spec §4.C4 "DLQ").
type DLQMessage struct {
	Id          uuid.UUID
	SourceGroup string
	ActivityID  string
	Payload     string
	Destination string
	LastError   string
	Attempts    int
	ArchivedAt  time.Time
}

// PeerHealth is the circuit-breaker state of §4.C8.
type PeerHealth string

const (
	PeerHealthy    PeerHealth = "healthy"
	PeerDegraded   PeerHealth = "degraded" // half-open
	PeerUnhealthy  PeerHealth = "unhealthy"
	PeerDead       PeerHealth = "dead"
)

// Peer is a remote instance this server has exchanged activities with
// (spec §3 "Peer (Instance)").
type Peer struct {
	Id                 uuid.UUID
	Domain             string
	Software            string
	Version             string
	Health              PeerHealth
	ConsecutiveFailures int
	ConsecutiveSuccesses int
	OpenedAt            *time.Time // when the breaker tripped open
	LastSuccessAt       *time.Time
	LastFailureAt       *time.Time
	AvgResponseMillis   float64
	SampleCount         int
	CreatedAt           time.Time
}

// CheckpointRecord is one append-only row of the Observability Store
// (spec §4.C9).
type CheckpointRecord struct {
	Id           uuid.UUID
	RequestID    string
	Checkpoint   string
	Status       string // ok, error, warning, ignored
	ActivityID   string
	Details      string
	RawBody      string // only populated when DebugObservability is set
	CreatedAt    time.Time
}

// SuspenseEntry holds an activity whose causal prerequisite has not yet
// arrived (spec §3 "Content Object" invariant, §4.C6 Create/Like, §9).
type SuspenseEntry struct {
	Id            uuid.UUID
	WaitingOnURI  string // the prerequisite object/activity URI
	ActivityID    string
	Payload       string // raw JSON of the suspended activity
	ReplayVerb    string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}
