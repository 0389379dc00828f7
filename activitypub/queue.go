package activitypub

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
	"github.com/google/uuid"
)

// ActivityQueue is the priority, consumer-group activity queue of spec
// §4.C4: three durable streams (urgent/normal/bulk), claim-based
// delivery with a pending-entries-list-style reclaim on timeout, a
// per-verb-class retry table with exponential backoff and jitter, and a
// dead letter queue for exhausted retries. It is deliberately built
// atop the existing sqlite persistence layer rather than a broker
// dependency: nothing in the retrieved example pack ships a message
// broker client.
type ActivityQueue struct {
	database Database
	conf     *util.AppConfig
}

func NewActivityQueue(database Database, conf *util.AppConfig) *ActivityQueue {
	return &ActivityQueue{database: database, conf: conf}
}

// Consumer groups. Inbound activities fan into dispatch; outbound
// deliveries fan out per destination inbox.
const (
	GroupInboxDispatch = "inbox-dispatch"
	GroupOutboxFanout  = "outbox-fanout"
)

// classifyRetryClass maps an ActivityPub verb to one of the retry
// policy classes configured in util.AppConfig.Conf.RetryPolicies
// (spec §4.C4's retry table).
func classifyRetryClass(activityType string) string {
	switch activityType {
	case "Delete":
		return "delete"
	case "Follow", "Accept", "Reject":
		return "follow"
	case "Like", "Dislike", "Undo":
		return "likeUndo"
	default:
		return "createUpdate"
	}
}

func (q *ActivityQueue) retryPolicyFor(activityType string) util.RetryPolicy {
	class := classifyRetryClass(activityType)
	if p, ok := q.conf.Conf.RetryPolicies[class]; ok {
		return p
	}
	return util.RetryPolicy{MaxAttempts: 5, BaseSeconds: 30, Multiplier: 2.0}
}

// Enqueue durably queues a message (inbound or outbound) for priority
// on group, keyed for idempotency by (group, activityID, destination).
func (q *ActivityQueue) Enqueue(priority domain.Priority, group, activityID, payload, destination string) error {
	now := time.Now()
	msg := &domain.QueuedMessage{
		Id:             uuid.New(),
		Priority:       priority,
		Group:          group,
		ActivityID:     activityID,
		Payload:        payload,
		Destination:    destination,
		FirstSeenAt:    now,
		NextEligibleAt: now,
		CreatedAt:      now,
	}
	return q.database.EnqueueMessage(msg)
}

// Claim pulls up to limit due messages for (priority, group), atomically
// assigning them to consumer's pending-entries-list slot.
func (q *ActivityQueue) Claim(priority domain.Priority, group, consumer string, limit int) ([]domain.QueuedMessage, error) {
	claimTimeout := time.Duration(q.conf.Conf.ClaimTimeoutSeconds) * time.Second
	return q.database.ClaimDueMessages(priority, group, consumer, limit, claimTimeout)
}

// Ack marks msg as fully processed.
func (q *ActivityQueue) Ack(msg domain.QueuedMessage) error {
	return q.database.AckMessage(msg.Id)
}

// Retry schedules msg for another attempt with exponential backoff and
// jitter based on activityType's retry class, or moves it to the dead
// letter queue once its attempt budget is exhausted.
func (q *ActivityQueue) Retry(msg domain.QueuedMessage, activityType string, deliveryErr error) error {
	kind := KindOf(deliveryErr)
	if ShouldAckWithoutRetry(kind) {
		log.Printf("ActivityQueue: %s is %s, acking without retry: %v", msg.ActivityID, kind, deliveryErr)
		return q.database.AckMessage(msg.Id)
	}
	if ShouldDeadLetter(kind) {
		log.Printf("ActivityQueue: %s classified %s, sending straight to DLQ: %v", msg.ActivityID, kind, deliveryErr)
		return q.database.DeadLetterMessage(msg, deliveryErr.Error())
	}

	policy := q.retryPolicyFor(activityType)
	if msg.Attempts >= policy.MaxAttempts {
		log.Printf("ActivityQueue: %s exhausted %d attempts, sending to DLQ: %v", msg.ActivityID, msg.Attempts, deliveryErr)
		return q.database.DeadLetterMessage(msg, deliveryErr.Error())
	}

	backoff := policy.BaseSeconds * math.Pow(policy.Multiplier, float64(msg.Attempts-1))
	jitter := backoff * (0.5 + rand.Float64()*0.5) // +/-50% jitter
	next := time.Now().Add(time.Duration(jitter) * time.Second)

	errMsg := ""
	if deliveryErr != nil {
		errMsg = deliveryErr.Error()
	}
	return q.database.ScheduleRetry(msg.Id, next, errMsg)
}

// Depth reports how many unacked messages remain on (priority, group),
// primarily for the admin TUI's queue-health screen.
func (q *ActivityQueue) Depth(priority domain.Priority, group string) (int, error) {
	return q.database.StreamDepth(priority, group)
}

// Trim reclaims acked messages older than the configured TTL. Intended
// to run on a periodic ticker from the delivery worker's lifecycle.
func (q *ActivityQueue) Trim() {
	ttl := time.Duration(q.conf.Conf.CompletedMessageTTLHours) * time.Hour
	if _, err := q.database.TrimCompletedMessages(ttl); err != nil {
		log.Printf("ActivityQueue: trim failed: %v", err)
	}
}

// RunConsumer polls (priority, group) on interval until ctx is
// cancelled, calling handle for each claimed message. handle's error
// (nil on success) drives the retry/DLQ decision; activityType
// determines which retry-policy class applies.
func (q *ActivityQueue) RunConsumer(ctx context.Context, priority domain.Priority, group, consumer string, interval time.Duration, handle func(domain.QueuedMessage) (activityType string, err error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msgs, err := q.Claim(priority, group, consumer, 16)
			if err != nil {
				log.Printf("ActivityQueue: claim failed for %s/%s: %v", priority, group, err)
				continue
			}
			for _, msg := range msgs {
				activityType, herr := handle(msg)
				if herr == nil {
					if err := q.Ack(msg); err != nil {
						log.Printf("ActivityQueue: ack failed for %s: %v", msg.ActivityID, err)
					}
					continue
				}
				if err := q.Retry(msg, activityType, herr); err != nil {
					log.Printf("ActivityQueue: retry scheduling failed for %s: %v", msg.ActivityID, err)
				}
			}
		}
	}
}
