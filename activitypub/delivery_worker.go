package activitypub

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
)

var (
	errMissingActor      = errors.New("activity carries no actor URI")
	errUnknownLocalActor = errors.New("actor does not resolve to a local account")
)

// deliveryWorkerInterval is how often the legacy per-inbox delivery
// queue (domain.DeliveryQueueItem, fed by SendCreate/SendUpdate/
// SendDelete) is polled for due retries.
const deliveryWorkerInterval = 30 * time.Second

// StartDeliveryWorker launches the background goroutines that drive
// federation delivery and upkeep: the per-inbox retry queue, the
// Activity Queue's completed-message trim, the Suspense Buffer's
// expiry sweep, and the Observability Store's retention trim. It starts
// two goroutines (the retry loop and the maintenance loop) and returns
// at once, so callers invoke it directly.
func StartDeliveryWorker(conf *util.AppConfig) {
	database := NewDBWrapper()
	breaker := NewCircuitBreaker(database, conf)
	queue := NewActivityQueue(database, conf)
	suspense := NewSuspenseBuffer(database, conf)
	observability := NewObservabilityStore(database, conf)

	go runLegacyDeliveryQueue(database, breaker, conf)
	go runMaintenanceLoop(queue, suspense, observability)

	log.Println("ActivityPub: delivery worker started")
}

func runLegacyDeliveryQueue(database Database, breaker *CircuitBreaker, conf *util.AppConfig) {
	ticker := time.NewTicker(deliveryWorkerInterval)
	defer ticker.Stop()

	for range ticker.C {
		err, pending := database.ReadPendingDeliveries(32)
		if err != nil {
			log.Printf("DeliveryWorker: failed to read pending deliveries: %v", err)
			continue
		}
		if pending == nil {
			continue
		}

		for _, item := range *pending {
			destHost, err := url.Parse(item.InboxURI)
			if err != nil {
				log.Printf("DeliveryWorker: invalid inbox URI %s, dropping: %v", item.InboxURI, err)
				_ = database.DeleteDelivery(item.Id)
				continue
			}

			allowed, err := breaker.MayDeliver(destHost.Host)
			if err != nil {
				log.Printf("DeliveryWorker: breaker check failed for %s: %v", destHost.Host, err)
				continue
			}
			if !allowed {
				continue
			}

			localAccount, activityMap, err := resolveDeliverySigner(database, item.ActivityJSON)
			if err != nil {
				log.Printf("DeliveryWorker: cannot resolve signer for delivery %s: %v, dropping", item.Id, err)
				_ = database.DeleteDelivery(item.Id)
				continue
			}

			start := time.Now()
			sendErr := SendActivityWithDeps(activityMap, item.InboxURI, localAccount, conf, defaultHTTPClient)
			elapsed := float64(time.Since(start).Milliseconds())

			if sendErr == nil {
				if err := breaker.RecordSuccess(destHost.Host, elapsed); err != nil {
					log.Printf("DeliveryWorker: failed to record success for %s: %v", destHost.Host, err)
				}
				if err := database.DeleteDelivery(item.Id); err != nil {
					log.Printf("DeliveryWorker: failed to clear delivered item %s: %v", item.Id, err)
				}
				continue
			}

			if err := breaker.RecordFailure(destHost.Host); err != nil {
				log.Printf("DeliveryWorker: failed to record failure for %s: %v", destHost.Host, err)
			}

			activityType := activityTypeOf(activityMap)
			activityURI, _ := activityMap["id"].(string)
			policy := (&ActivityQueue{conf: conf}).retryPolicyFor(activityType)
			attempts := item.Attempts + 1
			kind := KindOf(sendErr)
			dlqMsg := domain.QueuedMessage{
				Id:          item.Id,
				Group:       GroupOutboxFanout,
				ActivityID:  activityURI,
				Payload:     item.ActivityJSON,
				Destination: item.InboxURI,
				Attempts:    attempts,
			}

			if ShouldDeadLetter(kind) || attempts >= policy.MaxAttempts {
				log.Printf("DeliveryWorker: %s to %s exhausted %d attempts, sending to DLQ: %v", item.Id, item.InboxURI, attempts, sendErr)
				if err := database.DeadLetterMessage(dlqMsg, sendErr.Error()); err != nil {
					log.Printf("DeliveryWorker: failed to dead-letter %s: %v", item.Id, err)
				}
				_ = database.DeleteDelivery(item.Id)
				continue
			}
			if ShouldAckWithoutRetry(kind) {
				log.Printf("DeliveryWorker: %s to %s classified %s, dropping without retry: %v", item.Id, item.InboxURI, kind, sendErr)
				_ = database.DeleteDelivery(item.Id)
				continue
			}

			backoff := policy.BaseSeconds * math.Pow(policy.Multiplier, float64(attempts-1))
			next := time.Now().Add(time.Duration(backoff) * time.Second)
			if err := database.UpdateDeliveryAttempt(item.Id, attempts, next); err != nil {
				log.Printf("DeliveryWorker: failed to reschedule %s: %v", item.Id, err)
			}
		}
	}
}

func runMaintenanceLoop(queue *ActivityQueue, suspense *SuspenseBuffer, observability *ObservabilityStore) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		queue.Trim()
		suspense.SweepExpired()
		observability.Trim()
	}
}

// resolveDeliverySigner extracts the attributed local account from a
// raw Create/Update/Delete/Follow activity's top-level "actor" field
// (the delivery queue doesn't persist an explicit account reference,
// so the activity itself is the source of truth for who must sign it)
// and returns both the account and the decoded activity, ready to
// re-marshal for sending.
func resolveDeliverySigner(database Database, activityJSON string) (localAccount *domain.Account, activityMap map[string]any, err error) {
	if jsonErr := json.Unmarshal([]byte(activityJSON), &activityMap); jsonErr != nil {
		return nil, nil, jsonErr
	}
	actorURI, _ := activityMap["actor"].(string)
	if actorURI == "" {
		return nil, nil, errMissingActor
	}
	parsed, parseErr := url.Parse(actorURI)
	if parseErr != nil {
		return nil, nil, parseErr
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 {
		return nil, nil, errMissingActor
	}
	username := segments[len(segments)-1]

	readErr, account := database.ReadAccByUsername(username)
	if readErr != nil || account == nil {
		return nil, nil, errUnknownLocalActor
	}
	return account, activityMap, nil
}

func activityTypeOf(activityMap map[string]any) string {
	t, _ := activityMap["type"].(string)
	return t
}
