package activitypub

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
)

func testQueueConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.ClaimTimeoutSeconds = 30
	conf.Conf.CompletedMessageTTLHours = 24
	conf.Conf.RetryPolicies = map[string]util.RetryPolicy{
		"createUpdate": {MaxAttempts: 3, BaseSeconds: 1, Multiplier: 2.0},
		"delete":       {MaxAttempts: 3, BaseSeconds: 1, Multiplier: 2.0},
		"follow":       {MaxAttempts: 3, BaseSeconds: 1, Multiplier: 2.0},
		"likeUndo":     {MaxAttempts: 3, BaseSeconds: 1, Multiplier: 2.0},
	}
	return conf
}

func TestActivityQueueEnqueueAndClaim(t *testing.T) {
	mockDB := NewMockDatabase()
	q := NewActivityQueue(mockDB, testQueueConf())

	if err := q.Enqueue(domain.PriorityNormal, GroupInboxDispatch, "act-1", `{"type":"Create"}`, ""); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := q.Claim(domain.PriorityNormal, GroupInboxDispatch, "consumer-1", 16)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed message, got %d", len(claimed))
	}
	if claimed[0].ActivityID != "act-1" {
		t.Errorf("expected act-1, got %s", claimed[0].ActivityID)
	}
}

func TestActivityQueueClaimExcludesDifferentGroup(t *testing.T) {
	mockDB := NewMockDatabase()
	q := NewActivityQueue(mockDB, testQueueConf())

	_ = q.Enqueue(domain.PriorityNormal, GroupOutboxFanout, "act-1", "{}", "https://remote.example/inbox")

	claimed, err := q.Claim(domain.PriorityNormal, GroupInboxDispatch, "consumer-1", 16)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("expected no messages claimed from a different group, got %d", len(claimed))
	}
}

func TestActivityQueueAckRemovesFromDepth(t *testing.T) {
	mockDB := NewMockDatabase()
	q := NewActivityQueue(mockDB, testQueueConf())

	_ = q.Enqueue(domain.PriorityUrgent, GroupInboxDispatch, "act-1", "{}", "")
	claimed, _ := q.Claim(domain.PriorityUrgent, GroupInboxDispatch, "c1", 16)

	depthBefore, _ := q.Depth(domain.PriorityUrgent, GroupInboxDispatch)
	if depthBefore != 1 {
		t.Fatalf("expected depth 1 before ack, got %d", depthBefore)
	}

	if err := q.Ack(claimed[0]); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	depthAfter, _ := q.Depth(domain.PriorityUrgent, GroupInboxDispatch)
	if depthAfter != 0 {
		t.Errorf("expected depth 0 after ack, got %d", depthAfter)
	}
}

func TestActivityQueueRetryReschedulesUnderAttemptBudget(t *testing.T) {
	mockDB := NewMockDatabase()
	q := NewActivityQueue(mockDB, testQueueConf())

	_ = q.Enqueue(domain.PriorityNormal, GroupOutboxFanout, "act-1", "{}", "https://remote.example/inbox")
	claimed, _ := q.Claim(domain.PriorityNormal, GroupOutboxFanout, "c1", 16)

	if err := q.Retry(claimed[0], "Create", fmt.Errorf("connection refused")); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	if len(mockDB.DLQMessages) != 0 {
		t.Errorf("expected no DLQ entries before attempt budget is exhausted, got %d", len(mockDB.DLQMessages))
	}

	msg := mockDB.QueuedMessages[claimed[0].Id]
	if msg.NextEligibleAt.Before(time.Now()) {
		t.Error("expected NextEligibleAt to be pushed into the future")
	}
}

func TestActivityQueueRetryDeadLettersAfterExhaustion(t *testing.T) {
	mockDB := NewMockDatabase()
	conf := testQueueConf()
	conf.Conf.RetryPolicies["createUpdate"] = util.RetryPolicy{MaxAttempts: 1, BaseSeconds: 1, Multiplier: 2.0}
	q := NewActivityQueue(mockDB, conf)

	_ = q.Enqueue(domain.PriorityBulk, GroupOutboxFanout, "act-1", "{}", "https://remote.example/inbox")
	claimed, _ := q.Claim(domain.PriorityBulk, GroupOutboxFanout, "c1", 16)

	if err := q.Retry(claimed[0], "Create", fmt.Errorf("still failing")); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	if len(mockDB.DLQMessages) != 1 {
		t.Fatalf("expected message to be dead-lettered after exhausting its attempt budget, got %d DLQ entries", len(mockDB.DLQMessages))
	}
}

func TestActivityQueueRetryAcksPolicyBlockedWithoutRetrying(t *testing.T) {
	mockDB := NewMockDatabase()
	q := NewActivityQueue(mockDB, testQueueConf())

	_ = q.Enqueue(domain.PriorityNormal, GroupInboxDispatch, "act-1", "{}", "")
	claimed, _ := q.Claim(domain.PriorityNormal, GroupInboxDispatch, "c1", 16)

	blocked := NewFedError(KindPolicyBlock, fmt.Errorf("Move not supported"))
	if err := q.Retry(claimed[0], "Move", blocked); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	msg := mockDB.QueuedMessages[claimed[0].Id]
	if !msg.Acked {
		t.Error("expected a policy-blocked message to be acked without retry")
	}
	if len(mockDB.DLQMessages) != 0 {
		t.Error("expected a policy-blocked message to never reach the DLQ")
	}
}

func TestActivityQueueRunConsumerAcksOnSuccess(t *testing.T) {
	mockDB := NewMockDatabase()
	q := NewActivityQueue(mockDB, testQueueConf())
	_ = q.Enqueue(domain.PriorityNormal, GroupInboxDispatch, "act-1", "{}", "")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var handled int
	q.RunConsumer(ctx, domain.PriorityNormal, GroupInboxDispatch, "c1", 5*time.Millisecond, func(msg domain.QueuedMessage) (string, error) {
		handled++
		return "Create", nil
	})

	if handled == 0 {
		t.Error("expected RunConsumer to invoke handle at least once before ctx expired")
	}
}
