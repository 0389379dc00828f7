package activitypub

import (
	"testing"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
)

func testBreakerConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.FailureThreshold = 3
	conf.Conf.SuccessThreshold = 2
	conf.Conf.RecoveryTimeoutSeconds = 1
	conf.Conf.DeadThresholdHours = 1
	return conf
}

func TestCircuitBreakerHealthyAllowsDelivery(t *testing.T) {
	mockDB := NewMockDatabase()
	breaker := NewCircuitBreaker(mockDB, testBreakerConf())

	allowed, err := breaker.MayDeliver("remote.example")
	if err != nil {
		t.Fatalf("MayDeliver returned error: %v", err)
	}
	if !allowed {
		t.Error("expected a newly-seen peer to default to healthy and be allowed")
	}
}

func TestCircuitBreakerTripsOpenAfterThreshold(t *testing.T) {
	mockDB := NewMockDatabase()
	conf := testBreakerConf()
	breaker := NewCircuitBreaker(mockDB, conf)

	for i := 0; i < conf.Conf.FailureThreshold; i++ {
		if err := breaker.RecordFailure("bad.example"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	allowed, err := breaker.MayDeliver("bad.example")
	if err != nil {
		t.Fatalf("MayDeliver: %v", err)
	}
	if allowed {
		t.Error("expected peer to be denied once the failure threshold is reached")
	}
}

func TestCircuitBreakerHalfOpensAfterRecoveryTimeout(t *testing.T) {
	mockDB := NewMockDatabase()
	conf := testBreakerConf()
	conf.Conf.RecoveryTimeoutSeconds = 0 // elapse immediately
	breaker := NewCircuitBreaker(mockDB, conf)

	for i := 0; i < conf.Conf.FailureThreshold; i++ {
		_ = breaker.RecordFailure("flaky.example")
	}

	time.Sleep(5 * time.Millisecond)

	allowed, err := breaker.MayDeliver("flaky.example")
	if err != nil {
		t.Fatalf("MayDeliver: %v", err)
	}
	if !allowed {
		t.Error("expected a probe to be allowed once the recovery timeout elapses")
	}

	peer, _ := mockDB.GetOrCreatePeer("flaky.example")
	if peer.Health != domain.PeerDegraded {
		t.Errorf("expected peer to transition to degraded, got %s", peer.Health)
	}
}

func TestCircuitBreakerRecoversToHealthyAfterSuccessThreshold(t *testing.T) {
	mockDB := NewMockDatabase()
	conf := testBreakerConf()
	breaker := NewCircuitBreaker(mockDB, conf)

	for i := 0; i < conf.Conf.FailureThreshold; i++ {
		_ = breaker.RecordFailure("recovering.example")
	}
	peer, _ := mockDB.GetOrCreatePeer("recovering.example")
	peer.Health = domain.PeerDegraded
	_ = mockDB.UpdatePeerHealth(peer)

	for i := 0; i < conf.Conf.SuccessThreshold; i++ {
		if err := breaker.RecordSuccess("recovering.example", 42.0); err != nil {
			t.Fatalf("RecordSuccess: %v", err)
		}
	}

	peer, _ = mockDB.GetOrCreatePeer("recovering.example")
	if peer.Health != domain.PeerHealthy {
		t.Errorf("expected peer healthy after %d consecutive successes, got %s", conf.Conf.SuccessThreshold, peer.Health)
	}
}

func TestCircuitBreakerDeadPeerDenied(t *testing.T) {
	mockDB := NewMockDatabase()
	conf := testBreakerConf()
	breaker := NewCircuitBreaker(mockDB, conf)

	peer, _ := mockDB.GetOrCreatePeer("dead.example")
	peer.Health = domain.PeerDead
	_ = mockDB.UpdatePeerHealth(peer)

	allowed, err := breaker.MayDeliver("dead.example")
	if err != nil {
		t.Fatalf("MayDeliver: %v", err)
	}
	if allowed {
		t.Error("expected a dead peer to never be allowed")
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	mockDB := NewMockDatabase()
	breaker := NewCircuitBreaker(mockDB, testBreakerConf())

	peer, _ := mockDB.GetOrCreatePeer("reset-me.example")
	peer.Health = domain.PeerDead
	peer.ConsecutiveFailures = 10
	_ = mockDB.UpdatePeerHealth(peer)

	if err := breaker.Reset("reset-me.example"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	peer, _ = mockDB.GetOrCreatePeer("reset-me.example")
	if peer.Health != domain.PeerHealthy {
		t.Errorf("expected reset peer to be healthy, got %s", peer.Health)
	}
	if peer.ConsecutiveFailures != 0 {
		t.Errorf("expected reset peer to clear failure count, got %d", peer.ConsecutiveFailures)
	}
}
