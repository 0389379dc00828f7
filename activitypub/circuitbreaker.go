package activitypub

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
)

// CircuitBreaker tracks per-peer delivery health (spec §4.C8). It gates
// the Outbox before every delivery attempt and is fed by Outbox delivery
// outcomes. State transitions: healthy -> unhealthy (FailureThreshold
// consecutive failures) -> degraded (half-open, after RecoveryTimeout)
// -> healthy (SuccessThreshold consecutive probe successes) or back to
// unhealthy on a single probe failure. A peer unhealthy for
// DeadThresholdHours is marked dead and stops being probed until an
// operator resets it.
type CircuitBreaker struct {
	mu       sync.Mutex
	database Database
	conf     *util.AppConfig
}

func NewCircuitBreaker(database Database, conf *util.AppConfig) *CircuitBreaker {
	return &CircuitBreaker{database: database, conf: conf}
}

// MayDeliver reports whether a delivery attempt to domainName should be
// tried now. Degraded peers are allowed through at most HalfOpenProbes
// concurrent probes; this is approximated by allowing the probe and
// relying on RecordFailure/RecordSuccess to flip state back quickly.
func (b *CircuitBreaker) MayDeliver(domainName string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	peer, err := b.database.GetOrCreatePeer(domainName)
	if err != nil {
		return false, fmt.Errorf("circuit breaker: lookup peer %s: %w", domainName, err)
	}

	switch peer.Health {
	case domain.PeerHealthy, domain.PeerDegraded:
		return true, nil
	case domain.PeerDead:
		return false, nil
	case domain.PeerUnhealthy:
		if peer.OpenedAt == nil {
			return false, nil
		}
		recoveryTimeout := time.Duration(b.conf.Conf.RecoveryTimeoutSeconds) * time.Second
		if time.Since(*peer.OpenedAt) < recoveryTimeout {
			return false, nil
		}
		// Recovery timeout elapsed: transition to half-open and allow a probe.
		peer.Health = domain.PeerDegraded
		peer.ConsecutiveSuccesses = 0
		if err := b.database.UpdatePeerHealth(peer); err != nil {
			return false, err
		}
		return true, nil
	default:
		return true, nil
	}
}

// RecordSuccess registers a successful delivery to domainName.
func (b *CircuitBreaker) RecordSuccess(domainName string, responseMillis float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	peer, err := b.database.GetOrCreatePeer(domainName)
	if err != nil {
		return err
	}

	now := time.Now()
	peer.ConsecutiveFailures = 0
	peer.ConsecutiveSuccesses++
	peer.LastSuccessAt = &now
	peer.SampleCount++
	if peer.SampleCount == 1 {
		peer.AvgResponseMillis = responseMillis
	} else {
		peer.AvgResponseMillis += (responseMillis - peer.AvgResponseMillis) / float64(peer.SampleCount)
	}

	switch peer.Health {
	case domain.PeerDegraded:
		if peer.ConsecutiveSuccesses >= b.conf.Conf.SuccessThreshold {
			peer.Health = domain.PeerHealthy
			peer.OpenedAt = nil
			log.Printf("CircuitBreaker: %s recovered to healthy", domainName)
		}
	case domain.PeerUnhealthy, domain.PeerDead:
		peer.Health = domain.PeerDegraded
		peer.OpenedAt = nil
	}

	return b.database.UpdatePeerHealth(peer)
}

// RecordFailure registers a failed delivery to domainName.
func (b *CircuitBreaker) RecordFailure(domainName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	peer, err := b.database.GetOrCreatePeer(domainName)
	if err != nil {
		return err
	}

	now := time.Now()
	peer.ConsecutiveSuccesses = 0
	peer.ConsecutiveFailures++
	peer.LastFailureAt = &now

	switch peer.Health {
	case domain.PeerDegraded:
		peer.Health = domain.PeerUnhealthy
		peer.OpenedAt = &now
	case domain.PeerHealthy:
		if peer.ConsecutiveFailures >= b.conf.Conf.FailureThreshold {
			peer.Health = domain.PeerUnhealthy
			peer.OpenedAt = &now
			log.Printf("CircuitBreaker: %s tripped open after %d consecutive failures", domainName, peer.ConsecutiveFailures)
		}
	case domain.PeerUnhealthy:
		deadThreshold := time.Duration(b.conf.Conf.DeadThresholdHours) * time.Hour
		if peer.OpenedAt != nil && now.Sub(*peer.OpenedAt) >= deadThreshold {
			peer.Health = domain.PeerDead
			log.Printf("CircuitBreaker: %s marked dead after %s unhealthy", domainName, deadThreshold)
		}
	}

	return b.database.UpdatePeerHealth(peer)
}

// Reset is the operator hook (admin TUI) to force a peer back to healthy.
func (b *CircuitBreaker) Reset(domainName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.database.ResetPeer(domainName)
}
