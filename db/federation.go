package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/google/uuid"
)

// Federation-core tables added for the Activity Queue (C4), Instance
// Health (C8), Observability Store (C9), and Suspense Buffer — none of
// which existed in the base schema. Grounded on the create-table /
// insert / select const naming already used throughout db.go for
// activities, delivery_queue, and relays.
const (
	sqlCreateQueuedMessageTable = `CREATE TABLE IF NOT EXISTS queued_messages(
		id uuid NOT NULL PRIMARY KEY,
		priority varchar(20) NOT NULL,
		grp varchar(100) NOT NULL,
		activity_id varchar(500) NOT NULL,
		payload text NOT NULL,
		destination varchar(500) DEFAULT '',
		attempts int DEFAULT 0,
		first_seen_at timestamp NOT NULL,
		next_eligible_at timestamp NOT NULL,
		last_error text DEFAULT '',
		claimed_by varchar(100) DEFAULT '',
		claimed_at timestamp,
		acked boolean DEFAULT 0,
		created_at timestamp default current_timestamp,
		UNIQUE(grp, activity_id, destination)
	)`

	sqlCreateDLQTable = `CREATE TABLE IF NOT EXISTS dlq_messages(
		id uuid NOT NULL PRIMARY KEY,
		source_group varchar(100) NOT NULL,
		activity_id varchar(500) NOT NULL,
		payload text NOT NULL,
		destination varchar(500) DEFAULT '',
		last_error text DEFAULT '',
		attempts int DEFAULT 0,
		archived_at timestamp default current_timestamp
	)`

	sqlCreatePeerTable = `CREATE TABLE IF NOT EXISTS peers(
		id uuid NOT NULL PRIMARY KEY,
		domain varchar(255) UNIQUE NOT NULL,
		software varchar(100) DEFAULT '',
		version varchar(50) DEFAULT '',
		health varchar(20) DEFAULT 'healthy',
		consecutive_failures int DEFAULT 0,
		consecutive_successes int DEFAULT 0,
		opened_at timestamp,
		last_success_at timestamp,
		last_failure_at timestamp,
		avg_response_millis real DEFAULT 0,
		sample_count int DEFAULT 0,
		created_at timestamp default current_timestamp
	)`

	sqlCreateCheckpointTable = `CREATE TABLE IF NOT EXISTS checkpoint_records(
		id uuid NOT NULL PRIMARY KEY,
		request_id varchar(100) NOT NULL,
		checkpoint varchar(100) NOT NULL,
		status varchar(20) NOT NULL,
		activity_id varchar(500) DEFAULT '',
		details text DEFAULT '',
		raw_body text DEFAULT '',
		created_at timestamp default current_timestamp
	)`

	sqlCreateSuspenseTable = `CREATE TABLE IF NOT EXISTS suspense_entries(
		id uuid NOT NULL PRIMARY KEY,
		waiting_on_uri varchar(500) NOT NULL,
		activity_id varchar(500) NOT NULL,
		payload text NOT NULL,
		replay_verb varchar(50) NOT NULL,
		created_at timestamp default current_timestamp,
		expires_at timestamp NOT NULL
	)`
)

// RunFederationCoreMigrations creates the tables backing the Activity
// Queue, Instance Health, Observability Store, and Suspense Buffer. It
// is additive and idempotent like the rest of RunMigrations.
func (db *DB) RunFederationCoreMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		for _, create := range []string{
			sqlCreateQueuedMessageTable,
			sqlCreateDLQTable,
			sqlCreatePeerTable,
			sqlCreateCheckpointTable,
			sqlCreateSuspenseTable,
		} {
			if _, err := tx.Exec(create); err != nil {
				return fmt.Errorf("federation core migration failed: %w", err)
			}
		}
		return nil
	})
}

// --- Queued messages (C4) ---

func (db *DB) EnqueueMessage(msg *domain.QueuedMessage) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO queued_messages
			 (id, priority, grp, activity_id, payload, destination, attempts, first_seen_at, next_eligible_at, last_error, claimed_by, claimed_at, acked, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.Id.String(), string(msg.Priority), msg.Group, msg.ActivityID, msg.Payload, msg.Destination,
			msg.Attempts, msg.FirstSeenAt, msg.NextEligibleAt, msg.LastError, msg.ClaimedBy, msg.ClaimedAt, msg.Acked, msg.CreatedAt,
		)
		return err
	})
}

// ClaimDueMessages claims up to limit unclaimed-or-reclaimable messages
// for group on stream priority, atomically marking them claimed by
// consumer. A message is reclaimable once claimTimeout has elapsed since
// claimed_at (spec §4.C4 "Claim timeout").
func (db *DB) ClaimDueMessages(priority domain.Priority, group, consumer string, limit int, claimTimeout time.Duration) ([]domain.QueuedMessage, error) {
	var claimed []domain.QueuedMessage
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		rows, err := tx.Query(
			`SELECT id, priority, grp, activity_id, payload, destination, attempts, first_seen_at, next_eligible_at, last_error
			 FROM queued_messages
			 WHERE priority = ? AND grp = ? AND acked = 0 AND next_eligible_at <= ?
			   AND (claimed_by = '' OR claimed_at <= ?)
			 ORDER BY first_seen_at ASC
			 LIMIT ?`,
			string(priority), group, time.Now(), time.Now().Add(-claimTimeout), limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		var ids []string
		for rows.Next() {
			var m domain.QueuedMessage
			var idStr string
			if err := rows.Scan(&idStr, &m.Priority, &m.Group, &m.ActivityID, &m.Payload, &m.Destination,
				&m.Attempts, &m.FirstSeenAt, &m.NextEligibleAt, &m.LastError); err != nil {
				return err
			}
			m.Id, _ = uuid.Parse(idStr)
			claimed = append(claimed, m)
			ids = append(ids, idStr)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now()
		for i, id := range ids {
			if _, err := tx.Exec(`UPDATE queued_messages SET claimed_by = ?, claimed_at = ?, attempts = attempts + 1 WHERE id = ?`,
				consumer, now, id); err != nil {
				return err
			}
			claimed[i].ClaimedBy = consumer
			claimed[i].ClaimedAt = &now
			claimed[i].Attempts++
		}
		return nil
	})
	return claimed, err
}

func (db *DB) AckMessage(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE queued_messages SET acked = 1 WHERE id = ?`, id.String())
		return err
	})
}

func (db *DB) ScheduleRetry(id uuid.UUID, nextEligible time.Time, lastErr string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE queued_messages SET next_eligible_at = ?, last_error = ?, claimed_by = '' WHERE id = ?`,
			nextEligible, lastErr, id.String())
		return err
	})
}

func (db *DB) DeadLetterMessage(msg domain.QueuedMessage, lastErr string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO dlq_messages (id, source_group, activity_id, payload, destination, last_error, attempts, archived_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), msg.Group, msg.ActivityID, msg.Payload, msg.Destination, lastErr, msg.Attempts, time.Now(),
		); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE queued_messages SET acked = 1 WHERE id = ?`, msg.Id.String())
		return err
	})
}

// TrimCompletedMessages deletes acked messages older than ttl, and logs
// how many rows it reclaimed, per spec §4.C4's lifecycle worker.
func (db *DB) TrimCompletedMessages(ttl time.Duration) (int64, error) {
	var affected int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM queued_messages WHERE acked = 1 AND first_seen_at < ?`, time.Now().Add(-ttl))
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if affected > 0 {
		log.Printf("FederationCore: trimmed %d completed queue entries", affected)
	}
	return affected, err
}

func (db *DB) StreamDepth(priority domain.Priority, group string) (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM queued_messages WHERE priority = ? AND grp = ? AND acked = 0`,
		string(priority), group).Scan(&n)
	return n, err
}

// --- Peers / circuit breaker (C8) ---

func (db *DB) GetOrCreatePeer(domainName string) (*domain.Peer, error) {
	var p domain.Peer
	var idStr string
	err := db.db.QueryRow(
		`SELECT id, domain, software, version, health, consecutive_failures, consecutive_successes, avg_response_millis, sample_count
		 FROM peers WHERE domain = ?`, domainName,
	).Scan(&idStr, &p.Domain, &p.Software, &p.Version, &p.Health, &p.ConsecutiveFailures, &p.ConsecutiveSuccesses, &p.AvgResponseMillis, &p.SampleCount)
	if err == nil {
		p.Id, _ = uuid.Parse(idStr)
		return &p, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	p = domain.Peer{Id: uuid.New(), Domain: domainName, Health: domain.PeerHealthy, CreatedAt: time.Now()}
	insertErr := db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO peers (id, domain, health, created_at) VALUES (?, ?, ?, ?)`,
			p.Id.String(), p.Domain, string(p.Health), p.CreatedAt,
		)
		return err
	})
	if insertErr != nil {
		return nil, insertErr
	}
	return &p, nil
}

func (db *DB) UpdatePeerHealth(p *domain.Peer) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE peers SET health = ?, consecutive_failures = ?, consecutive_successes = ?,
			 opened_at = ?, last_success_at = ?, last_failure_at = ?, avg_response_millis = ?, sample_count = ?
			 WHERE id = ?`,
			string(p.Health), p.ConsecutiveFailures, p.ConsecutiveSuccesses,
			p.OpenedAt, p.LastSuccessAt, p.LastFailureAt, p.AvgResponseMillis, p.SampleCount, p.Id.String(),
		)
		return err
	})
}

func (db *DB) ResetPeer(domainName string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE peers SET health = 'healthy', consecutive_failures = 0, consecutive_successes = 0, opened_at = NULL WHERE domain = ?`,
			domainName,
		)
		return err
	})
}

// --- Observability store (C9) ---

func (db *DB) WriteCheckpoint(rec *domain.CheckpointRecord) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO checkpoint_records (id, request_id, checkpoint, status, activity_id, details, raw_body, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), rec.RequestID, rec.Checkpoint, rec.Status, rec.ActivityID, rec.Details, rec.RawBody, time.Now(),
		)
		return err
	})
}

func (db *DB) ReadCheckpointsByRequestID(requestID string) ([]domain.CheckpointRecord, error) {
	rows, err := db.db.Query(
		`SELECT id, request_id, checkpoint, status, activity_id, details, created_at
		 FROM checkpoint_records WHERE request_id = ? ORDER BY created_at ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CheckpointRecord
	for rows.Next() {
		var rec domain.CheckpointRecord
		var idStr string
		if err := rows.Scan(&idStr, &rec.RequestID, &rec.Checkpoint, &rec.Status, &rec.ActivityID, &rec.Details, &rec.CreatedAt); err != nil {
			return out, err
		}
		rec.Id, _ = uuid.Parse(idStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReadCheckpointsByActivityID returns every checkpoint recorded against
// activityID, across all requests that ever touched it (a redelivery
// reuses the same activity_id on a fresh request_id).
func (db *DB) ReadCheckpointsByActivityID(activityID string) ([]domain.CheckpointRecord, error) {
	rows, err := db.db.Query(
		`SELECT id, request_id, checkpoint, status, activity_id, details, created_at
		 FROM checkpoint_records WHERE activity_id = ? ORDER BY created_at ASC`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CheckpointRecord
	for rows.Next() {
		var rec domain.CheckpointRecord
		var idStr string
		if err := rows.Scan(&idStr, &rec.RequestID, &rec.Checkpoint, &rec.Status, &rec.ActivityID, &rec.Details, &rec.CreatedAt); err != nil {
			return out, err
		}
		rec.Id, _ = uuid.Parse(idStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReadFailedCheckpointsSince returns every error-status checkpoint
// written within the last window, newest first, for an operator
// scanning recent rejections.
func (db *DB) ReadFailedCheckpointsSince(window time.Duration) ([]domain.CheckpointRecord, error) {
	rows, err := db.db.Query(
		`SELECT id, request_id, checkpoint, status, activity_id, details, created_at
		 FROM checkpoint_records WHERE status = 'error' AND created_at >= ? ORDER BY created_at DESC`,
		time.Now().Add(-window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CheckpointRecord
	for rows.Next() {
		var rec domain.CheckpointRecord
		var idStr string
		if err := rows.Scan(&idStr, &rec.RequestID, &rec.Checkpoint, &rec.Status, &rec.ActivityID, &rec.Details, &rec.CreatedAt); err != nil {
			return out, err
		}
		rec.Id, _ = uuid.Parse(idStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReadIncompleteRequestIDs returns request IDs that never reached a
// successful "dispatched" checkpoint, and whose first checkpoint is
// older than minAge (so a request still in flight doesn't show up as
// stuck). Used by ObservabilityStore.StuckRequests.
func (db *DB) ReadIncompleteRequestIDs(minAge time.Duration) ([]string, error) {
	rows, err := db.db.Query(
		`SELECT request_id FROM checkpoint_records
		 GROUP BY request_id
		 HAVING MAX(CASE WHEN checkpoint = 'dispatched' AND status = 'ok' THEN 1 ELSE 0 END) = 0
		    AND MIN(created_at) < ?`,
		time.Now().Add(-minAge))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var requestID string
		if err := rows.Scan(&requestID); err != nil {
			return out, err
		}
		out = append(out, requestID)
	}
	return out, rows.Err()
}

// TrimCheckpoints enforces the §4.C9 retention policy: 24h for ok/ignored,
// 7d otherwise.
func (db *DB) TrimCheckpoints() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM checkpoint_records WHERE status IN ('ok','ignored') AND created_at < ?`, time.Now().Add(-24*time.Hour)); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM checkpoint_records WHERE status NOT IN ('ok','ignored') AND created_at < ?`, time.Now().Add(-7*24*time.Hour))
		return err
	})
}

// --- Suspense buffer ---

func (db *DB) CreateSuspenseEntry(e *domain.SuspenseEntry) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO suspense_entries (id, waiting_on_uri, activity_id, payload, replay_verb, created_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.Id.String(), e.WaitingOnURI, e.ActivityID, e.Payload, e.ReplayVerb, e.CreatedAt, e.ExpiresAt,
		)
		return err
	})
}

func (db *DB) ReadSuspenseEntriesByURI(waitingOnURI string) ([]domain.SuspenseEntry, error) {
	rows, err := db.db.Query(
		`SELECT id, waiting_on_uri, activity_id, payload, replay_verb, created_at, expires_at
		 FROM suspense_entries WHERE waiting_on_uri = ?`, waitingOnURI)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SuspenseEntry
	for rows.Next() {
		var e domain.SuspenseEntry
		var idStr string
		if err := rows.Scan(&idStr, &e.WaitingOnURI, &e.ActivityID, &e.Payload, &e.ReplayVerb, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return out, err
		}
		e.Id, _ = uuid.Parse(idStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *DB) DeleteSuspenseEntry(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM suspense_entries WHERE id = ?`, id.String())
		return err
	})
}

func (db *DB) DeleteExpiredSuspenseEntries() (int64, error) {
	var affected int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM suspense_entries WHERE expires_at < ?`, time.Now())
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

func (db *DB) SuspenseEntryCount() (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM suspense_entries`).Scan(&n)
	return n, err
}
