package activitypub

import (
	"log"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
	"github.com/google/uuid"
)

// SuspenseBuffer holds causally-dependent activities (a reply or Like
// whose target object hasn't arrived yet) until their prerequisite
// shows up or the entry expires (spec §9 Open Question: persistent,
// size-capped). Entries live only in the database, so a restart doesn't
// lose them; once the cap is reached, new holds are dropped.
type SuspenseBuffer struct {
	database Database
	ttl      time.Duration
	cap      int
}

func NewSuspenseBuffer(database Database, conf *util.AppConfig) *SuspenseBuffer {
	return &SuspenseBuffer{
		database: database,
		ttl:      time.Duration(conf.Conf.SuspenseTTLMinutes) * time.Minute,
		cap:      conf.Conf.SuspenseCap,
	}
}

// Hold suspends activityID, keyed on the prerequisite URI it is
// waiting on, until Release(waitingOnURI) is called or it expires.
func (s *SuspenseBuffer) Hold(waitingOnURI, activityID, payload, replayVerb string) error {
	if s.cap > 0 {
		n, err := s.database.SuspenseEntryCount()
		if err == nil && n >= s.cap {
			log.Printf("SuspenseBuffer: at capacity (%d), dropping hold for %s", s.cap, activityID)
			return nil
		}
	}
	now := time.Now()
	entry := &domain.SuspenseEntry{
		Id:           uuid.New(),
		WaitingOnURI: waitingOnURI,
		ActivityID:   activityID,
		Payload:      payload,
		ReplayVerb:   replayVerb,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	return s.database.CreateSuspenseEntry(entry)
}

// Release returns every entry waiting on waitingOnURI and removes them
// from the buffer, so the caller can replay them through dispatch.
func (s *SuspenseBuffer) Release(waitingOnURI string) ([]domain.SuspenseEntry, error) {
	entries, err := s.database.ReadSuspenseEntriesByURI(waitingOnURI)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := s.database.DeleteSuspenseEntry(e.Id); err != nil {
			log.Printf("SuspenseBuffer: failed to clear entry %s: %v", e.Id, err)
		}
	}
	return entries, nil
}

// SweepExpired deletes entries past their TTL. Intended to run on a
// ticker from the delivery worker's lifecycle loop alongside queue trim.
func (s *SuspenseBuffer) SweepExpired() {
	n, err := s.database.DeleteExpiredSuspenseEntries()
	if err != nil {
		log.Printf("SuspenseBuffer: sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("SuspenseBuffer: expired %d entries", n)
	}
}
