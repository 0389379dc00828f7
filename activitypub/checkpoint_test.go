package activitypub

import (
	"testing"

	"github.com/deemkeen/stegodon/util"
)

func TestObservabilityStoreRecordAndTimeline(t *testing.T) {
	mockDB := NewMockDatabase()
	conf := &util.AppConfig{}
	store := NewObservabilityStore(mockDB, conf)

	store.Record("req-1", CheckpointReceived, StatusOK, "act-1", "", nil)
	store.Record("req-1", CheckpointParsed, StatusOK, "act-1", "", nil)
	store.Record("req-2", CheckpointReceived, StatusError, "act-2", "boom", nil)

	timeline, err := store.Timeline("req-1")
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(timeline) != 2 {
		t.Fatalf("expected 2 checkpoints for req-1, got %d", len(timeline))
	}
}

func TestObservabilityStoreRawBodyOnlyPersistedWhenDebugAndNotOK(t *testing.T) {
	mockDB := NewMockDatabase()
	conf := &util.AppConfig{}
	conf.Conf.DebugObservability = true
	store := NewObservabilityStore(mockDB, conf)

	store.Record("req-ok", CheckpointReceived, StatusOK, "act-1", "", []byte(`{"secret":true}`))
	store.Record("req-err", CheckpointReceived, StatusError, "act-2", "boom", []byte(`{"secret":true}`))

	okTimeline, _ := store.Timeline("req-ok")
	if len(okTimeline) != 1 || okTimeline[0].RawBody != "" {
		t.Error("expected no raw body persisted for an ok checkpoint even with debug enabled")
	}

	errTimeline, _ := store.Timeline("req-err")
	if len(errTimeline) != 1 || errTimeline[0].RawBody == "" {
		t.Error("expected raw body persisted for a non-ok checkpoint with debug enabled")
	}
}

func TestObservabilityStoreRawBodyWithheldWithoutDebugFlag(t *testing.T) {
	mockDB := NewMockDatabase()
	conf := &util.AppConfig{} // DebugObservability defaults to false
	store := NewObservabilityStore(mockDB, conf)

	store.Record("req-err", CheckpointReceived, StatusError, "act-1", "boom", []byte(`{"secret":true}`))

	timeline, _ := store.Timeline("req-err")
	if len(timeline) != 1 || timeline[0].RawBody != "" {
		t.Error("expected raw body withheld when DebugObservability is disabled, regardless of status")
	}
}
