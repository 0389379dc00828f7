package activitypub

import (
	"testing"

	"github.com/deemkeen/stegodon/util"
)

func testSuspenseConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.SuspenseTTLMinutes = 60
	conf.Conf.SuspenseCap = 10
	return conf
}

func TestSuspenseBufferHoldAndRelease(t *testing.T) {
	mockDB := NewMockDatabase()
	buf := NewSuspenseBuffer(mockDB, testSuspenseConf())

	if err := buf.Hold("https://remote.example/notes/1", "act-reply", `{"type":"Create"}`, "Create"); err != nil {
		t.Fatalf("Hold: %v", err)
	}

	released, err := buf.Release("https://remote.example/notes/1")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if len(released) != 1 {
		t.Fatalf("expected 1 released entry, got %d", len(released))
	}
	if released[0].ActivityID != "act-reply" {
		t.Errorf("expected act-reply, got %s", released[0].ActivityID)
	}

	count, err := mockDB.SuspenseEntryCount()
	if err != nil {
		t.Fatalf("SuspenseEntryCount: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 entries remaining after release, got %d", count)
	}
}

func TestSuspenseBufferReleaseOnlyMatchingURI(t *testing.T) {
	mockDB := NewMockDatabase()
	buf := NewSuspenseBuffer(mockDB, testSuspenseConf())

	_ = buf.Hold("https://remote.example/notes/1", "act-1", "{}", "Create")
	_ = buf.Hold("https://remote.example/notes/2", "act-2", "{}", "Like")

	released, err := buf.Release("https://remote.example/notes/1")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if len(released) != 1 {
		t.Fatalf("expected only the matching entry to release, got %d", len(released))
	}

	count, _ := mockDB.SuspenseEntryCount()
	if count != 1 {
		t.Errorf("expected the non-matching entry to remain held, got %d entries", count)
	}
}

func TestSuspenseBufferDropsAtCapacity(t *testing.T) {
	mockDB := NewMockDatabase()
	conf := testSuspenseConf()
	conf.Conf.SuspenseCap = 2
	buf := NewSuspenseBuffer(mockDB, conf)

	_ = buf.Hold("https://remote.example/notes/1", "act-1", "{}", "Create")
	_ = buf.Hold("https://remote.example/notes/2", "act-2", "{}", "Create")
	_ = buf.Hold("https://remote.example/notes/3", "act-3", "{}", "Create")

	count, _ := mockDB.SuspenseEntryCount()
	if count != 2 {
		t.Errorf("expected holds past the cap to be dropped, got %d entries", count)
	}
}
