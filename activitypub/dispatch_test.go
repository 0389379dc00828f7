package activitypub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
	"github.com/google/uuid"
)

func testInboxDeps(mockDB *MockDatabase) *InboxDeps {
	return &InboxDeps{Database: mockDB, HTTPClient: nil}
}

func TestDispatchActivityRoutesKnownVerb(t *testing.T) {
	mockDB := NewMockDatabase()
	deps := testInboxDeps(mockDB)
	conf := &util.AppConfig{}

	body := []byte(`{"id":"https://remote.example/activities/1","actor":"https://remote.example/users/bob","object":"https://remote.example/notes/1"}`)
	handled, err := DispatchActivity("Dislike", "", body, "alice", &domain.RemoteAccount{ActorURI: "https://remote.example/users/bob"}, conf, deps)
	if !handled {
		t.Fatal("expected Dislike to be handled by the registry")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatchActivityUnknownVerbUnhandled(t *testing.T) {
	mockDB := NewMockDatabase()
	deps := testInboxDeps(mockDB)
	conf := &util.AppConfig{}

	handled, err := DispatchActivity("Question", "", []byte(`{}`), "alice", &domain.RemoteAccount{}, conf, deps)
	if handled {
		t.Error("expected an unregistered verb to be unhandled")
	}
	if err != nil {
		t.Errorf("expected no error for an unhandled verb, got: %v", err)
	}
}

func TestObjectTypeOf(t *testing.T) {
	raw := json.RawMessage(`{"type":"Note","content":"hi"}`)
	if got := objectTypeOf(raw); got != "Note" {
		t.Errorf("expected Note, got %s", got)
	}
	if got := objectTypeOf(json.RawMessage(`"https://remote.example/notes/1"`)); got != "" {
		t.Errorf("expected empty type for a bare URI string, got %s", got)
	}
}

func TestHandleAnnounceSingleObjectRecordsBoost(t *testing.T) {
	mockDB := NewMockDatabase()
	note := &domain.Note{Id: uuid.New(), CreatedBy: "alice", ObjectURI: "https://local.example/notes/1"}
	mockDB.AddNote(note)
	deps := testInboxDeps(mockDB)

	remoteActor := &domain.RemoteAccount{Id: uuid.New(), ActorURI: "https://remote.example/users/bob", LastFetchedAt: time.Now()}
	mockDB.AddRemoteAccount(remoteActor)
	body := []byte(`{"id":"https://remote.example/activities/announce-1","actor":"https://remote.example/users/bob","object":"https://local.example/notes/1"}`)

	if err := handleAnnounceActivityWithDeps(body, "alice", deps); err != nil {
		t.Fatalf("handleAnnounceActivityWithDeps: %v", err)
	}
	if len(mockDB.Boosts) != 1 {
		t.Fatalf("expected 1 boost recorded, got %d", len(mockDB.Boosts))
	}
}

func TestHandleAnnounceFEP4248BatchRecordsEachObject(t *testing.T) {
	mockDB := NewMockDatabase()
	note1 := &domain.Note{Id: uuid.New(), CreatedBy: "alice", ObjectURI: "https://local.example/notes/1"}
	note2 := &domain.Note{Id: uuid.New(), CreatedBy: "alice", ObjectURI: "https://local.example/notes/2"}
	mockDB.AddNote(note1)
	mockDB.AddNote(note2)
	deps := testInboxDeps(mockDB)

	remoteActor := &domain.RemoteAccount{Id: uuid.New(), ActorURI: "https://remote.example/users/bob", LastFetchedAt: time.Now()}
	mockDB.AddRemoteAccount(remoteActor)
	body := []byte(`{"id":"https://remote.example/activities/batch-1","actor":"https://remote.example/users/bob","object":["https://local.example/notes/1","https://local.example/notes/2"]}`)

	if err := handleAnnounceActivityWithDeps(body, "alice", deps); err != nil {
		t.Fatalf("handleAnnounceActivityWithDeps: %v", err)
	}
	if len(mockDB.Boosts) != 2 {
		t.Errorf("expected 2 boosts from the batch, got %d", len(mockDB.Boosts))
	}
}

func TestHandleAnnounceEmbeddedObjectExtractsID(t *testing.T) {
	mockDB := NewMockDatabase()
	note := &domain.Note{Id: uuid.New(), CreatedBy: "alice", ObjectURI: "https://local.example/notes/1"}
	mockDB.AddNote(note)
	deps := testInboxDeps(mockDB)

	remoteActor := &domain.RemoteAccount{Id: uuid.New(), ActorURI: "https://remote.example/users/bob", LastFetchedAt: time.Now()}
	mockDB.AddRemoteAccount(remoteActor)
	body := []byte(`{"id":"https://remote.example/activities/announce-2","actor":"https://remote.example/users/bob","object":{"type":"Note","id":"https://local.example/notes/1","content":"hi"}}`)

	if err := handleAnnounceActivityWithDeps(body, "alice", deps); err != nil {
		t.Fatalf("handleAnnounceActivityWithDeps: %v", err)
	}
	if len(mockDB.Boosts) != 1 {
		t.Errorf("expected 1 boost from the embedded-object form, got %d", len(mockDB.Boosts))
	}
}

func TestHandleAnnounceUnknownObjectIsSilentlyIgnored(t *testing.T) {
	mockDB := NewMockDatabase()
	deps := testInboxDeps(mockDB)

	remoteActor := &domain.RemoteAccount{Id: uuid.New(), ActorURI: "https://remote.example/users/bob", LastFetchedAt: time.Now()}
	mockDB.AddRemoteAccount(remoteActor)
	body := []byte(`{"id":"https://remote.example/activities/announce-3","actor":"https://remote.example/users/bob","object":"https://local.example/notes/unknown"}`)

	if err := handleAnnounceActivityWithDeps(body, "alice", deps); err != nil {
		t.Fatalf("expected no error for an uncached boosted object, got: %v", err)
	}
	if len(mockDB.Boosts) != 0 {
		t.Errorf("expected no boost recorded for an object not held locally, got %d", len(mockDB.Boosts))
	}
}

func TestHandleBlockDropsExistingFollow(t *testing.T) {
	mockDB := NewMockDatabase()
	local := &domain.Account{Id: uuid.New(), Username: "alice"}
	mockDB.Accounts[local.Id] = local
	mockDB.AccountsByUser["alice"] = local

	remoteActor := &domain.RemoteAccount{Id: uuid.New(), ActorURI: "https://remote.example/users/bob"}
	follow := &domain.Follow{
		Id:              uuid.New(),
		AccountId:       local.Id,
		TargetAccountId: remoteActor.Id,
		URI:             "https://local.example/follows/1",
		Accepted:        true,
		CreatedAt:       time.Now(),
	}
	if err := mockDB.CreateFollow(follow); err != nil {
		t.Fatalf("CreateFollow setup failed: %v", err)
	}

	deps := testInboxDeps(mockDB)
	conf := &util.AppConfig{}
	body := []byte(`{"id":"https://remote.example/activities/block-1","actor":"https://remote.example/users/bob","object":"https://local.example/users/alice"}`)

	if err := handleBlockActivityWithDeps(body, "alice", remoteActor, conf, deps); err != nil {
		t.Fatalf("handleBlockActivityWithDeps: %v", err)
	}

	if _, ok := mockDB.FollowsByURI["https://local.example/follows/1"]; ok {
		t.Error("expected the follow edge to be dropped after Block")
	}
}

func TestHandleMoveReturnsPolicyBlockedFedError(t *testing.T) {
	mockDB := NewMockDatabase()
	deps := testInboxDeps(mockDB)
	conf := &util.AppConfig{}
	remoteActor := &domain.RemoteAccount{ActorURI: "https://remote.example/users/bob"}

	err := handleMoveActivityWithDeps([]byte(`{}`), "alice", remoteActor, conf, deps)
	if err == nil {
		t.Fatal("expected Move to return an error")
	}
	if KindOf(err) != KindPolicyBlock {
		t.Errorf("expected Move's error to classify as policy-blocked, got %s", KindOf(err))
	}
}
