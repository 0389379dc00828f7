package activitypub

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
	"github.com/google/uuid"
)

func testCommunityConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.SslDomain = "local.example.com"
	return conf
}

func TestHandleCommunityInbox_FollowSubscribesAndAccepts(t *testing.T) {
	mockDB := NewMockDatabase()
	mockHTTP := NewMockHTTPClient()
	conf := testCommunityConf()
	conf.Conf.AllowlistUnsigned = []string{"https://remote.example.com/users/bob|Follow"}

	community := &domain.Community{
		Id:            uuid.New(),
		Name:          "golang",
		DisplayName:   "Golang",
		PublicKeyPem:  "pubkey",
		PrivateKeyPem: testCommunityPrivateKeyPem(t),
	}
	if err := mockDB.CreateCommunity(community); err != nil {
		t.Fatalf("CreateCommunity: %v", err)
	}

	mockDB.AddRemoteAccount(&domain.RemoteAccount{
		Id:            uuid.New(),
		ActorURI:      "https://remote.example.com/users/bob",
		InboxURI:      "https://remote.example.com/users/bob/inbox",
		LastFetchedAt: time.Now(),
	})

	mockHTTP.DefaultResponse = &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewReader([]byte("{}"))),
		Header:     make(http.Header),
	}

	deps := &InboxDeps{Database: mockDB, HTTPClient: mockHTTP}

	body := []byte(`{"id":"https://remote.example.com/follows/1","type":"Follow","actor":"https://remote.example.com/users/bob","object":"https://local.example.com/c/golang"}`)
	req := httptest.NewRequest("POST", "/c/golang/inbox", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	HandleCommunityInboxWithDeps(rr, req, "golang", conf, deps)

	if rr.Code != 202 {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}

	followers, err := mockDB.ReadCommunityFollowers(community.Id)
	if err != nil {
		t.Fatalf("ReadCommunityFollowers: %v", err)
	}
	if len(followers) != 1 || followers[0] != "https://remote.example.com/users/bob" {
		t.Fatalf("expected bob to be a follower, got %v", followers)
	}
}

func TestHandleCommunityInbox_AddRequiresModerator(t *testing.T) {
	mockDB := NewMockDatabase()
	conf := testCommunityConf()
	conf.Conf.AllowlistUnsigned = []string{"https://local.example.com/users/alice|Add"}

	community := &domain.Community{Id: uuid.New(), Name: "golang", PrivateKeyPem: testCommunityPrivateKeyPem(t)}
	if err := mockDB.CreateCommunity(community); err != nil {
		t.Fatalf("CreateCommunity: %v", err)
	}

	alice := &domain.Account{Id: uuid.New(), Username: "alice"}
	mockDB.AddAccount(alice)
	mockDB.AddRemoteAccount(&domain.RemoteAccount{
		Id:            uuid.New(),
		ActorURI:      "https://local.example.com/users/alice",
		LastFetchedAt: time.Now(),
	})

	deps := &InboxDeps{Database: mockDB, HTTPClient: NewMockHTTPClient()}

	body := []byte(`{"type":"Add","actor":"https://local.example.com/users/alice","object":"https://remote.example.com/notes/1","target":"https://local.example.com/c/golang/featured"}`)
	req := httptest.NewRequest("POST", "/c/golang/inbox", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	HandleCommunityInboxWithDeps(rr, req, "golang", conf, deps)

	// Not a moderator yet: rejected internally, but the handler still
	// replies 202 (accept-and-log, matching the per-actor inbox's style)
	// and the object must not have been featured.
	if rr.Code != 202 {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	featured, err := mockDB.ReadFeaturedPosts(community.Id)
	if err != nil {
		t.Fatalf("ReadFeaturedPosts: %v", err)
	}
	if len(featured) != 0 {
		t.Fatalf("expected no featured posts before moderator grant, got %v", featured)
	}

	if err := mockDB.AddCommunityModerator(&domain.CommunityModerator{Id: uuid.New(), CommunityId: community.Id, AccountId: alice.Id}); err != nil {
		t.Fatalf("AddCommunityModerator: %v", err)
	}

	rr2 := httptest.NewRecorder()
	req2 := httptest.NewRequest("POST", "/c/golang/inbox", bytes.NewReader(body))
	HandleCommunityInboxWithDeps(rr2, req2, "golang", conf, deps)

	featured, err = mockDB.ReadFeaturedPosts(community.Id)
	if err != nil {
		t.Fatalf("ReadFeaturedPosts: %v", err)
	}
	if len(featured) != 1 || featured[0].ObjectURI != "https://remote.example.com/notes/1" {
		t.Fatalf("expected object to be featured after moderator grant, got %v", featured)
	}
}

func testCommunityPrivateKeyPem(t *testing.T) string {
	t.Helper()
	keypair, err := GenerateTestKeyPair()
	if err != nil {
		t.Fatalf("GenerateTestKeyPair: %v", err)
	}
	return keypair.PrivatePEM
}
