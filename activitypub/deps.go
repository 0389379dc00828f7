package activitypub

import (
	"net/http"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/google/uuid"
)

// Database defines the database operations required by the ActivityPub package.
// This interface allows for dependency injection and testing with mock implementations.
type Database interface {
	// Account operations
	ReadAccByUsername(username string) (error, *domain.Account)
	ReadAccById(id uuid.UUID) (error, *domain.Account)

	// Remote account operations
	ReadRemoteAccountByURI(uri string) (error, *domain.RemoteAccount)
	ReadRemoteAccountById(id uuid.UUID) (error, *domain.RemoteAccount)
	ReadRemoteAccountByActorURI(actorURI string) (error, *domain.RemoteAccount)
	CreateRemoteAccount(acc *domain.RemoteAccount) error
	UpdateRemoteAccount(acc *domain.RemoteAccount) error
	DeleteRemoteAccount(id uuid.UUID) error

	// Follow operations
	CreateFollow(follow *domain.Follow) error
	ReadFollowByURI(uri string) (error, *domain.Follow)
	ReadFollowByAccountIds(accountId, targetAccountId uuid.UUID) (error, *domain.Follow)
	DeleteFollowByURI(uri string) error
	AcceptFollowByURI(uri string) error
	ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow)
	DeleteFollowsByRemoteAccountId(remoteAccountId uuid.UUID) error

	// Activity operations
	CreateActivity(activity *domain.Activity) error
	UpdateActivity(activity *domain.Activity) error
	ReadActivityByURI(uri string) (error, *domain.Activity)
	ReadActivityByObjectURI(objectURI string) (error, *domain.Activity)
	DeleteActivity(id uuid.UUID) error

	// Note operations (for replies)
	ReadNoteByURI(objectURI string) (error, *domain.Note)

	// Mention operations
	CreateNoteMention(mention *domain.NoteMention) error

	// Engagement count operations
	IncrementReplyCountByURI(parentURI string) error

	// Like operations
	CreateLike(like *domain.Like) error
	HasLikeByURI(uri string) (bool, error)
	HasLike(accountId, noteId uuid.UUID) (bool, error)
	ReadLikeByAccountAndNote(accountId, noteId uuid.UUID) (error, *domain.Like)
	DeleteLikeByAccountAndNote(accountId, noteId uuid.UUID) error
	IncrementLikeCountByNoteId(noteId uuid.UUID) error
	DecrementLikeCountByNoteId(noteId uuid.UUID) error

	// Boost operations
	CreateBoost(boost *domain.Boost) error
	HasBoost(accountId, noteId uuid.UUID) (bool, error)
	DeleteBoostByAccountAndNote(accountId, noteId uuid.UUID) error
	IncrementBoostCountByNoteId(noteId uuid.UUID) error
	DecrementBoostCountByNoteId(noteId uuid.UUID) error

	// Relay operations
	CreateRelay(relay *domain.Relay) error
	ReadActiveRelays() (error, *[]domain.Relay)
	ReadActiveUnpausedRelays() (error, *[]domain.Relay)
	ReadRelayByActorURI(actorURI string) (error, *domain.Relay)
	UpdateRelayStatus(id uuid.UUID, status string, acceptedAt *time.Time) error
	DeleteRelay(id uuid.UUID) error

	// Notification operations
	CreateNotification(notification *domain.Notification) error

	// Delivery queue operations
	EnqueueDelivery(item *domain.DeliveryQueueItem) error
	ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem)
	UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error
	DeleteDelivery(id uuid.UUID) error

	// Activity queue operations (C4)
	EnqueueMessage(msg *domain.QueuedMessage) error
	ClaimDueMessages(priority domain.Priority, group, consumer string, limit int, claimTimeout time.Duration) ([]domain.QueuedMessage, error)
	AckMessage(id uuid.UUID) error
	ScheduleRetry(id uuid.UUID, nextEligible time.Time, lastErr string) error
	DeadLetterMessage(msg domain.QueuedMessage, lastErr string) error
	TrimCompletedMessages(ttl time.Duration) (int64, error)
	StreamDepth(priority domain.Priority, group string) (int, error)

	// Peer / circuit breaker operations (C8)
	GetOrCreatePeer(domainName string) (*domain.Peer, error)
	UpdatePeerHealth(p *domain.Peer) error
	ResetPeer(domainName string) error

	// Observability store operations (C9)
	WriteCheckpoint(rec *domain.CheckpointRecord) error
	ReadCheckpointsByRequestID(requestID string) ([]domain.CheckpointRecord, error)
	ReadCheckpointsByActivityID(activityID string) ([]domain.CheckpointRecord, error)
	ReadFailedCheckpointsSince(window time.Duration) ([]domain.CheckpointRecord, error)
	ReadIncompleteRequestIDs(minAge time.Duration) ([]string, error)
	TrimCheckpoints() error

	// Suspense buffer operations
	CreateSuspenseEntry(e *domain.SuspenseEntry) error
	ReadSuspenseEntriesByURI(waitingOnURI string) ([]domain.SuspenseEntry, error)
	DeleteSuspenseEntry(id uuid.UUID) error
	DeleteExpiredSuspenseEntries() (int64, error)
	SuspenseEntryCount() (int, error)

	// Community (Group actor) operations
	CreateCommunity(c *domain.Community) error
	ReadCommunityByName(name string) (error, *domain.Community)
	ReadCommunityById(id uuid.UUID) (error, *domain.Community)
	AddCommunityModerator(m *domain.CommunityModerator) error
	IsCommunityModerator(communityId, accountId uuid.UUID) (bool, error)
	ReadCommunityModeratorActorURIs(communityId uuid.UUID, sslDomain string) ([]string, error)
	AddFeaturedPost(f *domain.FeaturedPost) error
	RemoveFeaturedPost(communityId uuid.UUID, objectURI string) error
	ReadFeaturedPosts(communityId uuid.UUID) ([]domain.FeaturedPost, error)
	AddCommunityFollower(communityId uuid.UUID, actorURI string) error
	RemoveCommunityFollower(communityId uuid.UUID, actorURI string) error
	ReadCommunityFollowers(communityId uuid.UUID) ([]string, error)
}

// HTTPClient defines the HTTP client operations required by the ActivityPub package.
// This interface allows for dependency injection and testing with mock implementations.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultHTTPClient is the default HTTP client used in production
type DefaultHTTPClient struct {
	client *http.Client
}

// NewDefaultHTTPClient creates a new default HTTP client with the specified timeout
func NewDefaultHTTPClient(timeout time.Duration) *DefaultHTTPClient {
	return &DefaultHTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Do executes the HTTP request
func (c *DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}
