package activitypub

import (
	"time"

	"github.com/deemkeen/stegodon/db"
	"github.com/deemkeen/stegodon/domain"
	"github.com/google/uuid"
)

// DBWrapper wraps the real database to implement the Database interface.
// This adapter allows the production code to use the existing db.GetDB() singleton
// while also supporting dependency injection for tests.
type DBWrapper struct {
	db *db.DB
}

// NewDBWrapper creates a new database wrapper around the singleton database
func NewDBWrapper() *DBWrapper {
	return &DBWrapper{db: db.GetDB()}
}

// Account operations

func (w *DBWrapper) ReadAccByUsername(username string) (error, *domain.Account) {
	return w.db.ReadAccByUsername(username)
}

func (w *DBWrapper) ReadAccById(id uuid.UUID) (error, *domain.Account) {
	return w.db.ReadAccById(id)
}

// Remote account operations

func (w *DBWrapper) ReadRemoteAccountByURI(uri string) (error, *domain.RemoteAccount) {
	return w.db.ReadRemoteAccountByURI(uri)
}

func (w *DBWrapper) ReadRemoteAccountById(id uuid.UUID) (error, *domain.RemoteAccount) {
	return w.db.ReadRemoteAccountById(id)
}

func (w *DBWrapper) ReadRemoteAccountByActorURI(actorURI string) (error, *domain.RemoteAccount) {
	return w.db.ReadRemoteAccountByActorURI(actorURI)
}

func (w *DBWrapper) CreateRemoteAccount(acc *domain.RemoteAccount) error {
	return w.db.CreateRemoteAccount(acc)
}

func (w *DBWrapper) UpdateRemoteAccount(acc *domain.RemoteAccount) error {
	return w.db.UpdateRemoteAccount(acc)
}

func (w *DBWrapper) DeleteRemoteAccount(id uuid.UUID) error {
	return w.db.DeleteRemoteAccount(id)
}

// Follow operations

func (w *DBWrapper) CreateFollow(follow *domain.Follow) error {
	return w.db.CreateFollow(follow)
}

func (w *DBWrapper) ReadFollowByURI(uri string) (error, *domain.Follow) {
	return w.db.ReadFollowByURI(uri)
}

func (w *DBWrapper) ReadFollowByAccountIds(accountId, targetAccountId uuid.UUID) (error, *domain.Follow) {
	return w.db.ReadFollowByAccountIds(accountId, targetAccountId)
}

func (w *DBWrapper) DeleteFollowByURI(uri string) error {
	return w.db.DeleteFollowByURI(uri)
}

func (w *DBWrapper) AcceptFollowByURI(uri string) error {
	return w.db.AcceptFollowByURI(uri)
}

func (w *DBWrapper) ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	return w.db.ReadFollowersByAccountId(accountId)
}

func (w *DBWrapper) DeleteFollowsByRemoteAccountId(remoteAccountId uuid.UUID) error {
	return w.db.DeleteFollowsByRemoteAccountId(remoteAccountId)
}

// Activity operations

func (w *DBWrapper) CreateActivity(activity *domain.Activity) error {
	return w.db.CreateActivity(activity)
}

func (w *DBWrapper) UpdateActivity(activity *domain.Activity) error {
	return w.db.UpdateActivity(activity)
}

func (w *DBWrapper) ReadActivityByURI(uri string) (error, *domain.Activity) {
	return w.db.ReadActivityByURI(uri)
}

func (w *DBWrapper) ReadActivityByObjectURI(objectURI string) (error, *domain.Activity) {
	return w.db.ReadActivityByObjectURI(objectURI)
}

func (w *DBWrapper) DeleteActivity(id uuid.UUID) error {
	return w.db.DeleteActivity(id)
}

// Note operations

func (w *DBWrapper) ReadNoteByURI(objectURI string) (error, *domain.Note) {
	return w.db.ReadNoteByURI(objectURI)
}

// Mention operations

func (w *DBWrapper) CreateNoteMention(mention *domain.NoteMention) error {
	return w.db.CreateNoteMention(mention)
}

// Engagement count operations

func (w *DBWrapper) IncrementReplyCountByURI(parentURI string) error {
	return w.db.IncrementReplyCountByURI(parentURI)
}

// Like operations

func (w *DBWrapper) CreateLike(like *domain.Like) error {
	return w.db.CreateLike(like)
}

func (w *DBWrapper) HasLikeByURI(uri string) (bool, error) {
	return w.db.HasLikeByURI(uri)
}

func (w *DBWrapper) HasLike(accountId, noteId uuid.UUID) (bool, error) {
	return w.db.HasLike(accountId, noteId)
}

func (w *DBWrapper) ReadLikeByAccountAndNote(accountId, noteId uuid.UUID) (error, *domain.Like) {
	return w.db.ReadLikeByAccountAndNote(accountId, noteId)
}

func (w *DBWrapper) DeleteLikeByAccountAndNote(accountId, noteId uuid.UUID) error {
	return w.db.DeleteLikeByAccountAndNote(accountId, noteId)
}

func (w *DBWrapper) IncrementLikeCountByNoteId(noteId uuid.UUID) error {
	return w.db.IncrementLikeCountByNoteId(noteId)
}

func (w *DBWrapper) DecrementLikeCountByNoteId(noteId uuid.UUID) error {
	return w.db.DecrementLikeCountByNoteId(noteId)
}

// Boost operations

func (w *DBWrapper) CreateBoost(boost *domain.Boost) error {
	return w.db.CreateBoost(boost)
}

func (w *DBWrapper) HasBoost(accountId, noteId uuid.UUID) (bool, error) {
	return w.db.HasBoost(accountId, noteId)
}

func (w *DBWrapper) DeleteBoostByAccountAndNote(accountId, noteId uuid.UUID) error {
	return w.db.DeleteBoostByAccountAndNote(accountId, noteId)
}

func (w *DBWrapper) IncrementBoostCountByNoteId(noteId uuid.UUID) error {
	return w.db.IncrementBoostCountByNoteId(noteId)
}

func (w *DBWrapper) DecrementBoostCountByNoteId(noteId uuid.UUID) error {
	return w.db.DecrementBoostCountByNoteId(noteId)
}

// Delivery queue operations

func (w *DBWrapper) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	return w.db.EnqueueDelivery(item)
}

func (w *DBWrapper) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	return w.db.ReadPendingDeliveries(limit)
}

func (w *DBWrapper) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return w.db.UpdateDeliveryAttempt(id, attempts, nextRetry)
}

func (w *DBWrapper) DeleteDelivery(id uuid.UUID) error {
	return w.db.DeleteDelivery(id)
}

// Relay operations

func (w *DBWrapper) CreateRelay(relay *domain.Relay) error {
	return w.db.CreateRelay(relay)
}

func (w *DBWrapper) ReadActiveRelays() (error, *[]domain.Relay) {
	return w.db.ReadActiveRelays()
}

func (w *DBWrapper) ReadActiveUnpausedRelays() (error, *[]domain.Relay) {
	return w.db.ReadActiveUnpausedRelays()
}

func (w *DBWrapper) ReadRelayByActorURI(actorURI string) (error, *domain.Relay) {
	return w.db.ReadRelayByActorURI(actorURI)
}

func (w *DBWrapper) UpdateRelayStatus(id uuid.UUID, status string, acceptedAt *time.Time) error {
	return w.db.UpdateRelayStatus(id, status, acceptedAt)
}

func (w *DBWrapper) DeleteRelay(id uuid.UUID) error {
	return w.db.DeleteRelay(id)
}

// Notification operations

func (w *DBWrapper) CreateNotification(notification *domain.Notification) error {
	return w.db.CreateNotification(notification)
}

// Activity queue operations (C4)

func (w *DBWrapper) EnqueueMessage(msg *domain.QueuedMessage) error {
	return w.db.EnqueueMessage(msg)
}

func (w *DBWrapper) ClaimDueMessages(priority domain.Priority, group, consumer string, limit int, claimTimeout time.Duration) ([]domain.QueuedMessage, error) {
	return w.db.ClaimDueMessages(priority, group, consumer, limit, claimTimeout)
}

func (w *DBWrapper) AckMessage(id uuid.UUID) error {
	return w.db.AckMessage(id)
}

func (w *DBWrapper) ScheduleRetry(id uuid.UUID, nextEligible time.Time, lastErr string) error {
	return w.db.ScheduleRetry(id, nextEligible, lastErr)
}

func (w *DBWrapper) DeadLetterMessage(msg domain.QueuedMessage, lastErr string) error {
	return w.db.DeadLetterMessage(msg, lastErr)
}

func (w *DBWrapper) TrimCompletedMessages(ttl time.Duration) (int64, error) {
	return w.db.TrimCompletedMessages(ttl)
}

func (w *DBWrapper) StreamDepth(priority domain.Priority, group string) (int, error) {
	return w.db.StreamDepth(priority, group)
}

// Peer / circuit breaker operations (C8)

func (w *DBWrapper) GetOrCreatePeer(domainName string) (*domain.Peer, error) {
	return w.db.GetOrCreatePeer(domainName)
}

func (w *DBWrapper) UpdatePeerHealth(p *domain.Peer) error {
	return w.db.UpdatePeerHealth(p)
}

func (w *DBWrapper) ResetPeer(domainName string) error {
	return w.db.ResetPeer(domainName)
}

// Observability store operations (C9)

func (w *DBWrapper) WriteCheckpoint(rec *domain.CheckpointRecord) error {
	return w.db.WriteCheckpoint(rec)
}

func (w *DBWrapper) ReadCheckpointsByRequestID(requestID string) ([]domain.CheckpointRecord, error) {
	return w.db.ReadCheckpointsByRequestID(requestID)
}

func (w *DBWrapper) ReadCheckpointsByActivityID(activityID string) ([]domain.CheckpointRecord, error) {
	return w.db.ReadCheckpointsByActivityID(activityID)
}

func (w *DBWrapper) ReadFailedCheckpointsSince(window time.Duration) ([]domain.CheckpointRecord, error) {
	return w.db.ReadFailedCheckpointsSince(window)
}

func (w *DBWrapper) ReadIncompleteRequestIDs(minAge time.Duration) ([]string, error) {
	return w.db.ReadIncompleteRequestIDs(minAge)
}

func (w *DBWrapper) TrimCheckpoints() error {
	return w.db.TrimCheckpoints()
}

// Suspense buffer operations

func (w *DBWrapper) CreateSuspenseEntry(e *domain.SuspenseEntry) error {
	return w.db.CreateSuspenseEntry(e)
}

func (w *DBWrapper) ReadSuspenseEntriesByURI(waitingOnURI string) ([]domain.SuspenseEntry, error) {
	return w.db.ReadSuspenseEntriesByURI(waitingOnURI)
}

func (w *DBWrapper) DeleteSuspenseEntry(id uuid.UUID) error {
	return w.db.DeleteSuspenseEntry(id)
}

func (w *DBWrapper) DeleteExpiredSuspenseEntries() (int64, error) {
	return w.db.DeleteExpiredSuspenseEntries()
}

func (w *DBWrapper) SuspenseEntryCount() (int, error) {
	return w.db.SuspenseEntryCount()
}

// Community (Group actor) operations

func (w *DBWrapper) CreateCommunity(c *domain.Community) error {
	return w.db.CreateCommunity(c)
}

func (w *DBWrapper) ReadCommunityByName(name string) (error, *domain.Community) {
	return w.db.ReadCommunityByName(name)
}

func (w *DBWrapper) ReadCommunityById(id uuid.UUID) (error, *domain.Community) {
	return w.db.ReadCommunityById(id)
}

func (w *DBWrapper) AddCommunityModerator(m *domain.CommunityModerator) error {
	return w.db.AddCommunityModerator(m)
}

func (w *DBWrapper) IsCommunityModerator(communityId, accountId uuid.UUID) (bool, error) {
	return w.db.IsCommunityModerator(communityId, accountId)
}

func (w *DBWrapper) ReadCommunityModeratorActorURIs(communityId uuid.UUID, sslDomain string) ([]string, error) {
	return w.db.ReadCommunityModeratorActorURIs(communityId, sslDomain)
}

func (w *DBWrapper) AddFeaturedPost(f *domain.FeaturedPost) error {
	return w.db.AddFeaturedPost(f)
}

func (w *DBWrapper) RemoveFeaturedPost(communityId uuid.UUID, objectURI string) error {
	return w.db.RemoveFeaturedPost(communityId, objectURI)
}

func (w *DBWrapper) ReadFeaturedPosts(communityId uuid.UUID) ([]domain.FeaturedPost, error) {
	return w.db.ReadFeaturedPosts(communityId)
}

func (w *DBWrapper) AddCommunityFollower(communityId uuid.UUID, actorURI string) error {
	return w.db.AddCommunityFollower(communityId, actorURI)
}

func (w *DBWrapper) RemoveCommunityFollower(communityId uuid.UUID, actorURI string) error {
	return w.db.RemoveCommunityFollower(communityId, actorURI)
}

func (w *DBWrapper) ReadCommunityFollowers(communityId uuid.UUID) ([]string, error) {
	return w.db.ReadCommunityFollowers(communityId)
}

// Ensure DBWrapper implements Database interface
var _ Database = (*DBWrapper)(nil)
