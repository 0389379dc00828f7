package activitypub

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/google/uuid"
)

// MockDatabase is an in-memory mock implementation of the Database interface for testing.
// It stores data in maps and provides full CRUD operations without requiring a real database.
type MockDatabase struct {
	mu sync.RWMutex

	// Storage maps
	Accounts        map[uuid.UUID]*domain.Account
	AccountsByUser  map[string]*domain.Account
	RemoteAccounts  map[uuid.UUID]*domain.RemoteAccount
	RemoteByURI     map[string]*domain.RemoteAccount
	RemoteByActor   map[string]*domain.RemoteAccount
	Follows         map[uuid.UUID]*domain.Follow
	FollowsByURI    map[string]*domain.Follow
	Activities      map[uuid.UUID]*domain.Activity
	ActivitiesByObj map[string]*domain.Activity
	ActivitiesByURI map[string]*domain.Activity
	DeliveryQueue   map[uuid.UUID]*domain.DeliveryQueueItem
	Notes           map[uuid.UUID]*domain.Note
	NotesByURI      map[string]*domain.Note
	Mentions        []*domain.NoteMention
	Likes           map[uuid.UUID]*domain.Like
	Boosts          map[uuid.UUID]*domain.Boost
	Relays          map[uuid.UUID]*domain.Relay
	Notifications   []*domain.Notification

	QueuedMessages map[uuid.UUID]*domain.QueuedMessage
	DLQMessages    []*domain.DLQMessage
	Peers          map[string]*domain.Peer
	Checkpoints    []domain.CheckpointRecord
	Suspense       map[uuid.UUID]*domain.SuspenseEntry

	Communities         map[uuid.UUID]*domain.Community
	CommunitiesByName   map[string]*domain.Community
	CommunityModerators []*domain.CommunityModerator
	FeaturedPosts       []*domain.FeaturedPost
	CommunityFollowers  []string // "communityId|actorURI"

	// Call tracking for assertions
	IncrementReplyCountCalls []string
	IncrementLikeCountCalls  []uuid.UUID
	IncrementBoostCountCalls []uuid.UUID
	DecrementLikeCountCalls  []uuid.UUID
	DecrementBoostCountCalls []uuid.UUID

	// Error injection for testing error handling
	ForceError error
}

// NewMockDatabase creates a new mock database with initialized maps
func NewMockDatabase() *MockDatabase {
	return &MockDatabase{
		Accounts:        make(map[uuid.UUID]*domain.Account),
		AccountsByUser:  make(map[string]*domain.Account),
		RemoteAccounts:  make(map[uuid.UUID]*domain.RemoteAccount),
		RemoteByURI:     make(map[string]*domain.RemoteAccount),
		RemoteByActor:   make(map[string]*domain.RemoteAccount),
		Follows:         make(map[uuid.UUID]*domain.Follow),
		FollowsByURI:    make(map[string]*domain.Follow),
		Activities:      make(map[uuid.UUID]*domain.Activity),
		ActivitiesByObj: make(map[string]*domain.Activity),
		ActivitiesByURI: make(map[string]*domain.Activity),
		DeliveryQueue:   make(map[uuid.UUID]*domain.DeliveryQueueItem),
		Notes:           make(map[uuid.UUID]*domain.Note),
		NotesByURI:      make(map[string]*domain.Note),
		Likes:           make(map[uuid.UUID]*domain.Like),
		Boosts:          make(map[uuid.UUID]*domain.Boost),
		Relays:          make(map[uuid.UUID]*domain.Relay),
		QueuedMessages:  make(map[uuid.UUID]*domain.QueuedMessage),
		Peers:           make(map[string]*domain.Peer),
		Suspense:        make(map[uuid.UUID]*domain.SuspenseEntry),
		Communities:     make(map[uuid.UUID]*domain.Community),
		CommunitiesByName: make(map[string]*domain.Community),
	}
}

// SetForceError sets an error to be returned by all operations
func (m *MockDatabase) SetForceError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ForceError = err
}

// AddAccount adds an account to the mock database
func (m *MockDatabase) AddAccount(acc *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Accounts[acc.Id] = acc
	m.AccountsByUser[acc.Username] = acc
}

// AddRemoteAccount adds a remote account to the mock database
func (m *MockDatabase) AddRemoteAccount(acc *domain.RemoteAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoteAccounts[acc.Id] = acc
	m.RemoteByURI[acc.ActorURI] = acc
	m.RemoteByActor[acc.ActorURI] = acc
}

// AddFollow adds a follow relationship to the mock database
func (m *MockDatabase) AddFollow(follow *domain.Follow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Follows[follow.Id] = follow
	if follow.URI != "" {
		m.FollowsByURI[follow.URI] = follow
	}
}

// AddActivity adds an activity to the mock database
func (m *MockDatabase) AddActivity(activity *domain.Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Activities[activity.Id] = activity
	if activity.ObjectURI != "" {
		m.ActivitiesByObj[activity.ObjectURI] = activity
	}
	if activity.ActivityURI != "" {
		m.ActivitiesByURI[activity.ActivityURI] = activity
	}
}

// AddDeliveryQueueItem adds a delivery queue item to the mock database
func (m *MockDatabase) AddDeliveryQueueItem(item *domain.DeliveryQueueItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeliveryQueue[item.Id] = item
}

// Account operations

func (m *MockDatabase) ReadAccByUsername(username string) (error, *domain.Account) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	acc, ok := m.AccountsByUser[username]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, acc
}

func (m *MockDatabase) ReadAccById(id uuid.UUID) (error, *domain.Account) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	acc, ok := m.Accounts[id]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, acc
}

// Remote account operations

func (m *MockDatabase) ReadRemoteAccountByURI(uri string) (error, *domain.RemoteAccount) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	acc, ok := m.RemoteByURI[uri]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, acc
}

func (m *MockDatabase) ReadRemoteAccountById(id uuid.UUID) (error, *domain.RemoteAccount) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	acc, ok := m.RemoteAccounts[id]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, acc
}

func (m *MockDatabase) ReadRemoteAccountByActorURI(actorURI string) (error, *domain.RemoteAccount) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	acc, ok := m.RemoteByActor[actorURI]
	if !ok {
		return nil, nil
	}
	return nil, acc
}

func (m *MockDatabase) CreateRemoteAccount(acc *domain.RemoteAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.RemoteAccounts[acc.Id] = acc
	m.RemoteByURI[acc.ActorURI] = acc
	m.RemoteByActor[acc.ActorURI] = acc
	return nil
}

func (m *MockDatabase) UpdateRemoteAccount(acc *domain.RemoteAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.RemoteAccounts[acc.Id] = acc
	m.RemoteByURI[acc.ActorURI] = acc
	m.RemoteByActor[acc.ActorURI] = acc
	return nil
}

func (m *MockDatabase) DeleteRemoteAccount(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if acc, ok := m.RemoteAccounts[id]; ok {
		delete(m.RemoteByURI, acc.ActorURI)
		delete(m.RemoteByActor, acc.ActorURI)
	}
	delete(m.RemoteAccounts, id)
	return nil
}

// Follow operations

func (m *MockDatabase) CreateFollow(follow *domain.Follow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Follows[follow.Id] = follow
	if follow.URI != "" {
		m.FollowsByURI[follow.URI] = follow
	}
	return nil
}

func (m *MockDatabase) ReadFollowByURI(uri string) (error, *domain.Follow) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	follow, ok := m.FollowsByURI[uri]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, follow
}

func (m *MockDatabase) ReadFollowByAccountIds(accountId, targetAccountId uuid.UUID) (error, *domain.Follow) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	for _, follow := range m.Follows {
		if follow.AccountId == accountId && follow.TargetAccountId == targetAccountId {
			return nil, follow
		}
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) DeleteFollowByURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if follow, ok := m.FollowsByURI[uri]; ok {
		delete(m.Follows, follow.Id)
	}
	delete(m.FollowsByURI, uri)
	return nil
}

func (m *MockDatabase) AcceptFollowByURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if follow, ok := m.FollowsByURI[uri]; ok {
		follow.Accepted = true
	}
	return nil
}

func (m *MockDatabase) ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	var followers []domain.Follow
	for _, follow := range m.Follows {
		if follow.TargetAccountId == accountId && follow.Accepted {
			followers = append(followers, *follow)
		}
	}
	return nil, &followers
}

func (m *MockDatabase) DeleteFollowsByRemoteAccountId(remoteAccountId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for id, follow := range m.Follows {
		if follow.AccountId == remoteAccountId || follow.TargetAccountId == remoteAccountId {
			if follow.URI != "" {
				delete(m.FollowsByURI, follow.URI)
			}
			delete(m.Follows, id)
		}
	}
	return nil
}

// Activity operations

func (m *MockDatabase) CreateActivity(activity *domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if activity.ActivityURI != "" {
		if _, exists := m.ActivitiesByURI[activity.ActivityURI]; exists {
			return fmt.Errorf("UNIQUE constraint failed: activities.activity_uri")
		}
	}
	m.Activities[activity.Id] = activity
	if activity.ActivityURI != "" {
		m.ActivitiesByURI[activity.ActivityURI] = activity
	}
	if activity.ObjectURI != "" {
		// Only set if not already present (first activity with this ObjectURI wins)
		// This matches real DB behavior where ReadActivityByObjectURI returns the first match
		if _, exists := m.ActivitiesByObj[activity.ObjectURI]; !exists {
			m.ActivitiesByObj[activity.ObjectURI] = activity
		}
	}
	return nil
}

func (m *MockDatabase) ReadActivityByURI(uri string) (error, *domain.Activity) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	activity, ok := m.ActivitiesByURI[uri]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, activity
}

func (m *MockDatabase) UpdateActivity(activity *domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Activities[activity.Id] = activity
	if activity.ObjectURI != "" {
		m.ActivitiesByObj[activity.ObjectURI] = activity
	}
	return nil
}

func (m *MockDatabase) ReadActivityByObjectURI(objectURI string) (error, *domain.Activity) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	activity, ok := m.ActivitiesByObj[objectURI]
	if !ok {
		return nil, nil
	}
	return nil, activity
}

func (m *MockDatabase) DeleteActivity(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if activity, ok := m.Activities[id]; ok {
		delete(m.ActivitiesByObj, activity.ObjectURI)
		delete(m.ActivitiesByURI, activity.ActivityURI)
	}
	delete(m.Activities, id)
	return nil
}

// Delivery queue operations

func (m *MockDatabase) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.DeliveryQueue[item.Id] = item
	return nil
}

func (m *MockDatabase) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	var items []domain.DeliveryQueueItem
	now := time.Now()
	count := 0
	for _, item := range m.DeliveryQueue {
		if item.NextRetryAt.Before(now) || item.NextRetryAt.Equal(now) {
			items = append(items, *item)
			count++
			if count >= limit {
				break
			}
		}
	}
	return nil, &items
}

func (m *MockDatabase) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if item, ok := m.DeliveryQueue[id]; ok {
		item.Attempts = attempts
		item.NextRetryAt = nextRetry
	}
	return nil
}

func (m *MockDatabase) DeleteDelivery(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	delete(m.DeliveryQueue, id)
	return nil
}

// Note operations

func (m *MockDatabase) ReadNoteByURI(objectURI string) (error, *domain.Note) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	note, ok := m.NotesByURI[objectURI]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, note
}

// AddNote adds a note to the mock database
func (m *MockDatabase) AddNote(note *domain.Note) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notes[note.Id] = note
	if note.ObjectURI != "" {
		m.NotesByURI[note.ObjectURI] = note
	}
}

// Mention operations

func (m *MockDatabase) CreateNoteMention(mention *domain.NoteMention) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Mentions = append(m.Mentions, mention)
	return nil
}

// Engagement count operations

func (m *MockDatabase) IncrementReplyCountByURI(parentURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IncrementReplyCountCalls = append(m.IncrementReplyCountCalls, parentURI)
	if m.ForceError != nil {
		return m.ForceError
	}
	return nil
}

// Like operations

func (m *MockDatabase) CreateLike(like *domain.Like) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Likes[like.Id] = like
	return nil
}

func (m *MockDatabase) HasLikeByURI(uri string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return false, m.ForceError
	}
	for _, l := range m.Likes {
		if l.URI == uri {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockDatabase) HasLike(accountId, noteId uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return false, m.ForceError
	}
	for _, l := range m.Likes {
		if l.AccountId == accountId && l.NoteId == noteId {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockDatabase) ReadLikeByAccountAndNote(accountId, noteId uuid.UUID) (error, *domain.Like) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	for _, l := range m.Likes {
		if l.AccountId == accountId && l.NoteId == noteId {
			return nil, l
		}
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) DeleteLikeByAccountAndNote(accountId, noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for id, l := range m.Likes {
		if l.AccountId == accountId && l.NoteId == noteId {
			delete(m.Likes, id)
		}
	}
	return nil
}

func (m *MockDatabase) IncrementLikeCountByNoteId(noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IncrementLikeCountCalls = append(m.IncrementLikeCountCalls, noteId)
	if m.ForceError != nil {
		return m.ForceError
	}
	if note, ok := m.Notes[noteId]; ok {
		note.LikeCount++
	}
	return nil
}

func (m *MockDatabase) DecrementLikeCountByNoteId(noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DecrementLikeCountCalls = append(m.DecrementLikeCountCalls, noteId)
	if m.ForceError != nil {
		return m.ForceError
	}
	if note, ok := m.Notes[noteId]; ok && note.LikeCount > 0 {
		note.LikeCount--
	}
	return nil
}

// Boost operations

func (m *MockDatabase) CreateBoost(boost *domain.Boost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Boosts[boost.Id] = boost
	return nil
}

func (m *MockDatabase) HasBoost(accountId, noteId uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return false, m.ForceError
	}
	for _, b := range m.Boosts {
		if b.AccountId == accountId && b.NoteId == noteId {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockDatabase) DeleteBoostByAccountAndNote(accountId, noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for id, b := range m.Boosts {
		if b.AccountId == accountId && b.NoteId == noteId {
			delete(m.Boosts, id)
		}
	}
	return nil
}

func (m *MockDatabase) IncrementBoostCountByNoteId(noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IncrementBoostCountCalls = append(m.IncrementBoostCountCalls, noteId)
	if m.ForceError != nil {
		return m.ForceError
	}
	if note, ok := m.Notes[noteId]; ok {
		note.BoostCount++
	}
	return nil
}

func (m *MockDatabase) DecrementBoostCountByNoteId(noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DecrementBoostCountCalls = append(m.DecrementBoostCountCalls, noteId)
	if m.ForceError != nil {
		return m.ForceError
	}
	if note, ok := m.Notes[noteId]; ok && note.BoostCount > 0 {
		note.BoostCount--
	}
	return nil
}

// Relay operations

func (m *MockDatabase) CreateRelay(relay *domain.Relay) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Relays[relay.Id] = relay
	return nil
}

func (m *MockDatabase) ReadActiveRelays() (error, *[]domain.Relay) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	var out []domain.Relay
	for _, r := range m.Relays {
		if r.Status == "active" {
			out = append(out, *r)
		}
	}
	return nil, &out
}

func (m *MockDatabase) ReadActiveUnpausedRelays() (error, *[]domain.Relay) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	var out []domain.Relay
	for _, r := range m.Relays {
		if r.Status == "active" {
			out = append(out, *r)
		}
	}
	return nil, &out
}

func (m *MockDatabase) ReadRelayByActorURI(actorURI string) (error, *domain.Relay) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	for _, r := range m.Relays {
		if r.ActorURI == actorURI {
			return nil, r
		}
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) UpdateRelayStatus(id uuid.UUID, status string, acceptedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if r, ok := m.Relays[id]; ok {
		r.Status = status
		if acceptedAt != nil {
			r.AcceptedAt = acceptedAt
		}
	}
	return nil
}

func (m *MockDatabase) DeleteRelay(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	delete(m.Relays, id)
	return nil
}

// Notification operations

func (m *MockDatabase) CreateNotification(notification *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Notifications = append(m.Notifications, notification)
	return nil
}

// Activity queue operations (C4)

func (m *MockDatabase) EnqueueMessage(msg *domain.QueuedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.QueuedMessages[msg.Id] = msg
	return nil
}

func (m *MockDatabase) ClaimDueMessages(priority domain.Priority, group, consumer string, limit int, claimTimeout time.Duration) ([]domain.QueuedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return nil, m.ForceError
	}
	var claimed []domain.QueuedMessage
	now := time.Now()
	for _, msg := range m.QueuedMessages {
		if msg.Priority != priority || msg.Group != group || msg.Acked {
			continue
		}
		if msg.NextEligibleAt.After(now) {
			continue
		}
		if msg.ClaimedBy != "" && msg.ClaimedAt != nil && now.Sub(*msg.ClaimedAt) < claimTimeout {
			continue
		}
		msg.ClaimedBy = consumer
		msg.ClaimedAt = &now
		msg.Attempts++
		claimed = append(claimed, *msg)
		if len(claimed) >= limit {
			break
		}
	}
	return claimed, nil
}

func (m *MockDatabase) AckMessage(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if msg, ok := m.QueuedMessages[id]; ok {
		msg.Acked = true
	}
	return nil
}

func (m *MockDatabase) ScheduleRetry(id uuid.UUID, nextEligible time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if msg, ok := m.QueuedMessages[id]; ok {
		msg.NextEligibleAt = nextEligible
		msg.LastError = lastErr
		msg.ClaimedBy = ""
	}
	return nil
}

func (m *MockDatabase) DeadLetterMessage(msg domain.QueuedMessage, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.DLQMessages = append(m.DLQMessages, &domain.DLQMessage{
		Id: uuid.New(), SourceGroup: msg.Group, ActivityID: msg.ActivityID,
		Payload: msg.Payload, Destination: msg.Destination, LastError: lastErr,
		Attempts: msg.Attempts, ArchivedAt: time.Now(),
	})
	if existing, ok := m.QueuedMessages[msg.Id]; ok {
		existing.Acked = true
	}
	return nil
}

func (m *MockDatabase) TrimCompletedMessages(ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return 0, m.ForceError
	}
	var n int64
	cutoff := time.Now().Add(-ttl)
	for id, msg := range m.QueuedMessages {
		if msg.Acked && msg.FirstSeenAt.Before(cutoff) {
			delete(m.QueuedMessages, id)
			n++
		}
	}
	return n, nil
}

func (m *MockDatabase) StreamDepth(priority domain.Priority, group string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return 0, m.ForceError
	}
	n := 0
	for _, msg := range m.QueuedMessages {
		if msg.Priority == priority && msg.Group == group && !msg.Acked {
			n++
		}
	}
	return n, nil
}

// Peer / circuit breaker operations (C8)

func (m *MockDatabase) GetOrCreatePeer(domainName string) (*domain.Peer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return nil, m.ForceError
	}
	if p, ok := m.Peers[domainName]; ok {
		return p, nil
	}
	p := &domain.Peer{Id: uuid.New(), Domain: domainName, Health: domain.PeerHealthy, CreatedAt: time.Now()}
	m.Peers[domainName] = p
	return p, nil
}

func (m *MockDatabase) UpdatePeerHealth(p *domain.Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Peers[p.Domain] = p
	return nil
}

func (m *MockDatabase) ResetPeer(domainName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if p, ok := m.Peers[domainName]; ok {
		p.Health = domain.PeerHealthy
		p.ConsecutiveFailures = 0
		p.ConsecutiveSuccesses = 0
		p.OpenedAt = nil
	}
	return nil
}

// Observability store operations (C9)

func (m *MockDatabase) WriteCheckpoint(rec *domain.CheckpointRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	rec.Id = uuid.New()
	rec.CreatedAt = time.Now()
	m.Checkpoints = append(m.Checkpoints, *rec)
	return nil
}

func (m *MockDatabase) ReadCheckpointsByRequestID(requestID string) ([]domain.CheckpointRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return nil, m.ForceError
	}
	var out []domain.CheckpointRecord
	for _, c := range m.Checkpoints {
		if c.RequestID == requestID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockDatabase) ReadCheckpointsByActivityID(activityID string) ([]domain.CheckpointRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return nil, m.ForceError
	}
	var out []domain.CheckpointRecord
	for _, c := range m.Checkpoints {
		if c.ActivityID == activityID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockDatabase) ReadFailedCheckpointsSince(window time.Duration) ([]domain.CheckpointRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return nil, m.ForceError
	}
	cutoff := time.Now().Add(-window)
	var out []domain.CheckpointRecord
	for _, c := range m.Checkpoints {
		if c.Status == "error" && !c.CreatedAt.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockDatabase) ReadIncompleteRequestIDs(minAge time.Duration) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return nil, m.ForceError
	}
	cutoff := time.Now().Add(-minAge)
	dispatchedOK := map[string]bool{}
	firstSeen := map[string]time.Time{}
	for _, c := range m.Checkpoints {
		if c.Checkpoint == "dispatched" && c.Status == "ok" {
			dispatchedOK[c.RequestID] = true
		}
		if first, ok := firstSeen[c.RequestID]; !ok || c.CreatedAt.Before(first) {
			firstSeen[c.RequestID] = c.CreatedAt
		}
	}
	var out []string
	for requestID, first := range firstSeen {
		if !dispatchedOK[requestID] && first.Before(cutoff) {
			out = append(out, requestID)
		}
	}
	return out, nil
}

func (m *MockDatabase) TrimCheckpoints() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ForceError
}

// Suspense buffer operations

func (m *MockDatabase) CreateSuspenseEntry(e *domain.SuspenseEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Suspense[e.Id] = e
	return nil
}

func (m *MockDatabase) ReadSuspenseEntriesByURI(waitingOnURI string) ([]domain.SuspenseEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return nil, m.ForceError
	}
	var out []domain.SuspenseEntry
	for _, e := range m.Suspense {
		if e.WaitingOnURI == waitingOnURI {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *MockDatabase) DeleteSuspenseEntry(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	delete(m.Suspense, id)
	return nil
}

func (m *MockDatabase) DeleteExpiredSuspenseEntries() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return 0, m.ForceError
	}
	var n int64
	now := time.Now()
	for id, e := range m.Suspense {
		if e.ExpiresAt.Before(now) {
			delete(m.Suspense, id)
			n++
		}
	}
	return n, nil
}

func (m *MockDatabase) SuspenseEntryCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return 0, m.ForceError
	}
	return len(m.Suspense), nil
}

// Community (Group actor) operations

func (m *MockDatabase) CreateCommunity(c *domain.Community) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Communities[c.Id] = c
	m.CommunitiesByName[c.Name] = c
	return nil
}

func (m *MockDatabase) ReadCommunityByName(name string) (error, *domain.Community) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	c, ok := m.CommunitiesByName[name]
	if !ok {
		return fmt.Errorf("community not found: %s", name), nil
	}
	return nil, c
}

func (m *MockDatabase) ReadCommunityById(id uuid.UUID) (error, *domain.Community) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	c, ok := m.Communities[id]
	if !ok {
		return fmt.Errorf("community not found: %s", id), nil
	}
	return nil, c
}

func (m *MockDatabase) AddCommunityModerator(mod *domain.CommunityModerator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.CommunityModerators = append(m.CommunityModerators, mod)
	return nil
}

func (m *MockDatabase) IsCommunityModerator(communityId, accountId uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return false, m.ForceError
	}
	for _, mod := range m.CommunityModerators {
		if mod.CommunityId == communityId && mod.AccountId == accountId {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockDatabase) ReadCommunityModeratorActorURIs(communityId uuid.UUID, sslDomain string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return nil, m.ForceError
	}
	var out []string
	for _, mod := range m.CommunityModerators {
		if mod.CommunityId != communityId {
			continue
		}
		acc, ok := m.Accounts[mod.AccountId]
		if !ok {
			continue
		}
		out = append(out, fmt.Sprintf("https://%s/users/%s", sslDomain, acc.Username))
	}
	return out, nil
}

func (m *MockDatabase) AddFeaturedPost(f *domain.FeaturedPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.FeaturedPosts = append(m.FeaturedPosts, f)
	return nil
}

func (m *MockDatabase) RemoveFeaturedPost(communityId uuid.UUID, objectURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	var kept []*domain.FeaturedPost
	for _, f := range m.FeaturedPosts {
		if f.CommunityId == communityId && f.ObjectURI == objectURI {
			continue
		}
		kept = append(kept, f)
	}
	m.FeaturedPosts = kept
	return nil
}

func (m *MockDatabase) ReadFeaturedPosts(communityId uuid.UUID) ([]domain.FeaturedPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return nil, m.ForceError
	}
	var out []domain.FeaturedPost
	for _, f := range m.FeaturedPosts {
		if f.CommunityId == communityId {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *MockDatabase) AddCommunityFollower(communityId uuid.UUID, actorURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	key := communityId.String() + "|" + actorURI
	for _, k := range m.CommunityFollowers {
		if k == key {
			return nil
		}
	}
	m.CommunityFollowers = append(m.CommunityFollowers, key)
	return nil
}

func (m *MockDatabase) RemoveCommunityFollower(communityId uuid.UUID, actorURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	key := communityId.String() + "|" + actorURI
	var kept []string
	for _, k := range m.CommunityFollowers {
		if k == key {
			continue
		}
		kept = append(kept, k)
	}
	m.CommunityFollowers = kept
	return nil
}

func (m *MockDatabase) ReadCommunityFollowers(communityId uuid.UUID) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return nil, m.ForceError
	}
	prefix := communityId.String() + "|"
	var out []string
	for _, k := range m.CommunityFollowers {
		if strings.HasPrefix(k, prefix) {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
	}
	return out, nil
}

// Ensure MockDatabase implements Database interface
var _ Database = (*MockDatabase)(nil)
