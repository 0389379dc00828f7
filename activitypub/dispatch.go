package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
	"github.com/google/uuid"
)

// dispatchKey is (verb, objectType); an empty objectType matches any
// object type for that verb. Spec §4.C6 calls for "(verb, objectType)
// keyed registry with a (verb, *) fallback" — the empty string is that
// fallback entry.
type dispatchKey struct {
	verb       string
	objectType string
}

type dispatchFunc func(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig, deps *InboxDeps) error

// Announce resolves its own actor internally (it may be a relay whose
// forwarded objects carry a different attributed author) so it isn't
// shaped like dispatchFunc and is special-cased in HandleInboxWithDeps
// rather than routed through this registry.
var dispatchRegistry = map[dispatchKey]dispatchFunc{
	{verb: "Dislike"}: handleDislikeActivityWithDeps,
	{verb: "Flag"}:    handleFlagActivityWithDeps,
	{verb: "Add"}:     handleAddActivityWithDeps,
	{verb: "Remove"}:  handleRemoveActivityWithDeps,
	{verb: "Block"}:   handleBlockActivityWithDeps,
	{verb: "Move"}:    handleMoveActivityWithDeps,
}

// DispatchActivity routes verbs not already special-cased in
// HandleInboxWithDeps's switch through the registry above. handled is
// false when no entry (exact or verb-only fallback) matches, which the
// caller treats the same as the pre-existing "unsupported activity
// type" log line.
func DispatchActivity(activityType, objectType string, body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig, deps *InboxDeps) (handled bool, err error) {
	if fn, ok := dispatchRegistry[dispatchKey{verb: activityType, objectType: objectType}]; ok {
		return true, fn(body, username, remoteActor, conf, deps)
	}
	if fn, ok := dispatchRegistry[dispatchKey{verb: activityType}]; ok {
		return true, fn(body, username, remoteActor, conf, deps)
	}
	return false, nil
}

// objectTypeOf extracts the nested object's "type" field when present,
// for dispatch keys that need it (e.g. a future Undo Announce entry).
func objectTypeOf(raw json.RawMessage) string {
	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return obj.Type
}

// extractDomainFromURI returns the host[:port] component of an http(s)
// URI, or "" if uri doesn't parse as one. Used to compare actors by
// domain rather than by exact URI, since a relay forwards activities
// under many path-scoped actor URIs (one per tag) on the same host.
func extractDomainFromURI(uri string) string {
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return ""
	}
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Host
}

// isActorFromAnyRelay reports whether actorURI's domain matches any
// currently-active relay's domain, regardless of the specific path
// (relays commonly mint one actor per subscribed tag on a shared host).
func isActorFromAnyRelay(actorURI string, database Database) bool {
	domainName := extractDomainFromURI(actorURI)
	if domainName == "" {
		return false
	}
	err, relays := database.ReadActiveRelays()
	if err != nil || relays == nil {
		return false
	}
	for _, relay := range *relays {
		if extractDomainFromURI(relay.ActorURI) == domainName {
			return true
		}
	}
	return false
}

// relayForwardedObject is the shape of a FEP-1b12 relay's forwarded
// object: only the fields needed to re-attribute it to its real author
// are decoded.
type relayForwardedObject struct {
	ID           string `json:"id"`
	AttributedTo string `json:"attributedTo"`
}

// fetchRelayForwardedObject dereferences a bare object URI a relay
// Announce carries instead of embedding, the same way a boosted Note
// would otherwise have to be fetched.
func fetchRelayForwardedObject(uri string, client HTTPClient) (*relayForwardedObject, error) {
	req, err := http.NewRequest(http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", uri, err)
	}
	req.Header.Set("Accept", "application/activity+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, uri)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body for %s: %w", uri, err)
	}

	var obj relayForwardedObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse object at %s: %w", uri, err)
	}
	return &obj, nil
}

// handleAnnounceActivityWithDeps processes an Announce. Two distinct
// shapes arrive under the same verb (spec §4.C6 / §6): a relay
// forwarding a post it never boosted itself (the wrapped object is
// re-attributed to its real author and stored as a Create, never a
// Boost), and an ordinary actor boosting a note we hold locally
// (recorded as a Boost against that note). The object is either a
// single object URI (or embedded object) or, for a FEP-4248 batch, a
// JSON array of object URIs sharing one wrapping Announce.
func handleAnnounceActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var announce struct {
		ID     string          `json:"id"`
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(body, &announce); err != nil {
		return fmt.Errorf("failed to parse Announce activity: %w", err)
	}

	if isActorFromAnyRelay(announce.Actor, deps.Database) {
		return handleRelayForwardedAnnounce(announce.ID, announce.Object, deps)
	}

	remoteActor, err := GetOrFetchActorWithDeps(announce.Actor, deps.HTTPClient, deps.Database)
	if err != nil {
		log.Printf("Inbox: Announce from unresolvable actor %s: %v", announce.Actor, err)
		return nil
	}

	var batch []string
	if err := json.Unmarshal(announce.Object, &batch); err == nil {
		log.Printf("Inbox: Announce from %s carries a %d-item FEP-4248 batch", remoteActor.ActorURI, len(batch))
		for _, uri := range batch {
			if err := recordAnnouncedObject(announce.ID, uri, remoteActor, deps); err != nil {
				log.Printf("Inbox: failed to record announced object %s: %v", uri, err)
			}
		}
		return nil
	}

	var single string
	if err := json.Unmarshal(announce.Object, &single); err == nil {
		return recordAnnouncedObject(announce.ID, single, remoteActor, deps)
	}

	// Embedded object form: extract its id for the boost record.
	innerType := objectTypeOf(announce.Object)
	var inner struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(announce.Object, &inner); err == nil && inner.ID != "" {
		return recordAnnouncedObject(announce.ID, inner.ID, remoteActor, deps)
	}
	log.Printf("Inbox: Announce from %s wraps embedded %s", remoteActor.ActorURI, innerType)
	return nil
}

// handleRelayForwardedAnnounce records a relay-forwarded post as a
// Create by its real author rather than a Boost by the relay. The
// relay itself never "wrote" the post, so crediting it as a Boost
// would misattribute authorship in the local timeline.
func handleRelayForwardedAnnounce(activityURI string, objectRaw json.RawMessage, deps *InboxDeps) error {
	var obj relayForwardedObject
	var asString string

	if err := json.Unmarshal(objectRaw, &asString); err == nil {
		if err, existing := deps.Database.ReadActivityByObjectURI(asString); err == nil && existing != nil {
			log.Printf("Inbox: relay-forwarded object %s already stored, skipping", asString)
			return nil
		}
		fetched, err := fetchRelayForwardedObject(asString, deps.HTTPClient)
		if err != nil {
			log.Printf("Inbox: relay Announce failed to fetch forwarded object %s: %v", asString, err)
			return nil
		}
		obj = *fetched
	} else if err := json.Unmarshal(objectRaw, &obj); err != nil {
		return fmt.Errorf("failed to parse relay-forwarded object: %w", err)
	}

	if obj.ID == "" {
		log.Printf("Inbox: relay Announce %s carried no object id, ignoring", activityURI)
		return nil
	}

	if err, existing := deps.Database.ReadActivityByObjectURI(obj.ID); err == nil && existing != nil {
		log.Printf("Inbox: relay-forwarded object %s already stored, skipping", obj.ID)
		return nil
	}

	actorURI := obj.AttributedTo
	if actorURI != "" {
		if author, err := GetOrFetchActorWithDeps(actorURI, deps.HTTPClient, deps.Database); err == nil && author != nil {
			actorURI = author.ActorURI
		}
	}

	activity := &domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  activityURI,
		ActivityType: "Create",
		ActorURI:     actorURI,
		ObjectURI:    obj.ID,
		RawJSON:      string(objectRaw),
		Processed:    true,
		Local:        false,
		FromRelay:    true,
		CreatedAt:    time.Now(),
	}
	if err := deps.Database.CreateActivity(activity); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			log.Printf("Inbox: relay Announce %s already processed, skipping", activityURI)
			return nil
		}
		return fmt.Errorf("failed to store relay-forwarded activity: %w", err)
	}
	return nil
}

// recordAnnouncedObject upserts the Boost for an ordinary (non-relay)
// Announce, deduping by (account, note) rather than by activity URI:
// the same account re-boosting the same note under a fresh activity id
// must not double the count.
func recordAnnouncedObject(activityURI, objectURI string, remoteActor *domain.RemoteAccount, deps *InboxDeps) error {
	err, note := deps.Database.ReadNoteByURI(objectURI)
	if err != nil || note == nil {
		// We don't have the boosted note cached locally; nothing further
		// to do until/unless it's fetched (handled by the suspense buffer
		// at the dispatch layer, not here).
		return nil
	}

	has, err := deps.Database.HasBoost(remoteActor.Id, note.Id)
	if err != nil {
		return fmt.Errorf("failed to check existing boost: %w", err)
	}
	if has {
		return nil
	}

	boost := &domain.Boost{
		Id:        uuid.New(),
		AccountId: remoteActor.Id,
		NoteId:    note.Id,
		URI:       activityURI,
		CreatedAt: time.Now(),
	}
	if err := deps.Database.CreateBoost(boost); err != nil {
		return fmt.Errorf("failed to store boost: %w", err)
	}
	return deps.Database.IncrementBoostCountByNoteId(note.Id)
}

// handleDislikeActivityWithDeps accepts a Dislike and logs it. No vote
// is stored and no counter is changed.
func handleDislikeActivityWithDeps(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig, deps *InboxDeps) error {
	var dislike struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(body, &dislike); err != nil {
		return fmt.Errorf("failed to parse Dislike activity: %w", err)
	}
	log.Printf("Inbox: Dislike from %s on %s recorded, no local effect", remoteActor.ActorURI, dislike.Object)
	return nil
}

// handleFlagActivityWithDeps accepts a moderation report and logs its
// content. Flags never fan out or mutate federation-visible state; the
// report is not stored, no checkpoint is recorded and no moderator is
// notified.
func handleFlagActivityWithDeps(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig, deps *InboxDeps) error {
	var flag struct {
		Object  any    `json:"object"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &flag); err != nil {
		return fmt.Errorf("failed to parse Flag activity: %w", err)
	}
	log.Printf("Inbox: Flag from %s received (report content: %q)", remoteActor.ActorURI, flag.Content)
	return nil
}

// handleAddActivityWithDeps and handleRemoveActivityWithDeps handle the
// featured/pinned-collection verbs sent to a user inbox. Users have no
// such collection, so both are accepted (202) and logged with no effect.
// Add/Remove sent to a community inbox are handled separately, by
// handleCommunityAddRemove against the community's featured collection.
func handleAddActivityWithDeps(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig, deps *InboxDeps) error {
	log.Printf("Inbox: Add activity from %s accepted as no-op (no pinned/featured collections)", remoteActor.ActorURI)
	return nil
}

func handleRemoveActivityWithDeps(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig, deps *InboxDeps) error {
	log.Printf("Inbox: Remove activity from %s accepted as no-op (no pinned/featured collections)", remoteActor.ActorURI)
	return nil
}

// handleBlockActivityWithDeps handles remoteActor blocking the local
// account: if the local account follows remoteActor, that follow is
// deleted. The block itself is only logged; it is not stored, and
// later deliveries to remoteActor are not suppressed by it.
func handleBlockActivityWithDeps(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig, deps *InboxDeps) error {
	err, localAccount := deps.Database.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("local account not found: %w", err)
	}
	if err, follow := deps.Database.ReadFollowByAccountIds(localAccount.Id, remoteActor.Id); err == nil && follow != nil {
		if err := deps.Database.DeleteFollowByURI(follow.URI); err != nil {
			log.Printf("Inbox: failed to drop follow after Block from %s: %v", remoteActor.ActorURI, err)
		}
	}
	log.Printf("Inbox: Block from %s recorded", remoteActor.ActorURI)
	return nil
}

// handleMoveActivityWithDeps implements the spec §9 Open Question
// decision: account migration (Move) is unsupported and explicitly
// policy-blocked rather than silently ignored, so operators can see it
// was rejected rather than assume it succeeded.
func handleMoveActivityWithDeps(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig, deps *InboxDeps) error {
	return NewFedError(KindPolicyBlock, fmt.Errorf("Move (account migration) from %s is not supported", remoteActor.ActorURI))
}
