package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
	"github.com/google/uuid"
)

// HandleCommunityInbox processes activities addressed to a local Group
// actor's inbox (spec §3/§6): Follow/Undo Follow for subscription, and
// moderator-gated Add/Remove against the featured collection. Any other
// verb is accepted and ignored, matching the per-actor inbox's default case.
func HandleCommunityInbox(w http.ResponseWriter, r *http.Request, communityName string, conf *util.AppConfig) {
	database := NewDBWrapper()
	deps := &InboxDeps{
		Database:      database,
		HTTPClient:    defaultHTTPClient,
		Observability: NewObservabilityStore(database, conf),
	}
	HandleCommunityInboxWithDeps(w, r, communityName, conf, deps)
}

// HandleCommunityInboxWithDeps is the dependency-injected form, for tests.
func HandleCommunityInboxWithDeps(w http.ResponseWriter, r *http.Request, communityName string, conf *util.AppConfig, deps *InboxDeps) {
	limits := effectiveJSONLimits(conf)

	var activity Activity
	body, err := ParseBoundedJSON(r.Body, limits, &activity)
	r.Body.Close()
	if err != nil {
		log.Printf("CommunityInbox: Failed to parse activity: %v", err)
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}

	verifyErr, community := deps.Database.ReadCommunityByName(communityName)
	if verifyErr != nil || community == nil {
		http.Error(w, "Community not found", http.StatusNotFound)
		return
	}

	remoteActor, err := verifyInboxSigner(r, body, activity, conf, deps)
	if err != nil {
		log.Printf("CommunityInbox: %v", err)
		status := http.StatusUnauthorized
		if ferr, ok := err.(*signerVerificationError); ok {
			status = ferr.status
		}
		http.Error(w, err.Error(), status)
		return
	}

	log.Printf("CommunityInbox: Received %s from %s for community %s", activity.Type, activity.Actor, communityName)

	switch activity.Type {
	case "Follow":
		err = handleCommunityFollow(body, community, remoteActor, conf, deps)
	case "Undo":
		err = handleCommunityUndoFollow(body, community, remoteActor, deps)
	case "Add":
		err = handleCommunityAddRemove(body, community, remoteActor, deps, true)
	case "Remove":
		err = handleCommunityAddRemove(body, community, remoteActor, deps, false)
	default:
		log.Printf("CommunityInbox: Unhandled activity type %s, ignoring", activity.Type)
	}

	if err != nil {
		log.Printf("CommunityInbox: Error processing %s: %v", activity.Type, err)
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleCommunityFollow subscribes a remote actor to the community's
// follower collection and replies with an Accept signed by the community.
func handleCommunityFollow(body []byte, community *domain.Community, remoteActor *domain.RemoteAccount, conf *util.AppConfig, deps *InboxDeps) error {
	var follow FollowActivity
	if err := json.Unmarshal(body, &follow); err != nil {
		return fmt.Errorf("failed to parse Follow activity: %w", err)
	}

	if err := deps.Database.AddCommunityFollower(community.Id, remoteActor.ActorURI); err != nil {
		return fmt.Errorf("failed to add community follower: %w", err)
	}

	if err := SendCommunityAcceptWithDeps(community, remoteActor, follow.ID, conf, deps.HTTPClient); err != nil {
		return fmt.Errorf("failed to send Accept: %w", err)
	}

	log.Printf("CommunityInbox: %s subscribed to community %s", remoteActor.ActorURI, community.Name)
	return nil
}

// handleCommunityUndoFollow removes a remote actor from the follower
// collection; only the original follower may undo its own subscription.
func handleCommunityUndoFollow(body []byte, community *domain.Community, remoteActor *domain.RemoteAccount, deps *InboxDeps) error {
	var undo struct {
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(body, &undo); err != nil {
		return fmt.Errorf("failed to parse Undo activity: %w", err)
	}

	var obj struct {
		Type  string `json:"type"`
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal(undo.Object, &obj); err != nil {
		return fmt.Errorf("failed to parse Undo object: %w", err)
	}
	if obj.Type != "Follow" {
		log.Printf("CommunityInbox: Undo %s not supported against a community, ignoring", obj.Type)
		return nil
	}

	if undo.Actor != remoteActor.ActorURI {
		return fmt.Errorf("unauthorized: actor %s cannot undo a follow it did not create", undo.Actor)
	}

	if err := deps.Database.RemoveCommunityFollower(community.Id, remoteActor.ActorURI); err != nil {
		return fmt.Errorf("failed to remove community follower: %w", err)
	}

	log.Printf("CommunityInbox: %s unsubscribed from community %s", remoteActor.ActorURI, community.Name)
	return nil
}

// handleCommunityAddRemove implements the moderation gate of spec §4: the
// only legitimate actor for Add/Remove against a community's featured
// collection is a registered moderator of that community.
func handleCommunityAddRemove(body []byte, community *domain.Community, remoteActor *domain.RemoteAccount, deps *InboxDeps, add bool) error {
	var activity struct {
		Actor  string `json:"actor"`
		Object string `json:"object"`
		Target string `json:"target"`
	}
	if err := json.Unmarshal(body, &activity); err != nil {
		return fmt.Errorf("failed to parse Add/Remove activity: %w", err)
	}

	// Moderation is a purely local privilege; a remote actor without a
	// locally registered account can never be a moderator.
	username, ok := localUsernameFromActorURI(remoteActor.ActorURI)
	if !ok {
		return fmt.Errorf("unauthorized: %s is not a locally registered account", activity.Actor)
	}
	err, localAccount := deps.Database.ReadAccByUsername(username)
	if err != nil || localAccount == nil {
		return fmt.Errorf("unauthorized: %s is not a locally registered moderator", activity.Actor)
	}

	isMod, err := deps.Database.IsCommunityModerator(community.Id, localAccount.Id)
	if err != nil {
		return fmt.Errorf("failed to check moderator status: %w", err)
	}
	if !isMod {
		return fmt.Errorf("unauthorized: %s is not a moderator of community %s", activity.Actor, community.Name)
	}

	if add {
		featured := &domain.FeaturedPost{
			Id:          uuid.New(),
			CommunityId: community.Id,
			ObjectURI:   activity.Object,
		}
		if err := deps.Database.AddFeaturedPost(featured); err != nil {
			return fmt.Errorf("failed to add featured post: %w", err)
		}
		log.Printf("CommunityInbox: %s featured %s in community %s", activity.Actor, activity.Object, community.Name)
		return nil
	}

	if err := deps.Database.RemoveFeaturedPost(community.Id, activity.Object); err != nil {
		return fmt.Errorf("failed to remove featured post: %w", err)
	}
	log.Printf("CommunityInbox: %s unfeatured %s in community %s", activity.Actor, activity.Object, community.Name)
	return nil
}

// SendCommunityAcceptWithDeps sends an Accept activity signed by the
// community, mirroring SendAcceptWithDeps but keyed off a Community's
// own keypair instead of an Account's.
func SendCommunityAcceptWithDeps(community *domain.Community, remoteActor *domain.RemoteAccount, followID string, conf *util.AppConfig, client HTTPClient) error {
	acceptID := fmt.Sprintf("https://%s/activities/%s", conf.Conf.SslDomain, uuid.New().String())
	actorURI := fmt.Sprintf("https://%s/c/%s", conf.Conf.SslDomain, community.Name)

	accept := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       acceptID,
		"type":     "Accept",
		"actor":    actorURI,
		"object": map[string]any{
			"id":     followID,
			"type":   "Follow",
			"actor":  remoteActor.ActorURI,
			"object": actorURI,
		},
	}
	return sendCommunityActivity(accept, remoteActor.InboxURI, community, conf, client)
}

// sendCommunityActivity signs and delivers an activity on behalf of a
// Community actor, the Group-actor analog of SendActivityWithDeps.
func sendCommunityActivity(activity any, inboxURI string, community *domain.Community, conf *util.AppConfig, client HTTPClient) error {
	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	hash := sha256.Sum256(activityJSON)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequest("POST", inboxURI, bytes.NewReader(activityJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "stegodon/1.0 ActivityPub")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	privateKey, err := ParsePrivateKey(community.PrivateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	keyID := fmt.Sprintf("https://%s/c/%s#main-key", conf.Conf.SslDomain, community.Name)
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	log.Printf("CommunityOutbox: Sent %T to %s (status: %d)", activity, inboxURI, resp.StatusCode)
	return nil
}

// localUsernameFromActorURI extracts the username from a local actor URI
// of the form https://domain/users/username, mirroring the shared
// inbox's extractUsername helper in web/router.go.
func localUsernameFromActorURI(actorURI string) (string, bool) {
	idx := strings.Index(actorURI, "/users/")
	if idx == -1 {
		return "", false
	}
	rest := actorURI[idx+len("/users/"):]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}
