package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
	"github.com/google/uuid"
)

// InboxDeps holds dependencies for inbox handlers (for testing)
type InboxDeps struct {
	Database      Database
	HTTPClient    HTTPClient
	Observability *ObservabilityStore
}

// Activity represents a generic ActivityPub activity
type Activity struct {
	Context any    `json:"@context"`
	ID      string `json:"id"`
	Type    string `json:"type"`
	Actor   string `json:"actor"`
	Object  any    `json:"object"`
}

// FollowActivity represents an ActivityPub Follow activity
type FollowActivity struct {
	Context any    `json:"@context"`
	ID      string `json:"id"`
	Type    string `json:"type"`
	Actor   string `json:"actor"`
	Object  string `json:"object"` // URI of the person being followed
}

// HandleInbox processes incoming ActivityPub activities
func HandleInbox(w http.ResponseWriter, r *http.Request, username string, conf *util.AppConfig) {
	database := NewDBWrapper()
	deps := &InboxDeps{
		Database:      database,
		HTTPClient:    defaultHTTPClient,
		Observability: NewObservabilityStore(database, conf),
	}
	HandleInboxWithDeps(w, r, username, conf, deps)
}

// HandleInboxWithDeps processes incoming ActivityPub activities.
// This version accepts dependencies for testing.
func HandleInboxWithDeps(w http.ResponseWriter, r *http.Request, username string, conf *util.AppConfig, deps *InboxDeps) {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	deps.Observability.Record(requestID, CheckpointReceived, StatusOK, "", "", nil)

	limits := effectiveJSONLimits(conf)

	var activity Activity
	body, err := ParseBoundedJSON(r.Body, limits, &activity)
	r.Body.Close()
	if err != nil {
		log.Printf("Inbox: Failed to parse activity: %v", err)
		deps.Observability.Record(requestID, CheckpointParsed, StatusError, "", err.Error(), nil)
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "byte limit") {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, "Invalid activity", status)
		return
	}
	// Restore body for signature verification, which re-reads r.Body/r.Header
	// off the original request rather than the already-decoded activity.
	r.Body = io.NopCloser(bytes.NewReader(body))
	deps.Observability.Record(requestID, CheckpointParsed, StatusOK, activity.ID, activity.Type, body)

	log.Printf("Inbox: Received %s from %s", activity.Type, activity.Actor)

	// A self-delete is the one mutation the spec allows without a
	// signature: an actor who just deleted themselves can no longer sign
	// anything, so gating it on a signature would make it unactionable.
	selfDeleteObjectURI, _ := activity.Object.(string)
	isSelfDelete := activity.Type == "Delete" && selfDeleteObjectURI != "" && selfDeleteObjectURI == activity.Actor

	var remoteActor *domain.RemoteAccount
	if !isSelfDelete {
		remoteActor, err = verifyInboxSigner(r, body, activity, conf, deps)
		if err != nil {
			log.Printf("Inbox: %v", err)
			deps.Observability.Record(requestID, CheckpointVerified, StatusError, activity.ID, err.Error(), nil)
			status := http.StatusUnauthorized
			if ferr, ok := err.(*signerVerificationError); ok {
				status = ferr.status
			}
			http.Error(w, err.Error(), status)
			return
		}
	}
	deps.Observability.Record(requestID, CheckpointVerified, StatusOK, activity.ID, "", nil)

	// Store activity in database
	database := deps.Database

	// Extract ObjectURI from the activity's object field
	objectURI := ""
	if activity.Object != nil {
		switch obj := activity.Object.(type) {
		case string:
			// Object is a simple URI string (like in Follow, Undo, etc.)
			objectURI = obj
		case map[string]any:
			// Object is a full object (like in Create, Update)
			if id, ok := obj["id"].(string); ok {
				objectURI = id
			}
		}
	}

	activityRecord := &domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  activity.ID,
		ActivityType: activity.Type,
		ActorURI:     activity.Actor,
		ObjectURI:    objectURI,
		RawJSON:      string(body),
		Processed:    false,
		Local:        false,
		CreatedAt:    time.Now(),
	}

	if err := database.CreateActivity(activityRecord); err != nil {
		// Check if this is a duplicate (already processed)
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			log.Printf("Inbox: Activity %s already processed, returning success", activity.ID)
			deps.Observability.Record(requestID, CheckpointDeduped, StatusIgnored, activity.ID, "duplicate activity URI", nil)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		log.Printf("Inbox: Failed to store activity: %v", err)
		// Don't fail the request, we'll process it anyway
	}

	// Process activity based on type
	switch activity.Type {
	case "Follow":
		if err := handleFollowActivityWithDeps(body, username, remoteActor, conf, deps); err != nil {
			log.Printf("Inbox: Failed to handle Follow: %v", err)
			http.Error(w, "Failed to process Follow", http.StatusInternalServerError)
			return
		}
	case "Undo":
		if err := handleUndoActivityWithDeps(body, username, remoteActor, deps); err != nil {
			log.Printf("Inbox: Failed to handle Undo: %v", err)
			http.Error(w, "Failed to process Undo", http.StatusInternalServerError)
			return
		}
	case "Create":
		if err := handleCreateActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Create: %v", err)
			http.Error(w, "Failed to process Create", http.StatusInternalServerError)
			return
		}
	case "Like":
		if err := handleLikeActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Like: %v", err)
			http.Error(w, "Failed to process Like", http.StatusInternalServerError)
			return
		}
	case "Accept":
		// Accept activities are confirmations of Follow requests
		if err := handleAcceptActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Accept: %v", err)
			// Don't fail the request
		}
	case "Update":
		if err := handleUpdateActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Update: %v", err)
			http.Error(w, "Failed to process Update", http.StatusInternalServerError)
			return
		}
	case "Delete":
		if err := handleDeleteActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Delete: %v", err)
			http.Error(w, "Failed to process Delete", http.StatusInternalServerError)
			return
		}
	case "Announce":
		// Announce resolves its own actor (it may turn out to be a relay
		// forwarding someone else's post), so it isn't routed through the
		// dispatchFunc registry below.
		if err := handleAnnounceActivityWithDeps(body, username, deps); err != nil {
			log.Printf("Inbox: Failed to handle Announce: %v", err)
			http.Error(w, "Failed to process Announce", http.StatusInternalServerError)
			return
		}
	default:
		objType := ""
		if obj, ok := activity.Object.(map[string]any); ok {
			if t, ok := obj["type"].(string); ok {
				objType = t
			}
		}
		handled, derr := DispatchActivity(activity.Type, objType, body, username, remoteActor, conf, deps)
		if derr != nil {
			log.Printf("Inbox: Failed to handle %s: %v", activity.Type, derr)
			http.Error(w, fmt.Sprintf("Failed to process %s", activity.Type), http.StatusForbidden)
			return
		}
		if !handled {
			log.Printf("Inbox: Unsupported activity type: %s", activity.Type)
		}
	}

	// Mark activity as processed
	activityRecord.Processed = true
	if err := database.UpdateActivity(activityRecord); err != nil {
		log.Printf("Inbox: Failed to update activity: %v", err)
		// Continue anyway, this is not critical
	}
	deps.Observability.Record(requestID, CheckpointDispatched, StatusOK, activity.ID, activity.Type, nil)

	// Return 202 Accepted
	w.WriteHeader(http.StatusAccepted)
}

// effectiveJSONLimits fills in a 1 MiB MaxSize when AppConfig leaves it
// at zero, since ParseBoundedJSON with MaxSize 0 would reject every
// non-empty body. MaxDepth/MaxKeys/MaxStringLength are passed through
// as configured; a zero value means "unbounded" in jsonsafety.go.
func effectiveJSONLimits(conf *util.AppConfig) JSONLimits {
	maxSize := conf.Conf.MaxJsonSize
	if maxSize <= 0 {
		maxSize = 1 * 1024 * 1024
	}
	return JSONLimits{
		MaxSize:         maxSize,
		MaxDepth:        conf.Conf.MaxJsonDepth,
		MaxKeys:         conf.Conf.MaxJsonKeys,
		MaxStringLength: conf.Conf.MaxStringLength,
	}
}

// effectiveSigSkew is the ±window CheckClockSkew enforces around a
// signed Date header; the spec default is 12h when unconfigured.
func effectiveSigSkew(conf *util.AppConfig) time.Duration {
	if conf.Conf.SigSkewSeconds <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(conf.Conf.SigSkewSeconds) * time.Second
}

// isAllowlisted checks the minimal (actor, verb) unsigned allowlist
// (spec §4.C1 step 3). Entries are encoded "actorURI|Verb"; the
// default list is empty.
func isAllowlisted(actorURI, verb string, entries []string) bool {
	want := actorURI + "|" + verb
	for _, e := range entries {
		if e == want {
			return true
		}
	}
	return false
}

// signerVerificationError carries the HTTP status its caller should
// use; plain errors from verifyInboxSigner always mean 401.
type signerVerificationError struct {
	status int
	msg    string
}

func (e *signerVerificationError) Error() string { return e.msg }

// verifyInboxSigner implements the ordered verification chain of spec
// §4.C1: an HTTP Signature is tried first; only if the request carries
// none at all do we fall back to an embedded LD-Signature, and only if
// neither is present do we consult the unsigned allowlist. A request
// that carries a signature but fails it is rejected outright — a
// present-but-bad signature never falls through to a weaker method.
func verifyInboxSigner(r *http.Request, body []byte, activity Activity, conf *util.AppConfig, deps *InboxDeps) (*domain.RemoteAccount, error) {
	if r.Header.Get("Signature") != "" {
		remoteActor, err := GetOrFetchActorWithDeps(activity.Actor, deps.HTTPClient, deps.Database)
		if err != nil {
			return nil, &signerVerificationError{status: http.StatusBadRequest, msg: fmt.Sprintf("Failed to verify signer: %v", err)}
		}

		signerURI, err := VerifyRequest(r, remoteActor.PublicKeyPem)
		if err != nil {
			return nil, &signerVerificationError{status: http.StatusUnauthorized, msg: fmt.Sprintf("Invalid signature: %v", err)}
		}
		if signerURI != "" && signerURI != remoteActor.ActorURI {
			return nil, &signerVerificationError{status: http.StatusUnauthorized, msg: "Invalid signature: keyId does not match envelope actor"}
		}
		if err := CheckClockSkew(r, effectiveSigSkew(conf)); err != nil {
			return nil, &signerVerificationError{status: http.StatusUnauthorized, msg: fmt.Sprintf("Invalid signature: %v", err)}
		}
		return remoteActor, nil
	}

	// No HTTP Signature header: try the embedded LD-Signature.
	var ldDoc struct {
		Signature struct {
			Creator string `json:"creator"`
		} `json:"signature"`
	}
	if json.Unmarshal(body, &ldDoc) == nil && ldDoc.Signature.Creator != "" {
		if (activity.Type == "Create" || activity.Type == "Update") &&
			(conf.Conf.LDSignaturePolicy != "allowlist" || !isAllowlisted(activity.Actor, activity.Type, conf.Conf.AllowlistUnsigned)) {
			return nil, &signerVerificationError{status: http.StatusForbidden, msg: "LD-Signature not accepted for " + activity.Type}
		}
		signer, err := GetOrFetchActorWithDeps(ldDoc.Signature.Creator, deps.HTTPClient, deps.Database)
		if err != nil {
			return nil, &signerVerificationError{status: http.StatusBadRequest, msg: fmt.Sprintf("Failed to verify signer: %v", err)}
		}
		if _, err := VerifyLDSignature(body, signer.PublicKeyPem); err != nil {
			return nil, &signerVerificationError{status: http.StatusUnauthorized, msg: fmt.Sprintf("Invalid signature: %v", err)}
		}
		return signer, nil
	}

	// Neither signature method present: fall back to the allowlist.
	if isAllowlisted(activity.Actor, activity.Type, conf.Conf.AllowlistUnsigned) {
		remoteActor, err := GetOrFetchActorWithDeps(activity.Actor, deps.HTTPClient, deps.Database)
		if err != nil {
			return nil, &signerVerificationError{status: http.StatusBadRequest, msg: fmt.Sprintf("Failed to verify signer: %v", err)}
		}
		return remoteActor, nil
	}

	return nil, &signerVerificationError{status: http.StatusUnauthorized, msg: "Missing signature"}
}

// handleFollowActivity processes a Follow activity
func handleFollowActivity(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleFollowActivityWithDeps(body, username, remoteActor, conf, deps)
}

// handleFollowActivityWithDeps processes a Follow activity.
// This version accepts dependencies for testing.
func handleFollowActivityWithDeps(body []byte, username string, remoteActor *domain.RemoteAccount, conf *util.AppConfig, deps *InboxDeps) error {
	var follow FollowActivity
	if err := json.Unmarshal(body, &follow); err != nil {
		return fmt.Errorf("failed to parse Follow activity: %w", err)
	}

	log.Printf("Inbox: Processing Follow from %s@%s", remoteActor.Username, remoteActor.Domain)

	// Get local account
	database := deps.Database
	err, localAccount := database.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("local account not found: %w", err)
	}

	// Check if follow relationship already exists
	err, existingFollow := database.ReadFollowByAccountIds(remoteActor.Id, localAccount.Id)
	if err == nil && existingFollow != nil {
		// Follow already exists, just log and continue to send Accept
		log.Printf("Inbox: Follow relationship from %s@%s already exists, skipping duplicate", remoteActor.Username, remoteActor.Domain)
	} else {
		// Create follow relationship
		// When remote actor follows local account:
		// - AccountId = remote actor (the follower)
		// - TargetAccountId = local account (being followed)
		followRecord := &domain.Follow{
			Id:              uuid.New(),
			AccountId:       remoteActor.Id,  // The follower
			TargetAccountId: localAccount.Id, // The target being followed
			URI:             follow.ID,
			Accepted:        true, // Auto-accept for now
			CreatedAt:       time.Now(),
		}

		if err := database.CreateFollow(followRecord); err != nil {
			return fmt.Errorf("failed to create follow: %w", err)
		}
	}

	// Send Accept activity
	if err := SendAcceptWithDeps(localAccount, remoteActor, follow.ID, conf, deps.HTTPClient); err != nil {
		return fmt.Errorf("failed to send Accept: %w", err)
	}

	log.Printf("Inbox: Accepted follow from %s@%s", remoteActor.Username, remoteActor.Domain)
	return nil
}

// handleUndoActivity processes an Undo activity (e.g., Undo Follow)
func handleUndoActivity(body []byte, username string, remoteActor *domain.RemoteAccount) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleUndoActivityWithDeps(body, username, remoteActor, deps)
}

// handleUndoActivityWithDeps processes an Undo activity (e.g., Undo Follow).
// This version accepts dependencies for testing.
func handleUndoActivityWithDeps(body []byte, username string, remoteActor *domain.RemoteAccount, deps *InboxDeps) error {
	// Parse the Undo activity
	var undo struct {
		Type   string          `json:"type"`
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(body, &undo); err != nil {
		return fmt.Errorf("failed to parse Undo activity: %w", err)
	}

	// Parse the embedded object
	var obj struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	if err := json.Unmarshal(undo.Object, &obj); err != nil {
		return fmt.Errorf("failed to parse Undo object: %w", err)
	}

	switch obj.Type {
	case "Like":
		err, note := deps.Database.ReadNoteByURI(obj.Object)
		if err != nil || note == nil {
			log.Printf("Inbox: Undo Like references unknown note %s, ignoring", obj.Object)
			return nil
		}
		err, existing := deps.Database.ReadLikeByAccountAndNote(remoteActor.Id, note.Id)
		if err != nil || existing == nil {
			log.Printf("Inbox: Undo Like from %s has no existing like on %s, ignoring", remoteActor.ActorURI, obj.Object)
			return nil
		}
		if err := deps.Database.DeleteLikeByAccountAndNote(remoteActor.Id, note.Id); err != nil {
			return fmt.Errorf("failed to delete like: %w", err)
		}
		return deps.Database.DecrementLikeCountByNoteId(note.Id)
	case "Announce":
		err, note := deps.Database.ReadNoteByURI(obj.Object)
		if err != nil || note == nil {
			log.Printf("Inbox: Undo Announce references unknown note %s, ignoring", obj.Object)
			return nil
		}
		has, err := deps.Database.HasBoost(remoteActor.Id, note.Id)
		if err != nil || !has {
			log.Printf("Inbox: Undo Announce from %s has no existing boost on %s, ignoring", remoteActor.ActorURI, obj.Object)
			return nil
		}
		if err := deps.Database.DeleteBoostByAccountAndNote(remoteActor.Id, note.Id); err != nil {
			return fmt.Errorf("failed to delete boost: %w", err)
		}
		return deps.Database.DecrementBoostCountByNoteId(note.Id)
	}

	if obj.Type == "Follow" {
		// Verify authorization: Undo actor must match Follow actor
		database := deps.Database

		// Fetch the follow to verify ownership
		err, follow := database.ReadFollowByURI(obj.ID)
		if err != nil {
			return fmt.Errorf("follow not found: %w", err)
		}
		if follow == nil {
			return fmt.Errorf("follow not found")
		}

		// Verify the Undo actor matches the Follow actor
		// For remote follows, the AccountId is the remote actor who created the follow
		err, followActor := database.ReadRemoteAccountById(follow.AccountId)
		if err != nil || followActor == nil {
			return fmt.Errorf("follow actor not found")
		}
		if followActor.ActorURI != undo.Actor {
			return fmt.Errorf("unauthorized: actor %s cannot undo follow created by %s", undo.Actor, followActor.ActorURI)
		}

		// Authorization passed, delete the follow relationship
		if err := database.DeleteFollowByURI(obj.ID); err != nil {
			return fmt.Errorf("failed to delete follow: %w", err)
		}
		log.Printf("Inbox: Removed follow from %s@%s", remoteActor.Username, remoteActor.Domain)
	}

	return nil
}

// handleCreateActivity processes a Create activity (incoming post/note)
func handleCreateActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleCreateActivityWithDeps(body, username, deps)
}

// handleCreateActivityWithDeps processes a Create activity (incoming post/note).
// This version accepts dependencies for testing.
func handleCreateActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var create struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object struct {
			ID           string `json:"id"`
			Type         string `json:"type"`
			Content      string `json:"content"`
			Published    string `json:"published"`
			AttributedTo string `json:"attributedTo"`
			InReplyTo    string `json:"inReplyTo"`
			Tag          []struct {
				Type string `json:"type"`
				Href string `json:"href"`
				Name string `json:"name"`
			} `json:"tag"`
		} `json:"object"`
	}

	if err := json.Unmarshal(body, &create); err != nil {
		return fmt.Errorf("failed to parse Create activity: %w", err)
	}

	log.Printf("Inbox: Received post from %s", create.Actor)

	// Log if this is a reply
	if create.Object.InReplyTo != "" {
		log.Printf("Inbox: Post is a reply to %s", create.Object.InReplyTo)
	}

	database := deps.Database

	// Get the local account
	err, localAccount := database.ReadAccByUsername(username)
	if err != nil {
		log.Printf("Inbox: Failed to get local account %s: %v", username, err)
		return fmt.Errorf("failed to get local account: %w", err)
	}
	log.Printf("Inbox: Local account: %s (ID: %s)", localAccount.Username, localAccount.Id)

	// Get the remote actor (try cache first, fetch if not found)
	err, remoteActor := database.ReadRemoteAccountByActorURI(create.Actor)
	if err != nil || remoteActor == nil {
		// Not in cache, try to fetch it
		log.Printf("Inbox: Actor %s not cached, fetching...", create.Actor)
		remoteActor, err = FetchRemoteActorWithDeps(create.Actor, deps.HTTPClient, deps.Database)
		if err != nil {
			log.Printf("Inbox: Failed to fetch actor %s: %v", create.Actor, err)
			return fmt.Errorf("unknown actor")
		}
	}
	log.Printf("Inbox: Remote actor: %s@%s (ID: %s)", remoteActor.Username, remoteActor.Domain, remoteActor.Id)

	// Check if we follow this actor
	err, follow := database.ReadFollowByAccountIds(localAccount.Id, remoteActor.Id)
	isFollowing := err == nil && follow != nil

	if isFollowing {
		log.Printf("Inbox: Accepted post from followed user %s@%s (follow accepted: %v)", remoteActor.Username, remoteActor.Domain, follow.Accepted)
	} else {
		// Not following - only accept if this is a reply to one of our posts
		isReplyToOurPost := false
		if create.Object.InReplyTo != "" {
			// Check if the parent post belongs to the local user
			err, parentNote := database.ReadNoteByURI(create.Object.InReplyTo)
			if err == nil && parentNote != nil && parentNote.CreatedBy == username {
				isReplyToOurPost = true
				log.Printf("Inbox: This is a reply to our post, accepting without follow check")
			}
		}

		if !isReplyToOurPost {
			log.Printf("Inbox: Rejecting Create from %s - not following and not a reply to our post", create.Actor)
			return fmt.Errorf("not following this actor")
		}
	}

	// Increment reply count on the parent post if this is a reply
	// But skip if this activity is a duplicate of a local note (our own post coming back via federation)
	if create.Object.InReplyTo != "" {
		// Check if this activity's object_uri matches an existing local note
		// This happens when our own post is federated out and comes back
		err, existingNote := database.ReadNoteByURI(create.Object.ID)
		isDuplicate := err == nil && existingNote != nil

		if isDuplicate {
			log.Printf("Inbox: Skipping reply count increment - activity %s is a duplicate of local note", create.Object.ID)
		} else {
			if err := database.IncrementReplyCountByURI(create.Object.InReplyTo); err != nil {
				log.Printf("Inbox: Failed to increment reply count for %s: %v", create.Object.InReplyTo, err)
				// Don't fail the activity processing for this
			} else {
				log.Printf("Inbox: Incremented reply count for %s", create.Object.InReplyTo)
			}
		}
	}

	// Process tags (hashtags and mentions) from the incoming activity
	// Store mentions in the database for future notification support
	if len(create.Object.Tag) > 0 {
		// Get the activity record to link mentions to it
		err, activityRecord := database.ReadActivityByObjectURI(create.Object.ID)
		if err != nil || activityRecord == nil {
			log.Printf("Inbox: Could not find activity record for %s, skipping mention storage", create.Object.ID)
		}

		for _, tag := range create.Object.Tag {
			switch tag.Type {
			case "Mention":
				log.Printf("Inbox: Post mentions %s (%s)", tag.Name, tag.Href)

				// Store the mention in the database
				if activityRecord != nil {
					// Parse username and domain from @username@domain format
					mentionName := strings.TrimPrefix(tag.Name, "@")
					parts := strings.SplitN(mentionName, "@", 2)
					if len(parts) == 2 {
						mention := &domain.NoteMention{
							Id:                uuid.New(),
							NoteId:            activityRecord.Id, // Use activity ID as the note reference
							MentionedActorURI: tag.Href,
							MentionedUsername: parts[0],
							MentionedDomain:   parts[1],
							CreatedAt:         time.Now(),
						}
						if err := database.CreateNoteMention(mention); err != nil {
							log.Printf("Inbox: Failed to store mention %s: %v", tag.Name, err)
						} else {
							log.Printf("Inbox: Stored mention %s for activity %s", tag.Name, activityRecord.Id)
						}
					}
				}
			case "Hashtag":
				// Hashtags are already included in the stored activity raw JSON
				log.Printf("Inbox: Post contains hashtag %s", tag.Name)
			}
		}
	}

	// Note: Activity is already stored in HandleInbox before this function is called
	// No need to store it again here

	return nil
}

// handleLikeActivity processes a Like activity
func handleLikeActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleLikeActivityWithDeps(body, username, deps)
}

// handleLikeActivityWithDeps processes a Like activity: it upserts the
// Vote against the liked Note and bumps its display count (spec
// §4.C6). A Like on a Note we don't hold locally, or from an actor we
// can't resolve, is accepted and silently dropped rather than held in
// the suspense buffer — unlike a Create's inReplyTo, there is no
// generic remote-object fetch path to complete it later.
func handleLikeActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var like struct {
		ID     string `json:"id"`
		Actor  string `json:"actor"`
		Object string `json:"object"`
	}
	if err := json.Unmarshal(body, &like); err != nil {
		return fmt.Errorf("failed to parse Like activity: %w", err)
	}

	remoteActor, err := GetOrFetchActorWithDeps(like.Actor, deps.HTTPClient, deps.Database)
	if err != nil {
		log.Printf("Inbox: Like from unresolvable actor %s: %v", like.Actor, err)
		return nil
	}

	err, note := deps.Database.ReadNoteByURI(like.Object)
	if err != nil || note == nil {
		log.Printf("Inbox: Like from %s references unknown note %s, ignoring", remoteActor.ActorURI, like.Object)
		return nil
	}

	has, err := deps.Database.HasLike(remoteActor.Id, note.Id)
	if err != nil {
		return fmt.Errorf("failed to check existing like: %w", err)
	}
	if has {
		return nil
	}

	vote := &domain.Like{
		Id:        uuid.New(),
		AccountId: remoteActor.Id,
		NoteId:    note.Id,
		URI:       like.ID,
		CreatedAt: time.Now(),
	}
	if err := deps.Database.CreateLike(vote); err != nil {
		return fmt.Errorf("failed to store like: %w", err)
	}
	return deps.Database.IncrementLikeCountByNoteId(note.Id)
}

// handleAcceptActivity processes an Accept activity (response to Follow)
func handleAcceptActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleAcceptActivityWithDeps(body, username, deps)
}

// handleAcceptActivityWithDeps processes an Accept activity (response to Follow).
// This version accepts dependencies for testing.
func handleAcceptActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var accept struct {
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object any    `json:"object"`
	}

	if err := json.Unmarshal(body, &accept); err != nil {
		return fmt.Errorf("failed to parse Accept activity: %w", err)
	}

	// Extract Follow ID from object (can be string or object)
	var followID string
	switch obj := accept.Object.(type) {
	case string:
		// Object is a simple URI string (common in Accept responses)
		followID = obj
	case map[string]any:
		// Object is a full Follow object
		if id, ok := obj["id"].(string); ok {
			followID = id
		}
	}

	if followID == "" {
		return fmt.Errorf("could not extract Follow ID from Accept object")
	}

	// Update the follow to accepted=true
	database := deps.Database
	if err := database.AcceptFollowByURI(followID); err != nil {
		return fmt.Errorf("failed to accept follow: %w", err)
	}

	log.Printf("Inbox: Follow %s was accepted by %s", followID, accept.Actor)
	return nil
}

// handleUpdateActivity processes an Update activity (e.g., profile updates, post edits)
func handleUpdateActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleUpdateActivityWithDeps(body, username, deps)
}

// handleUpdateActivityWithDeps processes an Update activity (e.g., profile updates, post edits).
// This version accepts dependencies for testing.
func handleUpdateActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var update struct {
		ID     string          `json:"id"`
		Type   string          `json:"type"`
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}

	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("failed to parse Update activity: %w", err)
	}

	// Parse the object to determine what type it is
	var objectType struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(update.Object, &objectType); err != nil {
		return fmt.Errorf("failed to parse Update object: %w", err)
	}

	log.Printf("Inbox: Processing Update for %s (type: %s) from %s", objectType.ID, objectType.Type, update.Actor)

	database := deps.Database

	switch objectType.Type {
	case "Person":
		// Profile update - re-fetch and update cached actor
		remoteActor, err := GetOrFetchActorWithDeps(update.Actor, deps.HTTPClient, deps.Database)
		if err != nil {
			return fmt.Errorf("failed to fetch updated actor: %w", err)
		}
		log.Printf("Inbox: Updated profile for %s@%s", remoteActor.Username, remoteActor.Domain)

	case "Note", "Article":
		// Post edit - find the existing activity that contains this Note/Article
		// The activity is stored with the Create activity ID, but we need to find it by the Note ID
		err, existingActivity := database.ReadActivityByObjectURI(objectType.ID)
		if err != nil || existingActivity == nil {
			log.Printf("Inbox: Note/Article %s not found for update, ignoring", objectType.ID)
			return nil
		}

		// Update the stored activity with new content but keep activity_type as 'Create'
		// so it still shows up in the timeline
		existingActivity.RawJSON = string(body)
		// Don't change the ActivityType - keep it as 'Create' so it shows in timeline
		if err := database.UpdateActivity(existingActivity); err != nil {
			return fmt.Errorf("failed to update activity: %w", err)
		}
		log.Printf("Inbox: Updated Note/Article %s", objectType.ID)

	default:
		log.Printf("Inbox: Unsupported Update object type: %s", objectType.Type)
	}

	return nil
}

// handleDeleteActivity processes a Delete activity (e.g., post deletion, account deletion)
func handleDeleteActivity(body []byte, username string) error {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	return handleDeleteActivityWithDeps(body, username, deps)
}

// handleDeleteActivityWithDeps processes a Delete activity (e.g., post deletion, account deletion).
// This version accepts dependencies for testing.
func handleDeleteActivityWithDeps(body []byte, username string, deps *InboxDeps) error {
	var delete struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object any    `json:"object"`
	}

	if err := json.Unmarshal(body, &delete); err != nil {
		return fmt.Errorf("failed to parse Delete activity: %w", err)
	}

	database := deps.Database

	// Object can be either a string URI or an embedded object
	var objectURI string
	switch obj := delete.Object.(type) {
	case string:
		objectURI = obj
	case map[string]any:
		if id, ok := obj["id"].(string); ok {
			objectURI = id
		}
		if typ, ok := obj["type"].(string); ok && typ == "Tombstone" {
			// Tombstone object indicates a deletion
			if id, ok := obj["id"].(string); ok {
				objectURI = id
			}
		}
	}

	if objectURI == "" {
		return fmt.Errorf("could not determine object URI from Delete activity")
	}

	log.Printf("Inbox: Processing Delete for %s from %s", objectURI, delete.Actor)

	// Check if it's an actor deletion (URI matches the actor)
	if objectURI == delete.Actor {
		// Actor deletion - remove their follows and the cached remote
		// account; stored activities and notes are kept
		log.Printf("Inbox: Actor %s deleted their account", delete.Actor)

		// Delete remote account
		err, remoteAcc := database.ReadRemoteAccountByActorURI(objectURI)
		if err == nil && remoteAcc != nil {
			// Delete all follows to/from this actor
			database.DeleteFollowsByRemoteAccountId(remoteAcc.Id)
			// Delete the remote account
			database.DeleteRemoteAccount(remoteAcc.Id)
			log.Printf("Inbox: Removed actor %s and all associated data", objectURI)
		}
	} else {
		// Object deletion (post, note, etc.) - find the activity containing this object
		err, activity := database.ReadActivityByObjectURI(objectURI)
		if err != nil || activity == nil {
			log.Printf("Inbox: Activity with object %s not found for deletion, ignoring", objectURI)
			return nil
		}

		// Verify authorization: Delete actor must match Activity actor
		if activity.ActorURI != delete.Actor {
			return fmt.Errorf("unauthorized: actor %s cannot delete content created by %s", delete.Actor, activity.ActorURI)
		}

		// Authorization passed, delete the activity from the database
		if err := database.DeleteActivity(activity.Id); err != nil {
			return fmt.Errorf("failed to delete activity: %w", err)
		}
		log.Printf("Inbox: Deleted activity containing object %s", objectURI)
	}

	return nil
}
