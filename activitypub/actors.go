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
	"github.com/google/uuid"
)

// defaultHTTPClient is the production HTTPClient used by every
// ...WithDeps production wrapper in this package: bounded timeout,
// SSRF-safe dialer, zero redirects followed.
var defaultHTTPClient HTTPClient = &DefaultHTTPClient{client: NewSafeHTTPClient(10 * time.Second)}

// actorCacheFreshness is how long a cached RemoteAccount is trusted
// before GetOrFetchActorWithDeps triggers a refresh (spec §4.C2 "Cache").
const actorCacheFreshness = 24 * time.Hour

// ActorResponse is the subset of an ActivityPub actor document this
// instance understands.
type ActorResponse struct {
	Context           any    `json:"@context"`
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Summary           string `json:"summary"`
	Inbox             string `json:"inbox"`
	Outbox            string `json:"outbox"`
	Icon              struct {
		URL string `json:"url"`
	} `json:"icon"`
	PublicKey struct {
		Id           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
	Endpoints struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
}

// webfingerJRD is the JSON Resource Descriptor WebFinger returns.
type webfingerJRD struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		Href string `json:"href"`
	} `json:"links"`
}

// FetchRemoteActor fetches and caches the actor document at actorURI.
func FetchRemoteActor(actorURI string) (*domain.RemoteAccount, error) {
	deps := &InboxDeps{Database: NewDBWrapper(), HTTPClient: defaultHTTPClient}
	return FetchRemoteActorWithDeps(actorURI, deps.HTTPClient, deps.Database)
}

// FetchRemoteActorWithDeps performs the network fetch unconditionally
// (no cache check) and upserts the resulting RemoteAccount row. Per
// spec §4.C2, the document is validated before being trusted: https
// scheme, public key present, inbox URI same-host (or authorized via
// endpoints.sharedInbox). The configured BlockedDomains list is not
// checked here.
func FetchRemoteActorWithDeps(actorURI string, client HTTPClient, database Database) (*domain.RemoteAccount, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return nil, fmt.Errorf("invalid actor URI %q: %w", actorURI, err)
	}
	if parsed.Scheme != "https" {
		return nil, fmt.Errorf("refusing non-https actor URI %q", actorURI)
	}

	req, err := http.NewRequest(http.MethodGet, actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build actor request: %w", err)
	}
	req.Header.Set("Accept", "application/activity+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch actor %s: %w", actorURI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch %s returned status %d", actorURI, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read actor body: %w", err)
	}

	var actorResp ActorResponse
	if err := json.Unmarshal(body, &actorResp); err != nil {
		return nil, fmt.Errorf("failed to parse actor document: %w", err)
	}

	if actorResp.ID == "" || actorResp.Inbox == "" || actorResp.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("invalid actor document: missing id, inbox, or public key")
	}
	if err := validateActorOrigin(actorURI, &actorResp); err != nil {
		return nil, err
	}

	domainName := extractDomain(actorURI)
	username := extractUsername(actorURI, &actorResp)

	err2, existing := database.ReadRemoteAccountByActorURI(actorURI)
	now := time.Now()
	if err2 == nil && existing != nil {
		existing.Username = username
		existing.Domain = domainName
		existing.DisplayName = actorResp.Name
		existing.Summary = actorResp.Summary
		existing.InboxURI = actorResp.Inbox
		existing.OutboxURI = actorResp.Outbox
		existing.PublicKeyPem = actorResp.PublicKey.PublicKeyPem
		existing.AvatarURL = actorResp.Icon.URL
		existing.LastFetchedAt = now
		if err := database.UpdateRemoteAccount(existing); err != nil {
			return nil, fmt.Errorf("failed to update cached actor: %w", err)
		}
		return existing, nil
	}

	remote := &domain.RemoteAccount{
		Id:            uuid.New(),
		Username:      username,
		Domain:        domainName,
		ActorURI:      actorURI,
		DisplayName:   actorResp.Name,
		Summary:       actorResp.Summary,
		InboxURI:      actorResp.Inbox,
		OutboxURI:     actorResp.Outbox,
		PublicKeyPem:  actorResp.PublicKey.PublicKeyPem,
		AvatarURL:     actorResp.Icon.URL,
		LastFetchedAt: now,
	}
	if err := database.CreateRemoteAccount(remote); err != nil {
		return nil, fmt.Errorf("failed to cache actor: %w", err)
	}
	return remote, nil
}

// validateActorOrigin enforces that the inbox URI belongs to the actor's
// own host, or to a host the actor's shared inbox endpoint authorizes.
func validateActorOrigin(actorURI string, actor *ActorResponse) error {
	actorHost := extractDomain(actorURI)
	if extractDomain(actor.Inbox) == actorHost {
		return nil
	}
	if actor.Endpoints.SharedInbox != "" && extractDomain(actor.Endpoints.SharedInbox) == extractDomain(actor.Inbox) {
		return nil
	}
	return fmt.Errorf("actor %s inbox %s does not belong to an authorized host", actorURI, actor.Inbox)
}

// GetOrFetchActor returns a cached actor if fresh, otherwise fetches it.
func GetOrFetchActor(actorURI string) (*domain.RemoteAccount, error) {
	deps := &InboxDeps{Database: NewDBWrapper(), HTTPClient: defaultHTTPClient}
	return GetOrFetchActorWithDeps(actorURI, deps.HTTPClient, deps.Database)
}

// GetOrFetchActorWithDeps implements spec §4.C2's cache policy: serve a
// cache hit fresher than actorCacheFreshness; otherwise refresh, but on
// an unrecoverable refresh error fall back to the stale cached entry
// rather than failing the caller (staleness is preferred over
// thrashing).
func GetOrFetchActorWithDeps(actorURI string, client HTTPClient, database Database) (*domain.RemoteAccount, error) {
	err, cached := database.ReadRemoteAccountByActorURI(actorURI)
	if err == nil && cached != nil {
		if time.Since(cached.LastFetchedAt) < actorCacheFreshness {
			return cached, nil
		}
		refreshed, ferr := FetchRemoteActorWithDeps(actorURI, client, database)
		if ferr != nil {
			log.Printf("ActorResolver: refresh of %s failed, serving stale cache: %v", actorURI, ferr)
			return cached, nil
		}
		return refreshed, nil
	}

	return FetchRemoteActorWithDeps(actorURI, client, database)
}

// ResolveHandle performs WebFinger discovery for name@domain and returns
// the resolved actor, per spec §4.C2.
func ResolveHandle(handle string) (*domain.RemoteAccount, error) {
	deps := &InboxDeps{Database: NewDBWrapper(), HTTPClient: defaultHTTPClient}
	return ResolveHandleWithDeps(handle, deps.HTTPClient, deps.Database)
}

func ResolveHandleWithDeps(handle string, client HTTPClient, database Database) (*domain.RemoteAccount, error) {
	handle = strings.TrimPrefix(handle, "@")
	parts := strings.SplitN(handle, "@", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed handle %q, expected name@domain", handle)
	}
	name, host := parts[0], parts[1]

	webfingerURL := fmt.Sprintf("https://%s/.well-known/webfinger?resource=acct:%s@%s", host, name, host)
	req, err := http.NewRequest(http.MethodGet, webfingerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build webfinger request: %w", err)
	}
	req.Header.Set("Accept", "application/jrd+json, application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webfinger lookup for %s failed: %w", handle, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webfinger lookup for %s returned status %d", handle, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read webfinger response: %w", err)
	}

	var jrd webfingerJRD
	if err := json.Unmarshal(body, &jrd); err != nil {
		return nil, fmt.Errorf("failed to parse webfinger JRD: %w", err)
	}

	var selfHref string
	for _, link := range jrd.Links {
		if link.Rel != "self" {
			continue
		}
		if strings.Contains(link.Type, "activity+json") || strings.Contains(link.Type, "ld+json") {
			selfHref = link.Href
			break
		}
	}
	if selfHref == "" {
		return nil, fmt.Errorf("webfinger JRD for %s carries no usable self link", handle)
	}

	return GetOrFetchActorWithDeps(selfHref, client, database)
}

// extractDomain returns the host component of a URI.
func extractDomain(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// extractUsername derives a local handle from an actor's preferredUsername
// (falling back to the last URI path segment).
func extractUsername(actorURI string, actor *ActorResponse) string {
	if actor != nil && actor.PreferredUsername != "" {
		return actor.PreferredUsername
	}
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return actorURI
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 {
		return actorURI
	}
	return segments[len(segments)-1]
}

// TombstoneActor marks a cached actor as no longer resolvable in place,
// per spec §3's Actor lifecycle ("marked deleted on Delete Actor").
func TombstoneActor(actorURI string, database Database) error {
	err, remote := database.ReadRemoteAccountByActorURI(actorURI)
	if err != nil || remote == nil {
		return fmt.Errorf("cannot tombstone unknown actor %s", actorURI)
	}
	remote.DisplayName = "[deleted]"
	remote.Summary = ""
	remote.PublicKeyPem = ""
	return database.UpdateRemoteAccount(remote)
}
