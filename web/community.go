package web

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deemkeen/stegodon/db"
	"github.com/deemkeen/stegodon/util"
)

// communityIRI builds the canonical URI for a community sub-resource.
// Mirrors getIRI's per-actor switch but rooted at /c/{name} rather than
// /u/{name}, since a Group actor is addressed separately from a Person.
func communityIRI(domain string, name string, action action) string {
	prefix := fmt.Sprintf("https://%s/c/%s", domain, name)
	switch action {
	case inbox:
		return fmt.Sprintf("%s/inbox", prefix)
	case outbox:
		return fmt.Sprintf("%s/outbox", prefix)
	case followers:
		return fmt.Sprintf("%s/followers", prefix)
	case id:
		return prefix
	default:
		return ""
	}
}

// GetCommunityActor returns a Group actor document (spec §3/§6).
func GetCommunityActor(name string, conf *util.AppConfig) (error, string) {
	err, community := db.GetDB().ReadCommunityByName(name)
	if err != nil {
		return err, "{}"
	}

	pubKey := strings.ReplaceAll(community.PublicKeyPem, "\n", "\\n")
	displayName := community.DisplayName
	if displayName == "" {
		displayName = community.Name
	}
	summary := strings.ReplaceAll(community.Summary, "\"", "\\\"")
	summary = strings.ReplaceAll(summary, "\n", "\\n")
	logoURL := fmt.Sprintf("https://%s/static/stegologo.png", conf.Conf.SslDomain)

	return nil, fmt.Sprintf(
		`{
					"@context": [
						"https://www.w3.org/ns/activitystreams",
						"https://w3id.org/security/v1"
					],

					"id": "%s",
					"type": "Group",
					"preferredUsername": "%s",
					"name": "%s",
					"summary": "%s",
					"inbox": "%s",
					"outbox": "%s",
					"followers": "%s",
					"featured": "%s",
					"moderators": "%s",
					"url": "%s",
					"manuallyApprovesFollowers": false,
					"discoverable": true,
					"icon": {
						"type": "Image",
						"mediaType": "image/png",
						"url": "%s"
					},
					"publicKey": {
						"id": "%s#main-key",
						"owner": "%s",
						"publicKeyPem": "%s"
					}
				}`,
		communityIRI(conf.Conf.SslDomain, community.Name, id),
		community.Name, displayName, summary,
		communityIRI(conf.Conf.SslDomain, community.Name, inbox),
		communityIRI(conf.Conf.SslDomain, community.Name, outbox),
		communityIRI(conf.Conf.SslDomain, community.Name, followers),
		fmt.Sprintf("https://%s/c/%s/featured", conf.Conf.SslDomain, community.Name),
		fmt.Sprintf("https://%s/c/%s/moderators", conf.Conf.SslDomain, community.Name),
		communityIRI(conf.Conf.SslDomain, community.Name, id),
		logoURL,
		communityIRI(conf.Conf.SslDomain, community.Name, id),
		communityIRI(conf.Conf.SslDomain, community.Name, id), pubKey)
}

// GetCommunityFollowers returns the community's follower OrderedCollection,
// always paged per the same Mastodon-compatibility rule as the per-actor one.
func GetCommunityFollowers(name string, conf *util.AppConfig) (error, string) {
	err, community := db.GetDB().ReadCommunityByName(name)
	if err != nil {
		return err, "{}"
	}
	followerURIs, err := db.GetDB().ReadCommunityFollowers(community.Id)
	if err != nil {
		return err, "{}"
	}

	collectionURI := communityIRI(conf.Conf.SslDomain, name, followers)
	collection := map[string]any{
		"@context":   "https://www.w3.org/ns/activitystreams",
		"id":         collectionURI,
		"type":       "OrderedCollection",
		"totalItems": len(followerURIs),
		"first":      fmt.Sprintf("%s?page=1", collectionURI),
	}

	jsonBytes, err := json.Marshal(collection)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetCommunityFollowersPage returns one page of the follower collection.
func GetCommunityFollowersPage(name string, conf *util.AppConfig, followerURIs []string, page int) string {
	collectionURI := communityIRI(conf.Conf.SslDomain, name, followers)
	pageURI := fmt.Sprintf("%s?page=%d", collectionURI, page)

	collectionPage := map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           pageURI,
		"type":         "OrderedCollectionPage",
		"partOf":       collectionURI,
		"orderedItems": followerURIs,
		"totalItems":   len(followerURIs),
	}

	jsonBytes, err := json.Marshal(collectionPage)
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}

// GetCommunityOutbox returns the community's outbox: the set of object URIs
// it has featured, which is what it actually Announces to its followers.
// A community has no notes of its own; its outbox is its featured collection.
func GetCommunityOutbox(name string, conf *util.AppConfig) (error, string) {
	err, community := db.GetDB().ReadCommunityByName(name)
	if err != nil {
		return err, "{}"
	}
	featured, err := db.GetDB().ReadFeaturedPosts(community.Id)
	if err != nil {
		return err, "{}"
	}

	objectURIs := make([]string, 0, len(featured))
	for _, f := range featured {
		objectURIs = append(objectURIs, f.ObjectURI)
	}

	collectionURI := communityIRI(conf.Conf.SslDomain, name, outbox)
	collection := map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           collectionURI,
		"type":         "OrderedCollection",
		"totalItems":   len(objectURIs),
		"orderedItems": objectURIs,
	}

	jsonBytes, err := json.Marshal(collection)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetCommunityFeatured returns the community's featured (stickied) collection.
func GetCommunityFeatured(name string, conf *util.AppConfig) (error, string) {
	err, community := db.GetDB().ReadCommunityByName(name)
	if err != nil {
		return err, "{}"
	}
	featured, err := db.GetDB().ReadFeaturedPosts(community.Id)
	if err != nil {
		return err, "{}"
	}

	objectURIs := make([]string, 0, len(featured))
	for _, f := range featured {
		objectURIs = append(objectURIs, f.ObjectURI)
	}

	collectionURI := fmt.Sprintf("https://%s/c/%s/featured", conf.Conf.SslDomain, name)
	collection := map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           collectionURI,
		"type":         "OrderedCollection",
		"totalItems":   len(objectURIs),
		"orderedItems": objectURIs,
	}

	jsonBytes, err := json.Marshal(collection)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetCommunityModerators returns the community's moderator collection as
// actor URIs, resolved from the locally-registered account roster.
func GetCommunityModerators(name string, conf *util.AppConfig) (error, string) {
	err, community := db.GetDB().ReadCommunityByName(name)
	if err != nil {
		return err, "{}"
	}

	moderatorURIs, err := db.GetDB().ReadCommunityModeratorActorURIs(community.Id, conf.Conf.SslDomain)
	if err != nil {
		return err, "{}"
	}

	collectionURI := fmt.Sprintf("https://%s/c/%s/moderators", conf.Conf.SslDomain, name)
	collection := map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           collectionURI,
		"type":         "OrderedCollection",
		"totalItems":   len(moderatorURIs),
		"orderedItems": moderatorURIs,
	}

	jsonBytes, err := json.Marshal(collection)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}
