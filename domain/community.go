package domain

import (
	"time"

	"github.com/google/uuid"
)

// Community is a local Group actor (spec §3): it maintains a follower
// collection and a featured (stickied) collection, and is the only
// legitimate signer of activities that speak for it. Unlike an Account,
// a Community has no login of its own; moderators act on its behalf
// via CommunityModerator.
type Community struct {
	Id            uuid.UUID
	Name          string
	DisplayName   string
	Summary       string
	PublicKeyPem  string
	PrivateKeyPem string
	CreatedAt     time.Time
}

// CommunityModerator grants a local account authority to act on a
// Community's behalf: Add/Remove its featured collection, Announce its
// content. Membership is checked, never inferred from activity content.
type CommunityModerator struct {
	Id          uuid.UUID
	CommunityId uuid.UUID
	AccountId   uuid.UUID
	CreatedAt   time.Time
}

// FeaturedPost is a stickied entry in a Community's featured
// collection, added and removed only via moderator Add/Remove.
type FeaturedPost struct {
	Id          uuid.UUID
	CommunityId uuid.UUID
	ObjectURI   string
	CreatedAt   time.Time
}
