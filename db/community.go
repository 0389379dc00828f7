package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/google/uuid"
)

// Community (Group actor) tables: the community itself, its moderator
// roster, its featured (stickied) collection, and its remote follower
// set. Grounded on the create-table / insert / select style already
// used for accounts, notes, and relays elsewhere in this package.
const (
	sqlCreateCommunityTable = `CREATE TABLE IF NOT EXISTS communities(
		id uuid NOT NULL PRIMARY KEY,
		name varchar(100) NOT NULL UNIQUE,
		display_name varchar(200) DEFAULT '',
		summary text DEFAULT '',
		public_key_pem text NOT NULL,
		private_key_pem text NOT NULL,
		created_at timestamp default current_timestamp
	)`

	sqlCreateCommunityModeratorTable = `CREATE TABLE IF NOT EXISTS community_moderators(
		id uuid NOT NULL PRIMARY KEY,
		community_id uuid NOT NULL,
		account_id uuid NOT NULL,
		created_at timestamp default current_timestamp,
		UNIQUE(community_id, account_id)
	)`

	sqlCreateFeaturedPostTable = `CREATE TABLE IF NOT EXISTS featured_posts(
		id uuid NOT NULL PRIMARY KEY,
		community_id uuid NOT NULL,
		object_uri varchar(500) NOT NULL,
		created_at timestamp default current_timestamp,
		UNIQUE(community_id, object_uri)
	)`

	sqlCreateCommunityFollowerTable = `CREATE TABLE IF NOT EXISTS community_followers(
		id uuid NOT NULL PRIMARY KEY,
		community_id uuid NOT NULL,
		actor_uri varchar(500) NOT NULL,
		created_at timestamp default current_timestamp,
		UNIQUE(community_id, actor_uri)
	)`
)

// RunCommunityMigrations creates the tables backing local Group actors.
// Additive and idempotent like the rest of the migration set.
func (db *DB) RunCommunityMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		for _, create := range []string{
			sqlCreateCommunityTable,
			sqlCreateCommunityModeratorTable,
			sqlCreateFeaturedPostTable,
			sqlCreateCommunityFollowerTable,
		} {
			if _, err := tx.Exec(create); err != nil {
				return fmt.Errorf("community migration failed: %w", err)
			}
		}
		return nil
	})
}

func (db *DB) CreateCommunity(c *domain.Community) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO communities (id, name, display_name, summary, public_key_pem, private_key_pem, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Id.String(), c.Name, c.DisplayName, c.Summary, c.PublicKeyPem, c.PrivateKeyPem, c.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadCommunityByName(name string) (error, *domain.Community) {
	row := db.db.QueryRow(
		`SELECT id, name, display_name, summary, public_key_pem, private_key_pem, created_at
		 FROM communities WHERE name = ?`, name)

	var c domain.Community
	var idStr string
	if err := row.Scan(&idStr, &c.Name, &c.DisplayName, &c.Summary, &c.PublicKeyPem, &c.PrivateKeyPem, &c.CreatedAt); err != nil {
		return err, nil
	}
	c.Id, _ = uuid.Parse(idStr)
	return nil, &c
}

func (db *DB) ReadCommunityById(id uuid.UUID) (error, *domain.Community) {
	row := db.db.QueryRow(
		`SELECT id, name, display_name, summary, public_key_pem, private_key_pem, created_at
		 FROM communities WHERE id = ?`, id.String())

	var c domain.Community
	var idStr string
	if err := row.Scan(&idStr, &c.Name, &c.DisplayName, &c.Summary, &c.PublicKeyPem, &c.PrivateKeyPem, &c.CreatedAt); err != nil {
		return err, nil
	}
	c.Id, _ = uuid.Parse(idStr)
	return nil, &c
}

// --- Moderators ---

func (db *DB) AddCommunityModerator(m *domain.CommunityModerator) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO community_moderators (id, community_id, account_id, created_at)
			 VALUES (?, ?, ?, ?)`,
			m.Id.String(), m.CommunityId.String(), m.AccountId.String(), m.CreatedAt,
		)
		return err
	})
}

func (db *DB) IsCommunityModerator(communityId, accountId uuid.UUID) (bool, error) {
	var count int
	err := db.db.QueryRow(
		`SELECT COUNT(*) FROM community_moderators WHERE community_id = ? AND account_id = ?`,
		communityId.String(), accountId.String(),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// --- Featured collection ---

func (db *DB) AddFeaturedPost(f *domain.FeaturedPost) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO featured_posts (id, community_id, object_uri, created_at)
			 VALUES (?, ?, ?, ?)`,
			f.Id.String(), f.CommunityId.String(), f.ObjectURI, f.CreatedAt,
		)
		return err
	})
}

func (db *DB) RemoveFeaturedPost(communityId uuid.UUID, objectURI string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`DELETE FROM featured_posts WHERE community_id = ? AND object_uri = ?`,
			communityId.String(), objectURI,
		)
		return err
	})
}

func (db *DB) ReadFeaturedPosts(communityId uuid.UUID) ([]domain.FeaturedPost, error) {
	rows, err := db.db.Query(
		`SELECT id, community_id, object_uri, created_at FROM featured_posts WHERE community_id = ? ORDER BY created_at ASC`,
		communityId.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FeaturedPost
	for rows.Next() {
		var f domain.FeaturedPost
		var idStr, communityIdStr string
		if err := rows.Scan(&idStr, &communityIdStr, &f.ObjectURI, &f.CreatedAt); err != nil {
			return out, err
		}
		f.Id, _ = uuid.Parse(idStr)
		f.CommunityId, _ = uuid.Parse(communityIdStr)
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- Followers ---

func (db *DB) AddCommunityFollower(communityId uuid.UUID, actorURI string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO community_followers (id, community_id, actor_uri, created_at)
			 VALUES (?, ?, ?, ?)`,
			uuid.New().String(), communityId.String(), actorURI, time.Now(),
		)
		return err
	})
}

func (db *DB) RemoveCommunityFollower(communityId uuid.UUID, actorURI string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`DELETE FROM community_followers WHERE community_id = ? AND actor_uri = ?`,
			communityId.String(), actorURI,
		)
		return err
	})
}

// ReadCommunityModeratorActorURIs resolves a community's moderator roster
// to local actor URIs, joining against the accounts table for usernames.
func (db *DB) ReadCommunityModeratorActorURIs(communityId uuid.UUID, sslDomain string) ([]string, error) {
	rows, err := db.db.Query(
		`SELECT a.username FROM community_moderators cm
		 JOIN accounts a ON a.id = cm.account_id
		 WHERE cm.community_id = ? ORDER BY cm.created_at ASC`,
		communityId.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return out, err
		}
		out = append(out, fmt.Sprintf("https://%s/users/%s", sslDomain, username))
	}
	return out, rows.Err()
}

func (db *DB) ReadCommunityFollowers(communityId uuid.UUID) ([]string, error) {
	rows, err := db.db.Query(
		`SELECT actor_uri FROM community_followers WHERE community_id = ? ORDER BY created_at ASC`,
		communityId.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var actorURI string
		if err := rows.Scan(&actorURI); err != nil {
			return out, err
		}
		out = append(out, actorURI)
	}
	return out, rows.Err()
}
