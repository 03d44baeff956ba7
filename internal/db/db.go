package db

import (
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Connect opens the database for driver and runs migrations.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	if driver == DriverSQLite && !strings.Contains(dsn, "_time_format=") {
		dsn = withQueryParam(dsn, "_time_format=sqlite")
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if driver == DriverSQLite {
		// a single connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	if err := runMigrations(db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// OpenMemory returns a migrated in-memory SQLite database.
func OpenMemory() (*sqlx.DB, error) {
	return Connect(DriverSQLite, ":memory:")
}

func withQueryParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

func runMigrations(db *sqlx.DB, driver string) error {
	migrations := postgresMigrations
	if driver == DriverSQLite {
		migrations = sqliteMigrations
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("%w\nSQL: %s", err, m)
		}
	}
	log.Printf("database migrations applied driver=%s", driver)
	return nil
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            username VARCHAR(150) NOT NULL UNIQUE,
            email VARCHAR(254) NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            avatar_ref TEXT,
            bio VARCHAR(500) NOT NULL DEFAULT '',
            last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS chats (
            id UUID PRIMARY KEY,
            user1_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            user2_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            created_at TIMESTAMPTZ NOT NULL,
            last_activity_at TIMESTAMPTZ NOT NULL,
            last_message_id UUID,
            UNIQUE(user1_id, user2_id),
            CHECK (user1_id <> user2_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            content_type VARCHAR(5) NOT NULL CHECK (content_type IN ('text', 'image', 'audio')),
            text_content TEXT,
            media_ref TEXT,
            created_at TIMESTAMPTZ NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            CHECK ((content_type = 'text') = (text_content IS NOT NULL)),
            CHECK ((text_content IS NULL) <> (media_ref IS NULL))
        );`,
	`CREATE INDEX IF NOT EXISTS idx_chats_user1 ON chats(user1_id);`,
	`CREATE INDEX IF NOT EXISTS idx_chats_user2 ON chats(user2_id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(chat_id, sender_id) WHERE is_read = FALSE;`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            username VARCHAR(150) NOT NULL UNIQUE,
            email VARCHAR(254) NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            avatar_ref TEXT,
            bio VARCHAR(500) NOT NULL DEFAULT '',
            last_seen TIMESTAMP NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS chats (
            id TEXT PRIMARY KEY,
            user1_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            user2_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            created_at TIMESTAMP NOT NULL,
            last_activity_at TIMESTAMP NOT NULL,
            last_message_id TEXT,
            UNIQUE(user1_id, user2_id),
            CHECK (user1_id <> user2_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            content_type VARCHAR(5) NOT NULL CHECK (content_type IN ('text', 'image', 'audio')),
            text_content TEXT,
            media_ref TEXT,
            created_at TIMESTAMP NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            CHECK ((content_type = 'text') = (text_content IS NOT NULL)),
            CHECK ((text_content IS NULL) <> (media_ref IS NULL))
        );`,
	`CREATE INDEX IF NOT EXISTS idx_chats_user1 ON chats(user1_id);`,
	`CREATE INDEX IF NOT EXISTS idx_chats_user2 ON chats(user2_id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at DESC);`,
}
