package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema for the credential store.  email and token_hash carry the unique
// constraints the session logic relies on; expires_at is indexed for the TTL
// sweeper.
var schemas = map[Dialect][]string{
	MySQL: {
		`CREATE TABLE IF NOT EXISTS users (
			id             CHAR(36)     NOT NULL PRIMARY KEY,
			email          VARCHAR(255) NOT NULL,
			password_hash  VARCHAR(255) NOT NULL,
			name           VARCHAR(255) NOT NULL,
			business_name  VARCHAR(255) NOT NULL DEFAULT '',
			contact_number VARCHAR(32)  NOT NULL,
			address        VARCHAR(512) NOT NULL DEFAULT '',
			role           VARCHAR(16)  NOT NULL,
			is_verified    TINYINT(1)   NOT NULL DEFAULT 0,
			is_active      TINYINT(1)   NOT NULL DEFAULT 1,
			created_at     DATETIME     NOT NULL,
			UNIQUE KEY uq_users_email (email),
			KEY idx_users_role (role)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id         CHAR(36)   NOT NULL PRIMARY KEY,
			token_hash CHAR(64)   NOT NULL,
			user_id    CHAR(36)   NOT NULL,
			expires_at DATETIME   NOT NULL,
			is_active  TINYINT(1) NOT NULL DEFAULT 1,
			created_at DATETIME   NOT NULL,
			UNIQUE KEY uq_refresh_tokens_hash (token_hash),
			KEY idx_refresh_tokens_user (user_id),
			KEY idx_refresh_tokens_expires (expires_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	SQLite: {
		`CREATE TABLE IF NOT EXISTS users (
			id             TEXT     NOT NULL PRIMARY KEY,
			email          TEXT     NOT NULL UNIQUE,
			password_hash  TEXT     NOT NULL,
			name           TEXT     NOT NULL,
			business_name  TEXT     NOT NULL DEFAULT '',
			contact_number TEXT     NOT NULL,
			address        TEXT     NOT NULL DEFAULT '',
			role           TEXT     NOT NULL,
			is_verified    BOOLEAN  NOT NULL DEFAULT 0,
			is_active      BOOLEAN  NOT NULL DEFAULT 1,
			created_at     DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id         TEXT     NOT NULL PRIMARY KEY,
			token_hash TEXT     NOT NULL UNIQUE,
			user_id    TEXT     NOT NULL,
			expires_at DATETIME NOT NULL,
			is_active  BOOLEAN  NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON refresh_tokens(expires_at)`,
	},
}

// Migrate applies the schema.  Statements run one at a time because the
// MySQL driver rejects multi-statement Exec by default.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts, ok := schemas[d]
	if !ok {
		return fmt.Errorf("no schema for dialect %s", d)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", d, err)
		}
	}
	return nil
}
