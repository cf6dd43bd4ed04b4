package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"beresin/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database for the given driver type.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				phone TEXT NOT NULL DEFAULT '',
				role TEXT NOT NULL DEFAULT 'customer',
				password_hash TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				thread_owner_id TEXT NOT NULL,
				sender_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(sender_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS bookings (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL DEFAULT '',
				service_name TEXT NOT NULL,
				customer_name TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'Pending',
				booking_date TEXT NOT NULL,
				total_price REAL NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_owner_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_bookings_created ON bookings(created_at)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id VARCHAR(36) NOT NULL,
				email VARCHAR(255) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				phone VARCHAR(64) NOT NULL DEFAULT '',
				role VARCHAR(32) NOT NULL DEFAULT 'customer',
				password_hash VARCHAR(255) NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token VARCHAR(255) NOT NULL PRIMARY KEY,
				user_id VARCHAR(36) NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				INDEX idx_user_tokens_user (user_id),
				CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS messages (
				id VARCHAR(36) NOT NULL,
				thread_owner_id VARCHAR(36) NOT NULL,
				sender_id VARCHAR(36) NOT NULL,
				role VARCHAR(32) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_messages_thread (thread_owner_id, created_at),
				CONSTRAINT fk_messages_sender FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS bookings (
				id VARCHAR(36) NOT NULL,
				user_id VARCHAR(36) NOT NULL DEFAULT '',
				service_name VARCHAR(255) NOT NULL,
				customer_name VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL DEFAULT 'Pending',
				booking_date VARCHAR(32) NOT NULL,
				total_price DECIMAL(12,2) NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_bookings_created (created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
