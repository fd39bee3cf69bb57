// Package catalog is the persistent store of admins, rover users, and
// mounts (spec component C1). It is backed by SQLite through
// database/sql + mattn/go-sqlite3, the same driver and connection
// settings the teacher's admin.DB uses, because the catalog - like that
// package - is a small single-writer relational store.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/ntripcaster/caster/internal/nver"
	"github.com/ntripcaster/caster/internal/ntriperr"
)

// RoverUser is a registered subscriber account.
type RoverUser struct {
	ID       int64
	Username string
	Created  time.Time
}

// Mount is a registered mountpoint, with its own mount-password and an
// optional owning RoverUser (spec.md §3: never cascades on user deletion,
// only nulled).
type Mount struct {
	ID            int64
	Name          string
	OwnerUserID   *int64
	OwnerUsername *string
	Created       time.Time
}

// Admin is an operator account authorized to manage the catalog.
type Admin struct {
	ID       int64
	Username string
}

// Store is the catalog's SQLite-backed implementation.
type Store struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// Open creates (if needed) and opens the catalog database at path, matching
// admin.DB's connection settings: WAL journal mode, a single writer
// connection (SQLite allows only one at a time), and an hour-long
// connection lifetime.
func Open(path string, logger logrus.FieldLogger) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating catalog directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing catalog schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS admins (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS rover_users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS mounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			owner_user_id INTEGER REFERENCES rover_users(id) ON DELETE SET NULL,
			created DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("running schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Bootstrap ensures a default admin account exists, used on first startup
// per the default_admin.{username,password} configuration keys.
func (s *Store) Bootstrap(defaultUsername, defaultPassword string) error {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM admins").Scan(&count); err != nil {
		return fmt.Errorf("counting admins: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := hashPassword(defaultPassword)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("INSERT INTO admins (username, password_hash) VALUES (?, ?)", defaultUsername, hash)
	return err
}

// --- Admins ---

// VerifyAdmin checks an operator's credentials, upgrading a matched legacy
// plaintext row in place.
func (s *Store) VerifyAdmin(username, password string) (bool, error) {
	var id int64
	var hash string
	err := s.db.QueryRow("SELECT id, password_hash FROM admins WHERE username = ?", username).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}

	ok, upgrade := verifyPassword(hash, password)
	if upgrade {
		s.upgradeHash(s.db, "admins", id, password)
	}
	return ok, nil
}

func (s *Store) UpdateAdminPassword(username, newPassword string) error {
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	res, err := s.db.Exec("UPDATE admins SET password_hash = ? WHERE username = ?", hash, username)
	if err != nil {
		return ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	return requireRowsAffected(res)
}

func (s *Store) upgradeHash(db *sql.DB, table string, id int64, plaintext string) {
	hash, err := hashPassword(plaintext)
	if err != nil {
		return
	}
	query := fmt.Sprintf("UPDATE %s SET password_hash = ? WHERE id = ?", table)
	if _, err := db.Exec(query, hash, id); err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("failed to upgrade legacy plaintext password")
	}
}

// --- Rover users ---

func (s *Store) CreateUser(username, password string) (*RoverUser, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	res, err := s.db.Exec("INSERT INTO rover_users (username, password_hash) VALUES (?, ?)", username, hash)
	if err != nil {
		return nil, ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	return &RoverUser{ID: id, Username: username, Created: time.Now()}, nil
}

// GetUser returns the user's stored password hash, or ntriperr.ErrNoUser.
func (s *Store) GetUser(username string) (*RoverUser, string, error) {
	var u RoverUser
	var hash string
	err := s.db.QueryRow("SELECT id, username, password_hash, created FROM rover_users WHERE username = ?", username).
		Scan(&u.ID, &u.Username, &hash, &u.Created)
	if err == sql.ErrNoRows {
		return nil, "", ntriperr.ErrNoUser
	}
	if err != nil {
		return nil, "", ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	return &u, hash, nil
}

func (s *Store) ListUsers() ([]RoverUser, error) {
	rows, err := s.db.Query("SELECT id, username, created FROM rover_users")
	if err != nil {
		return nil, ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	defer rows.Close()

	var users []RoverUser
	for rows.Next() {
		var u RoverUser
		if err := rows.Scan(&u.ID, &u.Username, &u.Created); err != nil {
			return nil, ntriperr.Wrap(ntriperr.KindCatalogError, err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(username, newPassword string) error {
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	res, err := s.db.Exec("UPDATE rover_users SET password_hash = ? WHERE username = ?", hash, username)
	if err != nil {
		return ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	return requireRowsAffected(res)
}

// DeleteUser removes a rover user. Any mount this user owns has its owner
// reference nulled by the ON DELETE SET NULL foreign key, never cascaded
// (spec.md §3).
func (s *Store) DeleteUser(username string) error {
	res, err := s.db.Exec("DELETE FROM rover_users WHERE username = ?", username)
	if err != nil {
		return ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	return requireRowsAffected(res)
}

// --- Mounts ---

func (s *Store) CreateMount(name, password string, ownerUsername *string) (*Mount, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	var ownerID *int64
	if ownerUsername != nil {
		_, _, err := s.GetUser(*ownerUsername)
		if err != nil {
			return nil, err
		}
		var id int64
		if err := s.db.QueryRow("SELECT id FROM rover_users WHERE username = ?", *ownerUsername).Scan(&id); err != nil {
			return nil, ntriperr.Wrap(ntriperr.KindCatalogError, err)
		}
		ownerID = &id
	}

	res, err := s.db.Exec("INSERT INTO mounts (name, password_hash, owner_user_id) VALUES (?, ?, ?)", name, hash, ownerID)
	if err != nil {
		return nil, ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	return &Mount{ID: id, Name: name, OwnerUserID: ownerID, OwnerUsername: ownerUsername, Created: time.Now()}, nil
}

// GetMount returns the mount's password hash and owner user id (if any), or
// ntriperr.ErrNoMount.
func (s *Store) GetMount(name string) (passwordHash string, ownerUserID *int64, err error) {
	err = s.db.QueryRow("SELECT password_hash, owner_user_id FROM mounts WHERE name = ?", name).
		Scan(&passwordHash, &ownerUserID)
	if err == sql.ErrNoRows {
		return "", nil, ntriperr.ErrNoMount
	}
	if err != nil {
		return "", nil, ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	return passwordHash, ownerUserID, nil
}

func (s *Store) ListMounts() ([]Mount, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.name, m.owner_user_id, u.username, m.created
		FROM mounts m LEFT JOIN rover_users u ON u.id = m.owner_user_id`)
	if err != nil {
		return nil, ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	defer rows.Close()

	var mounts []Mount
	for rows.Next() {
		var m Mount
		var ownerUsername sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &m.OwnerUserID, &ownerUsername, &m.Created); err != nil {
			return nil, ntriperr.Wrap(ntriperr.KindCatalogError, err)
		}
		if ownerUsername.Valid {
			m.OwnerUsername = &ownerUsername.String
		}
		mounts = append(mounts, m)
	}
	return mounts, rows.Err()
}

func (s *Store) UpdateMountPassword(name, newPassword string) error {
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	res, err := s.db.Exec("UPDATE mounts SET password_hash = ? WHERE name = ?", hash, name)
	if err != nil {
		return ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	return requireRowsAffected(res)
}

func (s *Store) DeleteMount(name string) error {
	res, err := s.db.Exec("DELETE FROM mounts WHERE name = ?", name)
	if err != nil {
		return ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	return requireRowsAffected(res)
}

// VerifyDownload implements the subscriber auth matrix from spec.md §4.1.
//
// NTRIP 2.0: the mount must exist, the user must exist with a matching
// password, and if the mount has an owner it must be this user.
//
// NTRIP 1.0: the mount must exist; if mountPassword is non-empty it must
// match the mount's password. User credentials, if supplied, are verified
// but never bound to ownership (legacy behavior).
func (s *Store) VerifyDownload(mount, user, password, mountPassword string, version nver.Version) error {
	mountHash, ownerID, err := s.GetMount(mount)
	if err != nil {
		return err
	}

	if version == nver.V1 {
		if mountPassword != "" {
			ok, upgrade := verifyPassword(mountHash, mountPassword)
			if upgrade {
				s.upgradeMountHash(mount, mountPassword)
			}
			if !ok {
				return ntriperr.ErrBadPassword
			}
		}
		if user != "" {
			_, userHash, err := s.GetUser(user)
			if err != nil {
				return err
			}
			ok, upgrade := verifyPassword(userHash, password)
			if upgrade {
				s.upgradeUserHash(user, password)
			}
			if !ok {
				return ntriperr.ErrBadPassword
			}
		}
		return nil
	}

	// NTRIP 2.0
	rowUser, userHash, err := s.GetUser(user)
	if err != nil {
		return err
	}
	ok, upgrade := verifyPassword(userHash, password)
	if upgrade {
		s.upgradeUserHash(user, password)
	}
	if !ok {
		return ntriperr.ErrBadPassword
	}
	if ownerID != nil && *ownerID != rowUser.ID {
		return ntriperr.ErrForbidden
	}
	return nil
}

// VerifyUpload authenticates an uploader against a mount's own password,
// used for both the legacy "SOURCE <password> <mount>" line and an
// NTRIP 2.0 "SOURCE /<mount> HTTP/1.1" request's Authorization header (whose username is
// conventionally the mount name itself and is not otherwise checked).
func (s *Store) VerifyUpload(mount, password string) error {
	mountHash, _, err := s.GetMount(mount)
	if err != nil {
		return err
	}
	ok, upgrade := verifyPassword(mountHash, password)
	if upgrade {
		s.upgradeMountHash(mount, password)
	}
	if !ok {
		return ntriperr.ErrBadPassword
	}
	return nil
}

func (s *Store) upgradeMountHash(name, plaintext string) {
	var id int64
	if err := s.db.QueryRow("SELECT id FROM mounts WHERE name = ?", name).Scan(&id); err == nil {
		s.upgradeHash(s.db, "mounts", id, plaintext)
	}
}

func (s *Store) upgradeUserHash(username, plaintext string) {
	var id int64
	if err := s.db.QueryRow("SELECT id FROM rover_users WHERE username = ?", username).Scan(&id); err == nil {
		s.upgradeHash(s.db, "rover_users", id, plaintext)
	}
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return ntriperr.Wrap(ntriperr.KindCatalogError, err)
	}
	if n == 0 {
		return ntriperr.ErrNotFound
	}
	return nil
}
