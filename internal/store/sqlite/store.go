// Package sqlite implements the store interfaces over a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clanhall/authcore/internal/domain"
	autherrors "github.com/clanhall/authcore/internal/errors"
	"github.com/clanhall/authcore/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	subject    TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	user_id            INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	refresh_token_hash TEXT NOT NULL UNIQUE,
	created_at         INTEGER NOT NULL,
	expires_at         INTEGER NOT NULL,
	ip                 TEXT NOT NULL DEFAULT '',
	user_agent         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS shared_config (
	key         TEXT PRIMARY KEY,
	value       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL
);
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store backs all repositories with one SQLite database, so sessions, users
// and the shared config rows share visibility boundaries.
type Store struct {
	db       *sql.DB
	sessions *sessionRepository
	users    *userRepository
	config   *sharedConfigRepository
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, autherrors.Configuration("database path is required", nil)
	}

	dsn := path
	if !strings.Contains(path, ":memory:") {
		dsn += "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, autherrors.Configuration("open sqlite database", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, autherrors.Configuration("ping sqlite database", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, autherrors.Configuration("apply sqlite schema", err)
	}

	s := &Store{db: db}
	s.sessions = &sessionRepository{db: db}
	s.users = &userRepository{db: db}
	s.config = &sharedConfigRepository{db: db}
	return s, nil
}

// DB returns the raw database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Sessions returns the session repository.
func (s *Store) Sessions() store.SessionRepository { return s.sessions }

// Users returns the user repository.
func (s *Store) Users() store.UserRepository { return s.users }

// SharedConfig returns the shared config repository.
func (s *Store) SharedConfig() store.SharedConfigRepository { return s.config }

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type sessionRepository struct {
	db *sql.DB
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, refresh_token_hash, created_at, expires_at, ip, user_agent
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row, id)
}

func (r *sessionRepository) GetByRefreshTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, refresh_token_hash, created_at, expires_at, ip, user_agent
		 FROM sessions WHERE refresh_token_hash = ?`, hash)
	return scanSession(row, hash)
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, refresh_token_hash, created_at, expires_at, ip, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			refresh_token_hash = excluded.refresh_token_hash,
			expires_at = excluded.expires_at,
			ip = excluded.ip,
			user_agent = excluded.user_agent`,
		session.ID, session.UserID, session.RefreshTokenHash,
		toMillis(session.CreatedAt), toMillis(session.ExpiresAt),
		session.IP, session.UserAgent)
	if err != nil {
		return autherrors.Internal("save session", err)
	}
	return nil
}

func (r *sessionRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return autherrors.Internal("delete session", err)
	}
	return nil
}

func (r *sessionRepository) DeleteExpired(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, toMillis(time.Now())); err != nil {
		return autherrors.Internal("delete expired sessions", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner, ref string) (*domain.Session, error) {
	var s domain.Session
	var createdAt, expiresAt int64
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &createdAt, &expiresAt, &s.IP, &s.UserAgent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autherrors.NotFound("session", ref)
	}
	if err != nil {
		return nil, autherrors.Internal("scan session", err)
	}
	s.CreatedAt = fromMillis(createdAt)
	s.ExpiresAt = fromMillis(expiresAt)
	return &s, nil
}

type userRepository struct {
	db *sql.DB
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (subject, email, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.Subject, user.Email, user.Name,
		toMillis(user.CreatedAt), toMillis(user.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return autherrors.AlreadyExists("user", user.Subject)
		}
		return autherrors.Internal("create user", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return autherrors.Internal("read user id", err)
	}
	user.ID = id
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, subject, email, name, created_at, updated_at FROM users WHERE id = ?`, id)
	return scanUser(row, strconv.FormatInt(id, 10))
}

func (r *userRepository) GetBySubject(ctx context.Context, subject string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, subject, email, name, created_at, updated_at FROM users WHERE subject = ?`, subject)
	return scanUser(row, subject)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, subject, email, name, created_at, updated_at
		 FROM users WHERE email = ? AND email != '' ORDER BY id LIMIT 1`, email)
	return scanUser(row, email)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET subject = ?, email = ?, name = ?, updated_at = ? WHERE id = ?`,
		user.Subject, user.Email, user.Name, toMillis(user.UpdatedAt), user.ID)
	if err != nil {
		return autherrors.Internal("update user", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return autherrors.Internal("update user", err)
	}
	if affected == 0 {
		return autherrors.NotFound("user", strconv.FormatInt(user.ID, 10))
	}
	return nil
}

func scanUser(row rowScanner, ref string) (*domain.User, error) {
	var u domain.User
	var createdAt, updatedAt int64
	err := row.Scan(&u.ID, &u.Subject, &u.Email, &u.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autherrors.NotFound("user", ref)
	}
	if err != nil {
		return nil, autherrors.Internal("scan user", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

type sharedConfigRepository struct {
	db *sql.DB
}

func (r *sharedConfigRepository) Get(ctx context.Context, key string) (*domain.SharedConfigEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT key, value, description, updated_at FROM shared_config WHERE key = ?`, key)

	var e domain.SharedConfigEntry
	var updatedAt int64
	err := row.Scan(&e.Key, &e.Value, &e.Description, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autherrors.NotFound("config entry", key)
	}
	if err != nil {
		return nil, autherrors.Internal("scan config entry", err)
	}
	e.UpdatedAt = fromMillis(updatedAt)
	return &e, nil
}

func (r *sharedConfigRepository) Upsert(ctx context.Context, entry *domain.SharedConfigEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shared_config (key, value, description, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		entry.Key, entry.Value, entry.Description, toMillis(entry.UpdatedAt))
	if err != nil {
		return autherrors.Internal("upsert config entry", err)
	}
	return nil
}

func (r *sharedConfigRepository) List(ctx context.Context) ([]*domain.SharedConfigEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value, description, updated_at FROM shared_config ORDER BY key`)
	if err != nil {
		return nil, autherrors.Internal("list config entries", err)
	}
	defer rows.Close()

	var entries []*domain.SharedConfigEntry
	for rows.Next() {
		var e domain.SharedConfigEntry
		var updatedAt int64
		if err := rows.Scan(&e.Key, &e.Value, &e.Description, &updatedAt); err != nil {
			return nil, autherrors.Internal("scan config entry", err)
		}
		e.UpdatedAt = fromMillis(updatedAt)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, autherrors.Internal("list config entries", err)
	}
	return entries, nil
}
