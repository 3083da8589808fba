package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aidanlsb/dendrite/internal/model"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// SQLite is a Store backed by a SQLite database file. Several processes may
// open the same file; Refresh picks up their writes for local subscribers.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	hub    *hub
	closed atomic.Bool
}

// Option configures a SQLite store.
type Option func(*SQLite)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLite) {
		if l != nil {
			s.logger = l
		}
	}
}

var (
	_ Store   = (*SQLite)(nil)
	_ ShareTx = (*SQLite)(nil)
	_ Users   = (*SQLite)(nil)
)

// Open opens or creates the database at path.
func Open(path string, opts ...Option) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newSQLite(db, path, opts)
}

// OpenInMemory opens an in-memory database (for testing).
func OpenInMemory(opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSQLite(db, "", opts)
}

func newSQLite(db *sql.DB, path string, opts []Option) (*SQLite, error) {
	s := &SQLite{db: db, path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.loadSnapshot, s.logger)

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path, empty for in-memory stores.
func (s *SQLite) Path() string {
	return s.path
}

// Close tears down all subscriptions and closes the database.
func (s *SQLite) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.hub.closeAll()
	return s.db.Close()
}

func (s *SQLite) initialize() error {
	schema := `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA foreign_keys = ON;

		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',          -- JSON array
			linked_notes TEXT NOT NULL DEFAULT '[]',  -- JSON array of note ids
			created_at INTEGER NOT NULL,              -- Unix millis
			updated_at INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1        -- bumped on every write
		);

		-- Owner side of a share
		CREATE TABLE IF NOT EXISTS shares (
			owner_id TEXT NOT NULL,
			note_id TEXT NOT NULL,
			grantee_id TEXT NOT NULL,
			email TEXT NOT NULL,
			permission TEXT NOT NULL,
			shared_at INTEGER NOT NULL,
			PRIMARY KEY (owner_id, note_id, grantee_id)
		);

		-- Grantee side: the "shared with me" index of a user document
		CREATE TABLE IF NOT EXISTS shared_index (
			user_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			note_id TEXT NOT NULL,
			permission TEXT NOT NULL,
			shared_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, owner_id, note_id)
		);

		CREATE INDEX IF NOT EXISTS idx_notes_owner ON notes(owner_id);
		CREATE INDEX IF NOT EXISTS idx_shared_index_note ON shared_index(owner_id, note_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", CurrentSchemaVersion))
	if err != nil {
		return fmt.Errorf("failed to set database version: %w", err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// --- notes ---

const noteColumns = `id, owner_id, title, content, tags, linked_notes, created_at, updated_at, version`

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (model.Note, error) {
	var (
		n                model.Note
		tags, links      string
		created, updated int64
	)
	if err := row.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &tags, &links, &created, &updated, &n.Version); err != nil {
		return model.Note{}, err
	}
	var err error
	if n.Tags, err = decodeList(tags); err != nil {
		return model.Note{}, fmt.Errorf("note %s: bad tags: %w", n.ID, err)
	}
	if n.LinkedNotes, err = decodeList(links); err != nil {
		return model.Note{}, fmt.Errorf("note %s: bad linked notes: %w", n.ID, err)
	}
	n.CreatedAt = model.FromMillis(created)
	n.UpdatedAt = model.FromMillis(updated)
	return n, nil
}

func encodeList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func decodeList(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func getNote(ctx context.Context, q querier, path model.DocPath) (model.Note, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ? AND owner_id = ?`, path.NoteID, path.OwnerID)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Note{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return model.Note{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return n, nil
}

// ListNotes returns ownerID's notes in creation order.
func (s *SQLite) ListNotes(ctx context.Context, ownerID string) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE owner_id = ? ORDER BY created_at, rowid`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]model.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// GetNote reads a single note.
func (s *SQLite) GetNote(ctx context.Context, path model.DocPath) (model.Note, error) {
	return getNote(ctx, s.db, path)
}

// CreateNote inserts a note with a fresh id, stamping createdAt and updatedAt.
func (s *SQLite) CreateNote(ctx context.Context, ownerID string, f Fields) (string, error) {
	if ownerID == "" {
		return "", errors.New("create note: owner is required")
	}
	id := uuid.NewString()
	now := model.Now().Millis()

	var created model.Note
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notes (id, owner_id, title, content, tags, linked_notes, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			id, ownerID, f.Title, f.Content, encodeList(f.Tags), encodeList(f.LinkedNotes), now, now)
		if err != nil {
			return fmt.Errorf("failed to insert note: %w", err)
		}
		created, err = getNote(ctx, tx, model.DocPath{OwnerID: ownerID, NoteID: id})
		return err
	})
	if err != nil {
		return "", err
	}

	s.hub.publish(Snapshot{Path: created.Path(), Note: created, Exists: true})
	return id, nil
}

// UpdateNote replaces the note fields and updatedAt in one write.
func (s *SQLite) UpdateNote(ctx context.Context, path model.DocPath, f Fields) error {
	var updated model.Note
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE notes
			SET title = ?, content = ?, tags = ?, linked_notes = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND owner_id = ?`,
			f.Title, f.Content, encodeList(f.Tags), encodeList(f.LinkedNotes), model.Now().Millis(),
			path.NoteID, path.OwnerID)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", path, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		updated, err = getNote(ctx, tx, path)
		return err
	})
	if err != nil {
		return err
	}

	s.hub.publish(Snapshot{Path: path, Note: updated, Exists: true})
	return nil
}

// DeleteNote removes the note together with both sides of its shares.
func (s *SQLite) DeleteNote(ctx context.Context, path model.DocPath) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND owner_id = ?`, path.NoteID, path.OwnerID)
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		for _, table := range []string{"shares", "shared_index"} {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM "+table+" WHERE owner_id = ? AND note_id = ?", path.OwnerID, path.NoteID); err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.hub.publish(Snapshot{Path: path, Exists: false})
	return nil
}

// --- subscriptions ---

// Subscribe implements Store.
func (s *SQLite) Subscribe(path model.DocPath, onUpdate func(Snapshot), onError func(error)) Unsubscribe {
	return s.hub.subscribe(path, onUpdate, onError)
}

func (s *SQLite) loadSnapshot(ctx context.Context, path model.DocPath) (Snapshot, error) {
	if s.closed.Load() {
		return Snapshot{}, ErrClosed
	}
	n, err := s.GetNote(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{Path: path, Exists: false}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: path, Note: n, Exists: true}, nil
}

// Refresh re-reads every subscribed note and pushes the ones that changed
// since they were last published, which covers writes made by other
// processes sharing the database file.
func (s *SQLite) Refresh(ctx context.Context) error {
	for path, known := range s.hub.watched() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.GetNote(ctx, path)
		switch {
		case errors.Is(err, ErrNotFound):
			if known != 0 {
				s.hub.publish(Snapshot{Path: path, Exists: false})
			}
		case err != nil:
			s.hub.fail(path, err)
		case n.Version != known:
			s.hub.publish(Snapshot{Path: path, Note: n, Exists: true})
		}
	}
	return nil
}

// --- users ---

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers a new account.
func (s *SQLite) CreateUser(ctx context.Context, email, passwordHash string) (model.User, error) {
	user := model.User{ID: uuid.NewString(), Email: normalizeEmail(email)}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, user.Email).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to look up user: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("user %s: %w", user.Email, ErrDuplicate)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
			user.ID, user.Email, passwordHash, model.Now().Millis())
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

// Credentials returns the user with email and their stored password hash.
func (s *SQLite) Credentials(ctx context.Context, email string) (model.User, string, error) {
	var (
		u    model.User
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM users WHERE email = ?`, normalizeEmail(email)).
		Scan(&u.ID, &u.Email, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, "", fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, "", fmt.Errorf("failed to look up user: %w", err)
	}
	return u, hash, nil
}

// GetUser returns the user with userID.
func (s *SQLite) GetUser(ctx context.Context, userID string) (model.User, error) {
	return getUser(ctx, s.db, userID)
}

func getUser(ctx context.Context, q querier, userID string) (model.User, error) {
	var u model.User
	err := q.QueryRowContext(ctx, `SELECT id, email FROM users WHERE id = ?`, userID).Scan(&u.ID, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to read user: %w", err)
	}
	return u, nil
}

// FindUserByEmail looks a user up by email, case-insensitively.
func (s *SQLite) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	u, _, err := s.Credentials(ctx, email)
	return u, err
}

// --- user documents ---

// GetUserDoc returns the user document with its "shared with me" index.
func (s *SQLite) GetUserDoc(ctx context.Context, userID string) (model.UserDoc, error) {
	return getUserDoc(ctx, s.db, userID)
}

func getUserDoc(ctx context.Context, q querier, userID string) (model.UserDoc, error) {
	u, err := getUser(ctx, q, userID)
	if err != nil {
		return model.UserDoc{}, err
	}
	doc := model.UserDoc{ID: u.ID, Email: u.Email, SharedWithMe: []model.SharedRef{}}

	rows, err := q.QueryContext(ctx, `
		SELECT owner_id, note_id, permission, shared_at FROM shared_index
		WHERE user_id = ? ORDER BY shared_at, rowid`, userID)
	if err != nil {
		return model.UserDoc{}, fmt.Errorf("failed to read shared index: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ref      model.SharedRef
			perm     string
			sharedAt int64
		)
		if err := rows.Scan(&ref.OwnerID, &ref.NoteID, &perm, &sharedAt); err != nil {
			return model.UserDoc{}, err
		}
		if ref.Permission, err = model.ParsePermission(perm); err != nil {
			return model.UserDoc{}, err
		}
		ref.SharedAt = model.FromMillis(sharedAt)
		doc.SharedWithMe = append(doc.SharedWithMe, ref)
	}
	return doc, rows.Err()
}

func writeUserDoc(ctx context.Context, q querier, doc model.UserDoc) error {
	if _, err := getUser(ctx, q, doc.ID); err != nil {
		return err
	}
	if doc.Email != "" {
		if _, err := q.ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, normalizeEmail(doc.Email), doc.ID); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM shared_index WHERE user_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear shared index: %w", err)
	}
	for _, ref := range doc.SharedWithMe {
		if err := putIndexEntry(ctx, q, doc.ID, ref); err != nil {
			return err
		}
	}
	return nil
}

func putIndexEntry(ctx context.Context, q querier, userID string, ref model.SharedRef) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO shared_index (user_id, owner_id, note_id, permission, shared_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, owner_id, note_id) DO UPDATE SET
			permission = excluded.permission,
			shared_at = excluded.shared_at`,
		userID, ref.OwnerID, ref.NoteID, ref.Permission.String(), ref.SharedAt.Millis())
	if err != nil {
		return fmt.Errorf("failed to write shared index entry: %w", err)
	}
	return nil
}

// SetUserDoc replaces the user document.
func (s *SQLite) SetUserDoc(ctx context.Context, doc model.UserDoc) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return writeUserDoc(ctx, tx, doc)
	})
}

// UpdateUserDoc applies fn to the user document inside a transaction.
func (s *SQLite) UpdateUserDoc(ctx context.Context, userID string, fn func(*model.UserDoc) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := getUserDoc(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := fn(&doc); err != nil {
			return err
		}
		doc.ID = userID
		return writeUserDoc(ctx, tx, doc)
	})
}

// --- shares ---

func putShare(ctx context.Context, q querier, share model.Share) error {
	if _, err := getNote(ctx, q, model.DocPath{OwnerID: share.OwnerID, NoteID: share.NoteID}); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO shares (owner_id, note_id, grantee_id, email, permission, shared_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, note_id, grantee_id) DO UPDATE SET
			email = excluded.email,
			permission = excluded.permission,
			shared_at = excluded.shared_at`,
		share.OwnerID, share.NoteID, share.GranteeID, normalizeEmail(share.Email),
		share.Permission.String(), share.SharedAt.Millis())
	if err != nil {
		return fmt.Errorf("failed to write share: %w", err)
	}
	return nil
}

func deleteShare(ctx context.Context, q querier, ownerID, noteID, granteeID string) error {
	res, err := q.ExecContext(ctx,
		`DELETE FROM shares WHERE owner_id = ? AND note_id = ? AND grantee_id = ?`, ownerID, noteID, granteeID)
	if err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("share of %s with %s: %w", noteID, granteeID, ErrNotFound)
	}
	return nil
}

// PutShare upserts the owner side of a share.
func (s *SQLite) PutShare(ctx context.Context, share model.Share) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return putShare(ctx, tx, share)
	})
}

// DeleteShare removes the owner side of a share.
func (s *SQLite) DeleteShare(ctx context.Context, ownerID, noteID, granteeID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteShare(ctx, tx, ownerID, noteID, granteeID)
	})
}

// ListShares returns the owner-side shares of a note, oldest first.
func (s *SQLite) ListShares(ctx context.Context, ownerID, noteID string) ([]model.Share, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT grantee_id, email, permission, shared_at FROM shares
		WHERE owner_id = ? AND note_id = ? ORDER BY shared_at, rowid`, ownerID, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()

	shares := make([]model.Share, 0)
	for rows.Next() {
		sh := model.Share{OwnerID: ownerID, NoteID: noteID}
		var (
			perm     string
			sharedAt int64
		)
		if err := rows.Scan(&sh.GranteeID, &sh.Email, &perm, &sharedAt); err != nil {
			return nil, err
		}
		if sh.Permission, err = model.ParsePermission(perm); err != nil {
			return nil, err
		}
		sh.SharedAt = model.FromMillis(sharedAt)
		shares = append(shares, sh)
	}
	return shares, rows.Err()
}

// ApplyShare implements ShareTx.
func (s *SQLite) ApplyShare(ctx context.Context, share model.Share) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getUser(ctx, tx, share.GranteeID); err != nil {
			return err
		}
		if err := putShare(ctx, tx, share); err != nil {
			return err
		}
		return putIndexEntry(ctx, tx, share.GranteeID, share.Ref())
	})
}

// RemoveShare implements ShareTx.
func (s *SQLite) RemoveShare(ctx context.Context, ownerID, noteID, granteeID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteShare(ctx, tx, ownerID, noteID, granteeID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM shared_index WHERE user_id = ? AND owner_id = ? AND note_id = ?`, granteeID, ownerID, noteID)
		if err != nil {
			return fmt.Errorf("failed to delete shared index entry: %w", err)
		}
		return nil
	})
}
