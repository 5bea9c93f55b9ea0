package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

const (
	generationKey = "filetypes.generation"
	rulesKey      = "filetypes.rules"
)

// AttributeDB stores file attributes in a libsql database.
type AttributeDB struct {
	db *sql.DB

	mu sync.Mutex
	// newest version written per attribute name during this session
	newest map[string]int64
}

// ConnectToDB opens the libsql database at dsn. Plain paths are turned into
// file: URLs and their parent directory is created.
func ConnectToDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}
	if !strings.Contains(dsn, ":") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("could not create database directory: %w", err)
		}
		dsn = "file:" + dsn
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dsn, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", dsn, err)
	}
	return db, nil
}

// NewAttributeDB opens or initializes an attribute database.
func NewAttributeDB(dsn string) (*AttributeDB, error) {
	slog.Info("Attribute database", "dsn", dsn)

	db, err := ConnectToDB(dsn)
	if err != nil {
		return nil, err
	}

	a := &AttributeDB{db: db, newest: make(map[string]int64)}
	if err := a.init(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *AttributeDB) init() error {
	_, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS file_attributes (
		name TEXT NOT NULL,
		version INTEGER NOT NULL,
		file_id INTEGER NOT NULL,
		value BLOB,
		PRIMARY KEY (name, version, file_id)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create file_attributes table: %w", err)
	}

	_, err = a.db.Exec(`CREATE TABLE IF NOT EXISTS properties (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create properties table: %w", err)
	}

	_, err = a.db.Exec(`CREATE TABLE IF NOT EXISTS file_ids (
		path TEXT PRIMARY KEY,
		id INTEGER NOT NULL UNIQUE
	)`)
	if err != nil {
		return fmt.Errorf("failed to create file_ids table: %w", err)
	}
	return nil
}

// LoadIdentities returns every persisted path identity.
func (a *AttributeDB) LoadIdentities() (map[string]uint32, error) {
	rows, err := a.db.Query("SELECT path, id FROM file_ids")
	if err != nil {
		return nil, fmt.Errorf("failed to load file identities: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uint32)
	for rows.Next() {
		var (
			path string
			id   int64
		)
		if err := rows.Scan(&path, &id); err != nil {
			return nil, fmt.Errorf("failed to scan file identity: %w", err)
		}
		out[path] = uint32(id)
	}
	return out, rows.Err()
}

// SaveIdentity records the identity of path. Attribute values left behind
// under id by an earlier owner are dropped in the same transaction.
func (a *AttributeDB) SaveIdentity(path string, id uint32) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin identity transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM file_ids WHERE path = ? OR id = ?", path, int64(id)); err != nil {
		return fmt.Errorf("failed to replace identity of %s: %w", path, err)
	}
	if _, err := tx.Exec("DELETE FROM file_attributes WHERE file_id = ?", int64(id)); err != nil {
		return fmt.Errorf("failed to drop stale attributes for %d: %w", id, err)
	}
	if _, err := tx.Exec("INSERT INTO file_ids (path, id) VALUES (?, ?)", path, int64(id)); err != nil {
		return fmt.Errorf("failed to save identity of %s: %w", path, err)
	}
	return tx.Commit()
}

// ReadAttribute returns the stored value or nil when absent.
func (a *AttributeDB) ReadAttribute(name string, version int64, id uint32) ([]byte, error) {
	var value []byte
	err := a.db.QueryRow(
		"SELECT value FROM file_attributes WHERE name = ? AND version = ? AND file_id = ?",
		name, version, int64(id),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attribute %s@%d for %d: %w", name, version, id, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// WriteAttribute upserts a value. The first write of a version newer than any
// seen before deletes the older versions of the attribute.
func (a *AttributeDB) WriteAttribute(name string, version int64, id uint32, value []byte) error {
	if a.observe(name, version) {
		a.prune(name, version)
	}

	_, err := a.db.Exec(
		`INSERT INTO file_attributes (name, version, file_id, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(name, version, file_id) DO UPDATE SET value = excluded.value`,
		name, version, int64(id), value,
	)
	if err != nil {
		return fmt.Errorf("failed to write attribute %s@%d for %d: %w", name, version, id, err)
	}
	return nil
}

func (a *AttributeDB) observe(name string, version int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.newest[name]; ok && prev >= version {
		return false
	}
	a.newest[name] = version
	return true
}

func (a *AttributeDB) prune(name string, version int64) {
	res, err := a.db.Exec("DELETE FROM file_attributes WHERE name = ? AND version < ?", name, version)
	if err != nil {
		slog.Warn("Failed to prune stale attributes", "name", name, "version", version, "error", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.Debug("Pruned stale attributes", "name", name, "version", version, "rows", n)
	}
}

// LoadGeneration returns the persisted generation counter, zero if unset.
func (a *AttributeDB) LoadGeneration() (int64, error) {
	raw, err := a.loadProperty(generationKey)
	if err != nil {
		return 0, fmt.Errorf("failed to load generation: %w", err)
	}
	if raw == "" {
		return 0, nil
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt generation value %q: %w", raw, err)
	}
	return gen, nil
}

// SaveGeneration persists the generation counter.
func (a *AttributeDB) SaveGeneration(generation int64) error {
	if err := a.saveProperty(generationKey, strconv.FormatInt(generation, 10)); err != nil {
		return fmt.Errorf("failed to save generation: %w", err)
	}
	return nil
}

// LoadRulesFingerprint returns the stored rules fingerprint, empty if unset.
func (a *AttributeDB) LoadRulesFingerprint() (string, error) {
	fp, err := a.loadProperty(rulesKey)
	if err != nil {
		return "", fmt.Errorf("failed to load rules fingerprint: %w", err)
	}
	return fp, nil
}

func (a *AttributeDB) SaveRulesFingerprint(fingerprint string) error {
	if err := a.saveProperty(rulesKey, fingerprint); err != nil {
		return fmt.Errorf("failed to save rules fingerprint: %w", err)
	}
	return nil
}

func (a *AttributeDB) loadProperty(key string) (string, error) {
	var raw string
	err := a.db.QueryRow("SELECT value FROM properties WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return raw, err
}

func (a *AttributeDB) saveProperty(key, value string) error {
	_, err := a.db.Exec(
		`INSERT INTO properties (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Backup copies the database into dir and returns the backup path.
func (a *AttributeDB) Backup(dir string) (string, error) {
	if a.db == nil {
		return "", fmt.Errorf("cannot backup: database connection is nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	backupPath := filepath.Join(dir, fmt.Sprintf("attributes_backup_%s.db", timestamp))

	// SQLite specific
	if _, err := a.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(backupPath, "'", "''"))); err != nil {
		return "", fmt.Errorf("backup failed: %w", err)
	}

	slog.Info("Database backup created successfully", "path", backupPath)
	return backupPath, nil
}

func (a *AttributeDB) Close() error {
	return a.db.Close()
}
