// Package cache stores compiled program images in SQLite, keyed by a
// digest of the source they were compiled from.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/kestrel/vm"
)

var log = commonlog.GetLogger("kestrel.cache")

// formatVersion is mixed into every key so images written by an
// incompatible bytecode format are never returned.
const formatVersion = "kestrel-image-1"

// Store is a SQLite-backed image cache. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS images (
		key     TEXT PRIMARY KEY,
		name    TEXT NOT NULL,
		image   BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened image cache %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Key derives the cache key of a source text. Anything else that changes
// the compiled output, such as compiler options, goes into salt.
func Key(source string, salt ...string) string {
	h := sha256.New()
	h.Write([]byte(formatVersion))
	for _, s := range salt {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	h.Write([]byte{0})
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Get loads the image stored under key. A missing entry is reported as
// ok == false with a nil error.
func (s *Store) Get(key string) (fn *vm.Function, ok bool, err error) {
	var data []byte
	err = s.db.QueryRow("SELECT image FROM images WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying image: %w", err)
	}

	fn, err = vm.UnmarshalImage(data)
	if err != nil {
		return nil, false, fmt.Errorf("decoding cached image %s: %w", key, err)
	}
	return fn, true, nil
}

// Put stores fn under key, replacing any previous entry.
func (s *Store) Put(key, name string, fn *vm.Function) error {
	data, err := vm.MarshalImage(fn)
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO images (key, name, image, created) VALUES (?, ?, ?, ?)",
		key, name, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	log.Debugf("cached %s (%d bytes)", name, len(data))
	return nil
}

// Len returns the number of cached images.
func (s *Store) Len() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM images").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting images: %w", err)
	}
	return n, nil
}

// Purge removes every cached image.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM images"); err != nil {
		return fmt.Errorf("purging images: %w", err)
	}
	return nil
}
