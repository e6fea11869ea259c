package unify

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const recoveryDir = ".sortinghat.d"

// Class is one pending equivalence class as journaled in the recovery file.
type Class struct {
	Identities []string `json:"identities"`
	Processed  bool     `json:"processed"`
}

func (c Class) key() string {
	return strings.Join(c.Identities, "\x00")
}

// RecoveryPath returns <home>/.sortinghat.d/<sha1(db|host|port)>.log.
func RecoveryPath(home, dbName, host string, port int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%d", dbName, host, port)))
	return filepath.Join(home, recoveryDir, hex.EncodeToString(sum[:])+".log")
}

// RecoveryFile is an append-only NDJSON journal of the classes a unification
// run still has to merge. Every class is written once unprocessed and again
// processed once merged, so a run killed at any point can resume.
//
// An advisory lock on <path>.lock keeps two runs off the same journal.
type RecoveryFile struct {
	path string
	lock *os.File
}

// OpenRecoveryFile takes the journal lock. It fails without blocking when
// another run holds it.
func OpenRecoveryFile(path string) (*RecoveryFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create recovery directory: %w", err)
	}
	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open recovery lock: %w", err)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("recovery file %s is locked by another unification run", path)
		}
		return nil, fmt.Errorf("failed to lock recovery file: %w", err)
	}
	return &RecoveryFile{path: path, lock: lock}, nil
}

func (r *RecoveryFile) Path() string {
	return r.path
}

// Close releases the lock. The journal itself is left in place.
func (r *RecoveryFile) Close() error {
	if r.lock == nil {
		return nil
	}
	defer func() { r.lock = nil }()
	if err := unix.Flock(int(r.lock.Fd()), unix.LOCK_UN); err != nil {
		r.lock.Close()
		return fmt.Errorf("failed to unlock recovery file: %w", err)
	}
	return r.lock.Close()
}

func (r *RecoveryFile) Exists() bool {
	_, err := os.Stat(r.path)
	return err == nil
}

// Load returns the classes not yet marked processed, in journal order.
func (r *RecoveryFile) Load() ([]Class, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recovery file: %w", err)
	}
	defer f.Close()

	var order []string
	classes := map[string]Class{}
	done := map[string]bool{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c Class
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("invalid recovery entry at line %d: %w", line, err)
		}
		k := c.key()
		if c.Processed {
			done[k] = true
			continue
		}
		if _, ok := classes[k]; !ok {
			order = append(order, k)
		}
		classes[k] = c
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recovery file: %w", err)
	}

	pending := make([]Class, 0, len(order))
	for _, k := range order {
		if !done[k] {
			pending = append(pending, classes[k])
		}
	}
	return pending, nil
}

// Save replaces the journal with classes, all unprocessed.
func (r *RecoveryFile) Save(classes []Class) error {
	tmp := r.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create recovery file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, c := range classes {
		c.Processed = false
		if err := enc.Encode(c); err != nil {
			f.Close()
			return fmt.Errorf("failed to write recovery entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write recovery file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync recovery file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close recovery file: %w", err)
	}
	return os.Rename(tmp, r.path)
}

// MarkProcessed appends a processed entry for c.
func (r *RecoveryFile) MarkProcessed(c Class) error {
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open recovery file: %w", err)
	}
	c.Processed = true
	if err := json.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("failed to write recovery entry: %w", err)
	}
	return f.Close()
}

func (r *RecoveryFile) Delete() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete recovery file: %w", err)
	}
	return nil
}
