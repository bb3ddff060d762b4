// Package ledger tracks which paper identifiers have already been processed.
//
// The ledger is an in-memory set backed by an append-only journal file with
// one identifier per line. Appends are fsynced so an acknowledged mark
// survives a crash, and the journal is replayed on startup. Marking is
// idempotent: re-marking a known identifier does not touch the journal.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Ledger records processed paper identifiers across runs.
type Ledger struct {
	mu      sync.RWMutex
	seen    map[string]struct{}
	journal *os.File
	path    string
	logger  zerolog.Logger
}

// Open loads the journal at path, creating it (and any parent directories)
// if absent. Blank lines are skipped during replay; a trailing partial line
// from a crash mid-append is tolerated and overwritten by the next mark.
func Open(path string, logger zerolog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	l := &Ledger{
		seen:   make(map[string]struct{}),
		path:   path,
		logger: logger.With().Str("component", "ledger").Logger(),
	}

	if err := l.replay(); err != nil {
		return nil, err
	}

	journal, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger journal %s: %w", path, err)
	}
	l.journal = journal

	l.logger.Info().Str("path", path).Int("entries", len(l.seen)).Msg("opened dedup ledger")
	return l, nil
}

// replay loads all previously journaled identifiers into the in-memory set.
func (l *Ledger) replay() error {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open ledger journal %s: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		l.seen[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to replay ledger journal %s: %w", l.path, err)
	}
	return nil
}

// IsProcessed reports whether id has been marked before.
func (l *Ledger) IsProcessed(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.seen[id]
	return ok
}

// MarkProcessed records id as processed. The identifier is journaled and
// fsynced before the in-memory set is updated; marking an already-known id
// is a no-op.
func (l *Ledger) MarkProcessed(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("ledger: empty paper identifier")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return nil
	}

	if _, err := l.journal.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("failed to append to ledger journal: %w", err)
	}
	if err := l.journal.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger journal: %w", err)
	}

	l.seen[id] = struct{}{}
	return nil
}

// Len returns the number of distinct identifiers in the ledger.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.seen)
}

// Close releases the journal file handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.journal == nil {
		return nil
	}
	err := l.journal.Close()
	l.journal = nil
	return err
}
