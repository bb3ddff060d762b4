// Package access implements the bot's allow-list and admin authorization.
//
// A single admin user manages a persisted set of authorized user IDs. The
// admin is always implicitly authorized; when the explicit set is empty the
// bot runs in open-access mode and every user is authorized. Mutations are
// serialized through a single lock and persisted atomically with a
// temp-file-and-rename write so a crash never leaves a half-written store.
package access

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ironzo/arxiveparser/internal/domain"
)

// allowList is the on-disk JSON representation of the authorized user set.
type allowList struct {
	Users []int64 `json:"users"`
}

// Controller guards the allow-list and answers authorization queries.
type Controller struct {
	mu      sync.RWMutex
	adminID int64
	users   map[int64]struct{}
	path    string
	logger  zerolog.Logger
}

// NewController creates a Controller with the given admin and backing file.
// An existing file is loaded; a missing file starts an empty (open-access)
// set. A malformed file is an error rather than a silent reset.
func NewController(adminID int64, path string, logger zerolog.Logger) (*Controller, error) {
	c := &Controller{
		adminID: adminID,
		users:   make(map[int64]struct{}),
		path:    path,
		logger:  logger.With().Str("component", "access").Logger(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Info().Str("path", path).Msg("no allow-list file, starting in open-access mode")
			return c, nil
		}
		return nil, fmt.Errorf("failed to read allow-list %s: %w", path, err)
	}

	var list allowList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse allow-list %s: %w", path, err)
	}
	for _, id := range list.Users {
		c.users[id] = struct{}{}
	}

	c.logger.Info().Str("path", path).Int("users", len(c.users)).Msg("loaded allow-list")
	return c, nil
}

// AdminID returns the distinguished admin user ID.
func (c *Controller) AdminID() int64 {
	return c.adminID
}

// IsAuthorized reports whether userID may use the bot. The admin is always
// authorized; an empty allow-list authorizes everyone.
func (c *Controller) IsAuthorized(userID int64) bool {
	if userID == c.adminID {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.users) == 0 {
		return true
	}
	_, ok := c.users[userID]
	return ok
}

// AddUser authorizes targetID. Only the admin may call it.
func (c *Controller) AddUser(requesterID, targetID int64) error {
	if requesterID != c.adminID {
		return domain.ErrForbidden
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.users[targetID]; ok {
		return domain.ErrAlreadyExists
	}

	c.users[targetID] = struct{}{}
	if err := c.persistLocked(); err != nil {
		delete(c.users, targetID)
		return fmt.Errorf("failed to persist allow-list: %w", err)
	}

	c.logger.Info().Int64("user_id", targetID).Msg("user authorized")
	return nil
}

// RemoveUser revokes targetID's authorization. Only the admin may call it,
// and the admin cannot be removed.
func (c *Controller) RemoveUser(requesterID, targetID int64) error {
	if requesterID != c.adminID {
		return domain.ErrForbidden
	}
	if targetID == c.adminID {
		return domain.ErrCannotRemoveSelf
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.users[targetID]; !ok {
		return domain.ErrNotFound
	}

	delete(c.users, targetID)
	if err := c.persistLocked(); err != nil {
		c.users[targetID] = struct{}{}
		return fmt.Errorf("failed to persist allow-list: %w", err)
	}

	c.logger.Info().Int64("user_id", targetID).Msg("user authorization revoked")
	return nil
}

// ListUsers returns the authorized user IDs in ascending order. Only the
// admin may call it.
func (c *Controller) ListUsers(requesterID int64) ([]int64, error) {
	if requesterID != c.adminID {
		return nil, domain.ErrForbidden
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.sortedUsersLocked(), nil
}

// sortedUsersLocked returns the user IDs sorted ascending. Callers must hold
// at least a read lock.
func (c *Controller) sortedUsersLocked() []int64 {
	ids := make([]int64, 0, len(c.users))
	for id := range c.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// persistLocked writes the allow-list atomically: marshal to a temp file in
// the same directory, fsync, then rename over the target. Callers must hold
// the write lock.
func (c *Controller) persistLocked() error {
	data, err := json.MarshalIndent(allowList{Users: c.sortedUsersLocked()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal allow-list: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create allow-list directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace allow-list: %w", err)
	}
	return nil
}
