package transferchain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// MasterUserID is the store key of the account's master user.
func (c *Client) MasterUserID() string {
	return strconv.FormatInt(c.cfg.UserID, 10)
}

// AddMasterUser returns the account's master user, generating and
// publishing its address hierarchy the first time.
func (c *Client) AddMasterUser(ctx context.Context) (models.User, error) {
	if user, err := c.GetUser(c.MasterUserID()); err == nil {
		return user, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return models.User{}, err
	}
	user, err := c.generator.GenerateUser(ctx, c.cfg.UserID, c.cfg.Mnemonics)
	if err != nil {
		c.logger.Error("master user generation failed", "component", "client", "operation", "add_master_user", "error", err.Error())
		return models.User{}, err
	}
	if err := c.SaveUser(user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// AddUser creates a sub-user under the master user with a fresh random id.
func (c *Client) AddUser(ctx context.Context) (models.User, error) {
	master, err := c.GetUser(c.MasterUserID())
	if err != nil {
		return models.User{}, fmt.Errorf("master user: %w", err)
	}
	user, err := c.generator.GenerateSubUser(ctx, c.cfg.UserID, master.MasterAddress, c.cfg.Mnemonics, uuid.NewString())
	if err != nil {
		c.logger.Error("sub user generation failed", "component", "client", "operation", "add_user", "error", err.Error())
		return models.User{}, err
	}
	if err := c.SaveUser(user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// GetUser looks id up in the loaded users first and then in the store.
func (c *Client) GetUser(id string) (models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.User{}, apperrors.Validation("user id is required")
	}
	c.mu.RLock()
	user, ok := c.users[id]
	c.mu.RUnlock()
	if ok {
		return user, nil
	}
	user, err := c.store.Get(id)
	if err != nil {
		return models.User{}, err
	}
	c.remember(user)
	return user, nil
}

// SaveUser persists user and keeps it loaded.
func (c *Client) SaveUser(user models.User) error {
	if err := c.store.Put(user); err != nil {
		return err
	}
	c.remember(user)
	return nil
}

// LoadUsers reads every stored user into memory and returns them ordered
// by id.
func (c *Client) LoadUsers() ([]models.User, error) {
	users, err := c.store.All()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	for _, u := range users {
		c.users[u.ID] = u
	}
	c.mu.Unlock()
	return users, nil
}

// Users returns the loaded users ordered by id.
func (c *Client) Users() []models.User {
	c.mu.RLock()
	out := make([]models.User, 0, len(c.users))
	for _, u := range c.users {
		out = append(out, u)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RestoreMasterUser rebuilds the master user from the read node and stores
// it.
func (c *Client) RestoreMasterUser(ctx context.Context) (models.User, error) {
	user, err := c.restorer.RestoreMasterUser(ctx, c.cfg.Mnemonics, c.cfg.UserID)
	if err != nil {
		c.logger.Error("master user restore failed", "component", "client", "operation", "restore_master_user", "error", err.Error())
		return models.User{}, err
	}
	if err := c.SaveUser(user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// RestoreSubUsers rebuilds every sub-user from the read node and stores
// them. Users that fail to store are reported together.
func (c *Client) RestoreSubUsers(ctx context.Context) ([]models.User, error) {
	users, err := c.restorer.RestoreSubUsers(ctx, c.cfg.Mnemonics, c.cfg.UserID)
	if err != nil {
		c.logger.Error("sub user restore failed", "component", "client", "operation", "restore_sub_users", "error", err.Error())
		return nil, err
	}
	var errs error
	for _, u := range users {
		errs = multierr.Append(errs, c.SaveUser(u))
	}
	return users, errs
}

func (c *Client) remember(user models.User) {
	c.mu.Lock()
	c.users[user.ID] = user
	c.mu.Unlock()
}
