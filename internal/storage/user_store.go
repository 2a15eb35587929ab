package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"transferchain/go-sdk/internal/apperrors"
	"transferchain/go-sdk/internal/securestore"
	"transferchain/go-sdk/pkg/models"

	"github.com/boltdb/bolt"
)

var bucketUsers = []byte("users")

var ErrStoreClosed = errors.New("user store is closed")

// UserStore keeps one sealed record per user id in a bolt file. Values are
// base64(AES-GCM(json(user))) keyed by the account mnemonic; the store is
// meant for a single writer per process.
type UserStore struct {
	db     *bolt.DB
	secret string
}

func OpenUserStore(path, secret string) (*UserStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, apperrors.Validation("user store path is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, apperrors.Validation("user store secret is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Clean(path), 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open user store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketUsers)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &UserStore{db: db, secret: secret}, nil
}

func (s *UserStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Put seals and stores user under its id, replacing any previous value.
func (s *UserStore) Put(user models.User) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	id := strings.TrimSpace(user.ID)
	if id == "" {
		return apperrors.Validation("user id is required")
	}
	sealed, err := securestore.Seal(s.secret, user)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketUsers)
		if bk == nil {
			return bolt.ErrBucketNotFound
		}
		return bk.Put([]byte(id), []byte(sealed))
	})
}

func (s *UserStore) Get(id string) (models.User, error) {
	if s.db == nil {
		return models.User{}, ErrStoreClosed
	}
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketUsers)
		if bk == nil {
			return bolt.ErrBucketNotFound
		}
		if v := bk.Get([]byte(strings.TrimSpace(id))); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	if raw == nil {
		return models.User{}, fmt.Errorf("user %q: %w", id, apperrors.ErrNotFound)
	}
	var user models.User
	if err := securestore.Open(s.secret, string(raw), &user); err != nil {
		return models.User{}, fmt.Errorf("user %q: %w", id, err)
	}
	return user, nil
}

// All returns every stored user ordered by id.
func (s *UserStore) All() ([]models.User, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	var sealed []string
	err := s.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketUsers)
		if bk == nil {
			return bolt.ErrBucketNotFound
		}
		return bk.ForEach(func(_, v []byte) error {
			sealed = append(sealed, string(v))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(sealed))
	for _, value := range sealed {
		var user models.User
		if err := securestore.Open(s.secret, value, &user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *UserStore) Delete(id string) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketUsers)
		if bk == nil {
			return bolt.ErrBucketNotFound
		}
		return bk.Delete([]byte(strings.TrimSpace(id)))
	})
}
