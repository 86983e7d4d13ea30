// Package bbolt provides a file-backed storage repository for single-operator
// deployments that do not run Postgres.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"dojotap/storage"
)

var (
	bucketUsers       = []byte("user_credentials")
	bucketSessions    = []byte("browser_sessions")
	bucketPreferences = []byte("user_preferences")
	bucketBootstrap   = []byte("bootstrap_cache")
)

var _ storage.Repository = (*Store)(nil)

type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a bbolt database at path and ensures all
// buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketUsers, bucketSessions, bucketPreferences, bucketBootstrap} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetUser(_ context.Context, userKey string) (*storage.UserCredential, error) {
	user := &storage.UserCredential{}
	if err := s.get(bucketUsers, userKey, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) PutUser(_ context.Context, user *storage.UserCredential) error {
	return s.put(bucketUsers, user.UserKey, user)
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*storage.BrowserSession, error) {
	session := &storage.BrowserSession{}
	if err := s.get(bucketSessions, sessionID, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) PutSession(_ context.Context, session *storage.BrowserSession) error {
	return s.put(bucketSessions, session.SessionID, session)
}

func (s *Store) RevokeUserSessions(_ context.Context, userKey string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSessions)
		cursor := bucket.Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			session := storage.BrowserSession{}
			if err := json.Unmarshal(value, &session); err != nil {
				return fmt.Errorf("decoding session %q: %w", key, err)
			}
			if session.UserKey != userKey || session.Revoked {
				continue
			}
			session.Revoked = true
			data, err := json.Marshal(&session)
			if err != nil {
				return err
			}
			if err := bucket.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetPreferences(_ context.Context, userKey string) (*storage.PreferencesDocument, error) {
	doc := &storage.PreferencesDocument{}
	if err := s.get(bucketPreferences, userKey, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) PutPreferences(_ context.Context, doc *storage.PreferencesDocument) error {
	return s.put(bucketPreferences, doc.UserKey, doc)
}

func (s *Store) GetBootstrap(_ context.Context, userKey string) (*storage.BootstrapEntry, error) {
	entry := &storage.BootstrapEntry{}
	if err := s.get(bucketBootstrap, userKey, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) PutBootstrap(_ context.Context, entry *storage.BootstrapEntry) error {
	return s.put(bucketBootstrap, entry.UserKey, entry)
}

func (s *Store) get(bucket []byte, key string, out any) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucket).Get([]byte(key))
		if value == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(value, out)
	})
}

func (s *Store) put(bucket []byte, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}
