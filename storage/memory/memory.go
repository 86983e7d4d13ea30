// Package memory provides an in-memory storage repository, used in tests and
// for ephemeral local development.
package memory

import (
	"context"
	"sync"

	"dojotap/storage"
)

var _ storage.Repository = (*Store)(nil)

type Store struct {
	users       map[string]storage.UserCredential
	sessions    map[string]storage.BrowserSession
	preferences map[string]storage.PreferencesDocument
	bootstrap   map[string]storage.BootstrapEntry
	lock        sync.RWMutex
}

func New() *Store {
	return &Store{
		users:       make(map[string]storage.UserCredential),
		sessions:    make(map[string]storage.BrowserSession),
		preferences: make(map[string]storage.PreferencesDocument),
		bootstrap:   make(map[string]storage.BootstrapEntry),
	}
}

func (s *Store) GetUser(_ context.Context, userKey string) (*storage.UserCredential, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	user, ok := s.users[userKey]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &user, nil
}

func (s *Store) PutUser(_ context.Context, user *storage.UserCredential) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.users[user.UserKey] = *user
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*storage.BrowserSession, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &session, nil
}

func (s *Store) PutSession(_ context.Context, session *storage.BrowserSession) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.sessions[session.SessionID] = *session
	return nil
}

func (s *Store) RevokeUserSessions(_ context.Context, userKey string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for id, session := range s.sessions {
		if session.UserKey == userKey {
			session.Revoked = true
			s.sessions[id] = session
		}
	}
	return nil
}

func (s *Store) GetPreferences(_ context.Context, userKey string) (*storage.PreferencesDocument, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	doc, ok := s.preferences[userKey]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &doc, nil
}

func (s *Store) PutPreferences(_ context.Context, doc *storage.PreferencesDocument) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.preferences[doc.UserKey] = *doc
	return nil
}

func (s *Store) GetBootstrap(_ context.Context, userKey string) (*storage.BootstrapEntry, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	entry, ok := s.bootstrap[userKey]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &entry, nil
}

func (s *Store) PutBootstrap(_ context.Context, entry *storage.BootstrapEntry) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.bootstrap[entry.UserKey] = *entry
	return nil
}

func (s *Store) Close() error {
	return nil
}
