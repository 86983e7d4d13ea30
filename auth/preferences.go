package auth

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/pkg/errors"

	autherrors "dojotap/internal/errors"
	"dojotap/storage"
)

// GetPreferences returns the user's preferences document, creating one seeded
// with fallbackPins at version 1 on first access.
func (m *Manager) GetPreferences(ctx context.Context, userKey string, fallbackPins []string) (*storage.PreferencesDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.deps.Store.GetPreferences(ctx, userKey)
	if err == nil {
		return doc, nil
	}
	if !stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.Wrap(err, "[GetPreferences] GetPreferences")
	}

	doc = m.seedPreferences(userKey, fallbackPins)
	if err := m.deps.Store.PutPreferences(ctx, doc); err != nil {
		return nil, errors.Wrap(err, "[GetPreferences] PutPreferences")
	}
	return doc, nil
}

// UpdatePreferences writes pins and per-task UI settings, bumping the version
// counter. A nil field leaves the stored value untouched. When
// expectedVersion is non-nil and does not match the stored version the update
// fails with a version conflict and nothing is written.
func (m *Manager) UpdatePreferences(ctx context.Context, userKey string, pins []string, uiPrefs map[string]json.RawMessage, expectedVersion *int) (*storage.PreferencesDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.deps.Store.GetPreferences(ctx, userKey)
	if err != nil {
		if !stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.Wrap(err, "[UpdatePreferences] GetPreferences")
		}
		// A missing row behaves as version 0, so the first update lands at
		// version 1 and a caller expecting version 0 wins.
		doc = &storage.PreferencesDocument{
			UserKey:           userKey,
			PinnedTaskIDs:     []string{},
			TaskUIPreferences: map[string]json.RawMessage{},
		}
	}
	if expectedVersion != nil && *expectedVersion != doc.Version {
		return nil, errors.Wrapf(autherrors.ErrVersionConflict, "expected version %d, stored version %d", *expectedVersion, doc.Version)
	}

	if pins != nil {
		doc.PinnedTaskIDs = append([]string(nil), pins...)
	}
	if uiPrefs != nil {
		doc.TaskUIPreferences = uiPrefs
	}
	doc.Version++
	doc.UpdatedAt = m.nowTime()
	if err := m.deps.Store.PutPreferences(ctx, doc); err != nil {
		return nil, errors.Wrap(err, "[UpdatePreferences] PutPreferences")
	}
	return doc, nil
}

func (m *Manager) seedPreferences(userKey string, fallbackPins []string) *storage.PreferencesDocument {
	return &storage.PreferencesDocument{
		UserKey:           userKey,
		PinnedTaskIDs:     append([]string{}, fallbackPins...),
		TaskUIPreferences: map[string]json.RawMessage{},
		Version:           1,
		UpdatedAt:         m.nowTime(),
	}
}

// SaveBootstrapCache records the last-known-good aggregated upstream payload
// for a user.
func (m *Manager) SaveBootstrapCache(ctx context.Context, userKey string, payload json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &storage.BootstrapEntry{
		UserKey:   userKey,
		Payload:   payload,
		FetchedAt: m.nowTime(),
	}
	return errors.Wrap(m.deps.Store.PutBootstrap(ctx, entry), "[SaveBootstrapCache] PutBootstrap")
}

// LoadBootstrapCache returns the cached payload for a user, or ErrNotFound
// when none exists or the entry is older than the configured maximum age.
func (m *Manager) LoadBootstrapCache(ctx context.Context, userKey string) (*storage.BootstrapEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.deps.Store.GetBootstrap(ctx, userKey)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, autherrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[LoadBootstrapCache] GetBootstrap")
	}
	if maxAge := m.cfg.GetBootstrapCacheMaxAge(); maxAge > 0 && m.nowTime().Sub(entry.FetchedAt) > maxAge {
		return nil, autherrors.ErrNotFound
	}
	return entry, nil
}
