// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package credentials

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/adscope/internal/logging"
)

// Key prefixes for BadgerDB storage
const (
	credentialKeyPrefix = "credential:"
	accountKeyPrefix    = "credential_account:"
)

// BadgerStore implements Store using BadgerDB for durable storage.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed credential store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadger opens the credential database at path. An empty path opens an
// in-memory database, used by tests.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return db, nil
}

func credentialKey(appID, userID string) []byte {
	return []byte(credentialKeyPrefix + appID + ":" + userID)
}

func accountKey(appID, accountID, userID string) []byte {
	return []byte(accountKeyPrefix + appID + ":" + accountID + ":" + userID)
}

// Save implements Store.
func (s *BadgerStore) Save(ctx context.Context, cred *Credential) error {
	if cred.AppID == "" || cred.UserID == "" || cred.AccessToken == "" {
		return errors.New("credential requires app id, user id, and access token")
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(credentialKey(cred.AppID, cred.UserID), data); err != nil {
			return fmt.Errorf("set credential: %w", err)
		}
		// Index by ad account for reverse lookup. The value carries the
		// user id so the lookup can fetch the credential record.
		for _, accountID := range cred.AdAccounts {
			if err := txn.Set(accountKey(cred.AppID, accountID, cred.UserID), []byte(cred.UserID)); err != nil {
				return fmt.Errorf("set account index: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.Debug().
		Str("app_id", cred.AppID).
		Str("user_id", cred.UserID).
		Int("ad_accounts", len(cred.AdAccounts)).
		Msg("Credential saved")
	return nil
}

// FetchCredential implements Store.
func (s *BadgerStore) FetchCredential(ctx context.Context, appID, userID string) (*Credential, error) {
	var cred Credential
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(credentialKey(appID, userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get credential: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cred)
		})
	})
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// FetchCredentialsForAdAccount implements Store. Results come back sorted
// by user id so selection policies see a stable candidate order.
func (s *BadgerStore) FetchCredentialsForAdAccount(ctx context.Context, appID, accountID string) ([]*Credential, error) {
	var userIDs []string
	prefix := []byte(accountKeyPrefix + appID + ":" + accountID + ":")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				userIDs = append(userIDs, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan account index: %w", err)
	}
	if len(userIDs) == 0 {
		return nil, ErrNotFound
	}
	sort.Strings(userIDs)

	creds := make([]*Credential, 0, len(userIDs))
	for _, userID := range userIDs {
		cred, err := s.FetchCredential(ctx, appID, userID)
		if errors.Is(err, ErrNotFound) {
			// Stale index entry from a deleted credential.
			continue
		}
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if len(creds) == 0 {
		return nil, ErrNotFound
	}
	return creds, nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, appID, userID string) error {
	cred, err := s.FetchCredential(ctx, appID, userID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(credentialKey(appID, userID)); err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
		for _, accountID := range cred.AdAccounts {
			if err := txn.Delete(accountKey(appID, accountID, userID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete account index: %w", err)
			}
		}
		return nil
	})
}
