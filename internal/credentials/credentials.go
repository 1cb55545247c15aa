// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

// Package credentials stores platform access tokens and resolves which
// credential to use for a given ad account. Credentials are immutable:
// a refresh stores a new credential that supersedes the old one rather
// than mutating it in place.
package credentials

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no credential matches the lookup.
var ErrNotFound = errors.New("credential not found")

// Credential is one stored platform token and its reach.
type Credential struct {
	AppID       string    `json:"app_id"`
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	AdAccounts  []string  `json:"ad_accounts"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the credential lookup surface the fetch pipeline consumes.
type Store interface {
	// Save stores a credential and indexes it by its ad accounts. Saving
	// again for the same (app, user) supersedes the previous credential.
	Save(ctx context.Context, cred *Credential) error

	// FetchCredential returns the credential for one app user.
	FetchCredential(ctx context.Context, appID, userID string) (*Credential, error)

	// FetchCredentialsForAdAccount returns every credential that can reach
	// the ad account, in stable (user id) order.
	FetchCredentialsForAdAccount(ctx context.Context, appID, accountID string) ([]*Credential, error)

	// Delete removes a credential and its account index entries.
	Delete(ctx context.Context, appID, userID string) error
}
