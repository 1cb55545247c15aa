// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package credentials

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Selection policies for accounts reachable by more than one credential.
const (
	PolicyRoundRobin = "round_robin"
	PolicyFirst      = "first"
)

// Selector picks one credential for an ad account according to a
// configured policy. Candidates arrive from the store in stable order,
// so round-robin rotates fairly and "first" is deterministic.
type Selector struct {
	store  Store
	policy string
	next   atomic.Uint64
}

// NewSelector creates a selector over a store.
func NewSelector(store Store, policy string) (*Selector, error) {
	switch policy {
	case PolicyRoundRobin, PolicyFirst:
	default:
		return nil, fmt.Errorf("unknown credential selection policy %q", policy)
	}
	return &Selector{store: store, policy: policy}, nil
}

// ForAdAccount resolves one credential able to reach the ad account.
func (s *Selector) ForAdAccount(ctx context.Context, appID, accountID string) (*Credential, error) {
	candidates, err := s.store.FetchCredentialsForAdAccount(ctx, appID, accountID)
	if err != nil {
		return nil, err
	}

	switch s.policy {
	case PolicyRoundRobin:
		n := s.next.Add(1) - 1
		return candidates[n%uint64(len(candidates))], nil
	default:
		return candidates[0], nil
	}
}
