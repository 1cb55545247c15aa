// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// AdAccount is one advertising account reachable with a credential.
type AdAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Ad is one ad under an ad account.
type Ad struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
}

// business is an owning business; only its id matters for account discovery.
type business struct {
	ID string `json:"id"`
}

// ListAdAccounts implements GraphAPI. Personal accounts come from
// /me/adaccounts; business-owned accounts are resolved through
// /me/businesses -> /<id>/owned_ad_accounts and appended after.
func (c *Client) ListAdAccounts(ctx context.Context, token string) ([]AdAccount, error) {
	params := url.Values{"fields": {"id,name"}}

	rows, err := c.Call(ctx, "/me/adaccounts", token, params)
	if err != nil {
		return nil, fmt.Errorf("list personal ad accounts: %w", err)
	}
	accounts, err := decodeRows[AdAccount](rows)
	if err != nil {
		return nil, err
	}

	bizRows, err := c.Call(ctx, "/me/businesses", token, nil)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	businesses, err := decodeRows[business](bizRows)
	if err != nil {
		return nil, err
	}

	for _, b := range businesses {
		owned, err := c.Call(ctx, "/"+b.ID+"/owned_ad_accounts", token, params)
		if err != nil {
			return nil, fmt.Errorf("list owned ad accounts for business %s: %w", b.ID, err)
		}
		ownedAccounts, err := decodeRows[AdAccount](owned)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, ownedAccounts...)
	}

	return accounts, nil
}

// ListAds implements GraphAPI.
func (c *Client) ListAds(ctx context.Context, token, accountID string) ([]Ad, error) {
	params := url.Values{"fields": {"id,account_id"}}
	rows, err := c.Call(ctx, "/"+accountID+"/ads", token, params)
	if err != nil {
		return nil, fmt.Errorf("list ads for account %s: %w", accountID, err)
	}
	return decodeRows[Ad](rows)
}

// Insights implements GraphAPI. Daily periods request one-day buckets via
// time_increment=1; lifetime aggregates omit the parameter entirely.
func (c *Client) Insights(ctx context.Context, token, adID string, fields, breakdowns []string, daily bool) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("fields", strings.Join(fields, ","))
	if len(breakdowns) > 0 {
		params.Set("breakdowns", strings.Join(breakdowns, ","))
	}
	if daily {
		params.Set("time_increment", "1")
	}
	rows, err := c.Call(ctx, "/"+adID+"/insights", token, params)
	if err != nil {
		return nil, fmt.Errorf("insights for ad %s: %w", adID, err)
	}
	return rows, nil
}

// decodeRows unmarshals raw result rows into typed values.
func decodeRows[T any](rows []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := json.Unmarshal(row, &v); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
