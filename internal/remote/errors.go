// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package remote

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a platform API error for retry and surfacing decisions.
type ErrorKind string

const (
	// KindRateLimited marks server-observed throttling. The governor is
	// force-blocked; the next retry waits out the cool-down at admission.
	KindRateLimited ErrorKind = "rate_limited"

	// KindPermissionDenied marks definitive authorization failures. Never retried.
	KindPermissionDenied ErrorKind = "permission_denied"

	// KindInvalidRequest marks malformed or unsupported requests. Never retried.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindTransient marks temporary platform failures worth retrying with backoff.
	KindTransient ErrorKind = "transient"

	// KindUnknown marks everything the classifier does not recognize.
	KindUnknown ErrorKind = "unknown"
)

// Platform error codes, per the Graph API error reference.
const (
	codeAPIUnknown       = 1
	codeAPIService       = 2
	codeAppRateLimit     = 4
	codePermissionDenied = 10
	codeUserRateLimit    = 17
	codePageRateLimit    = 32
	codeInvalidParameter = 100
	codeCustomRateLimit  = 613
)

// APIError is a non-success response from the platform, carrying the parsed
// error payload. It is never accompanied by partial data.
type APIError struct {
	Kind       ErrorKind
	Message    string
	Type       string
	Code       int
	Subcode    int
	HTTPStatus int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error (%s): %s (type=%s code=%d subcode=%d http=%d)",
		e.Kind, e.Message, e.Type, e.Code, e.Subcode, e.HTTPStatus)
}

// Retryable reports whether the error is worth retrying. Transient errors
// retry with backoff; rate-limited errors retry too, with the governor
// cool-down supplying the wait at admission time. Permission and invalid
// request errors are definitive platform answers and never retry.
func (e *APIError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// AsAPIError unwraps err into an *APIError if possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// classifyError maps a platform error code onto an ErrorKind.
func classifyError(code, httpStatus int) ErrorKind {
	switch code {
	case codeAppRateLimit, codeUserRateLimit, codePageRateLimit, codeCustomRateLimit:
		return KindRateLimited
	case codePermissionDenied:
		return KindPermissionDenied
	case codeInvalidParameter:
		return KindInvalidRequest
	case codeAPIUnknown, codeAPIService:
		return KindTransient
	}
	// The platform returns permission errors in the 200-299 code range as well.
	if code >= 200 && code <= 299 {
		return KindPermissionDenied
	}
	if httpStatus >= 500 {
		return KindTransient
	}
	return KindUnknown
}
