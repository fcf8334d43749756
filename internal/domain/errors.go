package domain

import (
	"errors"
	"fmt"
)

// ErrForbidden indicates the CDN rejected the request outright (HTTP 403,
// or the fallback tool's equivalent exit code). It is session-fatal: once
// seen, no further fetches are attempted for the current chapter.
var ErrForbidden = errors.New("forbidden by content host")

// ErrCDNBlocked is the tagged outcome the orchestrator receives when a
// whole cache session hit the block condition. Callers should skip the
// current chapter rather than retry or fall back.
var ErrCDNBlocked = errors.New("image CDN blocked on this network")

// ErrCacheUnavailable indicates the cache produced nothing usable; the
// caller should hand the original remote URLs straight to the player.
var ErrCacheUnavailable = errors.New("page cache unavailable")

// StatusError is a non-success HTTP response from the primary fetch path.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Is lets errors.Is(err, ErrForbidden) match a 403 status.
func (e *StatusError) Is(target error) bool {
	return target == ErrForbidden && e.Code == 403
}
