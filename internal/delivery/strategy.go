// Package delivery decides how a chapter's pages reach the player:
// straight from local files, through the loopback proxy, or as the
// original remote URLs.
package delivery

import (
	"github.com/avrelia/anv/internal/cache"
	"github.com/avrelia/anv/internal/domain"
)

type Strategy int

const (
	// FullyCached passes local file paths; no network at playback time.
	FullyCached Strategy = iota
	// ProxyBacked passes loopback proxy URLs; missing pages are fetched
	// lazily on first access.
	ProxyBacked
	// DirectRemote passes the original URLs plus translated header flags.
	DirectRemote
)

func (s Strategy) String() string {
	switch s {
	case FullyCached:
		return "fully-cached"
	case ProxyBacked:
		return "proxy-backed"
	default:
		return "direct-remote"
	}
}

// Choose picks the single delivery mode for a cache session. A blocked
// CDN returns ErrCDNBlocked: lazy fill would hit the same wall, so the
// caller must skip playback entirely rather than degrade.
func Choose(session *cache.Session) (Strategy, error) {
	if session.CDNBlocked {
		return DirectRemote, domain.ErrCDNBlocked
	}
	switch {
	case session.FullyCached():
		return FullyCached, nil
	case session.AnyCached():
		return ProxyBacked, nil
	default:
		return DirectRemote, nil
	}
}
