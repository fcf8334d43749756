package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/avrelia/anv/internal/domain"
	"github.com/avrelia/anv/internal/infra/logger"
)

// Fetcher is what the populator needs from the download layer.
type Fetcher interface {
	Fetch(ctx context.Context, item domain.RemoteItem, dest string) error
	FetchFallback(ctx context.Context, item domain.RemoteItem, dest string) error
}

// Session is the outcome of one populate run. It owns the background
// fill worker for the targets past the preload window.
type Session struct {
	Targets    []Target
	CDNBlocked bool

	cached []bool
	done   chan struct{}
}

// LocalPath returns the cached file for index i if populate (or an
// earlier session) confirmed it on disk.
func (s *Session) LocalPath(i int) (string, bool) {
	if i < 0 || i >= len(s.Targets) || !s.cached[i] {
		return "", false
	}
	return s.Targets[i].Path, true
}

// FullyCached reports whether every target had a file after the
// synchronous pass.
func (s *Session) FullyCached() bool {
	for _, ok := range s.cached {
		if !ok {
			return false
		}
	}
	return len(s.cached) > 0
}

// AnyCached reports whether the synchronous pass produced at least one file.
func (s *Session) AnyCached() bool {
	for _, ok := range s.cached {
		if ok {
			return true
		}
	}
	return false
}

// Wait joins the background fill worker. It returns early if ctx expires;
// the worker itself keeps running until it finishes or hits a blocking
// error.
func (s *Session) Wait(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Populator materializes chapter pages into the on-disk cache: the first
// preload targets synchronously, the remainder on a detached worker.
type Populator struct {
	fetcher Fetcher
	log     *logger.Logger
}

func NewPopulator(fetcher Fetcher, log *logger.Logger) *Populator {
	return &Populator{fetcher: fetcher, log: log}
}

// Populate runs the synchronous preload and schedules background fill.
// It never blocks on the worker; callers proceed with whatever the
// preload produced. A 403 during preload marks the whole session blocked
// and suppresses all further fetches.
func (p *Populator) Populate(ctx context.Context, targets []Target, preload int) (*Session, error) {
	session := &Session{
		Targets: targets,
		cached:  make([]bool, len(targets)),
	}
	if len(targets) == 0 {
		return session, nil
	}

	// An uncreatable cache dir is not fatal to playback; the caller can
	// still hand the remote URLs straight to the player.
	if err := os.MkdirAll(filepath.Dir(targets[0].Path), 0755); err != nil {
		return session, fmt.Errorf("%w: failed to create cache directory: %v", domain.ErrCacheUnavailable, err)
	}

	preloadTarget := preload
	if preloadTarget > len(targets) {
		preloadTarget = len(targets)
	}

	for i := 0; i < preloadTarget; i++ {
		t := targets[i]
		if fileExists(t.Path) {
			session.cached[i] = true
			continue
		}

		err := p.fetcher.Fetch(ctx, t.Item, t.Path)
		if err == nil {
			session.cached[i] = true
			continue
		}

		if errors.Is(err, domain.ErrForbidden) {
			session.CDNBlocked = true
			p.log.Warn("Image CDN returned 403 for %s; stopping cache session", t.Item.URL)
			return session, nil
		}

		// Anything else stops the preload conservatively: skipping ahead
		// would leave an unresolved gap that the proxy hides badly.
		p.log.Warn("Cache miss for %s: %v", t.Item.URL, err)
		break
	}

	// A dead preload means a dead path; scheduling background work
	// against it would only hammer the provider.
	if !session.AnyCached() {
		return session, nil
	}

	var jobs []Target
	for i := preloadTarget; i < len(targets); i++ {
		if fileExists(targets[i].Path) {
			session.cached[i] = true
			continue
		}
		jobs = append(jobs, targets[i])
	}

	if len(jobs) > 0 {
		session.done = make(chan struct{})
		go p.backgroundFill(jobs, session.done)
	}

	return session, nil
}

// backgroundFill downloads the remaining targets sequentially through the
// external tool. Sequential on purpose: parallel page fetches trip
// provider rate limits. A blocking error aborts the whole run.
func (p *Populator) backgroundFill(jobs []Target, done chan struct{}) {
	defer close(done)

	ctx := context.Background()
	for _, t := range jobs {
		if fileExists(t.Path) {
			continue
		}
		if err := p.fetcher.FetchFallback(ctx, t.Item, t.Path); err != nil {
			if errors.Is(err, domain.ErrForbidden) {
				p.log.Warn("Background cache fill aborted, CDN block for %s", t.Item.URL)
				return
			}
			p.log.Warn("Background cache miss for %s: %v", t.Item.URL, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
