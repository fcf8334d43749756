package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/avrelia/anv/internal/cache"
	"github.com/avrelia/anv/internal/domain"
	"github.com/avrelia/anv/internal/infra/logger"
)

// sessionFetcher fails specific URLs and caches the rest.
type sessionFetcher struct {
	failWith map[string]error
}

func (f *sessionFetcher) Fetch(ctx context.Context, item domain.RemoteItem, dest string) error {
	if err, ok := f.failWith[item.URL]; ok {
		return err
	}
	return os.WriteFile(dest, []byte{0xFF}, 0644)
}

func (f *sessionFetcher) FetchFallback(ctx context.Context, item domain.RemoteItem, dest string) error {
	return f.Fetch(ctx, item, dest)
}

func buildSession(t *testing.T, pages int, preload int, failWith map[string]error) *cache.Session {
	t.Helper()
	items := make([]domain.RemoteItem, pages)
	for i := range items {
		items[i] = domain.RemoteItem{URL: fmt.Sprintf("p%d", i+1)}
	}
	targets := cache.BuildTargets(items, filepath.Join(t.TempDir(), "ch"))
	p := cache.NewPopulator(&sessionFetcher{failWith: failWith}, logger.Discard())
	session, err := p.Populate(context.Background(), targets, preload)
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	session.Wait(context.Background())
	return session
}

func TestChooseFullyCached(t *testing.T) {
	session := buildSession(t, 3, 5, nil)
	strategy, err := Choose(session)
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if strategy != FullyCached {
		t.Errorf("strategy = %v, want fully-cached", strategy)
	}
}

func TestChooseProxyBacked(t *testing.T) {
	// Preload covers 2 of 3 pages synchronously; page 3 failed in the
	// background, leaving a partial cache.
	session := buildSession(t, 3, 2, map[string]error{"p3": fmt.Errorf("timeout")})
	strategy, err := Choose(session)
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if strategy != ProxyBacked {
		t.Errorf("strategy = %v, want proxy-backed", strategy)
	}
}

func TestChooseDirectRemote(t *testing.T) {
	session := buildSession(t, 3, 3, map[string]error{"p1": fmt.Errorf("timeout")})
	strategy, err := Choose(session)
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if strategy != DirectRemote {
		t.Errorf("strategy = %v, want direct-remote", strategy)
	}
}

func TestChooseBlockedCDN(t *testing.T) {
	session := buildSession(t, 3, 3, map[string]error{"p1": &domain.StatusError{Code: 403}})
	_, err := Choose(session)
	if !errors.Is(err, domain.ErrCDNBlocked) {
		t.Fatalf("err = %v, want ErrCDNBlocked", err)
	}
}

func TestStrategyString(t *testing.T) {
	if FullyCached.String() != "fully-cached" ||
		ProxyBacked.String() != "proxy-backed" ||
		DirectRemote.String() != "direct-remote" {
		t.Error("unexpected strategy names")
	}
}
