package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/avrelia/anv/internal/cache"
	"github.com/avrelia/anv/internal/domain"
	"github.com/avrelia/anv/internal/infra/logger"
)

type fakeFallback struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeFallback) FetchFallback(ctx context.Context, item domain.RemoteItem, dest string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dest, []byte("lazy-"+item.URL), 0644)
}

func (f *fakeFallback) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func startTestProxy(t *testing.T, targets []cache.Target, fb *fakeFallback) *Proxy {
	t.Helper()
	p, err := Start(targets, fb, logger.Discard())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(p.Shutdown)
	return p
}

func cachedTarget(t *testing.T, dir string, name, content string) cache.Target {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return cache.Target{
		Item: domain.RemoteItem{URL: "https://cdn.example.com/" + name},
		Path: path,
	}
}

func TestProxyServesCachedPage(t *testing.T) {
	dir := t.TempDir()
	targets := []cache.Target{
		cachedTarget(t, dir, "0001.png", "page-one"),
		cachedTarget(t, dir, "0002.jpg", "page-two"),
	}
	p := startTestProxy(t, targets, &fakeFallback{})

	resp, err := http.Get(p.PageURL(1))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "page-two" {
		t.Errorf("body = %q", body)
	}
}

func TestProxyHead(t *testing.T) {
	dir := t.TempDir()
	targets := []cache.Target{cachedTarget(t, dir, "0001.png", "page-one")}
	p := startTestProxy(t, targets, &fakeFallback{})

	resp, err := http.Head(p.PageURL(0))
	if err != nil {
		t.Fatalf("HEAD: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.ContentLength != int64(len("page-one")) {
		t.Errorf("Content-Length = %d", resp.ContentLength)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("HEAD returned a body: %q", body)
	}
}

func TestProxyNotFound(t *testing.T) {
	dir := t.TempDir()
	targets := []cache.Target{cachedTarget(t, dir, "0001.png", "x")}
	p := startTestProxy(t, targets, &fakeFallback{})

	for _, path := range []string{"/5", "/-1", "/abc", "/"} {
		resp, err := http.Get(p.BaseURL() + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != 404 {
			t.Errorf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestProxyMethodNotAllowed(t *testing.T) {
	dir := t.TempDir()
	targets := []cache.Target{cachedTarget(t, dir, "0001.png", "x")}
	p := startTestProxy(t, targets, &fakeFallback{})

	resp, err := http.Post(p.PageURL(0), "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 405 {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestProxyLazyFetchOnMiss(t *testing.T) {
	dir := t.TempDir()
	missing := cache.Target{
		Item: domain.RemoteItem{URL: "p3"},
		Path: filepath.Join(dir, "0003.png"),
	}
	fb := &fakeFallback{}
	p := startTestProxy(t, []cache.Target{missing}, fb)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(p.PageURL(0))
		if err != nil {
			t.Fatalf("GET #%d: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Fatalf("GET #%d status = %d", i, resp.StatusCode)
		}
		if string(body) != "lazy-p3" {
			t.Errorf("GET #%d body = %q", i, body)
		}
	}
	// The second request hits the now-cached file.
	if n := fb.callCount(); n != 1 {
		t.Errorf("fallback called %d times, want 1", n)
	}
}

func TestProxyLazyFetchFailure(t *testing.T) {
	dir := t.TempDir()
	missing := cache.Target{
		Item: domain.RemoteItem{URL: "p1"},
		Path: filepath.Join(dir, "0001.png"),
	}
	fb := &fakeFallback{err: fmt.Errorf("network down")}
	p := startTestProxy(t, []cache.Target{missing}, fb)

	resp, err := http.Get(p.PageURL(0))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 502 {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestProxyShutdownTwice(t *testing.T) {
	dir := t.TempDir()
	targets := []cache.Target{cachedTarget(t, dir, "0001.png", "x")}
	p, err := Start(targets, &fakeFallback{}, logger.Discard())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Shutdown()
	p.Shutdown()

	if _, err := http.Get(p.PageURL(0)); err == nil {
		t.Error("proxy still serving after Shutdown")
	}
}

func TestParseIndex(t *testing.T) {
	cases := []struct {
		path string
		idx  int
		ok   bool
	}{
		{"/0", 0, true},
		{"/12", 12, true},
		{"/3?width=100", 3, true},
		{"/-1", 0, false},
		{"/abc", 0, false},
		{"/", 0, false},
		{"/1.5", 0, false},
	}
	for _, c := range cases {
		idx, ok := parseIndex(c.path)
		if idx != c.idx || ok != c.ok {
			t.Errorf("parseIndex(%q) = (%d, %v), want (%d, %v)", c.path, idx, ok, c.idx, c.ok)
		}
	}
}
