package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/avrelia/anv/internal/domain"
)

// stubTool writes a shell script that acts as the external downloader.
// Each invocation appends a line to callsFile; behavior controls the
// body of the script after the bookkeeping line.
func stubTool(t *testing.T, behavior string) (tool string, callsFile string) {
	t.Helper()
	dir := t.TempDir()
	callsFile = filepath.Join(dir, "calls")
	tool = filepath.Join(dir, "fakecurl")

	script := fmt.Sprintf(`#!/bin/sh
echo "$@" >> %q
%s
`, callsFile, behavior)
	if err := os.WriteFile(tool, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return tool, callsFile
}

// writeToOutput makes the stub write payload to the --output argument.
const writeToOutput = `out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
printf 'payload' > "$out"`

func countCalls(t *testing.T, callsFile string) int {
	t.Helper()
	data, err := os.ReadFile(callsFile)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "\n")
}

func TestFetchPrimarySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	tool, callsFile := stubTool(t, "exit 1")
	f := New(tool)
	dest := filepath.Join(t.TempDir(), "0001.png")

	err := f.Fetch(context.Background(), domain.RemoteItem{URL: srv.URL + "/1.png"}, dest)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "image-bytes" {
		t.Fatalf("dest = %q, %v", data, err)
	}
	if n := countCalls(t, callsFile); n != 0 {
		t.Errorf("fallback tool ran %d times on a primary success", n)
	}
}

func TestFetchRedirectReplaysHeaders(t *testing.T) {
	var hops []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops = append(hops, r.URL.Path+"|"+r.Header.Get("Referer"))
		if r.URL.Path == "/start" {
			w.Header().Set("Location", "/final")
			w.WriteHeader(http.StatusFound)
			return
		}
		w.Write([]byte("after-redirect"))
	}))
	defer srv.Close()

	tool, _ := stubTool(t, "exit 1")
	f := New(tool)
	dest := filepath.Join(t.TempDir(), "page.jpg")

	item := domain.RemoteItem{
		URL:     srv.URL + "/start",
		Headers: map[string]string{"Referer": "https://reader.example.com/"},
	}
	if err := f.Fetch(context.Background(), item, dest); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	want := []string{
		"/start|https://reader.example.com/",
		"/final|https://reader.example.com/",
	}
	if len(hops) != 2 || hops[0] != want[0] || hops[1] != want[1] {
		t.Fatalf("hops = %v, want %v", hops, want)
	}
	if data, _ := os.ReadFile(dest); string(data) != "after-redirect" {
		t.Errorf("dest = %q", data)
	}
}

func TestFetchFallsBackOnceOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tool, callsFile := stubTool(t, writeToOutput)
	f := New(tool)
	dest := filepath.Join(t.TempDir(), "0001.jpg")

	if err := f.Fetch(context.Background(), domain.RemoteItem{URL: srv.URL}, dest); err != nil {
		t.Fatalf("Fetch should succeed via fallback: %v", err)
	}
	if n := countCalls(t, callsFile); n != 1 {
		t.Errorf("fallback ran %d times, want exactly 1", n)
	}
	if data, _ := os.ReadFile(dest); string(data) != "payload" {
		t.Errorf("dest = %q", data)
	}
}

func TestFetchForbiddenFromEitherPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	// Exit 22 is the --fail signal for a 4xx; both paths report 403.
	tool, callsFile := stubTool(t, "exit 22")
	f := New(tool)
	dir := t.TempDir()
	dest := filepath.Join(dir, "0001.jpg")

	err := f.Fetch(context.Background(), domain.RemoteItem{URL: srv.URL}, dest)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("error %v should match ErrForbidden", err)
	}
	if n := countCalls(t, callsFile); n != 1 {
		t.Errorf("fallback ran %d times, want 1", n)
	}

	// Failure must leave no partial or temp files behind.
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("leftover files after failed fetch: %v", entries)
	}
}

func TestFetchFallbackToolMissing(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "does-not-exist"))
	dest := filepath.Join(t.TempDir(), "x.jpg")

	err := f.FetchFallback(context.Background(), domain.RemoteItem{URL: "https://cdn.example.com/x.jpg"}, dest)
	if err == nil {
		t.Fatal("expected error for missing tool")
	}
	if errors.Is(err, domain.ErrForbidden) {
		t.Error("missing tool must not be classified as a CDN block")
	}
}

func TestStatusErrorMatchesForbidden(t *testing.T) {
	if !errors.Is(&domain.StatusError{Code: 403}, domain.ErrForbidden) {
		t.Error("403 should match ErrForbidden")
	}
	if errors.Is(&domain.StatusError{Code: 404}, domain.ErrForbidden) {
		t.Error("404 should not match ErrForbidden")
	}
}
