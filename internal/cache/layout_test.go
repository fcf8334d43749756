package cache

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/avrelia/anv/internal/domain"
)

func TestSanitizeSegment(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abc-DEF_123", "abc-DEF_123"},
		{"one two/three", "one_two_three"},
		{"10.5", "10.5"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"", "unknown"},
		{"日本語", "___"},
	}
	for _, c := range cases {
		if got := SanitizeSegment(c.in); got != c.want {
			t.Errorf("SanitizeSegment(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeSegmentIdempotent(t *testing.T) {
	for _, in := range []string{"a b c", "chapter 10.5", "x/y\\z", ""} {
		once := SanitizeSegment(in)
		if twice := SanitizeSegment(once); twice != once {
			t.Errorf("SanitizeSegment not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestInferExtension(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://cdn.example.com/p/001.png", "png"},
		{"https://cdn.example.com/p/001.jpeg", "jpg"},
		{"https://cdn.example.com/p/001.JPG?token=abc", "jpg"},
		{"https://cdn.example.com/p/001.webp?x=1&y=2", "webp"},
		{"https://cdn.example.com/p/001.avif", "avif"},
		{"https://cdn.example.com/p/noext", "jpg"},
		{"https://cdn.example.com/p/001.tiff", "jpg"},
	}
	for _, c := range cases {
		if got := InferExtension(c.url); got != c.want {
			t.Errorf("InferExtension(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}

func TestChapterDirDistinctInputs(t *testing.T) {
	// Sanitization must not collapse distinct chapters onto one directory
	// when the raw values only differ in safe characters.
	a := ChapterDir("/base", "manga-1", domain.TranslationSub, "10")
	b := ChapterDir("/base", "manga-1", domain.TranslationSub, "10.5")
	c := ChapterDir("/base", "manga-1", domain.TranslationRaw, "10")
	if a == b || a == c || b == c {
		t.Fatalf("chapter dirs collide: %q %q %q", a, b, c)
	}
	if !strings.Contains(a, filepath.Join("manga-pages", "manga-1", "sub", "10")) {
		t.Errorf("unexpected layout: %q", a)
	}
}

func TestBuildTargets(t *testing.T) {
	pages := []domain.RemoteItem{
		{URL: "https://cdn.example.com/a.png"},
		{URL: "https://cdn.example.com/b.jpeg"},
		{URL: "https://cdn.example.com/c"},
	}
	targets := BuildTargets(pages, "/tmp/ch")

	want := []string{
		filepath.Join("/tmp/ch", "0001.png"),
		filepath.Join("/tmp/ch", "0002.jpg"),
		filepath.Join("/tmp/ch", "0003.jpg"),
	}
	if len(targets) != len(want) {
		t.Fatalf("got %d targets, want %d", len(targets), len(want))
	}
	seen := map[string]bool{}
	for i, tg := range targets {
		if tg.Path != want[i] {
			t.Errorf("target %d path = %q, want %q", i, tg.Path, want[i])
		}
		if tg.Item.URL != pages[i].URL {
			t.Errorf("target %d lost its item URL", i)
		}
		if seen[tg.Path] {
			t.Errorf("duplicate target path %q", tg.Path)
		}
		seen[tg.Path] = true
	}
}
