package app

import (
	"context"
	"fmt"

	"github.com/avrelia/anv/internal/domain"
	"github.com/avrelia/anv/internal/ui"
)

// RunHistory lists watched entries newest-first and resumes the picked
// one, defaulting the prompt to what comes after the recorded position.
func (c *Context) RunHistory(ctx context.Context) error {
	entries, err := c.History.Entries()
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No history yet.")
		return nil
	}

	labels := make([]string, len(entries))
	for i, e := range entries {
		kind := "episode"
		if e.IsManga {
			kind = "chapter"
		}
		labels[i] = fmt.Sprintf("%s — %s %s (%s)", e.ShowTitle, kind, e.Label, e.Translation.Label())
	}
	idx, err := ui.Select("Resume from history", labels)
	if err != nil {
		return err
	}
	entry := entries[idx]

	if entry.IsManga {
		return c.readManga(ctx, domain.MangaInfo{ID: entry.ShowID, Title: entry.ShowTitle}, entry.Translation)
	}
	return c.playShow(ctx, domain.ShowInfo{ID: entry.ShowID, Title: entry.ShowTitle}, entry.Translation)
}
