package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avrelia/anv/internal/cache"
	"github.com/avrelia/anv/internal/domain"
	"github.com/avrelia/anv/internal/history"
	"github.com/avrelia/anv/internal/ui"
)

// settleTimeout bounds how long a chapter switch waits for the previous
// chapter's background fill before moving on.
const settleTimeout = 3 * time.Second

// RunManga drives the search -> pick manga -> read chapters loop. Pages
// are cached ahead of the viewer; a blocked CDN skips the chapter with a
// hint instead of showing broken pages.
func (c *Context) RunManga(ctx context.Context, query string, translation domain.Translation) error {
	if query == "" {
		q, err := ui.Input("Search manga", "")
		if err != nil {
			return err
		}
		query = q
	}

	mangas, err := c.Manga.SearchMangas(ctx, query, translation)
	if err != nil {
		return fmt.Errorf("search mangas: %w", err)
	}
	if len(mangas) == 0 {
		return fmt.Errorf("no results for %q", query)
	}

	labels := make([]string, len(mangas))
	for i, m := range mangas {
		labels[i] = mangaLabel(m, translation)
	}
	idx, err := ui.Select("Select manga", labels)
	if err != nil {
		return err
	}
	return c.readManga(ctx, mangas[idx], translation)
}

// readManga runs the chapter prompt/view loop for a known manga.
func (c *Context) readManga(ctx context.Context, manga domain.MangaInfo, translation domain.Translation) error {
	chapters, err := c.Manga.FetchChapters(ctx, manga.ID, translation)
	if err != nil {
		return fmt.Errorf("fetch chapters: %w", err)
	}
	if len(chapters) == 0 {
		return fmt.Errorf("no chapters available for %s", manga.Title)
	}
	sortNumericAsc(chapters)
	latest := chapters[len(chapters)-1]

	chapter := chapters[0]
	if last, ok, err := c.History.LastSeen(manga.ID, translation, true); err == nil && ok {
		if containsLabel(chapters, last) {
			chapter = last
		}
	}

	populator := cache.NewPopulator(c.Fetcher, c.Logger)
	var prev *cache.Session

	for {
		picked, err := ui.Input(fmt.Sprintf("Chapter to read (1-%s)", latest), chapter)
		if err != nil {
			return err
		}
		if !containsLabel(chapters, picked) {
			fmt.Printf("Chapter %s is not available; latest is %s.\n", picked, latest)
			continue
		}
		chapter = picked

		// Let the previous chapter's background fill settle so two fills
		// never write the cache at once.
		if prev != nil {
			settleCtx, cancel := context.WithTimeout(ctx, settleTimeout)
			_ = prev.Wait(settleCtx)
			cancel()
			prev = nil
		}

		session, err := c.readChapter(ctx, populator, manga, translation, chapter)
		if err != nil {
			if errors.Is(err, domain.ErrCDNBlocked) {
				fmt.Println("The image CDN refused this network (HTTP 403).")
				fmt.Println("Try a different provider: --provider mangadex or --provider mangapill")
				continue
			}
			if errors.Is(err, ui.ErrCancelled) {
				return err
			}
			fmt.Printf("Could not open chapter %s: %v\n", chapter, err)
			continue
		}
		prev = session

		if err := c.History.Upsert(history.Entry{
			ShowID:      manga.ID,
			ShowTitle:   manga.Title,
			Label:       chapter,
			Translation: translation,
			IsManga:     true,
		}); err != nil {
			c.Logger.Warn("record history: %v", err)
		}

		next, err := c.chapterMenu(chapters, chapter)
		if err != nil {
			return err
		}
		chapter = next
	}
}

// readChapter fetches the page list, populates the cache and hands the
// chapter to the viewer. The returned session may still be filling in
// the background.
func (c *Context) readChapter(ctx context.Context, populator *cache.Populator, manga domain.MangaInfo, translation domain.Translation, chapter string) (*cache.Session, error) {
	pages, err := c.Manga.FetchPages(ctx, manga.ID, translation, chapter)
	if err != nil {
		return nil, fmt.Errorf("fetch pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("chapter %s has no pages", chapter)
	}

	dir := cache.ChapterDir(c.Config.Cache.Dir, manga.ID, translation, chapter)
	targets := cache.BuildTargets(pages, dir)

	session, err := populator.Populate(ctx, targets, c.Config.Cache.Preload)
	if errors.Is(err, domain.ErrCacheUnavailable) {
		c.Logger.Warn("Cache unavailable, serving remote URLs directly: %v", err)
	} else if err != nil {
		return nil, err
	}
	if session.CDNBlocked {
		return nil, domain.ErrCDNBlocked
	}

	c.Logger.Info("viewing %s chapter %s (%d pages)", manga.Title, chapter, len(pages))
	if err := c.Player.ViewChapter(ctx, session, manga.Title, chapter); err != nil {
		return nil, err
	}
	return session, nil
}

func (c *Context) chapterMenu(chapters []string, current string) (string, error) {
	next, last := nextEpisodeDefault(chapters, current)
	previous, first := previousLabel(chapters, current)

	items := []string{}
	if !last {
		items = append(items, fmt.Sprintf("Next chapter (%s)", next))
	}
	if !first {
		items = append(items, fmt.Sprintf("Previous chapter (%s)", previous))
	}
	items = append(items, fmt.Sprintf("Reread chapter %s", current), "Pick a chapter")

	idx, err := ui.Select("What next", items)
	if err != nil {
		return "", err
	}
	choice := items[idx]
	switch {
	case !last && idx == 0:
		return next, nil
	case choice == fmt.Sprintf("Previous chapter (%s)", previous):
		return previous, nil
	case choice == fmt.Sprintf("Reread chapter %s", current):
		return current, nil
	default:
		return current, nil
	}
}

func previousLabel(labels []string, current string) (string, bool) {
	for i, l := range labels {
		if l == current && i > 0 {
			return labels[i-1], false
		}
	}
	return current, true
}

func mangaLabel(m domain.MangaInfo, translation domain.Translation) string {
	n := m.AvailableChapters.Sub
	if translation == domain.TranslationRaw {
		n = m.AvailableChapters.Raw
	}
	// Some providers do not expose counts in search results.
	if n == 0 {
		return m.Title
	}
	return fmt.Sprintf("%s (%d chapters)", m.Title, n)
}
