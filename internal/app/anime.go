package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/avrelia/anv/internal/domain"
	"github.com/avrelia/anv/internal/history"
	"github.com/avrelia/anv/internal/ui"
)

// RunAnime drives the search -> pick show -> pick episode -> play loop.
// It returns nil when the user quits cleanly.
func (c *Context) RunAnime(ctx context.Context, query string, translation domain.Translation) error {
	if query == "" {
		q, err := ui.Input("Search anime", "")
		if err != nil {
			return err
		}
		query = q
	}

	shows, err := c.Anime.SearchShows(ctx, query, translation)
	if err != nil {
		return fmt.Errorf("search shows: %w", err)
	}
	if len(shows) == 0 {
		return fmt.Errorf("no results for %q", query)
	}

	labels := make([]string, len(shows))
	for i, s := range shows {
		labels[i] = showLabel(s, translation)
	}
	idx, err := ui.Select("Select show", labels)
	if err != nil {
		return err
	}
	return c.playShow(ctx, shows[idx], translation)
}

// playShow runs the episode prompt/play loop for a known show. The
// default episode is the one after the last watched, or the latest.
func (c *Context) playShow(ctx context.Context, show domain.ShowInfo, translation domain.Translation) error {
	episodes, err := c.Anime.FetchEpisodes(ctx, show.ID, translation)
	if err != nil {
		return fmt.Errorf("fetch episodes: %w", err)
	}
	if len(episodes) == 0 {
		return fmt.Errorf("no %s episodes available for %s", translation.Label(), show.Title)
	}
	sortNumericAsc(episodes)
	latest := episodes[len(episodes)-1]

	defaultEp := latest
	if last, ok, err := c.History.LastSeen(show.ID, translation, false); err == nil && ok {
		if containsLabel(episodes, last) {
			defaultEp = last
		}
	}

	for {
		episode, err := ui.Input(fmt.Sprintf("Episode to play (1-%s)", latest), defaultEp)
		if err != nil {
			return err
		}
		if !containsLabel(episodes, episode) {
			fmt.Printf("Episode %s is not available; latest is %s.\n", episode, latest)
			defaultEp = latest
			continue
		}

		streams, err := c.Anime.FetchStreams(ctx, show.ID, translation, episode)
		if err != nil {
			var se *domain.StatusError
			if errors.As(err, &se) && se.Code == 400 {
				fmt.Printf("Episode %s is not yet available.\n", episode)
				defaultEp = latest
				continue
			}
			return fmt.Errorf("fetch streams: %w", err)
		}
		if len(streams) == 0 {
			fmt.Printf("No supported streams for episode %s.\n", episode)
			continue
		}

		stream, err := chooseStream(streams)
		if err != nil {
			return err
		}

		c.Logger.Info("playing %s episode %s via %s (%s)", show.Title, episode, stream.Provider, stream.QualityLabel)
		if err := c.Player.PlayStream(ctx, stream, show.Title, episode); err != nil {
			return err
		}

		if err := c.History.Upsert(history.Entry{
			ShowID:      show.ID,
			ShowTitle:   show.Title,
			Label:       episode,
			Translation: translation,
			IsManga:     false,
		}); err != nil {
			c.Logger.Warn("record history: %v", err)
		}

		next, done := nextEpisodeDefault(episodes, episode)
		if done {
			fmt.Println("That was the last available episode.")
		}
		defaultEp = next
	}
}

func chooseStream(streams []domain.StreamOption) (domain.StreamOption, error) {
	if len(streams) == 1 {
		return streams[0], nil
	}
	labels := make([]string, len(streams))
	for i, s := range streams {
		labels[i] = s.Label()
	}
	idx, err := ui.Select("Select stream", labels)
	if err != nil {
		return domain.StreamOption{}, err
	}
	return streams[idx], nil
}

func showLabel(s domain.ShowInfo, translation domain.Translation) string {
	n := s.AvailableEps.Sub
	if translation == domain.TranslationDub {
		n = s.AvailableEps.Dub
	}
	return fmt.Sprintf("%s (%d episodes)", s.Title, n)
}

// nextEpisodeDefault returns the label following current, or current
// itself (with done=true) when current is the last one.
func nextEpisodeDefault(episodes []string, current string) (string, bool) {
	for i, ep := range episodes {
		if ep == current && i+1 < len(episodes) {
			return episodes[i+1], false
		}
	}
	return current, true
}

func containsLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

// sortNumericAsc orders labels like "1", "2", "10.5" numerically,
// falling back to lexical order for anything unparsable.
func sortNumericAsc(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		a, errA := strconv.ParseFloat(labels[i], 64)
		b, errB := strconv.ParseFloat(labels[j], 64)
		if errA == nil && errB == nil {
			return a < b
		}
		if errA == nil {
			return true
		}
		if errB == nil {
			return false
		}
		return labels[i] < labels[j]
	})
}
