// Package provider defines the interfaces content providers implement.
// Providers return metadata and remote items; they never touch the cache
// or the player.
package provider

import (
	"context"

	"github.com/avrelia/anv/internal/domain"
)

type AnimeProvider interface {
	SearchShows(ctx context.Context, query string, translation domain.Translation) ([]domain.ShowInfo, error)
	FetchEpisodes(ctx context.Context, showID string, translation domain.Translation) ([]string, error)
	FetchStreams(ctx context.Context, showID string, translation domain.Translation, episode string) ([]domain.StreamOption, error)
}

type MangaProvider interface {
	SearchMangas(ctx context.Context, query string, translation domain.Translation) ([]domain.MangaInfo, error)
	FetchChapters(ctx context.Context, mangaID string, translation domain.Translation) ([]string, error)
	FetchPages(ctx context.Context, mangaID string, translation domain.Translation, chapter string) ([]domain.RemoteItem, error)
}
