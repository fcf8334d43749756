package app

import (
	"fmt"

	"github.com/avrelia/anv/internal/fetch"
	"github.com/avrelia/anv/internal/history"
	"github.com/avrelia/anv/internal/infra/config"
	"github.com/avrelia/anv/internal/infra/logger"
	"github.com/avrelia/anv/internal/player"
	"github.com/avrelia/anv/internal/provider"
	"github.com/avrelia/anv/internal/provider/allanime"
	"github.com/avrelia/anv/internal/provider/mangadex"
	"github.com/avrelia/anv/internal/provider/mangapill"
)

// Context holds every long-lived dependency the command flows need.
// It is assembled once at startup and passed down by value.
type Context struct {
	Config  *config.Config
	Logger  *logger.Logger
	Anime   provider.AnimeProvider
	Manga   provider.MangaProvider
	History *history.Store
	Fetcher *fetch.Fetcher
	Player  *player.Player
}

// NewContext wires providers, history storage, the fetcher and the
// player from a loaded configuration. Callers own Close.
func NewContext(cfg *config.Config, log *logger.Logger) (*Context, error) {
	ctx := &Context{
		Config: cfg,
		Logger: log,
	}

	al := allanime.New()
	ctx.Anime = al

	switch cfg.Provider {
	case "mangadex":
		ctx.Manga = mangadex.New()
	case "mangapill":
		ctx.Manga = mangapill.New()
	default:
		ctx.Manga = al
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	ctx.History = store

	ctx.Fetcher = fetch.New(cfg.Fetch.FallbackTool)
	ctx.Player = player.New(cfg.PlayerCommand(), ctx.Fetcher, log)

	return ctx, nil
}

// Close releases resources held by the context.
func (c *Context) Close() error {
	if c.History != nil {
		return c.History.Close()
	}
	return nil
}
