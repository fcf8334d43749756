package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avrelia/anv/internal/app"
	"github.com/avrelia/anv/internal/domain"
	"github.com/avrelia/anv/internal/infra/config"
	"github.com/avrelia/anv/internal/infra/logger"
	"github.com/avrelia/anv/internal/platform"
	"github.com/avrelia/anv/internal/ui"
)

var (
	flagConfig   string
	flagProvider string
	flagPreload  int
	flagDub      bool
	flagRaw      bool
	flagManga    bool
	flagHistory  bool
)

func main() {
	root := &cobra.Command{
		Use:   "anv [query]",
		Short: "Watch anime and read manga from the terminal",
		Long: `anv searches a content provider, caches manga pages locally and hands
episodes or chapters to an external player (mpv by default).`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	root.Flags().StringVarP(&flagConfig, "config", "c", "", "path to config file")
	root.Flags().StringVarP(&flagProvider, "provider", "p", "", "manga provider (allanime, mangadex, mangapill)")
	root.Flags().IntVar(&flagPreload, "preload", -1, "pages to cache before the viewer opens")
	root.Flags().BoolVar(&flagDub, "dub", false, "prefer dubbed episodes")
	root.Flags().BoolVar(&flagRaw, "raw", false, "prefer untranslated chapters")
	root.Flags().BoolVarP(&flagManga, "manga", "m", false, "read manga instead of watching anime")
	root.Flags().BoolVar(&flagHistory, "history", false, "resume from watch history")

	if err := root.Execute(); err != nil {
		if errors.Is(err, ui.ErrCancelled) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if flagPreload >= 0 {
		cfg.Cache.Preload = flagPreload
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer log.Close()

	if err := platform.ValidateDependencies(cfg.PlayerCommand(), cfg.Fetch.FallbackTool, flagManga); err != nil {
		return err
	}

	appCtx, err := app.NewContext(cfg, log)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	translation := domain.TranslationSub
	if flagDub {
		translation = domain.TranslationDub
	}
	if flagRaw {
		translation = domain.TranslationRaw
	}

	query := strings.Join(args, " ")

	switch {
	case flagHistory:
		return appCtx.RunHistory(ctx)
	case flagManga:
		return appCtx.RunManga(ctx, query, translation)
	default:
		return appCtx.RunAnime(ctx, query, translation)
	}
}
