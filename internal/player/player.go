// Package player launches the external media player (mpv by default) and
// translates provider headers into the flag surface players understand.
package player

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/avrelia/anv/internal/cache"
	"github.com/avrelia/anv/internal/delivery"
	"github.com/avrelia/anv/internal/domain"
	"github.com/avrelia/anv/internal/infra/logger"
	"github.com/avrelia/anv/internal/proxy"
)

type Player struct {
	// Command is the player binary, already resolved from config/env.
	Command  string
	log      *logger.Logger
	fallback proxy.Fallback
}

func New(command string, fallback proxy.Fallback, log *logger.Logger) *Player {
	return &Player{Command: command, log: log, fallback: fallback}
}

// PlayStream hands a single episode stream to the player.
func (p *Player) PlayStream(ctx context.Context, stream domain.StreamOption, title, episode string) error {
	args := []string{
		"--quiet",
		"--terminal=no",
		fmt.Sprintf("--force-media-title=%s - Episode %s", title, episode),
	}
	if stream.Subtitle != "" {
		args = append(args, "--sub-file="+stream.Subtitle)
	}
	args = append(args, headerArgs(stream.Headers)...)
	args = append(args, stream.URL)

	return p.run(ctx, args, false)
}

// ViewChapter delivers a chapter's pages to the player using the best
// available strategy. The proxy, when used, is torn down after the
// player exits regardless of its exit status.
func (p *Player) ViewChapter(ctx context.Context, session *cache.Session, title, chapter string) error {
	strategy, err := delivery.Choose(session)
	if err != nil {
		return err
	}

	args := []string{
		"--quiet",
		"--terminal=no",
		fmt.Sprintf("--force-media-title=%s - Chapter %s", title, chapter),
		"--image-display-duration=inf",
	}

	switch strategy {
	case delivery.FullyCached:
		for i := range session.Targets {
			path, _ := session.LocalPath(i)
			args = append(args, path)
		}
		return p.run(ctx, args, false)

	case delivery.ProxyBacked:
		px, err := proxy.Start(session.Targets, p.fallback, p.log)
		if err != nil {
			p.log.Warn("Local page proxy unavailable (%v), falling back to direct URLs", err)
			return p.run(ctx, append(args, directRemoteArgs(session.Targets)...), true)
		}
		defer px.Shutdown()
		for i := range session.Targets {
			args = append(args, px.PageURL(i))
		}
		return p.run(ctx, args, false)

	default:
		return p.run(ctx, append(args, directRemoteArgs(session.Targets)...), true)
	}
}

// run executes the player and normalizes its failure modes. In direct-URL
// image mode an exit status of 2 is tolerated; mpv reports it when the
// user quits partway through a remote page list.
func (p *Player) run(ctx context.Context, args []string, tolerateExit2 bool) error {
	cmd := exec.CommandContext(ctx, p.Command, args...)
	err := cmd.Run()
	if err == nil {
		return nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("player %q not found; install mpv or set ANV_PLAYER to a valid command", p.Command)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if tolerateExit2 && exitErr.ExitCode() == 2 {
			return nil
		}
		return fmt.Errorf("player exited with status %d", exitErr.ExitCode())
	}
	return fmt.Errorf("failed to launch player %q: %w", p.Command, err)
}

// directRemoteArgs passes the original URLs, with the first page's
// headers translated to flags. Most players cannot attach headers
// per-URL, so the first item's header set has to cover the batch.
func directRemoteArgs(targets []cache.Target) []string {
	var args []string
	if len(targets) > 0 {
		args = headerArgs(targets[0].Item.Headers)
	}
	for _, t := range targets {
		args = append(args, t.Item.URL)
	}
	return args
}

// headerArgs maps HTTP headers onto mpv's flag surface. Sorted for a
// deterministic command line.
func headerArgs(headers map[string]string) []string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []string
	for _, k := range keys {
		v := headers[k]
		switch {
		case strings.EqualFold(k, "user-agent"):
			args = append(args, "--user-agent="+v)
		case strings.EqualFold(k, "referer"):
			args = append(args, "--referrer="+v, "--http-header-fields=Referer: "+v)
		default:
			args = append(args, fmt.Sprintf("--http-header-fields=%s: %s", k, v))
		}
	}
	return args
}
