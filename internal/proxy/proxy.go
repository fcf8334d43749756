package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avrelia/anv/internal/cache"
	"github.com/avrelia/anv/internal/domain"
	"github.com/avrelia/anv/internal/infra/logger"
)

const (
	acceptPoll     = 25 * time.Millisecond
	acceptErrSleep = 50 * time.Millisecond
	requestTimeout = 5 * time.Second
)

// Fallback is the lazy-fill hook: on a cache miss the proxy fetches the
// page through the external tool before answering.
type Fallback interface {
	FetchFallback(ctx context.Context, item domain.RemoteItem, dest string) error
}

// Proxy is an ephemeral loopback HTTP responder that serves cached pages
// by positional index. It exists so the player can consume a partially
// cached chapter as if it were fully local.
type Proxy struct {
	baseURL  string
	listener *net.TCPListener
	targets  []cache.Target
	fallback Fallback
	log      *logger.Logger

	stop     atomic.Bool
	done     chan struct{}
	shutdown sync.Once
}

// Start binds an OS-assigned loopback port and spawns the serving
// goroutine. The proxy holds its own copy of targets; callers must not
// mutate the slice afterwards.
func Start(targets []cache.Target, fallback Fallback, log *logger.Logger) (*Proxy, error) {
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind local page proxy: %w", err)
	}

	p := &Proxy{
		baseURL:  fmt.Sprintf("http://127.0.0.1:%d", listener.Addr().(*net.TCPAddr).Port),
		listener: listener,
		targets:  append([]cache.Target(nil), targets...),
		fallback: fallback,
		log:      log,
		done:     make(chan struct{}),
	}

	go p.serve()
	return p, nil
}

// BaseURL is http://127.0.0.1:<port>.
func (p *Proxy) BaseURL() string { return p.baseURL }

// PageURL returns the proxy URL for the 0-based page index.
func (p *Proxy) PageURL(idx int) string {
	return fmt.Sprintf("%s/%d", p.baseURL, idx)
}

// Shutdown stops the accept loop and joins it. Safe to call more than
// once, and safe to call after a serve error.
func (p *Proxy) Shutdown() {
	p.shutdown.Do(func() {
		p.stop.Store(true)
		<-p.done
		p.listener.Close()
	})
}

// serve polls accept with a short deadline so the stop flag is observed
// promptly without busy-spinning. Connections are handled one at a time;
// the only client is the local player fetching a bounded set of pages.
func (p *Proxy) serve() {
	defer close(p.done)

	for !p.stop.Load() {
		p.listener.SetDeadline(time.Now().Add(acceptPoll))
		conn, err := p.listener.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			p.log.Warn("Local page proxy accept failed: %v", err)
			time.Sleep(acceptErrSleep)
			continue
		}

		if err := p.handle(conn); err != nil && !isBenignDisconnect(err) {
			writeError(conn, 500, "proxy error")
			p.log.Warn("Local page proxy request failed: %v", err)
		}
		conn.Close()
	}
}

type method int

const (
	methodGet method = iota
	methodHead
	methodUnsupported
)

// handle reads just the request line; nothing else in the request
// matters for a single-purpose index server.
func (p *Proxy) handle(conn net.Conn) error {
	conn.SetReadDeadline(time.Now().Add(requestTimeout))

	line, err := bufio.NewReader(io.LimitReader(conn, 4096)).ReadString('\n')
	if err != nil && line == "" {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to read proxy request: %w", err)
	}

	m, path := parseRequestLine(line)
	if m == methodUnsupported {
		return writeError(conn, 405, "method not allowed")
	}

	idx, ok := parseIndex(path)
	if !ok || idx >= len(p.targets) {
		return writeError(conn, 404, "not found")
	}
	target := p.targets[idx]

	if _, err := os.Stat(target.Path); err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		fetchErr := p.fallback.FetchFallback(ctx, target.Item, target.Path)
		cancel()
		if fetchErr != nil {
			writeError(conn, 502, "cache fetch failed")
			return fmt.Errorf("failed to fetch page %s for proxy: %w", target.Item.URL, fetchErr)
		}
	}

	data, err := os.ReadFile(target.Path)
	if err != nil {
		writeError(conn, 502, "cache read failed")
		return fmt.Errorf("failed to read cached file %s: %w", target.Path, err)
	}

	conn.SetWriteDeadline(time.Now().Add(requestTimeout))
	header := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Length: %d\r\nContent-Type: %s\r\nConnection: close\r\n\r\n",
		len(data), mimeTypeForPath(target.Path),
	)
	if _, err := io.WriteString(conn, header); err != nil {
		return benignOr(err, "failed to write proxy headers")
	}
	if m == methodHead {
		return nil
	}
	if _, err := conn.Write(data); err != nil {
		return benignOr(err, "failed to write proxy body")
	}
	return nil
}

func parseRequestLine(line string) (method, string) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return methodUnsupported, ""
	}
	switch fields[0] {
	case "GET":
		return methodGet, fields[1]
	case "HEAD":
		return methodHead, fields[1]
	default:
		return methodUnsupported, fields[1]
	}
}

// parseIndex extracts the positional index from a path like "/3?x=y".
func parseIndex(path string) (int, bool) {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	idx, err := strconv.Atoi(path)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

var statusReasons = map[int]string{
	404: "Not Found",
	405: "Method Not Allowed",
	502: "Bad Gateway",
}

func writeError(conn net.Conn, status int, message string) error {
	reason, ok := statusReasons[status]
	if !ok {
		reason = "Internal Server Error"
	}
	conn.SetWriteDeadline(time.Now().Add(requestTimeout))
	_, err := fmt.Fprintf(conn,
		"HTTP/1.1 %d %s\r\nContent-Length: %d\r\nContent-Type: text/plain; charset=utf-8\r\nConnection: close\r\n\r\n%s",
		status, reason, len(message), message,
	)
	if err != nil {
		return benignOr(err, "failed to write proxy error response")
	}
	return nil
}

// benignOr swallows disconnect errors: the player closing early or
// seeking away is normal, not a fault.
func benignOr(err error, msg string) error {
	if isBenignDisconnect(err) {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isBenignDisconnect(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		msg := opErr.Err.Error()
		return strings.Contains(msg, "broken pipe") ||
			strings.Contains(msg, "connection reset") ||
			strings.Contains(msg, "connection aborted")
	}
	return false
}

func mimeTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".avif":
		return "image/avif"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
