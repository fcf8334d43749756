// Package mangapill scrapes mangapill.com, which has no API. The pages
// it serves are static HTML, so a few targeted regexes are enough.
package mangapill

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avrelia/anv/internal/domain"
	"github.com/avrelia/anv/internal/fetch"
)

const defaultBaseURL = "https://mangapill.com"

var (
	// <a href="/manga/2085/jujutsu-kaisen" ...><div ...>Jujutsu Kaisen</div>
	searchResultRe = regexp.MustCompile(`href="/manga/(\d+)/([^"]+)"[^>]*>\s*<div[^>]*>([^<]+)</div>`)
	// <a href="/chapters/2085-10271500/jujutsu-kaisen-chapter-271.5" ...>Chapter 271.5</a>
	chapterLinkRe = regexp.MustCompile(`href="/chapters/([^"]+)"[^>]*>([^<]+)</a>`)
	// <img class="js-page" data-src="https://cdn...">
	pageImageRe = regexp.MustCompile(`data-src="([^"]+)"`)
)

type Client struct {
	// BaseURL is overridable for tests.
	BaseURL string

	http *http.Client
}

func New() *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) fetchHTML(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", fetch.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("mangapill error: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) SearchMangas(ctx context.Context, query string, _ domain.Translation) ([]domain.MangaInfo, error) {
	html, err := c.fetchHTML(ctx, c.BaseURL+"/search?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}

	var mangas []domain.MangaInfo
	for _, m := range searchResultRe.FindAllStringSubmatch(html, -1) {
		mangas = append(mangas, domain.MangaInfo{
			// The numeric id and the slug are both needed to build URLs.
			ID:    m[1] + "/" + m[2],
			Title: strings.TrimSpace(m[3]),
		})
	}
	return mangas, nil
}

func (c *Client) FetchChapters(ctx context.Context, mangaID string, _ domain.Translation) ([]string, error) {
	html, err := c.fetchHTML(ctx, c.BaseURL+"/manga/"+mangaID)
	if err != nil {
		return nil, err
	}

	var chapters []string
	seen := make(map[string]bool)
	for _, m := range chapterLinkRe.FindAllStringSubmatch(html, -1) {
		num := strings.TrimSpace(strings.TrimPrefix(m[2], "Chapter "))
		if num != "" && !seen[num] {
			seen[num] = true
			chapters = append(chapters, num)
		}
	}

	sort.SliceStable(chapters, func(i, j int) bool {
		return chapterNum(chapters[i]) < chapterNum(chapters[j])
	})
	return chapters, nil
}

func (c *Client) FetchPages(ctx context.Context, mangaID string, _ domain.Translation, chapter string) ([]domain.RemoteItem, error) {
	// Only chapter numbers were surfaced to the UI, so the chapter slug
	// has to be looked up again from the manga page.
	html, err := c.fetchHTML(ctx, c.BaseURL+"/manga/"+mangaID)
	if err != nil {
		return nil, err
	}

	slugRe, err := regexp.Compile(`href="/chapters/([^"]+)"[^>]*>Chapter ` + regexp.QuoteMeta(chapter) + `</a>`)
	if err != nil {
		return nil, err
	}
	m := slugRe.FindStringSubmatch(html)
	if m == nil {
		return nil, fmt.Errorf("chapter %s not found", chapter)
	}

	html, err = c.fetchHTML(ctx, c.BaseURL+"/chapters/"+m[1])
	if err != nil {
		return nil, err
	}

	var pages []domain.RemoteItem
	for _, img := range pageImageRe.FindAllStringSubmatch(html, -1) {
		pages = append(pages, domain.RemoteItem{
			URL:     img[1],
			Headers: map[string]string{},
		})
	}
	return pages, nil
}

func chapterNum(label string) float64 {
	n, err := strconv.ParseFloat(label, 64)
	if err != nil {
		return 0
	}
	return n
}
