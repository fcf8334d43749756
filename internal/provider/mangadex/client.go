// Package mangadex is a REST client for the MangaDex API.
package mangadex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avrelia/anv/internal/domain"
)

const defaultAPIURL = "https://api.mangadex.org"

const userAgent = "anv/0.2.0"

type Client struct {
	// APIURL is overridable for tests.
	APIURL string

	http *http.Client
}

func New() *Client {
	return &Client{
		APIURL: defaultAPIURL,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("MangaDex API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// languagesFor maps the translation variant onto MangaDex language
// filters. Manga has no dub; it reads as English.
func languagesFor(translation domain.Translation) []string {
	if translation == domain.TranslationRaw {
		return []string{"ja"}
	}
	return []string{"en"}
}

type mangaListResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Title map[string]string `json:"title"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *Client) SearchMangas(ctx context.Context, query string, _ domain.Translation) ([]domain.MangaInfo, error) {
	q := url.Values{}
	q.Set("title", query)
	q.Set("limit", "25")

	var result mangaListResponse
	if err := c.get(ctx, "/manga", q, &result); err != nil {
		return nil, err
	}

	mangas := make([]domain.MangaInfo, 0, len(result.Data))
	for _, manga := range result.Data {
		title := manga.Attributes.Title["en"]
		if title == "" {
			title = manga.Attributes.Title["ja"]
		}
		if title == "" {
			for _, v := range manga.Attributes.Title {
				title = v
				break
			}
		}
		if title == "" {
			title = "Unknown Title"
		}
		// Chapter counts need one statistics call per result; not worth
		// it for a search listing.
		mangas = append(mangas, domain.MangaInfo{ID: manga.ID, Title: title})
	}
	return mangas, nil
}

type chapterListResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Chapter string `json:"chapter"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *Client) FetchChapters(ctx context.Context, mangaID string, translation domain.Translation) ([]string, error) {
	const limit = 500

	var chapters []string
	seen := make(map[string]bool)

	for offset := 0; ; offset += limit {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(offset))
		q.Set("order[chapter]", "desc")
		for _, lang := range languagesFor(translation) {
			q.Add("translatedLanguage[]", lang)
		}

		var feed chapterListResponse
		if err := c.get(ctx, "/manga/"+mangaID+"/feed", q, &feed); err != nil {
			return nil, err
		}

		for _, chapter := range feed.Data {
			num := chapter.Attributes.Chapter
			if num != "" && !seen[num] {
				seen[num] = true
				chapters = append(chapters, num)
			}
		}
		if len(feed.Data) < limit {
			break
		}
	}

	sort.SliceStable(chapters, func(i, j int) bool {
		return chapterNum(chapters[i]) < chapterNum(chapters[j])
	})
	return chapters, nil
}

type atHomeResponse struct {
	BaseURL string `json:"baseUrl"`
	Chapter struct {
		Hash string   `json:"hash"`
		Data []string `json:"data"`
	} `json:"chapter"`
}

func (c *Client) FetchPages(ctx context.Context, mangaID string, translation domain.Translation, chapter string) ([]domain.RemoteItem, error) {
	// The chapter list exposes numbers, not UUIDs, so resolve the number
	// back to its chapter id first.
	q := url.Values{}
	q.Set("manga", mangaID)
	q.Set("chapter", chapter)
	q.Set("limit", "1")
	for _, lang := range languagesFor(translation) {
		q.Add("translatedLanguage[]", lang)
	}

	var feed chapterListResponse
	if err := c.get(ctx, "/chapter", q, &feed); err != nil {
		return nil, err
	}
	if len(feed.Data) == 0 {
		return nil, fmt.Errorf("chapter %s not found", chapter)
	}
	chapterID := feed.Data[0].ID

	var atHome atHomeResponse
	if err := c.get(ctx, "/at-home/server/"+chapterID, url.Values{}, &atHome); err != nil {
		return nil, err
	}

	pages := make([]domain.RemoteItem, 0, len(atHome.Chapter.Data))
	for _, filename := range atHome.Chapter.Data {
		pages = append(pages, domain.RemoteItem{
			URL: fmt.Sprintf("%s/data/%s/%s", atHome.BaseURL, atHome.Chapter.Hash, filename),
			// MangaDex page hosts accept plain requests.
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
