// Package allanime is the GraphQL client for the AllAnime catalogue, the
// default source for both shows and manga.
package allanime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avrelia/anv/internal/domain"
	"github.com/avrelia/anv/internal/fetch"
)

const (
	defaultAPIURL = "https://api.allanime.day/api"
	defaultSiteURL = "https://allanime.day"

	refererURL = "https://allmanga.to"
	originURL  = "https://allanime.day"
)

// preferredSources is the order in which embedded stream hosts are tried.
var preferredSources = []string{"Default", "S-mp4", "Luf-Mp4", "Yt-mp4"}

type Client struct {
	// APIURL and SiteURL are overridable for tests.
	APIURL  string
	SiteURL string

	http *http.Client
}

func New() *Client {
	return &Client{
		APIURL:  defaultAPIURL,
		SiteURL: defaultSiteURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type graphqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// post runs one GraphQL query and decodes the data payload into out.
func (c *Client) post(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", fetch.UserAgent)
	req.Header.Set("Referer", refererURL)
	req.Header.Set("Origin", originURL)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("AllAnime API HTTP %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(text)), &domain.StatusError{Code: resp.StatusCode})
	}

	var envelope graphqlEnvelope
	if err := json.Unmarshal(text, &envelope); err != nil {
		return fmt.Errorf("failed to parse AllAnime response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("AllAnime API error: %s", strings.Join(msgs, "; "))
	}
	if envelope.Data == nil {
		return fmt.Errorf("AllAnime API returned empty response")
	}
	return json.Unmarshal(envelope.Data, out)
}

type availability struct {
	Sub int `json:"sub"`
	Dub int `json:"dub"`
	Raw int `json:"raw"`
}

func (c *Client) SearchShows(ctx context.Context, query string, translation domain.Translation) ([]domain.ShowInfo, error) {
	var payload struct {
		Shows struct {
			Edges []struct {
				ID                string       `json:"_id"`
				Name              string       `json:"name"`
				AvailableEpisodes availability `json:"availableEpisodes"`
			} `json:"edges"`
		} `json:"shows"`
	}
	err := c.post(ctx, searchShowsQuery, map[string]any{
		"search": map[string]any{
			"allowAdult":   false,
			"allowUnknown": false,
			"query":        query,
		},
		"limit":           25,
		"page":            1,
		"translationType": string(translation),
		"countryOrigin":   "ALL",
	}, &payload)
	if err != nil {
		return nil, err
	}

	shows := make([]domain.ShowInfo, 0, len(payload.Shows.Edges))
	for _, edge := range payload.Shows.Edges {
		shows = append(shows, domain.ShowInfo{
			ID:    edge.ID,
			Title: edge.Name,
			AvailableEps: domain.EpisodeCounts{
				Sub: edge.AvailableEpisodes.Sub,
				Dub: edge.AvailableEpisodes.Dub,
			},
		})
	}
	return shows, nil
}

func (c *Client) FetchEpisodes(ctx context.Context, showID string, translation domain.Translation) ([]string, error) {
	var payload struct {
		Show struct {
			Detail struct {
				Sub []string `json:"sub"`
				Dub []string `json:"dub"`
			} `json:"availableEpisodesDetail"`
		} `json:"show"`
	}
	err := c.post(ctx, showDetailQuery, map[string]any{"showId": showID}, &payload)
	if err != nil {
		return nil, err
	}
	if translation == domain.TranslationDub {
		return payload.Show.Detail.Dub, nil
	}
	return payload.Show.Detail.Sub, nil
}

type sourceDescriptor struct {
	SourceURL  string `json:"sourceUrl"`
	SourceName string `json:"sourceName"`
}

type clockResponse struct {
	Links []clockLink `json:"links"`
}

type clockLink struct {
	Link       string            `json:"link"`
	Resolution string            `json:"resolutionStr"`
	HLS        bool              `json:"hls"`
	Subtitles  []clockSubtitle   `json:"subtitles"`
	Headers    map[string]string `json:"headers"`
}

type clockSubtitle struct {
	Src   string `json:"src"`
	Lang  string `json:"lang"`
	Label string `json:"label"`
}

func (c *Client) FetchStreams(ctx context.Context, showID string, translation domain.Translation, episode string) ([]domain.StreamOption, error) {
	var payload struct {
		Episode struct {
			SourceURLs []sourceDescriptor `json:"sourceUrls"`
		} `json:"episode"`
	}
	err := c.post(ctx, episodeSourcesQuery, map[string]any{
		"showId":          showID,
		"translationType": string(translation),
		"episodeString":   episode,
	}, &payload)
	if err != nil {
		return nil, err
	}

	for _, name := range preferredSources {
		source, ok := findSource(payload.Episode.SourceURLs, name)
		if !ok {
			continue
		}
		decoded, ok := decodeSourcePath(source.SourceURL)
		if !ok {
			continue
		}
		clock, err := c.fetchClock(ctx, decoded)
		if err != nil {
			continue
		}

		options := make([]domain.StreamOption, 0, len(clock.Links))
		for _, link := range clock.Links {
			options = append(options, buildStreamOption(name, link))
		}
		if len(options) == 0 {
			continue
		}
		sort.SliceStable(options, func(i, j int) bool {
			return options[i].QualityRank > options[j].QualityRank
		})
		return options, nil
	}

	return nil, nil
}

// fetchClock resolves one decoded source path to its stream list.
func (c *Client) fetchClock(ctx context.Context, path string) (*clockResponse, error) {
	url := path
	if !strings.HasPrefix(url, "http") {
		url = c.SiteURL + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fetch.UserAgent)
	req.Header.Set("Referer", refererURL)
	req.Header.Set("Origin", originURL)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.StatusError{Code: resp.StatusCode}
	}

	var clock clockResponse
	if err := json.NewDecoder(resp.Body).Decode(&clock); err != nil {
		return nil, fmt.Errorf("failed to parse stream list: %w", err)
	}
	return &clock, nil
}

func (c *Client) SearchMangas(ctx context.Context, query string, translation domain.Translation) ([]domain.MangaInfo, error) {
	var payload struct {
		Mangas struct {
			Edges []struct {
				ID                string       `json:"_id"`
				Name              string       `json:"name"`
				AvailableChapters availability `json:"availableChapters"`
			} `json:"edges"`
		} `json:"mangas"`
	}
	err := c.post(ctx, searchMangasQuery, map[string]any{
		"search": map[string]any{
			"allowAdult":   false,
			"allowUnknown": false,
			"query":        query,
		},
		"limit":           25,
		"page":            1,
		"translationType": string(translation),
		"countryOrigin":   "ALL",
	}, &payload)
	if err != nil {
		return nil, err
	}

	mangas := make([]domain.MangaInfo, 0, len(payload.Mangas.Edges))
	for _, edge := range payload.Mangas.Edges {
		mangas = append(mangas, domain.MangaInfo{
			ID:    edge.ID,
			Title: edge.Name,
			AvailableChapters: domain.ChapterCounts{
				Sub: edge.AvailableChapters.Sub,
				Raw: edge.AvailableChapters.Raw,
			},
		})
	}
	return mangas, nil
}

func (c *Client) FetchChapters(ctx context.Context, mangaID string, translation domain.Translation) ([]string, error) {
	var payload struct {
		Manga struct {
			Detail struct {
				Sub []string `json:"sub"`
				Raw []string `json:"raw"`
			} `json:"availableChaptersDetail"`
		} `json:"manga"`
	}
	err := c.post(ctx, mangaDetailQuery, map[string]any{"mangaId": mangaID}, &payload)
	if err != nil {
		return nil, err
	}
	if translation == domain.TranslationRaw {
		return payload.Manga.Detail.Raw, nil
	}
	return payload.Manga.Detail.Sub, nil
}

func (c *Client) FetchPages(ctx context.Context, mangaID string, translation domain.Translation, chapter string) ([]domain.RemoteItem, error) {
	var payload struct {
		ChapterPages struct {
			Edges []struct {
				PictureURLHead string `json:"pictureUrlHead"`
				PictureURLs    []struct {
					URL string `json:"url"`
				} `json:"pictureUrls"`
			} `json:"edges"`
		} `json:"chapterPages"`
	}
	err := c.post(ctx, chapterPagesQuery, map[string]any{
		"mangaId":         mangaID,
		"translationType": string(translation),
		"chapterString":   chapter,
	}, &payload)
	if err != nil {
		return nil, err
	}

	if len(payload.ChapterPages.Edges) == 0 {
		return nil, nil
	}
	edge := payload.ChapterPages.Edges[0]

	pages := make([]domain.RemoteItem, 0, len(edge.PictureURLs))
	for _, pic := range edge.PictureURLs {
		url := pic.URL
		if !strings.HasPrefix(url, "http") {
			url = edge.PictureURLHead + url
		}
		pages = append(pages, domain.RemoteItem{
			URL:     url,
			Headers: map[string]string{"Referer": refererURL},
		})
	}
	return pages, nil
}

func findSource(sources []sourceDescriptor, name string) (sourceDescriptor, bool) {
	for _, s := range sources {
		if s.SourceName == name {
			return s, true
		}
	}
	return sourceDescriptor{}, false
}

func buildStreamOption(provider string, link clockLink) domain.StreamOption {
	quality := link.Resolution
	if quality == "" {
		quality = "auto"
	}

	var subtitle string
	for _, sub := range link.Subtitles {
		if sub.Lang == "en" || sub.Label == "English" {
			subtitle = sub.Src
			break
		}
	}

	headers := make(map[string]string, len(link.Headers)+1)
	for k, v := range link.Headers {
		headers[k] = v
	}
	hasReferer := false
	for k := range headers {
		if strings.EqualFold(k, "referer") {
			hasReferer = true
			break
		}
	}
	if !hasReferer {
		headers["Referer"] = refererURL
	}

	return domain.StreamOption{
		Provider:     provider,
		URL:          link.Link,
		QualityLabel: quality,
		QualityRank:  qualityRank(quality),
		IsHLS:        link.HLS,
		Headers:      headers,
		Subtitle:     subtitle,
	}
}

// qualityRank orders stream options best-first: "auto" beats everything,
// otherwise the numeric prefix of labels like "1080p" wins.
func qualityRank(label string) int {
	if strings.EqualFold(label, "auto") {
		return 10000
	}
	n, err := strconv.Atoi(strings.TrimSuffix(label, "p"))
	if err != nil {
		return 0
	}
	return n
}
