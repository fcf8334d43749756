package domain

// Translation selects which audience variant of a show or manga to use.
type Translation string

const (
	TranslationSub Translation = "sub"
	TranslationDub Translation = "dub"
	TranslationRaw Translation = "raw"
)

func (t Translation) Label() string {
	switch t {
	case TranslationDub:
		return "Dub"
	case TranslationRaw:
		return "Raw"
	default:
		return "Sub"
	}
}

// RemoteItem is one fetchable unit: a page image or a stream file.
// Headers carry provider-required Referer/Origin values that must be
// replayed on every fetch attempt, including redirects and fallbacks.
type RemoteItem struct {
	URL     string
	Headers map[string]string
}

type ShowInfo struct {
	ID           string
	Title        string
	AvailableEps EpisodeCounts
}

type EpisodeCounts struct {
	Sub int
	Dub int
}

type MangaInfo struct {
	ID                string
	Title             string
	AvailableChapters ChapterCounts
}

type ChapterCounts struct {
	Sub int
	Raw int
}

// StreamOption is one playable stream for an episode, already resolved
// to a direct URL plus whatever headers the host requires.
type StreamOption struct {
	Provider     string
	URL          string
	QualityLabel string
	QualityRank  int
	IsHLS        bool
	Headers      map[string]string
	Subtitle     string
}

func (s StreamOption) Label() string {
	kind := "MP4"
	if s.IsHLS {
		kind = "HLS"
	}
	return s.Provider + " " + s.QualityLabel + " (" + kind + ")"
}
