package data

import "time"

// RefKind classifies what a user-supplied identifier points at.
type RefKind string

const (
	RefManga   RefKind = "manga"
	RefChapter RefKind = "chapter"
	RefList    RefKind = "list"
	RefLibrary RefKind = "library"
	RefForum   RefKind = "forum"
)

// Reference is a resolved, typed pointer to a remote resource.
type Reference struct {
	Kind RefKind
	ID   string
}

type Manga struct {
	ID          string
	Title       string
	Description string
	CoverURL    string
	Languages   []string
	Tags        []string
	Oneshot     bool
}

type Chapter struct {
	ID          string
	MangaID     string
	Title       string
	Language    string
	Volume      string // empty when the chapter has no volume
	Number      string // empty for oneshots
	GroupIDs    []string
	GroupNames  []string
	Pages       int
	PublishedAt time.Time
	External    bool // hosted outside MangaDex, no downloadable pages
}

// Oneshot reports whether the chapter carries no chapter number.
func (c *Chapter) Oneshot() bool {
	return c.Number == ""
}

// Page is a single page image to fetch. Index is 1-based.
type Page struct {
	ChapterID   string
	Index       int
	URL         string
	FallbackURL string
	Size        int64 // expected byte size, 0 when unknown
}

// PlannedChapter is a chapter selected into a download plan, with
// optional page clipping. Zero bounds mean "all pages".
type PlannedChapter struct {
	Chapter
	StartPage int
	EndPage   int
}

// InPageRange reports whether the 1-based page index survives the clip.
func (p *PlannedChapter) InPageRange(index int) bool {
	if p.StartPage > 0 && index < p.StartPage {
		return false
	}
	if p.EndPage > 0 && index > p.EndPage {
		return false
	}
	return true
}
