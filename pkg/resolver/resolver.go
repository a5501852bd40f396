package resolver

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kerbaras/mangadex-dl/pkg/data"
)

var (
	uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	mangaURLRe   = regexp.MustCompile(`mangadex\.org/(?:title|manga)/([0-9a-fA-F-]{36})`)
	chapterURLRe = regexp.MustCompile(`mangadex\.org/chapter/([0-9a-fA-F-]{36})`)
	listURLRe    = regexp.MustCompile(`mangadex\.org/list/([0-9a-fA-F-]{36})`)
	forumURLRe   = regexp.MustCompile(`forums\.mangadex\.org/threads/[^\s]+`)

	// Pre-2021 site used numeric identifiers.
	legacyMangaRe   = regexp.MustCompile(`mangadex\.org/(?:title|manga)/(\d+)\b`)
	legacyChapterRe = regexp.MustCompile(`mangadex\.org/chapter/(\d+)\b`)
)

// LegacyMapper converts an old numeric identifier to its current UUID.
// Implemented by sources.MangaDex.
type LegacyMapper interface {
	ResolveLegacy(ctx context.Context, kind data.RefKind, legacyID string) (string, error)
}

// Resolver turns raw user input into a typed Reference. Plain URL and
// UUID inputs resolve without any network call; legacy numeric URLs go
// through the mapper and forum threads through one page fetch.
type Resolver struct {
	mapper LegacyMapper
	client *http.Client
}

func New(mapper LegacyMapper, client *http.Client) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{mapper: mapper, client: client}
}

// Classify is the pure half of resolution: it decides the reference
// kind without touching the network. Legacy and forum inputs come back
// with their raw identifier still attached.
func Classify(input string) (data.Reference, bool, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return data.Reference{}, false, &data.InvalidReferenceError{Input: input}
	}

	if strings.EqualFold(s, "library") {
		return data.Reference{Kind: data.RefLibrary}, false, nil
	}
	if uuidRe.MatchString(s) {
		// A bare UUID is assumed to name a manga.
		return data.Reference{Kind: data.RefManga, ID: strings.ToLower(s)}, false, nil
	}
	if m := chapterURLRe.FindStringSubmatch(s); m != nil {
		return data.Reference{Kind: data.RefChapter, ID: strings.ToLower(m[1])}, false, nil
	}
	if m := mangaURLRe.FindStringSubmatch(s); m != nil {
		return data.Reference{Kind: data.RefManga, ID: strings.ToLower(m[1])}, false, nil
	}
	if m := listURLRe.FindStringSubmatch(s); m != nil {
		return data.Reference{Kind: data.RefList, ID: strings.ToLower(m[1])}, false, nil
	}
	if forumURLRe.MatchString(s) {
		return data.Reference{Kind: data.RefForum, ID: s}, true, nil
	}
	if m := legacyChapterRe.FindStringSubmatch(s); m != nil {
		return data.Reference{Kind: data.RefChapter, ID: m[1]}, true, nil
	}
	if m := legacyMangaRe.FindStringSubmatch(s); m != nil {
		return data.Reference{Kind: data.RefManga, ID: m[1]}, true, nil
	}
	return data.Reference{}, false, &data.InvalidReferenceError{Input: input}
}

// Resolve classifies input and normalizes legacy identifiers and forum
// threads into current UUIDs.
func (r *Resolver) Resolve(ctx context.Context, input string) (data.Reference, error) {
	ref, needsLookup, err := Classify(input)
	if err != nil {
		return data.Reference{}, err
	}
	if !needsLookup {
		return ref, nil
	}

	switch ref.Kind {
	case data.RefForum:
		return r.resolveForum(ctx, ref.ID)
	default:
		id, err := r.mapper.ResolveLegacy(ctx, ref.Kind, ref.ID)
		if err != nil {
			return data.Reference{}, fmt.Errorf("failed to map legacy id %s: %w", ref.ID, err)
		}
		return data.Reference{Kind: ref.Kind, ID: id}, nil
	}
}

// resolveForum fetches the thread page and picks the first manga or
// chapter link out of the opening post.
func (r *Resolver) resolveForum(ctx context.Context, threadURL string) (data.Reference, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, threadURL, nil)
	if err != nil {
		return data.Reference{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return data.Reference{}, fmt.Errorf("failed to fetch forum thread: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return data.Reference{}, fmt.Errorf("forum thread returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return data.Reference{}, fmt.Errorf("failed to parse forum thread: %w", err)
	}

	var found data.Reference
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if m := chapterURLRe.FindStringSubmatch(href); m != nil {
			found = data.Reference{Kind: data.RefChapter, ID: strings.ToLower(m[1])}
			return false
		}
		if m := mangaURLRe.FindStringSubmatch(href); m != nil {
			found = data.Reference{Kind: data.RefManga, ID: strings.ToLower(m[1])}
			return false
		}
		return true
	})
	if found.Kind == "" {
		return data.Reference{}, &data.InvalidReferenceError{Input: threadURL}
	}
	return found, nil
}
