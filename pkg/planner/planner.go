package planner

import (
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/kerbaras/mangadex-dl/pkg/data"
)

// Options are the user constraints a plan is built under.
// Chapter bounds are inclusive; a negative bound means unset.
type Options struct {
	StartChapter float64
	EndChapter   float64
	StartPage    int
	EndPage      int

	Languages []string
	Groups    []string // allowlist of group IDs or names; empty allows all

	// PreferGroup breaks ties between groups publishing the same
	// chapter number. AllGroups disables dedup entirely.
	PreferGroup string
	AllGroups   bool

	NoOneshot bool
}

// DefaultOptions leaves every constraint unset.
func DefaultOptions() Options {
	return Options{StartChapter: -1, EndChapter: -1}
}

// Plan is the finalized, ordered list of chapters selected for
// download. Immutable once built.
type Plan struct {
	chapters []data.PlannedChapter
}

func (p *Plan) Chapters() []data.PlannedChapter { return p.chapters }
func (p *Plan) Len() int                        { return len(p.chapters) }
func (p *Plan) Empty() bool                     { return len(p.chapters) == 0 }

// Filter applies the language and group filters. It runs after the full
// feed has been fetched so dedup always sees every candidate. External
// chapters have no downloadable pages and are dropped here too.
func Filter(chapters []data.Chapter, opts Options) []data.Chapter {
	var out []data.Chapter
	for _, ch := range chapters {
		if ch.External {
			continue
		}
		if len(opts.Languages) > 0 && !slices.Contains(opts.Languages, ch.Language) {
			continue
		}
		if len(opts.Groups) > 0 && !matchesGroup(&ch, opts.Groups) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

func matchesGroup(ch *data.Chapter, allow []string) bool {
	for _, g := range allow {
		if slices.Contains(ch.GroupIDs, g) || slices.Contains(ch.GroupNames, g) {
			return true
		}
	}
	return false
}

// Build turns the filtered chapter list into a download plan:
// dedup by chapter number, drop oneshots when asked, sort, clip.
// An empty result is a valid no-op plan, not an error.
func Build(manga *data.Manga, chapters []data.Chapter, opts Options) *Plan {
	selected := dedup(chapters, opts)

	if opts.NoOneshot && manga != nil && manga.Oneshot {
		selected = slices.DeleteFunc(selected, func(ch data.Chapter) bool {
			return ch.Oneshot()
		})
	}

	sortChapters(selected)

	var planned []data.PlannedChapter
	for _, ch := range selected {
		if !inChapterRange(&ch, opts) {
			continue
		}
		planned = append(planned, data.PlannedChapter{
			Chapter:   ch,
			StartPage: opts.StartPage,
			EndPage:   opts.EndPage,
		})
	}
	return &Plan{chapters: planned}
}

// dedup groups chapters by number and keeps one per group unless
// multi-group mode is on. Preference order: explicit group match, then
// upload recency, then first-seen.
func dedup(chapters []data.Chapter, opts Options) []data.Chapter {
	if opts.AllGroups {
		return slices.Clone(chapters)
	}

	byNumber := make(map[string][]data.Chapter)
	var order []string
	for _, ch := range chapters {
		key := ch.Number
		if _, seen := byNumber[key]; !seen {
			order = append(order, key)
		}
		byNumber[key] = append(byNumber[key], ch)
	}

	var out []data.Chapter
	for _, key := range order {
		out = append(out, pick(byNumber[key], opts.PreferGroup))
	}
	return out
}

func pick(candidates []data.Chapter, preferGroup string) data.Chapter {
	if preferGroup != "" {
		for _, ch := range candidates {
			if slices.Contains(ch.GroupIDs, preferGroup) || slices.Contains(ch.GroupNames, preferGroup) {
				return ch
			}
		}
	}
	best := candidates[0]
	for _, ch := range candidates[1:] {
		if ch.PublishedAt.After(best.PublishedAt) {
			best = ch
		}
	}
	return best
}

// sortChapters orders by (volume, chapter number, upload time), with
// missing volume or number sorting last.
func sortChapters(chapters []data.Chapter) {
	sort.SliceStable(chapters, func(i, j int) bool {
		vi, vj := numberOrInf(chapters[i].Volume), numberOrInf(chapters[j].Volume)
		if vi != vj {
			return vi < vj
		}
		ni, nj := numberOrInf(chapters[i].Number), numberOrInf(chapters[j].Number)
		if ni != nj {
			return ni < nj
		}
		return chapters[i].PublishedAt.Before(chapters[j].PublishedAt)
	})
}

func numberOrInf(s string) float64 {
	if s == "" {
		return math.Inf(1)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.Inf(1)
	}
	return n
}

func inChapterRange(ch *data.Chapter, opts Options) bool {
	if opts.StartChapter < 0 && opts.EndChapter < 0 {
		return true
	}
	n := numberOrInf(ch.Number)
	if math.IsInf(n, 1) {
		// Un-numbered chapters cannot satisfy a numeric range.
		return false
	}
	if opts.StartChapter >= 0 && n < opts.StartChapter {
		return false
	}
	if opts.EndChapter >= 0 && n > opts.EndChapter {
		return false
	}
	return true
}
