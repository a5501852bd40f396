package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/kerbaras/mangadex-dl/pkg/data"
	"github.com/kerbaras/mangadex-dl/pkg/formats"
	"github.com/kerbaras/mangadex-dl/pkg/planner"
	"github.com/kerbaras/mangadex-dl/pkg/utils"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Source resolves a chapter into its page URLs.
type Source interface {
	GetPages(ctx context.Context, chapter *data.Chapter, dataSaver bool) ([]data.Page, error)
}

// Tracker records sealed archives for resume. Satisfied by
// data.Tracker; nil disables tracking.
type Tracker interface {
	Completed(name string) (bool, error)
	Images(fileName string) ([]data.ImageInfo, error)
	SaveFile(info data.FileInfo) error
	AddImages(fileName string, images []data.ImageInfo) error
	ToggleComplete(name string, completed bool) error
}

// Progress is one download progress update.
type Progress struct {
	MangaID     string
	ChapterID   string
	ChapterName string
	CurrentPage int
	TotalPages  int
	Status      string // "downloading", "skipped", "complete", "error"
	Err         error
}

// Config tunes one download run.
type Config struct {
	Workers   int  // concurrent page fetches within a chapter
	Strict    bool // abort a chapter on any page failure
	DataSaver bool // fetch compressed image variants
	Replace   bool // redo archives the tracker marks complete
	Retry     RetryConfig
	RateLimit rate.Limit // page fetches per second, 0 for default
}

func DefaultConfig() Config {
	return Config{
		Workers:   4,
		Retry:     DefaultRetryConfig(),
		RateLimit: rate.Limit(10),
	}
}

// ChapterResult is the per-chapter outcome reported in the run summary.
type ChapterResult struct {
	Chapter     data.PlannedChapter
	Name        string
	Written     int
	FailedPages []int
	Skipped     bool
	Err         error
	Images      []data.ImageInfo
}

// Summary aggregates one manga's run for end-of-run reporting.
type Summary struct {
	Manga   *data.Manga
	Results []ChapterResult
	Archive string
}

func (s *Summary) Failed() []ChapterResult {
	var out []ChapterResult
	for _, r := range s.Results {
		if r.Err != nil || len(r.FailedPages) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Downloader orchestrates the page fetch pipeline: chapters strictly
// sequential, pages within a chapter fetched by a bounded worker pool
// and released to the archive writer in plan order.
type Downloader struct {
	source   Source
	client   *http.Client
	limiter  *rate.Limiter
	cfg      Config
	progress chan Progress

	closeOnce sync.Once
}

func New(source Source, client *http.Client, cfg Config) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultConfig().RateLimit
	}
	return &Downloader{
		source:   source,
		client:   client,
		limiter:  rate.NewLimiter(cfg.RateLimit, 1),
		cfg:      cfg,
		progress: make(chan Progress, 100),
	}
}

// GetProgressChannel returns the channel for progress updates.
func (d *Downloader) GetProgressChannel() <-chan Progress {
	return d.progress
}

// Close releases the progress channel. Call after the last run.
func (d *Downloader) Close() {
	d.closeOnce.Do(func() { close(d.progress) })
}

// DownloadManga runs the plan against one archive writer. Chapter-level
// fetch failures are recorded and the run continues; archive write
// failures and strict-mode page failures abort the target, which is
// left in the Failed state.
func (d *Downloader) DownloadManga(ctx context.Context, manga *data.Manga, plan *planner.Plan, writer formats.Writer, tracker Tracker) (*Summary, error) {
	summary := &Summary{Manga: manga}

	if plan.Empty() {
		// Informational no-op, not a failure.
		return summary, nil
	}

	sealed := d.sealedChapters(manga, plan, writer, tracker)

	// A fully-sealed target needs no network fetch and must not be
	// touched: re-running against it is a no-op.
	if len(sealed) == plan.Len() {
		for _, ch := range plan.Chapters() {
			name := formats.ChapterName(&ch.Chapter)
			summary.Results = append(summary.Results, ChapterResult{Chapter: ch, Name: name, Skipped: true})
			d.send(Progress{MangaID: manga.ID, ChapterID: ch.ID, ChapterName: name, Status: "skipped"})
		}
		return summary, nil
	}

	// Per-chapter skipping only makes sense when chapters seal
	// independently; a single-file container is rebuilt whole.
	chapterSkip := false
	if cs, ok := writer.(formats.ChapterSealer); ok {
		chapterSkip = cs.SealsChapters()
	}

	if err := writer.Begin(manga); err != nil {
		return summary, err
	}
	summary.Archive = writer.Path()

	if err := d.downloadCover(ctx, manga, writer); err != nil {
		writer.Discard()
		return summary, err
	}

	for i := range plan.Chapters() {
		ch := plan.Chapters()[i]
		name := formats.ChapterName(&ch.Chapter)

		if err := ctx.Err(); err != nil {
			writer.Discard()
			return summary, err
		}

		if chapterSkip && sealed[name] {
			summary.Results = append(summary.Results, ChapterResult{Chapter: ch, Name: name, Skipped: true})
			d.send(Progress{MangaID: manga.ID, ChapterID: ch.ID, ChapterName: name, Status: "skipped"})
			continue
		}

		result, err := d.downloadChapter(ctx, manga, &ch, writer)
		result.Name = name
		if err != nil {
			var fetchErr *chapterFetchError
			if errors.As(err, &fetchErr) && !d.cfg.Strict {
				// Metadata fetch failed: skip this chapter, keep going.
				result.Err = fetchErr.err
				summary.Results = append(summary.Results, result)
				d.send(Progress{MangaID: manga.ID, ChapterID: ch.ID, ChapterName: name, Status: "error", Err: fetchErr.err})
				continue
			}
			writer.Discard()
			summary.Results = append(summary.Results, result)
			return summary, err
		}
		summary.Results = append(summary.Results, result)

		if tracker != nil {
			d.track(tracker, name, &ch, &result)
		}

		d.send(Progress{
			MangaID: manga.ID, ChapterID: ch.ID, ChapterName: name,
			CurrentPage: result.Written, TotalPages: result.Written,
			Status: "complete",
		})
	}

	if err := writer.Seal(); err != nil {
		return summary, err
	}
	return summary, nil
}

// sealedChapters returns the set of plan chapters the tracker records
// as sealed by a previous run. The tracker's completed flag alone is
// not trusted: when the writer can verify, the sealed output must still
// be on disk (with matching image hashes for raw output), so a deleted
// or corrupted archive is redone rather than skipped on a stale record.
func (d *Downloader) sealedChapters(manga *data.Manga, plan *planner.Plan, writer formats.Writer, tracker Tracker) map[string]bool {
	sealed := make(map[string]bool)
	if tracker == nil || d.cfg.Replace {
		return sealed
	}
	verifier, _ := writer.(formats.SealVerifier)
	for i := range plan.Chapters() {
		ch := plan.Chapters()[i]
		name := formats.ChapterName(&ch.Chapter)
		done, err := tracker.Completed(name)
		if err != nil || !done {
			continue
		}
		if verifier != nil {
			images, err := tracker.Images(name)
			if err != nil || !verifier.VerifySealed(manga, &ch, images) {
				continue
			}
		}
		sealed[name] = true
	}
	return sealed
}

// downloadCover fetches the cover image for writers that can carry one.
// A fetch failure is not fatal: the pages still download without it.
func (d *Downloader) downloadCover(ctx context.Context, manga *data.Manga, writer formats.Writer) error {
	cw, ok := writer.(formats.CoverWriter)
	if !ok || manga.CoverURL == "" {
		return nil
	}
	body, err := d.fetchWithRetry(ctx, data.Page{}, manga.CoverURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	return cw.WriteCover(body)
}

// chapterFetchError wraps a failure to resolve a chapter's pages, so
// batch mode can skip the chapter instead of aborting the target.
type chapterFetchError struct {
	err error
}

func (e *chapterFetchError) Error() string { return e.err.Error() }
func (e *chapterFetchError) Unwrap() error { return e.err }

type pageResult struct {
	body    []byte
	skipped bool
	err     error
}

func (d *Downloader) downloadChapter(ctx context.Context, manga *data.Manga, ch *data.PlannedChapter, writer formats.Writer) (ChapterResult, error) {
	result := ChapterResult{Chapter: *ch}

	pages, err := d.source.GetPages(ctx, &ch.Chapter, d.cfg.DataSaver)
	if err != nil {
		return result, &chapterFetchError{err: fmt.Errorf("failed to get pages for chapter %s: %w", ch.ID, err)}
	}

	// Clip to the requested page range.
	var selected []data.Page
	for _, p := range pages {
		if ch.InPageRange(p.Index) {
			selected = append(selected, p)
		}
	}

	if err := writer.OpenChapter(ch, len(selected)); err != nil {
		return result, err
	}

	d.send(Progress{
		MangaID: manga.ID, ChapterID: ch.ID, ChapterName: formats.ChapterName(&ch.Chapter),
		TotalPages: len(selected), Status: "downloading",
	})

	resumer, _ := writer.(formats.Resumer)
	results := make([]pageResult, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i := range selected {
		page := selected[i]
		if resumer != nil && resumer.HasPage(page) {
			results[i] = pageResult{skipped: true}
			continue
		}
		i := i
		g.Go(func() error {
			body, err := d.fetchPage(gctx, page)
			if err != nil {
				if d.cfg.Strict {
					return &data.PageFetchError{ChapterID: page.ChapterID, Page: page.Index, Err: err}
				}
				results[i] = pageResult{err: err}
				return nil
			}
			results[i] = pageResult{body: body}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Strict mode: first page failure aborts the chapter.
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	// Completed fetches are buffered above; release them to the writer
	// strictly in page order, whatever order the workers finished in.
	for i, page := range selected {
		switch {
		case results[i].skipped:
			result.Written++
		case results[i].err != nil:
			result.FailedPages = append(result.FailedPages, page.Index)
			d.send(Progress{
				MangaID: manga.ID, ChapterID: ch.ID,
				CurrentPage: page.Index, TotalPages: len(selected),
				Status: "error",
				Err:    &data.PageFetchError{ChapterID: page.ChapterID, Page: page.Index, Err: results[i].err},
			})
		default:
			if err := writer.WritePage(page, results[i].body); err != nil {
				return result, err
			}
			result.Written++
			result.Images = append(result.Images, data.ImageInfo{
				Name:      fmt.Sprintf("%03d", page.Index),
				Hash:      utils.SHA256(results[i].body),
				ChapterID: page.ChapterID,
			})
			d.send(Progress{
				MangaID: manga.ID, ChapterID: ch.ID, ChapterName: formats.ChapterName(&ch.Chapter),
				CurrentPage: page.Index, TotalPages: len(selected),
				Status: "downloading",
			})
		}
	}

	if err := writer.CloseChapter(); err != nil {
		return result, err
	}
	return result, nil
}

// fetchPage retrieves one page with retry, integrity check, and one
// shot at the fallback mirror after the primary is exhausted.
func (d *Downloader) fetchPage(ctx context.Context, page data.Page) ([]byte, error) {
	body, err := d.fetchWithRetry(ctx, page, page.URL)
	if err == nil {
		return body, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if page.FallbackURL == "" || page.FallbackURL == page.URL {
		return nil, err
	}
	body, fbErr := d.fetchVerified(ctx, page, page.FallbackURL)
	if fbErr != nil {
		return nil, fmt.Errorf("%w (fallback: %v)", err, fbErr)
	}
	return body, nil
}

func (d *Downloader) fetchWithRetry(ctx context.Context, page data.Page, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < d.cfg.Retry.Attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, d.cfg.Retry.Delay(attempt-1)); err != nil {
				return nil, err
			}
		}
		body, err := d.fetchVerified(ctx, page, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
	}
	return nil, lastErr
}

// fetchVerified fetches and, when the expected byte size is known,
// verifies it; a mismatch earns exactly one immediate re-fetch.
func (d *Downloader) fetchVerified(ctx context.Context, page data.Page, url string) ([]byte, error) {
	body, err := d.fetchOnce(ctx, url)
	if err != nil {
		return nil, err
	}
	if page.Size > 0 && int64(len(body)) != page.Size {
		body, err = d.fetchOnce(ctx, url)
		if err != nil {
			return nil, err
		}
		if int64(len(body)) != page.Size {
			return nil, fmt.Errorf("size mismatch: got %d bytes, expected %d", len(body), page.Size)
		}
	}
	return body, nil
}

func (d *Downloader) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return fetchURL(ctx, d.client, url)
}

func (d *Downloader) track(tracker Tracker, name string, ch *data.PlannedChapter, result *ChapterResult) {
	complete := result.Err == nil && len(result.FailedPages) == 0
	_ = tracker.SaveFile(data.FileInfo{
		Name:      name,
		ChapterID: ch.ID,
		Path:      name,
		Completed: complete,
	})
	if len(result.Images) > 0 {
		_ = tracker.AddImages(name, result.Images)
	}
	if complete {
		_ = tracker.ToggleComplete(name, true)
	}
}

// send emits a progress update without blocking; a full channel drops
// the update.
func (d *Downloader) send(p Progress) {
	select {
	case d.progress <- p:
	default:
	}
}
