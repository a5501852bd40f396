package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kerbaras/mangadex-dl/pkg/data"
	"github.com/kerbaras/mangadex-dl/pkg/downloader"
	"github.com/kerbaras/mangadex-dl/pkg/formats"
	"github.com/kerbaras/mangadex-dl/pkg/planner"
	"github.com/kerbaras/mangadex-dl/pkg/resolver"
	"github.com/kerbaras/mangadex-dl/pkg/sources"
	"github.com/kerbaras/mangadex-dl/pkg/tui"
	"github.com/kerbaras/mangadex-dl/pkg/utils"
)

// job is one manga to download; chapterID restricts it to a single
// chapter when the user passed a chapter URL.
type job struct {
	mangaID   string
	chapterID string
}

func runPipeline(ctx context.Context, input string, opts runOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := sources.NewHTTPClient(sources.ClientOptions{
		ProxyURL:     opts.Proxy,
		DNSOverHTTPS: opts.DoH,
	})
	if err != nil {
		return err
	}
	source := sources.NewMangaDexWithClient(client)

	if opts.Username != "" {
		if err := source.Login(ctx, opts.Username, opts.Password); err != nil {
			return err
		}
	}

	ref, err := resolver.New(source, client).Resolve(ctx, input)
	if err != nil {
		return err
	}

	jobs, err := buildJobs(ctx, source, ref)
	if err != nil {
		return err
	}

	var summaries []*downloader.Summary
	var failures int
	for _, j := range jobs {
		summary, err := downloadManga(ctx, source, client, j, opts)
		if summary != nil {
			summaries = append(summaries, summary)
		}
		if err != nil {
			if ctx.Err() != nil {
				printSummaries(summaries)
				return err
			}
			var authErr *data.AuthError
			if errors.As(err, &authErr) {
				return err
			}
			// Batch mode: report and move on to the next manga.
			fmt.Fprintf(os.Stderr, "manga %s: %v\n", j.mangaID, err)
			failures++
			continue
		}
		if summary != nil && len(summary.Failed()) > 0 {
			failures++
		}
	}

	printSummaries(summaries)
	if failures > 0 {
		return fmt.Errorf("finished with errors in %d manga", failures)
	}
	return nil
}

func buildJobs(ctx context.Context, source *sources.MangaDex, ref data.Reference) ([]job, error) {
	switch ref.Kind {
	case data.RefManga:
		return []job{{mangaID: ref.ID}}, nil
	case data.RefChapter:
		chapter, err := source.GetChapter(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if chapter.MangaID == "" {
			return nil, fmt.Errorf("chapter %s has no parent manga", ref.ID)
		}
		return []job{{mangaID: chapter.MangaID, chapterID: ref.ID}}, nil
	case data.RefList:
		ids, err := source.GetListManga(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		jobs := make([]job, len(ids))
		for i, id := range ids {
			jobs[i] = job{mangaID: id}
		}
		return jobs, nil
	case data.RefLibrary:
		mangas, err := source.GetFollowedManga(ctx)
		if err != nil {
			return nil, err
		}
		jobs := make([]job, len(mangas))
		for i := range mangas {
			jobs[i] = job{mangaID: mangas[i].ID}
		}
		return jobs, nil
	default:
		return nil, fmt.Errorf("unsupported reference kind %q", ref.Kind)
	}
}

func downloadManga(ctx context.Context, source *sources.MangaDex, client *http.Client, j job, opts runOptions) (*downloader.Summary, error) {
	manga, err := source.GetManga(ctx, j.mangaID)
	if err != nil {
		return nil, err
	}
	fmt.Printf("📖 %s\n", manga.Title)

	chapters, err := source.GetChapters(ctx, manga.ID)
	if err != nil {
		return nil, err
	}

	planOpts := opts.Plan
	if j.chapterID != "" {
		// Explicit chapter URL: bypass filters and dedup.
		var only []data.Chapter
		for _, ch := range chapters {
			if ch.ID == j.chapterID {
				only = append(only, ch)
			}
		}
		chapters = only
		planOpts = planner.DefaultOptions()
		planOpts.StartPage, planOpts.EndPage = opts.Plan.StartPage, opts.Plan.EndPage
		planOpts.AllGroups = true
	} else {
		chapters = planner.Filter(chapters, planOpts)
	}

	plan := planner.Build(manga, chapters, planOpts)
	if plan.Empty() {
		fmt.Printf("  no chapters match the requested filters, nothing to download\n")
		return &downloader.Summary{Manga: manga}, nil
	}

	writer, err := formats.New(opts.Format, opts.Output, opts.Compress)
	if err != nil {
		return nil, err
	}

	trackerDir := filepath.Join(opts.Output, utils.SanitizeFilename(manga.Title))
	if err := os.MkdirAll(trackerDir, 0755); err != nil {
		return nil, err
	}
	tracker, err := data.OpenTracker(trackerDir)
	if err != nil {
		return nil, err
	}
	defer tracker.Close()
	if opts.Replace {
		if err := tracker.Recreate(); err != nil {
			return nil, err
		}
	}

	dl := downloader.New(source, client, opts.downloaderConfig())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		summary *downloader.Summary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		summary, err := dl.DownloadManga(runCtx, manga, plan, writer, tracker)
		dl.Close()
		done <- outcome{summary, err}
	}()

	if opts.Quiet {
		for p := range dl.GetProgressChannel() {
			printProgressLine(p)
		}
	} else {
		if err := tui.Run(dl.GetProgressChannel(), cancel); err != nil {
			// Progress UI failure must not kill the download.
			for range dl.GetProgressChannel() {
			}
		}
	}

	res := <-done
	return res.summary, res.err
}

func printProgressLine(p downloader.Progress) {
	switch p.Status {
	case "skipped":
		fmt.Printf("  %s: already downloaded, skipping\n", p.ChapterName)
	case "complete":
		fmt.Printf("  %s: done (%d pages)\n", p.ChapterName, p.TotalPages)
	case "error":
		if p.Err != nil {
			fmt.Fprintf(os.Stderr, "  error: %v\n", p.Err)
		}
	}
}
