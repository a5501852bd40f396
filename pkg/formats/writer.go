package formats

import (
	"fmt"
	"path/filepath"

	"github.com/kerbaras/mangadex-dl/pkg/data"
	"github.com/kerbaras/mangadex-dl/pkg/utils"
)

// State is the archive target lifecycle. A Failed target may be retried
// by constructing a fresh writer.
type State int

const (
	Created State = iota
	Writing
	Sealed
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Writing:
		return "writing"
	case Sealed:
		return "sealed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Writer streams downloaded pages into one container format. Pages
// arrive strictly in plan order; the writer owns its output exclusively
// for the duration of the run.
type Writer interface {
	// Begin transitions Created -> Writing and prepares the target.
	Begin(manga *data.Manga) error
	// OpenChapter starts a chapter. totalPages sizes the page counter.
	OpenChapter(ch *data.PlannedChapter, totalPages int) error
	// WritePage appends one page image to the open chapter.
	WritePage(page data.Page, body []byte) error
	// CloseChapter seals per-chapter containers and flushes buffers.
	CloseChapter() error
	// Seal finalizes the whole target: Writing -> Sealed.
	Seal() error
	// Discard abandons the target, leaving it in Failed with any
	// partial output removed or flagged incomplete.
	Discard()
	// State reports the current lifecycle state.
	State() State
	// Path is the finalized output location (dir or file).
	Path() string
}

// Resumer is implemented by formats that can skip pages already
// materialized by a previous run.
type Resumer interface {
	HasPage(page data.Page) bool
}

// ChapterSealer is implemented by formats whose chapters are sealed
// independently (folder or per-chapter archive), letting a resumed run
// skip chapters the tracker records as complete. Single-file containers
// must be rebuilt whole instead.
type ChapterSealer interface {
	SealsChapters() bool
}

// CoverWriter is implemented by formats that can carry the manga's
// cover image alongside the pages.
type CoverWriter interface {
	WriteCover(body []byte) error
}

// SealVerifier checks that output the tracker records as complete is
// actually still on disk, so a deleted or corrupted archive gets redone
// instead of being skipped forever on the strength of a stale record.
// images is the tracker's record of what the chapter contained; it may
// be empty for older records.
type SealVerifier interface {
	VerifySealed(manga *data.Manga, ch *data.PlannedChapter, images []data.ImageInfo) bool
}

// tmpSuffix flags an in-progress container so a resumed run redoes it
// instead of trusting a half-written file.
const tmpSuffix = ".tmp"

// Formats lists the supported output format names.
func Formats() []string {
	return []string{"raw", "cbz", "cb7", "epub", "pdf"}
}

// New selects the writer variant for the named format. dir is the
// output root; the writer appends the sanitized manga title itself.
func New(format, dir string, compress bool) (Writer, error) {
	switch format {
	case "raw":
		return newRawWriter(dir, compress), nil
	case "cbz":
		return newZipWriter(dir, compress), nil
	case "cb7":
		return newSevenZipWriter(dir, compress), nil
	case "epub":
		return newEpubWriter(dir, compress), nil
	case "pdf":
		return newPDFWriter(dir, compress), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (supported: raw, cbz, cb7, epub, pdf)", format)
	}
}

// ChapterName builds the deterministic, filesystem-safe chapter name
// used for folders, per-chapter archives and tracker keys.
func ChapterName(ch *data.Chapter) string {
	var name string
	switch {
	case ch.Oneshot():
		name = "Oneshot"
	case ch.Volume != "":
		name = fmt.Sprintf("Vol. %s Ch. %s", ch.Volume, ch.Number)
	default:
		name = fmt.Sprintf("Ch. %s", ch.Number)
	}
	return utils.SanitizeFilename(name)
}

// ChapterTitle is the human-readable heading used inside EPUB and PDF
// output.
func ChapterTitle(ch *data.Chapter) string {
	var name string
	switch {
	case ch.Oneshot():
		name = "Oneshot"
	case ch.Volume != "":
		name = fmt.Sprintf("Vol. %s Ch. %s", ch.Volume, ch.Number)
	default:
		name = fmt.Sprintf("Ch. %s", ch.Number)
	}
	if ch.Title != "" {
		name = fmt.Sprintf("%s - %s", name, ch.Title)
	}
	return name
}

func mangaDir(dir string, manga *data.Manga) string {
	return filepath.Join(dir, utils.SanitizeFilename(manga.Title))
}

func writeErr(target string, err error) error {
	return &data.ArchiveWriteError{Target: target, Err: err}
}
