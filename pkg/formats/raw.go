package formats

import (
	"os"
	"path/filepath"

	"github.com/kerbaras/mangadex-dl/pkg/data"
	"github.com/kerbaras/mangadex-dl/pkg/utils"
)

// rawWriter materializes pages as numbered image files under one folder
// per chapter. The directory tree is its own resume state: files that
// already exist with the expected size are skipped.
type rawWriter struct {
	dir      string
	compress bool
	state    State

	root       string
	chapterDir string
	counter    *utils.PageCounter
}

func newRawWriter(dir string, compress bool) *rawWriter {
	return &rawWriter{dir: dir, compress: compress, state: Created}
}

func (w *rawWriter) Begin(manga *data.Manga) error {
	w.root = mangaDir(w.dir, manga)
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return writeErr(w.root, err)
	}
	w.state = Writing
	return nil
}

func (w *rawWriter) OpenChapter(ch *data.PlannedChapter, totalPages int) error {
	w.chapterDir = filepath.Join(w.root, ChapterName(&ch.Chapter))
	w.counter = utils.NewPageCounter(totalPages)
	if err := os.MkdirAll(w.chapterDir, 0755); err != nil {
		return writeErr(w.chapterDir, err)
	}
	return nil
}

// HasPage reports whether the page is already on disk with a plausible
// size, so the downloader can skip the fetch entirely.
func (w *rawWriter) HasPage(page data.Page) bool {
	matches, err := filepath.Glob(filepath.Join(w.chapterDir, w.counter.Format(page.Index)+".*"))
	if err != nil || len(matches) == 0 {
		return false
	}
	info, err := os.Stat(matches[0])
	if err != nil || info.Size() == 0 {
		return false
	}
	if page.Size > 0 && info.Size() != page.Size {
		return false
	}
	return true
}

func (w *rawWriter) WritePage(page data.Page, body []byte) error {
	out, ext, err := normalize(body, w.compress, "jpeg", "png", "gif", "webp")
	if err != nil {
		return writeErr(w.chapterDir, err)
	}
	path := filepath.Join(w.chapterDir, w.counter.Format(page.Index)+ext)
	if err := os.WriteFile(path, out, 0644); err != nil {
		return writeErr(path, err)
	}
	return nil
}

// WriteCover drops the cover image at the manga root, next to the
// chapter folders.
func (w *rawWriter) WriteCover(body []byte) error {
	out, ext, err := normalize(body, w.compress, "jpeg", "png", "gif", "webp")
	if err != nil {
		return writeErr(w.root, err)
	}
	path := filepath.Join(w.root, "cover"+ext)
	if err := os.WriteFile(path, out, 0644); err != nil {
		return writeErr(path, err)
	}
	return nil
}

// VerifySealed re-checks a chapter the tracker recorded as complete:
// every recorded image must still exist and hash to what was fetched.
// Compressed output was re-encoded on write, so there the check relaxes
// to existence and a non-zero size.
func (w *rawWriter) VerifySealed(manga *data.Manga, ch *data.PlannedChapter, images []data.ImageInfo) bool {
	dir := filepath.Join(mangaDir(w.dir, manga), ChapterName(&ch.Chapter))
	if len(images) == 0 {
		entries, err := os.ReadDir(dir)
		return err == nil && len(entries) > 0
	}
	for _, img := range images {
		matches, err := filepath.Glob(filepath.Join(dir, img.Name+".*"))
		if err != nil || len(matches) == 0 {
			return false
		}
		if w.compress {
			info, err := os.Stat(matches[0])
			if err != nil || info.Size() == 0 {
				return false
			}
			continue
		}
		if !utils.VerifyFileSHA256(matches[0], img.Hash) {
			return false
		}
	}
	return true
}

func (w *rawWriter) CloseChapter() error { return nil }

func (w *rawWriter) Seal() error {
	w.state = Sealed
	return nil
}

// Discard keeps whatever pages landed on disk; raw output is always
// resumable, so partial chapters are re-verified on the next run.
func (w *rawWriter) Discard() {
	w.state = Failed
}

func (w *rawWriter) SealsChapters() bool { return true }

func (w *rawWriter) State() State { return w.state }
func (w *rawWriter) Path() string { return w.root }
