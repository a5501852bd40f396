package formats

import (
	"archive/zip"
	"os"
	"path/filepath"

	"github.com/kerbaras/mangadex-dl/pkg/data"
	"github.com/kerbaras/mangadex-dl/pkg/utils"
)

// zipWriter seals each chapter into its own .cbz. The archive is
// written under a temp suffix and renamed on close, so an interrupted
// run never leaves a file that looks complete.
type zipWriter struct {
	dir      string
	compress bool
	state    State

	root    string
	counter *utils.PageCounter

	finalPath string
	tmpPath   string
	file      *os.File
	zw        *zip.Writer
}

func newZipWriter(dir string, compress bool) *zipWriter {
	return &zipWriter{dir: dir, compress: compress, state: Created}
}

func (w *zipWriter) Begin(manga *data.Manga) error {
	w.root = mangaDir(w.dir, manga)
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return writeErr(w.root, err)
	}
	w.state = Writing
	return nil
}

func (w *zipWriter) OpenChapter(ch *data.PlannedChapter, totalPages int) error {
	w.finalPath = filepath.Join(w.root, ChapterName(&ch.Chapter)+".cbz")
	w.tmpPath = w.finalPath + tmpSuffix
	w.counter = utils.NewPageCounter(totalPages)

	f, err := os.Create(w.tmpPath)
	if err != nil {
		return writeErr(w.tmpPath, err)
	}
	w.file = f
	w.zw = zip.NewWriter(f)
	return nil
}

func (w *zipWriter) WritePage(page data.Page, body []byte) error {
	out, ext, err := normalize(body, w.compress, "jpeg", "png", "gif", "webp")
	if err != nil {
		return writeErr(w.tmpPath, err)
	}
	entry, err := w.zw.Create(w.counter.Format(page.Index) + ext)
	if err != nil {
		return writeErr(w.tmpPath, err)
	}
	if _, err := entry.Write(out); err != nil {
		return writeErr(w.tmpPath, err)
	}
	return nil
}

func (w *zipWriter) CloseChapter() error {
	if w.zw == nil {
		return nil
	}
	if err := w.zw.Close(); err != nil {
		return writeErr(w.tmpPath, err)
	}
	if err := w.file.Close(); err != nil {
		return writeErr(w.tmpPath, err)
	}
	w.zw, w.file = nil, nil
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		return writeErr(w.finalPath, err)
	}
	return nil
}

func (w *zipWriter) Seal() error {
	w.state = Sealed
	return nil
}

func (w *zipWriter) Discard() {
	if w.zw != nil {
		w.zw.Close()
		w.file.Close()
		w.zw, w.file = nil, nil
	}
	if w.tmpPath != "" {
		os.Remove(w.tmpPath)
	}
	w.state = Failed
}

func (w *zipWriter) SealsChapters() bool { return true }

// VerifySealed accepts a tracker record only when the sealed archive is
// still on disk. The temp-suffix protocol guarantees a present .cbz was
// fully written, so existence and a non-zero size suffice.
func (w *zipWriter) VerifySealed(manga *data.Manga, ch *data.PlannedChapter, images []data.ImageInfo) bool {
	path := filepath.Join(mangaDir(w.dir, manga), ChapterName(&ch.Chapter)+".cbz")
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func (w *zipWriter) State() State { return w.state }
func (w *zipWriter) Path() string { return w.root }
