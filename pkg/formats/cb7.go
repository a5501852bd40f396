package formats

import (
	"os"
	"path/filepath"

	"github.com/kerbaras/mangadex-dl/pkg/data"
	"github.com/kerbaras/mangadex-dl/pkg/sevenzip"
	"github.com/kerbaras/mangadex-dl/pkg/utils"
)

// sevenZipWriter seals each chapter into a .cb7 (7z container, store
// codec). Same temp-suffix protocol as the cbz writer.
type sevenZipWriter struct {
	dir      string
	compress bool
	state    State

	root    string
	counter *utils.PageCounter

	finalPath string
	tmpPath   string
	file      *os.File
	zw        *sevenzip.Writer
}

func newSevenZipWriter(dir string, compress bool) *sevenZipWriter {
	return &sevenZipWriter{dir: dir, compress: compress, state: Created}
}

func (w *sevenZipWriter) Begin(manga *data.Manga) error {
	w.root = mangaDir(w.dir, manga)
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return writeErr(w.root, err)
	}
	w.state = Writing
	return nil
}

func (w *sevenZipWriter) OpenChapter(ch *data.PlannedChapter, totalPages int) error {
	w.finalPath = filepath.Join(w.root, ChapterName(&ch.Chapter)+".cb7")
	w.tmpPath = w.finalPath + tmpSuffix
	w.counter = utils.NewPageCounter(totalPages)

	f, err := os.Create(w.tmpPath)
	if err != nil {
		return writeErr(w.tmpPath, err)
	}
	w.file = f
	w.zw = sevenzip.NewWriter(f)
	return nil
}

func (w *sevenZipWriter) WritePage(page data.Page, body []byte) error {
	out, ext, err := normalize(body, w.compress, "jpeg", "png", "gif", "webp")
	if err != nil {
		return writeErr(w.tmpPath, err)
	}
	if err := w.zw.Add(w.counter.Format(page.Index)+ext, out); err != nil {
		return writeErr(w.tmpPath, err)
	}
	return nil
}

func (w *sevenZipWriter) CloseChapter() error {
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

func (w *sevenZipWriter) Seal() error {
	w.state = Sealed
	return nil
}

func (w *sevenZipWriter) Discard() {
	if w.file != nil {
		w.file.Close()
		w.zw, w.file = nil, nil
	}
	if w.tmpPath != "" {
		os.Remove(w.tmpPath)
	}
	w.state = Failed
}

func (w *sevenZipWriter) SealsChapters() bool { return true }

func (w *sevenZipWriter) VerifySealed(manga *data.Manga, ch *data.PlannedChapter, images []data.ImageInfo) bool {
	path := filepath.Join(mangaDir(w.dir, manga), ChapterName(&ch.Chapter)+".cb7")
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func (w *sevenZipWriter) State() State { return w.state }
func (w *sevenZipWriter) Path() string { return w.root }
