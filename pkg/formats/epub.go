package formats

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-epub"
	"github.com/kerbaras/mangadex-dl/pkg/data"
	"github.com/kerbaras/mangadex-dl/pkg/utils"
)

// epubWriter collects the whole plan into a single EPUB, one section
// per chapter. go-epub takes images by path, so pages are staged in a
// scratch directory until Seal.
type epubWriter struct {
	dir      string
	compress bool
	state    State

	root      string
	finalPath string
	tmpPath   string

	book     *epub.Epub
	stageDir string

	chapter      *data.PlannedChapter
	chapterIndex int
	counter      *utils.PageCounter
	html         strings.Builder
}

func newEpubWriter(dir string, compress bool) *epubWriter {
	return &epubWriter{dir: dir, compress: compress, state: Created}
}

func (w *epubWriter) Begin(manga *data.Manga) error {
	w.root = mangaDir(w.dir, manga)
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return writeErr(w.root, err)
	}

	book, err := epub.NewEpub(manga.Title)
	if err != nil {
		return writeErr(w.root, err)
	}
	book.SetAuthor("MangaDex")
	if manga.Description != "" {
		book.SetDescription(manga.Description)
	}
	book.SetLang("en")
	w.book = book

	stage, err := os.MkdirTemp("", "mangadex-dl-epub-*")
	if err != nil {
		return writeErr(w.root, err)
	}
	w.stageDir = stage

	w.finalPath = filepath.Join(w.root, utils.SanitizeFilename(manga.Title)+".epub")
	w.tmpPath = w.finalPath + tmpSuffix
	w.state = Writing
	return nil
}

// WriteCover stages the cover image and registers it as the book cover.
func (w *epubWriter) WriteCover(body []byte) error {
	out, ext, err := normalize(body, w.compress, "jpeg", "png", "gif")
	if err != nil {
		return writeErr(w.finalPath, err)
	}
	staged := filepath.Join(w.stageDir, "cover"+ext)
	if err := os.WriteFile(staged, out, 0644); err != nil {
		return writeErr(staged, err)
	}
	internal, err := w.book.AddImage(staged, "cover"+ext)
	if err != nil {
		return writeErr(w.finalPath, err)
	}
	if err := w.book.SetCover(internal, ""); err != nil {
		return writeErr(w.finalPath, err)
	}
	return nil
}

// VerifySealed guards the full-resume path: the single-file book must
// still exist for the tracker's completed records to mean anything.
func (w *epubWriter) VerifySealed(manga *data.Manga, ch *data.PlannedChapter, images []data.ImageInfo) bool {
	path := filepath.Join(mangaDir(w.dir, manga), utils.SanitizeFilename(manga.Title)+".epub")
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func (w *epubWriter) OpenChapter(ch *data.PlannedChapter, totalPages int) error {
	w.chapter = ch
	w.chapterIndex++
	w.counter = utils.NewPageCounter(totalPages)
	w.html.Reset()
	w.html.WriteString(fmt.Sprintf("<h1>%s</h1>\n", ChapterTitle(&ch.Chapter)))
	return nil
}

func (w *epubWriter) WritePage(page data.Page, body []byte) error {
	// EPUB readers do not reliably render webp, so those re-encode.
	out, ext, err := normalize(body, w.compress, "jpeg", "png", "gif")
	if err != nil {
		return writeErr(w.finalPath, err)
	}

	name := fmt.Sprintf("ch%03d_%s%s", w.chapterIndex, w.counter.Format(page.Index), ext)
	staged := filepath.Join(w.stageDir, name)
	if err := os.WriteFile(staged, out, 0644); err != nil {
		return writeErr(staged, err)
	}

	internal, err := w.book.AddImage(staged, name)
	if err != nil {
		return writeErr(w.finalPath, err)
	}
	w.html.WriteString(fmt.Sprintf(
		`<div class="page"><img src="%s" alt="Page %d" style="width:100%%;height:auto;"/></div>%s`,
		internal, page.Index, "\n",
	))
	return nil
}

func (w *epubWriter) CloseChapter() error {
	if w.chapter == nil {
		return nil
	}
	_, err := w.book.AddSection(w.html.String(), ChapterTitle(&w.chapter.Chapter), "", "")
	w.chapter = nil
	if err != nil {
		return writeErr(w.finalPath, err)
	}
	return nil
}

func (w *epubWriter) Seal() error {
	defer w.cleanupStage()
	if err := w.book.Write(w.tmpPath); err != nil {
		w.state = Failed
		return writeErr(w.tmpPath, err)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		w.state = Failed
		return writeErr(w.finalPath, err)
	}
	w.state = Sealed
	return nil
}

func (w *epubWriter) Discard() {
	w.cleanupStage()
	os.Remove(w.tmpPath)
	w.state = Failed
}

func (w *epubWriter) cleanupStage() {
	if w.stageDir != "" {
		os.RemoveAll(w.stageDir)
		w.stageDir = ""
	}
}

func (w *epubWriter) State() State { return w.state }
func (w *epubWriter) Path() string { return w.finalPath }
