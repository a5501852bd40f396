package formats

import (
	"os"
	"path/filepath"

	"github.com/kerbaras/mangadex-dl/pkg/data"
	"github.com/kerbaras/mangadex-dl/pkg/utils"
	"github.com/signintech/gopdf"
)

// pdfWriter collects the whole plan into a single PDF, one PDF page per
// image, each page sized to the image itself.
type pdfWriter struct {
	dir      string
	compress bool
	state    State

	root      string
	finalPath string
	tmpPath   string

	pdf   *gopdf.GoPdf
	empty bool
}

func newPDFWriter(dir string, compress bool) *pdfWriter {
	return &pdfWriter{dir: dir, compress: compress, state: Created}
}

func (w *pdfWriter) Begin(manga *data.Manga) error {
	w.root = mangaDir(w.dir, manga)
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return writeErr(w.root, err)
	}

	w.pdf = &gopdf.GoPdf{}
	w.pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	w.pdf.SetInfo(gopdf.PdfInfo{Title: manga.Title, Creator: "mangadex-dl"})
	w.empty = true

	w.finalPath = filepath.Join(w.root, utils.SanitizeFilename(manga.Title)+".pdf")
	w.tmpPath = w.finalPath + tmpSuffix
	w.state = Writing
	return nil
}

func (w *pdfWriter) OpenChapter(ch *data.PlannedChapter, totalPages int) error {
	return nil
}

func (w *pdfWriter) WritePage(page data.Page, body []byte) error {
	// gopdf embeds JPEG and PNG only.
	out, _, err := normalize(body, w.compress, "jpeg", "png")
	if err != nil {
		return writeErr(w.finalPath, err)
	}
	px, py, err := imageSize(out)
	if err != nil {
		return writeErr(w.finalPath, err)
	}

	rect := &gopdf.Rect{W: float64(px), H: float64(py)}
	w.pdf.AddPageWithOption(gopdf.PageOption{PageSize: rect})
	holder, err := gopdf.ImageHolderByBytes(out)
	if err != nil {
		return writeErr(w.finalPath, err)
	}
	if err := w.pdf.ImageByHolder(holder, 0, 0, rect); err != nil {
		return writeErr(w.finalPath, err)
	}
	w.empty = false
	return nil
}

func (w *pdfWriter) CloseChapter() error { return nil }

func (w *pdfWriter) VerifySealed(manga *data.Manga, ch *data.PlannedChapter, images []data.ImageInfo) bool {
	path := filepath.Join(mangaDir(w.dir, manga), utils.SanitizeFilename(manga.Title)+".pdf")
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func (w *pdfWriter) Seal() error {
	if w.empty {
		// Zero pages written: nothing to seal, leave no file behind.
		w.state = Sealed
		return nil
	}
	if err := w.pdf.WritePdf(w.tmpPath); err != nil {
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

func (w *pdfWriter) Discard() {
	os.Remove(w.tmpPath)
	w.state = Failed
}

func (w *pdfWriter) State() State { return w.state }
func (w *pdfWriter) Path() string { return w.finalPath }
