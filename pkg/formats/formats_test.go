package formats

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kerbaras/mangadex-dl/pkg/data"
	"github.com/kerbaras/mangadex-dl/pkg/utils"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 6))
	for x := 0; x < 4; x++ {
		for y := 0; y < 6; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 40), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func planned(volume, number string) *data.PlannedChapter {
	return &data.PlannedChapter{
		Chapter: data.Chapter{ID: "ch1", Volume: volume, Number: number},
	}
}

func TestChapterName(t *testing.T) {
	tests := []struct {
		volume, number string
		want           string
	}{
		{"2", "15", "Vol. 2 Ch. 15"},
		{"", "15.5", "Ch. 15.5"},
		{"", "", "Oneshot"},
	}
	for _, tt := range tests {
		ch := &data.Chapter{Volume: tt.volume, Number: tt.number}
		if got := ChapterName(ch); got != tt.want {
			t.Errorf("ChapterName(%q, %q) = %q, want %q", tt.volume, tt.number, got, tt.want)
		}
	}
}

func TestChapterNameSanitized(t *testing.T) {
	ch := &data.Chapter{Number: "1/2"}
	if got := ChapterName(ch); got != "Ch. 1_2" {
		t.Errorf("path separators must be sanitized, got %q", got)
	}
}

func TestChapterTitleIncludesTitle(t *testing.T) {
	ch := &data.Chapter{Volume: "1", Number: "3", Title: "The Beginning"}
	if got := ChapterTitle(ch); got != "Vol. 1 Ch. 3 - The Beginning" {
		t.Errorf("got %q", got)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New("tar", t.TempDir(), false); err == nil {
		t.Error("expected an error for an unsupported format")
	}
	for _, format := range Formats() {
		if _, err := New(format, t.TempDir(), false); err != nil {
			t.Errorf("New(%q) failed: %v", format, err)
		}
	}
}

func TestNormalizeKeepsSupportedFormats(t *testing.T) {
	body := pngBytes(t)
	out, ext, err := normalize(body, false, "jpeg", "png")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if ext != ".png" || !bytes.Equal(out, body) {
		t.Errorf("supported format must pass through untouched, got ext %q", ext)
	}
}

func TestNormalizeReencodesUnsupported(t *testing.T) {
	out, ext, err := normalize(pngBytes(t), false, "jpeg")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if ext != ".jpg" {
		t.Fatalf("expected jpeg re-encode, got ext %q", ext)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out)); err != nil {
		t.Errorf("re-encoded output is not valid jpeg: %v", err)
	}
}

func TestNormalizeCompressForcesJPEG(t *testing.T) {
	_, ext, err := normalize(pngBytes(t), true, "jpeg", "png")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if ext != ".jpg" {
		t.Errorf("compress must re-encode even supported formats, got %q", ext)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	if _, _, err := normalize([]byte("not an image"), false, "jpeg"); err == nil {
		t.Error("expected an error for unrecognizable bytes")
	}
}

func TestRawWriterLayout(t *testing.T) {
	dir := t.TempDir()
	w := newRawWriter(dir, false)
	manga := &data.Manga{ID: "m1", Title: "Test: Manga"}

	if err := w.Begin(manga); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	ch := planned("1", "2")
	if err := w.OpenChapter(ch, 12); err != nil {
		t.Fatalf("OpenChapter failed: %v", err)
	}
	body := pngBytes(t)
	if err := w.WritePage(data.Page{Index: 1}, body); err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}
	if err := w.CloseChapter(); err != nil {
		t.Fatalf("CloseChapter failed: %v", err)
	}
	if err := w.Seal(); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	// Title sanitized, chapter folder named, pages zero-padded.
	page := filepath.Join(dir, "Test_ Manga", "Vol. 1 Ch. 2", "001.png")
	if _, err := os.Stat(page); err != nil {
		t.Errorf("expected page at %s: %v", page, err)
	}
	if w.State() != Sealed {
		t.Errorf("expected Sealed state, got %v", w.State())
	}
}

func TestRawWriterHasPage(t *testing.T) {
	dir := t.TempDir()
	w := newRawWriter(dir, false)
	if err := w.Begin(&data.Manga{Title: "M"}); err != nil {
		t.Fatal(err)
	}
	if err := w.OpenChapter(planned("", "1"), 10); err != nil {
		t.Fatal(err)
	}

	body := pngBytes(t)
	if w.HasPage(data.Page{Index: 1}) {
		t.Error("HasPage must be false before the page is written")
	}
	if err := w.WritePage(data.Page{Index: 1}, body); err != nil {
		t.Fatal(err)
	}
	if !w.HasPage(data.Page{Index: 1}) {
		t.Error("HasPage must see the written page")
	}
	if !w.HasPage(data.Page{Index: 1, Size: int64(len(body))}) {
		t.Error("HasPage must accept a matching expected size")
	}
	if w.HasPage(data.Page{Index: 1, Size: 12345}) {
		t.Error("HasPage must reject a size mismatch")
	}
}

func TestRawWriterCover(t *testing.T) {
	dir := t.TempDir()
	w := newRawWriter(dir, false)
	if err := w.Begin(&data.Manga{Title: "M"}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteCover(pngBytes(t)); err != nil {
		t.Fatalf("WriteCover failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "M", "cover.png")); err != nil {
		t.Errorf("expected cover at the manga root: %v", err)
	}
}

func TestRawWriterVerifySealed(t *testing.T) {
	dir := t.TempDir()
	w := newRawWriter(dir, false)
	manga := &data.Manga{Title: "M"}
	if err := w.Begin(manga); err != nil {
		t.Fatal(err)
	}
	ch := planned("", "1")
	if err := w.OpenChapter(ch, 1); err != nil {
		t.Fatal(err)
	}
	body := pngBytes(t)
	if err := w.WritePage(data.Page{Index: 1}, body); err != nil {
		t.Fatal(err)
	}

	images := []data.ImageInfo{{Name: "001", Hash: utils.SHA256(body)}}
	fresh := newRawWriter(dir, false)
	if !fresh.VerifySealed(manga, ch, images) {
		t.Error("intact chapter with matching hash must verify")
	}

	corrupted := []data.ImageInfo{{Name: "001", Hash: "deadbeef"}}
	if fresh.VerifySealed(manga, ch, corrupted) {
		t.Error("hash mismatch must fail verification")
	}

	missing := []data.ImageInfo{{Name: "002", Hash: utils.SHA256(body)}}
	if fresh.VerifySealed(manga, ch, missing) {
		t.Error("a recorded page absent from disk must fail verification")
	}

	if fresh.VerifySealed(manga, planned("", "9"), images) {
		t.Error("a chapter folder that does not exist must fail verification")
	}
}

func TestZipWriterVerifySealed(t *testing.T) {
	dir := t.TempDir()
	w := newZipWriter(dir, false)
	manga := &data.Manga{Title: "M"}
	if err := w.Begin(manga); err != nil {
		t.Fatal(err)
	}
	ch := planned("", "3")
	if err := w.OpenChapter(ch, 1); err != nil {
		t.Fatal(err)
	}
	if err := w.WritePage(data.Page{Index: 1}, pngBytes(t)); err != nil {
		t.Fatal(err)
	}
	if err := w.CloseChapter(); err != nil {
		t.Fatal(err)
	}

	fresh := newZipWriter(dir, false)
	if !fresh.VerifySealed(manga, ch, nil) {
		t.Error("sealed archive on disk must verify")
	}

	if err := os.Remove(filepath.Join(dir, "M", "Ch. 3.cbz")); err != nil {
		t.Fatal(err)
	}
	if fresh.VerifySealed(manga, ch, nil) {
		t.Error("deleted archive must fail verification")
	}
}

func TestZipWriterSealsChapterArchives(t *testing.T) {
	dir := t.TempDir()
	w := newZipWriter(dir, false)
	if err := w.Begin(&data.Manga{Title: "M"}); err != nil {
		t.Fatal(err)
	}
	if err := w.OpenChapter(planned("", "3"), 2); err != nil {
		t.Fatal(err)
	}
	body := pngBytes(t)
	for i := 1; i <= 2; i++ {
		if err := w.WritePage(data.Page{Index: i}, body); err != nil {
			t.Fatalf("WritePage %d failed: %v", i, err)
		}
	}
	if err := w.CloseChapter(); err != nil {
		t.Fatalf("CloseChapter failed: %v", err)
	}

	archive := filepath.Join(dir, "M", "Ch. 3.cbz")
	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("expected sealed archive at %s: %v", archive, err)
	}
	defer zr.Close()

	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
	if zr.File[0].Name != "001.png" || zr.File[1].Name != "002.png" {
		t.Errorf("wrong entry names: %s, %s", zr.File[0].Name, zr.File[1].Name)
	}
	if _, err := os.Stat(archive + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file must be gone after CloseChapter")
	}
}

func TestZipWriterDiscardRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	w := newZipWriter(dir, false)
	if err := w.Begin(&data.Manga{Title: "M"}); err != nil {
		t.Fatal(err)
	}
	if err := w.OpenChapter(planned("", "1"), 1); err != nil {
		t.Fatal(err)
	}
	if err := w.WritePage(data.Page{Index: 1}, pngBytes(t)); err != nil {
		t.Fatal(err)
	}
	w.Discard()

	entries, err := os.ReadDir(filepath.Join(dir, "M"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("discard must leave no partial archives, found %v", entries)
	}
	if w.State() != Failed {
		t.Errorf("expected Failed state, got %v", w.State())
	}
}

func TestSevenZipWriterSealsChapterArchives(t *testing.T) {
	dir := t.TempDir()
	w := newSevenZipWriter(dir, false)
	if err := w.Begin(&data.Manga{Title: "M"}); err != nil {
		t.Fatal(err)
	}
	if err := w.OpenChapter(planned("", "5"), 1); err != nil {
		t.Fatal(err)
	}
	if err := w.WritePage(data.Page{Index: 1}, pngBytes(t)); err != nil {
		t.Fatal(err)
	}
	if err := w.CloseChapter(); err != nil {
		t.Fatalf("CloseChapter failed: %v", err)
	}

	archive := filepath.Join(dir, "M", "Ch. 5.cb7")
	info, err := os.Stat(archive)
	if err != nil {
		t.Fatalf("expected sealed archive at %s: %v", archive, err)
	}
	if info.Size() == 0 {
		t.Error("archive is empty")
	}
	raw, err := os.ReadFile(archive)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}) {
		t.Error("archive does not start with the 7z signature")
	}
}

func TestPDFWriterProducesFile(t *testing.T) {
	dir := t.TempDir()
	w := newPDFWriter(dir, false)
	if err := w.Begin(&data.Manga{Title: "M"}); err != nil {
		t.Fatal(err)
	}
	if err := w.OpenChapter(planned("", "1"), 1); err != nil {
		t.Fatal(err)
	}
	if err := w.WritePage(data.Page{Index: 1}, pngBytes(t)); err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}
	if err := w.CloseChapter(); err != nil {
		t.Fatal(err)
	}
	if err := w.Seal(); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	raw, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatalf("expected pdf at %s: %v", w.Path(), err)
	}
	if !bytes.HasPrefix(raw, []byte("%PDF")) {
		t.Error("output is not a pdf")
	}
}

func TestEpubWriterProducesFile(t *testing.T) {
	dir := t.TempDir()
	w := newEpubWriter(dir, false)
	if err := w.Begin(&data.Manga{Title: "M"}); err != nil {
		t.Fatal(err)
	}
	if err := w.OpenChapter(planned("", "1"), 1); err != nil {
		t.Fatal(err)
	}
	if err := w.WritePage(data.Page{Index: 1}, pngBytes(t)); err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}
	if err := w.CloseChapter(); err != nil {
		t.Fatal(err)
	}
	if err := w.Seal(); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	// An epub is a zip container with a mimetype entry.
	zr, err := zip.OpenReader(w.Path())
	if err != nil {
		t.Fatalf("expected epub at %s: %v", w.Path(), err)
	}
	defer zr.Close()
	if len(zr.File) == 0 || zr.File[0].Name != "mimetype" {
		t.Error("epub container is missing its mimetype entry")
	}

	fresh := newEpubWriter(dir, false)
	if !fresh.VerifySealed(&data.Manga{Title: "M"}, planned("", "1"), nil) {
		t.Error("sealed book must verify")
	}
}

func TestEpubWriterCover(t *testing.T) {
	dir := t.TempDir()
	w := newEpubWriter(dir, false)
	if err := w.Begin(&data.Manga{Title: "M"}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteCover(pngBytes(t)); err != nil {
		t.Fatalf("WriteCover failed: %v", err)
	}
	if err := w.OpenChapter(planned("", "1"), 1); err != nil {
		t.Fatal(err)
	}
	if err := w.WritePage(data.Page{Index: 1}, pngBytes(t)); err != nil {
		t.Fatal(err)
	}
	if err := w.CloseChapter(); err != nil {
		t.Fatal(err)
	}
	if err := w.Seal(); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	zr, err := zip.OpenReader(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	var hasCover bool
	for _, f := range zr.File {
		if strings.Contains(f.Name, "cover") {
			hasCover = true
			break
		}
	}
	if !hasCover {
		t.Error("book carries no cover entry")
	}
}
