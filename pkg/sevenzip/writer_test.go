package sevenzip

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
)

func writeArchive(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.7z")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWriter(f)
	// Map order is random; add in a fixed order for determinism.
	for _, name := range []string{"001.png", "002.png", "003.png"} {
		body, ok := files[name]
		if !ok {
			continue
		}
		if err := w.Add(name, body); err != nil {
			t.Fatalf("Add(%s) failed: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestWriterSignatureHeader(t *testing.T) {
	bodyA := []byte("first file body")
	bodyB := []byte("second")
	raw := writeArchive(t, map[string][]byte{"001.png": bodyA, "002.png": bodyB})

	if !bytes.HasPrefix(raw, []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}) {
		t.Fatal("missing 7z magic")
	}
	if raw[6] != 0 || raw[7] != 4 {
		t.Errorf("wrong format version %d.%d", raw[6], raw[7])
	}

	// Start header: its CRC at offset 8, its 20 bytes at offset 12.
	start := raw[12:32]
	if crc32.ChecksumIEEE(start) != binary.LittleEndian.Uint32(raw[8:12]) {
		t.Error("start header CRC mismatch")
	}

	offset := binary.LittleEndian.Uint64(start[0:8])
	size := binary.LittleEndian.Uint64(start[8:16])
	headerCRC := binary.LittleEndian.Uint32(start[16:20])

	wantOffset := uint64(len(bodyA) + len(bodyB))
	if offset != wantOffset {
		t.Errorf("next header offset %d, want %d", offset, wantOffset)
	}
	if int(32+offset+size) != len(raw) {
		t.Errorf("header does not reach end of file: %d + %d + %d != %d", 32, offset, size, len(raw))
	}

	header := raw[32+offset:]
	if crc32.ChecksumIEEE(header) != headerCRC {
		t.Error("archive header CRC mismatch")
	}
	if header[0] != idHeader {
		t.Errorf("header starts with 0x%02x, want kHeader", header[0])
	}
}

func TestWriterStoresBodiesVerbatim(t *testing.T) {
	bodyA := []byte("first file body")
	bodyB := []byte("second")
	raw := writeArchive(t, map[string][]byte{"001.png": bodyA, "002.png": bodyB})

	packed := raw[32 : 32+len(bodyA)+len(bodyB)]
	if !bytes.Equal(packed, append(append([]byte{}, bodyA...), bodyB...)) {
		t.Error("store codec must keep bodies verbatim and contiguous")
	}
}

func TestWriterEncodesNamesUTF16(t *testing.T) {
	raw := writeArchive(t, map[string][]byte{"001.png": []byte("x")})

	// "001.png" as UTF-16LE with a NUL terminator.
	var want []byte
	for _, r := range "001.png" {
		want = append(want, byte(r), 0)
	}
	want = append(want, 0, 0)
	if !bytes.Contains(raw, want) {
		t.Error("archive header does not carry the UTF-16 file name")
	}
}

func TestWriterRejectsEmptyEntry(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "test.7z"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := NewWriter(f)
	if err := w.Add("empty.png", nil); err == nil {
		t.Error("empty entries are not representable and must be rejected")
	}
}

func TestWriterRejectsEmptyArchive(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "test.7z"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := NewWriter(f).Close(); err == nil {
		t.Error("closing an archive with no entries must fail")
	}
}

func TestWriterAddAfterClose(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "test.7z"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := NewWriter(f)
	if err := w.Add("001.png", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Add("002.png", []byte("y")); err == nil {
		t.Error("Add after Close must fail")
	}
}

func TestPutNumberEncoding(t *testing.T) {
	tests := []struct {
		value uint64
		want  []byte
	}{
		{0, []byte{0x00}},
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x80, 0x80}},
		{0x12C, []byte{0x81, 0x2C}},
		{0x3FFF, []byte{0xBF, 0xFF}},
		{0x4000, []byte{0xC0, 0x00, 0x40}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		putNumber(&buf, tt.value)
		if !bytes.Equal(buf.Bytes(), tt.want) {
			t.Errorf("putNumber(0x%X) = % X, want % X", tt.value, buf.Bytes(), tt.want)
		}
	}
}
