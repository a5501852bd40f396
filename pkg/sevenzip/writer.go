// Package sevenzip writes 7z archives with the Copy (store) codec.
//
// The Go ecosystem has readers for the format (bodgit/sevenzip,
// saracen/go7z) but no maintained writer, so this implements the small
// subset needed for .cb7 output: one packed stream and one Copy folder
// per file, CRC32 checksums, UTF-16 names. Page images are already
// compressed, so the store codec costs nothing.
package sevenzip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"unicode/utf16"
)

var signature = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}

const (
	versionMajor = 0
	versionMinor = 4

	// Signature header: 6 magic + 2 version + 4 CRC + 20 start header.
	signatureHeaderLen = 32
)

// Property IDs of the header structure.
const (
	idEnd              = 0x00
	idHeader           = 0x01
	idMainStreamsInfo  = 0x04
	idFilesInfo        = 0x05
	idPackInfo         = 0x06
	idUnpackInfo       = 0x07
	idSize             = 0x09
	idCRC              = 0x0A
	idFolder           = 0x0B
	idCodersUnpackSize = 0x0C
	idName             = 0x11
)

const coderCopy = 0x00

type entry struct {
	name string
	size uint64
	crc  uint32
}

// Writer assembles a 7z archive on w. File data streams through as it
// is added; the archive header lands at the end on Close.
type Writer struct {
	w       io.WriteSeeker
	entries []entry
	packed  uint64
	started bool
	closed  bool
}

func NewWriter(w io.WriteSeeker) *Writer {
	return &Writer{w: w}
}

// Add appends one file to the archive. Names use forward slashes.
func (z *Writer) Add(name string, body []byte) error {
	if z.closed {
		return errors.New("sevenzip: writer already closed")
	}
	if len(body) == 0 {
		return fmt.Errorf("sevenzip: empty entry %q not supported", name)
	}
	if !z.started {
		// Reserve the signature header; it is rewritten on Close
		// once the header offset and CRC are known.
		if _, err := z.w.Write(make([]byte, signatureHeaderLen)); err != nil {
			return err
		}
		z.started = true
	}
	if _, err := z.w.Write(body); err != nil {
		return err
	}
	z.entries = append(z.entries, entry{
		name: name,
		size: uint64(len(body)),
		crc:  crc32.ChecksumIEEE(body),
	})
	z.packed += uint64(len(body))
	return nil
}

// Close writes the archive header and fixes up the signature header.
func (z *Writer) Close() error {
	if z.closed {
		return nil
	}
	z.closed = true
	if len(z.entries) == 0 {
		return errors.New("sevenzip: archive has no entries")
	}

	header := z.buildHeader()
	if _, err := z.w.Write(header); err != nil {
		return err
	}

	start := make([]byte, 20)
	binary.LittleEndian.PutUint64(start[0:], z.packed) // next header offset
	binary.LittleEndian.PutUint64(start[8:], uint64(len(header)))
	binary.LittleEndian.PutUint32(start[16:], crc32.ChecksumIEEE(header))

	sig := make([]byte, 0, signatureHeaderLen)
	sig = append(sig, signature...)
	sig = append(sig, versionMajor, versionMinor)
	sig = binary.LittleEndian.AppendUint32(sig, crc32.ChecksumIEEE(start))
	sig = append(sig, start...)

	if _, err := z.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := z.w.Write(sig); err != nil {
		return err
	}
	_, err := z.w.Seek(0, io.SeekEnd)
	return err
}

func (z *Writer) buildHeader() []byte {
	var buf bytes.Buffer
	buf.WriteByte(idHeader)

	buf.WriteByte(idMainStreamsInfo)

	// Pack info: one packed stream per file, starting at offset 0.
	buf.WriteByte(idPackInfo)
	putNumber(&buf, 0)
	putNumber(&buf, uint64(len(z.entries)))
	buf.WriteByte(idSize)
	for _, e := range z.entries {
		putNumber(&buf, e.size)
	}
	buf.WriteByte(idEnd)

	// Unpack info: one single-coder Copy folder per stream, so the
	// substream defaults (one file per folder) apply.
	buf.WriteByte(idUnpackInfo)
	buf.WriteByte(idFolder)
	putNumber(&buf, uint64(len(z.entries)))
	buf.WriteByte(0) // not external
	for range z.entries {
		putNumber(&buf, 1)    // one coder
		buf.WriteByte(0x01)   // id size 1, no attributes
		buf.WriteByte(coderCopy)
	}
	buf.WriteByte(idCodersUnpackSize)
	for _, e := range z.entries {
		putNumber(&buf, e.size)
	}
	buf.WriteByte(idCRC)
	buf.WriteByte(1) // all defined
	for _, e := range z.entries {
		binary.Write(&buf, binary.LittleEndian, e.crc)
	}
	buf.WriteByte(idEnd)
	buf.WriteByte(idEnd)

	// Files info: names only. Every entry is a regular non-empty file,
	// so no empty-stream or attribute vectors are needed.
	buf.WriteByte(idFilesInfo)
	putNumber(&buf, uint64(len(z.entries)))

	var names bytes.Buffer
	names.WriteByte(0) // not external
	for _, e := range z.entries {
		for _, u := range utf16.Encode([]rune(e.name)) {
			binary.Write(&names, binary.LittleEndian, u)
		}
		names.WriteByte(0)
		names.WriteByte(0)
	}
	buf.WriteByte(idName)
	putNumber(&buf, uint64(names.Len()))
	buf.Write(names.Bytes())

	buf.WriteByte(idEnd)
	buf.WriteByte(idEnd)
	return buf.Bytes()
}

// putNumber emits the 7z variable-length integer encoding: flag bits in
// the first byte select how many little-endian bytes follow.
func putNumber(buf *bytes.Buffer, value uint64) {
	var first byte
	mask := byte(0x80)
	extra := 0
	for i := 0; i < 8; i++ {
		if value < uint64(1)<<(7*(i+1)) {
			first |= byte(value >> (8 * i))
			extra = i
			break
		}
		first |= mask
		mask >>= 1
		extra = i + 1
	}
	buf.WriteByte(first)
	for i := 0; i < extra; i++ {
		buf.WriteByte(byte(value >> (8 * i)))
	}
}
