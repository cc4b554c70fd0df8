// Package image loads the files the flasher uploads: raw binaries, Intel HEX
// and xz-compressed copies of either. It also builds signed RAM loader images.
package image

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// DefaultSignOffset is where the LTE2 boot ROM expects the loader signature.
const DefaultSignOffset = 0x1F800

// Fill is the value of erased flash and of padding.
const Fill = 0xFF

// Format is an image file encoding.
type Format uint8

const (
	Raw Format = iota
	IntelHex
)

func (f Format) String() string {
	if f == IntelHex {
		return "ihex"
	}
	return "raw"
}

// Segment is a contiguous run of bytes at an absolute address.
type Segment struct {
	Addr uint32
	Data []byte
}

// End returns the address one past the segment.
func (s Segment) End() uint32 {
	return s.Addr + uint32(len(s.Data))
}

// Image is a set of non-overlapping segments sorted by address.
type Image struct {
	Segments []Segment
}

// Size is the total number of data bytes.
func (img *Image) Size() int {
	n := 0
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// FormatOf guesses the format from a file name. A trailing .xz is stripped
// first and reported separately.
func FormatOf(name string) (f Format, compressed bool) {
	name = strings.ToLower(name)
	if strings.HasSuffix(name, ".xz") {
		compressed = true
		name = strings.TrimSuffix(name, ".xz")
	}
	switch filepath.Ext(name) {
	case ".hex", ".ihex", ".ihx":
		f = IntelHex
	}
	return f, compressed
}

// Load reads an image file. Raw data is placed at base; Intel HEX carries
// its own addresses and ignores base.
func Load(path string, base uint32) (*Image, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "image")
	}
	defer fd.Close()

	format, compressed := FormatOf(path)
	var r io.Reader = fd
	if compressed {
		xr, err := xz.NewReader(fd)
		if err != nil {
			return nil, errors.Wrapf(err, "image: %s", path)
		}
		r = xr
	}
	img, err := Decode(r, format, base)
	return img, errors.Wrapf(err, "image: %s", path)
}

// Decode reads an image in the given format.
func Decode(r io.Reader, format Format, base uint32) (*Image, error) {
	switch format {
	case IntelHex:
		return decodeHex(r)
	case Raw:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errors.New("empty image")
		}
		return &Image{Segments: []Segment{{Addr: base, Data: data}}}, nil
	}
	return nil, errors.Errorf("unknown format %d", format)
}

func decodeHex(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, errors.Wrap(err, "intel hex")
	}
	img := &Image{}
	for _, s := range mem.GetDataSegments() {
		if len(s.Data) == 0 {
			continue
		}
		img.Segments = append(img.Segments, Segment{Addr: s.Address, Data: s.Data})
	}
	if len(img.Segments) == 0 {
		return nil, errors.New("intel hex: no data records")
	}
	sort.Slice(img.Segments, func(i, j int) bool {
		return img.Segments[i].Addr < img.Segments[j].Addr
	})
	return img, nil
}

// Merge joins segments separated by at most gap bytes, filling the holes
// with Fill. It keeps the number of ADDR commands down for sparse HEX files.
func (img *Image) Merge(gap uint32) {
	if len(img.Segments) < 2 {
		return
	}
	out := img.Segments[:1]
	for _, s := range img.Segments[1:] {
		last := &out[len(out)-1]
		if s.Addr < last.End() || s.Addr-last.End() > gap {
			out = append(out, s)
			continue
		}
		hole := int(s.Addr - last.End())
		data := make([]byte, 0, len(last.Data)+hole+len(s.Data))
		data = append(data, last.Data...)
		data = append(data, bytes.Repeat([]byte{Fill}, hole)...)
		last.Data = append(data, s.Data...)
	}
	img.Segments = out
}

// WriteHex writes the image as Intel HEX with 16-byte records.
func (img *Image) WriteHex(w io.Writer) error {
	mem := gohex.NewMemory()
	for _, s := range img.Segments {
		if err := mem.AddBinary(s.Addr, s.Data); err != nil {
			return errors.Wrapf(err, "image: segment at 0x%08X", s.Addr)
		}
	}
	return errors.Wrap(mem.DumpIntelHex(w, 16), "image")
}

// Pack concatenates head and loader, pads with Fill up to offset and places
// sign there.
func Pack(head, loader, sign []byte, offset int) ([]byte, error) {
	n := len(head) + len(loader)
	if n > offset {
		return nil, errors.Errorf("image: head and loader take 0x%08X bytes, past sign offset 0x%08X", n, offset)
	}
	out := make([]byte, offset+len(sign))
	copy(out, head)
	copy(out[len(head):], loader)
	for i := n; i < offset; i++ {
		out[i] = Fill
	}
	copy(out[offset:], sign)
	return out, nil
}
