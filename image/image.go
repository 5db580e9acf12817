// Package image loads firmware files into a single contiguous blob.
package image

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrNoData = errors.New("firmware file holds no data")

// Image is firmware to be written starting at Addr
type Image struct {
	Addr uint32
	Data []byte
}

// Load reads a .hex, .elf or raw binary file. Raw binaries are placed at
// base; the other formats carry their own load address.
func Load(path string, base uint32) (*Image, error) {
	var (
		img *Image
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		img, err = LoadHex(path)
	case ".elf":
		img, err = LoadELF(path)
	default:
		img, err = LoadBin(path, base)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not load %s", filepath.Base(path))
	}
	if len(img.Data) == 0 {
		return nil, errors.Wrap(ErrNoData, filepath.Base(path))
	}
	logrus.Debugf("loaded %d bytes at 0x%08x from %s", len(img.Data), img.Addr, path)
	return img, nil
}

func LoadBin(path string, base uint32) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Image{Addr: base, Data: data}, nil
}

// LoadHex flattens the segments of an Intel HEX file. Gaps between
// segments are filled with 0xff, the erased flash value.
func LoadHex(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		return nil, errors.Wrap(err, "parse intel hex")
	}

	segs := mem.GetDataSegments()
	if len(segs) == 0 {
		return &Image{}, nil
	}

	start := segs[0].Address
	end := start
	for _, s := range segs {
		if s.Address < start {
			start = s.Address
		}
		if e := s.Address + uint32(len(s.Data)); e > end {
			end = e
		}
	}

	return &Image{
		Addr: start,
		Data: mem.ToBinary(start, end-start, 0xff),
	}, nil
}
