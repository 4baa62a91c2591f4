package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/clipseek/clipseek/internal/models"
)

// On-disk layout, little endian: magic (4), format version (4),
// dimension (4), vector count (4), then count*dimension float32 values.
const (
	fileMagic     = 0x43534b31 // "CSK1"
	formatVersion = 1
)

// WriteTo writes the index in binary format. It matches io.WriterTo.
func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	var n int64
	header := []uint32{fileMagic, formatVersion, uint32(f.dimensions), uint32(len(f.vectors))}
	for _, h := range header {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return n, fmt.Errorf("write header: %w", err)
		}
		n += 4
	}
	buf := make([]byte, f.dimensions*4)
	for _, vec := range f.vectors {
		for i, v := range vec {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		written, err := w.Write(buf)
		n += int64(written)
		if err != nil {
			return n, fmt.Errorf("write vector: %w", err)
		}
	}
	return n, nil
}

// ReadFlat reads an index previously written by WriteTo. Decoding
// failures wrap models.ErrCorruptState.
func ReadFlat(r io.Reader) (*Flat, error) {
	var magic, version, dim, count uint32
	for _, p := range []*uint32{&magic, &version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return nil, fmt.Errorf("%w: read header: %v", models.ErrCorruptState, err)
		}
	}
	if magic != fileMagic {
		return nil, fmt.Errorf("%w: bad magic %#x", models.ErrCorruptState, magic)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", models.ErrCorruptState, version)
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero dimension", models.ErrCorruptState)
	}
	f := &Flat{dimensions: int(dim), vectors: make([][]float32, 0, count)}
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: read vector %d: %v", models.ErrCorruptState, i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		f.vectors = append(f.vectors, vec)
	}
	return f, nil
}

// Save writes the index to path atomically: a temp file in the same
// directory is written and renamed over the target. Parent directories
// are created if needed.
func (f *Flat) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if _, err := f.WriteTo(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

// LoadFlat reads an index from path.
func LoadFlat(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFlat(file)
}
