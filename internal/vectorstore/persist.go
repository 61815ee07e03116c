package vectorstore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const indexFormatVersion = 1

var indexMagic = [4]byte{'O', 'A', 'I', 'X'}

// ErrIndexStale marks a persisted index that cannot be trusted: missing,
// corrupt, or built from different data or a different embedding model.
// Callers respond by rebuilding from source data.
var ErrIndexStale = errors.New("persisted index is stale")

// Metadata is the sidecar JSON written next to each index file.
type Metadata struct {
	FormatVersion  int       `json:"format_version"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	Count          int       `json:"count"`
	Checksum       string    `json:"checksum,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	VecFileSize    int64     `json:"vec_file_size"`
}

func vecPath(dir, name string) string  { return filepath.Join(dir, name+".vec") }
func metaPath(dir, name string) string { return filepath.Join(dir, name+".meta.json") }

// saveFlat writes the index and its metadata, temp file plus rename so a
// crash never leaves a half-written index behind.
func saveFlat(dir, name string, f *Flat, model, checksum string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	vecFile := vecPath(dir, name)
	tmp := vecFile + ".tmp"

	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	w := bufio.NewWriter(out)
	if _, err := w.Write(indexMagic[:]); err != nil {
		out.Close()
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(indexFormatVersion)); err != nil {
		out.Close()
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(f.dim)); err != nil {
		out.Close()
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(f.ids))); err != nil {
		out.Close()
		return err
	}
	for i, id := range f.ids {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			out.Close()
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, f.vecs[i*f.dim:(i+1)*f.dim]); err != nil {
			out.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, vecFile); err != nil {
		return fmt.Errorf("failed to replace index file: %w", err)
	}

	info, err := os.Stat(vecFile)
	if err != nil {
		return err
	}

	meta := Metadata{
		FormatVersion:  indexFormatVersion,
		EmbeddingModel: model,
		Dimension:      f.dim,
		Count:          f.Len(),
		Checksum:       checksum,
		CreatedAt:      time.Now().UTC(),
		VecFileSize:    info.Size(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	metaFile := metaPath(dir, name)
	metaTmp := metaFile + ".tmp"
	if err := os.WriteFile(metaTmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index metadata: %w", err)
	}
	if err := os.Rename(metaTmp, metaFile); err != nil {
		return fmt.Errorf("failed to replace index metadata: %w", err)
	}

	return nil
}

// loadFlat reads a persisted index and validates it against the active
// embedding model, dimension and (when non-empty) expected checksum. Any
// mismatch or corruption yields ErrIndexStale so the caller rebuilds.
func loadFlat(dir, name, model string, dim int, wantChecksum string) (*Flat, *Metadata, error) {
	metaData, err := os.ReadFile(metaPath(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: no metadata file", ErrIndexStale)
		}
		return nil, nil, fmt.Errorf("%w: unreadable metadata: %v", ErrIndexStale, err)
	}

	var meta Metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, nil, fmt.Errorf("%w: corrupt metadata: %v", ErrIndexStale, err)
	}

	if meta.FormatVersion != indexFormatVersion {
		return nil, nil, fmt.Errorf("%w: format version %d, want %d", ErrIndexStale, meta.FormatVersion, indexFormatVersion)
	}
	if meta.EmbeddingModel != model {
		return nil, nil, fmt.Errorf("%w: built with model %q, active model is %q", ErrIndexStale, meta.EmbeddingModel, model)
	}
	if meta.Dimension != dim {
		return nil, nil, fmt.Errorf("%w: dimension %d, want %d", ErrIndexStale, meta.Dimension, dim)
	}
	if wantChecksum != "" && meta.Checksum != wantChecksum {
		return nil, nil, fmt.Errorf("%w: source data changed since the index was built", ErrIndexStale)
	}

	info, err := os.Stat(vecPath(dir, name))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: missing vector file", ErrIndexStale)
	}
	if info.Size() != meta.VecFileSize {
		return nil, nil, fmt.Errorf("%w: vector file size %d, metadata says %d", ErrIndexStale, info.Size(), meta.VecFileSize)
	}

	in, err := os.Open(vecPath(dir, name))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unreadable vector file: %v", ErrIndexStale, err)
	}
	defer in.Close()

	r := bufio.NewReader(in)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, nil, fmt.Errorf("%w: truncated header", ErrIndexStale)
	}
	if !bytes.Equal(magic[:], indexMagic[:]) {
		return nil, nil, fmt.Errorf("%w: bad magic", ErrIndexStale)
	}

	var version, fileDim uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, nil, fmt.Errorf("%w: truncated header", ErrIndexStale)
	}
	if err := binary.Read(r, binary.LittleEndian, &fileDim); err != nil {
		return nil, nil, fmt.Errorf("%w: truncated header", ErrIndexStale)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, nil, fmt.Errorf("%w: truncated header", ErrIndexStale)
	}
	if version != indexFormatVersion || int(fileDim) != dim || int(count) != meta.Count {
		return nil, nil, fmt.Errorf("%w: header disagrees with metadata", ErrIndexStale)
	}

	f := NewFlat(dim)
	vec := make([]float32, dim)
	for i := uint64(0); i < count; i++ {
		var id int64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, nil, fmt.Errorf("%w: truncated at row %d", ErrIndexStale, i)
		}
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, nil, fmt.Errorf("%w: truncated at row %d", ErrIndexStale, i)
		}
		if err := f.Add(id, vec); err != nil {
			return nil, nil, err
		}
	}

	return f, &meta, nil
}
