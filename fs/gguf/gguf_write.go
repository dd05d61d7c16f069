// Package gguf - GGUF Write Operations
//
// Dieses Modul enthaelt Funktionen zum Schreiben von GGUF-Dateien:
// - WriteFile: Schreibt atomar ueber eine temporaere Datei
// - Write: Schreibt komplettes GGUF-File mit KV und Tensors
// - ggufWriteKV: Key-Value Paar Serialisierung
// - ggufWriteTensorInfo: Tensor-Metadaten Serialisierung
// - (*Tensor).WriteTo: Tensor-Daten im Zielformat
package gguf

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"
)

// WriteFile schreibt den Container nach path. Eine vorhandene Datei wird
// erst nach erfolgreichem Schreiben ersetzt.
func WriteFile(path string, kv KV, ts []*Tensor) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := Write(f, kv, ts); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), path)
}

// Write schreibt ein GGUF-File mit KV-Paaren und Tensors (V3 Format)
func Write(f *os.File, kv KV, ts []*Tensor) error {
	if kv.String("general.architecture") == "" {
		return fmt.Errorf("architecture not set")
	}

	for _, t := range ts {
		if uint64(len(t.Data)) != t.Elements() {
			return fmt.Errorf("tensor %q: %d values for shape %v", t.Name, len(t.Data), t.Shape)
		}
	}

	// Magic: "GGUF"
	if err := binary.Write(f, binary.LittleEndian, magic); err != nil {
		return err
	}

	// Version: 3
	if err := binary.Write(f, binary.LittleEndian, version); err != nil {
		return err
	}

	// Tensor Count
	if err := binary.Write(f, binary.LittleEndian, uint64(len(ts))); err != nil {
		return err
	}

	// KV Count
	if err := binary.Write(f, binary.LittleEndian, uint64(len(kv))); err != nil {
		return err
	}

	// Write KV Pairs
	for _, key := range kv.Keys() {
		if err := ggufWriteKV(f, kv.key(key), kv[key]); err != nil {
			return err
		}
	}

	// Sort Tensors
	ts = slices.Clone(ts)
	slices.SortStableFunc(ts, func(a, b *Tensor) int {
		return cmp.Or(cmp.Compare(a.block(), b.block()), cmp.Compare(a.Name, b.Name))
	})

	alignment := int64(kv.Uint("general.alignment", defaultAlignment))

	// Calculate offsets and write tensor info
	var s uint64
	for i := range ts {
		ts[i].Offset = s
		if err := ggufWriteTensorInfo(f, ts[i]); err != nil {
			return err
		}
		s += ts[i].Size()
		s += uint64(ggufPadding(int64(s), alignment))
	}

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	offset += ggufPadding(offset, alignment)

	// Write tensor data in parallel
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, t := range ts {
		w := io.NewOffsetWriter(f, offset+int64(t.Offset))
		g.Go(func() error {
			_, err := t.WriteTo(w)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	// Datei bis zum Ende der letzten Tensor-Daten verlaengern
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return f.Truncate(offset + int64(s))
}

// WriteTo schreibt die Tensor-Daten im Format von t.Kind
func (t *Tensor) WriteTo(w io.Writer) (int64, error) {
	var buf []byte
	switch t.Kind {
	case KindF32:
		buf = make([]byte, 4*len(t.Data))
		for i, v := range t.Data {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
		}
	case KindF16:
		buf = make([]byte, 2*len(t.Data))
		for i, v := range t.Data {
			binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(v).Bits())
		}
	case KindBF16:
		buf = bfloat16.EncodeFloat32(t.Data)
	default:
		return 0, fmt.Errorf("tensor %q: unsupported kind %v", t.Name, t.Kind)
	}

	n, err := w.Write(buf)
	return int64(n), err
}

// writeGGUF schreibt einen typisierten Wert mit Typ-Prefix
func writeGGUF[V any](w io.Writer, t uint32, v V) error {
	if err := binary.Write(w, binary.LittleEndian, t); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v)
}

// writeString schreibt einen String ohne Typ-Prefix
func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// writeGGUFArray schreibt ein Array mit Typ-Prefix
func writeGGUFArray[S ~[]E, E any](w io.Writer, t uint32, s S) error {
	if err := binary.Write(w, binary.LittleEndian, ggufTypeArray); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, t); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}

	// Strings muessen einzeln geschrieben werden
	if t == ggufTypeString {
		for _, e := range any(s).([]string) {
			if err := writeString(w, e); err != nil {
				return err
			}
		}
		return nil
	}

	return binary.Write(w, binary.LittleEndian, s)
}

// ggufWriteKV schreibt ein Key-Value Paar
func ggufWriteKV(w io.Writer, k string, v any) error {
	slog.Debug(k, "type", fmt.Sprintf("%T", v))

	if err := writeString(w, k); err != nil {
		return err
	}

	var err error
	switch v := v.(type) {
	case int32:
		err = writeGGUF(w, ggufTypeInt32, v)
	case int64:
		err = writeGGUF(w, ggufTypeInt64, v)
	case uint32:
		err = writeGGUF(w, ggufTypeUint32, v)
	case uint64:
		err = writeGGUF(w, ggufTypeUint64, v)
	case float32:
		err = writeGGUF(w, ggufTypeFloat32, v)
	case float64:
		err = writeGGUF(w, ggufTypeFloat64, v)
	case bool:
		err = writeGGUF(w, ggufTypeBool, v)
	case string:
		if err = binary.Write(w, binary.LittleEndian, ggufTypeString); err == nil {
			err = writeString(w, v)
		}
	case []int32:
		err = writeGGUFArray(w, ggufTypeInt32, v)
	case []uint32:
		err = writeGGUFArray(w, ggufTypeUint32, v)
	case []float32:
		err = writeGGUFArray(w, ggufTypeFloat32, v)
	case []string:
		err = writeGGUFArray(w, ggufTypeString, v)
	default:
		return fmt.Errorf("improper type for '%s'", k)
	}
	return err
}

// ggufWriteTensorInfo schreibt die Tensor-Metadaten
func ggufWriteTensorInfo(w io.Writer, t *Tensor) error {
	slog.Debug(t.Name, "kind", t.Kind, "shape", t.Shape, "offset", t.Offset)

	if err := writeString(w, t.Name); err != nil {
		return err
	}

	// Dimensions
	if err := binary.Write(w, binary.LittleEndian, uint32(len(t.Shape))); err != nil {
		return err
	}
	for _, n := range t.Shape {
		if err := binary.Write(w, binary.LittleEndian, n); err != nil {
			return err
		}
	}

	// Kind + Offset
	if err := binary.Write(w, binary.LittleEndian, uint32(t.Kind)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, t.Offset)
}
