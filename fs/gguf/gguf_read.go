// Package gguf - GGUF Decode Operations
//
// Dieses Modul enthaelt Funktionen zum Lesen von GGUF-Dateien:
// - Open/Decode: Header, KV-Paare und Tensor-Infos lesen
// - (*File).ReadTensors: Tensor-Daten nach float32 dekodieren
// - readGGUF*: Lese-Funktionen fuer verschiedene Datentypen
package gguf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// ErrNotGGUF wird zurueckgegeben wenn die Datei kein GGUF-Container ist
var ErrNotGGUF = errors.New("not a gguf file")

// maxStringLength begrenzt Allokationen bei beschaedigten Dateien
const maxStringLength = 1 << 30

// maxTensorDims ist die hoechste Dimensionszahl die GGUF erlaubt
const maxTensorDims = 4

// File ist ein gelesener GGUF-Container
type File struct {
	Version uint32
	KV      KV
	Tensors []*Tensor

	tensorOffset uint64
}

// Tensor gibt den Tensor mit dem Namen name zurueck
func (f *File) Tensor(name string) (*Tensor, bool) {
	for _, t := range f.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Open liest einen kompletten Container inklusive Tensor-Daten
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gf, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := gf.ReadTensors(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return gf, nil
}

// Decode liest Header, KV-Paare und Tensor-Infos (ohne Daten)
func Decode(rs io.ReadSeeker) (*File, error) {
	var m uint32
	if err := binary.Read(rs, binary.LittleEndian, &m); err != nil {
		return nil, err
	}
	if m != magic {
		return nil, ErrNotGGUF
	}

	gf := &File{KV: make(KV)}
	if err := binary.Read(rs, binary.LittleEndian, &gf.Version); err != nil {
		return nil, err
	}
	if gf.Version < 2 {
		return nil, fmt.Errorf("unsupported gguf version %d", gf.Version)
	}

	var header struct {
		NumTensor uint64
		NumKV     uint64
	}
	if err := binary.Read(rs, binary.LittleEndian, &header); err != nil {
		return nil, err
	}

	// KV-Paare dekodieren
	for range header.NumKV {
		k, err := readGGUFString(rs)
		if err != nil {
			return nil, err
		}

		t, err := readGGUF[uint32](rs)
		if err != nil {
			return nil, err
		}

		v, err := readGGUFValue(rs, t)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		gf.KV[k] = v
	}

	// Tensor-Infos dekodieren
	for range header.NumTensor {
		name, err := readGGUFString(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to read tensor name: %w", err)
		}

		dims, err := readGGUF[uint32](rs)
		if err != nil {
			return nil, fmt.Errorf("failed to read tensor dimensions: %w", err)
		}
		if dims > maxTensorDims {
			return nil, fmt.Errorf("tensor %q has %d dimensions, at most %d supported", name, dims, maxTensorDims)
		}

		shape := make([]uint64, dims)
		for i := range shape {
			if shape[i], err = readGGUF[uint64](rs); err != nil {
				return nil, fmt.Errorf("failed to read tensor shape: %w", err)
			}
		}

		kind, err := readGGUF[uint32](rs)
		if err != nil {
			return nil, fmt.Errorf("failed to read tensor kind: %w", err)
		}

		offset, err := readGGUF[uint64](rs)
		if err != nil {
			return nil, fmt.Errorf("failed to read tensor offset: %w", err)
		}

		gf.Tensors = append(gf.Tensors, &Tensor{
			Name:   name,
			Kind:   Kind(kind),
			Offset: offset,
			Shape:  shape,
		})
	}

	// Tensor-Offset berechnen
	alignment := int64(gf.KV.Uint("general.alignment", defaultAlignment))
	offset, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	gf.tensorOffset = uint64(offset + ggufPadding(offset, alignment))

	return gf, nil
}

// ReadTensors liest die Daten aller Tensors und dekodiert sie nach float32.
// Tensors die ueber das Dateiende hinausreichen sind ein Fehler.
func (f *File) ReadTensors(rs io.ReadSeeker) error {
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	for _, t := range f.Tensors {
		size, ok := t.dataSize()
		start := f.tensorOffset + t.Offset
		if !ok || start < f.tensorOffset || start > uint64(end) || size > uint64(end)-start {
			return fmt.Errorf("tensor %q: data at offset %d with shape %v exceeds file size %d", t.Name, t.Offset, t.Shape, end)
		}

		if _, err := rs.Seek(int64(start), io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek to tensor %q: %w", t.Name, err)
		}

		buf := make([]byte, size)
		if _, err := io.ReadFull(rs, buf); err != nil {
			return fmt.Errorf("failed to read tensor %q: %w", t.Name, err)
		}

		data, err := decodeTensorData(t.Kind, buf)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", t.Name, err)
		}
		t.Data = data
	}
	return nil
}

// dataSize ist Size mit Ueberlaufpruefung; ok ist false bei unsinnigen Shapes
func (t *Tensor) dataSize() (size uint64, ok bool) {
	size = t.Kind.typeSize()
	for _, n := range t.Shape {
		hi, lo := bits.Mul64(size, n)
		if hi != 0 {
			return 0, false
		}
		size = lo
	}
	return size, true
}

// decodeTensorData wandelt Rohdaten in float32 um
func decodeTensorData(kind Kind, buf []byte) ([]float32, error) {
	switch kind {
	case KindF32:
		data := make([]float32, len(buf)/4)
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
		return data, nil
	case KindF16:
		data := make([]float32, len(buf)/2)
		for i := range data {
			data[i] = float16.Frombits(binary.LittleEndian.Uint16(buf[2*i:])).Float32()
		}
		return data, nil
	case KindBF16:
		return bfloat16.DecodeFloat32(buf), nil
	}
	return nil, fmt.Errorf("unsupported kind %v", kind)
}

// readGGUF liest einen typisierten Wert aus dem Reader
func readGGUF[T any](r io.Reader) (T, error) {
	var t T
	err := binary.Read(r, binary.LittleEndian, &t)
	return t, err
}

// readGGUFString liest einen String aus dem Reader
func readGGUFString(r io.Reader) (string, error) {
	length, err := readGGUF[uint64](r)
	if err != nil {
		return "", err
	}
	if length > maxStringLength {
		return "", fmt.Errorf("string length %d exceeds limit", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readGGUFValue liest einen Wert des Typs t
func readGGUFValue(r io.Reader, t uint32) (any, error) {
	switch t {
	case ggufTypeUint8:
		return readGGUF[uint8](r)
	case ggufTypeInt8:
		return readGGUF[int8](r)
	case ggufTypeUint16:
		return readGGUF[uint16](r)
	case ggufTypeInt16:
		return readGGUF[int16](r)
	case ggufTypeUint32:
		return readGGUF[uint32](r)
	case ggufTypeInt32:
		return readGGUF[int32](r)
	case ggufTypeUint64:
		return readGGUF[uint64](r)
	case ggufTypeInt64:
		return readGGUF[int64](r)
	case ggufTypeFloat32:
		return readGGUF[float32](r)
	case ggufTypeFloat64:
		return readGGUF[float64](r)
	case ggufTypeBool:
		return readGGUF[bool](r)
	case ggufTypeString:
		return readGGUFString(r)
	case ggufTypeArray:
		return readGGUFArray(r)
	}
	return nil, fmt.Errorf("invalid type: %d", t)
}

// readGGUFArray liest ein Array; Strings und 32-Bit-Typen werden typisiert
func readGGUFArray(r io.Reader) (any, error) {
	t, err := readGGUF[uint32](r)
	if err != nil {
		return nil, err
	}

	n, err := readGGUF[uint64](r)
	if err != nil {
		return nil, err
	}
	if n > maxStringLength {
		return nil, fmt.Errorf("array length %d exceeds limit", n)
	}

	switch t {
	case ggufTypeString:
		s := make([]string, n)
		for i := range s {
			if s[i], err = readGGUFString(r); err != nil {
				return nil, err
			}
		}
		return s, nil
	case ggufTypeInt32:
		s := make([]int32, n)
		return s, binary.Read(r, binary.LittleEndian, s)
	case ggufTypeUint32:
		s := make([]uint32, n)
		return s, binary.Read(r, binary.LittleEndian, s)
	case ggufTypeFloat32:
		s := make([]float32, n)
		return s, binary.Read(r, binary.LittleEndian, s)
	}

	values := make([]any, n)
	for i := range values {
		if values[i], err = readGGUFValue(r, t); err != nil {
			return nil, err
		}
	}
	return values, nil
}
