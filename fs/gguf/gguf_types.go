// Package gguf - GGUF Container fuer edullm-Checkpoints
//
// Dieses Modul definiert:
// - ggufType*: Primitive Datentypen der KV-Sektion
// - Kind: Speicherformat eines Tensors (F32, F16, BF16)
// - Tensor: Name, Form und Daten eines gespeicherten Tensors
package gguf

import (
	"fmt"
	"strconv"
	"strings"
)

// GGUF Type Constants - Identifikatoren fuer die verschiedenen Datentypen
const (
	ggufTypeUint8 uint32 = iota
	ggufTypeInt8
	ggufTypeUint16
	ggufTypeInt16
	ggufTypeUint32
	ggufTypeInt32
	ggufTypeFloat32
	ggufTypeBool
	ggufTypeString
	ggufTypeArray
	ggufTypeUint64
	ggufTypeInt64
	ggufTypeFloat64
)

// magic ist die Dateikennung "GGUF" als little-endian uint32
const magic uint32 = 0x46554747

// version ist die geschriebene GGUF-Version
const version uint32 = 3

// defaultAlignment ist das Alignment der Tensor-Daten
const defaultAlignment = 32

// Kind ist der Speichertyp eines Tensors (Werte wie in ggml)
type Kind uint32

const (
	KindF32  Kind = 0
	KindF16  Kind = 1
	KindBF16 Kind = 30
)

// ParseKind liest einen Kind aus seinem Namen ("f32", "f16", "bf16")
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "f32":
		return KindF32, nil
	case "f16":
		return KindF16, nil
	case "bf16":
		return KindBF16, nil
	}
	return 0, fmt.Errorf("unsupported tensor type %q", s)
}

func (k Kind) String() string {
	switch k {
	case KindF32:
		return "F32"
	case KindF16:
		return "F16"
	case KindBF16:
		return "BF16"
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// typeSize gibt die Bytes pro Element zurueck
func (k Kind) typeSize() uint64 {
	switch k {
	case KindF16, KindBF16:
		return 2
	default:
		return 4
	}
}

// Tensor ist ein benannter Tensor im Container
type Tensor struct {
	Name   string
	Kind   Kind
	Offset uint64
	Shape  []uint64

	// Data haelt die Werte immer als float32, unabhaengig von Kind
	Data []float32
}

// Elements gibt die Anzahl der Elemente zurueck
func (t *Tensor) Elements() uint64 {
	var count uint64 = 1
	for _, n := range t.Shape {
		count *= n
	}
	return count
}

// Size gibt die Groesse der Tensor-Daten in Bytes zurueck
func (t *Tensor) Size() uint64 {
	return t.Elements() * t.Kind.typeSize()
}

// block gibt die Block-Nummer aus "blk.N." zurueck oder -1
func (t *Tensor) block() int {
	if rest, ok := strings.CutPrefix(t.Name, "blk."); ok {
		if n, _, ok := strings.Cut(rest, "."); ok {
			if i, err := strconv.Atoi(n); err == nil {
				return i
			}
		}
	}
	return -1
}

// ggufPadding berechnet das Padding fuer Alignment
func ggufPadding(offset, align int64) int64 {
	return (align - offset%align) % align
}
