package gguf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testTensors() []*Tensor {
	return []*Tensor{
		{Name: "output.weight", Shape: []uint64{2, 3}, Data: []float32{1, -2, 3.5, 0, float32(math.Pi), -1e-7}},
		{Name: "blk.1.attn_q.weight", Shape: []uint64{2}, Data: []float32{0.25, -0.5}},
		{Name: "blk.0.attn_q.weight", Shape: []uint64{1, 1, 3}, Data: []float32{7, 8, 9}},
	}
}

// TestRoundTripF32 prueft dass F32-Tensors bitgenau erhalten bleiben
func TestRoundTripF32(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gguf")

	kv := KV{
		"general.architecture": "edullm",
		"block_count":          uint32(2),
		"dropout":              float32(0.2),
		"general.name":         "test",
		"tokenizer.pieces":     []string{"<unk>", "▁a"},
	}

	if err := WriteFile(path, kv, testTensors()); err != nil {
		t.Fatalf("WriteFile() Fehler: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open() Fehler: %v", err)
	}

	if f.Version != 3 {
		t.Errorf("Version = %d, erwartet 3", f.Version)
	}

	if got := f.KV.Uint("block_count"); got != 2 {
		t.Errorf("block_count = %d, erwartet 2", got)
	}
	if _, ok := f.KV["edullm.block_count"]; !ok {
		t.Error("block_count wurde nicht mit Architektur-Prefix geschrieben")
	}
	if got := f.KV.Float("dropout"); got != 0.2 {
		t.Errorf("dropout = %v, erwartet 0.2", got)
	}
	if diff := cmp.Diff([]string{"<unk>", "▁a"}, f.KV.Strings("tokenizer.pieces")); diff != "" {
		t.Errorf("tokenizer.pieces (-want +got):\n%s", diff)
	}

	for _, want := range testTensors() {
		got, ok := f.Tensor(want.Name)
		if !ok {
			t.Fatalf("Tensor %q fehlt", want.Name)
		}
		if diff := cmp.Diff(want.Shape, got.Shape); diff != "" {
			t.Errorf("%s Shape (-want +got):\n%s", want.Name, diff)
		}
		for i := range want.Data {
			if math.Float32bits(want.Data[i]) != math.Float32bits(got.Data[i]) {
				t.Errorf("%s[%d] = %v, erwartet bitgenau %v", want.Name, i, got.Data[i], want.Data[i])
			}
		}
	}
}

// TestRoundTripHalf prueft F16 und BF16 mit Toleranz
func TestRoundTripHalf(t *testing.T) {
	for _, kind := range []Kind{KindF16, KindBF16} {
		t.Run(kind.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "half.gguf")
			ts := []*Tensor{{Name: "w", Kind: kind, Shape: []uint64{4}, Data: []float32{1, -0.5, 0.125, 3}}}

			if err := WriteFile(path, KV{"general.architecture": "edullm"}, ts); err != nil {
				t.Fatalf("WriteFile() Fehler: %v", err)
			}

			f, err := Open(path)
			if err != nil {
				t.Fatalf("Open() Fehler: %v", err)
			}

			got, _ := f.Tensor("w")
			if got.Kind != kind {
				t.Errorf("Kind = %v, erwartet %v", got.Kind, kind)
			}
			// Alle Werte sind in beiden Formaten exakt darstellbar
			if diff := cmp.Diff([]float32{1, -0.5, 0.125, 3}, got.Data); diff != "" {
				t.Errorf("Data (-want +got):\n%s", diff)
			}
		})
	}
}

// TestWriteFileOverwrites prueft das Ueberschreiben eines vorhandenen Checkpoints
func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gguf")
	kv := KV{"general.architecture": "edullm"}

	for _, v := range []float32{1, 2} {
		ts := []*Tensor{{Name: "w", Shape: []uint64{1}, Data: []float32{v}}}
		if err := WriteFile(path, kv, ts); err != nil {
			t.Fatalf("WriteFile() Fehler: %v", err)
		}
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open() Fehler: %v", err)
	}
	if w, _ := f.Tensor("w"); w.Data[0] != 2 {
		t.Errorf("w = %v, erwartet 2", w.Data[0])
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("%d Dateien im Verzeichnis, erwartet 1 (keine Temp-Dateien)", len(entries))
	}
}

// TestWriteErrors prueft Validierung beim Schreiben
func TestWriteErrors(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFile(filepath.Join(dir, "a.gguf"), KV{}, nil); err == nil {
		t.Error("erwartet Fehler ohne general.architecture")
	}

	ts := []*Tensor{{Name: "w", Shape: []uint64{3}, Data: []float32{1}}}
	if err := WriteFile(filepath.Join(dir, "b.gguf"), KV{"general.architecture": "edullm"}, ts); err == nil {
		t.Error("erwartet Fehler bei falscher Datenlaenge")
	}
}

// TestOpenNotGGUF prueft die Magic-Erkennung
func TestOpenNotGGUF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.pt")
	if err := os.WriteFile(path, []byte("PK\x03\x04 torch zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); !errors.Is(err, ErrNotGGUF) {
		t.Errorf("Open() Fehler = %v, erwartet ErrNotGGUF", err)
	}
}

// rawTensorHeader baut einen Container mit einem Tensor ohne KV-Paare
func rawTensorHeader(dims uint32, shape ...uint64) []byte {
	var b bytes.Buffer
	w := func(v any) { _ = binary.Write(&b, binary.LittleEndian, v) }
	w(magic)
	w(uint32(3))
	w(uint64(1)) // Tensors
	w(uint64(0)) // KV-Paare
	w(uint64(len("t")))
	b.WriteString("t")
	w(dims)
	for _, n := range shape {
		w(n)
	}
	w(uint32(KindF32))
	w(uint64(0))
	return b.Bytes()
}

// TestOpenCorrupt prueft dass beschaedigte Dateien Fehler liefern statt zu paniken
func TestOpenCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"zu viele Dimensionen", rawTensorHeader(1 << 31), "dimensions"},
		{"fuenf Dimensionen", rawTensorHeader(5, 1, 1, 1, 1, 1), "dimensions"},
		{"Tensor groesser als Datei", rawTensorHeader(1, 1<<40), "exceeds file size"},
		{"Ueberlauf der Groesse", rawTensorHeader(2, 1<<40, 1<<40), "exceeds file size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.gguf")
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatal(err)
			}

			_, err := Open(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Open() Fehler = %v, erwartet %q", err, tt.want)
			}
		})
	}
}

// TestOpenTruncated prueft eine abgeschnittene, sonst gueltige Datei
func TestOpenTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := WriteFile(path, KV{"general.architecture": "edullm"}, testTensors()); err != nil {
		t.Fatalf("WriteFile() Fehler: %v", err)
	}

	fh, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	gf, err := Decode(fh)
	fh.Close()
	if err != nil {
		t.Fatalf("Decode() Fehler: %v", err)
	}

	// die letzten Daten-Bytes abschneiden, nicht nur das Padding
	var end uint64
	for _, ti := range gf.Tensors {
		end = max(end, gf.tensorOffset+ti.Offset+ti.Size())
	}
	if err := os.Truncate(path, int64(end)-1); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); err == nil {
		t.Error("Open() auf abgeschnittener Datei: kein Fehler")
	}
}
