// reader_torch.go - PyTorch state_dict ueber gopickle lesen
package convert

import (
	"errors"
	"fmt"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// torchTensor ist ein dichter float32-Tensor in PyTorch-Layout (row-major)
type torchTensor struct {
	shape []int
	data  []float32
}

func (t torchTensor) dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// parseTorch laedt alle Tensors eines mit torch.save gespeicherten state_dict
func parseTorch(path string) (map[string]torchTensor, error) {
	pt, err := pytorch.Load(path)
	if err != nil {
		return nil, err
	}

	ts := make(map[string]torchTensor)
	add := func(k, v any) error {
		name, ok := k.(string)
		if !ok {
			return fmt.Errorf("unexpected key type %T", k)
		}
		t, ok := v.(*pytorch.Tensor)
		if !ok {
			// Buffer und Metadaten ohne Tensor ignorieren
			return nil
		}
		tt, err := readTensor(t)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		ts[name] = tt
		return nil
	}

	switch d := pt.(type) {
	case *types.OrderedDict:
		for e := d.List.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.OrderedDictEntry)
			if err := add(entry.Key, entry.Value); err != nil {
				return nil, err
			}
		}
	case *types.Dict:
		for _, k := range d.Keys() {
			if err := add(k, d.MustGet(k)); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%s: expected a state_dict, got %T", path, pt)
	}

	if len(ts) == 0 {
		return nil, errors.New("no tensors in checkpoint")
	}
	return ts, nil
}

// readTensor kopiert die Werte unter Beachtung von Offset und Strides
func readTensor(t *pytorch.Tensor) (torchTensor, error) {
	var data []float32
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		data = s.Data
	case *pytorch.HalfStorage:
		data = s.Data
	case *pytorch.DoubleStorage:
		data = make([]float32, len(s.Data))
		for i, v := range s.Data {
			data[i] = float32(v)
		}
	default:
		return torchTensor{}, fmt.Errorf("unsupported storage %T", t.Source)
	}

	n := 1
	for _, d := range t.Size {
		n *= d
	}

	out := torchTensor{shape: append([]int(nil), t.Size...), data: make([]float32, n)}
	idx := make([]int, len(t.Size))
	for i := range n {
		off := t.StorageOffset
		for d, j := range idx {
			off += j * t.Stride[d]
		}
		if off >= len(data) {
			return torchTensor{}, fmt.Errorf("storage offset %d out of range", off)
		}
		out.data[i] = data[off]

		// Index wie einen Zaehler erhoehen (letzte Dimension zuerst)
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < t.Size[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}
