// dataset.go - Korpus laden, aufteilen und Batches ziehen
package train

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
)

var (
	// ErrNoCorpus wird zurueckgegeben wenn die Korpus-Datei fehlt
	ErrNoCorpus = errors.New("training corpus not found")
	// ErrCorpusTooSmall wird zurueckgegeben wenn ein Split kein Fenster fassen kann
	ErrCorpusTooSmall = errors.New("corpus split too small for block size")
)

// Encoder uebersetzt Text in Token-IDs
type Encoder interface {
	Encode(text string) []int32
}

// Dataset ist der tokenisierte Korpus, positionsweise aufgeteilt
type Dataset struct {
	Train []int32
	Val   []int32
}

// Split teilt ids an Position frac*len in Trainings- und Validierungsteil
func Split(ids []int32, frac float64) Dataset {
	n := int(frac * float64(len(ids)))
	return Dataset{Train: ids[:n], Val: ids[n:]}
}

// LoadCorpus liest und tokenisiert den kompletten Korpus
func LoadCorpus(path string, enc Encoder) ([]int32, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoCorpus, path)
	} else if err != nil {
		return nil, err
	}

	ids := enc.Encode(string(data))
	slog.Info("corpus loaded", "path", path, "bytes", len(data), "tokens", len(ids))
	return ids, nil
}

// GetBatch zieht batch zufaellige Fenster der Laenge block aus data.
// y ist jeweils x um eine Position verschoben.
func GetBatch(data []int32, batch, block int, rng *rand.Rand) (x, y [][]int32, err error) {
	if len(data) <= block {
		return nil, nil, fmt.Errorf("%w: %d tokens, block size %d", ErrCorpusTooSmall, len(data), block)
	}

	x = make([][]int32, batch)
	y = make([][]int32, batch)
	for b := range batch {
		i := rng.IntN(len(data) - block)
		x[b] = data[i : i+block]
		y[b] = data[i+1 : i+block+1]
	}
	return x, y, nil
}
