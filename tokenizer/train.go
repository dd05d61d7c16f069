// train.go - BPE-Training eines Vokabulars
//
// Reihenfolge der Pieces: <unk>, <s>, </s>, USER_DEFINED Symbole,
// optional 256 Byte-Pieces, gelernte Merges (Score = -Rang), Einzelzeichen.
package tokenizer

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/edullm/edullm/logutil"
)

// TrainOptions steuert das BPE-Training
type TrainOptions struct {
	VocabSize int
	// UserDefinedSymbols werden nie zerlegt; Standard ist <|endoftext|>
	UserDefinedSymbols []string
	ByteFallback       bool
}

type pair struct {
	left, right string
}

type trainWord struct {
	symbols []string
	count   int
}

// Train lernt ein BPE-Vokabular aus dem Text in r
func Train(r io.Reader, opts TrainOptions) (*Tokenizer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty training corpus")
	}

	symbols := opts.UserDefinedSymbols
	if symbols == nil {
		symbols = []string{EndOfText}
	}

	pieces := []Piece{
		{Text: "<unk>", Type: TypeUnknown},
		{Text: "<s>", Type: TypeControl},
		{Text: "</s>", Type: TypeControl},
	}
	special := make(map[string]int32)
	for _, s := range symbols {
		special[s] = int32(len(pieces))
		pieces = append(pieces, Piece{Text: s, Type: TypeUserDefined})
	}
	if opts.ByteFallback {
		for b := range 256 {
			pieces = append(pieces, Piece{Text: byteToken(byte(b)), Type: TypeByte})
		}
	}

	// dieselbe Vorverarbeitung wie Encode
	pre := &Tokenizer{specialTokens: special, addDummyPrefix: true, normalizer: "nfkc"}
	counts := make(map[string]int)
	runeCounts := make(map[string]int)
	for _, part := range pre.splitBySpecialTokens(pre.normalize(string(data))) {
		if _, ok := special[part]; ok {
			continue
		}
		for _, w := range splitWords(part) {
			counts[w]++
		}
	}

	words := make([]*trainWord, 0, len(counts))
	for _, w := range slices.Sorted(maps.Keys(counts)) {
		tw := &trainWord{count: counts[w]}
		for _, r := range w {
			tw.symbols = append(tw.symbols, string(r))
			runeCounts[string(r)] += counts[w]
		}
		words = append(words, tw)
	}

	// Zeichen nach Haeufigkeit, bei Gleichstand lexikographisch
	chars := slices.SortedFunc(maps.Keys(runeCounts), func(a, b string) int {
		if c := cmp.Compare(runeCounts[b], runeCounts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	required := len(pieces) + len(chars)
	if opts.VocabSize < required {
		return nil, fmt.Errorf("vocab size %d is smaller than required %d (%d characters)", opts.VocabSize, required, len(chars))
	}

	seen := make(map[string]bool)
	for _, p := range pieces {
		seen[p.Text] = true
	}
	for _, c := range chars {
		seen[c] = true
	}

	stats := newPairStats(words)
	var merges []string
	for len(pieces)+len(chars)+len(merges) < opts.VocabSize {
		best, ok := stats.best()
		if !ok {
			slog.Warn("no more pairs to merge", "vocab", len(pieces)+len(chars)+len(merges), "requested", opts.VocabSize)
			break
		}

		merged := best.left + best.right
		stats.merge(words, best)
		if !seen[merged] {
			seen[merged] = true
			merges = append(merges, merged)
			logutil.Trace("merge", "rank", len(merges), "piece", merged)
		}
	}

	for i, m := range merges {
		pieces = append(pieces, Piece{Text: m, Score: -float32(i), Type: TypeNormal})
	}
	for i, c := range chars {
		pieces = append(pieces, Piece{Text: c, Score: -float32(len(merges) + i), Type: TypeNormal})
	}

	t, err := New(pieces)
	if err != nil {
		return nil, err
	}

	slog.Info("tokenizer trained", "vocab", t.VocabSize(), "merges", len(merges), "characters", len(chars), "words", len(words))
	return t, nil
}

// pairStats haelt die Paar-Haeufigkeiten ueber alle Woerter aktuell.
// where merkt sich pro Paar die Woerter in denen es vorkommt; Eintraege
// koennen veraltet sein, mergePair ist auf solchen Woertern ein No-op.
type pairStats struct {
	counts map[pair]int
	where  map[pair]map[int]struct{}
}

func newPairStats(words []*trainWord) *pairStats {
	s := &pairStats{
		counts: make(map[pair]int),
		where:  make(map[pair]map[int]struct{}),
	}
	for i, w := range words {
		s.add(i, w)
	}
	return s
}

func (s *pairStats) add(i int, w *trainWord) {
	for j := 1; j < len(w.symbols); j++ {
		p := pair{w.symbols[j-1], w.symbols[j]}
		s.counts[p] += w.count
		if s.where[p] == nil {
			s.where[p] = make(map[int]struct{})
		}
		s.where[p][i] = struct{}{}
	}
}

func (s *pairStats) remove(w *trainWord) {
	for j := 1; j < len(w.symbols); j++ {
		p := pair{w.symbols[j-1], w.symbols[j]}
		if s.counts[p] -= w.count; s.counts[p] <= 0 {
			delete(s.counts, p)
		}
	}
}

// merge wendet p nur auf die Woerter an die p enthalten
func (s *pairStats) merge(words []*trainWord, p pair) {
	affected := s.where[p]
	delete(s.where, p)
	for i := range affected {
		w := words[i]
		s.remove(w)
		w.symbols = mergePair(w.symbols, p)
		s.add(i, w)
	}
}

// best liefert das haeufigste Paar, bei Gleichstand das lexikographisch kleinste
func (s *pairStats) best() (pair, bool) {
	var best pair
	bestCount := 0
	for p, c := range s.counts {
		if c > bestCount || (c == bestCount && (p.left+"\x00"+p.right) < (best.left+"\x00"+best.right)) {
			best, bestCount = p, c
		}
	}
	return best, bestCount > 0
}

// mergePair verschmilzt alle Vorkommen von p in symbols (von links)
func mergePair(symbols []string, p pair) []string {
	out := symbols[:0]
	for i := 0; i < len(symbols); i++ {
		if i+1 < len(symbols) && symbols[i] == p.left && symbols[i+1] == p.right {
			out = append(out, p.left+p.right)
			i++
			continue
		}
		out = append(out, symbols[i])
	}
	return out
}
