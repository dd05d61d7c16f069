// encode.go - Text zu Token-IDs encodieren
//
// Enthaelt:
// - Encode: Text zu Token-IDs (parallel fuer grosse Inputs)
// - normalize: NFKC und Leerzeichen -> ▁
// - splitBySpecialTokens: Trennt USER_DEFINED Tokens ab
// - encodeWord: BPE-Merge nach Score mit Byte-Fallback

package tokenizer

import (
	"runtime"
	"sort"
	"strings"
	"sync"

	queue "github.com/emirpasic/gods/v2/queues/priorityqueue"
	"golang.org/x/text/unicode/norm"
)

// Konstante fuer parallele Verarbeitung (4KB Schwellwert)
const parallelThreshold = 4096

// normalize wendet die Normalisierung des Vokabulars an
func (t *Tokenizer) normalize(s string) string {
	if t.normalizer != "identity" {
		s = norm.NFKC.String(s)
	}
	s = strings.ReplaceAll(s, " ", spaceSymbol)
	if t.addDummyPrefix && s != "" && !strings.HasPrefix(s, spaceSymbol) {
		s = spaceSymbol + s
	}
	return s
}

// splitBySpecialTokens trennt s in Teile, Special Tokens bleiben eigene Elemente
func (t *Tokenizer) splitBySpecialTokens(s string) []string {
	if len(t.specialTokens) == 0 {
		return []string{s}
	}

	// Laengste zuerst, damit ueberlappende Tokens gierig passen
	tokens := make([]string, 0, len(t.specialTokens))
	for tok := range t.specialTokens {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	var result []string
	remaining := s

	for len(remaining) > 0 {
		found := false
		for _, tok := range tokens {
			if strings.HasPrefix(remaining, tok) {
				result = append(result, tok)
				remaining = remaining[len(tok):]
				found = true
				break
			}
		}
		if !found {
			nextPos := len(remaining)
			for _, tok := range tokens {
				if idx := strings.Index(remaining, tok); idx != -1 && idx < nextPos {
					nextPos = idx
				}
			}
			result = append(result, remaining[:nextPos])
			remaining = remaining[nextPos:]
		}
	}

	return result
}

// splitWords teilt normalisierten Text vor jedem ▁; Merges ueberschreiten
// keine Wortgrenze
func splitWords(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if r == '\u2581' && i > start {
			words = append(words, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		words = append(words, s[start:])
	}
	return words
}

// Encode uebersetzt text in Token-IDs. Grosse Eingaben werden parallel
// in Wort-Bloecken encodiert; das Ergebnis ist identisch zur seriellen Variante.
func (t *Tokenizer) Encode(text string) []int32 {
	type chunk struct {
		text      string
		isSpecial bool
	}

	var chunks []chunk
	for _, part := range t.splitBySpecialTokens(t.normalize(text)) {
		if _, ok := t.specialTokens[part]; ok {
			chunks = append(chunks, chunk{part, true})
			continue
		}
		for _, w := range splitWords(part) {
			chunks = append(chunks, chunk{w, false})
		}
	}

	encode := func(cs []chunk, ids []int32) []int32 {
		for _, c := range cs {
			if c.isSpecial {
				ids = append(ids, t.specialTokens[c.text])
			} else {
				ids = t.encodeWord(c.text, ids)
			}
		}
		return ids
	}

	if len(text) < parallelThreshold {
		return encode(chunks, nil)
	}

	numWorkers := min(runtime.GOMAXPROCS(0), len(chunks))
	chunksPer := (len(chunks) + numWorkers - 1) / numWorkers
	results := make([][]int32, numWorkers)

	var wg sync.WaitGroup
	for i := range numWorkers {
		start := i * chunksPer
		end := min(start+chunksPer, len(chunks))
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(i int, cs []chunk) {
			defer wg.Done()
			results[i] = encode(cs, nil)
		}(i, chunks[start:end])
	}
	wg.Wait()

	var ids []int32
	for _, r := range results {
		ids = append(ids, r...)
	}
	return ids
}

// symbol ist ein Element der doppelt verketteten Liste waehrend des Merges
type symbol struct {
	text       string
	prev, next int
}

type candidate struct {
	left, right int
	score       float32
	size        int
}

// mergeable meldet ob s als Ergebnis eines Merges zulaessig ist
func (t *Tokenizer) mergeable(s string) (float32, bool) {
	id, ok := t.reverse[s]
	if !ok {
		return 0, false
	}
	p := t.pieces[id]
	return p.Score, p.Type == TypeNormal
}

// encodeWord haengt die BPE-Tokens eines Wortes an ids an.
// Es wird jeweils das benachbarte Paar mit dem hoechsten Score verschmolzen.
func (t *Tokenizer) encodeWord(word string, ids []int32) []int32 {
	if word == "" {
		return ids
	}
	if id, ok := t.reverse[word]; ok && t.pieces[id].Type == TypeNormal {
		return append(ids, id)
	}

	runes := []rune(word)
	symbols := make([]symbol, len(runes))
	for i, r := range runes {
		symbols[i] = symbol{text: string(r), prev: i - 1, next: i + 1}
	}
	symbols[len(symbols)-1].next = -1

	pq := queue.NewWith(func(a, b *candidate) int {
		if a.score != b.score {
			if a.score > b.score {
				return -1
			}
			return 1
		}
		return a.left - b.left
	})

	push := func(left, right int) {
		if left < 0 || right < 0 {
			return
		}
		s := symbols[left].text + symbols[right].text
		if score, ok := t.mergeable(s); ok {
			pq.Enqueue(&candidate{left: left, right: right, score: score, size: len(s)})
		}
	}

	for i := 1; i < len(symbols); i++ {
		push(i-1, i)
	}

	for !pq.Empty() {
		c, _ := pq.Dequeue()
		left, right := &symbols[c.left], &symbols[c.right]

		// veraltete Kandidaten ueberspringen
		if left.text == "" || right.text == "" || len(left.text)+len(right.text) != c.size || left.next != c.right {
			continue
		}

		left.text += right.text
		right.text = ""
		left.next = right.next
		if right.next >= 0 {
			symbols[right.next].prev = c.left
		}

		push(left.prev, c.left)
		push(c.left, left.next)
	}

	for i := 0; i >= 0; i = symbols[i].next {
		s := symbols[i].text
		if id, ok := t.reverse[s]; ok && t.pieces[id].Type != TypeControl {
			ids = append(ids, id)
			continue
		}

		if t.byteFallback {
			for _, b := range []byte(s) {
				if id := t.byteTokens[b]; id >= 0 {
					ids = append(ids, id)
				} else if t.unk >= 0 {
					ids = append(ids, t.unk)
				}
			}
		} else if t.unk >= 0 {
			ids = append(ids, t.unk)
		}
	}

	return ids
}
