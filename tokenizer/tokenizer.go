// Package tokenizer - SentencePiece-kompatibler BPE Tokenizer
//
// Dieses Paket laedt, trainiert und speichert Vokabulare im SentencePiece
// ModelProto-Format und uebersetzt Text in Token-IDs und zurueck.
//
// Hauptkomponenten:
// - Tokenizer: Vokabular, Special Tokens und Byte-Fallback
// - Load/Save: ModelProto lesen und schreiben
// - Encode/Decode: Text <-> Token-IDs (encode.go, decode.go)
// - Train: BPE-Training auf einem Korpus (train.go)
package tokenizer

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// ErrNoVocabulary wird zurueckgegeben wenn die Vokabular-Datei fehlt
var ErrNoVocabulary = errors.New("tokenizer vocabulary not found")

// EndOfText trennt Dokumente im Trainingskorpus
const EndOfText = "<|endoftext|>"

// spaceSymbol ersetzt Leerzeichen in Pieces (U+2581)
const spaceSymbol = "▁"

// PieceType entspricht SentencePiece.Type im ModelProto
type PieceType int32

const (
	TypeNormal      PieceType = 1
	TypeUnknown     PieceType = 2
	TypeControl     PieceType = 3
	TypeUserDefined PieceType = 4
	TypeUnused      PieceType = 5
	TypeByte        PieceType = 6
)

func (t PieceType) String() string {
	switch t {
	case TypeNormal:
		return "NORMAL"
	case TypeUnknown:
		return "UNKNOWN"
	case TypeControl:
		return "CONTROL"
	case TypeUserDefined:
		return "USER_DEFINED"
	case TypeUnused:
		return "UNUSED"
	case TypeByte:
		return "BYTE"
	default:
		return fmt.Sprintf("TYPE(%d)", int32(t))
	}
}

// Piece ist ein Eintrag des Vokabulars; die ID ist die Position
type Piece struct {
	Text  string
	Score float32
	Type  PieceType
}

// Tokenizer uebersetzt zwischen Text und Token-IDs. Er ist nach dem Laden
// unveraenderlich und kann von mehreren Goroutinen genutzt werden.
type Tokenizer struct {
	pieces  []Piece
	reverse map[string]int32

	// specialTokens sind USER_DEFINED Pieces, die vor BPE abgetrennt werden
	specialTokens map[string]int32
	byteTokens    [256]int32
	unk           int32

	addDummyPrefix bool
	byteFallback   bool
	normalizer     string
}

// New baut einen Tokenizer aus einer Piece-Liste
func New(pieces []Piece) (*Tokenizer, error) {
	if len(pieces) == 0 {
		return nil, ErrNoVocabulary
	}

	t := &Tokenizer{
		pieces:         pieces,
		reverse:        make(map[string]int32, len(pieces)),
		specialTokens:  make(map[string]int32),
		unk:            -1,
		addDummyPrefix: true,
		normalizer:     "nfkc",
	}
	for i := range t.byteTokens {
		t.byteTokens[i] = -1
	}

	for i, p := range pieces {
		id := int32(i)
		if _, ok := t.reverse[p.Text]; ok {
			return nil, fmt.Errorf("duplicate piece %q at id %d", p.Text, i)
		}
		t.reverse[p.Text] = id

		switch p.Type {
		case TypeUnknown:
			if t.unk < 0 {
				t.unk = id
			}
		case TypeUserDefined:
			t.specialTokens[p.Text] = id
		case TypeByte:
			if b, ok := parseByteToken(p.Text); ok {
				t.byteTokens[b] = id
				t.byteFallback = true
			}
		}
	}

	return t, nil
}

// Load liest einen Tokenizer aus einer ModelProto-Datei
func Load(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoVocabulary, path)
	} else if err != nil {
		return nil, err
	}

	mp, err := unmarshalModel(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	t, err := New(mp.pieces)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.addDummyPrefix = mp.addDummyPrefix
	if mp.normalizer != "" {
		t.normalizer = mp.normalizer
	}

	slog.Debug("tokenizer loaded", "path", path, "vocab", len(t.pieces), "special", len(t.specialTokens), "byte_fallback", t.byteFallback)
	return t, nil
}

// Save schreibt den Tokenizer als ModelProto nach path
func (t *Tokenizer) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data := marshalModel(modelProto{
		pieces:         t.pieces,
		vocabSize:      int32(len(t.pieces)),
		byteFallback:   t.byteFallback,
		normalizer:     t.normalizer,
		addDummyPrefix: t.addDummyPrefix,
	})
	return os.WriteFile(path, data, 0o644)
}

// VocabSize gibt die Anzahl der Pieces zurueck
func (t *Tokenizer) VocabSize() int {
	return len(t.pieces)
}

// PieceToID sucht die ID eines Pieces
func (t *Tokenizer) PieceToID(s string) (int32, bool) {
	id, ok := t.reverse[s]
	return id, ok
}

// IDToPiece gibt den Text eines Pieces zurueck oder "" fuer ungueltige IDs
func (t *Tokenizer) IDToPiece(id int32) string {
	if id < 0 || int(id) >= len(t.pieces) {
		return ""
	}
	return t.pieces[id].Text
}

// Pieces gibt eine Kopie des Vokabulars zurueck
func (t *Tokenizer) Pieces() []Piece {
	return append([]Piece(nil), t.pieces...)
}

// SpecialTokens gibt die USER_DEFINED Pieces mit ihren IDs zurueck
func (t *Tokenizer) SpecialTokens() map[string]int32 {
	out := make(map[string]int32, len(t.specialTokens))
	for k, v := range t.specialTokens {
		out[k] = v
	}
	return out
}

// byteToken formatiert ein Byte als <0xNN> Piece
func byteToken(b byte) string {
	return fmt.Sprintf("<0x%02X>", b)
}

func parseByteToken(s string) (byte, bool) {
	if len(s) != 6 || s[0] != '<' || s[1] != '0' || s[2] != 'x' || s[5] != '>' {
		return 0, false
	}
	v, err := strconv.ParseUint(s[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}
