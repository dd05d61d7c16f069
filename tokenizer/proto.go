// proto.go - SentencePiece ModelProto lesen und schreiben
//
// Es werden nur die benoetigten Felder verarbeitet, unbekannte Felder werden
// beim Lesen uebersprungen:
//
//	ModelProto      1: pieces (repeated), 2: trainer_spec, 3: normalizer_spec
//	SentencePiece   1: piece, 2: score (float), 3: type
//	TrainerSpec     3: model_type, 4: vocab_size, 35: byte_fallback
//	NormalizerSpec  1: name, 3: add_dummy_prefix
package tokenizer

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// modelTypeBPE ist TrainerSpec.ModelType.BPE
const modelTypeBPE = 2

type modelProto struct {
	pieces         []Piece
	modelType      int32
	vocabSize      int32
	byteFallback   bool
	normalizer     string
	addDummyPrefix bool
}

// fields ruft fn fuer jedes Feld einer Nachricht auf
func fields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		if err := fn(num, typ, b[:m]); err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func bytesValue(typ protowire.Type, v []byte) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, fmt.Errorf("unexpected wire type %d", typ)
	}
	s, n := protowire.ConsumeBytes(v)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return s, nil
}

func varintValue(typ protowire.Type, v []byte) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	x, n := protowire.ConsumeVarint(v)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return x, nil
}

func unmarshalModel(b []byte) (*modelProto, error) {
	mp := &modelProto{addDummyPrefix: true}

	err := fields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			msg, err := bytesValue(typ, v)
			if err != nil {
				return err
			}
			p, err := unmarshalPiece(msg)
			if err != nil {
				return err
			}
			mp.pieces = append(mp.pieces, p)
		case 2:
			msg, err := bytesValue(typ, v)
			if err != nil {
				return err
			}
			return fields(msg, func(num protowire.Number, typ protowire.Type, v []byte) error {
				switch num {
				case 3, 4, 35:
					x, err := varintValue(typ, v)
					if err != nil {
						return err
					}
					switch num {
					case 3:
						mp.modelType = int32(x)
					case 4:
						mp.vocabSize = int32(x)
					case 35:
						mp.byteFallback = protowire.DecodeBool(x)
					}
				}
				return nil
			})
		case 3:
			msg, err := bytesValue(typ, v)
			if err != nil {
				return err
			}
			return fields(msg, func(num protowire.Number, typ protowire.Type, v []byte) error {
				switch num {
				case 1:
					s, err := bytesValue(typ, v)
					if err != nil {
						return err
					}
					mp.normalizer = string(s)
				case 3:
					x, err := varintValue(typ, v)
					if err != nil {
						return err
					}
					mp.addDummyPrefix = protowire.DecodeBool(x)
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid tokenizer model: %w", err)
	}

	if len(mp.pieces) == 0 {
		return nil, errors.New("invalid tokenizer model: no pieces")
	}
	if mp.modelType != 0 && mp.modelType != modelTypeBPE {
		return nil, fmt.Errorf("unsupported tokenizer model type %d", mp.modelType)
	}
	return mp, nil
}

func unmarshalPiece(b []byte) (Piece, error) {
	p := Piece{Type: TypeNormal}
	err := fields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			s, err := bytesValue(typ, v)
			if err != nil {
				return err
			}
			p.Text = string(s)
		case 2:
			if typ != protowire.Fixed32Type {
				return fmt.Errorf("unexpected wire type %d for score", typ)
			}
			x, n := protowire.ConsumeFixed32(v)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Score = math.Float32frombits(x)
		case 3:
			x, err := varintValue(typ, v)
			if err != nil {
				return err
			}
			p.Type = PieceType(x)
		}
		return nil
	})
	return p, err
}

func marshalModel(mp modelProto) []byte {
	var b []byte
	for _, p := range mp.pieces {
		var pb []byte
		pb = protowire.AppendTag(pb, 1, protowire.BytesType)
		pb = protowire.AppendString(pb, p.Text)
		pb = protowire.AppendTag(pb, 2, protowire.Fixed32Type)
		pb = protowire.AppendFixed32(pb, math.Float32bits(p.Score))
		pb = protowire.AppendTag(pb, 3, protowire.VarintType)
		pb = protowire.AppendVarint(pb, uint64(p.Type))

		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, pb)
	}

	var tb []byte
	tb = protowire.AppendTag(tb, 3, protowire.VarintType)
	tb = protowire.AppendVarint(tb, modelTypeBPE)
	tb = protowire.AppendTag(tb, 4, protowire.VarintType)
	tb = protowire.AppendVarint(tb, uint64(mp.vocabSize))
	tb = protowire.AppendTag(tb, 35, protowire.VarintType)
	tb = protowire.AppendVarint(tb, protowire.EncodeBool(mp.byteFallback))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, tb)

	var nb []byte
	nb = protowire.AppendTag(nb, 1, protowire.BytesType)
	nb = protowire.AppendString(nb, mp.normalizer)
	nb = protowire.AppendTag(nb, 3, protowire.VarintType)
	nb = protowire.AppendVarint(nb, protowire.EncodeBool(mp.addDummyPrefix))
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, nb)

	return b
}
