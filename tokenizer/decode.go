// decode.go - Token-IDs zu Text dekodieren

package tokenizer

import (
	"strings"
)

// unknownSurface wird fuer <unk> ausgegeben
const unknownSurface = " ⁇ "

// Decode uebersetzt ids zurueck in Text. Control-Pieces und ungueltige IDs
// werden uebersprungen, Byte-Pieces als Rohbytes geschrieben.
func (t *Tokenizer) Decode(ids []int32) string {
	var sb strings.Builder

	for _, id := range ids {
		if id < 0 || int(id) >= len(t.pieces) {
			continue
		}

		p := t.pieces[id]
		switch p.Type {
		case TypeControl, TypeUnused:
			continue
		case TypeUnknown:
			sb.WriteString(unknownSurface)
		case TypeByte:
			if b, ok := parseByteToken(p.Text); ok {
				sb.WriteByte(b)
			}
		case TypeUserDefined:
			sb.WriteString(p.Text)
		default:
			text := p.Text
			// Dummy-Prefix am Textanfang entfernen
			if sb.Len() == 0 && t.addDummyPrefix {
				text = strings.TrimPrefix(text, spaceSymbol)
			}
			sb.WriteString(strings.ReplaceAll(text, spaceSymbol, " "))
		}
	}

	return sb.String()
}
