// Package model - Reflection-basierte Tensor-Benennung
//
// Dieses Modul leitet die Tensor-Namen eines Modells aus den gguf-Tags
// seiner Strukturfelder ab.
//
// Hauptkomponenten:
// - Tag: GGUF-Tag-Struktur fuer Tensor-Namen
// - parseTag: Parst GGUF-Tags aus Struct-Tags
// - walkTensors: Besucht rekursiv alle *ml.Tensor-Felder
// - buildTensorNames: Baut vollstaendige Namen inklusive Alternativen

package model

import (
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/edullm/edullm/ml"
)

// Tag repraesentiert einen geparsten GGUF-Tag
type Tag struct {
	name,
	// prefix und suffix werden auf Kind-Tags angewendet
	prefix,
	suffix string
	alternatives []string
}

// parseTag parst einen GGUF-Tag-String in eine Tag-Struktur
func parseTag(s string) (tag Tag) {
	parts := strings.Split(s, ",")
	if len(parts) > 0 {
		tag.name = parts[0]

		for _, part := range parts[1:] {
			if value, ok := strings.CutPrefix(part, "alt:"); ok && tag.name == "" {
				tag.name = value
				slog.Warn("gguf tag has alt: but no primary name", "tag", s)
			} else if ok {
				tag.alternatives = append(tag.alternatives, value)
			}
			if value, ok := strings.CutPrefix(part, "pre:"); ok {
				tag.prefix = value
			}
			if value, ok := strings.CutPrefix(part, "suf:"); ok {
				tag.suffix = value
			}
		}
	}

	return
}

var tensorType = reflect.TypeOf((*ml.Tensor)(nil))

// walkTensors ruft fn fuer jedes gesetzte *ml.Tensor-Feld auf. names enthaelt
// den Primaernamen an erster Stelle, danach die Alternativen.
func walkTensors(v reflect.Value, fn func(names []string, t *ml.Tensor), tags ...Tag) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return
		}
		if v.Type() == tensorType {
			var names []string
			for _, name := range buildTensorNames(tags, "", "") {
				names = append(names, strings.Join(name, "."))
			}
			if len(names) > 0 {
				fn(names, v.Interface().(*ml.Tensor))
			}
			return
		}
		walkTensors(v.Elem(), fn, tags...)
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			tagsCopy := tags
			if tag := t.Field(i).Tag.Get("gguf"); tag != "" {
				tagsCopy = append(tagsCopy, parseTag(tag))
			} else if t.Field(i).Type.Kind() != reflect.Pointer && t.Field(i).Type.Kind() != reflect.Slice {
				// Werte ohne Tag (z.B. Config) enthalten keine Tensors
				continue
			}
			walkTensors(v.Field(i), fn, tagsCopy...)
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			walkTensors(v.Index(i), fn, append(tags, Tag{name: strconv.Itoa(i)})...)
		}
	}
}

// buildTensorNames baut die vollstaendigen Tensor-Namen aus Tags
func buildTensorNames(tags []Tag, prefix, suffix string) (fullNames [][]string) {
	if len(tags) > 0 {
		var names []string
		if tags[0].name != "" {
			for _, n := range append([]string{tags[0].name}, tags[0].alternatives...) {
				names = append(names, prefix+n+suffix)
			}
		}
		childNames := buildTensorNames(tags[1:], tags[0].prefix, tags[0].suffix)
		if len(names) == 0 {
			// Aktueller Tag hat keinen Namen, nur Kind-Namen verwenden
			fullNames = append(fullNames, childNames...)
		} else if len(childNames) == 0 {
			for _, name := range names {
				fullNames = append(fullNames, []string{name})
			}
		} else {
			// Jeden Namen mit jedem Kind zusammenfuehren
			for _, name := range names {
				for _, childName := range childNames {
					fullNames = append(fullNames, append([]string{name}, childName...))
				}
			}
		}
	}

	return fullNames
}
