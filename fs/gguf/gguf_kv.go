// Package gguf - Key-Value Metadaten
//
// KV haelt die Metadaten eines Checkpoints. Schluessel ohne "general."
// Prefix werden beim Schreiben und Lesen mit der Architektur praefixiert.
package gguf

import (
	"maps"
	"slices"
	"strings"
)

// KV sind die Metadaten eines GGUF-Containers
type KV map[string]any

// Architecture gibt "general.architecture" zurueck
func (kv KV) Architecture() string {
	return kv.String("general.architecture", "unknown")
}

// key ergaenzt den Architektur-Prefix fuer kurze Schluessel
func (kv KV) key(k string) string {
	if strings.HasPrefix(k, "general.") || strings.HasPrefix(k, "tokenizer.") {
		return k
	}
	arch, _ := kv["general.architecture"].(string)
	if arch == "" || strings.HasPrefix(k, arch+".") {
		return k
	}
	return arch + "." + k
}

// Keys gibt alle Schluessel sortiert zurueck
func (kv KV) Keys() []string {
	return slices.Sorted(maps.Keys(kv))
}

// String liest einen String-Wert
func (kv KV) String(key string, defaultValue ...string) string {
	if v, ok := kv[kv.key(key)].(string); ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// Uint liest einen ganzzahligen Wert (alle Integer-Typen werden akzeptiert)
func (kv KV) Uint(key string, defaultValue ...uint32) uint32 {
	switch v := kv[kv.key(key)].(type) {
	case uint32:
		return v
	case int32:
		return uint32(v)
	case uint64:
		return uint32(v)
	case int64:
		return uint32(v)
	case uint16:
		return uint32(v)
	case uint8:
		return uint32(v)
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// Float liest einen Gleitkomma-Wert
func (kv KV) Float(key string, defaultValue ...float32) float32 {
	switch v := kv[kv.key(key)].(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// Strings liest ein String-Array
func (kv KV) Strings(key string) []string {
	v, _ := kv[kv.key(key)].([]string)
	return v
}
