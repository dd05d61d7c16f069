// cache.go - Cache-Verzeichnis fuer Dataset-Dateien
// Kompatibel mit der Cache-Struktur von huggingface_hub.
package huggingface

import (
	"os"
	"path/filepath"
	"strings"
)

// CacheDir gibt das Cache-Verzeichnis zurueck
func CacheDir() string {
	if dir := os.Getenv("HF_HUB_CACHE"); dir != "" {
		return dir
	}
	if home := os.Getenv(EnvHFHome); home != "" {
		return filepath.Join(home, "hub")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "huggingface", "hub")
	}
	return filepath.Join(os.TempDir(), "huggingface", "hub")
}

// cachePath gibt den Snapshot-Pfad einer Datei zurueck
func (c *Client) cachePath(repoID, revision, filename string) string {
	repoDir := "datasets--" + strings.ReplaceAll(repoID, "/", "--")
	return filepath.Join(c.cacheDir, repoDir, "snapshots", revision, filepath.FromSlash(filename))
}

// Cached gibt den lokalen Pfad zurueck, falls die Datei bereits geladen wurde
func (c *Client) Cached(repoID, revision, filename string) (string, bool) {
	p := c.cachePath(repoID, revision, filename)
	if _, err := os.Stat(p); err == nil {
		return p, true
	}
	return "", false
}
