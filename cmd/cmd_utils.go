// cmd_utils.go - Hilfsfunktionen fuer die Commands
// Hauptfunktionen: pathFlag, ensureParent, createFile
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// pathFlag - Liest einen Pfad-Flag; leer faellt auf fallback zurueck.
// fallback wird erst hier ausgewertet, damit Werte aus .env greifen.
func pathFlag(cmd *cobra.Command, name string, fallback func() string) (string, error) {
	p, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", err
	}
	if p == "" {
		p = fallback()
	}
	return p, nil
}

// ensureParent - Legt das Elternverzeichnis von path an
func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// createFile - Legt path samt Elternverzeichnis an
func createFile(path string) (*os.File, error) {
	if err := ensureParent(path); err != nil {
		return nil, err
	}
	return os.Create(path)
}
