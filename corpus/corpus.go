// Package corpus - Trainingskorpus aus Dokumenten zusammenstellen
//
// Unterstuetzte Quellen: .txt, .md, .pdf und .jsonl (Feld "text").
// Jedes Dokument wird getrimmt und mit "\n<|endoftext|>\n" abgeschlossen.
package corpus

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/edullm/edullm/tokenizer"
)

// ErrUnsupportedFormat wird fuer unbekannte Dateiendungen zurueckgegeben
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Options steuert Prepare
type Options struct {
	// Limit begrenzt die Anzahl der Dokumente (0 = unbegrenzt)
	Limit int
	// SkipUnsupported ueberspringt unbekannte Dateien in Verzeichnissen
	SkipUnsupported bool
}

// Prepare schreibt alle Dokumente aus sources nach w und gibt die Anzahl
// geschriebener Dokumente zurueck. Verzeichnisse werden rekursiv in
// lexikographischer Reihenfolge gelesen.
func Prepare(w io.Writer, sources []string, opts Options) (int, error) {
	bw := bufio.NewWriter(w)
	var n int

	emit := func(doc string) (bool, error) {
		doc = strings.TrimSpace(doc)
		if doc == "" {
			return true, nil
		}
		if opts.Limit > 0 && n >= opts.Limit {
			return false, nil
		}
		if _, err := bw.WriteString(doc + "\n" + tokenizer.EndOfText + "\n"); err != nil {
			return false, err
		}
		n++
		return true, nil
	}

	for _, src := range sources {
		files, err := collect(src)
		if err != nil {
			return n, err
		}

		for _, path := range files {
			more, err := readDocuments(path, emit)
			if errors.Is(err, ErrUnsupportedFormat) && opts.SkipUnsupported {
				slog.Debug("skipping file", "path", path)
				continue
			} else if err != nil {
				return n, fmt.Errorf("%s: %w", path, err)
			}
			if !more {
				return n, bw.Flush()
			}
		}
	}

	return n, bw.Flush()
}

// collect gibt src selbst oder alle Dateien unterhalb von src zurueck
func collect(src string) ([]string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{src}, nil
	}

	var files []string
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !strings.HasPrefix(d.Name(), ".") {
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, err
}

func readDocuments(path string, emit func(string) (bool, error)) (bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		// vorhandene Trenner respektieren
		for _, doc := range strings.Split(string(data), tokenizer.EndOfText) {
			if more, err := emit(doc); !more || err != nil {
				return more, err
			}
		}
		return true, nil
	case ".pdf":
		text, err := readPDF(path)
		if err != nil {
			return false, err
		}
		return emit(text)
	case ".jsonl":
		return readJSONL(path, emit)
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	text, err := r.GetPlainText()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, text); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func readJSONL(path string, emit func(string) (bool, error)) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}

		var record struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return false, fmt.Errorf("line %d: %w", line, err)
		}
		if more, err := emit(record.Text); !more || err != nil {
			return more, err
		}
	}
	return true, scanner.Err()
}
