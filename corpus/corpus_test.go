package corpus

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "  Tom went home.  \n")
	writeFile(t, filepath.Join(dir, "b.jsonl"), `{"text": "Once upon a time."}`+"\n\n"+`{"text": "  "}`+"\n"+`{"text": "The end."}`+"\n")
	writeFile(t, filepath.Join(dir, "sub", "c.md"), "# Titel\n<|endoftext|>\nZweites Dokument")

	var buf bytes.Buffer
	n, err := Prepare(&buf, []string{dir}, Options{})
	if err != nil {
		t.Fatalf("Prepare() Fehler: %v", err)
	}

	want := "Tom went home.\n<|endoftext|>\n" +
		"Once upon a time.\n<|endoftext|>\n" +
		"The end.\n<|endoftext|>\n" +
		"# Titel\n<|endoftext|>\n" +
		"Zweites Dokument\n<|endoftext|>\n"
	if got := buf.String(); got != want {
		t.Errorf("Prepare() =\n%q\nerwartet\n%q", got, want)
	}
	if n != 5 {
		t.Errorf("Prepare() = %d Dokumente, erwartet 5", n)
	}
}

func TestPrepareLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stories.jsonl")
	writeFile(t, path, `{"text":"a"}`+"\n"+`{"text":"b"}`+"\n"+`{"text":"c"}`+"\n")

	var buf bytes.Buffer
	n, err := Prepare(&buf, []string{path}, Options{Limit: 2})
	if err != nil {
		t.Fatalf("Prepare() Fehler: %v", err)
	}
	if n != 2 || buf.String() != "a\n<|endoftext|>\nb\n<|endoftext|>\n" {
		t.Errorf("Prepare() = %d, %q", n, buf.String())
	}
}

func TestPrepareErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bild.png"), "x")
	writeFile(t, filepath.Join(dir, "ok.txt"), "text")

	var buf bytes.Buffer
	if _, err := Prepare(&buf, []string{dir}, Options{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Prepare() = %v, erwartet ErrUnsupportedFormat", err)
	}

	buf.Reset()
	n, err := Prepare(&buf, []string{dir}, Options{SkipUnsupported: true})
	if err != nil || n != 1 {
		t.Errorf("Prepare() = %d, %v, erwartet 1 Dokument", n, err)
	}

	if _, err := Prepare(&buf, []string{filepath.Join(dir, "fehlt")}, Options{}); err == nil {
		t.Error("Prepare() erwartet Fehler bei fehlender Quelle")
	}

	bad := filepath.Join(dir, "bad.jsonl")
	writeFile(t, bad, "{kein json\n")
	if _, err := Prepare(&buf, []string{bad}, Options{}); err == nil {
		t.Error("Prepare() erwartet Fehler bei ungueltigem JSON")
	}
}
