// cmd_show.go - Anzeige von Checkpoint-Metadaten
// Hauptfunktionen: ShowHandler, showInfo
package cmd

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/edullm/edullm/envconfig"
	"github.com/edullm/edullm/fs/gguf"
)

// maxArrayItems begrenzt die Ausgabe langer Arrays
const maxArrayItems = 8

// ShowHandler - Zeigt Metadaten und Tensoren eines Checkpoints an
func ShowHandler(cmd *cobra.Command, args []string) error {
	path := envconfig.CheckpointPath()
	if len(args) > 0 {
		path = args[0]
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gf, err := gguf.Decode(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}

	return showInfo(gf, verbose, cmd.OutOrStdout())
}

// showInfo - Schreibt Modell, Metadaten und optional Tensoren als Tabellen
func showInfo(gf *gguf.File, verbose bool, w io.Writer) error {
	tableRender := func(header string, rows func() [][]string) {
		fmt.Fprintln(w, " ", header)
		table := tablewriter.NewWriter(w)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(rows())
		table.Render()
		fmt.Fprintln(w)
	}

	var params uint64
	for _, t := range gf.Tensors {
		params += t.Elements()
	}

	tableRender("Model", func() (rows [][]string) {
		rows = append(rows, []string{"", "architecture", gf.KV.Architecture()})
		if name := gf.KV.String("general.name"); name != "" {
			rows = append(rows, []string{"", "name", name})
		}
		rows = append(rows, []string{"", "parameters", humanNumber(params)})
		rows = append(rows, []string{"", "context length", fmt.Sprint(gf.KV.Uint("context_length"))})
		rows = append(rows, []string{"", "embedding length", fmt.Sprint(gf.KV.Uint("embedding_length"))})
		rows = append(rows, []string{"", "vocab size", fmt.Sprint(gf.KV.Uint("vocab_size"))})
		if len(gf.Tensors) > 0 {
			rows = append(rows, []string{"", "tensor type", gf.Tensors[0].Kind.String()})
		}
		return
	})

	if !verbose {
		return nil
	}

	tableRender("Metadata", func() (rows [][]string) {
		for _, k := range gf.KV.Keys() {
			rows = append(rows, []string{"", k, formatValue(gf.KV[k])})
		}
		return
	})

	tableRender("Tensors", func() (rows [][]string) {
		for _, t := range gf.Tensors {
			rows = append(rows, []string{"", t.Name, t.Kind.String(), fmt.Sprint(t.Shape)})
		}
		return
	})

	return nil
}

// formatValue - Kuerzt Arrays auf maxArrayItems Elemente
func formatValue(v any) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Len() <= maxArrayItems {
		return fmt.Sprint(v)
	}

	items := make([]string, maxArrayItems)
	for i := range items {
		items[i] = fmt.Sprint(rv.Index(i).Interface())
	}
	return fmt.Sprintf("[%s ...] (%d items)", strings.Join(items, " "), rv.Len())
}

// humanNumber - Formatiert grosse Zahlen als 1.2K, 3.4M oder 5.6B
func humanNumber(n uint64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	default:
		return fmt.Sprint(n)
	}
}

// newShowCmd - Erstellt den show Command
func newShowCmd() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show [CHECKPOINT]",
		Short: "Show information for a checkpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE:  ShowHandler,
	}

	showCmd.Flags().BoolP("verbose", "v", false, "Show all metadata and tensors")

	return showCmd
}
