// cmd_data.go - Korpus- und Tokenizer-Vorbereitung
// Hauptfunktionen: PrepareHandler, TokenizerTrainHandler
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/edullm/edullm/corpus"
	"github.com/edullm/edullm/envconfig"
	"github.com/edullm/edullm/huggingface"
	"github.com/edullm/edullm/tokenizer"
)

// PrepareHandler - Schreibt alle Dokumente aus args und optional aus einem
// Hub-Dataset in eine Korpus-Datei
func PrepareHandler(cmd *cobra.Command, args []string) error {
	output, err := pathFlag(cmd, "output", envconfig.CorpusPath)
	if err != nil {
		return err
	}

	sources := args
	if repo, _ := cmd.Flags().GetString("hub"); repo != "" {
		paths, err := downloadDataset(cmd, repo)
		if err != nil {
			return err
		}
		sources = append(sources, paths...)
	}
	if len(sources) == 0 {
		return errors.New("no sources given, pass files or --hub")
	}

	var opts corpus.Options
	if opts.Limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return err
	}
	if opts.SkipUnsupported, err = cmd.Flags().GetBool("skip-unsupported"); err != nil {
		return err
	}

	f, err := createFile(output)
	if err != nil {
		return err
	}

	n, err := corpus.Prepare(f, sources, opts)
	if err != nil {
		return errors.Join(err, f.Close())
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d documents to %s\n", n, output)
	return nil
}

// downloadDataset - Laedt die mit --hub-file gewaehlten Dateien eines Datasets
func downloadDataset(cmd *cobra.Command, repo string) ([]string, error) {
	files, err := cmd.Flags().GetStringSlice("hub-file")
	if err != nil {
		return nil, err
	}
	revision, err := cmd.Flags().GetString("revision")
	if err != nil {
		return nil, err
	}

	var downloaded atomic.Int64
	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Downloading %s from %s...\n", strings.Join(files, ", "), repo)

	paths, err := huggingface.NewClient().Download(cmd.Context(), repo, files, huggingface.DownloadOptions{
		Revision:    revision,
		Parallelism: huggingface.DefaultParallelism,
		Progress: func(_ string, n int64) {
			downloaded.Add(n)
		},
	})
	if err != nil {
		return nil, err
	}

	if n := downloaded.Load(); n > 0 {
		fmt.Fprintf(stderr, "Downloaded %s\n", humanNumber(uint64(n))+"B")
	}
	return paths, nil
}

// TokenizerTrainHandler - Lernt ein BPE-Vokabular aus dem Korpus
func TokenizerTrainHandler(cmd *cobra.Command, _ []string) error {
	input, err := pathFlag(cmd, "data", envconfig.CorpusPath)
	if err != nil {
		return err
	}
	output, err := pathFlag(cmd, "output", envconfig.TokenizerPath)
	if err != nil {
		return err
	}

	var opts tokenizer.TrainOptions
	if opts.VocabSize, err = cmd.Flags().GetInt("vocab-size"); err != nil {
		return err
	}
	if opts.ByteFallback, err = cmd.Flags().GetBool("byte-fallback"); err != nil {
		return err
	}
	if symbols, err := cmd.Flags().GetStringSlice("symbols"); err != nil {
		return err
	} else if len(symbols) > 0 {
		opts.UserDefinedSymbols = symbols
	}

	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	tok, err := tokenizer.Train(f, opts)
	if err != nil {
		return err
	}

	if err := tok.Save(output); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Tokenizer saved to %s. Vocab size: %d\n", output, tok.VocabSize())
	return nil
}

// newPrepareCmd - Erstellt den prepare Command
func newPrepareCmd() *cobra.Command {
	prepareCmd := &cobra.Command{
		Use:   "prepare [SOURCE...]",
		Short: "Build a training corpus from text, JSONL and PDF files",
		RunE:  PrepareHandler,
	}

	prepareCmd.Flags().StringP("output", "o", "", "Corpus file (default $EDULLM_DATA/dataset.txt)")
	prepareCmd.Flags().Int("limit", 0, "Maximum number of documents (0 means no limit)")
	prepareCmd.Flags().Bool("skip-unsupported", true, "Skip unknown file types inside directories")
	prepareCmd.Flags().String("hub", "", "HuggingFace dataset to download first (e.g. roneneldan/TinyStories)")
	prepareCmd.Flags().StringSlice("hub-file", []string{"TinyStoriesV2-GPT4-train.txt"}, "Files to download from the dataset")
	prepareCmd.Flags().String("revision", "main", "Dataset revision")

	return prepareCmd
}

// newTokenizerCmd - Erstellt den tokenizer Command mit Unterbefehlen
func newTokenizerCmd() *cobra.Command {
	tokenizerCmd := &cobra.Command{
		Use:   "tokenizer",
		Short: "Manage the tokenizer model",
	}

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Learn a vocabulary from the training corpus",
		Args:  cobra.ExactArgs(0),
		RunE:  TokenizerTrainHandler,
	}

	trainCmd.Flags().String("data", "", "Training corpus (default $EDULLM_DATA/dataset.txt)")
	trainCmd.Flags().StringP("output", "o", "", "Tokenizer model (default $EDULLM_DATA/tokenizer.model)")
	trainCmd.Flags().Int("vocab-size", 8000, "Target vocabulary size")
	trainCmd.Flags().Bool("byte-fallback", true, "Add byte pieces for characters outside the vocabulary")
	trainCmd.Flags().StringSlice("symbols", nil, "User defined symbols that are never split (default <|endoftext|>)")

	tokenizerCmd.AddCommand(trainCmd)
	return tokenizerCmd
}
