// cmd_run.go - Lokale Textgenerierung mit einem trainierten Checkpoint
// Hauptfunktionen: RunHandler, interactive
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/edullm/edullm/envconfig"
	"github.com/edullm/edullm/llm"
)

// RunHandler - Laedt Tokenizer und Checkpoint und generiert Text.
// Ohne Prompt-Argument startet eine interaktive Schleife.
func RunHandler(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	tokenizerPath, err := pathFlag(cmd, "tokenizer", envconfig.TokenizerPath)
	if err != nil {
		return err
	}
	checkpointPath, err := pathFlag(cmd, "checkpoint", envconfig.CheckpointPath)
	if err != nil {
		return err
	}
	device, err := pathFlag(cmd, "device", envconfig.Device)
	if err != nil {
		return err
	}
	seed, err := flags.GetUint64("seed")
	if err != nil {
		return err
	}

	var req llm.CompletionRequest
	if req.MaxTokens, err = flags.GetInt("max-tokens"); err != nil {
		return err
	}
	if req.Temperature, err = flags.GetFloat64("temperature"); err != nil {
		return err
	}
	if req.TopK, err = flags.GetInt("top-k"); err != nil {
		return err
	}
	if req.StopAtEOT, err = flags.GetBool("stop-at-eot"); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loading model from %s...\n", checkpointPath)

	local, err := llm.LoadLocal(cmd.Context(), llm.LocalConfig{
		TokenizerPath:  tokenizerPath,
		CheckpointPath: checkpointPath,
		Device:         device,
		Threads:        int(envconfig.NumThreads()),
		Seed:           seed,
	})
	if err != nil {
		return err
	}
	defer local.Close()

	if len(args) > 0 {
		req.Prompt = strings.Join(args, " ")
		return oneShot(cmd.Context(), out, local, req)
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		in, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		req.Prompt = strings.TrimSpace(string(in))
		return oneShot(cmd.Context(), out, local, req)
	}

	return interactive(cmd.Context(), os.Stdin, out, local, req)
}

// oneShot - Generiert einmal und gibt nur den neuen Text aus
func oneShot(ctx context.Context, w io.Writer, c llm.Completer, req llm.CompletionRequest) error {
	text, err := c.Completion(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, text)
	return nil
}

// interactive - Liest Zeilen aus in bis quit, exit oder EOF und gibt jeweils
// die Fortsetzung aus. Fehler einer einzelnen Generierung beenden die Schleife nicht.
func interactive(ctx context.Context, in io.Reader, w io.Writer, c llm.Completer, req llm.CompletionRequest) error {
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w, "EduLLM is ready!")
	fmt.Fprintln(w, "   Tip: Start a sentence, and the model will finish it.")
	fmt.Fprintln(w, "   Type 'quit' or 'exit' to stop.")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			break
		}

		line := scanner.Text()
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "quit", "exit":
			fmt.Fprintln(w, "Goodbye!")
			return nil
		case "":
			continue
		}

		req.Prompt = line
		text, err := c.Completion(ctx, req)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(w, "Goodbye!")
			return nil
		} else if err != nil {
			fmt.Fprintf(w, "Error during generation: %v\n", err)
			continue
		}

		fmt.Fprintf(w, "AI: ...%s\n", text)
		fmt.Fprintln(w, strings.Repeat("-", 20))
	}

	return scanner.Err()
}

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [PROMPT]",
		Short: "Generate text with a local checkpoint",
		RunE:  RunHandler,
	}

	runCmd.Flags().String("tokenizer", "", "Tokenizer model (default $EDULLM_DATA/tokenizer.model)")
	runCmd.Flags().String("checkpoint", "", "Checkpoint to load (default $EDULLM_DATA/edullm_model.gguf)")
	runCmd.Flags().String("device", "", "Compute device (default $EDULLM_DEVICE)")
	runCmd.Flags().Int("max-tokens", 100, "Number of tokens to generate")
	runCmd.Flags().Float64("temperature", 1.0, "Sampling temperature")
	runCmd.Flags().Int("top-k", 0, "Sample only from the k most likely tokens (0 disables)")
	runCmd.Flags().Uint64("seed", 0, "Random seed (0 picks a random seed)")
	runCmd.Flags().Bool("stop-at-eot", false, "Stop at the end-of-text token")

	return runCmd
}
