// cmd_train.go - Training des Sprachmodells
// Hauptfunktionen: TrainHandler, runTraining
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/edullm/edullm/envconfig"
	"github.com/edullm/edullm/fs/gguf"
	"github.com/edullm/edullm/model"
	"github.com/edullm/edullm/tokenizer"
	"github.com/edullm/edullm/train"
	"github.com/edullm/edullm/version"
)

// trainOptions fasst Pfade und Hyperparameter eines Trainingslaufs zusammen
type trainOptions struct {
	DataPath       string
	TokenizerPath  string
	CheckpointPath string
	Kind           gguf.Kind
	TrainSplit     float64

	Model model.Config
	Train train.Config
}

// TrainHandler - Liest die Flags und startet das Training
func TrainHandler(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	opts := trainOptions{Train: train.DefaultConfig()}

	var err error
	if opts.DataPath, err = pathFlag(cmd, "data", envconfig.CorpusPath); err != nil {
		return err
	}
	if opts.TokenizerPath, err = pathFlag(cmd, "tokenizer", envconfig.TokenizerPath); err != nil {
		return err
	}
	if opts.CheckpointPath, err = pathFlag(cmd, "checkpoint", envconfig.CheckpointPath); err != nil {
		return err
	}
	if opts.TrainSplit, err = flags.GetFloat64("train-split"); err != nil {
		return err
	}
	if opts.TrainSplit <= 0 || opts.TrainSplit >= 1 {
		return fmt.Errorf("--train-split must be between 0 and 1, got %v", opts.TrainSplit)
	}

	kind, err := flags.GetString("kind")
	if err != nil {
		return err
	}
	if opts.Kind, err = gguf.ParseKind(kind); err != nil {
		return err
	}

	for name, dst := range map[string]*int{
		"batch-size":    &opts.Train.BatchSize,
		"block-size":    &opts.Train.BlockSize,
		"max-iters":     &opts.Train.MaxIters,
		"eval-interval": &opts.Train.EvalInterval,
		"eval-iters":    &opts.Train.EvalIters,
		"n-embd":        &opts.Model.EmbedDim,
		"n-head":        &opts.Model.Heads,
		"n-layer":       &opts.Model.Layers,
		"threads":       &opts.Train.Threads,
	} {
		if *dst, err = flags.GetInt(name); err != nil {
			return err
		}
	}

	if opts.Train.LearningRate, err = flags.GetFloat32("lr"); err != nil {
		return err
	}
	if opts.Model.Dropout, err = flags.GetFloat32("dropout"); err != nil {
		return err
	}
	if opts.Train.Seed, err = flags.GetUint64("seed"); err != nil {
		return err
	}

	if opts.Train.Threads <= 0 {
		opts.Train.Threads = int(envconfig.NumThreads())
	}

	opts.Model.BlockSize = opts.Train.BlockSize
	return runTraining(cmd.Context(), cmd.OutOrStdout(), opts)
}

// runTraining laedt Tokenizer und Korpus, baut ein neues Modell und trainiert es.
// Der Checkpoint wird bei jeder Evaluierung ueberschrieben.
func runTraining(ctx context.Context, w io.Writer, opts trainOptions) error {
	tok, err := tokenizer.Load(opts.TokenizerPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Tokenizer loaded. Vocab size: %d\n", tok.VocabSize())

	ids, err := train.LoadCorpus(opts.DataPath, tok)
	if err != nil {
		return err
	}

	ds := train.Split(ids, opts.TrainSplit)
	fmt.Fprintf(w, "Data loaded. Train tokens: %d, Val tokens: %d\n", len(ds.Train), len(ds.Val))

	cfg := opts.Model
	cfg.VocabSize = tok.VocabSize()
	m, err := model.New(cfg, rand.New(rand.NewPCG(opts.Train.Seed, 3)))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Model created. Parameters: %.2fM\n", float64(m.NumParams())/1e6)

	if err := ensureParent(opts.CheckpointPath); err != nil {
		return err
	}

	tc := opts.Train
	tc.CheckpointPath = opts.CheckpointPath
	tc.CheckpointKind = opts.Kind
	tc.CheckpointKV = gguf.KV{
		"general.version":        version.Version,
		"training.max_iters":     uint32(tc.MaxIters),
		"training.batch_size":    uint32(tc.BatchSize),
		"training.learning_rate": tc.LearningRate,
		"training.seed":          tc.Seed,
	}

	t := &train.Trainer{
		Model:  m,
		Data:   ds,
		Config: tc,
		OnEval: func(step int, losses map[string]float64) {
			fmt.Fprintf(w, "step %d: train loss %.4f, val loss %.4f\n", step, losses["train"], losses["val"])
		},
	}

	start := time.Now()
	result, err := t.Run(ctx)
	if err != nil {
		return err
	}

	slog.Debug("training result", "steps", result.Steps, "evals", len(result.Events))
	fmt.Fprintf(w, "Training finished after %d steps in %s. Model saved to %s\n", result.Steps, time.Since(start).Round(time.Second), opts.CheckpointPath)
	return nil
}

// newTrainCmd - Erstellt den train Command
func newTrainCmd() *cobra.Command {
	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train a new model on a text corpus",
		Args:  cobra.ExactArgs(0),
		RunE:  TrainHandler,
	}

	tc := train.DefaultConfig()
	mc := model.DefaultConfig(0)

	trainCmd.Flags().String("data", "", "Training corpus (default $EDULLM_DATA/dataset.txt)")
	trainCmd.Flags().String("tokenizer", "", "Tokenizer model (default $EDULLM_DATA/tokenizer.model)")
	trainCmd.Flags().String("checkpoint", "", "Output checkpoint (default $EDULLM_DATA/edullm_model.gguf)")
	trainCmd.Flags().String("kind", gguf.KindF32.String(), "Tensor type of the checkpoint (f32, f16 or bf16)")
	trainCmd.Flags().Float64("train-split", 0.9, "Fraction of the corpus used for training")
	trainCmd.Flags().Int("batch-size", tc.BatchSize, "Sequences per batch")
	trainCmd.Flags().Int("block-size", tc.BlockSize, "Context length")
	trainCmd.Flags().Int("max-iters", tc.MaxIters, "Number of training steps")
	trainCmd.Flags().Int("eval-interval", tc.EvalInterval, "Steps between loss estimates")
	trainCmd.Flags().Int("eval-iters", tc.EvalIters, "Batches per loss estimate")
	trainCmd.Flags().Float32("lr", tc.LearningRate, "AdamW learning rate")
	trainCmd.Flags().Int("n-embd", mc.EmbedDim, "Embedding size")
	trainCmd.Flags().Int("n-head", mc.Heads, "Attention heads per block")
	trainCmd.Flags().Int("n-layer", mc.Layers, "Number of transformer blocks")
	trainCmd.Flags().Float32("dropout", mc.Dropout, "Dropout probability")
	trainCmd.Flags().Uint64("seed", tc.Seed, "Random seed")
	trainCmd.Flags().Int("threads", 0, "Threads used by tensor operations (default $EDULLM_NUM_THREADS)")

	return trainCmd
}
