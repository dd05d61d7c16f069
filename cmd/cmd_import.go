// cmd_import.go - Import von PyTorch-Checkpoints
// Hauptfunktionen: ImportHandler
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edullm/edullm/convert"
	"github.com/edullm/edullm/envconfig"
	"github.com/edullm/edullm/fs/gguf"
	"github.com/edullm/edullm/model"
)

// ImportHandler - Liest einen state_dict und schreibt ihn als Checkpoint
func ImportHandler(cmd *cobra.Command, args []string) error {
	output, err := pathFlag(cmd, "output", envconfig.CheckpointPath)
	if err != nil {
		return err
	}

	kind, err := cmd.Flags().GetString("kind")
	if err != nil {
		return err
	}
	k, err := gguf.ParseKind(kind)
	if err != nil {
		return err
	}

	dropout, err := cmd.Flags().GetFloat32("dropout")
	if err != nil {
		return err
	}

	m, err := convert.ImportTorch(args[0], convert.Options{Dropout: dropout})
	if err != nil {
		return err
	}

	if err := ensureParent(output); err != nil {
		return err
	}

	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}
	if err := m.Save(output, model.SaveOptions{Kind: k, Name: name}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d parameters from %s to %s\n", m.NumParams(), args[0], output)
	return nil
}

// newImportCmd - Erstellt den import Command
func newImportCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import CHECKPOINT.pt",
		Short: "Convert a PyTorch checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  ImportHandler,
	}

	importCmd.Flags().StringP("output", "o", "", "Output checkpoint (default $EDULLM_DATA/edullm_model.gguf)")
	importCmd.Flags().String("kind", gguf.KindF32.String(), "Tensor type (f32, f16 or bf16)")
	importCmd.Flags().String("name", "", "Model name stored in the metadata")
	importCmd.Flags().Float32("dropout", model.DefaultConfig(0).Dropout, "Dropout stored with the model")

	return importCmd
}
