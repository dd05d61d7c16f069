// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/edullm/edullm/envconfig"
	"github.com/edullm/edullm/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// initialize - Liest .env im Arbeitsverzeichnis und richtet das Logging ein.
// Eine fehlende .env ist kein Fehler.
func initialize(_ *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	return nil
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:               "edullm",
		Short:             "Small GPT trainer, runner and study backend",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initialize,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := newServeCmd()
	trainCmd := newTrainCmd()
	runCmd := newRunCmd()
	askCmd := newAskCmd()
	tokenizerCmd := newTokenizerCmd()
	prepareCmd := newPrepareCmd()
	showCmd := newShowCmd()
	importCmd := newImportCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()

	for _, cmd := range []*cobra.Command{serveCmd, trainCmd, runCmd, askCmd, prepareCmd} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["EDULLM_DEBUG"],
				envVars["EDULLM_HOST"],
				envVars["EDULLM_ORIGINS"],
				envVars["EDULLM_DATA"],
				envVars["EDULLM_DB"],
				envVars["EDULLM_STATIC"],
				envVars["EDULLM_BACKEND"],
				envVars["EDULLM_HOSTED_URL"],
				envVars["EDULLM_HOSTED_MODEL"],
				envVars["EDULLM_SYSTEM_PROMPT"],
				envVars["GROQ_API_KEY"],
				envVars["EDULLM_JWT_SECRET"],
				envVars["EDULLM_TOKEN_TTL"],
				envVars["EDULLM_DEVICE"],
				envVars["EDULLM_NUM_PARALLEL"],
				envVars["EDULLM_NUM_THREADS"],
			})
		case trainCmd, runCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["EDULLM_DEBUG"],
				envVars["EDULLM_DATA"],
				envVars["EDULLM_DEVICE"],
				envVars["EDULLM_NUM_THREADS"],
			})
		case askCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["EDULLM_HOST"]})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["EDULLM_DATA"]})
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		trainCmd,
		runCmd,
		askCmd,
		tokenizerCmd,
		prepareCmd,
		showCmd,
		importCmd,
	)

	return rootCmd
}
