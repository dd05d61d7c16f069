// cmd_serve.go - Server-Start und Zugriff auf einen laufenden Server
// Hauptfunktionen: RunServer, AskHandler, versionHandler
package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edullm/edullm/api"
	"github.com/edullm/edullm/envconfig"
	"github.com/edullm/edullm/server"
	"github.com/edullm/edullm/version"
)

// RunServer - Startet den edullm-Server
func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// versionHandler - Zeigt die Version an
func versionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Println("Warning: could not connect to a running edullm instance")
	}

	if serverVersion != "" {
		fmt.Printf("edullm version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Printf("Warning: client version is %s\n", version.Version)
	}
}

// checkServerHeartbeat - Prueft ob der Server erreichbar ist
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		if !(strings.Contains(err.Error(), " refused") || strings.Contains(err.Error(), "could not connect")) {
			return err
		}
		return fmt.Errorf("could not connect to edullm server at %s, run 'edullm serve' first", envconfig.Host())
	}
	return nil
}

// AskHandler - Meldet sich am laufenden Server an und sendet einen Prompt an /generate
func AskHandler(cmd *cobra.Command, args []string) error {
	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return err
	}
	password, err := cmd.Flags().GetString("password")
	if err != nil {
		return err
	}
	if email == "" || password == "" {
		return errors.New("--email and --password are required")
	}

	req := &api.GenerateRequest{Prompt: strings.Join(args, " ")}
	if req.MaxTokens, err = cmd.Flags().GetInt("max-tokens"); err != nil {
		return err
	}
	if cmd.Flags().Changed("temperature") {
		temperature, err := cmd.Flags().GetFloat64("temperature")
		if err != nil {
			return err
		}
		req.Temperature = &temperature
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	if _, err := client.Login(cmd.Context(), email, password); err != nil {
		return err
	}

	resp, err := client.Generate(cmd.Context(), req)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Response)
	return nil
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the edullm web server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}

// newAskCmd - Erstellt den ask Command
func newAskCmd() *cobra.Command {
	askCmd := &cobra.Command{
		Use:     "ask PROMPT",
		Short:   "Send a prompt to a running edullm server",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    AskHandler,
	}

	askCmd.Flags().String("email", "", "Account email")
	askCmd.Flags().String("password", "", "Account password")
	askCmd.Flags().Int("max-tokens", api.DefaultMaxTokens, "Maximum number of tokens to generate")
	askCmd.Flags().Float64("temperature", api.DefaultTemperature, "Sampling temperature")

	return askCmd
}
