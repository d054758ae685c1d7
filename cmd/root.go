package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-mood/cmd/analyze"
	"github.com/RyanBlaney/sonido-mood/cmd/batch"
	"github.com/RyanBlaney/sonido-mood/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(a *app.App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sonido-mood",
		Short: "Extract tempo, key, energy, danceability, valence and mood from audio files",
		Long: `sonido-mood analyses audio files and prints one JSON object per file
(analyze) or a JSON object keyed by file (batch). Per-file failures are
reported inline and do not change the exit status.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.Setup()
		},
	}

	if err := setupFlags(rootCmd, a); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		analyze.Command(a),
		batch.Command(a),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, a *app.App) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.ConfigFile, "config", "", "Path to a sonido-mood.yaml config file")
	flags.BoolVarP(&a.Debug, "debug", "d", false, "Enable debug output")
	flags.String("decoder", a.Viper.GetString("decoder.backend"), "Decoder backend: auto, ffmpeg, native")
	flags.StringP("output", "o", a.Viper.GetString("output.format"), "Output format: json, yaml")
	flags.String("metrics-file", a.Viper.GetString("metrics.file"), "Write Prometheus metrics to this textfile")

	for key, name := range map[string]string{
		"decoder.backend": "decoder",
		"output.format":   "output",
		"metrics.file":    "metrics-file",
	} {
		if err := a.Viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Execute runs the CLI and returns the process exit status. Fatal errors
// are printed to stdout as {"error": "..."}.
func Execute(ctx context.Context, a *app.App, args []string) int {
	rootCmd := RootCommand(a)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(a.Stdin)
	rootCmd.SetOut(a.Stdout)
	rootCmd.SetErr(a.Stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		WriteError(a.Stdout, err)
		return 1
	}
	return 0
}

// WriteError prints the JSON error payload
func WriteError(w io.Writer, err error) {
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
