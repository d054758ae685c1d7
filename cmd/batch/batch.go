package batch

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-mood/batch"
	"github.com/RyanBlaney/sonido-mood/config"
	"github.com/RyanBlaney/sonido-mood/features"
	"github.com/RyanBlaney/sonido-mood/internal/app"
	"github.com/RyanBlaney/sonido-mood/logging"
)

// Request is the JSON accepted on stdin with --stdin
type Request struct {
	Files   []string `json:"files"`
	Workers int      `json:"workers,omitempty"`
}

// Command creates the batch command for many audio files
func Command(a *app.App) *cobra.Command {
	var readStdin bool

	cmd := &cobra.Command{
		Use:   "batch [files...]",
		Short: "Analyze many audio files concurrently",
		Long: `Analyze audio files on a bounded worker pool and print a JSON object
mapping every file to its result. Files are given as arguments or, with
--stdin, only as {"files": [...], "workers": n} on standard input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			decoder := a.Decoder()
			if err := a.CheckDependencies(decoder); err != nil {
				return err
			}

			files := args
			workers := a.Settings.Batch.Workers
			if readStdin {
				req, err := readRequest(cmd.InOrStdin())
				if err != nil {
					return err
				}
				if len(args) > 0 {
					a.Logger.Warn("Ignoring file arguments in stdin mode", logging.Fields{
						"ignored": len(args),
					})
				}
				files = req.Files
				if req.Workers > 0 {
					workers = req.Workers
				}
			}
			if len(files) == 0 {
				return features.ErrInputMissing
			}

			var runner batch.Runner
			switch a.Settings.Batch.Isolation {
			case config.IsolationProcess:
				r, err := batch.NewProcessRunner("", a.WorkerArgs()...)
				if err != nil {
					return err
				}
				runner = r
			default:
				runner = batch.NewInProcessRunner(a.Extractor(decoder))
			}

			var observers batch.MultiObserver
			var progress *batch.ProgressObserver
			if a.Settings.Batch.Progress {
				progress = batch.NewProgressObserver(a.Stderr)
				observers = append(observers, progress)
			}
			rec, err := a.Recorder()
			if err != nil {
				return err
			}
			if rec != nil {
				observers = append(observers, rec)
			}

			a.Logger.Debug("Batch configured", logging.Fields{
				"files":     len(files),
				"workers":   workers,
				"isolation": a.Settings.Batch.Isolation,
			})

			orchestrator := batch.NewOrchestrator(runner, batch.Options{
				Workers:  workers,
				Observer: observers,
				Logger:   logging.GetGlobalLogger(),
			})
			results := orchestrator.AnalyzeBatch(cmd.Context(), files)

			if progress != nil {
				progress.Wait()
			}
			a.WriteMetrics(rec)

			return a.Emit(results)
		},
	}

	setupFlags(cmd, a, &readStdin)
	return cmd
}

func setupFlags(cmd *cobra.Command, a *app.App, readStdin *bool) {
	flags := cmd.Flags()
	flags.BoolVar(readStdin, "stdin", false, `Read {"files": [...], "workers": n} from standard input`)
	flags.IntP("workers", "w", a.Viper.GetInt("batch.workers"), "Worker count, 0 picks min(CPUs, 4)")
	flags.String("isolation", a.Viper.GetString("batch.isolation"), "Worker isolation: goroutine, process")
	flags.Bool("progress", a.Viper.GetBool("batch.progress"), "Show a progress bar on stderr")

	_ = a.Viper.BindPFlag("batch.workers", flags.Lookup("workers"))
	_ = a.Viper.BindPFlag("batch.isolation", flags.Lookup("isolation"))
	_ = a.Viper.BindPFlag("batch.progress", flags.Lookup("progress"))
}

func readRequest(r io.Reader) (*Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON input: %w", err)
	}
	return &req, nil
}
