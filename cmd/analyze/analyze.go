package analyze

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-mood/features"
	"github.com/RyanBlaney/sonido-mood/internal/app"
)

// Command creates the analyze command for a single audio file
func Command(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one audio file",
		Long: `Analyze a single audio file and print its tempo, key, energy,
danceability, valence and mood, or the reason it could not be analysed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			decoder := a.Decoder()
			if err := a.CheckDependencies(decoder); err != nil {
				return err
			}

			switch len(args) {
			case 0:
				return features.ErrInputMissing
			case 1:
			default:
				return fmt.Errorf("analyze accepts one file, got %d", len(args))
			}

			rec, err := a.Recorder()
			if err != nil {
				return err
			}

			start := time.Now()
			result := a.Extractor(decoder).Analyze(args[0])

			if rec != nil {
				rec.OnStart(1, 1)
				rec.OnResult(args[0], result, time.Since(start))
				a.WriteMetrics(rec)
			}
			return a.Emit(result)
		},
	}
}
