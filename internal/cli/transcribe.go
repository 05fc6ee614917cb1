package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/navikt/meetcore/internal/config"
	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/recognition"
	"github.com/navikt/meetcore/internal/transcription"
)

type transcribeOptions struct {
	meetingID string
	serverURL string
	language  string
	noInterim bool
	inputPath string
}

func NewTranscribeCmd(deps *Dependencies) *cobra.Command {
	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Stream recognized speech to a running server",
		Long: "Reads recognizer output line by line (from --input or stdin) and delivers it to a transcription session.\n" +
			"Plain lines are final results, lines starting with '~ ' are interim, '!code message' reports a recognizer error,\n" +
			"and an empty line marks the recognizer stopping. The session ends when the input ends or on Ctrl+C.",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := io.Reader(cmd.InOrStdin())
			if opts.inputPath != "" && opts.inputPath != "-" {
				f, err := os.Open(opts.inputPath)
				if err != nil {
					return fmt.Errorf("opening input: %w", err)
				}
				defer f.Close()
				input = f
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stats, err := runTranscription(ctx, deps.Config, opts, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s ended: %d chunks, average confidence %.2f, %.1fs\n",
				stats.SessionID, stats.TotalChunks, stats.AverageConfidence, stats.DurationSeconds)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.meetingID, "meeting", "m", "", "Meeting to transcribe")
	cmd.Flags().StringVar(&opts.serverURL, "server", "", "Server base URL (overrides MEETCORE_SERVER_URL)")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Recognition language (overrides TRANSCRIPTION_LANGUAGE)")
	cmd.Flags().BoolVar(&opts.noInterim, "no-interim", false, "Drop interim results")
	cmd.Flags().StringVarP(&opts.inputPath, "input", "i", "", "Read recognizer output from a file instead of stdin")
	cmd.MarkFlagRequired("meeting")

	return cmd
}

// runTranscription drives one session until the input is consumed, ctx is
// canceled, or the recognizer fails permanently.
func runTranscription(ctx context.Context, cfg *config.Config, opts transcribeOptions, input io.Reader) (models.SessionStats, error) {
	serverURL := cfg.Client.ServerURL
	if opts.serverURL != "" {
		serverURL = opts.serverURL
	}

	settings := models.TranscriptionConfig{
		SampleRate:      cfg.Transcription.SampleRate,
		Language:        cfg.Transcription.Language,
		InterimResults:  cfg.Transcription.InterimResults && !opts.noInterim,
		MaxAlternatives: cfg.Transcription.MaxAlternatives,
	}
	if opts.language != "" {
		settings.Language = opts.language
	}

	recognizer := recognition.NewReaderRecognizer(input)
	controller := transcription.NewController(
		transcription.NewHTTPClient(serverURL, cfg.Client.Timeout),
		recognizer,
		transcription.Options{
			RestartBackoff:  cfg.Transcription.RestartBackoff,
			DeliveryTimeout: cfg.Client.Timeout,
			EndTimeout:      cfg.Client.Timeout,
		},
	)

	session, err := controller.Start(ctx, opts.meetingID, settings)
	if err != nil {
		return models.SessionStats{}, err
	}
	log.Printf("Transcribing meeting %s in session %s (%s)", opts.meetingID, session.SessionID, session.Config.Language)

	for {
		select {
		case <-recognizer.Exhausted():
			return endTranscription(controller, cfg.Client.Timeout)
		case <-ctx.Done():
			log.Println("Interrupted, ending transcription session")
			return endTranscription(controller, cfg.Client.Timeout)
		case err := <-controller.Errors():
			<-controller.Done()
			return models.SessionStats{}, fmt.Errorf("transcription failed: %w", err)
		case warning := <-controller.Warnings():
			log.Printf("Warning: %v", warning)
		}
	}
}

// endTranscription delivers what is queued and ends the backend session
func endTranscription(controller *transcription.Controller, timeout time.Duration) (models.SessionStats, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
	defer cancel()
	if err := controller.End(ctx); err != nil {
		// Give the background end call its own window before the process exits
		select {
		case <-controller.Done():
		case <-time.After(timeout):
		}
		return models.SessionStats{}, err
	}
	return controller.Stats(), nil
}
