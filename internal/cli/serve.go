package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/navikt/meetcore/internal/analysis"
	"github.com/navikt/meetcore/internal/api"
	"github.com/navikt/meetcore/internal/config"
	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/repository"
	"github.com/navikt/meetcore/internal/service"
	"github.com/navikt/meetcore/internal/session"
	"github.com/navikt/meetcore/internal/signaling"
	"github.com/navikt/meetcore/internal/web"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the signaling relay and transcription backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *deps.Config
			if port != "" {
				cfg.Server.Port = port
			}
			return runServer(&cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")

	return cmd
}

// server holds the wired components of a running backend
type server struct {
	handler       http.Handler
	repo          repository.Repository
	sink          analysis.Sink
	relay         *signaling.Relay
	events        *web.SSEManager
	transcription *service.TranscriptionService
}

func newServer(cfg *config.Config) (*server, error) {
	repo, err := repository.NewRepository(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	sink, err := analysis.NewSink(cfg.NATS)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize analysis sink: %w", err)
	}

	store := session.NewStore()
	meetingService := service.NewMeetingService(store)
	transcriptionService := service.NewTranscriptionService(repo, store, sink, models.TranscriptionConfig{
		SampleRate:      cfg.Transcription.SampleRate,
		Language:        cfg.Transcription.Language,
		InterimResults:  cfg.Transcription.InterimResults,
		MaxAlternatives: cfg.Transcription.MaxAlternatives,
	})

	// Push presence and utterances to dashboard listeners
	events := web.NewSSEManager()
	meetingService.RegisterUpdateCallback(events.NotifyPresence)
	transcriptionService.RegisterUtteranceCallback(events.NotifyUtterance)

	relay := signaling.NewRelay(store, signaling.Config{
		MaxParticipants: cfg.Server.MaxParticipants,
		SendBufferSize:  cfg.Server.SendBufferSize,
	}, meetingService)

	handler := api.NewRouter(api.Dependencies{
		Meetings:      meetingService,
		Transcription: transcriptionService,
		Signaling: signaling.NewHandler(relay, signaling.TransportConfig{
			WriteWait:      cfg.Server.WriteWait,
			PongWait:       cfg.Server.PongWait,
			PingPeriod:     cfg.Server.PingPeriod,
			MaxMessageSize: cfg.Server.MaxMessageSize,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}),
		Events:  events,
		Storage: transcriptionService,
	})

	return &server{
		handler:       handler,
		repo:          repo,
		sink:          sink,
		relay:         relay,
		events:        events,
		transcription: transcriptionService,
	}, nil
}

// reapIdle ends transcription sessions that stopped sending chunks
func (s *server) reapIdle(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}

	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.transcription.ReapIdle(ctx, idle)
			if err != nil {
				log.Printf("Error reaping idle transcription sessions: %v", err)
			} else if n > 0 {
				log.Printf("Ended %d idle transcription sessions", n)
			}
		}
	}
}

// close disconnects every client and releases storage and broker connections
func (s *server) close() {
	s.relay.Shutdown()
	s.events.Close()

	if err := s.sink.Close(); err != nil {
		log.Printf("Error closing analysis sink: %v", err)
	}
	if err := s.repo.Close(); err != nil {
		log.Printf("Error closing repository: %v", err)
	}
}

func runServer(cfg *config.Config) error {
	srv, err := newServer(cfg)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disable write timeout for SSE and websocket connections
		IdleTimeout:  60 * time.Second,
	}

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go srv.reapIdle(reaperCtx, cfg.Server.SessionIdleTimeout)

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		log.Printf("Starting meetcore server on port %s", cfg.Server.Port)
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Channel to listen for an interrupt or terminate signal from the OS
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		srv.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("error starting server: %w", err)

	case <-shutdown:
		log.Println("Shutting down server...")
		stopReaper()

		// Close signaling and SSE connections first; Shutdown does not wait for hijacked connections
		srv.relay.Shutdown()
		srv.events.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			httpServer.Close()
			srv.close()
			return fmt.Errorf("error shutting down server: %w", err)
		}

		srv.close()
		log.Println("Server gracefully stopped")
		return nil
	}
}
