package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/bunx"
	"github.com/GustavPetterssonBjorklund/Statix/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/internal/ingest"
	"github.com/GustavPetterssonBjorklund/Statix/internal/logging"
	"github.com/GustavPetterssonBjorklund/Statix/internal/metrics"
	"github.com/GustavPetterssonBjorklund/Statix/internal/nodeauth"
	"github.com/GustavPetterssonBjorklund/Statix/internal/payload"
	"github.com/GustavPetterssonBjorklund/Statix/internal/repository"
	"github.com/GustavPetterssonBjorklund/Statix/internal/roster"
	"github.com/GustavPetterssonBjorklund/Statix/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Statix server",
	Long:  `Starts the REST API, the roster WebSocket and the MQTT ingest subscriber.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.WithComponent("serve")

		metrics.Register()

		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info().Msg("connected to database")

		// Repositories.
		nodeRepo := repository.NewBunNodeRepository(db)
		metricRepo := repository.NewBunMetricRepository(db)
		sysinfoRepo := repository.NewBunSystemInfoRepository(db)
		userRepo := repository.NewBunUserRepository(db)
		roleRepo := repository.NewBunRoleRepository(db)
		permRepo := repository.NewBunPermissionRepository(db)
		sessionRepo := repository.NewBunSessionRepository(db)
		authTokenRepo := repository.NewBunAuthTokenRepository(db)
		auditRepo := repository.NewBunAuditLogRepository(db)

		// Services.
		identitySvc := identity.NewService(identity.Dependencies{
			Users:       userRepo,
			Roles:       roleRepo,
			Permissions: permRepo,
			Sessions:    sessionRepo,
			AuthTokens:  authTokenRepo,
			Audit:       auditRepo,
		})
		if err := identitySvc.Prestart(cmd.Context()); err != nil {
			_ = bunx.Close(db)
			return fmt.Errorf("identity prestart: %w", err)
		}

		nodeAuthSvc := nodeauth.NewService(nodeRepo, auditRepo, cfg.MQTT)

		validator, err := payload.NewValidator()
		if err != nil {
			_ = bunx.Close(db)
			return fmt.Errorf("compile payload schemas: %w", err)
		}

		hub := roster.NewHub(nodeRepo)
		hub.Start()

		ingestor := ingest.New(metricRepo, sysinfoRepo, validator, hub)
		if err := ingestor.Start(ingest.Config{
			BrokerURL: cfg.MQTT.URL,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
		}); err != nil {
			_ = bunx.Close(db)
			return fmt.Errorf("start ingest: %w", err)
		}

		srv := server.New(server.Dependencies{
			DB:       db,
			Identity: identitySvc,
			NodeAuth: nodeAuthSvc,
			Nodes:    nodeRepo,
			Metrics:  metricRepo,
			Hub:      hub,
			Ingestor: ingestor,
			Config:   cfg,
		})

		serverErrors := make(chan error, 1)
		go func() {
			serverErrors <- srv.Start()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Info().Str("signal", sig.String()).Msg("shutting down")

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
