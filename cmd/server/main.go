package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"healthcare-records-api/internal/assistant"
	"healthcare-records-api/internal/config"
	"healthcare-records-api/internal/credential"
	"healthcare-records-api/internal/docstore"
	gweb "healthcare-records-api/internal/grpcweb"
	"healthcare-records-api/internal/handler"
	"healthcare-records-api/internal/idp"
	"healthcare-records-api/internal/middleware"
	"healthcare-records-api/internal/records"
	"healthcare-records-api/internal/rpc"
	"healthcare-records-api/internal/scope"
	"healthcare-records-api/internal/session"
	"healthcare-records-api/internal/store"
	"healthcare-records-api/internal/web"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carebook",
		Short: "Hospital records service",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC and HTTP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return run(cfg, newLogger(cfg))
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema and create Mongo indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if cfg.IDPDriver == "postgres" {
				pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
				if err != nil {
					return err
				}
				defer pool.Close()
				applied, err := store.New(pool).Migrate(ctx)
				if err != nil {
					return fmt.Errorf("migrate postgres: %w", err)
				}
				log.Info().Strs("applied", applied).Msg("postgres migrated")
			}
			if cfg.StoreDriver == "mongo" {
				m, err := docstore.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
				if err != nil {
					return err
				}
				defer m.Close(context.Background())
				if err := m.EnsureIndexes(ctx); err != nil {
					return fmt.Errorf("mongo indexes: %w", err)
				}
				log.Info().Msg("mongo indexes ensured")
			}
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx := context.Background()

	// document store
	var docs docstore.Store
	switch cfg.StoreDriver {
	case "mongo":
		m, err := docstore.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			return err
		}
		defer m.Close(context.Background())
		if err := m.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("mongo indexes")
		}
		docs = m
	default:
		log.Warn().Msg("using in-memory document store, data is lost on exit")
		docs = docstore.NewMemory()
	}
	docs = docstore.WithTimeout(docs, cfg.StoreTimeout)

	// identity provider
	var accounts idp.Accounts
	switch cfg.IDPDriver {
	case "postgres":
		pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info().Msg("connected to postgres")
		st := store.New(pool)
		if applied, err := st.Migrate(ctx); err != nil {
			log.Warn().Err(err).Msg("migration")
		} else if len(applied) > 0 {
			log.Info().Strs("applied", applied).Msg("migrations applied")
		}
		accounts = st
	default:
		log.Warn().Msg("using in-memory identity provider")
		accounts = idp.NewMemoryAccounts()
	}
	provider := idp.New(accounts, cfg.JWTSecret, cfg.IdentityDomain)

	resolver := session.NewResolver(docs, credential.New(docs), provider, cfg.JWTSecret, cfg.SessionTTL, log)
	recs := records.New(docs, scope.NewPlanner(docs), log)
	llm := assistant.NewGemini(cfg.GeminiEndpoint, cfg.GeminiModel, cfg.GeminiAPIKey, cfg.LLMTimeout)
	h := handler.New(resolver, recs, assistant.New(llm, recs, cfg.LLMTimeout, log), log)

	// grpc server
	srv := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(
			middleware.Logging(log),
			middleware.Auth(resolver),
		),
		grpc.ChainStreamInterceptor(
			middleware.LoggingStream(log),
			middleware.AuthStream(resolver),
		),
	)
	rpc.RegisterCareServer(srv, h)

	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("grpc listening")
		if err := srv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc")
		}
	}()

	// grpc-web bridge forwards browser requests to grpc on localhost
	bridge, err := gweb.New("localhost:"+cfg.Port, !cfg.IsDev(), log)
	if err != nil {
		return err
	}
	defer bridge.Close()

	e := web.New(resolver, web.Options{
		CORSOrigins:  cfg.CORSOrigins,
		SecureCookie: !cfg.IsDev(),
		Bridge:       bridge.Handler(),
	}, log)
	go func() {
		log.Info().Str("port", cfg.WebPort).Msg("http listening")
		if err := e.Start(":" + cfg.WebPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
		e.Close()
	}
	// open watch streams would hold GracefulStop forever
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		srv.Stop()
	}
	return nil
}
