package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/factory"
	"workflow-dashboard/internal/util"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.LoadConfig()
	logger := util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	defer util.Sync()

	if err := cfg.Validate(); err != nil {
		util.Fatal("Invalid configuration", util.ErrorField(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	f, err := factory.NewFactory(ctx, cfg, logger)
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	router := f.Router()
	servers := buildServers(f, cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			return serve(srv, cfg)
		})
	}

	g.Go(func() error {
		return f.Limiter().RunSweeper(gctx, cfg.RateLimit.SweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		util.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				util.Error("Failed to shutdown server gracefully",
					util.String("address", srv.Addr), util.ErrorField(err))
			}
		}
		return nil
	})

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Int("servers", len(servers)),
	)

	if err := g.Wait(); err != nil {
		util.Error("Server stopped with error", util.ErrorField(err))
	}
	util.Info("Server shutdown completed")
}

// buildServers returns the API server and, for production autocert, the
// port 80 server answering ACME challenges.
func buildServers(f *factory.Factory, cfg *config.Config, router http.Handler) []*http.Server {
	api := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if !cfg.Server.EnableTLS {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port),
		)
		return []*http.Server{api}
	}

	tlsManager := f.TLSManager()
	api.TLSConfig = tlsManager.GetTLSConfig()
	api.Addr = fmt.Sprintf(":%d", cfg.Server.TLSPort)

	if cfg.IsProduction() && cfg.Server.AutoCert {
		autoCertManager := tlsManager.GetAutocertManager()
		if autoCertManager == nil {
			util.Fatal("AutoCert manager is not available in production")
		}
		api.Addr = ":443"
		challenge := &http.Server{
			Addr:              ":80",
			Handler:           autoCertManager.HTTPHandler(nil),
			ReadHeaderTimeout: 10 * time.Second,
		}
		util.Info("Starting HTTPS server with AutoCert", util.String("domain", cfg.Server.Domain))
		return []*http.Server{api, challenge}
	}

	util.Info("Starting HTTPS server",
		util.String("environment", cfg.Environment),
		util.Int("port", cfg.Server.TLSPort),
		util.Bool("auto_cert", cfg.Server.AutoCert),
	)
	return []*http.Server{api}
}

func serve(srv *http.Server, cfg *config.Config) error {
	var err error
	switch {
	case srv.TLSConfig == nil:
		err = srv.ListenAndServe()
	case cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" && !cfg.Server.AutoCert:
		err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
	default:
		// Certificates come from TLSConfig.GetCertificate.
		err = srv.ListenAndServeTLS("", "")
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s: %w", srv.Addr, err)
	}
	return nil
}
