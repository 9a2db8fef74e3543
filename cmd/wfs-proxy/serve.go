package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/delta10/wfs-proxy/internal/config"
	"github.com/delta10/wfs-proxy/internal/logs"
	"github.com/delta10/wfs-proxy/internal/proxy"
	"github.com/delta10/wfs-proxy/internal/schema"
)

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logs.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var opts []proxy.Option
	if cfg.Schema != "" {
		appSchema, err := schema.Load(cfg.Schema)
		if err != nil {
			return err
		}
		opts = append(opts, proxy.WithSchema(appSchema))
	}
	if cfg.JwksURL != "" {
		jwks, err := proxy.NewJWKS(cfg.JwksURL, logger)
		if err != nil {
			return err
		}
		opts = append(opts, proxy.WithJWKS(jwks))
	}

	server, err := proxy.New(cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer server.Close()

	s := &http.Server{
		Addr:           cfg.ListenAddress,
		Handler:        server.Router(),
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", cfg.ListenAddress))
		if cfg.ListenTLS.Certificate != "" && cfg.ListenTLS.Key != "" {
			errc <- s.ListenAndServeTLS(cfg.ListenTLS.Certificate, cfg.ListenTLS.Key)
		} else {
			errc <- s.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}
