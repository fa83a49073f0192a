package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rafaguilar/DynBanner-RenderGrid/internal/generate"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/server"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/store"
)

// shutdownTimeout bounds how long in-flight requests may run after a signal.
const shutdownTimeout = 10 * time.Second

var (
	serveListen  string
	serveDataDir string
	serveGemini  bool
)

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveListen, "listen", "l", "", "Listen address (default from config)")
	f.StringVar(&serveDataDir, "data-dir", "", "Directory for stored variations (default from config)")
	f.BoolVar(&serveGemini, "gemini", false, "Suggest mappings with Gemini when an API key is set")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveListen != "" {
			cfg.Listen = serveListen
		}
		if serveDataDir != "" {
			cfg.DataDir = serveDataDir
			cfg.DBPath = filepath.Join(serveDataDir, filepath.Base(cfg.DBPath))
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return err
		}
		st, err := store.Open(osfs.New(filepath.Join(cfg.DataDir, "variations")), cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(st, generate.New(generate.Options{Workers: cfg.Workers, Validate: true}, logger), logger)
		srv.Suggester = newSuggester(ctx, serveGemini)
		srv.BaseAssetPath = cfg.BaseAssetPath

		httpSrv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errc := make(chan error, 1)
		go func() {
			logger.Info("listening", zap.String("addr", cfg.Listen), zap.String("data_dir", cfg.DataDir))
			errc <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve: %w", err)
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	},
}
