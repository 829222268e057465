package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/spf13/cobra"

	"euromillions/internal/config"
	"euromillions/internal/extract"
	"euromillions/internal/fetcher"
	"euromillions/internal/handlers"
	"euromillions/internal/services"
	"euromillions/internal/store"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 5 * time.Second
)

var (
	flagVerbose bool
	flagDate    string

	cfg *config.Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var closeLog func()
	cmd := &cobra.Command{
		Use:          "euromillions",
		Short:        "Sync and serve EuroMillions draw results",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			if flagVerbose {
				cfg.Log.Verbose = true
			}
			closeLog, err = initLogger(cfg.Log)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closeLog != nil {
				closeLog()
			}
		},
	}
	cmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose logging")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch, extract and store the latest draw, or the draw of --date",
		Args:  cobra.NoArgs,
		RunE:  runSync,
	}
	syncCmd.Flags().StringVar(&flagDate, "date", "", "Draw date (YYYY-MM-DD)")

	parseCmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Extract a draw from a saved HTML page without storing it",
		Args:  cobra.ExactArgs(1),
		RunE:  runParse,
	}
	parseCmd.Flags().StringVar(&flagDate, "date", "", "Draw date (YYYY-MM-DD)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}, syncCmd, parseCmd)
	return cmd
}

func initLogger(c config.LogConfig) (func(), error) {
	var out io.Writer = io.Discard
	var file *os.File
	if c.File != "" {
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		out, file = f, f
	}
	l := logger.Init("euromillions", true, false, out)
	if c.Verbose {
		logger.SetLevel(1)
	}
	return func() {
		l.Close()
		if file != nil {
			file.Close()
		}
	}, nil
}

func newService() (*services.DrawService, *store.Store, error) {
	st, err := store.Open(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	f := fetcher.New(fetcher.Options{
		Timeout:           cfg.Fetch.Timeout,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Burst:             cfg.Fetch.Burst,
		UserAgent:         cfg.Fetch.UserAgent,
	})
	svc := services.NewDrawService(f, st, services.Options{
		Sources: cfg.Sources,
		Window:  cfg.Extract.Window,
		Version: version,
	})
	return svc, st, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Open the draw store and create the schema
	svc, st, err := newService()
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.EnsureSchema(cmd.Context()); err != nil {
		return err
	}
	logger.Infof("Using %s store", st.Driver())

	// 2. Initialize the HTTP Handler
	httpHandler := handlers.NewHTTPHandler(svc, version)

	// 3. Set up the Gin router
	gin.SetMode(cfg.Server.Mode)
	r := gin.Default()

	// 4. Register public routes
	httpHandler.RegisterPublicRoutes(r)

	// 5. Group the routes that reach the source and apply per-client limiting
	syncRoutes := r.Group("/")
	syncRoutes.Use(handlers.RateLimit(cfg.RateLimit))
	httpHandler.RegisterSyncRoutes(syncRoutes)

	// 6. Start the background sync of the latest draw
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Sync.Interval > 0 {
		go svc.RunScheduler(ctx, cfg.Sync.Interval)
		logger.Infof("Background sync every %s", cfg.Sync.Interval)
	}

	// 7. Run the server until interrupted
	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: r}
	logger.Infof("Server starting on %s", srv.Addr)
	return serveUntilDone(ctx, srv)
}

// serveUntilDone runs srv until ctx is done, then lets in-flight requests
// finish within shutdownTimeout.
func serveUntilDone(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("running server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	svc, st, err := newService()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	var report any
	if flagDate == "" {
		report, err = svc.SyncLatest(ctx)
	} else {
		date, perr := extract.ParseDate(flagDate)
		if perr != nil {
			return perr
		}
		report, err = svc.SyncDate(ctx, date)
	}
	if printErr := printJSON(cmd.OutOrStdout(), report); printErr != nil {
		return printErr
	}
	return err
}

func runParse(cmd *cobra.Command, args []string) error {
	body, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	var target time.Time
	if flagDate != "" {
		if target, err = extract.ParseDate(flagDate); err != nil {
			return err
		}
	}
	svc := services.NewDrawService(nil, nil, services.Options{Window: cfg.Extract.Window, Version: version})
	res, err := svc.ParseDocument(body, target)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
