package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/milkdiary/internal/backup"
	"github.com/dukerupert/milkdiary/internal/config"
	"github.com/dukerupert/milkdiary/internal/database"
	"github.com/dukerupert/milkdiary/internal/handler"
	"github.com/dukerupert/milkdiary/internal/logging"
	"github.com/dukerupert/milkdiary/internal/middleware"
	"github.com/dukerupert/milkdiary/internal/mutator"
	"github.com/dukerupert/milkdiary/internal/offline"
	"github.com/dukerupert/milkdiary/internal/server"
	"github.com/dukerupert/milkdiary/internal/sheet"
	"github.com/dukerupert/milkdiary/internal/store"
	"github.com/dukerupert/milkdiary/internal/task"
	"github.com/dukerupert/milkdiary/internal/tui"
	ws "github.com/dukerupert/milkdiary/internal/websocket"
)

type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.configPath)
}

func main() {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "milkdiary",
		Short:         "Study diary for a daily and monthly task sheet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFileName, "path to the TOML config file")

	root.AddCommand(serveCmd(opts))
	root.AddCommand(refreshCmd(opts))
	root.AddCommand(tuiCmd(opts))
	root.AddCommand(offlineCmd(opts))
	root.AddCommand(backupCmd(opts))
	root.AddCommand(configCmd(opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newRefresher returns nil when no sheet source is configured.
func newRefresher(cfg config.Config, sheets *store.SheetStore, logger *slog.Logger, opts ...sheet.Option) (*sheet.Refresher, error) {
	src, err := sheet.FromConfig(cfg.Source)
	if errors.Is(err, sheet.ErrNoSource) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sheet source: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	opts = append([]sheet.Option{sheet.WithLocation(loc)}, opts...)
	return sheet.NewRefresher(src, sheets, logger, opts...), nil
}

func newBackupManager(cfg config.Config, db *sql.DB, callback backup.StatusCallback, logger *slog.Logger) (*backup.Manager, error) {
	interval, err := cfg.Backup.IntervalDuration()
	if err != nil {
		return nil, err
	}
	b := cfg.Backup
	return backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  b.Endpoint,
			Bucket:    b.Bucket,
			Region:    b.Region,
			AccessKey: b.AccessKey,
			SecretKey: b.SecretKey,
		},
		Prefix:     b.Prefix,
		Passphrase: b.Passphrase,
		Interval:   interval,
		Retention:  time.Duration(b.RetentionDays) * 24 * time.Hour,
	}, db, store.NewBackupStore(db), callback, logger), nil
}

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web app, completion API and realtime hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			interval, err := cfg.Source.RefreshDuration()
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			ctx, stop := signalContext()
			defer stop()

			hub := ws.NewHub(logger)
			r, err := newRefresher(cfg, store.NewSheetStore(db), logger,
				sheet.WithInterval(interval),
				sheet.WithNotify(func(stamp time.Time) {
					hub.Broadcast(ws.SheetRefreshed(stamp))
				}),
			)
			if err != nil {
				return err
			}
			var refresher handler.SheetRefresher
			if r != nil {
				r.Start(ctx)
				defer r.Stop()
				refresher = r
			} else {
				logger.Warn("no sheet source configured, serving cached rows only")
			}

			backups, err := newBackupManager(cfg, db, func(st backup.Status) {
				hub.Broadcast(ws.BackupStatus(string(st.State), st.LastBackup, st.Error))
			}, logger)
			if err != nil {
				return err
			}
			if backups.Enabled() {
				backups.Start(ctx)
				defer backups.Stop()
			}

			srv, err := server.New(db, hub, refresher, server.Config{
				Variant:   task.ParseVariant(cfg.DailyVariant),
				Location:  loc,
				CacheName: cfg.Offline.CacheName,
			}, logger)
			if err != nil {
				return err
			}
			srv.RateLimiter().StartCleanup(ctx, 5*time.Minute)

			httpServer := &http.Server{
				Addr:         ":" + cfg.Port,
				Handler:      srv.Router(),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("milkdiary running", "addr", "http://localhost:"+cfg.Port)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}

func refreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the sheets once and replace the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			sheets := store.NewSheetStore(db)
			r, err := newRefresher(cfg, sheets, logger)
			if err != nil {
				return err
			}
			if r == nil {
				return sheet.ErrNoSource
			}

			ctx, stop := signalContext()
			defer stop()
			stamp, err := r.Refresh(ctx)
			if err != nil {
				return err
			}
			tables, err := sheets.Tables()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cached %d monthly and %d daily rows at %s\n",
				len(tables.Monthly), len(tables.Daily), stamp.Format(time.RFC3339))
			return nil
		},
	}
}

func tuiCmd(opts *rootOptions) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal client against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if serverURL == "" {
				serverURL = cfg.Client.ServerURL
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			// The terminal belongs to the program, so logs go to a file.
			var w io.Writer = io.Discard
			if cfg.Client.LogFile != "" {
				f, err := os.OpenFile(cfg.Client.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				w = f
			}
			logger := logging.New(w, cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signalContext()
			defer stop()
			return tui.Run(ctx, mutator.NewClient(serverURL, nil), tui.Options{
				Variant:  task.ParseVariant(cfg.DailyVariant),
				Location: loc,
			}, logger)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server base URL (defaults to client.server_url)")
	return cmd
}

func offlineCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "offline",
		Short: "Serve the app shell cache-first in front of the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			worker, err := offline.NewWorker(cfg.Offline.CacheName, cfg.Offline.Upstream,
				store.NewAssetStore(db), &http.Client{Timeout: 30 * time.Second}, logger)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			// A failed install keeps the previous caches; only a complete
			// install may retire them.
			if err := worker.Install(ctx); err != nil {
				logger.Warn("install failed, serving existing cache", "error", err)
			} else if err := worker.Activate(); err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:         cfg.Offline.Listen,
				Handler:      middleware.RequestLogger(logger.With("component", "http"))(worker),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("offline cache running", "addr", cfg.Offline.Listen, "upstream", cfg.Offline.Upstream, "cache", worker.CacheName())
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("offline server error: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}

func backupCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Encrypted database backups in S3-compatible storage",
	}

	// withManager opens the database and an enabled manager for one command.
	withManager := func(fn func(ctx context.Context, cfg config.Config, m *backup.Manager, bs *store.BackupStore) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			m, err := newBackupManager(cfg, db, nil, logger)
			if err != nil {
				return err
			}
			if !m.Enabled() {
				return fmt.Errorf("%w: set backup.bucket and backup.passphrase", backup.ErrDisabled)
			}
			ctx, stop := signalContext()
			defer stop()
			return fn(ctx, cfg, m, store.NewBackupStore(db))
		}
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Take a backup now and apply the retention policy",
		RunE: withManager(func(ctx context.Context, cfg config.Config, m *backup.Manager, _ *store.BackupStore) error {
			b, err := m.Run(ctx)
			if err != nil {
				return err
			}
			removed, err := m.Cleanup(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("uploaded backup %d to %s (%d bytes), removed %d expired\n", b.ID, b.ObjectKey, b.SizeBytes, removed)
			return nil
		}),
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded backups, newest first",
		RunE: withManager(func(ctx context.Context, cfg config.Config, _ *backup.Manager, bs *store.BackupStore) error {
			list, err := bs.List(limit)
			if err != nil {
				return err
			}
			for _, b := range list {
				line := fmt.Sprintf("%4d  %-9s  %s  %d bytes", b.ID, b.Status, b.CreatedAt.Format(time.RFC3339), b.SizeBytes)
				if b.ErrorMessage != "" {
					line += "  " + b.ErrorMessage
				}
				fmt.Println(line)
			}
			return nil
		}),
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "number of backups to show")

	var target string
	restoreCmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Download, verify and install a backup (stop the server first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid backup id %q", args[0])
			}
			return withManager(func(ctx context.Context, cfg config.Config, m *backup.Manager, _ *store.BackupStore) error {
				dst := target
				if dst == "" {
					dst = cfg.DBPath
				}
				if err := m.Restore(ctx, id, dst); err != nil {
					return err
				}
				fmt.Println("restored backup", id, "to", dst)
				return nil
			})(cmd, args)
		},
	}
	restoreCmd.Flags().StringVar(&target, "to", "", "destination path (defaults to db_path)")

	cmd.AddCommand(runCmd, listCmd, restoreCmd)
	return cmd
}

func configCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", opts.configPath)
			}
			if err := config.Write(opts.configPath, config.Default()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", opts.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
