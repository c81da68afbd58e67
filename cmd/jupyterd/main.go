package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-jupyter/internal/activity"
	api "github.com/mind-engage/mindengage-jupyter/internal/api/http"
	"github.com/mind-engage/mindengage-jupyter/internal/availability"
	auth "github.com/mind-engage/mindengage-jupyter/internal/auth/middleware"
	"github.com/mind-engage/mindengage-jupyter/internal/config"
	"github.com/mind-engage/mindengage-jupyter/internal/db"
	"github.com/mind-engage/mindengage-jupyter/internal/gradeservice"
	"github.com/mind-engage/mindengage-jupyter/internal/httpx"
	"github.com/mind-engage/mindengage-jupyter/internal/jupyterhub"
	"github.com/mind-engage/mindengage-jupyter/internal/logger"
	"github.com/mind-engage/mindengage-jupyter/internal/storage"
	"github.com/mind-engage/mindengage-jupyter/internal/submission"
)

func main() {
	cmdRoot := &cobra.Command{
		Use:          "jupyterd",
		Short:        "notebook activity service for JupyterHub and the gradeservice",
		SilenceUsage: true,
	}

	cmdServe := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(cfg config.Config, log *logger.Logger) error {
				if err := cfg.Validate(); err != nil {
					return err
				}
				return serve(cmd.Context(), cfg, log)
			})
		},
	}
	cmdRoot.AddCommand(cmdServe)

	cmdMigrate := &cobra.Command{
		Use:   "migrate",
		Short: "create the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(cfg config.Config, log *logger.Logger) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				defer dbh.Close()
				log.Info("schema ready", "driver", cfg.DBDriver)
				return nil
			})
		},
	}
	cmdRoot.AddCommand(cmdMigrate)

	cmdCheckHub := &cobra.Command{
		Use:   "check-hub [url]",
		Short: "probe whether a URL is served by a JupyterHub",
		Long: "   Sends an unauthenticated request and expects a 401 carrying the\n" +
			"   JupyterHub version header. Loopback URLs are retried once through\n" +
			"   host.docker.internal. Defaults to JUPYTERHUB_URL.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(cfg config.Config, log *logger.Logger) error {
				target := cfg.JupyterHubURL
				if len(args) == 1 {
					target = args[0]
				}
				if target == "" {
					return errors.New("no url given and JUPYTERHUB_URL unset")
				}
				probe, err := httpx.New(httpx.Config{Timeout: cfg.HTTPTimeout})
				if err != nil {
					return err
				}
				v := availability.New(probe, log).CheckReachable(cmd.Context(), target)
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", target, v)
				if v != availability.Reachable {
					return fmt.Errorf("%s is not a reachable JupyterHub", target)
				}
				return nil
			})
		},
	}
	cmdRoot.AddCommand(cmdCheckHub)

	var tokenRole string
	cmdToken := &cobra.Command{
		Use:   "token <subject>",
		Short: "issue a session token for the activity API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(cfg config.Config, _ *logger.Logger) error {
				tok, err := auth.NewAuthService(cfg.AuthHMACSecret).IssueJWT(args[0], tokenRole)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			})
		},
	}
	cmdToken.Flags().StringVar(&tokenRole, "role", "teacher", "role claim: student, teacher or admin")
	cmdRoot.AddCommand(cmdToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func withEnv(fn func(config.Config, *logger.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()
	return fn(cfg, log)
}

func serve(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	octx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(octx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer dbh.Close()

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	files := storage.NewFileStore(dbh, bs)
	store := activity.NewSQLStore(dbh, cfg.DBDriver)

	hubClient, err := httpx.New(httpx.Config{
		BaseURL:   cfg.JupyterHubURL,
		Timeout:   cfg.HTTPTimeout,
		Container: cfg.IsContainer,
		Token:     cfg.JupyterHubToken,
	})
	if err != nil {
		return err
	}
	gradeClient, err := httpx.New(httpx.Config{
		BaseURL:   cfg.GradeServiceURL,
		Timeout:   cfg.HTTPTimeout,
		Container: cfg.IsContainer,
	})
	if err != nil {
		return err
	}
	probe, err := httpx.New(httpx.Config{Timeout: cfg.HTTPTimeout})
	if err != nil {
		return err
	}

	hubTokens := auth.NewHubTokens(cfg.JupyterHubJWTSecret)
	hub := jupyterhub.New(hubClient, log.With("component", "jupyterhub"))
	grader := gradeservice.New(gradeClient, files, store, hub, log.With("component", "gradeservice"))

	router := api.NewRouter(api.Deps{
		Store:         store,
		Files:         files,
		Activities:    activity.NewService(store, grader, hub, files, hubTokens, cfg.JupyterHubURL, log.With("component", "activity")),
		Reconciler:    submission.New(grader, store, log.With("component", "submission")),
		Checker:       availability.New(probe, log),
		HubURL:        cfg.JupyterHubURL,
		Auth:          auth.NewAuthService(cfg.AuthHMACSecret),
		HubTokens:     hubTokens,
		AdminUser:     cfg.AdminUser,
		AdminPassHash: cfg.AdminPassHash,
		CORSOrigins:   cfg.CORSOrigins,
		Timeout:       2*cfg.HTTPTimeout + 10*time.Second,
		Log:           log,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver, "hub", cfg.JupyterHubURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
