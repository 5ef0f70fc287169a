// Copyright 2026 Zextras S.r.l.
// SPDX-License-Identifier: Apache-2.0

// Command mirrord is the package repository mirror service's CLI: a
// root command holding the shared --config flag and three subcommands
// -- check, sync, server -- per spec §6.5.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zextras/mirrord/internal/mirror/api"
	"github.com/zextras/mirrord/internal/mirror/config"
	"github.com/zextras/mirrord/internal/mirror/lock"
	"github.com/zextras/mirrord/internal/mirror/sched"
	"github.com/zextras/mirrord/internal/mirror/sync"
)

var (
	configPath = flag.String("config", "/etc/mirrord/config.yaml", "Path to the YAML configuration file")
	repoFlag   = flag.String("repo", "all", `Repository name, or "all"`)
)

var rootCmd = &cobra.Command{
	Use:   "mirrord [subcommand]",
	Short: "A Debian/Red Hat package repository mirror service",
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file and exit",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := config.Load(*configPath); err != nil {
			log.Fatal(errors.Wrap(err, "invalid configuration"))
		}
		log.Println("configuration is valid")
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization of --repo (or every configured repo) and exit",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatal(errors.Wrap(err, "loading configuration"))
		}
		repos, err := reposToRun(cfg, *repoFlag)
		if err != nil {
			log.Fatal(err)
		}

		engine := sync.NewEngine(cfg.General, lock.NewManager())
		ctx := cmd.Context()
		failed := false
		for _, repo := range repos {
			log.Printf("mirrord: synchronizing %s", repo.Name)
			if err := engine.Sync(ctx, repo); err != nil {
				log.Printf("mirrord: %s failed: %v", repo.Name, err)
				failed = true
				continue
			}
			log.Printf("mirrord: %s fully synchronized", repo.Name)
		}
		if failed {
			os.Exit(1)
		}
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the scheduler and control API until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatal(errors.Wrap(err, "loading configuration"))
		}

		locks := lock.NewManager()
		engine := sync.NewEngine(cfg.General, locks)
		scheduler := sched.New(cfg.General, locks, engine, cfg.Repo)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go scheduler.Run(ctx)

		srv := &http.Server{
			Addr:    cfg.General.BindAddress,
			Handler: api.NewMux(cfg.General, scheduler),
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.General.TimeoutDuration())
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		log.Printf("mirrord: listening on %s", cfg.General.BindAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(errors.Wrap(err, "serving control API"))
		}
	},
}

// reposToRun resolves --repo into the configured repositories it names:
// every repo for "all", or the single named repo.
func reposToRun(cfg *config.Config, name string) ([]config.Repository, error) {
	if name == "all" {
		return cfg.Repo, nil
	}
	repo, ok := cfg.Find(name)
	if !ok {
		return nil, errors.Errorf("unknown repository %q", name)
	}
	return []config.Repository{repo}, nil
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serverCmd)

	for _, cmd := range []*cobra.Command{checkCmd, syncCmd, serverCmd} {
		cmd.Flags().AddGoFlag(flag.Lookup("config"))
	}
	syncCmd.Flags().AddGoFlag(flag.Lookup("repo"))
}

func main() {
	flag.Parse()
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
