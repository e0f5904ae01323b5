// Command sequence-sync loads YAML playbooks and upserts their sequences and
// templates.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"outreach_backend/internal/outreach/playbook"
	"outreach_backend/internal/outreach/repository"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/logger"
)

func main() {
	dir := flag.String("dir", "playbooks", "directory containing playbook YAML files")
	dryRun := flag.Bool("dry-run", false, "validate playbooks without writing")
	migrate := flag.Bool("migrate", true, "apply pending migrations first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	playbooks, err := playbook.LoadDir(*dir)
	if err != nil {
		log.Error("failed to load playbooks", "dir", *dir, "error", err)
		os.Exit(1)
	}
	for _, p := range playbooks {
		log.Info("playbook loaded", "id", p.ID, "name", p.Name, "steps", len(p.Steps), "templates", len(p.Templates))
	}
	if *dryRun {
		log.Info("dry run, nothing written", "playbooks", len(playbooks))
		return
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *migrate {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("failed to run database migrations", "error", err)
			os.Exit(1)
		}
	}

	n, err := playbook.Sync(ctx, repository.New(pool), playbooks)
	if err != nil {
		log.Error("playbook sync failed", "error", err)
		os.Exit(1)
	}
	log.Info("playbooks synced", "sequences", n)
}
