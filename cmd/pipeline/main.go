// Command pipeline runs the ingest -> load -> derive -> recommend ->
// audit pipeline for the single tenant named by the -tenant flag.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iaros/vintage-crm-core/internal/config"
	"github.com/iaros/vintage-crm-core/internal/lock"
	"github.com/iaros/vintage-crm-core/internal/logging"
	"github.com/iaros/vintage-crm-core/internal/orchestrator"
	"github.com/iaros/vintage-crm-core/internal/scoring"
	"github.com/iaros/vintage-crm-core/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to pipeline config YAML")
	tenantID := flag.Int64("tenant", 0, "tenant to run the pipeline for")
	concurrency := flag.Int("concurrency", 4, "max tenants processed concurrently")
	flag.Parse()

	log := logging.New("vintage-crm-pipeline")
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Sugar().Fatalw("load config", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
	defer cancel()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.New(cfg.DatabaseURL)
	if err != nil {
		log.Sugar().Fatalw("open store", "error", err)
	}
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	locker := lock.New(rdb)

	scoringCfg := scoring.Default()

	opts := orchestrator.Options{
		TopN:              cfg.DefaultTopN,
		SilenceWindowDays: cfg.SilenceWindowDays,
		KMeansSeed:        cfg.KMeansSeed,
		ClusterCount:      0,
		CodeVersion:       "dev",
		ScoringConfig:     scoringCfg,
		BatchSize:         200,
		DataDir:           cfg.DataDir,
	}

	tenantIDs := []int64{*tenantID}
	if *tenantID == 0 {
		log.Sugar().Fatalw("missing -tenant flag")
	}

	started := time.Now()
	outcomes := orchestrator.RunAll(sigCtx, s, locker, log, tenantIDs, *concurrency, opts)

	for _, outcome := range outcomes {
		tenantLog := log.WithTenant(outcome.TenantID)
		if outcome.Success {
			tenantLog.Sugar().Infow("tenant run completed",
				"run_id", outcome.RunID, "duration", outcome.TotalDuration)
		} else {
			tenantLog.Sugar().Errorw("tenant run failed",
				"errors", outcome.Errors, "duration", outcome.TotalDuration)
		}
	}

	log.Sugar().Infow("pipeline finished", "total_duration", time.Since(started))
}
