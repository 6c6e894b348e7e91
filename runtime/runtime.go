// Package runtime wires every civicrun component — state, ledger, security,
// policy, treasury, kernel, maintenance, the archive read-model, and
// observability — into a single value with a create/load, execute, and save
// lifecycle. It holds no hidden globals; cmd/civicctl is the only caller.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"civicrun/archive"
	"civicrun/checkpoint"
	"civicrun/config"
	"civicrun/envelope"
	"civicrun/kernel"
	"civicrun/ledger"
	"civicrun/maintenance"
	"civicrun/observability"
	"civicrun/observability/logging"
	civotel "civicrun/observability/otel"
	"civicrun/policy"
	"civicrun/security"
	"civicrun/signer"
	"civicrun/state"
	"civicrun/treasury"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Runtime is civicrun's fully-wired process: every component plus the store
// path checkpoints are persisted to.
type Runtime struct {
	Config  *config.Config
	State   *state.State
	Ledger  *ledger.Ledger
	Kernel  *kernel.Kernel
	Signers *signer.Registry
	Logger  *slog.Logger
	Archive *archive.Store
	Metrics *observability.MetricsServer

	storePath       string
	sinceCheckpoint int
	tracingShutdown func(context.Context) error
}

// New builds a fresh Runtime from cfg: empty state and ledger, a kernel
// wired to the configured security/policy/treasury engines, and (if
// cfg.Archive.Enabled) an archive read-model mirroring every ledger append.
func New(cfg *config.Config, signers *signer.Registry) (*Runtime, error) {
	logger := logging.Setup("civicrun", "production", cfg.Logging.Level, cfg.Logging.FilePath,
		cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups, cfg.Logging.MaxAgeDays)

	st := state.New()
	l := ledger.New()

	secEngine := security.New(security.Config{
		RequireSignature:     cfg.Security.RequireSignature,
		RequireKnownSigner:   cfg.Security.RequireKnownSigner,
		RequireNonce:         cfg.Security.RequireNonce,
		EnforceProposerMatch: cfg.Security.EnforceProposerMatch,
		RequireLicense:       cfg.Security.RequireLicense,
		AllowInlinePublicKey: cfg.Security.AllowInlinePublicKey,
		LicenseRequirements:  map[envelope.Kind]security.LicenseRequirement{},
	}, signers)

	craftFee := cfg.Policy.CraftFeeCC
	polEngine := policy.New(policy.Config{
		PerSettlerPerCycle: toTokenCapMap(cfg.Policy.PerSettlerMintCapsCC),
		GlobalPerCycle:     toTokenCapMap(cfg.Policy.GlobalMintCapsCC),
		CraftFeeCC:         &craftFee,
	})

	trackedReasons := make(map[string]bool, len(cfg.Treasury.TrackedReasons))
	for _, reason := range cfg.Treasury.TrackedReasons {
		trackedReasons[reason] = true
	}
	treas := treasury.New(treasury.Config{
		WeeklyCC:       cfg.Treasury.WeeklyBudgetCC,
		TrackedReasons: trackedReasons,
	})

	k := kernel.New(st, l, secEngine, polEngine, treas, kernel.WithRingDepth(cfg.RingDepth))

	rt := &Runtime{
		Config:    cfg,
		State:     st,
		Ledger:    l,
		Kernel:    k,
		Signers:   signers,
		Logger:    logger,
		storePath: cfg.StorePath,
	}

	if cfg.Archive.Enabled {
		store, err := openArchive(cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("runtime: open archive: %w", err)
		}
		rt.Archive = store
		l.OnAppend(store.Hook())
	}

	if cfg.Metrics.Enabled {
		rt.Metrics = observability.NewMetricsServer(cfg.Metrics.ListenAddress)
		rt.Metrics.Start(metricsServerErrors(logger))
	}

	if cfg.Tracing.Enabled {
		shutdown, err := civotel.Init(context.Background(), civotel.Config{
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Tracing.Environment,
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			Headers:     cfg.Tracing.Headers,
			Metrics:     cfg.Tracing.Metrics,
			Traces:      true,
		})
		if err != nil {
			logger.Error("tracing exporter did not start; spans will be recorded against the no-op provider", "error", err)
		} else {
			rt.tracingShutdown = shutdown
		}
	}

	return rt, nil
}

// metricsServerErrors returns a channel that logs any error the metrics
// server's background goroutine reports; the server itself is best-effort
// and must never take down the runtime it instruments.
func metricsServerErrors(logger *slog.Logger) chan<- error {
	ch := make(chan error, 1)
	go func() {
		if err := <-ch; err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return ch
}

// Load rebuilds a Runtime from a checkpoint at cfg.StorePath if one exists,
// falling back to New when it does not.
func Load(cfg *config.Config, signers *signer.Registry) (*Runtime, error) {
	rt, err := New(cfg, signers)
	if err != nil {
		return nil, err
	}
	if !checkpoint.Exists(cfg.StorePath) {
		return rt, nil
	}

	st, l, snapshots, err := checkpoint.Load(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("runtime: load checkpoint: %w", err)
	}
	if rt.Archive != nil {
		l.OnAppend(rt.Archive.Hook())
	}

	rt.State = st
	rt.Ledger = l
	rt.Kernel = kernel.New(st, l, rt.Kernel.Security, rt.Kernel.Policy, rt.Kernel.Treasury, kernel.WithRingDepth(cfg.RingDepth))
	rt.Kernel.RestoreRing(snapshots)
	return rt, nil
}

// Execute runs env through the kernel, recording latency/outcome metrics and
// a tracing span around the call.
func (rt *Runtime) Execute(env envelope.Envelope) (ledger.Event, error) {
	_, end := observability.StartSpan(context.Background(), "kernel.execute")
	start := time.Now()

	ev, err := rt.Kernel.Execute(env)

	observability.Kernel().Observe(string(env.Kind), err == nil, time.Since(start))
	end(err)
	if err != nil {
		return ledger.Event{}, err
	}
	rt.sinceCheckpoint++
	return ev, nil
}

// Save writes the current ledger, state, and rollback ring to the
// configured store path, so a later Load can restore rollback history
// instead of starting the ring empty.
func (rt *Runtime) Save(now time.Time) error {
	if err := checkpoint.Save(rt.storePath, rt.State, rt.Ledger, rt.Kernel.Export(), now); err != nil {
		return fmt.Errorf("runtime: save checkpoint: %w", err)
	}
	rt.sinceCheckpoint = 0
	return nil
}

// ShouldCheckpoint reports whether enough envelopes have been executed since
// the last checkpoint to warrant another save, per cfg.CheckpointEvery.
func (rt *Runtime) ShouldCheckpoint() bool {
	return rt.Config.CheckpointEvery > 0 && rt.sinceCheckpoint >= rt.Config.CheckpointEvery
}

// Maintain runs one maintenance sweep over the current state and ledger,
// recording metrics for escalations and expirations observed.
func (rt *Runtime) Maintain(now time.Time) (maintenance.Summary, error) {
	_, end := observability.StartSpan(context.Background(), "maintenance.sweep")
	summary, err := maintenance.Sweep(rt.State, rt.Ledger, now)
	end(err)
	if err != nil {
		return summary, err
	}
	rt.sinceCheckpoint++
	observability.Maintenance().RecordSweep(
		map[string]int{"job": summary.EscalatedJobs},
		map[string]int{"job": summary.ExpiredJobs},
	)
	return summary, nil
}

func openArchive(cfg config.ArchiveConfig) (*archive.Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("runtime: unsupported archive driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("runtime: connect archive db: %w", err)
	}
	return archive.Open(db)
}

// Shutdown flushes any running tracing exporter and stops the metrics
// server. Callers running a long-lived process should defer this; one-shot
// CLI commands may skip it since process exit reclaims the same resources.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if rt.tracingShutdown != nil {
		if err := rt.tracingShutdown(ctx); err != nil {
			return fmt.Errorf("runtime: shutdown tracing: %w", err)
		}
	}
	if rt.Metrics != nil {
		return rt.Metrics.Shutdown(ctx)
	}
	return nil
}

func toTokenCapMap(in map[string]int64) map[state.TokenType]int {
	out := make(map[state.TokenType]int, len(in))
	for k, v := range in {
		out[state.TokenType(k)] = int(v)
	}
	return out
}
