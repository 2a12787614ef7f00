package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"dcabot/internal/config"
	"dcabot/internal/engine"
	"dcabot/internal/logger"
	"dcabot/internal/md"
	"dcabot/internal/risk"
	"dcabot/internal/scheduler"
	"dcabot/internal/state"
	"dcabot/internal/strategy"

	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	log, closer, err := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 2
	}
	defer closer.Close()
	logger.SetGlobalLogger(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := state.Open(ctx, cfg.StatePath, cfg.SeedPE())
	if err != nil {
		log.Error().Err(err).Msg("cannot open portfolio store")
		return 1
	}

	if cfg.Show {
		return show(ctx, store, log)
	}

	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, log)
	if err != nil {
		log.Error().Err(err).Msg("decision logger error")
		return 1
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close decision logger")
		}
	}()

	rules := cfg.Rules()
	eng := engine.New(
		engine.Options{Symbol: cfg.Symbol, DryRun: cfg.DryRun},
		rules,
		strategy.NewValuation(rules),
		risk.NewGate(log),
		buildFeed(cfg, log),
		store,
		decisions,
		log,
	)
	job := runJob{ctx: ctx, engine: eng, loc: cfg.Location(), log: log}

	log.Info().
		Str("symbol", cfg.Symbol).
		Str("price_source", cfg.PriceSource).
		Str("state", store.Location()).
		Bool("dry_run", cfg.DryRun).
		Msg("starting dcabot")

	if cfg.Once {
		if err := job.Run(); err != nil {
			log.Error().Err(err).Msg("run aborted")
			return 1
		}
		return 0
	}

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.Schedule, job); err != nil {
		log.Error().Err(err).Msg("invalid schedule")
		return 2
	}
	if cfg.RunOnStart {
		if err := sched.RunNow(job); err != nil {
			log.Error().Err(err).Msg("initial run failed")
		}
	}
	sched.Start()
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	sched.Stop()
	log.Info().Msg("dcabot shutdown complete")
	return 0
}

func buildFeed(cfg config.Config, log zerolog.Logger) md.Provider {
	yahoo := md.NewYahoo(md.YahooOptions{
		BaseURL: cfg.YahooBaseURL,
		Timeout: cfg.HTTPTimeout,
		Retries: cfg.HTTPRetries,
	}, log)
	if cfg.PriceSource == config.PriceSourceAlpaca {
		return md.Feed{
			Price: md.NewAlpaca(md.AlpacaOptions{
				APIKey:    cfg.APIKey,
				APISecret: cfg.APISecret,
				Feed:      cfg.Feed,
			}, log),
			Ratio: yahoo,
		}
	}
	return yahoo
}

func show(ctx context.Context, store state.Store, log zerolog.Logger) int {
	p, err := store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Str("state", store.Location()).Msg("cannot load portfolio")
		return 1
	}
	log.Info().
		Stringer("cash", p.Cash).
		Stringer("shares", p.Shares).
		Stringer("total_invested", p.TotalInvested).
		Stringer("last_pe", p.LastPE).
		Ints("funded_years", p.FundedYears).
		Msg("portfolio")
	for _, entry := range p.History {
		log.Info().Msg(entry)
	}
	return 0
}

// runJob adapts one engine run to the scheduler. Each run decides
// today's date in the configured timezone.
type runJob struct {
	ctx    context.Context
	engine *engine.Engine
	loc    *time.Location
	log    zerolog.Logger
}

func (j runJob) Name() string { return "dca-run" }

// Run turns a panic into an error so once mode fails the same way a
// scheduled run does under cron.Recover.
func (j runJob) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			j.log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("run panicked, portfolio not saved")
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return j.engine.Run(j.ctx, time.Now().In(j.loc))
}
