package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/sessionkit"
)

type loadtestOptions struct {
	configFile  string
	sessions    int
	concurrency int
	ops         int
	backend     string
	redisAddr   string
}

type sessionState struct {
	mu     sync.Mutex
	tokens *sessionkit.SessionTokens
}

// NewLoadtestCmd creates the loadtest subcommand.
func NewLoadtestCmd() *cobra.Command {
	opts := loadtestOptions{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure verify and rotate throughput",
		Long: `Seed sessions, then run a verify phase and a rotate phase against an
in-process Engine. The ledger is process memory, an embedded miniredis, or
a real Redis at --redis-addr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := sessionkit.LoadConfig(opts.configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "", "YAML config file")
	cmd.Flags().IntVar(&opts.sessions, "sessions", 1000, "number of sessions to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 20000, "operations per phase")
	cmd.Flags().StringVar(&opts.backend, "backend", "memory", "refresh ledger (memory|miniredis|redis)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address for --backend=redis (default $REDIS_ADDR)")
	sessionkit.RegisterFlags(cmd.Flags())

	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, cfg sessionkit.Config, opts loadtestOptions) error {
	if opts.sessions <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("sessions, concurrency, and ops must be > 0")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if len(cfg.Token.PrivateKey) == 0 {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return oops.Code("KEYGEN_FAILED").Wrap(err)
		}
		cfg.Token.SigningMethod = "ed25519"
		cfg.Token.PrivateKey = priv
		fmt.Fprintln(out, "no signing key configured, using an ephemeral ed25519 key")
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	builder := sessionkit.New().WithConfig(cfg)
	cleanup, err := attachBackend(out, builder, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	states := make([]sessionState, opts.sessions)
	fmt.Fprintf(out, "seeding %d sessions...\n", opts.sessions)
	startSeed := time.Now()
	for i := range states {
		tokens, err := engine.IssueSession(ctx, int64(i+1))
		if err != nil {
			return oops.With("session", i).Wrap(err)
		}
		states[i].tokens = tokens
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(opts, func(r *mrand.Rand) error {
		state := &states[r.IntN(len(states))]
		state.mu.Lock()
		access := state.tokens.AccessToken
		state.mu.Unlock()
		_, err := engine.VerifyAccess(ctx, access)
		return err
	})

	rotateStats := runPhase(opts, func(r *mrand.Rand) error {
		state := &states[r.IntN(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()
		next, err := engine.Rotate(ctx, state.tokens.AccessToken, state.tokens.RefreshToken)
		if err != nil {
			return err
		}
		state.tokens = next
		return nil
	})

	winners, racers := raceRotate(ctx, engine, states[0].tokens, opts.concurrency)

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "verify", verifyStats)
	printStats(out, "rotate", rotateStats)
	fmt.Fprintf(out, "replay race: winners=%d racers=%d\n", winners, racers)

	snap := engine.MetricsSnapshot()
	fmt.Fprintf(out, "rotate_success=%d rotate_failure=%d ledger_unavailable=%d\n",
		snap.Counters[sessionkit.MetricRotateSuccess],
		snap.Counters[sessionkit.MetricRotateFailure],
		snap.Counters[sessionkit.MetricLedgerUnavailable],
	)
	if winners != 1 {
		return oops.Code("SINGLE_USE_VIOLATED").With("winners", winners).Errorf("refresh token redeemed more than once")
	}
	return nil
}

// raceRotate presents the same pair from n goroutines at once. Exactly one
// may win.
func raceRotate(ctx context.Context, engine *sessionkit.Engine, tokens *sessionkit.SessionTokens, n int) (int64, int) {
	if n < 2 {
		n = 2
	}
	var (
		wg      sync.WaitGroup
		winners int64
		start   = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := engine.Rotate(ctx, tokens.AccessToken, tokens.RefreshToken); err == nil {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	return winners, n
}

func attachBackend(out io.Writer, b *sessionkit.Builder, opts loadtestOptions) (func(), error) {
	switch opts.backend {
	case "memory":
		fmt.Fprintln(out, "using in-memory ledger")
		return func() {}, nil
	case "miniredis":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, oops.Code("BACKEND_FAILED").Wrap(err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		b.WithRedis(client)
		fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
		return func() {
			_ = client.Close()
			mr.Close()
		}, nil
	case "redis":
		addr := opts.redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		if addr == "" {
			return nil, oops.Code("CONFIG_INVALID").Errorf("--redis-addr or REDIS_ADDR is required for the redis backend")
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		b.WithRedis(client)
		fmt.Fprintf(out, "using redis at %s\n", addr)
		return func() { _ = client.Close() }, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("backend", opts.backend).Errorf("unknown backend")
	}
}

func runPhase(opts loadtestOptions, op func(*mrand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, opts.ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= opts.ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
