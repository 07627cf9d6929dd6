package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/slabkit/slab"
	"github.com/joshuapare/slabkit/slab/metrics"
)

type stressOptions struct {
	threads     int
	ops         int
	maxSize     int
	live        int
	remoteRatio float64
	seed        uint64
	metricsAddr string
	linger      time.Duration
}

var stressOpts = stressOptions{
	threads:     8,
	ops:         100_000,
	maxSize:     4096,
	live:        256,
	remoteRatio: 0.25,
	seed:        1,
}

func init() {
	cmd := newStressCmd()
	f := cmd.Flags()
	f.IntVarP(&stressOpts.threads, "threads", "t", stressOpts.threads, "Worker goroutines, each with its own thread slot")
	f.IntVarP(&stressOpts.ops, "ops", "n", stressOpts.ops, "Allocations per worker")
	f.IntVar(&stressOpts.maxSize, "max-size", stressOpts.maxSize, "Largest request size in bytes")
	f.IntVar(&stressOpts.live, "live", stressOpts.live, "Allocations each worker keeps alive before freeing")
	f.Float64Var(&stressOpts.remoteRatio, "remote-ratio", stressOpts.remoteRatio, "Fraction of allocations freed by another worker")
	f.Uint64Var(&stressOpts.seed, "seed", stressOpts.seed, "Workload seed")
	f.StringVar(&stressOpts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	f.DurationVar(&stressOpts.linger, "linger", 0, "Keep serving metrics this long after the run")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Run a concurrent allocate/free workload",
		Long: `The stress command runs worker goroutines that allocate random sizes, keep
a window of live allocations, and pass a fraction of them to a neighbour to
free remotely. Every worker verifies its page chains before detaching.

Example:
  slabctl stress --threads 16 --ops 1000000
  slabctl stress --remote-ratio 0.9 --metrics-addr :9090 --linger 1m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runStress(ctx, stressOpts)
		},
	}
}

// StressResult summarises a run.
type StressResult struct {
	Threads  int           `json:"threads"`
	Ops      int           `json:"ops"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	OpsPerS  float64       `json:"ops_per_second"`
	Stats    slab.Stats    `json:"stats"`
	Verified bool          `json:"verified"`
}

func runStress(ctx context.Context, o stressOptions) error {
	if o.threads < 1 || o.ops < 0 || o.maxSize < 1 || o.live < 1 {
		return errors.New("threads, max-size and live must be positive")
	}
	if o.remoteRatio < 0 || o.remoteRatio > 1 {
		return fmt.Errorf("remote-ratio %v out of range [0,1]", o.remoteRatio)
	}

	cfg := slab.DefaultConfig()
	cfg.MaxThreads = o.threads
	a, err := slab.New(&cfg)
	if err != nil {
		return err
	}

	if o.metricsAddr != "" {
		srv, err := serveMetrics(a, o.metricsAddr)
		if err != nil {
			return err
		}
		defer srv.Close()
	}

	start := time.Now()
	if err := stress(ctx, a, o); err != nil {
		return err
	}
	elapsed := time.Since(start)

	res := StressResult{
		Threads:  o.threads,
		Ops:      o.threads * o.ops,
		Elapsed:  elapsed,
		OpsPerS:  float64(o.threads*o.ops) / elapsed.Seconds(),
		Stats:    a.Stats(),
		Verified: true,
	}
	if jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printStress(res)
	}

	if o.metricsAddr != "" && o.linger > 0 {
		printVerbose("serving metrics on %s for %s\n", o.metricsAddr, o.linger)
		select {
		case <-ctx.Done():
		case <-time.After(o.linger):
		}
	}
	return nil
}

// stress runs the workload. Each worker owns an inbox; remote frees are sent
// to the next worker's inbox and drained opportunistically.
func stress(ctx context.Context, a *slab.Allocator, o stressOptions) error {
	inbox := make([]chan uintptr, o.threads)
	for i := range inbox {
		inbox[i] = make(chan uintptr, 4096)
	}

	var produced sync.WaitGroup
	produced.Add(o.threads)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < o.threads; w++ {
		g.Go(func() error {
			done := false
			defer func() {
				if !done {
					produced.Done()
				}
			}()
			return a.Run(func(th *slab.Thread) error {
				r := rand.New(rand.NewSource(o.seed + uint64(w)))
				window := make([]uintptr, 0, o.live)
				drain := func() {
					for {
						select {
						case p := <-inbox[w]:
							th.Free(ptrOf(p))
						default:
							return
						}
					}
				}

				for i := 0; i < o.ops; i++ {
					if i%1024 == 0 && ctx.Err() != nil {
						break
					}
					p := uintptr(th.Alloc(1 + r.Intn(o.maxSize)))
					if p == 0 {
						return fmt.Errorf("worker %d: allocation failed", w)
					}
					*(*byte)(ptrOf(p)) = byte(w)

					if r.Float64() < o.remoteRatio {
						select {
						case inbox[(w+1)%o.threads] <- p:
							continue
						default:
						}
					}
					window = append(window, p)
					if len(window) == o.live {
						victim := r.Intn(len(window))
						th.Free(ptrOf(window[victim]))
						window[victim] = window[len(window)-1]
						window = window[:len(window)-1]
					}
					if i%64 == 0 {
						drain()
					}
				}
				for _, p := range window {
					th.Free(ptrOf(p))
				}

				done = true
				produced.Done()
				produced.Wait()
				drain()
				if err := th.Verify(); err != nil {
					return fmt.Errorf("worker %d: %w", w, err)
				}
				return ctx.Err()
			})
		})
	}
	return g.Wait()
}

func serveMetrics(a *slab.Allocator, listen string) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(a, "slabkit", nil),
		collectors.NewGoCollector(),
	)
	srv := &http.Server{
		Addr:              listen,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			printVerbose("metrics server: %v\n", err)
		}
	}()
	printVerbose("metrics on http://%s/metrics\n", ln.Addr())
	return srv, nil
}

func printStress(r StressResult) {
	s := r.Stats
	printInfo("threads %d, ops %d in %s (%.0f ops/s)\n", r.Threads, r.Ops, r.Elapsed.Round(time.Millisecond), r.OpsPerS)
	printInfo("  allocs %d, local frees %d, remote frees %d\n", s.Allocs, s.LocalFrees, s.RemoteFrees)
	printInfo("  merges %d (%d slots)\n", s.Merges, s.MergedSlots)
	printInfo("  superpages reserved %d, unmapped %d (%d by remote drain), live %d, conflicts %d\n",
		s.Superpages, s.Unmaps, s.RemoteUnmaps, s.LiveSuperpages(), s.Conflicts)
	printInfo("  huge %d allocated, %d freed\n", s.HugeAllocs, s.HugeFrees)
	printInfo("  remote-free pool: %d blocks, %d buffers attached\n", s.PoolBlocks, s.PoolBuffersUsed)
	printInfo("  chains verified\n")
}
