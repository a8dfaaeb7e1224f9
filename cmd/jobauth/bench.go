package main

import (
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/pyjobs/jobauth"
)

func newBenchCommand(a *app) *cobra.Command {
	var (
		subjects    int
		concurrency int
		ops         int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure issue and verify throughput with the configured keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subjects <= 0 || concurrency <= 0 || ops <= 0 {
				return fmt.Errorf("subjects, concurrency, and ops must be > 0")
			}
			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			if !e.CanIssue() {
				return jobauth.ErrIssuerDisabled
			}

			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			tokens := make([]string, subjects)
			fmt.Fprintf(out, "issuing %d tokens...\n", subjects)
			issueStats := runPhase(ops, concurrency, func(i int, _ *rand.Rand) error {
				token, _, err := e.Issue(ctx, fmt.Sprint(i%subjects))
				if err == nil && i < subjects {
					tokens[i] = token
				}
				return err
			})
			for i := range tokens {
				if tokens[i] == "" {
					if tokens[i], _, err = e.Issue(ctx, fmt.Sprint(i)); err != nil {
						return err
					}
				}
			}

			verifyStats := runPhase(ops, concurrency, func(_ int, r *rand.Rand) error {
				_, err := e.Verify(ctx, tokens[r.Intn(len(tokens))])
				return err
			})

			fmt.Fprintln(out, "---- results ----")
			printStats(out, "issue", issueStats)
			printStats(out, "verify", verifyStats)
			return nil
		},
	}
	cmd.Flags().IntVar(&subjects, "subjects", 1000, "distinct subjects (tokens verified)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 64, "concurrent workers")
	cmd.Flags().IntVar(&ops, "ops", 20000, "operations per phase")
	return cmd
}

// runPhase runs op ops times across concurrency workers and records per-call latency.
func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
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
		return phaseStats{total: total, failures: failures}
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
