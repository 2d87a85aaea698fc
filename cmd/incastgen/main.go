// Command incastgen drives a fleet of backend servers with partition/
// aggregate (incast) traffic: it paces a planned sequence of requests, each
// fanning out to concurrent flows across a pool of persistent connections,
// and records per-request and per-flow completion times.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"

	"incastgen/internal/bufpool"
	"incastgen/internal/cdfio"
	"incastgen/internal/conf"
	"incastgen/internal/dispatch"
	"incastgen/internal/flog"
	"incastgen/internal/plan"
	"incastgen/internal/pool"
	"incastgen/internal/reporter"
)

var (
	confPath  string
	logPrefix string
	seed      int64
	debug     bool
)

func init() {
	rootCmd.Flags().StringVarP(&confPath, "config", "c", "", "Path to the configuration file (required).")
	rootCmd.Flags().StringVarP(&logPrefix, "log-prefix", "l", "log", "Output prefix; writes <prefix>_reqs.txt and <prefix>_flows.txt.")
	rootCmd.Flags().Int64VarP(&seed, "seed", "s", 0, "RNG seed (0 = derive from wall clock).")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "Verbose stdout logging.")
	rootCmd.MarkFlagRequired("config")
}

var rootCmd = &cobra.Command{
	Use:   "incastgen",
	Short: "Generates partition/aggregate (incast) traffic against a fleet of backend servers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run mirrors the teacher's own cmd/run bootstrap split: errors from before
// (or concurrent with) flog.SetLevel go through the stdlib log package,
// since flog's drain goroutine isn't reliably running yet to deliver them;
// everything after initialization is fully up uses flog.Fatalf.
func run() error {
	cfg, err := conf.LoadFromFile(confPath)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	cfg.Run.LogPrefix = logPrefix
	cfg.Run.Seed = seed
	cfg.Run.Debug = debug

	level := flog.Info
	if cfg.Run.Debug {
		level = flog.Debug
	}
	flog.SetLevel(int(level))
	defer flog.Close()

	if err := bufpool.Initialize(cfg.Run.ReadBufferBytes); err != nil {
		log.Fatalf("initialize read buffers: %v", err)
	}

	cdfTable, err := cdfio.Load(cfg.ReqSizeDistPath)
	if err != nil {
		flog.Fatalf("load request-size distribution: %v", err)
	}

	seedVal := cfg.Run.Seed
	if seedVal == 0 {
		seedVal = time.Now().UnixMicro()
	}
	rng := rand.New(rand.NewPCG(uint64(seedVal), uint64(seedVal>>1|1)))

	sched, err := plan.Build(cfg, cdfTable, rng)
	if err != nil {
		flog.Fatalf("build request schedule: %v", err)
	}
	flog.Infof("planned %d requests, %d flows, period=%.1fus", len(sched.Requests), sched.TotalFlows(), sched.PeriodUS)

	res, err := dispatch.Run(context.Background(), cfg, sched, pool.DialTCP)
	if err != nil {
		flog.Fatalf("dispatch run: %v", err)
	}
	defer res.Close()

	summary, err := reporter.Write(cfg.Run.LogPrefix, res)
	if err != nil {
		flog.Fatalf("write reports: %v", err)
	}

	fmt.Printf("requests: %d planned, %d skipped, %d unfinished\n", summary.TotalReqs, summary.SkippedReqs, summary.UnfinishedReqs)
	fmt.Printf("flows: %d dispatched, %d unfinished\n", summary.TotalFlows, summary.UnfinishedFlows)
	fmt.Printf("duration: %dus, goodput: %.3f Mbps\n", summary.DurationUS, summary.GoodputMbps)

	return nil
}
