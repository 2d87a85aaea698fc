// Package plan computes the fixed request schedule the dispatcher replays:
// per-request size, fanout, DSCP, target rate and inter-arrival sleep, plus
// the flow-to-server assignment, all sampled once before a single socket is
// opened.
package plan

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"incastgen/internal/cdfio"
	"incastgen/internal/conf"
	"incastgen/internal/sampling"
)

// Request is one planned incast request: a size, a fanout, a service class,
// a target per-flow rate, the inter-arrival sleep that follows it, and how
// many of its flows land on each server.
type Request struct {
	SizeBytes          int
	Fanout             int
	DSCP               int
	RateMbps           int
	SleepUS            int64
	PerServerFlowCount []int // len == NumServers, sums to Fanout
}

// Schedule is the complete, immutable output of planning: one Request per
// index plus the derived pacing period every request's SleepUS was drawn
// around.
type Schedule struct {
	Requests   []Request
	PeriodUS   float64
	NumServers int
}

// TotalFlows returns the sum of every request's fanout, the upper bound on
// the flow ids the dispatcher assigns (a skipped request's flows get none).
func (s *Schedule) TotalFlows() int {
	total := 0
	for _, r := range s.Requests {
		total += r.Fanout
	}
	return total
}

// Build samples num_reqs requests against cfg's distributions and the
// request-size CDF, deriving the mean inter-arrival period from the CDF's
// mean and the configured offered load.
func Build(cfg *conf.Conf, cdf cdfio.Table, rng *rand.Rand) (*Schedule, error) {
	numServers := len(cfg.Servers)
	if numServers == 0 {
		return nil, fmt.Errorf("plan: no servers configured")
	}

	sAvg := sampling.Mean(cdf)
	periodUS := sAvg * 8 / cfg.LoadMbps
	if periodUS <= 0 {
		return nil, fmt.Errorf("plan: derived inter-arrival period %.3fus is non-positive (mean size %.1fB, load %.3fMbps)", periodUS, sAvg, cfg.LoadMbps)
	}
	ratePerUS := 1 / periodUS

	reqs := make([]Request, cfg.NumReqs)
	for i := range reqs {
		size := int(sampling.CDFSample(cdf, rng))
		if size < 0 {
			size = 0
		}
		fanout := sampling.WeightedChoice(cfg.Fanout.Values, cfg.Fanout.Weights, cfg.Fanout.Total(), rng)
		if fanout < 1 {
			fanout = 1
		}
		dscp := sampling.WeightedChoice(cfg.Service.Values, cfg.Service.Weights, cfg.Service.Total(), rng)
		rate := sampling.WeightedChoice(cfg.Rate.Values, cfg.Rate.Weights, cfg.Rate.Total(), rng)
		sleepUS := sampling.PoissonIntervalUS(ratePerUS, rng)

		perServer := make([]int, numServers)
		for f := 0; f < fanout; f++ {
			s := rng.IntN(numServers)
			perServer[s]++
		}

		reqs[i] = Request{
			SizeBytes:          size,
			Fanout:             fanout,
			DSCP:               dscp,
			RateMbps:           rate,
			SleepUS:            sleepUS,
			PerServerFlowCount: perServer,
		}
	}

	return &Schedule{Requests: reqs, PeriodUS: periodUS, NumServers: numServers}, nil
}

// MaxFanoutPerServer returns the largest single-request flow count observed
// for any one server across the whole schedule.
func (s *Schedule) MaxFanoutPerServer() int {
	max := 0
	for _, r := range s.Requests {
		for _, k := range r.PerServerFlowCount {
			if k > max {
				max = k
			}
		}
	}
	return max
}

// FlowIndex maps a dispatched flow id (1-based) back to the index of the
// request it belongs to. Entries are written once, by the dispatcher when it
// assigns the flow id, before the flow task that writes the descriptor is
// spawned; they are read by that connection's listener only after the
// corresponding response arrives, so atomics here exist purely to satisfy
// the Go memory model's cross-goroutine visibility rule, not to resolve any
// real contention.
type FlowIndex struct {
	reqOf []atomic.Int32
}

// NewFlowIndex allocates a FlowIndex sized to hold totalFlows flow ids.
func NewFlowIndex(totalFlows int) *FlowIndex {
	return &FlowIndex{reqOf: make([]atomic.Int32, totalFlows)}
}

// Set records that flowID belongs to request reqIdx.
func (fi *FlowIndex) Set(flowID uint32, reqIdx int) {
	fi.reqOf[flowID-1].Store(int32(reqIdx))
}

// Get returns the request index flowID was assigned to.
func (fi *FlowIndex) Get(flowID uint32) int {
	return int(fi.reqOf[flowID-1].Load())
}
