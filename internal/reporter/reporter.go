// Package reporter writes the per-request and per-flow completion-time logs
// and computes aggregate goodput once a run's dispatcher has returned.
package reporter

import (
	"bufio"
	"fmt"
	"os"

	"incastgen/internal/dispatch"
)

// Summary is the aggregate, human-facing result of a run, printed to stdout
// alongside the two log files Write produces.
type Summary struct {
	DurationUS      int64
	GoodputMbps     float64
	UnfinishedReqs  int
	UnfinishedFlows int
	TotalReqs       int
	TotalFlows      int
	SkippedReqs     int
}

// Write emits "<prefix>_reqs.txt" and "<prefix>_flows.txt" from res and
// returns the aggregate Summary.
//
// The per-request log carries one line per *planned* request, including
// ones the dispatcher skipped (rct_us reports as 0, matching an unfinished
// request). The per-flow log carries one line per *actually dispatched*
// flow: a skipped request never got a flow id, so it never contributes a
// line there.
func Write(prefix string, res *dispatch.Result) (Summary, error) {
	reqFile, err := os.Create(prefix + "_reqs.txt")
	if err != nil {
		return Summary{}, fmt.Errorf("reporter: create request log: %w", err)
	}
	defer reqFile.Close()
	flowFile, err := os.Create(prefix + "_flows.txt")
	if err != nil {
		return Summary{}, fmt.Errorf("reporter: create flow log: %w", err)
	}
	defer flowFile.Close()

	reqW := bufio.NewWriter(reqFile)
	flowW := bufio.NewWriter(flowFile)

	sched, tt := res.Schedule, res.Timing

	var totalBytes int64
	var unfinishedReqs int
	for i, req := range sched.Requests {
		start := tt.LoadReqStart(i)
		stop := tt.LoadReqStop(i)
		rct := int64(0)
		if stop > 0 {
			rct = stop - start
		} else {
			unfinishedReqs++
		}
		totalBytes += int64(req.SizeBytes)
		fmt.Fprintf(reqW, "%d %d %d %d %d\n", req.SizeBytes, rct, req.DSCP, req.Fanout, req.RateMbps)
	}

	var unfinishedFlows int
	for _, fl := range res.Flows {
		start := tt.LoadFlowStart(fl.FlowID)
		stop := tt.LoadFlowStop(fl.FlowID)
		fct := int64(0)
		if stop > 0 {
			fct = stop - start
		} else {
			unfinishedFlows++
		}
		fmt.Fprintf(flowW, "%d %d %d %d\n", fl.SizeBytes, fct, fl.DSCP, fl.RateMbps)
	}

	if err := reqW.Flush(); err != nil {
		return Summary{}, fmt.Errorf("reporter: flush request log: %w", err)
	}
	if err := flowW.Flush(); err != nil {
		return Summary{}, fmt.Errorf("reporter: flush flow log: %w", err)
	}

	var goodput float64
	if res.DurationUS > 0 {
		goodput = float64(totalBytes*8) / float64(res.DurationUS)
	}

	return Summary{
		DurationUS:      res.DurationUS,
		GoodputMbps:     goodput,
		UnfinishedReqs:  unfinishedReqs,
		UnfinishedFlows: unfinishedFlows,
		TotalReqs:       len(sched.Requests),
		TotalFlows:      len(res.Flows),
		SkippedReqs:     res.SkippedReqs,
	}, nil
}
