// Package dispatch drives the planned schedule at run time: it keeps every
// server's connection pool filled, leases connections per request, spawns
// flow tasks that write the 16-byte descriptor, and paces requests against
// the planner's Poisson schedule with sleep-overhead compensation.
package dispatch

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"

	"incastgen/internal/bufpool"
	"incastgen/internal/conf"
	"incastgen/internal/flog"
	"incastgen/internal/listener"
	"incastgen/internal/plan"
	"incastgen/internal/pool"
	"incastgen/internal/timing"
	"incastgen/internal/wire"
)

// FlowRecord is one actually-dispatched flow: the wire-assigned flow id,
// the request it belongs to, and the per-flow attributes the reporter
// prints. Flow ids are assigned only to flows that were actually leased and
// sent, so a skipped request's planned flows never appear here.
type FlowRecord struct {
	FlowID   uint32
	ReqIdx   int
	SizeBytes int
	DSCP     int
	RateMbps int
}

// Result bundles everything the reporter needs once a run is over.
type Result struct {
	Schedule    *plan.Schedule
	Timing      *timing.Table
	FlowIndex   *plan.FlowIndex
	Flows       []FlowRecord
	Pools       []*pool.Pool
	DurationUS  int64
	SkippedReqs int // requests abandoned mid-dispatch (pool growth or lease failure)
}

// Close clears every pool. Every connection has already been closed by its
// listener's Retire by the time Run returns; Clear closes each socket again
// (a no-op on a closed one) and drops the node lists. Close is safe to call
// once the reporter has finished reading r.Pools.
func (r *Result) Close() {
	for _, p := range r.Pools {
		p.Clear()
	}
}

// terminatorSize is the response payload size requested on the synthetic
// shutdown flow; it carries no meaning beyond giving the server something
// concrete to echo.
const terminatorSize = 100

// sleepOverheadSamples is how many minimum-duration sleeps Run times at
// startup to estimate the sleep primitive's mean positive overshoot.
const sleepOverheadSamples = 50

// Run executes sched against cfg's servers using dial to open connections,
// blocking until every request has been dispatched and every connection has
// been torn down via the terminator flow.
func Run(ctx context.Context, cfg *conf.Conf, sched *plan.Schedule, dial pool.Dialer) (*Result, error) {
	runStart := timing.NowUS()

	pools := make([]*pool.Pool, len(cfg.Servers))
	for s, srv := range cfg.Servers {
		pools[s] = pool.New(pool.Endpoint{Addr: srv.Addr, Port: srv.Port})
	}

	tt := timing.New(len(sched.Requests), sched.TotalFlows())
	fi := plan.NewFlowIndex(sched.TotalFlows())

	var listenerWG sync.WaitGroup
	spawnListeners := func(nodes []*pool.Conn) {
		for _, n := range nodes {
			listenerWG.Add(1)
			go func(c *pool.Conn) {
				defer listenerWG.Done()
				listener.Run(c, tt, fi, bufpool.TPool)
			}(n)
		}
	}

	perServerFill := make([]int, len(pools))
	for _, r := range sched.Requests {
		for s, k := range r.PerServerFlowCount {
			if k > perServerFill[s] {
				perServerFill[s] = k
			}
		}
	}
	for s, p := range pools {
		fill := perServerFill[s]
		if fill < cfg.Run.InitPoolConnections {
			fill = cfg.Run.InitPoolConnections
		}
		nodes, err := p.Insert(ctx, fill, dial)
		if err != nil {
			return nil, fmt.Errorf("dispatch: initial fill of %s: %w", p.Endpoint, err)
		}
		spawnListeners(nodes)
	}

	totalConns := 0
	for _, p := range pools {
		totalConns += p.Len()
	}
	flog.Infof("dispatch started: %d servers, %d connections, %d requests planned", len(pools), totalConns, len(sched.Requests))

	overheadUS := measureSleepOverheadUS(sleepOverheadSamples)
	flog.Debugf("measured sleep overhead: %dus", overheadUS)

	var nextFlowID uint32
	var sleepDebt int64
	skipped := 0
	var flows []FlowRecord

	for i := range sched.Requests {
		req := &sched.Requests[i]
		t0 := timing.NowUS()
		tt.StoreReqStart(i, t0)

		type assignment struct {
			conn *pool.Conn
			size int
		}
		var assignments []assignment
		aborted := false

		for s, k := range req.PerServerFlowCount {
			if k == 0 {
				continue
			}
			p := pools[s]
			if p.AvailableLen() < k {
				need := k - p.AvailableLen()
				nodes, err := p.Insert(ctx, need, dial)
				if err != nil {
					flog.Errorf("dispatch: request %d: grow pool for %s by %d: %v", i, p.Endpoint, need, err)
					aborted = true
					break
				}
				spawnListeners(nodes)
			}
			leased, err := p.Lease(k)
			if err != nil {
				flog.Errorf("dispatch: request %d: lease %d connections to %s: %v", i, k, p.Endpoint, err)
				aborted = true
				break
			}
			for _, c := range leased {
				assignments = append(assignments, assignment{conn: c, size: req.SizeBytes / req.Fanout})
			}
		}

		if aborted {
			skipped++
			continue
		}

		g, _ := errgroup.WithContext(ctx)
		for _, a := range assignments {
			flowID := nextFlowID + 1
			nextFlowID++
			fi.Set(flowID, i)
			conn, size := a.conn, a.size
			dscp, rate := req.DSCP, req.RateMbps
			flows = append(flows, FlowRecord{FlowID: flowID, ReqIdx: i, SizeBytes: size, DSCP: dscp, RateMbps: rate})
			g.Go(func() error {
				tt.StoreFlowStart(flowID, timing.NowUS())
				tos := wire.DSCPToToS(dscp)
				setOutgoingTOS(conn.NetConn(), tos)
				hdr := wire.Header{
					FlowID:   flowID,
					FlowSize: uint32(size),
					FlowTOS:  tos,
					FlowRate: uint32(rate),
				}
				return hdr.Write(conn.NetConn())
			})
		}
		if err := g.Wait(); err != nil {
			flog.Errorf("dispatch: request %d: flow write: %v", i, err)
		}

		elapsed := timing.NowUS() - t0
		sleepDebt += req.SleepUS
		if sleepDebt > overheadUS+elapsed {
			pause := sleepDebt - overheadUS - elapsed
			time.Sleep(time.Duration(pause) * time.Microsecond)
			sleepDebt = 0
		}
	}

	for _, p := range pools {
		for _, c := range p.Nodes() {
			if !c.Connected() {
				continue
			}
			term := wire.Header{FlowID: wire.Terminator, FlowSize: terminatorSize}
			if err := term.Write(c.NetConn()); err != nil {
				flog.Debugf("dispatch: terminator write to %s: %v", p.Endpoint, flog.WErr(err))
			}
		}
	}

	listenerWG.Wait()

	unfinished := 0
	for i := range sched.Requests {
		if tt.LoadReqStop(i) == 0 {
			unfinished++
		}
	}
	flog.Infof("dispatch complete: %d requests unfinished", unfinished)

	return &Result{
		Schedule:    sched,
		Timing:      tt,
		FlowIndex:   fi,
		Flows:       flows,
		Pools:       pools,
		DurationUS:  timing.NowUS() - runStart,
		SkippedReqs: skipped,
	}, nil
}

// setOutgoingTOS sets conn's outgoing IP ToS byte to tos before the flow
// descriptor is written, per spec.md §4.5 step 3. Connections that don't
// expose a raw socket (net.Pipe in tests, non-IP transports) can't carry a
// ToS byte at all; SetTOS's error in that case is expected and logged at
// debug level rather than failing the flow.
func setOutgoingTOS(conn net.Conn, tos uint32) {
	if err := ipv4.NewConn(conn).SetTOS(int(tos)); err != nil {
		flog.Debugf("dispatch: set outgoing TOS %d on %s: %v", tos, conn.RemoteAddr(), err)
	}
}

// measureSleepOverheadUS times n minimum-duration sleeps and returns the
// mean positive residual over the requested 1us, compensating for the
// platform sleep primitive's typical undershoot/overshoot.
func measureSleepOverheadUS(n int) int64 {
	var sum, count int64
	for i := 0; i < n; i++ {
		start := time.Now()
		time.Sleep(time.Microsecond)
		residual := time.Since(start).Microseconds() - 1
		if residual > 0 {
			sum += residual
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / count
}
