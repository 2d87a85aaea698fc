// Package timing holds the parallel start/stop timestamp tables the
// dispatcher and listeners write concurrently and the reporter drains once
// the run is over.
package timing

import (
	"sync/atomic"
	"time"
)

// epoch anchors NowUS to the monotonic clock reading taken at package init.
var epoch = time.Now()

// NowUS returns the current monotonic time in microseconds, the unit every
// timestamp in this package is stored in. Readings count from package init
// and start at 1, so no stamp equals the zero "unfinished" marker.
func NowUS() int64 {
	return time.Since(epoch).Microseconds() + 1
}

// Table holds request-indexed and flow-indexed start/stop timestamps. A
// zero stop value means "unfinished." Each flow id is unique for the life
// of the process, so flow slots never race; the request slots do race
// across sibling flows of the same request by design (see Package doc on
// StoreReqStop).
type Table struct {
	reqStart  []int64
	reqStop   []int64
	flowStart []int64
	flowStop  []int64
}

// New preallocates a Table sized for numReqs requests and numFlows flows.
func New(numReqs, numFlows int) *Table {
	return &Table{
		reqStart:  make([]int64, numReqs),
		reqStop:   make([]int64, numReqs),
		flowStart: make([]int64, numFlows),
		flowStop:  make([]int64, numFlows),
	}
}

func (t *Table) StoreReqStart(reqIdx int, us int64) { atomic.StoreInt64(&t.reqStart[reqIdx], us) }
func (t *Table) LoadReqStart(reqIdx int) int64      { return atomic.LoadInt64(&t.reqStart[reqIdx]) }

// StoreReqStop overwrites the request's stop time unconditionally. Sibling
// flows of an incast request race to write this slot; the semantics are
// intentionally last-writer-wins, since any of the near-simultaneous
// arrivals of the final flow is an equally valid stamp of "the request's
// last flow landed about now." See spec.md §5/§9.
func (t *Table) StoreReqStop(reqIdx int, us int64) { atomic.StoreInt64(&t.reqStop[reqIdx], us) }
func (t *Table) LoadReqStop(reqIdx int) int64      { return atomic.LoadInt64(&t.reqStop[reqIdx]) }

func (t *Table) StoreFlowStart(flowID uint32, us int64) {
	atomic.StoreInt64(&t.flowStart[flowID-1], us)
}
func (t *Table) LoadFlowStart(flowID uint32) int64 { return atomic.LoadInt64(&t.flowStart[flowID-1]) }

func (t *Table) StoreFlowStop(flowID uint32, us int64) {
	atomic.StoreInt64(&t.flowStop[flowID-1], us)
}
func (t *Table) LoadFlowStop(flowID uint32) int64 { return atomic.LoadInt64(&t.flowStop[flowID-1]) }

// NumReqs and NumFlows report the table's fixed dimensions.
func (t *Table) NumReqs() int  { return len(t.reqStart) }
func (t *Table) NumFlows() int { return len(t.flowStart) }
