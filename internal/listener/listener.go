// Package listener runs the one-task-per-connection read loop: consume a
// 16-byte flow-response header followed by its payload, stamp completion
// timestamps, and return (or retire) the connection to its pool.
package listener

import (
	"io"

	"incastgen/internal/bufpool"
	"incastgen/internal/flog"
	"incastgen/internal/plan"
	"incastgen/internal/pool"
	"incastgen/internal/timing"
	"incastgen/internal/wire"
)

// Run blocks reading flow responses off c until a terminator flow arrives
// or the socket errors, then returns. Callers spawn one Run per pool.Conn,
// eagerly at pool fill time and lazily whenever the pool grows mid-run.
func Run(c *pool.Conn, tt *timing.Table, fi *plan.FlowIndex, bufs *bufpool.Pool) {
	conn := c.NetConn()
	for {
		var hdr wire.Header
		if err := hdr.Read(conn); err != nil {
			if flog.WErr(err) != nil {
				flog.Errorf("listener %s: header read: %v", c.Endpoint(), err)
			}
			c.Retire()
			return
		}

		if hdr.IsTerminator() {
			c.Retire()
			return
		}

		bufp := bufs.GetN(int(hdr.FlowSize))
		if _, err := io.ReadFull(conn, *bufp); err != nil {
			bufs.Put(bufp)
			if flog.WErr(err) != nil {
				flog.Errorf("listener %s: flow %d payload read: %v", c.Endpoint(), hdr.FlowID, err)
			}
			c.Retire()
			return
		}
		bufs.Put(bufp)

		// Stamped strictly after the full payload has been received.
		now := timing.NowUS()
		tt.StoreFlowStop(hdr.FlowID, now)
		reqIdx := fi.Get(hdr.FlowID)
		tt.StoreReqStop(reqIdx, now)

		c.Release()
	}
}
