// Package bufpool provides a sync.Pool-backed byte buffer cache used by
// listener goroutines to read flow-response payloads without allocating on
// every read.
package bufpool

import (
	"fmt"
	"sync"
)

const (
	// MinBufferSize is the smallest default buffer size Initialize accepts.
	MinBufferSize = 1024 // 1KB minimum
	// MaxBufferSize is the largest default buffer size Initialize accepts.
	MaxBufferSize = 10 * 1024 * 1024 // 10MB maximum to prevent excessive memory allocation
	// DefaultSize is used when no explicit size is configured.
	DefaultSize = 32 * 1024 // 32KB, matching a typical TCP read buffer
)

// Pool is a sync.Pool of *[]byte all sized to defaultSize, with an escape
// hatch (GetN) for requests larger than the default.
type Pool struct {
	defaultSize int
	pool        sync.Pool
}

func newPool(size int) *Pool {
	p := &Pool{defaultSize: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Get returns a buffer of exactly the pool's default size.
func (p *Pool) Get() *[]byte {
	bufp := p.pool.Get().(*[]byte)
	if len(*bufp) != p.defaultSize {
		*bufp = (*bufp)[:p.defaultSize]
	}
	return bufp
}

// GetN returns a buffer of exactly n bytes. If n fits within the pool's
// default capacity the buffer is served (and sliced) from the pool;
// otherwise a fresh slice is allocated so oversized reads never grow, and
// therefore never retain, pooled buffers.
func (p *Pool) GetN(n int) *[]byte {
	if n <= p.defaultSize {
		bufp := p.pool.Get().(*[]byte)
		*bufp = (*bufp)[:n]
		return bufp
	}
	b := make([]byte, n)
	return &b
}

// Put returns a buffer to the pool. Oversized buffers (those whose capacity
// exceeds the pool's default size) are dropped rather than pooled, so one
// large response body never inflates the steady-state buffer size for
// every later flow.
func (p *Pool) Put(bufp *[]byte) {
	if cap(*bufp) > p.defaultSize {
		return
	}
	*bufp = (*bufp)[:p.defaultSize]
	p.pool.Put(bufp)
}

// TPool is the process-wide pool used by listener goroutines to read flow
// payloads. It is nil until Initialize is called.
var TPool *Pool

// Initialize validates size and (re)creates TPool. It is called once at
// process startup from conf.Run.ReadBufferBytes.
func Initialize(size int) error {
	if size < MinBufferSize || size > MaxBufferSize {
		return fmt.Errorf("invalid read buffer size %d, must be between %d and %d", size, MinBufferSize, MaxBufferSize)
	}
	TPool = newPool(size)
	return nil
}
