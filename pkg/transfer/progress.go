package transfer

import (
	"io"
	"sync/atomic"
	"time"
)

// Progress tracks a download whose size is unknown until the sender closes.
// All methods are safe for concurrent use.
type Progress struct {
	bytes atomic.Int64
	start atomic.Int64
	peer  atomic.Value
	done  atomic.Bool
}

func (p *Progress) begin(peer string) {
	p.bytes.Store(0)
	p.start.Store(time.Now().UnixNano())
	p.peer.Store(peer)
	p.done.Store(false)
}

func (p *Progress) finish() {
	p.done.Store(true)
}

func (p *Progress) Bytes() int64 {
	return p.bytes.Load()
}

// Peer returns the address currently being downloaded from.
func (p *Progress) Peer() string {
	s, _ := p.peer.Load().(string)
	return s
}

func (p *Progress) Done() bool {
	return p.done.Load()
}

// Speed is the average rate in bytes per second since the download began.
func (p *Progress) Speed() float64 {
	started := p.start.Load()
	if started == 0 {
		return 0
	}
	elapsed := time.Since(time.Unix(0, started)).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.bytes.Load()) / elapsed
}

type countingReader struct {
	r io.Reader
	p *Progress
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.p.bytes.Add(int64(n))
	return n, err
}
