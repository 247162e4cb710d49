// Package ident mints globally unique, time-ordered 64-bit row identifiers
// without coordination. An id encodes milliseconds since a custom epoch, the
// issuing node number and a per-millisecond sequence, so ids from one node
// are strictly increasing and ids from distinct nodes can never collide.
package ident

import (
	"fmt"
	"sync"
	"time"
)

// EpochMS is 2025-01-01T00:00:00Z, the zero point of the timestamp field.
const EpochMS int64 = 1735689600000

const (
	nodeBits     = 10
	sequenceBits = 12

	// MaxNode is the largest assignable node number.
	MaxNode = (1 << nodeBits) - 1

	maxSequence = (1 << sequenceBits) - 1
	nodeShift   = sequenceBits
	timeShift   = sequenceBits + nodeBits
)

// Generator issues ids for a fixed node number. Safe for concurrent use
// within one process; cross-process uniqueness relies on the node registry
// handing every process a distinct node number.
type Generator struct {
	mu     sync.Mutex
	node   int64
	lastMS int64
	seq    int64
	now    func() time.Time
}

func New(node int) (*Generator, error) {
	if node < 0 || node > MaxNode {
		return nil, fmt.Errorf("ident: node %d out of range 0..%d", node, MaxNode)
	}
	return &Generator{node: int64(node), lastMS: -1, now: time.Now}, nil
}

func (g *Generator) nowMS() int64 {
	return g.now().UnixMilli() - EpochMS
}

// Next returns the next id. Within one millisecond the sequence counter
// increments; when it wraps, Next spins until the clock advances. A clock
// read behind the previously observed millisecond blocks until the clock
// catches up rather than risking a duplicate or decreasing id.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.nowMS()
	for ms < 0 {
		time.Sleep(time.Duration(-ms) * time.Millisecond)
		ms = g.nowMS()
	}
	for ms < g.lastMS {
		time.Sleep(time.Duration(g.lastMS-ms) * time.Millisecond)
		ms = g.nowMS()
	}

	if ms == g.lastMS {
		g.seq = (g.seq + 1) & maxSequence
		if g.seq == 0 {
			for {
				cur := g.nowMS()
				if cur > ms {
					ms = cur
					break
				}
			}
		}
	} else {
		g.seq = 0
	}
	g.lastMS = ms

	return ms<<timeShift | g.node<<nodeShift | g.seq
}

// NodeOf extracts the node number encoded in an id.
func NodeOf(id int64) int {
	return int((id >> nodeShift) & MaxNode)
}
