package gateway

import (
	"sort"
	"sync"
)

// ReplayBuffer keeps the most recent fill envelopes in seq order so a
// dashboard that connects mid-session can catch up. Safe for concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	seqs []int64
	envs [][]byte
	max  int
}

// NewReplayBuffer creates a buffer holding at most capacity fills.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{max: capacity}
}

// Push stores a copy of env. Envelopes whose seq is not newer than the last
// stored one are ignored. The oldest fill is evicted once the buffer is full.
func (rb *ReplayBuffer) Push(seq int64, env []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n := len(rb.seqs); n > 0 && seq <= rb.seqs[n-1] {
		return
	}
	if len(rb.seqs) == rb.max {
		copy(rb.seqs, rb.seqs[1:])
		copy(rb.envs, rb.envs[1:])
		rb.seqs = rb.seqs[:rb.max-1]
		rb.envs = rb.envs[:rb.max-1]
	}
	rb.seqs = append(rb.seqs, seq)
	rb.envs = append(rb.envs, append([]byte(nil), env...))
}

// Since returns the envelopes with seq greater than after, oldest first.
func (rb *ReplayBuffer) Since(after int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	i := sort.Search(len(rb.seqs), func(i int) bool { return rb.seqs[i] > after })
	if i == len(rb.seqs) {
		return nil
	}
	out := make([][]byte, len(rb.envs)-i)
	copy(out, rb.envs[i:])
	return out
}

// LastSeq returns the newest stored seq, or 0 when empty.
func (rb *ReplayBuffer) LastSeq() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if len(rb.seqs) == 0 {
		return 0
	}
	return rb.seqs[len(rb.seqs)-1]
}

// Len returns the number of stored fills.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.seqs)
}
