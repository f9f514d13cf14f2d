// Package job tracks the reception state of one transfer: which segments have
// arrived, their payloads, and when the transfer is complete.
package job

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/switchml/switchio/pkg/packet"
)

// MaxTotal is the largest segment count a job can have: segment ids are
// uint32.
const MaxTotal = math.MaxUint32 + 1

var (
	ErrInvalidJob   = errors.New("switchio job: total must be in [1, 2^32] and workers at least 1")
	ErrSegmentRange = errors.New("switchio job: segment id out of range")
	ErrCancelled    = errors.New("switchio job: cancelled")
)

// Key identifies a transfer within a receiving node.
type Key struct {
	JobID  uint32 `json:"job_id" yaml:"job_id"`
	NodeID uint16 `json:"node_id" yaml:"node_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.NodeID, k.JobID)
}

// Progress is a point-in-time view of a job.
type Progress struct {
	Key       Key           `json:"key" yaml:"key"`
	Total     int           `json:"total" yaml:"total"`
	Received  int           `json:"received" yaml:"received"`
	Workers   int           `json:"workers" yaml:"workers"`
	Complete  bool          `json:"complete" yaml:"complete"`
	LossRatio float64       `json:"loss_ratio" yaml:"loss_ratio"`
	Age       time.Duration `json:"age" yaml:"age"`
}

// Job is the receive-side state of one transfer. All methods are safe for
// concurrent use.
type Job struct {
	key     Key
	total   int
	workers int
	created time.Time

	mu       sync.Mutex
	bits     *bitset.BitSet
	buf      [][]float32
	received int
	first    time.Time

	done       chan struct{}
	cancelled  chan struct{}
	cancelOnce sync.Once
}

// New creates a job expecting total distinct segments. workers is recorded for
// callers but does not change the completion condition.
func New(key Key, total, workers int) (*Job, error) {
	if total < 1 || uint64(total) > MaxTotal || workers < 1 {
		return nil, fmt.Errorf("%w (total=%d, workers=%d)", ErrInvalidJob, total, workers)
	}
	return &Job{
		key:       key,
		total:     total,
		workers:   workers,
		created:   time.Now(),
		bits:      bitset.New(uint(total)),
		buf:       make([][]float32, total),
		done:      make(chan struct{}),
		cancelled: make(chan struct{}),
	}, nil
}

func (j *Job) Key() Key     { return j.key }
func (j *Job) Total() int   { return j.total }
func (j *Job) Workers() int { return j.workers }

// RecordSegment stores payload at segment id. It returns false without
// touching the buffer when the segment was already recorded.
func (j *Job) RecordSegment(id uint32, payload []float32) (bool, error) {
	added, _, err := j.Record(id, payload)
	return added, err
}

// Record is RecordSegment that also reports whether this call completed the
// job. Exactly one successful call per job observes completed == true.
func (j *Job) Record(id uint32, payload []float32) (added, completed bool, err error) {
	if uint64(id) >= uint64(j.total) {
		return false, false, fmt.Errorf("%w: %d not in [0, %d)", ErrSegmentRange, id, j.total)
	}
	if len(payload) != packet.VectorLen {
		return false, false, fmt.Errorf("%w (got %d)", packet.ErrPayloadLength, len(payload))
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.bits.Test(uint(id)) {
		return false, false, nil
	}
	j.bits.Set(uint(id))
	cp := make([]float32, len(payload))
	copy(cp, payload)
	j.buf[id] = cp
	j.received++
	if j.received == 1 {
		j.first = time.Now()
	}
	if j.received == j.total {
		close(j.done)
		return true, true, nil
	}
	return true, false, nil
}

// Received returns the number of distinct segments recorded.
func (j *Job) Received() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.received
}

// Complete reports whether every segment has been recorded.
func (j *Job) Complete() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Done is closed once the job completes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// FirstSegmentAt returns the arrival time of the first segment, or the zero
// time if nothing has arrived yet.
func (j *Job) FirstSegmentAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.first
}

// LossRatio is the fraction of expected segments not yet recorded.
func (j *Job) LossRatio() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return float64(j.total-j.received) / float64(j.total)
}

// Wait blocks until the job completes, is cancelled, or ctx ends. Completion
// takes precedence when it has already happened.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	default:
	}
	select {
	case <-j.done:
		return nil
	case <-j.cancelled:
		if j.Complete() {
			return nil
		}
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel releases every waiter with ErrCancelled. Safe to call repeatedly.
func (j *Job) Cancel() {
	j.cancelOnce.Do(func() { close(j.cancelled) })
}

// Missing returns, in ascending order, the ids in [0, maxSegmentID] that have
// not been recorded. maxSegmentID is clamped to total-1.
func (j *Job) Missing(maxSegmentID uint32) []uint32 {
	return j.MissingUpTo(maxSegmentID, 0)
}

// MissingUpTo is Missing returning at most limit ids, the lowest first. A
// limit below 1 means no limit.
func (j *Job) MissingUpTo(maxSegmentID uint32, limit int) []uint32 {
	last := uint(j.total - 1)
	if uint64(maxSegmentID) < uint64(last) {
		last = uint(maxSegmentID)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var out []uint32
	for i, ok := j.bits.NextClear(0); ok && i <= last; i, ok = j.bits.NextClear(i + 1) {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, uint32(i))
	}
	return out
}

// Segments returns a copy of the segment buffer. Slots not yet received are
// nil.
func (j *Job) Segments() [][]float32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([][]float32, j.total)
	for i, s := range j.buf {
		if s != nil {
			out[i] = append([]float32(nil), s...)
		}
	}
	return out
}

// Progress returns a snapshot of the job.
func (j *Job) Progress() Progress {
	j.mu.Lock()
	received := j.received
	j.mu.Unlock()
	return Progress{
		Key:       j.key,
		Total:     j.total,
		Received:  received,
		Workers:   j.workers,
		Complete:  received == j.total,
		LossRatio: float64(j.total-received) / float64(j.total),
		Age:       time.Since(j.created),
	}
}
