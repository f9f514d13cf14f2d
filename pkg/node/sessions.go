package node

import (
	"sort"
	"sync"

	"github.com/switchml/switchio/pkg/job"
)

// sessions maps (job id, source node id) to the job being received.
type sessions struct {
	mu     sync.Mutex
	jobs   map[job.Key]*job.Job
	closed bool
}

func newSessions() *sessions {
	return &sessions{jobs: make(map[job.Key]*job.Job)}
}

func (s *sessions) begin(key job.Key, total, workers int) (*job.Job, error) {
	j, err := job.New(key, total, workers)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if _, ok := s.jobs[key]; ok {
		return nil, ErrJobExists
	}
	s.jobs[key] = j
	return j, nil
}

func (s *sessions) lookup(key job.Key) (*job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key]
	return j, ok
}

func (s *sessions) remove(key job.Key) (*job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key]
	if ok {
		delete(s.jobs, key)
	}
	return j, ok
}

func (s *sessions) snapshot() []job.Progress {
	s.mu.Lock()
	jobs := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]job.Progress, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Progress())
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Key.NodeID != out[k].Key.NodeID {
			return out[i].Key.NodeID < out[k].Key.NodeID
		}
		return out[i].Key.JobID < out[k].Key.JobID
	})
	return out
}

// close refuses further begins and cancels every tracked job. Jobs stay in
// the map so waiters can still read partial results.
func (s *sessions) close() {
	s.mu.Lock()
	s.closed = true
	jobs := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()
	for _, j := range jobs {
		j.Cancel()
	}
}
