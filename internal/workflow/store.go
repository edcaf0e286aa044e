// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/flowmaster/internal/pipeline"
)

const DefaultCapacity = 100

type RecordStatus string

const (
	RecordRunning   RecordStatus = "running"
	RecordCompleted RecordStatus = "completed"
	RecordFailed    RecordStatus = "failed"
)

// Record is a snapshot of one generate_workflow call.
type Record struct {
	ID        string       `json:"id"`
	Idea      string       `json:"idea"`
	Status    RecordStatus `json:"status"`
	State     string       `json:"state"`
	Error     string       `json:"error,omitempty"`
	Response  *Response    `json:"response,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type entry struct {
	rec Record
	run *pipeline.Run
}

// Store keeps the most recent runs in memory. The oldest run is evicted
// once capacity is reached.
type Store struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]*entry
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		entries:  make(map[string]*entry),
	}
}

func (s *Store) begin(run *pipeline.Run, idea string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) >= s.capacity {
		s.evictOldest()
	}
	s.entries[run.ID()] = &entry{
		rec: Record{
			ID:        run.ID(),
			Idea:      idea,
			Status:    RecordRunning,
			CreatedAt: now,
			UpdatedAt: now,
		},
		run: run,
	}
}

func (s *Store) complete(id string, resp *Response) {
	s.finish(id, func(r *Record) {
		r.Status = RecordCompleted
		r.Response = resp
	})
}

func (s *Store) fail(id string, err error) {
	s.finish(id, func(r *Record) {
		r.Status = RecordFailed
		r.Error = err.Error()
	})
}

func (s *Store) finish(id string, update func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	update(&e.rec)
	e.rec.State = e.run.State().String()
	e.rec.UpdatedAt = time.Now()
	e.run = nil
}

// Get returns the record of id, with the live state of a running run.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Record{}, false
	}
	rec := e.rec
	if e.run != nil {
		rec.State = e.run.State().String()
	}
	return rec, true
}

// List returns all records, newest first.
func (s *Store) List() []Record {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.Get(id); ok {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictOldest drops the oldest finished record. Running records are only
// dropped when none has finished.
func (s *Store) evictOldest() {
	var oldest string
	var at time.Time
	var finished bool
	for id, e := range s.entries {
		done := e.run == nil
		switch {
		case oldest == "",
			done && !finished,
			done == finished && e.rec.CreatedAt.Before(at):
			oldest, at, finished = id, e.rec.CreatedAt, done
		}
	}
	delete(s.entries, oldest)
}
