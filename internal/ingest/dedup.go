/*
Copyright © 2020 A. Jensen <jensen.aaro@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package ingest implements the poll, dedup and persist cycles that feed
// candles, index snapshots and channel news into the store.
//
// A cycle fetches a batch of candidate items, drops the ones whose identity
// key was already persisted by this process, marks the remaining keys as seen
// and writes them in one batch. A failed write unmarks the batch so the next
// cycle retries it.
package ingest

import (
	"context"
	"sync/atomic"
)

// SeenSet is a process-local membership set of identity keys. It is owned by
// a single ingestor and is not safe for concurrent use.
type SeenSet[K comparable] struct {
	m map[K]struct{}
}

func NewSeenSet[K comparable]() *SeenSet[K] {
	return &SeenSet[K]{m: make(map[K]struct{})}
}

func (s *SeenSet[K]) Contains(k K) bool {
	_, ok := s.m[k]
	return ok
}

// Add reports whether k was newly added.
func (s *SeenSet[K]) Add(k K) bool {
	if _, ok := s.m[k]; ok {
		return false
	}
	s.m[k] = struct{}{}
	return true
}

func (s *SeenSet[K]) Remove(k K) {
	delete(s.m, k)
}

func (s *SeenSet[K]) Len() int {
	return len(s.m)
}

// FilterNew returns the items whose key is not in seen and marks those keys
// before anything is persisted. Items sharing a key within one batch are kept
// once. Items for which key reports false are dropped. marked lists the keys
// added by this call, for Persist to roll back.
func FilterNew[T any, K comparable](items []T, key func(T) (K, bool), seen *SeenSet[K]) (fresh []T, marked []K) {
	for _, item := range items {
		k, ok := key(item)
		if !ok {
			continue
		}
		if !seen.Add(k) {
			continue
		}
		fresh = append(fresh, item)
		marked = append(marked, k)
	}
	return fresh, marked
}

// Persist writes fresh in a single call to write. On failure every key in
// marked is removed from seen so a later cycle attempts it again.
func Persist[T any, K comparable](ctx context.Context, fresh []T, marked []K, seen *SeenSet[K], write func(context.Context, []T) error) error {
	if len(fresh) == 0 {
		return nil
	}
	err := write(ctx, fresh)
	if err != nil {
		for _, k := range marked {
			seen.Remove(k)
		}
		return err
	}
	return nil
}

// State is the phase of a poll, dedup and persist cycle.
type State int32

const (
	Idle State = iota
	Polling
	Filtering
	Persisting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Filtering:
		return "filtering"
	case Persisting:
		return "persisting"
	default:
		return "unknown"
	}
}

// stateTracker may be read from other goroutines while the owning ingestor
// advances it.
type stateTracker struct {
	v int32
}

func (t *stateTracker) set(s State) {
	atomic.StoreInt32(&t.v, int32(s))
}

func (t *stateTracker) get() State {
	return State(atomic.LoadInt32(&t.v))
}
