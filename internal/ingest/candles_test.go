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

package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ajjensen13/marketfeed/internal/extract"
	"github.com/ajjensen13/marketfeed/internal/model"
)

var moscow = time.FixedZone("MSK", 3*60*60)

type fakeCandleSource struct {
	records []model.CandleRecord
	err     error
	reqs    []extract.CandlesRequest
}

func (f *fakeCandleSource) Candles(ctx context.Context, req extract.CandlesRequest) ([]model.CandleRecord, error) {
	f.reqs = append(f.reqs, req)
	return f.records, f.err
}

type fakeIndexSource struct {
	snapshot *model.IndexSnapshot
}

func (f *fakeIndexSource) Index(ctx context.Context, name string) (*model.IndexSnapshot, error) {
	return f.snapshot, nil
}

type fakeCandleStore struct {
	candles   []model.Candle
	snapshots []*model.IndexSnapshot
	calls     int
	failNext  int
}

func (f *fakeCandleStore) InsertCandles(ctx context.Context, ticker string, candles []model.Candle) error {
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return errors.New("connection refused")
	}
	f.candles = append(f.candles, candles...)
	return nil
}

func (f *fakeCandleStore) InsertIndexSnapshot(ctx context.Context, s *model.IndexSnapshot) error {
	f.snapshots = append(f.snapshots, s)
	return nil
}

func record(begin string) model.CandleRecord {
	return model.CandleRecord{Open: 300, Close: 301, High: 302, Low: 299, Value: 1e6, Volume: 1000, Begin: begin}
}

func newTestIngestor(src *fakeCandleSource, idx *fakeIndexSource, store *fakeCandleStore, now time.Time) *CandleIngestor {
	var index IndexSource
	if idx != nil {
		index = idx
	}
	ci := NewCandleIngestor(CandleConfig{
		Tickers:   []string{"SBER"},
		Window:    time.Hour,
		Interval:  1,
		IndexName: "IMOEX",
		Location:  moscow,
	}, src, index, store)
	ci.SetClock(func() time.Time { return now })
	return ci
}

func TestCandleCycleIsIdempotent(t *testing.T) {
	src := &fakeCandleSource{records: []model.CandleRecord{
		record("2024-03-01 09:30:00"),
		record("2024-03-01 09:31:00"),
		record("2024-03-01 09:32:00"),
	}}
	store := &fakeCandleStore{}
	ci := newTestIngestor(src, nil, store, time.Date(2024, 3, 1, 9, 33, 0, 0, moscow))
	ctx := context.Background()

	if err := ci.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle()=%v", err)
	}
	if len(store.candles) != 3 {
		t.Fatalf("len(candles)=%d want 3", len(store.candles))
	}
	if got := ci.SeenCount("SBER"); got != 3 {
		t.Fatalf("SeenCount()=%d want 3", got)
	}

	if err := ci.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle()=%v", err)
	}
	if len(store.candles) != 3 || store.calls != 1 {
		t.Fatalf("len(candles)=%d calls=%d want 3, 1", len(store.candles), store.calls)
	}
	if got := ci.SeenCount("SBER"); got != 3 {
		t.Fatalf("SeenCount()=%d want 3", got)
	}
	if ci.State() != Idle {
		t.Fatalf("State()=%v want idle", ci.State())
	}

	if src.reqs[0].From != "2024-03-01" || src.reqs[0].Till != "" || src.reqs[0].Interval != 1 {
		t.Fatalf("req=%+v", src.reqs[0])
	}
}

func TestCandleWindowIsInclusive(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"at boundary", time.Date(2024, 3, 1, 10, 0, 0, 0, moscow), 1},
		{"past boundary", time.Date(2024, 3, 1, 10, 0, 0, 1000, moscow), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeCandleSource{records: []model.CandleRecord{record("2024-03-01 09:00:00")}}
			store := &fakeCandleStore{}
			ci := newTestIngestor(src, nil, store, tt.now)

			if err := ci.RunCycle(context.Background()); err != nil {
				t.Fatalf("RunCycle()=%v", err)
			}
			if len(store.candles) != tt.want {
				t.Fatalf("len(candles)=%d want %d", len(store.candles), tt.want)
			}
		})
	}
}

func TestCandleWriteFailureIsRetried(t *testing.T) {
	src := &fakeCandleSource{records: []model.CandleRecord{
		record("2024-03-01 09:30:00"),
		record("2024-03-01 09:31:00"),
	}}
	store := &fakeCandleStore{failNext: 1}
	ci := newTestIngestor(src, nil, store, time.Date(2024, 3, 1, 9, 40, 0, 0, moscow))
	ctx := context.Background()

	if err := ci.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle()=%v", err)
	}
	if got := ci.SeenCount("SBER"); got != 0 {
		t.Fatalf("SeenCount() after failed write=%d want 0", got)
	}

	if err := ci.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle()=%v", err)
	}
	if len(store.candles) != 2 || ci.SeenCount("SBER") != 2 {
		t.Fatalf("len(candles)=%d SeenCount()=%d want 2, 2", len(store.candles), ci.SeenCount("SBER"))
	}
}

func TestCandleBadRecordsAreSkipped(t *testing.T) {
	src := &fakeCandleSource{records: []model.CandleRecord{
		record("2024-03-01 09:30:00"),
		record("01.03.2024 09:31"),
		record(""),
	}}
	store := &fakeCandleStore{}
	ci := newTestIngestor(src, nil, store, time.Date(2024, 3, 1, 9, 40, 0, 0, moscow))

	if err := ci.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle()=%v", err)
	}
	if len(store.candles) != 1 {
		t.Fatalf("len(candles)=%d want 1", len(store.candles))
	}
}

func TestCandleSourceFailureKeepsCycleAlive(t *testing.T) {
	src := &fakeCandleSource{err: extract.ErrConnection}
	idx := &fakeIndexSource{snapshot: &model.IndexSnapshot{SecID: "IMOEX", SysTime: "2024-03-01 10:00:05"}}
	store := &fakeCandleStore{}
	ci := newTestIngestor(src, idx, store, time.Date(2024, 3, 1, 10, 0, 0, 0, moscow))

	if err := ci.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle()=%v want nil", err)
	}
	if len(store.snapshots) != 1 {
		t.Fatalf("len(snapshots)=%d want 1", len(store.snapshots))
	}
}

func TestIndexSnapshotDedup(t *testing.T) {
	idx := &fakeIndexSource{snapshot: &model.IndexSnapshot{SecID: "IMOEX", SysTime: "2024-03-01 10:00:05"}}
	store := &fakeCandleStore{}
	ci := newTestIngestor(&fakeCandleSource{}, idx, store, time.Date(2024, 3, 1, 10, 0, 10, 0, moscow))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := ci.RunCycle(ctx); err != nil {
			t.Fatalf("RunCycle()=%v", err)
		}
	}
	if len(store.snapshots) != 1 {
		t.Fatalf("len(snapshots)=%d want 1", len(store.snapshots))
	}

	idx.snapshot = &model.IndexSnapshot{SecID: "IMOEX", SysTime: "2024-03-01 10:01:05"}
	if err := ci.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle()=%v", err)
	}
	if len(store.snapshots) != 2 {
		t.Fatalf("len(snapshots)=%d want 2", len(store.snapshots))
	}
}

func TestIndexSnapshotWithoutSysTimeIsNotSaved(t *testing.T) {
	idx := &fakeIndexSource{snapshot: &model.IndexSnapshot{SecID: "IMOEX"}}
	store := &fakeCandleStore{}
	ci := newTestIngestor(&fakeCandleSource{}, idx, store, time.Date(2024, 3, 1, 10, 0, 0, 0, moscow))

	if err := ci.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle()=%v", err)
	}
	if len(store.snapshots) != 0 || ci.seenIndex.Len() != 0 {
		t.Fatalf("len(snapshots)=%d seen=%d want 0, 0", len(store.snapshots), ci.seenIndex.Len())
	}
}

func TestCandleCycleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &fakeCandleStore{}
	ci := newTestIngestor(&fakeCandleSource{records: []model.CandleRecord{record("2024-03-01 09:30:00")}}, nil, store, time.Date(2024, 3, 1, 9, 31, 0, 0, moscow))

	if err := ci.RunCycle(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunCycle()=%v want context.Canceled", err)
	}
	if store.calls != 0 {
		t.Fatalf("calls=%d want 0", store.calls)
	}
}

func TestCandleScenarioAtTen(t *testing.T) {
	src := &fakeCandleSource{records: []model.CandleRecord{
		record("2024-03-01 09:30:00"),
		record("2024-03-01 09:31:00"),
		record("2024-03-01 09:32:00"),
	}}
	store := &fakeCandleStore{}
	ci := newTestIngestor(src, nil, store, time.Date(2024, 3, 1, 10, 0, 0, 0, moscow))
	ctx := context.Background()

	if err := ci.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle()=%v", err)
	}
	if len(store.candles) != 3 {
		t.Fatalf("len(candles)=%d want 3", len(store.candles))
	}

	if err := ci.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle()=%v", err)
	}
	if len(store.candles) != 3 {
		t.Fatalf("len(candles)=%d after second cycle want 3", len(store.candles))
	}
	if got := ci.SeenCount("SBER"); got != 3 {
		t.Fatalf("SeenCount()=%d want 3", got)
	}
}

// timeoutOnceSource fails its first call the way an HTTP client timeout
// surfaces from the market data client.
type timeoutOnceSource struct {
	fakeCandleSource
	failed bool
}

func (f *timeoutOnceSource) Candles(ctx context.Context, req extract.CandlesRequest) ([]model.CandleRecord, error) {
	if !f.failed {
		f.failed = true
		f.reqs = append(f.reqs, req)
		return nil, fmt.Errorf("request timed out: %v: %w", context.DeadlineExceeded, extract.ErrConnection)
	}
	return f.fakeCandleSource.Candles(ctx, req)
}

func TestCandleTimeoutAbandonsStep(t *testing.T) {
	src := &timeoutOnceSource{fakeCandleSource: fakeCandleSource{records: []model.CandleRecord{
		record("2024-03-01 09:30:00"),
		record("2024-03-01 09:31:00"),
	}}}
	store := &fakeCandleStore{}
	ci := NewCandleIngestor(CandleConfig{Tickers: []string{"SBER"}, Window: time.Hour, Interval: 1, Location: moscow}, src, nil, store)
	ci.SetClock(func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, moscow) })
	ctx := context.Background()

	if err := ci.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle()=%v want nil", err)
	}
	if len(src.reqs) != 1 || store.calls != 0 || ci.SeenCount("SBER") != 0 {
		t.Fatalf("reqs=%d calls=%d seen=%d want 1, 0, 0", len(src.reqs), store.calls, ci.SeenCount("SBER"))
	}

	if err := ci.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle()=%v want nil", err)
	}
	if len(src.reqs) != 2 || len(store.candles) != 2 {
		t.Fatalf("reqs=%d len(candles)=%d want 2, 2", len(src.reqs), len(store.candles))
	}
}

func TestIndexSnapshotWithInvalidSysTimeIsSkipped(t *testing.T) {
	idx := &fakeIndexSource{snapshot: &model.IndexSnapshot{SecID: "IMOEX", SysTime: "01.03.2024 10:00"}}
	store := &fakeCandleStore{}
	ci := newTestIngestor(&fakeCandleSource{}, idx, store, time.Date(2024, 3, 1, 10, 0, 0, 0, moscow))

	for i := 0; i < 2; i++ {
		if err := ci.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle()=%v", err)
		}
	}
	if len(store.snapshots) != 0 || ci.seenIndex.Len() != 0 {
		t.Fatalf("len(snapshots)=%d seen=%d want 0, 0", len(store.snapshots), ci.seenIndex.Len())
	}
}
