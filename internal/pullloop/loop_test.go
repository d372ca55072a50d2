package pullloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"indexer-engine/internal/block"
	"indexer-engine/internal/db"
	"indexer-engine/internal/node"
)

func strPtr(s string) *string { return &s }

func wireBlockAt(height uint32) block.WireBlock {
	return block.WireBlock{
		ID:        make([]byte, 32),
		Height:    height,
		Time:      1700000000,
		Consensus: block.WireConsensus{Kind: "unknown"},
	}
}

// fakeFetcher replays a fixed sequence of pages, one per call; extra calls
// repeat the last page.
type fakeFetcher struct {
	pages []node.Page
	errs  []error
	calls int
	seen  []*string
}

func (f *fakeFetcher) FullBlocks(ctx context.Context, cursor *string, pageSize int, forward bool) (node.Page, error) {
	f.seen = append(f.seen, cursor)
	i := f.calls
	if i >= len(f.pages) {
		i = len(f.pages) - 1
	}
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.pages[i], err
}

type fakeBridge struct {
	err       error
	callCount int
}

func (b *fakeBridge) HandleEvents(ctx context.Context, session *db.Session, blocks []block.Block) error {
	b.callCount++
	return b.err
}

func baseConfig() Config {
	return Config{
		PageSize:             10,
		MaxEmptyBlockReqs:    2,
		StopIdleIndexers:     true,
		IndexerFailedCalls:   2,
		DelayForServiceError: time.Millisecond,
		DelayForEmptyPage:    time.Millisecond,
		Forward:              true,
	}
}

func TestNewSeedsCursorFromStartBlock(t *testing.T) {
	l := New("uid", &fakeFetcher{pages: []node.Page{{}}}, &fakeBridge{}, nil, Config{StartBlock: 5}, new(atomic.Bool))
	if l.nextCursor == nil || *l.nextCursor != "4" {
		t.Fatalf("expected seed cursor \"4\", got %v", l.nextCursor)
	}

	l2 := New("uid", &fakeFetcher{pages: []node.Page{{}}}, &fakeBridge{}, nil, Config{StartBlock: 1}, new(atomic.Bool))
	if l2.nextCursor != nil {
		t.Fatalf("expected nil seed cursor for start_block=1, got %v", *l2.nextCursor)
	}
}

func TestRunStopsCleanlyAtEndBlock(t *testing.T) {
	endBlock := uint32(7)
	fetcher := &fakeFetcher{
		pages: []node.Page{
			{Cursor: strPtr("p1"), Results: []block.WireBlock{wireBlockAt(5), wireBlockAt(6)}},
			{Cursor: strPtr("p2"), Results: []block.WireBlock{wireBlockAt(7), wireBlockAt(8)}},
		},
	}
	bridge := &fakeBridge{}
	cfg := baseConfig()
	cfg.EndBlock = &endBlock
	cfg.StartBlock = 5

	l := New("uid", fetcher, bridge, nil, cfg, new(atomic.Bool))
	res := l.Run(context.Background())

	if res.Kind != ResultEndBlock {
		t.Fatalf("expected ResultEndBlock, got %v", res.Kind)
	}
	if bridge.callCount != 2 {
		t.Fatalf("expected handler invoked twice (once per page), got %d", bridge.callCount)
	}
}

func TestRunIdleTerminatesAfterEmptyPages(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: []node.Page{{Cursor: nil, Results: nil}},
	}
	cfg := baseConfig()
	cfg.MaxEmptyBlockReqs = 2

	l := New("uid", fetcher, &fakeBridge{}, nil, cfg, new(atomic.Bool))
	res := l.Run(context.Background())

	if res.Kind != ResultStopIdle {
		t.Fatalf("expected ResultStopIdle, got %v", res.Kind)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected exactly 2 fetches before idle stop, got %d", fetcher.calls)
	}
}

func TestRunUniqueViolationAdvancesCursorWithoutRetryIncrement(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: []node.Page{
			{Cursor: strPtr("C"), Results: []block.WireBlock{wireBlockAt(1)}},
			{Cursor: nil, Results: nil},
		},
	}
	bridge := &fakeBridge{err: &pgconn.PgError{Code: "23505"}}
	cfg := baseConfig()
	cfg.MaxEmptyBlockReqs = 1

	l := New("uid", fetcher, bridge, nil, cfg, new(atomic.Bool))
	res := l.Run(context.Background())

	if res.Kind != ResultStopIdle {
		t.Fatalf("expected eventual idle stop, got %v (err=%v)", res.Kind, res.Err)
	}
	if l.retryCount != 0 {
		t.Fatalf("expected retry_count to stay 0 on unique violation, got %d", l.retryCount)
	}
	if len(fetcher.seen) < 2 || fetcher.seen[1] == nil || *fetcher.seen[1] != "C" {
		t.Fatalf("expected second fetch to request cursor \"C\", got %v", fetcher.seen)
	}
}

func TestRunRetriesExhaustedExitsWithError(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: []node.Page{
			{Cursor: strPtr("C"), Results: []block.WireBlock{wireBlockAt(1)}},
		},
	}
	wantErr := errors.New("handler boom")
	bridge := &fakeBridge{err: wantErr}
	cfg := baseConfig()
	cfg.IndexerFailedCalls = 2

	l := New("uid", fetcher, bridge, nil, cfg, new(atomic.Bool))
	res := l.Run(context.Background())

	if res.Kind != ResultStopRetriesExhausted {
		t.Fatalf("expected ResultStopRetriesExhausted, got %v", res.Kind)
	}
	if !errors.Is(res.Err, wantErr) {
		t.Fatalf("expected wrapped handler error, got %v", res.Err)
	}
}

func TestRunKillSwitchObservedBetweenIterations(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: []node.Page{
			{Cursor: strPtr("C"), Results: []block.WireBlock{wireBlockAt(1)}},
		},
	}
	bridge := &fakeBridge{}
	killSwitch := new(atomic.Bool)
	killSwitch.Store(true)

	l := New("uid", fetcher, bridge, nil, baseConfig(), killSwitch)
	res := l.Run(context.Background())

	if res.Kind != ResultKillSwitch {
		t.Fatalf("expected ResultKillSwitch, got %v", res.Kind)
	}
}

func TestRunFetchErrorTreatedAsIdleNotRetry(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: []node.Page{{}},
		errs:  []error{errors.New("transport down")},
	}
	cfg := baseConfig()
	cfg.MaxEmptyBlockReqs = 1

	l := New("uid", fetcher, &fakeBridge{}, nil, cfg, new(atomic.Bool))
	res := l.Run(context.Background())

	if res.Kind != ResultStopIdle {
		t.Fatalf("expected ResultStopIdle for transport failure, got %v", res.Kind)
	}
	if l.retryCount != 0 {
		t.Fatalf("expected retry_count untouched by fetch error, got %d", l.retryCount)
	}
}
