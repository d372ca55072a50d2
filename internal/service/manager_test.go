package service

import (
	"context"
	"testing"
	"time"

	"indexer-engine/internal/block"
	"indexer-engine/internal/db"
	"indexer-engine/internal/node"
	"indexer-engine/internal/pullloop"
)

type fakeFetcher struct{}

func (fakeFetcher) FullBlocks(ctx context.Context, cursor *string, pageSize int, forward bool) (node.Page, error) {
	return node.Page{}, nil
}

type fakeBridge struct{}

func (fakeBridge) HandleEvents(ctx context.Context, session *db.Session, blocks []block.Block) error {
	return nil
}

func TestManagerRunsAllIndexersAndCollectsResults(t *testing.T) {
	mgr := NewManager()

	cfg := pullloop.Config{
		PageSize:             10,
		MaxEmptyBlockReqs:    1,
		StopIdleIndexers:     true,
		IndexerFailedCalls:   3,
		DelayForServiceError: time.Millisecond,
		DelayForEmptyPage:    time.Millisecond,
		Forward:              true,
	}

	for _, uid := range []string{"a", "b", "c"} {
		loop := pullloop.New(uid, fakeFetcher{}, fakeBridge{}, nil, cfg, mgr.KillSwitch())
		mgr.Register(Indexer{UID: uid, Loop: loop})
	}

	mgr.Start(context.Background())
	results := mgr.Wait()

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Kind != pullloop.ResultStopIdle {
			t.Fatalf("expected idle stop for every indexer, got %v for %s", r.Kind, r.UID)
		}
	}
}

func TestManagerStopSetsSharedKillSwitch(t *testing.T) {
	mgr := NewManager()
	if mgr.KillSwitch().Load() {
		t.Fatal("expected kill switch to start false")
	}
	mgr.Stop()
	if !mgr.KillSwitch().Load() {
		t.Fatal("expected kill switch true after Stop")
	}
}

func TestManagerKillSwitchStopsLoopsEarly(t *testing.T) {
	mgr := NewManager()
	cfg := pullloop.Config{
		PageSize:             10,
		DelayForServiceError: time.Millisecond,
		DelayForEmptyPage:    time.Millisecond,
		IndexerFailedCalls:   1000,
		Forward:              true,
	}
	loop := pullloop.New("a", fakeFetcher{}, fakeBridge{}, nil, cfg, mgr.KillSwitch())
	mgr.Register(Indexer{UID: "a", Loop: loop})

	mgr.Start(context.Background())
	time.Sleep(5 * time.Millisecond)
	mgr.Stop()

	done := make(chan struct{})
	var got []pullloop.Result
	go func() {
		got = mgr.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not stop promptly after Stop")
	}

	if len(got) != 1 || got[0].Kind != pullloop.ResultKillSwitch {
		t.Fatalf("expected 1 kill-switch result, got %+v", got)
	}
}
