// Package pullloop implements the indexer's main state machine: cursor
// management, paginated fetch, end-block detection, error classification
// and retry, idle-timeout termination, and kill-switch observation
// (spec.md §4.7).
package pullloop

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"indexer-engine/internal/block"
	"indexer-engine/internal/db"
	"indexer-engine/internal/node"
	"indexer-engine/internal/sandbox"
)

// NodeFetcher is the pull loop's abstract view of its node client (spec.md
// §9: "model as an abstract capability"), satisfied by *node.Client and by
// a fake in this package's tests.
type NodeFetcher interface {
	FullBlocks(ctx context.Context, cursor *string, pageSize int, forward bool) (node.Page, error)
}

// ResultKind discriminates why a Loop stopped. Idle termination and
// retry-exhaustion are kept distinct per spec.md §9 ("both terminate the
// task; they are logically distinct and must be distinguishable in logs
// and exit signal").
type ResultKind int

const (
	ResultEndBlock ResultKind = iota
	ResultKillSwitch
	ResultStopIdle
	ResultStopRetriesExhausted
)

func (k ResultKind) String() string {
	switch k {
	case ResultEndBlock:
		return "end_block_reached"
	case ResultKillSwitch:
		return "kill_switch"
	case ResultStopIdle:
		return "idle_timeout"
	case ResultStopRetriesExhausted:
		return "retries_exhausted"
	default:
		return "unknown"
	}
}

// Result is a Loop's join value. Err is set only for ResultStopRetriesExhausted
// (spec.md §6: "exits with error on exhausted retry budget").
type Result struct {
	UID  string
	Kind ResultKind
	Err  error
}

// Config holds the manifest/config-sourced parameters governing one Loop
// (spec.md §4.7).
type Config struct {
	PageSize             int
	MaxEmptyBlockReqs    int // ignored unless StopIdleIndexers
	StopIdleIndexers     bool
	IndexerFailedCalls   int
	DelayForServiceError time.Duration
	DelayForEmptyPage    time.Duration
	StartBlock           uint32
	EndBlock             *uint32
	Forward              bool
}

// Loop is the pull loop state machine for one indexer. It owns the only
// long-lived reference to its node client, bridge, and session; when Run
// returns, the caller is expected to release the session (spec.md §4.7:
// "when it stops, the bridge and session are dropped").
type Loop struct {
	uid        string
	nodeClient NodeFetcher
	bridge     sandbox.Bridge
	session    *db.Session
	cfg        Config
	killSwitch *atomic.Bool

	nextCursor        *string
	retryCount        int
	numEmptyBlockReqs int
}

// New builds a Loop. The cursor is seeded per spec.md §8: "Cursor seed when
// start_block = 1 is None; when start_block = N > 1, it is 'N-1'."
func New(uid string, nodeClient NodeFetcher, bridge sandbox.Bridge, session *db.Session, cfg Config, killSwitch *atomic.Bool) *Loop {
	var seed *string
	if cfg.StartBlock > 1 {
		s := strconv.FormatUint(uint64(cfg.StartBlock-1), 10)
		seed = &s
	}
	return &Loop{
		uid:        uid,
		nodeClient: nodeClient,
		bridge:     bridge,
		session:    session,
		cfg:        cfg,
		killSwitch: killSwitch,
		nextCursor: seed,
	}
}

// Run drives the loop until it stops for one of the ResultKind reasons. It
// never returns early on ordinary errors — those are classified and
// retried in place, per spec.md §4.7 step 5.
func (l *Loop) Run(ctx context.Context) Result {
	for {
		select {
		case <-ctx.Done():
			return Result{UID: l.uid, Kind: ResultKillSwitch}
		default:
		}

		page, fetchErr := l.nodeClient.FullBlocks(ctx, l.nextCursor, l.cfg.PageSize, l.cfg.Forward)
		if fetchErr != nil {
			logrus.WithField("uid", l.uid).WithError(fetchErr).Warn("pullloop: node fetch failed, treating as empty page")
			if res, stop := l.onEmptyPage(); stop {
				return res
			}
			if l.killSwitch.Load() {
				return Result{UID: l.uid, Kind: ResultKillSwitch}
			}
			continue
		}

		wireBlocks, reachedEndBlock := l.truncateAtEndBlock(page.Results)

		if reachedEndBlock && len(wireBlocks) == 0 {
			// The very first block of this page already exceeds
			// end_block: nothing to hand the bridge, and this is a
			// clean stop, not an idle page.
			logrus.WithField("uid", l.uid).Info("pullloop: end block reached")
			return Result{UID: l.uid, Kind: ResultEndBlock}
		}

		// A nil response cursor means the node has no more data right
		// now: take the idle path without advancing.
		if len(wireBlocks) == 0 || page.Cursor == nil {
			if res, stop := l.onEmptyPage(); stop {
				return res
			}
			if l.killSwitch.Load() {
				return Result{UID: l.uid, Kind: ResultKillSwitch}
			}
			continue
		}

		normalized, stats, normErr := block.Normalize(wireBlocks)
		if normErr != nil {
			if res, stop := l.onOtherError(normErr); stop {
				return res
			}
			if l.killSwitch.Load() {
				return Result{UID: l.uid, Kind: ResultKillSwitch}
			}
			continue
		}

		handleErr := l.bridge.HandleEvents(ctx, l.session, normalized)
		switch {
		case handleErr == nil:
			l.nextCursor = page.Cursor
			l.retryCount = 0
			l.numEmptyBlockReqs = 0
			logrus.WithField("uid", l.uid).WithFields(logrus.Fields{
				"blocks":       stats.Blocks,
				"transactions": stats.Transactions,
			}).Debug("pullloop: batch applied")

		case db.IsUniqueViolation(handleErr):
			// Capture the current response's forward token explicitly
			// rather than reading a loop-scoped variable later; nil-cursor
			// responses were already routed to the idle path (spec.md §9).
			forwardCursor := page.Cursor
			l.nextCursor = forwardCursor
			logrus.WithField("uid", l.uid).WithError(handleErr).Warn("pullloop: unique-constraint violation, treating batch as already applied")

		default:
			if res, stop := l.onOtherError(handleErr); stop {
				return res
			}
			if l.killSwitch.Load() {
				return Result{UID: l.uid, Kind: ResultKillSwitch}
			}
			continue
		}

		if reachedEndBlock {
			logrus.WithField("uid", l.uid).Info("pullloop: end block reached")
			return Result{UID: l.uid, Kind: ResultEndBlock}
		}
		if l.killSwitch.Load() {
			return Result{UID: l.uid, Kind: ResultKillSwitch}
		}
	}
}

// truncateAtEndBlock returns the prefix of blocks at or below end_block
// (when set) and whether the page was trimmed (spec.md §4.7 step 2, §8
// scenario 4: a page of {5,6,7,8} with end_block=7 yields {5,6,7} and a
// clean stop).
func (l *Loop) truncateAtEndBlock(blocks []block.WireBlock) ([]block.WireBlock, bool) {
	if l.cfg.EndBlock == nil {
		return blocks, false
	}
	for i, wb := range blocks {
		if wb.Height > *l.cfg.EndBlock {
			return blocks[:i], true
		}
	}
	return blocks, false
}

// onEmptyPage applies the empty-page outcome (spec.md §4.7 step 5): sleep,
// increment the idle counter, and stop if the idle budget is exhausted and
// stop_idle_indexers is enabled.
func (l *Loop) onEmptyPage() (Result, bool) {
	time.Sleep(l.cfg.DelayForEmptyPage)
	l.numEmptyBlockReqs++
	if l.cfg.StopIdleIndexers && l.numEmptyBlockReqs >= l.cfg.MaxEmptyBlockReqs {
		logrus.WithField("uid", l.uid).Info("pullloop: idle termination, blocks stopped being produced")
		return Result{UID: l.uid, Kind: ResultStopIdle}, true
	}
	return Result{}, false
}

// onOtherError applies the generic error outcome (spec.md §4.7 step 5,
// §7): sleep, increment the retry counter, and abort with error once the
// retry budget is exhausted.
func (l *Loop) onOtherError(err error) (Result, bool) {
	logrus.WithField("uid", l.uid).WithError(err).Warn("pullloop: error, retrying")
	time.Sleep(l.cfg.DelayForServiceError)
	l.retryCount++
	if l.retryCount >= l.cfg.IndexerFailedCalls {
		logrus.WithField("uid", l.uid).WithError(err).Error("pullloop: retry budget exhausted, task exiting with error")
		return Result{UID: l.uid, Kind: ResultStopRetriesExhausted, Err: err}, true
	}
	return Result{}, false
}
