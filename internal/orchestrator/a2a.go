package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/superagent/legalengine/internal/concurrency"
	"github.com/superagent/legalengine/internal/embedding"
	"github.com/superagent/legalengine/internal/models"
)

// peerEnvelope holds a sub-request's identifying fields: a request id, the
// original query's correlation id, and a depth (depth 0 -> depth 1; a
// depth-1 request never triggers collaboration). Search fills in only the
// depth, and collaborate passes only depth+1 on to searchDomain; the
// request id and correlation id stay empty. The engine runs every domain
// in one process, so peer dispatch is an in-process call rather than an
// actual network hop — see DESIGN.md for why no transport was introduced
// for it.
type peerEnvelope struct {
	requestID     string
	correlationID string
	depth         int
}

// collaborate implements spec 4.6.3: ask the LLM whether to consult peers,
// then fan out to up to MaxPeers of them concurrently, bounded by a
// semaphore, merging each response in as it arrives.
func (o *Orchestrator) collaborate(ctx context.Context, query string, primary []*models.SearchResult, peers []domainCandidate, env peerEnvelope, limit int, emit models.Emitter) ([]*models.SearchResult, []string, int, error) {
	if o.gateway == nil || len(peers) == 0 {
		return primary, nil, 0, nil
	}

	labels := make([]string, len(peers))
	for i, p := range peers {
		labels[i] = p.Label
	}

	decision, err := o.gateway.DecideCollaboration(ctx, query, summarizeResults(primary), labels)
	if err != nil || decision == nil || !decision.ShouldCollaborate || len(decision.Targets) == 0 {
		if err != nil {
			o.log.WithError(err).Warn("collaboration decision unavailable, skipping A2A")
		}
		return primary, nil, 1, nil
	}

	targets := decision.Targets
	if len(targets) > o.tun.MaxPeers {
		targets = targets[:o.tun.MaxPeers]
	}

	emit.Emit(models.ProgressEvent{Status: models.EventA2AStarted, Targets: targetLabels(targets)})

	sem := concurrency.NewSemaphore(o.tun.MaxPeers)
	defer sem.Close()

	var mu sync.Mutex
	merged := primary
	var completed []string

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		domainID, ok := labelToID(peers, target.DomainLabel)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := sem.Acquire(gctx); err != nil {
				return nil
			}
			defer sem.Release()

			results, err := o.searchDomain(gctx, domainID, target.RefinedQuery, limit, env.depth+1)
			if err != nil {
				o.log.WithError(err).WithField("domain", domainID).Warn("peer domain search failed, continuing without it")
				return nil
			}

			mu.Lock()
			merged = mergeA2A(merged, domainID, results)
			completed = append(completed, domainID)
			mu.Unlock()

			emit.Emit(models.ProgressEvent{Status: models.EventA2APeerCompleted, Target: target.DomainLabel, ResultCount: len(results)})
			return nil
		})
	}
	_ = g.Wait()

	return merged, completed, 1, nil
}

func targetLabels(targets []embedding.CollaborationTarget) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.DomainLabel
	}
	return out
}
