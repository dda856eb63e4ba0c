// Package integration is the glue between the deliberation engine and
// the decision graph: it formats retrieved decisions into injectable
// context under a token budget, and persists a completed deliberation
// as a decision node plus per-participant stances.
package integration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"dev.aicounsel.server/internal/cache"
	"dev.aicounsel.server/internal/domain"
	"dev.aicounsel.server/internal/graph/retriever"
	"dev.aicounsel.server/internal/graph/store"
	"dev.aicounsel.server/internal/graph/worker"
)

// TierBoundaries partitions retrieved results for context formatting.
// Invariant: 0 < Moderate < Strong <= 1.
type TierBoundaries struct {
	Strong   float64
	Moderate float64
}

// Integration wires the retriever, store, cache, and background worker
// together behind the two operations the engine calls.
type Integration struct {
	retriever          *retriever.Retriever
	store              store.Store
	tiered             *cache.TieredCache // nil when caching is disabled
	worker             *worker.Worker
	maxContextDecisions int
	tokenBudget        int
	tiers              TierBoundaries
}

// New builds the integration layer.
func New(r *retriever.Retriever, s store.Store, tiered *cache.TieredCache, w *worker.Worker, maxContextDecisions, tokenBudget int, tiers TierBoundaries) *Integration {
	return &Integration{
		retriever: r, store: s, tiered: tiered, worker: w,
		maxContextDecisions: maxContextDecisions, tokenBudget: tokenBudget, tiers: tiers,
	}
}

// BuildContext retrieves up to maxContextDecisions relevant past
// decisions and formats them as a markdown block for injection into a
// new deliberation's prompt context, honoring the configured token
// budget. Returns "" if nothing qualifies.
func (i *Integration) BuildContext(ctx context.Context, question string, threshold float64) (string, error) {
	results, err := i.retriever.FindRelevant(ctx, question, threshold, i.maxContextDecisions)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	var strong, moderate []retriever.Scored
	for _, r := range results {
		switch {
		case r.Score >= i.tiers.Strong:
			strong = append(strong, r)
		case r.Score >= i.tiers.Moderate:
			moderate = append(moderate, r)
		}
	}
	sort.Slice(strong, func(a, b int) bool { return strong[a].Score > strong[b].Score })
	sort.Slice(moderate, func(a, b int) bool { return moderate[a].Score > moderate[b].Score })

	if len(strong) == 0 && len(moderate) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("The following past decisions may be relevant historical context. Consider them but do not treat them as binding.\n\n")
	writeTier(&b, "Strong Matches", strong)
	writeTier(&b, "Moderate Matches", moderate)
	b.WriteString("Use this context to inform your reasoning, not to replace it.\n")

	return enforceBudget(b.String(), i.tokenBudget), nil
}

func writeTier(b *strings.Builder, heading string, results []retriever.Scored) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, r := range results {
		fmt.Fprintf(b, "- **Question:** %s\n  **Consensus:** %s\n", r.Node.Question, r.Node.Consensus)
		if r.Node.WinningOption != "" {
			fmt.Fprintf(b, "  **Winning option:** %s\n", r.Node.WinningOption)
		}
		fmt.Fprintf(b, "  **Participants:** %d, **Date:** %s\n\n", len(r.Node.Participants), r.Node.Timestamp.Format("2006-01-02"))
	}
}

// enforceBudget drops trailing lines (the lowest-tier, lowest-score
// decisions render last) until the block fits the token budget, using
// the engine-wide len/4 estimate.
func enforceBudget(text string, tokenBudget int) string {
	if domain.EstimateTokens(text) <= tokenBudget {
		return text
	}
	lines := strings.Split(text, "\n")
	for domain.EstimateTokens(strings.Join(lines, "\n")) > tokenBudget && len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// StoreDeliberation persists question's DeliberationResult as a decision
// node plus one stance per participant, invalidates the L1 cache, and
// enqueues asynchronous similarity computation.
func (i *Integration) StoreDeliberation(ctx context.Context, question string, result domain.DeliberationResult) (string, error) {
	id := uuid.NewString()

	convergenceStatus := "unknown"
	winningOption := ""
	if result.ConvergenceInfo != nil {
		convergenceStatus = string(result.ConvergenceInfo.Status)
	}
	if result.VotingResult != nil {
		winningOption = result.VotingResult.WinningOption
	}

	node := store.DecisionNode{
		ID:                id,
		Question:          question,
		Timestamp:         time.Now().UTC(),
		Consensus:         result.Summary.Consensus,
		WinningOption:     winningOption,
		ConvergenceStatus: convergenceStatus,
		Participants:      result.Participants,
		TranscriptPath:    result.TranscriptPath,
		Metadata:          map[string]string{"mode": result.Mode},
	}

	stances := buildStances(id, result)

	if err := i.store.SaveDecision(node); err != nil {
		return "", err
	}
	for _, st := range stances {
		if _, err := i.store.SaveStance(st); err != nil {
			return "", err
		}
	}

	if i.tiered != nil {
		i.tiered.OnDecisionStored()
	}

	if i.worker != nil {
		// Non-blocking contract: queue-full (or no running worker
		// loop) degrades to synchronous computation rather than
		// losing the edge entirely.
		if !i.worker.Stats().Running {
			_ = i.worker.ComputeNow(id)
		} else if err := i.worker.Enqueue(ctx, id, worker.PriorityLow, id, 0); err != nil {
			_ = i.worker.ComputeNow(id)
		}
	}

	return id, nil
}

func buildStances(decisionID string, result domain.DeliberationResult) []store.Stance {
	// The stance's vote is the participant's last *cast* vote across the
	// full debate: iterating oldest round to newest and overwriting only
	// on a cast vote means a later abstention never erases an earlier
	// real vote.
	lastVoteByParticipant := make(map[string]domain.Vote)
	if result.VotingResult != nil {
		for _, round := range result.VotingResult.VotesByRound {
			for _, rv := range round {
				if rv.Vote.Cast {
					lastVoteByParticipant[rv.ParticipantID] = rv.Vote
				}
			}
		}
	}

	lastResponseByParticipant := make(map[string]string)
	for _, rr := range result.FullDebate {
		lastResponseByParticipant[rr.ParticipantID] = rr.Response
	}

	stances := make([]store.Stance, 0, len(result.Participants))
	for _, pid := range result.Participants {
		vote, hasVote := lastVoteByParticipant[pid]
		st := store.Stance{
			DecisionID:    decisionID,
			ParticipantID: pid,
			FinalPosition: truncate(lastResponseByParticipant[pid], 2000),
		}
		if hasVote && vote.Cast {
			st.VoteOption = vote.Option
			st.Confidence = vote.Confidence
			st.HasConfidence = true
			st.Rationale = vote.Rationale
		}
		stances = append(stances, st)
	}
	return stances
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
