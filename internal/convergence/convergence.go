// Package convergence implements per-round, per-participant similarity
// trend analysis with stability windows, impasse detection, and the
// voting-aware status override applied to the final result.
package convergence

import (
	"context"

	"dev.aicounsel.server/internal/domain"
	"dev.aicounsel.server/internal/similarity"
)

// Config holds the thresholds from §4.8.
type Config struct {
	MinRoundsBeforeCheck        int
	SemanticSimilarityThreshold float64
	DivergenceThreshold         float64
	ConsecutiveStableRounds     int
	ImpasseConsecutiveRounds    int
}

// Detector tracks convergence state across the rounds of one
// deliberation. Not safe for concurrent use — the engine drives it
// sequentially, round by round.
type Detector struct {
	cfg      Config
	backend  *similarity.Detector
	scoresByRound []float64

	consecutiveStable      int
	consecutiveStableBelow int // impasse counter, distinct from consecutiveStable
}

// New builds a detector for one deliberation.
func New(cfg Config, backend *similarity.Detector) *Detector {
	return &Detector{cfg: cfg, backend: backend}
}

// Check compares round responses against the previous round's,
// returning updated ConvergenceInfo. previous may be nil for round 1.
func (d *Detector) Check(ctx context.Context, roundNumber int, current, previous []domain.RoundResponse) *domain.ConvergenceInfo {
	if roundNumber < d.cfg.MinRoundsBeforeCheck || previous == nil {
		return &domain.ConvergenceInfo{Status: domain.StatusRefining, ScoresByRound: d.scoresByRound}
	}

	previousByParticipant := make(map[string]string, len(previous))
	for _, r := range previous {
		previousByParticipant[r.ParticipantID] = r.Response
	}

	perParticipant := make(map[string]float64)
	minSim := 1.0
	found := false
	for _, r := range current {
		prevResponse, ok := previousByParticipant[r.ParticipantID]
		if !ok {
			continue
		}
		score, err := d.backend.Similarity(ctx, r.Response, prevResponse)
		if err != nil {
			score = 0
		}
		perParticipant[r.ParticipantID] = score
		if !found || score < minSim {
			minSim = score
			found = true
		}
	}
	if !found {
		minSim = 0
	}

	d.scoresByRound = append(d.scoresByRound, minSim)

	if minSim >= d.cfg.SemanticSimilarityThreshold {
		d.consecutiveStable++
	} else {
		d.consecutiveStable = 0
	}

	// Impasse: stable (non-diverging) but persistently below the
	// converge threshold — a second counter kept independent of
	// consecutiveStable so a single near-miss round doesn't reset both.
	if minSim >= d.cfg.DivergenceThreshold && minSim < d.cfg.SemanticSimilarityThreshold {
		d.consecutiveStableBelow++
	} else {
		d.consecutiveStableBelow = 0
	}

	status := domain.StatusUnknown
	detected := false
	switch {
	case minSim >= d.cfg.SemanticSimilarityThreshold && d.consecutiveStable >= d.cfg.ConsecutiveStableRounds:
		status = domain.StatusConverged
		detected = true
	case d.consecutiveStableBelow >= d.cfg.ImpasseConsecutiveRounds:
		status = domain.StatusImpasse
	case minSim < d.cfg.DivergenceThreshold:
		status = domain.StatusDiverging
	default:
		status = domain.StatusRefining
	}

	info := &domain.ConvergenceInfo{
		Detected:                 detected,
		FinalSimilarity:          minSim,
		Status:                   status,
		ScoresByRound:            append([]float64(nil), d.scoresByRound...),
		PerParticipantSimilarity: perParticipant,
	}
	if detected {
		info.DetectionRound = roundNumber
	}
	return info
}

// ResolveFinalStatus applies the voting-aware override: unanimous
// voting agreement wins over a similarity-derived status, then strict
// majority, then a tie report. Called once on the last round's
// ConvergenceInfo before it is attached to the final result.
func ResolveFinalStatus(info *domain.ConvergenceInfo, voting *domain.VotingResult, participantCount int) {
	if info == nil || voting == nil || len(voting.Tally) == 0 {
		return
	}
	totalVotes := 0
	for _, count := range voting.Tally {
		totalVotes += count
	}
	if totalVotes == 0 {
		return
	}

	if len(voting.Tally) == 1 {
		info.Status = domain.StatusUnanimousConsensus
		return
	}
	if voting.WinningOption == "" {
		info.Status = domain.StatusTie
		return
	}
	if voting.Tally[voting.WinningOption]*2 > totalVotes {
		info.Status = domain.StatusMajorityDecision
	}
}
