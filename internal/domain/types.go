// Package domain holds the data model shared across the deliberation
// engine, the decision graph, voting, and convergence packages —
// kept dependency-free so none of those packages import each other
// just to share these types.
package domain

import "time"

// Participant identifies one backend instance taking part in a
// deliberation. ID is the composite "{model}@{adapter}" (the adapter
// name alone when ModelID is empty), used as a map key throughout round
// responses, convergence scores, and stances.
type Participant struct {
	AdapterName string
	ModelID     string
}

// ID returns "{model}@{adapter}", or the adapter name alone when ModelID
// is empty.
func (p Participant) ID() string {
	if p.ModelID == "" {
		return p.AdapterName
	}
	return p.ModelID + "@" + p.AdapterName
}

// RoundResponse is one participant's response in one round. Immutable
// once recorded.
type RoundResponse struct {
	Round         int
	ParticipantID string
	Response      string
	Timestamp     time.Time
}

// Vote is a structured opinion extracted from a participant's response.
type Vote struct {
	Option         string
	Confidence     float64
	Rationale      string
	ContinueDebate bool
	Cast           bool // false means no parseable vote in this response
}

// RoundVote associates a Vote with the round and participant that cast it.
type RoundVote struct {
	Round         int
	ParticipantID string
	Vote          Vote
	Timestamp     time.Time
}

// VotingResult is the derived tally across every round of a deliberation.
type VotingResult struct {
	Tally            map[string]int
	VotesByRound     [][]RoundVote
	ConsensusReached bool
	WinningOption    string // empty means no winner (tie)
}

// ConvergenceStatus enumerates every status value the detector can report.
type ConvergenceStatus string

const (
	StatusConverged          ConvergenceStatus = "converged"
	StatusRefining           ConvergenceStatus = "refining"
	StatusDiverging          ConvergenceStatus = "diverging"
	StatusImpasse            ConvergenceStatus = "impasse"
	StatusMaxRounds          ConvergenceStatus = "max_rounds"
	StatusUnanimousConsensus ConvergenceStatus = "unanimous_consensus"
	StatusMajorityDecision   ConvergenceStatus = "majority_decision"
	StatusTie                ConvergenceStatus = "tie"
	StatusUnknown            ConvergenceStatus = "unknown"
)

// ConvergenceInfo is the derived per-deliberation convergence summary.
type ConvergenceInfo struct {
	Detected               bool
	DetectionRound         int
	FinalSimilarity        float64
	Status                 ConvergenceStatus
	ScoresByRound          []float64
	PerParticipantSimilarity map[string]float64
}

// Summary is produced by a dedicated summarizing invocation of one
// participant adapter at the end of a deliberation.
type Summary struct {
	Consensus           string
	KeyAgreements       []string
	KeyDisagreements    []string
	FinalRecommendation string
}

// ResultStatus enumerates the three terminal states of a deliberation.
type ResultStatus string

const (
	ResultComplete ResultStatus = "complete"
	ResultPartial  ResultStatus = "partial"
	ResultFailed   ResultStatus = "failed"
)

// DeliberationResult is the top-level outcome returned from one
// deliberate() call.
type DeliberationResult struct {
	Status               ResultStatus     `json:"status"`
	Mode                 string           `json:"mode"`
	RoundsCompleted      int              `json:"rounds_completed"`
	Participants         []string         `json:"participants"`
	Summary              Summary          `json:"summary"`
	FullDebate           []RoundResponse  `json:"full_debate"`
	ConvergenceInfo      *ConvergenceInfo `json:"convergence_info"`
	VotingResult         *VotingResult    `json:"voting_result"`
	GraphContextSummary  string           `json:"graph_context_summary"`
	ToolExecutions       []string         `json:"tool_executions"`
	TranscriptPath       string           `json:"transcript_path"`
	RoundDurations       []time.Duration  `json:"round_durations"`
	TokenEstimate        int              `json:"token_estimate"`
}

// EstimateTokens approximates a token count as len(text)/4, the
// budget-accounting rule used identically by the graph-context
// formatter and the engine's TokenEstimate bookkeeping.
func EstimateTokens(text string) int {
	return len(text) / 4
}
