// Package voting extracts structured votes from free-form participant
// responses, tallies them across a deliberation, and implements the
// early-stopping policy.
package voting

import (
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"dev.aicounsel.server/internal/domain"
)

const votePrefix = "VOTE:"

type rawVote struct {
	Option         string   `json:"option"`
	Confidence     *float64 `json:"confidence"`
	Rationale      string   `json:"rationale"`
	ContinueDebate *bool    `json:"continue_debate"`
}

// ParseVote looks for the first "VOTE:" marker anywhere in response,
// followed by a JSON object, repairs common LLM JSON mistakes (unquoted keys,
// single quotes, trailing commas, markdown fences), and extracts a Vote.
// Returns a Vote with Cast=false, no error, if no vote marker is present
// or the JSON cannot be repaired/parsed — a malformed vote never halts
// the round.
func ParseVote(response string) domain.Vote {
	payload, ok := extractVotePayload(response)
	if !ok {
		return domain.Vote{Cast: false}
	}

	repaired, err := jsonrepair.RepairJSON(payload)
	if err != nil {
		repaired = payload
	}

	var rv rawVote
	if err := json.Unmarshal([]byte(repaired), &rv); err != nil {
		return domain.Vote{Cast: false}
	}
	if strings.TrimSpace(rv.Option) == "" {
		return domain.Vote{Cast: false}
	}

	vote := domain.Vote{
		Option:         strings.TrimSpace(rv.Option),
		Rationale:      rv.Rationale,
		ContinueDebate: true, // default per §4.9 when the field is omitted
		Cast:           true,
	}
	if rv.Confidence != nil {
		vote.Confidence = clamp01(*rv.Confidence)
	}
	if rv.ContinueDebate != nil {
		vote.ContinueDebate = *rv.ContinueDebate
	}
	return vote
}

// extractVotePayload finds the first "VOTE:" line and returns the text
// following it through the end of the response, trimmed of surrounding
// markdown code fences.
func extractVotePayload(response string) (string, bool) {
	idx := strings.Index(response, votePrefix)
	if idx == -1 {
		return "", false
	}
	payload := response[idx+len(votePrefix):]
	payload = strings.TrimSpace(payload)
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	if end := strings.Index(payload, "```"); end != -1 {
		payload = payload[:end]
	}
	return strings.TrimSpace(payload), payload != ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
