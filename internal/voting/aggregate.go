package voting

import "dev.aicounsel.server/internal/domain"

// Aggregate tallies every cast vote across all rounds and derives the
// winning option. votesByRound must be ordered oldest round first.
//
// winning_option is set only on a strict plurality (a single option with
// the maximum vote count); a tie at the maximum leaves it empty.
// consensus_reached requires a single option with strictly more than
// half of all cast votes.
func Aggregate(votesByRound [][]domain.RoundVote) domain.VotingResult {
	tally := make(map[string]int)
	totalCast := 0
	for _, round := range votesByRound {
		for _, rv := range round {
			if !rv.Vote.Cast {
				continue
			}
			tally[rv.Vote.Option]++
			totalCast++
		}
	}

	result := domain.VotingResult{Tally: tally, VotesByRound: votesByRound}
	if totalCast == 0 {
		return result
	}

	best := ""
	bestCount := 0
	tied := false
	for option, count := range tally {
		switch {
		case count > bestCount:
			best, bestCount, tied = option, count, false
		case count == bestCount:
			tied = true
		}
	}
	if !tied {
		result.WinningOption = best
	}
	if bestCount*2 > totalCast && !tied {
		result.ConsensusReached = true
	}
	return result
}

// ShouldStopEarly implements the §4.9 early-stopping policy: once
// minRounds have completed, if the fraction of the latest round's votes
// (abstentions included) with ContinueDebate=false reaches threshold, the deliberation
// halts before its configured round limit. Participants who did not
// cast a vote in the round are treated as voting to continue.
func ShouldStopEarly(latestRound []domain.RoundVote, roundNumber, minRounds int, threshold float64) bool {
	if roundNumber < minRounds || len(latestRound) == 0 {
		return false
	}
	stopVotes := 0
	for _, rv := range latestRound {
		if rv.Vote.Cast && !rv.Vote.ContinueDebate {
			stopVotes++
		}
	}
	fraction := float64(stopVotes) / float64(len(latestRound))
	return fraction >= threshold
}
