package transcript

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.aicounsel.server/internal/domain"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "should-we-deploy-today", Slugify("Should we deploy today?"))
	assert.Equal(t, "deliberation", Slugify("???"))
}

func TestWrite_CreatesFileWithExpectedName(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)
	now := time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC)

	result := domain.DeliberationResult{
		Mode: "conference", RoundsCompleted: 1, Participants: []string{"a@x"},
		Status: domain.ResultComplete,
		FullDebate: []domain.RoundResponse{
			{Round: 1, ParticipantID: "a@x", Response: "we should proceed"},
		},
		Summary: domain.Summary{Consensus: "proceed"},
	}

	path, err := w.Write("should we deploy?", result, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260305T123000Z_should-we-deploy.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "we should proceed")
	assert.Contains(t, content, "proceed")
}

func TestWrite_IncludesVotingSectionWhenVotesPresent(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	result := domain.DeliberationResult{
		Mode: "conference", Participants: []string{"a@x", "b@y"},
		VotingResult: &domain.VotingResult{
			Tally:            map[string]int{"approve": 2},
			WinningOption:    "approve",
			ConsensusReached: true,
			VotesByRound: [][]domain.RoundVote{
				{{Round: 1, ParticipantID: "a@x", Vote: domain.Vote{Option: "approve", Cast: true}}},
			},
		},
	}
	path, err := w.Write("should we merge?", result, time.Now())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Voting Results")
	assert.Contains(t, content, "Winning option:** approve")
}

func TestWrite_OmitsVotingSectionWhenNoVotes(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)
	result := domain.DeliberationResult{Mode: "quick", Participants: []string{"a@x"}}
	path, err := w.Write("simple question here", result, time.Now())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Voting Results")
}
