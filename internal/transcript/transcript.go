// Package transcript writes one markdown file per deliberation,
// recording every round's responses and, when present, the voting
// results.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"dev.aicounsel.server/internal/domain"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases and collapses question into a filesystem-safe slug,
// capped at 60 characters.
func Slugify(question string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(question), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "deliberation"
	}
	if len(slug) > 60 {
		slug = slug[:60]
	}
	return slug
}

// Writer persists deliberation transcripts under Dir.
type Writer struct {
	Dir string
}

// New builds a Writer rooted at dir; Write creates dir if necessary.
func New(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Write renders result as markdown and saves it as
// "{UTC timestamp}_{slug}.md", returning the path written.
func (w *Writer) Write(question string, result domain.DeliberationResult, now time.Time) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.md", now.UTC().Format("20060102T150405Z"), Slugify(question))
	path := filepath.Join(w.Dir, filename)

	content := render(question, result)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

func render(question string, result domain.DeliberationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Deliberation: %s\n\n", question)
	fmt.Fprintf(&b, "- **Mode:** %s\n", result.Mode)
	fmt.Fprintf(&b, "- **Rounds completed:** %d\n", result.RoundsCompleted)
	fmt.Fprintf(&b, "- **Participants:** %s\n", strings.Join(result.Participants, ", "))
	fmt.Fprintf(&b, "- **Status:** %s\n\n", result.Status)

	byRound := make(map[int][]domain.RoundResponse)
	var rounds []int
	for _, r := range result.FullDebate {
		if _, seen := byRound[r.Round]; !seen {
			rounds = append(rounds, r.Round)
		}
		byRound[r.Round] = append(byRound[r.Round], r)
	}
	for _, round := range rounds {
		fmt.Fprintf(&b, "## Round %d\n\n", round)
		for _, r := range byRound[round] {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", r.ParticipantID, r.Response)
		}
	}

	if result.VotingResult != nil && len(result.VotingResult.VotesByRound) > 0 {
		b.WriteString("## Voting Results\n\n")
		for option, count := range result.VotingResult.Tally {
			fmt.Fprintf(&b, "- **%s:** %d vote(s)\n", option, count)
		}
		if result.VotingResult.WinningOption != "" {
			fmt.Fprintf(&b, "\n**Winning option:** %s\n", result.VotingResult.WinningOption)
		}
		fmt.Fprintf(&b, "**Consensus reached:** %t\n\n", result.VotingResult.ConsensusReached)
	}

	if result.ConvergenceInfo != nil {
		fmt.Fprintf(&b, "## Convergence\n\n- **Status:** %s\n", result.ConvergenceInfo.Status)
		if result.ConvergenceInfo.Detected {
			fmt.Fprintf(&b, "- **Detected at round:** %d\n", result.ConvergenceInfo.DetectionRound)
		}
		fmt.Fprintf(&b, "- **Final similarity:** %.4f\n\n", result.ConvergenceInfo.FinalSimilarity)
	}

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "**Consensus:** %s\n\n", result.Summary.Consensus)
	if len(result.Summary.KeyAgreements) > 0 {
		b.WriteString("**Key Agreements:**\n\n")
		for _, a := range result.Summary.KeyAgreements {
			fmt.Fprintf(&b, "- %s\n", a)
		}
		b.WriteString("\n")
	}
	if len(result.Summary.KeyDisagreements) > 0 {
		b.WriteString("**Key Disagreements:**\n\n")
		for _, d := range result.Summary.KeyDisagreements {
			fmt.Fprintf(&b, "- %s\n", d)
		}
		b.WriteString("\n")
	}
	if result.Summary.FinalRecommendation != "" {
		fmt.Fprintf(&b, "**Final Recommendation:** %s\n", result.Summary.FinalRecommendation)
	}

	return b.String()
}
