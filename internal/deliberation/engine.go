// Package deliberation implements the top-level round orchestrator
// (C10): it fans prompts out to every participant each round, parses
// votes, checks convergence and early-stopping, executes any requested
// tools, and produces the final DeliberationResult.
package deliberation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dev.aicounsel.server/internal/adapter"
	"dev.aicounsel.server/internal/aierrors"
	"dev.aicounsel.server/internal/config"
	"dev.aicounsel.server/internal/convergence"
	"dev.aicounsel.server/internal/domain"
	"dev.aicounsel.server/internal/graph/integration"
	"dev.aicounsel.server/internal/similarity"
	"dev.aicounsel.server/internal/tools"
	"dev.aicounsel.server/internal/transcript"
	"dev.aicounsel.server/internal/voting"
)

// recentToolWindowRounds bounds how many past rounds' tool-execution
// results are re-injected into the next round's context (§4.10 2.a).
const recentToolWindowRounds = 2

// recentToolResultMaxChars truncates each injected tool output.
const recentToolResultMaxChars = 1000

// SummarizerSpec names the adapter+model invoked once at the end of a
// deliberation to produce the structured Summary.
type SummarizerSpec struct {
	AdapterName string
	ModelID     string
}

// Engine is the stateless top-level orchestrator; one instance serves
// every Execute call concurrently (each call builds its own per-request
// state).
type Engine struct {
	registry      *adapter.Registry
	defaults      config.Defaults
	convergence   config.ConvergenceConfig
	earlyStopping config.EarlyStoppingConfig
	toolSecurity  config.ToolSecurityConfig
	detector      *similarity.Detector
	graph         *integration.Integration // nil disables graph-context assembly/storage
	transcripts   *transcript.Writer
	summarizer    SummarizerSpec
	logger        *logrus.Logger
}

// New builds an Engine. graph and transcripts may be nil to disable
// those features (e.g. graph disabled via decision_graph.enabled=false).
func New(
	registry *adapter.Registry,
	defaults config.Defaults,
	convergenceCfg config.ConvergenceConfig,
	earlyStopping config.EarlyStoppingConfig,
	toolSecurity config.ToolSecurityConfig,
	detector *similarity.Detector,
	graph *integration.Integration,
	transcripts *transcript.Writer,
	summarizer SummarizerSpec,
	logger *logrus.Logger,
) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		registry: registry, defaults: defaults, convergence: convergenceCfg,
		earlyStopping: earlyStopping, toolSecurity: toolSecurity, detector: detector,
		graph: graph, transcripts: transcripts, summarizer: summarizer, logger: logger,
	}
}

// Execute runs one full deliberation end to end.
func (e *Engine) Execute(ctx context.Context, req Request) (domain.DeliberationResult, error) {
	if err := req.Validate(e.defaults.MaxRounds); err != nil {
		return domain.DeliberationResult{}, err
	}

	rounds := req.Rounds
	if rounds == 0 {
		rounds = e.defaults.Rounds
	}
	mode := req.Mode
	if mode == "" {
		mode = e.defaults.Mode
	}
	if mode == ModeQuick {
		rounds = 1
	}

	participantIDs := make([]string, len(req.Participants))
	for i, p := range req.Participants {
		participantIDs[i] = p.ID()
	}

	graphContextSummary := ""
	if e.graph != nil {
		summary, err := e.graph.BuildContext(ctx, req.Question, 0)
		if err == nil {
			graphContextSummary = summary
		} else {
			e.logger.WithError(err).Warn("graph context assembly failed, proceeding without historical context")
		}
	}
	baselineContext := joinContext(graphContextSummary, req.Context)

	toolExecutor := tools.New(req.WorkingDirectory)
	if len(e.toolSecurity.ExcludedPaths) > 0 {
		toolExecutor.ExcludedPaths = e.toolSecurity.ExcludedPaths
	}
	if e.toolSecurity.MaxFileSizeKB > 0 {
		toolExecutor.MaxFileSize = int64(e.toolSecurity.MaxFileSizeKB) * 1024
	}

	conv := convergence.New(convergence.Config{
		MinRoundsBeforeCheck:        e.convergence.MinRoundsBeforeCheck,
		SemanticSimilarityThreshold: e.convergence.SemanticSimilarityThreshold,
		DivergenceThreshold:         e.convergence.DivergenceThreshold,
		ConsecutiveStableRounds:     e.convergence.ConsecutiveStableRounds,
		ImpasseConsecutiveRounds:    e.convergence.ImpasseConsecutiveRounds,
	}, e.detector)

	var (
		fullDebate      []domain.RoundResponse
		votesByRound    [][]domain.RoundVote
		toolExecutions  []tools.Result
		roundDurations  []time.Duration
		convergenceInfo *domain.ConvergenceInfo
		roundsCompleted int
	)

	for round := 1; round <= rounds; round++ {
		roundStart := time.Now()

		roundContext := baselineContext
		if round > 1 {
			roundContext = buildTranscriptContext(fullDebate) + "\n\n" + recentToolResultsBlock(toolExecutions, round)
		}

		prevResponses := responsesForRound(fullDebate, round-1)
		responses := e.fanOut(ctx, req, round, roundContext)
		fullDebate = append(fullDebate, responses...)

		roundVotes := make([]domain.RoundVote, 0, len(responses))
		for _, r := range responses {
			vote := voting.ParseVote(r.Response)
			roundVotes = append(roundVotes, domain.RoundVote{Round: round, ParticipantID: r.ParticipantID, Vote: vote, Timestamp: r.Timestamp})

			for _, toolReq := range tools.ExtractRequests(r.Response) {
				result := toolExecutor.Execute(ctx, round, r.ParticipantID, toolReq)
				toolExecutions = append(toolExecutions, result)
			}
		}
		votesByRound = append(votesByRound, roundVotes)

		convergenceInfo = conv.Check(ctx, round, responses, prevResponses)

		roundsCompleted = round
		roundDurations = append(roundDurations, time.Since(roundStart))

		stopEarly := voting.ShouldStopEarly(roundVotes, round, e.convergence.MinRoundsBeforeCheck, e.earlyStopping.Threshold) && e.earlyStopping.Enabled
		converged := convergenceInfo != nil && convergenceInfo.Detected
		if round < rounds && (converged || stopEarly) {
			break
		}
	}

	votingResult := voting.Aggregate(votesByRound)
	hasVotes := false
	for _, round := range votesByRound {
		for _, v := range round {
			if v.Vote.Cast {
				hasVotes = true
			}
		}
	}
	var votingResultPtr *domain.VotingResult
	if hasVotes {
		votingResultPtr = &votingResult
	}
	if votingResultPtr != nil && convergenceInfo != nil {
		convergence.ResolveFinalStatus(convergenceInfo, votingResultPtr, len(req.Participants))
	}

	summary := e.summarize(ctx, req.Question, fullDebate)

	status := domain.ResultComplete
	if roundsCompleted == 0 {
		status = domain.ResultFailed
	} else if roundsCompleted < rounds {
		status = domain.ResultPartial
	}

	toolExecutionStrings := make([]string, 0, len(toolExecutions))
	for _, t := range toolExecutions {
		toolExecutionStrings = append(toolExecutionStrings, fmt.Sprintf("round %d: %s(%s)", t.Round, t.ToolName, t.Requester))
	}

	result := domain.DeliberationResult{
		Status:              status,
		Mode:                mode,
		RoundsCompleted:     roundsCompleted,
		Participants:        participantIDs,
		Summary:             summary,
		FullDebate:          fullDebate,
		ConvergenceInfo:     convergenceInfo,
		VotingResult:        votingResultPtr,
		GraphContextSummary: graphContextSummary,
		ToolExecutions:      toolExecutionStrings,
		RoundDurations:      roundDurations,
	}
	result.TokenEstimate = estimateResultTokens(result)

	if e.transcripts != nil {
		if path, err := e.transcripts.Write(req.Question, result, time.Now()); err == nil {
			result.TranscriptPath = path
		} else {
			e.logger.WithError(err).Warn("failed to write transcript")
		}
	}

	if e.graph != nil {
		if _, err := e.graph.StoreDeliberation(ctx, req.Question, result); err != nil {
			e.logger.WithError(err).Warn("failed to store deliberation in decision graph")
		}
	}

	return result, nil
}

// fanOut invokes every participant's adapter in parallel for one round,
// isolating failures: a failed participant yields an "[ERROR: kind]"
// sentinel response and never aborts the round.
func (e *Engine) fanOut(ctx context.Context, req Request, round int, roundContext string) []domain.RoundResponse {
	responses := make([]domain.RoundResponse, len(req.Participants))
	g, gctx := errgroup.WithContext(ctx)

	for i, participant := range req.Participants {
		i, participant := i, participant
		g.Go(func() error {
			text := e.invokeParticipant(gctx, participant, req, roundContext)
			responses[i] = domain.RoundResponse{
				Round: round, ParticipantID: participant.ID(), Response: text, Timestamp: time.Now(),
			}
			return nil
		})
	}
	_ = g.Wait() // per-participant errors are already folded into sentinels, never propagated
	return responses
}

func (e *Engine) invokeParticipant(ctx context.Context, participant domain.Participant, req Request, roundContext string) string {
	a, err := e.registry.Get(participant.AdapterName)
	if err != nil {
		return aierrors.NewFatalAdapterError(participant.AdapterName, "adapter not registered", 0, err).Sentinel()
	}

	out, err := a.Invoke(ctx, adapter.Request{
		Prompt:           req.Question,
		Model:            participant.ModelID,
		Context:          roundContext,
		IsDeliberation:   true,
		WorkingDirectory: req.WorkingDirectory,
	})
	if err != nil {
		ae, ok := err.(*aierrors.AdapterError)
		if !ok {
			ae = aierrors.NewFatalAdapterError(participant.AdapterName, err.Error(), 0, err)
		}
		return ae.Sentinel()
	}
	return out
}

func (e *Engine) summarize(ctx context.Context, question string, fullDebate []domain.RoundResponse) domain.Summary {
	if e.summarizer.AdapterName == "" {
		return domain.Summary{Consensus: "no summarizer configured"}
	}
	a, err := e.registry.Get(e.summarizer.AdapterName)
	if err != nil {
		return placeholderSummary(aierrors.NewSummaryError(err))
	}

	prompt := buildSummaryPrompt(question, fullDebate)
	out, err := a.Invoke(ctx, adapter.Request{Prompt: prompt, Model: e.summarizer.ModelID, IsDeliberation: false})
	if err != nil {
		return placeholderSummary(aierrors.NewSummaryError(err))
	}
	return parseSummary(out)
}

func placeholderSummary(err *aierrors.SummaryError) domain.Summary {
	return domain.Summary{Consensus: fmt.Sprintf("summary unavailable: %v", err)}
}

func buildSummaryPrompt(question string, fullDebate []domain.RoundResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	for _, r := range fullDebate {
		fmt.Fprintf(&b, "[Round %d] %s: %s\n\n", r.Round, r.ParticipantID, r.Response)
	}
	b.WriteString("Summarize the debate above using exactly these section headers: CONSENSUS:, KEY AGREEMENTS:, KEY DISAGREEMENTS:, FINAL RECOMMENDATION:.")
	return b.String()
}

func joinContext(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func buildTranscriptContext(fullDebate []domain.RoundResponse) string {
	var b strings.Builder
	for _, r := range fullDebate {
		fmt.Fprintf(&b, "[Round %d] %s: %s\n\n", r.Round, r.ParticipantID, r.Response)
	}
	return b.String()
}

func responsesForRound(fullDebate []domain.RoundResponse, round int) []domain.RoundResponse {
	if round < 1 {
		return nil
	}
	var out []domain.RoundResponse
	for _, r := range fullDebate {
		if r.Round == round {
			out = append(out, r)
		}
	}
	return out
}

// recentToolResultsBlock formats the last recentToolWindowRounds rounds'
// tool-execution records for injection into the next round's context,
// each output truncated to recentToolResultMaxChars.
func recentToolResultsBlock(executions []tools.Result, currentRound int) string {
	minRound := currentRound - recentToolWindowRounds
	var b strings.Builder
	found := false
	for _, t := range executions {
		if t.Round < minRound || t.Round >= currentRound {
			continue
		}
		found = true
		fmt.Fprintf(&b, "Tool %q requested by %s in round %d:\n", t.ToolName, t.Requester, t.Round)
		if t.Err != "" {
			fmt.Fprintf(&b, "error: %s\n\n", t.Err)
			continue
		}
		out := t.Output
		if len(out) > recentToolResultMaxChars {
			out = out[:recentToolResultMaxChars]
		}
		fmt.Fprintf(&b, "%s\n\n", out)
	}
	if !found {
		return ""
	}
	return "Recent tool execution results:\n\n" + b.String()
}

func estimateResultTokens(result domain.DeliberationResult) int {
	total := 0
	for _, r := range result.FullDebate {
		total += domain.EstimateTokens(r.Response)
	}
	total += domain.EstimateTokens(result.Summary.Consensus)
	return total
}
