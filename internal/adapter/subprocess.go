package adapter

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dev.aicounsel.server/internal/aierrors"
)

// ArgTemplate expands a subprocess argument list, substituting
// {model}, {prompt}, and {working_directory} placeholders.
type ArgTemplate []string

// Expand substitutes placeholders in each argument. Arguments with no
// placeholder pass through unchanged.
func (t ArgTemplate) Expand(model, prompt, workingDirectory string) []string {
	replacer := strings.NewReplacer(
		"{model}", model,
		"{prompt}", prompt,
		"{working_directory}", workingDirectory,
	)
	out := make([]string, len(t))
	for i, arg := range t {
		out[i] = replacer.Replace(arg)
	}
	return out
}

// OutputParser cleans raw stdout into the text the caller sees.
type OutputParser func(stdout string) string

// TrimParser is the default parser: trim leading/trailing whitespace.
func TrimParser(stdout string) string { return strings.TrimSpace(stdout) }

// BannerStripParser drops leading lines that start with any of the
// given case-insensitive keywords (local inference runtimes print
// banner/progress lines such as "loading model..." before the actual
// response).
func BannerStripParser(keywords ...string) OutputParser {
	lower := make([]string, len(keywords))
	for i, k := range keywords {
		lower[i] = strings.ToLower(k)
	}
	return func(stdout string) string {
		scanner := bufio.NewScanner(strings.NewReader(stdout))
		var kept []string
		inBanner := true
		for scanner.Scan() {
			line := scanner.Text()
			if inBanner {
				trimmed := strings.ToLower(strings.TrimSpace(line))
				isBanner := trimmed == ""
				for _, k := range lower {
					if strings.HasPrefix(trimmed, k) {
						isBanner = true
						break
					}
				}
				if isBanner {
					continue
				}
				inBanner = false
			}
			kept = append(kept, line)
		}
		return strings.TrimSpace(strings.Join(kept, "\n"))
	}
}

// PrefixStripParser drops lines that start with any of the given
// metadata prefixes, wherever they occur (not just the header), then
// trims the result. Grounded on local inference runtimes that
// interleave single metadata lines with the actual output.
func PrefixStripParser(prefixes ...string) OutputParser {
	return func(stdout string) string {
		scanner := bufio.NewScanner(strings.NewReader(stdout))
		var kept []string
		for scanner.Scan() {
			line := scanner.Text()
			skip := false
			for _, p := range prefixes {
				if strings.HasPrefix(line, p) {
					skip = true
					break
				}
			}
			if !skip {
				kept = append(kept, line)
			}
		}
		return strings.TrimSpace(strings.Join(kept, "\n"))
	}
}

// SubprocessAdapter spawns an external CLI tool per invocation. Stdin is
// closed; stdout/stderr are captured; a non-zero exit with stderr
// content is a run-failure (AdapterFatal unless a subclass reclassifies
// it, e.g. permission escalation).
type SubprocessAdapter struct {
	Base
	Command          string
	Args             ArgTemplate
	Parser           OutputParser
	DefaultWorkDir   string
	ProjectContextFlag string // non-empty enables the toggle behavior (§4.1)
	Logger           *logrus.Logger
}

// NewSubprocessAdapter builds the generic subprocess variant.
func NewSubprocessAdapter(name, command string, args ArgTemplate, timeout, maxPromptLen int, parser OutputParser, logger *logrus.Logger) *SubprocessAdapter {
	if parser == nil {
		parser = TrimParser
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SubprocessAdapter{
		Base: Base{
			AdapterName:     name,
			Timeout:         time.Duration(timeout) * time.Second,
			MaxPromptLength: maxPromptLen,
		},
		Command: command,
		Args:    args,
		Parser:  parser,
		Logger:  logger,
	}
}

func (a *SubprocessAdapter) Name() string { return a.AdapterName }

// buildArgs applies the project-context toggle (§4.1): during
// deliberation the flag is stripped; outside deliberation it is
// inserted immediately after the model argument, or at the front if no
// model argument slot exists.
func (a *SubprocessAdapter) buildArgs(req Request, workDir string) []string {
	// {prompt} is kept as a placeholder here; Invoke substitutes it.
	args := a.Args.Expand(req.Model, "{prompt}", workDir)
	if a.ProjectContextFlag == "" {
		return args
	}
	// Drop any existing occurrence first so toggling is idempotent.
	out := make([]string, 0, len(args)+1)
	for _, arg := range args {
		if arg != "" && arg != a.ProjectContextFlag {
			out = append(out, arg)
		}
	}
	if req.IsDeliberation {
		return out
	}
	modelIdx := -1
	for i, arg := range out {
		if arg == req.Model {
			modelIdx = i
			break
		}
	}
	if modelIdx < 0 {
		return append([]string{a.ProjectContextFlag}, out...)
	}
	withFlag := make([]string, 0, len(out)+1)
	withFlag = append(withFlag, out[:modelIdx+1]...)
	withFlag = append(withFlag, a.ProjectContextFlag)
	withFlag = append(withFlag, out[modelIdx+1:]...)
	return withFlag
}

// Invoke runs the subprocess, passing prompt via the {prompt}
// placeholder substitution (never via stdin — stdin is closed).
func (a *SubprocessAdapter) Invoke(ctx context.Context, req Request) (string, error) {
	prompt, err := a.PrepareInput(req)
	if err != nil {
		return "", err
	}

	workDir := req.WorkingDirectory
	if workDir == "" {
		workDir = a.DefaultWorkDir
	}

	timeoutCtx, cancel := a.TimeoutContext(ctx)
	defer cancel()

	args := a.buildArgs(req, workDir)
	args = ArgTemplate(args).Expand(req.Model, prompt, workDir)

	cmd := exec.CommandContext(timeoutCtx, a.Command, args...)
	cmd.Dir = workDir
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if timeoutCtx.Err() == context.DeadlineExceeded {
		return "", a.AsTimeout("subprocess exceeded timeout")
	}
	if runErr != nil {
		if stderr.Len() > 0 {
			return "", aierrors.NewFatalAdapterError(a.AdapterName, stderr.String(), 0, runErr)
		}
		return "", aierrors.NewFatalAdapterError(a.AdapterName, "process exited non-zero", 0, runErr)
	}

	return a.Parser(stdout.String()), nil
}
