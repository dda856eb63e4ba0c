package adapter

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"dev.aicounsel.server/internal/aierrors"
)

// escalationLevels is the fixed low→medium→high ladder a permission
// escalation adapter climbs when the backend refuses to proceed
// without elevated trust.
var escalationLevels = []string{"low", "medium", "high"}

// PermissionEscalationAdapter wraps a SubprocessAdapter whose CLI tool
// accepts a permission-level flag and may reply with a refusal phrase
// instead of doing the work. On refusal it retries the same prompt one
// rung higher, up to "high", before giving up.
type PermissionEscalationAdapter struct {
	*SubprocessAdapter
	PermissionFlagTemplate string // e.g. "--permission-mode={level}"
	RefusalPhrase          string // case-insensitive substring match
	Logger                 *logrus.Logger
}

// NewPermissionEscalationAdapter builds the variant. permissionFlagTemplate
// must contain the "{level}" placeholder.
func NewPermissionEscalationAdapter(base *SubprocessAdapter, permissionFlagTemplate, refusalPhrase string, logger *logrus.Logger) *PermissionEscalationAdapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &PermissionEscalationAdapter{
		SubprocessAdapter:      base,
		PermissionFlagTemplate: permissionFlagTemplate,
		RefusalPhrase:          strings.ToLower(refusalPhrase),
		Logger:                 logger,
	}
}

// Invoke runs the underlying subprocess at the lowest permission level,
// re-running at the next level whenever the refusal phrase appears —
// either in a successful response or in the error message of a failed
// one (a refusing CLI commonly exits non-zero with the phrase on
// stderr) — stopping at "high" regardless of outcome. Any failure
// whose message does not carry the refusal phrase aborts immediately.
func (a *PermissionEscalationAdapter) Invoke(ctx context.Context, req Request) (string, error) {
	baseArgs := a.SubprocessAdapter.Args
	defer func() { a.SubprocessAdapter.Args = baseArgs }()

	var out string
	var err error
	for i, level := range escalationLevels {
		flag := strings.ReplaceAll(a.PermissionFlagTemplate, "{level}", level)
		a.SubprocessAdapter.Args = append(append(ArgTemplate{}, baseArgs...), flag)

		out, err = a.SubprocessAdapter.Invoke(ctx, req)
		if err != nil {
			if !a.isRefusal(err) {
				return "", err
			}
		} else if !strings.Contains(strings.ToLower(out), a.RefusalPhrase) {
			return out, nil
		}
		if i < len(escalationLevels)-1 {
			a.Logger.WithFields(logrus.Fields{
				"adapter":    a.Name(),
				"from_level": level,
				"to_level":   escalationLevels[i+1],
			}).Info("permission refusal detected, escalating")
		}
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

// isRefusal reports whether err carries the refusal phrase, checking
// the concrete AdapterError's message first and falling back to the
// full error string for any other error type.
func (a *PermissionEscalationAdapter) isRefusal(err error) bool {
	var ae *aierrors.AdapterError
	if errors.As(err, &ae) {
		return strings.Contains(strings.ToLower(ae.Message), a.RefusalPhrase)
	}
	return strings.Contains(strings.ToLower(err.Error()), a.RefusalPhrase)
}
