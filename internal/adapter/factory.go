package adapter

import (
	"context"

	"github.com/sirupsen/logrus"

	"dev.aicounsel.server/internal/aierrors"
)

// Spec is the adapter-agnostic configuration the factory builds a
// concrete Adapter from, deliberately decoupled from the config
// package's YAML-tagged struct so this package never imports config
// (config keeps its own HTTPShape strings, mapped to Shape by the caller).
type Spec struct {
	Name string
	Type string // "cli" | "http"

	// CLI fields.
	Command                string
	Args                   []string
	ProjectContextFlag     string
	PermissionEscalation   bool
	PermissionFlagTemplate string
	RefusalPhrase          string
	ModelSearchDirs        []string

	// HTTP fields.
	URL    string
	Shape  Shape
	APIKey string

	TimeoutSeconds  int
	MaxPromptLength int
	MaxRetries      int
}

// Build constructs the concrete Adapter variant named by spec.Type,
// composing the permission-escalation and model-path-resolution
// decorators when configured.
func Build(spec Spec, logger *logrus.Logger) (Adapter, error) {
	switch spec.Type {
	case "cli":
		return buildCLI(spec, logger)
	case "http":
		return buildHTTP(spec, logger)
	default:
		return nil, aierrors.NewValidationError("adapters."+spec.Name+".type", "must be \"cli\" or \"http\"")
	}
}

func buildCLI(spec Spec, logger *logrus.Logger) (Adapter, error) {
	base := NewSubprocessAdapter(spec.Name, spec.Command, ArgTemplate(spec.Args), spec.TimeoutSeconds, spec.MaxPromptLength, TrimParser, logger)
	base.ProjectContextFlag = spec.ProjectContextFlag

	// The resolving and permission-escalation decorators both wrap the
	// same underlying *SubprocessAdapter Invoke chain; when both are
	// configured, resolve the model path first, then escalate.
	if len(spec.ModelSearchDirs) > 0 && spec.PermissionEscalation {
		resolver := NewModelResolver(spec.ModelSearchDirs...)
		escalating := NewPermissionEscalationAdapter(base, spec.PermissionFlagTemplate, spec.RefusalPhrase, logger)
		return &resolvingEscalator{ResolvingSubprocessAdapter: ResolvingSubprocessAdapter{SubprocessAdapter: base, Resolver: resolver}, escalating: escalating}, nil
	}
	if len(spec.ModelSearchDirs) > 0 {
		resolver := NewModelResolver(spec.ModelSearchDirs...)
		return NewResolvingSubprocessAdapter(base, resolver), nil
	}
	if spec.PermissionEscalation {
		return NewPermissionEscalationAdapter(base, spec.PermissionFlagTemplate, spec.RefusalPhrase, logger), nil
	}
	return base, nil
}

// resolvingEscalator composes model-path resolution with permission
// escalation for the (rare) adapter that needs both.
type resolvingEscalator struct {
	ResolvingSubprocessAdapter
	escalating *PermissionEscalationAdapter
}

func (r *resolvingEscalator) Invoke(ctx context.Context, req Request) (string, error) {
	resolved, err := r.Resolver.Resolve(r.Name(), req.Model)
	if err != nil {
		return "", err
	}
	req.Model = resolved
	return r.escalating.Invoke(ctx, req)
}

func buildHTTP(spec Spec, logger *logrus.Logger) (Adapter, error) {
	// api_key is optional for every shape, including ShapeOpenAICompatHosted:
	// a missing key degrades to an empty bearer token and the request is
	// sent unconditionally, failing observably at the server instead of here.
	apiKey, err := ResolveAPIKey(spec.APIKey, false)
	if err != nil {
		return nil, err
	}
	return NewHTTPAdapter(spec.Name, spec.URL, spec.Shape, apiKey, spec.TimeoutSeconds, spec.MaxPromptLength, spec.MaxRetries, logger), nil
}
