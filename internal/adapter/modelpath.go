package adapter

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"dev.aicounsel.server/internal/aierrors"
)

// ModelResolver resolves a short model name (e.g. "llama-3-8b") to an
// absolute .gguf file path by fuzzy-searching an ordered list of model
// directories. The first directory containing a case-insensitive
// substring match wins; ties within a directory are broken by shortest
// filename (the most specific match tends to be the shortest one that
// still contains the requested name).
type ModelResolver struct {
	SearchDirs []string
}

// NewModelResolver builds a resolver over the given ordered directories.
func NewModelResolver(searchDirs ...string) *ModelResolver {
	return &ModelResolver{SearchDirs: searchDirs}
}

// Resolve returns the absolute path of the .gguf file matching name, or
// a fatal AdapterError if no directory yields a match.
func (r *ModelResolver) Resolve(adapterName, name string) (string, error) {
	needle := strings.ToLower(name)
	for _, dir := range r.SearchDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // missing or unreadable directory, try the next one
		}
		var best string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			fname := e.Name()
			if !strings.HasSuffix(strings.ToLower(fname), ".gguf") {
				continue
			}
			if !strings.Contains(strings.ToLower(fname), needle) {
				continue
			}
			if best == "" || len(fname) < len(best) {
				best = fname
			}
		}
		if best != "" {
			return filepath.Join(dir, best), nil
		}
	}
	return "", aierrors.NewFatalAdapterError(
		adapterName,
		"no .gguf model file matching \""+name+"\" found in configured search directories",
		0, nil,
	)
}

// ResolvingSubprocessAdapter wraps a SubprocessAdapter whose {model}
// placeholder must expand to a resolved absolute file path rather than
// the bare model name the caller supplied.
type ResolvingSubprocessAdapter struct {
	*SubprocessAdapter
	Resolver *ModelResolver
}

// NewResolvingSubprocessAdapter builds the variant.
func NewResolvingSubprocessAdapter(base *SubprocessAdapter, resolver *ModelResolver) *ResolvingSubprocessAdapter {
	return &ResolvingSubprocessAdapter{SubprocessAdapter: base, Resolver: resolver}
}

// Invoke resolves req.Model to an absolute path before delegating to
// the embedded SubprocessAdapter.
func (a *ResolvingSubprocessAdapter) Invoke(ctx context.Context, req Request) (string, error) {
	resolved, err := a.Resolver.Resolve(a.Name(), req.Model)
	if err != nil {
		return "", err
	}
	req.Model = resolved
	return a.SubprocessAdapter.Invoke(ctx, req)
}
