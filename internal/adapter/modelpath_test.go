package adapter

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelResolver_Resolve(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "llama-3-8b-instruct-q4.gguf"), []byte{}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "llama-3-70b-instruct-q4.gguf"), []byte{}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte{}, 0o644))

	r := NewModelResolver(dir)
	path, err := r.Resolve("test-adapter", "llama-3-8b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "llama-3-8b-instruct-q4.gguf"), path)
}

func TestModelResolver_SearchOrderFallsThrough(t *testing.T) {
	emptyDir := t.TempDir()
	populatedDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(populatedDir, "mistral-7b.gguf"), []byte{}, 0o644))

	r := NewModelResolver(emptyDir, populatedDir)
	path, err := r.Resolve("test-adapter", "mistral")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(populatedDir, "mistral-7b.gguf"), path)
}

func TestModelResolver_NoMatchFails(t *testing.T) {
	dir := t.TempDir()
	r := NewModelResolver(dir)
	_, err := r.Resolve("test-adapter", "nonexistent-model")
	require.Error(t, err)
}

func TestResolvingSubprocessAdapter_Invoke(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("subprocess tests assume a POSIX shell")
	}
	dir := t.TempDir()
	modelFile := filepath.Join(dir, "llama-3-8b.gguf")
	require.NoError(t, os.WriteFile(modelFile, []byte{}, 0o644))

	base := NewSubprocessAdapter("resolving-test", "/bin/echo", ArgTemplate{"{model}"}, 5, 0, nil, nil)
	a := NewResolvingSubprocessAdapter(base, NewModelResolver(dir))

	out, err := a.Invoke(context.Background(), Request{Prompt: "x", Model: "llama-3-8b"})
	require.NoError(t, err)
	assert.Equal(t, modelFile, out)
}
