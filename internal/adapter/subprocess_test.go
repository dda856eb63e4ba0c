package adapter

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoCommand(t *testing.T) (string, ArgTemplate) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("subprocess tests assume a POSIX shell")
	}
	return "/bin/echo", ArgTemplate{"{prompt}"}
}

func TestSubprocessAdapter_Invoke(t *testing.T) {
	cmd, args := echoCommand(t)
	a := NewSubprocessAdapter("echo-test", cmd, args, 5, 0, nil, nil)

	out, err := a.Invoke(context.Background(), Request{Prompt: "hello world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestSubprocessAdapter_MaxPromptLength(t *testing.T) {
	cmd, args := echoCommand(t)
	a := NewSubprocessAdapter("echo-test", cmd, args, 5, 4, nil, nil)

	_, err := a.Invoke(context.Background(), Request{Prompt: "too long"})
	require.Error(t, err)
}

func TestSubprocessAdapter_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("subprocess tests assume a POSIX shell")
	}
	a := NewSubprocessAdapter("false-test", "/bin/false", ArgTemplate{}, 5, 0, nil, nil)

	_, err := a.Invoke(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
}

func TestArgTemplate_Expand(t *testing.T) {
	tmpl := ArgTemplate{"--model", "{model}", "--prompt", "{prompt}", "--cwd", "{working_directory}"}
	got := tmpl.Expand("llama3", "hi", "/tmp/work")
	assert.Equal(t, []string{"--model", "llama3", "--prompt", "hi", "--cwd", "/tmp/work"}, got)
}

func TestBannerStripParser(t *testing.T) {
	parser := BannerStripParser("loading model", "warming up")
	out := parser("loading model...\nwarming up cache\nActual response text\nsecond line")
	assert.Equal(t, "Actual response text\nsecond line", out)
}

func TestPrefixStripParser(t *testing.T) {
	parser := PrefixStripParser(">>>", "[debug]")
	out := parser(">>> loaded\nreal output\n[debug] timing=3ms\nmore output")
	assert.Equal(t, "real output\nmore output", out)
}

func TestSubprocessAdapter_ProjectContextToggle(t *testing.T) {
	a := NewSubprocessAdapter("toggle-test", "/bin/echo", ArgTemplate{"--model", "{model}"}, 5, 0, nil, nil)
	a.ProjectContextFlag = "--project-context"

	nonDeliberation := a.buildArgs(Request{Model: "m", IsDeliberation: false}, "")
	assert.Contains(t, nonDeliberation, "--project-context")

	deliberation := a.buildArgs(Request{Model: "m", IsDeliberation: true}, "")
	assert.NotContains(t, deliberation, "--project-context")
}
