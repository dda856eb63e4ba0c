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

// scriptThatRefusesBelow writes a shell script that prints the refusal
// phrase unless invoked with --permission-mode=<minLevel> or higher.
func scriptThatRefusesBelow(t *testing.T, minLevel string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("permission escalation tests assume a POSIX shell")
	}
	rank := map[string]int{"low": 0, "medium": 1, "high": 2}
	dir := t.TempDir()
	path := filepath.Join(dir, "tool.sh")
	script := "#!/bin/sh\nlevel=low\nfor a in \"$@\"; do\n  case \"$a\" in\n    --permission-mode=*) level=\"${a#--permission-mode=}\" ;;\n  esac\ndone\ncase \"$level\" in\n"
	for lvl, r := range rank {
		if r >= rank[minLevel] {
			script += "  " + lvl + ") echo ok ;;\n"
		}
	}
	script += "  *) echo insufficient permission to proceed ;;\nesac\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestPermissionEscalationAdapter_EscalatesUntilAccepted(t *testing.T) {
	script := scriptThatRefusesBelow(t, "medium")
	base := NewSubprocessAdapter("perm-test", "/bin/sh", ArgTemplate{script}, 5, 0, nil, nil)
	a := NewPermissionEscalationAdapter(base, "--permission-mode={level}", "insufficient permission to proceed", nil)

	out, err := a.Invoke(context.Background(), Request{Prompt: "do the thing"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

// scriptThatFailsBelow writes a shell script that exits non-zero with
// the refusal phrase on stderr unless invoked at minLevel or higher.
func scriptThatFailsBelow(t *testing.T, minLevel string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("permission escalation tests assume a POSIX shell")
	}
	rank := map[string]int{"low": 0, "medium": 1, "high": 2}
	dir := t.TempDir()
	path := filepath.Join(dir, "tool.sh")
	script := "#!/bin/sh\nlevel=low\nfor a in \"$@\"; do\n  case \"$a\" in\n    --permission-mode=*) level=\"${a#--permission-mode=}\" ;;\n  esac\ndone\ncase \"$level\" in\n"
	for lvl, r := range rank {
		if r >= rank[minLevel] {
			script += "  " + lvl + ") echo ok ;;\n"
		}
	}
	script += "  *) echo insufficient permission to proceed 1>&2; exit 1 ;;\nesac\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestPermissionEscalationAdapter_EscalatesOnRefusalError(t *testing.T) {
	script := scriptThatFailsBelow(t, "medium")
	base := NewSubprocessAdapter("perm-test", "/bin/sh", ArgTemplate{script}, 5, 0, nil, nil)
	a := NewPermissionEscalationAdapter(base, "--permission-mode={level}", "insufficient permission to proceed", nil)

	out, err := a.Invoke(context.Background(), Request{Prompt: "do the thing"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestPermissionEscalationAdapter_AbortsOnUnrelatedError(t *testing.T) {
	script := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho something else broke 1>&2\nexit 1\n"), 0o755))

	base := NewSubprocessAdapter("perm-test", "/bin/sh", ArgTemplate{script}, 5, 0, nil, nil)
	a := NewPermissionEscalationAdapter(base, "--permission-mode={level}", "insufficient permission to proceed", nil)

	_, err := a.Invoke(context.Background(), Request{Prompt: "do the thing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "something else broke")
}

func TestPermissionEscalationAdapter_GivesUpAtHigh(t *testing.T) {
	script := scriptThatRefusesBelow(t, "high")
	// Never accepts, even "high" refuses in this test script by always matching default.
	rewritten := "#!/bin/sh\necho insufficient permission to proceed\n"
	require.NoError(t, os.WriteFile(script, []byte(rewritten), 0o755))

	base := NewSubprocessAdapter("perm-test", "/bin/sh", ArgTemplate{script}, 5, 0, nil, nil)
	a := NewPermissionEscalationAdapter(base, "--permission-mode={level}", "insufficient permission to proceed", nil)

	out, err := a.Invoke(context.Background(), Request{Prompt: "do the thing"})
	require.NoError(t, err)
	assert.Contains(t, out, "insufficient permission to proceed")
}
