// Package launcher spawns the compile and run child processes: three
// pipes wired to a configured working directory, with an optional
// synchronous collect-stdout mode used by the version probe.
package launcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/wandbox-go/cattleshed/internal/compiler"
	"github.com/wandbox-go/cattleshed/internal/rlimit"
)

// ErrSpawnFailed wraps any failure occurring before (or during) exec —
// pipe setup or Start() itself.
type ErrSpawnFailed struct {
	Argv []string
	Err  error
}

func (e *ErrSpawnFailed) Error() string {
	return fmt.Sprintf("launcher: spawn %v: %v", e.Argv, e.Err)
}

func (e *ErrSpawnFailed) Unwrap() error { return e.Err }

// RlimitExecName is the hidden subcommand name cmd/cattleshedd
// registers to apply rlimit.Apply before reexec-ing into the real argv.
// Exported so cmd/cattleshedd dispatches on the same name that Spawn
// places in the wrapped argv.
const RlimitExecName = "rlimitexec"

// Process is a spawned child's parent-side handle: its pipes and the
// underlying *exec.Cmd so the caller (internal/session, via
// internal/multiplex) can Wait() it once all pipes have drained.
type Process struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Spawn starts argv[0] with argv[1:] as arguments, current directory
// dir, and stdin/stdout/stderr attached to pipes. If limits is
// non-zero, argv is wrapped so the child reexecs through rlimitexec
// before running the real program. Setup failures close any pipes
// already opened and return *ErrSpawnFailed.
func Spawn(ctx context.Context, dir string, argv []string, limits compiler.ResourceLimits) (*Process, error) {
	if len(argv) == 0 {
		return nil, &ErrSpawnFailed{Argv: argv, Err: fmt.Errorf("empty argv")}
	}

	realArgv := argv
	var extraEnv []string
	if rlimit.Needed(limits) {
		self, err := os.Executable()
		if err != nil {
			return nil, &ErrSpawnFailed{Argv: argv, Err: err}
		}
		realArgv = append([]string{self, RlimitExecName}, argv...)
		extraEnv = rlimit.Env(limits)
	}

	cmd := exec.CommandContext(ctx, realArgv[0], realArgv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.SysProcAttr = rlimit.SysProcAttr()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ErrSpawnFailed{Argv: argv, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return nil, &ErrSpawnFailed{Argv: argv, Err: err}
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		stdout.Close()
		stderr.Close()
		return nil, &ErrSpawnFailed{Argv: argv, Err: err}
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		stdin.Close()
		return nil, &ErrSpawnFailed{Argv: argv, Err: err}
	}

	return &Process{Cmd: cmd, Stdin: stdin, Stdout: stdout, Stderr: stderr}, nil
}

// CollectOutput runs argv synchronously (the version probe's mode):
// stdin and stderr are discarded, stdout is read to EOF, and the first
// line is returned. ok is false on spawn failure, non-zero exit, or
// empty output — any of which means the caller should skip this entry
// rather than treat it as an error (spec.md §4.5/§7).
func CollectOutput(ctx context.Context, dir string, argv []string) (line string, ok bool) {
	if len(argv) == 0 {
		return "", false
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.SysProcAttr = rlimit.SysProcAttr()
	cmd.Stdin = nil

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		return "", false
	}
	line = firstLine(out.Bytes())
	if line == "" {
		return "", false
	}
	return line, true
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}
