// Package session drives one accepted connection through the protocol
// state machine: receive framed commands, compile, conditionally run,
// and report the terminating exit status.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/wandbox-go/cattleshed/internal/admin"
	"github.com/wandbox-go/cattleshed/internal/compiler"
	"github.com/wandbox-go/cattleshed/internal/launcher"
	"github.com/wandbox-go/cattleshed/internal/multiplex"
	"github.com/wandbox-go/cattleshed/internal/protocol"
	"github.com/wandbox-go/cattleshed/internal/workdir"
)

// Config carries the deployment values the core treats as injected,
// per spec.md §9: the sandbox launcher path and the stdin-forwarding
// behavior left as an explicit open question. Stats is optional; a nil
// Stats disables counter updates.
type Config struct {
	PtracerPath  string
	ForwardStdin bool
	BaseDir      string
	Stats        *admin.Stats
}

// Session is the per-connection state: received frames, the workdir it
// owns, and the registry it reads compiler traits from. It is used from
// a single goroutine (its own session runner) and shares no state with
// other sessions beyond the read-only Registry.
type Session struct {
	id       string
	conn     net.Conn
	enc      *protocol.Encoder
	dec      *protocol.Decoder
	registry compiler.Registry
	cfg      Config
	log      *slog.Logger

	received map[string]string
	dir      *workdir.Dir
}

// New builds a Session for one accepted connection. The caller is
// responsible for calling Run and for closing conn afterward if Run
// has not already done so.
func New(conn net.Conn, registry compiler.Registry, cfg Config, log *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		conn:     conn,
		enc:      protocol.NewEncoder(conn),
		dec:      protocol.NewDecoder(conn),
		registry: registry,
		cfg:      cfg,
		log:      log.With("session", id),
		received: make(map[string]string),
	}
}

// Run executes the full Receiving → Compiling → Running → Finishing (or
// Versioning) lifecycle, and unconditionally tears down the session's
// workdir before returning.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown()

	if s.cfg.Stats != nil {
		s.cfg.Stats.SessionsTotal.Add(1)
		s.cfg.Stats.SessionsActive.Add(1)
		defer s.cfg.Stats.SessionsActive.Add(-1)
	}

	for {
		f, err := s.dec.Next()
		if err != nil {
			if err != io.EOF {
				s.log.Warn("decode error, ending session", "error", err)
			}
			return
		}

		if f.Name == "Version" {
			s.runVersion(ctx)
			return
		}

		if f.Name == "Control" {
			payload := string(f.Payload)
			if payload == "run" {
				s.runCompileAndRun(ctx)
				return
			}
			s.received["Control"] += payload
			continue
		}

		s.received[f.Name] += string(f.Payload)
	}
}

func (s *Session) teardown() {
	if s.dir != nil {
		if err := s.dir.Remove(); err != nil {
			s.log.Warn("workdir removal failed", "error", err)
		}
	}
	s.conn.Close()
}

// runVersion implements the Versioning branch: probe every displayable
// trait's version_command and emit a single VersionResult listing.
func (s *Session) runVersion(ctx context.Context) {
	dir, err := workdir.New(s.cfg.BaseDir)
	if err != nil {
		s.log.Error("workdir creation failed", "error", err)
		return
	}
	s.dir = dir

	var lines []string
	for _, trait := range s.registry.Displayable() {
		if len(trait.VersionCommand) == 0 {
			continue
		}
		version, ok := launcher.CollectOutput(ctx, dir.Path, trait.VersionCommand)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s,%s,%s,%s", trait.Name, trait.Language, trait.DisplayName, version))
	}

	payload := strings.Join(lines, "\n")
	if len(lines) > 0 {
		payload += "\n"
	}
	if err := s.enc.Write("VersionResult", []byte(payload)); err != nil {
		s.log.Warn("write VersionResult failed", "error", err)
	}
}

// runCompileAndRun implements Compiling → Reaped(compile) → Running →
// Reaped(program) → Finishing.
func (s *Session) runCompileAndRun(ctx context.Context) {
	trait, err := s.selectCompiler()
	if err != nil {
		s.log.Warn("compiler selection failed", "error", err)
		return
	}

	dir, err := workdir.New(s.cfg.BaseDir)
	if err != nil {
		s.log.Error("workdir creation failed", "error", err)
		return
	}
	s.dir = dir

	sourceName := "prog" + trait.SourceSuffix
	if err := dir.WriteFile(sourceName, []byte(s.received["Source"])); err != nil {
		s.log.Error("source write failed", "error", err)
		return
	}

	if s.cfg.Stats != nil {
		s.cfg.Stats.CompilesStarted.Add(1)
	}

	compileArgv := s.assembleCompileArgv(trait)
	proc, err := launcher.Spawn(ctx, dir.Path, compileArgv, trait.Limits)
	if err != nil {
		// spec.md §7: a compile spawn failure is treated as a compile
		// failure — synthesize a non-zero exit and proceed to Finishing.
		s.log.Warn("compile spawn failed", "error", err)
		s.enc.WriteControl("Start")
		s.enc.Write("ExitCode", []byte("1"))
		s.enc.WriteControl("Finish")
		return
	}
	proc.Stdin.Close()

	s.enc.WriteControl("Start")

	if err := multiplex.Run(s.enc, []multiplex.Source{
		{Label: "CompilerMessageS", Reader: proc.Stdout},
		{Label: "CompilerMessageE", Reader: proc.Stderr},
	}); err != nil {
		s.log.Info("client write error during compile, draining", "error", err)
	}

	waitErr := proc.Cmd.Wait()
	exitCode, signal, ok := exitStatus(waitErr)
	if !ok {
		// exec itself failed to even run; treat like spawn failure.
		s.enc.Write("ExitCode", []byte("1"))
		s.enc.WriteControl("Finish")
		return
	}

	if signal != "" || exitCode != 0 {
		s.emitTermination(exitCode, signal)
		s.enc.WriteControl("Finish")
		return
	}

	s.runProgram(ctx, trait, dir)
}

func (s *Session) runProgram(ctx context.Context, trait compiler.CompilerTrait, dir *workdir.Dir) {
	if s.cfg.Stats != nil {
		s.cfg.Stats.RunsStarted.Add(1)
	}

	runArgv := append([]string{s.cfg.PtracerPath}, trait.RunCommand...)
	proc, err := launcher.Spawn(ctx, dir.Path, runArgv, trait.Limits)
	if err != nil {
		s.log.Warn("run spawn failed", "error", err)
		s.enc.Write("ExitCode", []byte("1"))
		s.enc.WriteControl("Finish")
		return
	}

	if s.cfg.ForwardStdin {
		stdin := s.received["Stdin"]
		go func() {
			io.WriteString(proc.Stdin, stdin)
			proc.Stdin.Close()
		}()
	} else {
		proc.Stdin.Close()
	}

	if err := multiplex.Run(s.enc, []multiplex.Source{
		{Label: "StdOut", Reader: proc.Stdout},
		{Label: "StdErr", Reader: proc.Stderr},
	}); err != nil {
		s.log.Info("client write error during run, draining", "error", err)
	}

	waitErr := proc.Cmd.Wait()
	exitCode, signal, ok := exitStatus(waitErr)
	if ok {
		s.emitTermination(exitCode, signal)
	}
	s.enc.WriteControl("Finish")
}

// emitTermination applies spec.md §4.5's emission policy: ExitCode iff
// the child exited normally (with its decimal code, 0 included), Signal
// iff it was terminated by a signal instead.
func (s *Session) emitTermination(exitCode int, signal string) {
	if signal != "" {
		s.enc.Write("Signal", []byte(signal))
		return
	}
	s.enc.Write("ExitCode", []byte(strconv.Itoa(exitCode)))
}

// selectCompiler parses "compiler=<name>" out of the accumulated
// Control payload and looks it up in the registry.
func (s *Session) selectCompiler() (compiler.CompilerTrait, error) {
	const prefix = "compiler="
	control := s.received["Control"]
	idx := strings.Index(control, prefix)
	if idx < 0 {
		return compiler.CompilerTrait{}, fmt.Errorf("session: no %q in Control payload", prefix)
	}
	name := control[idx+len(prefix):]
	if sp := strings.IndexAny(name, " \t\n"); sp >= 0 {
		name = name[:sp]
	}
	return s.registry.Lookup(name)
}

// assembleCompileArgv implements spec.md §4.5's "Argument assembly for
// compile": start from compile_command, then append each switch whose
// key is present in the comma-separated CompilerOption set, in the
// trait's declaration order. Additive and duplicate-tolerant.
func (s *Session) assembleCompileArgv(trait compiler.CompilerTrait) []string {
	argv := append([]string{}, trait.CompileCommand...)

	options, ok := s.received["CompilerOption"]
	if !ok || options == "" {
		return argv
	}
	active := make(map[string]bool)
	for _, name := range strings.Split(options, ",") {
		active[name] = true
	}
	for _, name := range trait.SwitchOrder {
		if active[name] {
			argv = append(argv, trait.Switches[name].Flags...)
		}
	}
	return argv
}

// exitStatus extracts the decimal exit code and/or signal name from the
// error exec.Cmd.Wait returns. ok is false only if waitErr is a non-nil,
// non-ExitError failure (e.g. the child never ran at all).
func exitStatus(waitErr error) (exitCode int, signal string, ok bool) {
	if waitErr == nil {
		return 0, "", true
	}
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return 0, "", false
	}
	status, isWaitStatus := exitErr.Sys().(syscall.WaitStatus)
	if !isWaitStatus {
		return exitErr.ExitCode(), "", true
	}
	if status.Signaled() {
		return 0, capitalize(status.Signal().String()), true
	}
	return status.ExitStatus(), "", true
}

// capitalize upper-cases the first rune of a syscall.Signal.String() name
// ("terminated") to match the capitalized strsignal() style spec.md's
// Signal frame carries ("Terminated").
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
