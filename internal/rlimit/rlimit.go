// Package rlimit builds the process attributes and post-fork resource
// limits applied to every child the launcher spawns.
package rlimit

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wandbox-go/cattleshed/internal/compiler"
)

// SysProcAttr returns the attributes a launched child should run with:
// its own process group (so signals sent to it don't also hit the
// parent) and a death signal so it is killed if the parent dies first.
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// Apply sets the RLIMIT_CPU/RLIMIT_AS/RLIMIT_NOFILE limits named in
// limits on the calling process. Go's os/exec has no pre-exec hook, so
// Apply is not called from the server itself; it runs inside the
// reexec helper cmd/cattleshedd's hidden "rlimitexec" subcommand spawns
// into before it syscall.Exec's the real compile/run argv (see
// internal/launcher.Spawn). A zero field means "do not touch that limit".
func Apply(limits compiler.ResourceLimits) error {
	if limits.CPUSeconds != 0 {
		rl := &unix.Rlimit{Cur: limits.CPUSeconds, Max: limits.CPUSeconds}
		if err := unix.Setrlimit(unix.RLIMIT_CPU, rl); err != nil {
			return fmt.Errorf("rlimit: set CPU limit: %w", err)
		}
	}
	if limits.MemoryBytes != 0 {
		rl := &unix.Rlimit{Cur: limits.MemoryBytes, Max: limits.MemoryBytes}
		if err := unix.Setrlimit(unix.RLIMIT_AS, rl); err != nil {
			return fmt.Errorf("rlimit: set memory limit: %w", err)
		}
	}
	if limits.MaxOpenFDs != 0 {
		rl := &unix.Rlimit{Cur: limits.MaxOpenFDs, Max: limits.MaxOpenFDs}
		if err := unix.Setrlimit(unix.RLIMIT_NOFILE, rl); err != nil {
			return fmt.Errorf("rlimit: set fd limit: %w", err)
		}
	}
	return nil
}

// Needed reports whether limits specifies any non-zero field, i.e.
// whether the launcher needs to route the spawn through the
// limit-applying helper at all.
func Needed(limits compiler.ResourceLimits) bool {
	return limits.CPUSeconds != 0 || limits.MemoryBytes != 0 || limits.MaxOpenFDs != 0
}

// Environment variable names internal/launcher sets and the rlimitexec
// subcommand reads to recover the limits across the reexec boundary.
const (
	EnvCPUSeconds  = "CATTLESHED_RLIMIT_CPU"
	EnvMemoryBytes = "CATTLESHED_RLIMIT_MEM"
	EnvMaxOpenFDs  = "CATTLESHED_RLIMIT_NOFILE"
)

// Env renders limits as a slice of "KEY=VALUE" entries suitable for
// appending to an exec.Cmd's Env, omitting zero fields entirely.
func Env(limits compiler.ResourceLimits) []string {
	var env []string
	if limits.CPUSeconds != 0 {
		env = append(env, fmt.Sprintf("%s=%d", EnvCPUSeconds, limits.CPUSeconds))
	}
	if limits.MemoryBytes != 0 {
		env = append(env, fmt.Sprintf("%s=%d", EnvMemoryBytes, limits.MemoryBytes))
	}
	if limits.MaxOpenFDs != 0 {
		env = append(env, fmt.Sprintf("%s=%d", EnvMaxOpenFDs, limits.MaxOpenFDs))
	}
	return env
}

// FromEnviron reconstructs the ResourceLimits encoded by Env from a
// process's environment (os.Environ-shaped slice), used by rlimitexec
// after the reexec.
func FromEnviron(environ []string) compiler.ResourceLimits {
	var limits compiler.ResourceLimits
	for _, kv := range environ {
		switch {
		case hasPrefix(kv, EnvCPUSeconds+"="):
			limits.CPUSeconds = parseUint(kv[len(EnvCPUSeconds)+1:])
		case hasPrefix(kv, EnvMemoryBytes+"="):
			limits.MemoryBytes = parseUint(kv[len(EnvMemoryBytes)+1:])
		case hasPrefix(kv, EnvMaxOpenFDs+"="):
			limits.MaxOpenFDs = parseUint(kv[len(EnvMaxOpenFDs)+1:])
		}
	}
	return limits
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func parseUint(s string) uint64 {
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + uint64(r-'0')
	}
	return n
}
