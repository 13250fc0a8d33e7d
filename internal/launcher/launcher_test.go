package launcher

import (
	"context"
	"io"
	"testing"

	"github.com/wandbox-go/cattleshed/internal/compiler"
)

func TestSpawnRunsAndStreamsStdout(t *testing.T) {
	dir := t.TempDir()
	proc, err := Spawn(context.Background(), dir, []string{"/bin/echo", "hi"}, compiler.ResourceLimits{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer proc.Stdin.Close()

	out, err := io.ReadAll(proc.Stdout)
	if err != nil {
		t.Fatalf("ReadAll stdout: %v", err)
	}
	if string(out) != "hi\n" {
		t.Errorf("stdout = %q, want %q", out, "hi\n")
	}

	if err := proc.Cmd.Wait(); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestSpawnSetsWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	proc, err := Spawn(context.Background(), dir, []string{"/bin/pwd"}, compiler.ResourceLimits{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer proc.Stdin.Close()

	out, _ := io.ReadAll(proc.Stdout)
	proc.Cmd.Wait()

	got := string(out)
	if len(got) > 0 && got[len(got)-1] == '\n' {
		got = got[:len(got)-1]
	}
	if got != dir {
		t.Errorf("pwd = %q, want %q", got, dir)
	}
}

func TestSpawnEmptyArgvFails(t *testing.T) {
	if _, err := Spawn(context.Background(), t.TempDir(), nil, compiler.ResourceLimits{}); err == nil {
		t.Error("Spawn(nil argv) = nil error, want *ErrSpawnFailed")
	}
}

func TestCollectOutputReturnsFirstLine(t *testing.T) {
	dir := t.TempDir()
	line, ok := CollectOutput(context.Background(), dir, []string{"/bin/echo", "v1.2.3"})
	if !ok {
		t.Fatal("CollectOutput ok = false, want true")
	}
	if line != "v1.2.3" {
		t.Errorf("line = %q, want v1.2.3", line)
	}
}

func TestCollectOutputSkipsOnNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	_, ok := CollectOutput(context.Background(), dir, []string{"/bin/false"})
	if ok {
		t.Error("CollectOutput ok = true for failing command, want false")
	}
}

func TestCollectOutputSkipsOnEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	_, ok := CollectOutput(context.Background(), dir, []string{"/bin/true"})
	if ok {
		t.Error("CollectOutput ok = true for empty output, want false")
	}
}
