package mocks

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/openwrt-rk/emmc-install/internal/utils"
)

// FakeRunner records every command instead of running it.
// A command fails when its joined command line starts with one of the FailOn prefixes.
type FakeRunner struct {
	Calls   [][]string
	FailOn  []string
	Missing []string
	// Output is returned by the commands whose joined line starts with the key.
	Output map[string]string
}

func (r *FakeRunner) Run(name string, args ...string) (string, error) {
	call := append([]string{name}, args...)
	r.Calls = append(r.Calls, call)
	line := strings.Join(call, " ")
	for _, f := range r.FailOn {
		if strings.HasPrefix(line, f) {
			return "boom", &utils.CommandError{Cmd: name, Args: args, ExitCode: 1, Output: "boom", Err: fmt.Errorf("exit status 1")}
		}
	}
	for prefix, out := range r.Output {
		if strings.HasPrefix(line, prefix) {
			return out, nil
		}
	}
	return "", nil
}

// Pipe records src and dst as a single call joined by "|".
func (r *FakeRunner) Pipe(src, dst []string) (string, error) {
	call := append(append(append([]string{}, src...), "|"), dst...)
	return r.Run(call[0], call[1:]...)
}

func (r *FakeRunner) LookPath(name string) (string, error) {
	for _, m := range r.Missing {
		if m == name {
			return "", exec.ErrNotFound
		}
	}
	return "/usr/bin/" + name, nil
}

// CmdLines returns the recorded calls joined by spaces.
func (r *FakeRunner) CmdLines() []string {
	var lines []string
	for _, c := range r.Calls {
		lines = append(lines, strings.Join(c, " "))
	}
	return lines
}

// Called returns true if any recorded call starts with the given prefix.
func (r *FakeRunner) Called(prefix string) bool {
	for _, l := range r.CmdLines() {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
