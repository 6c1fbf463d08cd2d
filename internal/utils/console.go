package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/openwrt-rk/emmc-install/internal/constants"
)

// Runner runs external tools. Every install step goes through it so the
// steps can be exercised without touching a real disk.
type Runner interface {
	Run(name string, args ...string) (string, error)
	Pipe(src, dst []string) (string, error)
	LookPath(name string) (string, error)
}

// CommandError is returned when a tool exits with a non zero status.
type CommandError struct {
	Cmd      string
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("failed to run %s %s (exit status %d)", e.Cmd, strings.Join(e.Args, " "), e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg = fmt.Sprintf("%s: %s", msg, out)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Console is the Runner backed by os/exec.
type Console struct{}

func (c Console) Run(name string, args ...string) (string, error) {
	l := Log.With().Str("cmd", name).Strs("args", args).Logger()
	l.Debug().Msg("running")

	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		cmdErr := commandError(append([]string{name}, args...), string(out), err)
		l.Debug().Str("output", string(out)).Int("exit", cmdErr.ExitCode).Msg("command failed")
		return string(out), cmdErr
	}
	return string(out), nil
}

// Pipe runs src with its output fed to dst. It fails if either side fails,
// the source side is checked first.
func (c Console) Pipe(src, dst []string) (string, error) {
	l := Log.With().Strs("src", src).Strs("dst", dst).Logger()
	l.Debug().Msg("running pipe")

	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}
	var srcOut, dstOut bytes.Buffer
	from := exec.Command(src[0], src[1:]...)
	from.Stdout = w
	from.Stderr = &srcOut
	to := exec.Command(dst[0], dst[1:]...)
	to.Stdin = r
	to.Stdout = &dstOut
	to.Stderr = &dstOut

	if err := from.Start(); err != nil {
		r.Close()
		w.Close()
		return "", commandError(src, "", err)
	}
	if err := to.Start(); err != nil {
		r.Close()
		w.Close()
		_ = from.Wait()
		return "", commandError(dst, "", err)
	}
	// Only the children hold the pipe now, so dst sees EOF when src exits.
	r.Close()
	w.Close()

	fromErr := from.Wait()
	toErr := to.Wait()
	out := srcOut.String() + dstOut.String()
	if fromErr != nil {
		l.Debug().Str("output", srcOut.String()).Msg("pipe source failed")
		return out, commandError(src, srcOut.String(), fromErr)
	}
	if toErr != nil {
		l.Debug().Str("output", dstOut.String()).Msg("pipe destination failed")
		return out, commandError(dst, dstOut.String(), toErr)
	}
	return out, nil
}

func commandError(cmd []string, out string, err error) *CommandError {
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &CommandError{Cmd: cmd[0], Args: cmd[1:], ExitCode: exitCode, Output: out, Err: err}
}

func (c Console) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// CheckTools makes sure every tool is reachable, reporting all the missing ones at once.
func CheckTools(r Runner, tools []string) error {
	var missing error
	for _, t := range tools {
		if _, err := r.LookPath(t); err != nil {
			missing = multierror.Append(missing, fmt.Errorf("%s: %w", t, err))
		}
	}
	if missing != nil {
		return fmt.Errorf("%w: %w", constants.ErrMissingDependency, missing)
	}
	return nil
}
