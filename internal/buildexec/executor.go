package buildexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandError reports a failed install or build command together with the
// output captured before the failure.
type CommandError struct {
	Command  string
	Output   string
	ExitCode int
	TimedOut bool
	Err      error
}

func (e *CommandError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("command %q timed out", e.Command)
	}
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Executor runs build commands as child processes with a per-step deadline.
type Executor struct {
	InstallTimeout time.Duration
	BuildTimeout   time.Duration
}

// InstallAndBuild runs the install command followed by the build command in
// dir. Install failure short-circuits the build step. The returned string is
// the combined output of the steps that ran, also populated on failure.
func (e Executor) InstallAndBuild(ctx context.Context, dir, installCmd, buildCmd string) (string, error) {
	installOut, err := e.run(ctx, dir, installCmd, e.InstallTimeout)
	if err != nil {
		return installOut, err
	}
	buildOut, err := e.run(ctx, dir, buildCmd, e.BuildTimeout)
	return installOut + buildOut, err
}

func (e Executor) run(ctx context.Context, dir, command string, timeout time.Duration) (string, error) {
	args, err := parseCommand(command)
	if err != nil {
		return "", &CommandError{Command: command, Err: err}
	}
	if len(args) == 0 {
		return "", nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	output, err := cmd.CombinedOutput()
	if err != nil {
		cmdErr := &CommandError{
			Command:  command,
			Output:   string(output),
			ExitCode: -1,
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cmdErr.TimedOut = true
		}
		return string(output), cmdErr
	}
	return string(output), nil
}

// parseCommand splits a command line into tokens, honouring single and
// double quotes and backslash escapes.
func parseCommand(command string) ([]string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, nil
	}
	var (
		tokens   []string
		current  strings.Builder
		inSingle bool
		inDouble bool
		escape   bool
	)

	for _, r := range command {
		switch {
		case escape:
			current.WriteRune(r)
			escape = false
		case r == '\\':
			escape = true
		case r == '\'':
			if !inDouble {
				inSingle = !inSingle
				continue
			}
			current.WriteRune(r)
		case r == '"':
			if !inSingle {
				inDouble = !inDouble
				continue
			}
			current.WriteRune(r)
		case (r == ' ' || r == '\t' || r == '\n' || r == '\r') && !inSingle && !inDouble:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if escape || inSingle || inDouble {
		return nil, fmt.Errorf("unterminated quoted string in command: %s", command)
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens, nil
}
