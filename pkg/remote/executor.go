package remote

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
	"golang.org/x/sync/errgroup"
)

// Command is one command line to run on a host
type Command struct {
	// Args is the argv, quoted for the remote shell
	Args []string
	// Script is a raw shell fragment run through bash -c, used instead of Args
	// when the command needs pipes or redirection
	Script string
	// Stdin is fed to the command if non-nil
	Stdin []byte
	// Sudo runs the command as root
	Sudo bool
}

// Cmd builds a Command from argv
func Cmd(args ...string) Command {
	return Command{Args: args}
}

// Sudo builds a Command from argv that runs as root
func Sudo(args ...string) Command {
	return Command{Args: args, Sudo: true}
}

// Script builds a Command from a raw shell fragment
func Script(script string) Command {
	return Command{Script: script}
}

// Quote joins argv into a single shell-safe string
func Quote(args ...string) string {
	return shellquote.Join(args...)
}

// Line renders the command as the remote shell will see it
func (c Command) Line() string {
	var line string
	if c.Script != "" {
		line = shellquote.Join("bash", "-c", c.Script)
	} else {
		line = shellquote.Join(c.Args...)
	}
	if c.Sudo {
		line = "sudo " + line
	}
	return line
}

// String is the human readable form used in logs and errors
func (c Command) String() string {
	if c.Script != "" {
		if c.Sudo {
			return "sudo bash -c " + c.Script
		}
		return c.Script
	}
	if c.Sudo {
		return "sudo " + strings.Join(c.Args, " ")
	}
	return strings.Join(c.Args, " ")
}

// Result is the outcome of a command that ran to completion
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Executor runs commands on named hosts
type Executor interface {
	// Run executes cmd on host. A non-zero exit status is reported as a
	// *CommandError; the returned Result is still populated.
	Run(ctx context.Context, host string, cmd Command) (*Result, error)
}

// CommandError is returned when a remote command exits non-zero
type CommandError struct {
	Host     string
	Command  string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command failed on %s with status %d: %s", e.Host, e.ExitCode, e.Command)
	if stderr := strings.TrimSpace(string(e.Stderr)); stderr != "" {
		msg += ": " + lastLine(stderr)
	}
	return msg
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Output runs cmd and returns its stdout
func Output(ctx context.Context, ex Executor, host string, cmd Command) ([]byte, error) {
	res, err := ex.Run(ctx, host, cmd)
	if err != nil {
		return nil, err
	}
	return res.Stdout, nil
}

// RunAll runs cmd on every host concurrently and waits for all of them
func RunAll(ctx context.Context, ex Executor, hosts []string, cmd Command) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, host := range hosts {
		host := host
		g.Go(func() error {
			_, err := ex.Run(ctx, host, cmd)
			return err
		})
	}
	return g.Wait()
}

// ReadFile returns the contents of path on host
func ReadFile(ctx context.Context, ex Executor, host, path string, sudo bool) ([]byte, error) {
	out, err := Output(ctx, ex, host, Command{Args: []string{"cat", path}, Sudo: sudo})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s on %s: %w", path, host, err)
	}
	return out, nil
}

// WriteOptions controls how WriteFile creates the file
type WriteOptions struct {
	Sudo bool
	// Mode is an octal permission string passed to chmod, e.g. "0644"
	Mode string
}

// WriteFile replaces path on host with data
func WriteFile(ctx context.Context, ex Executor, host, path string, data []byte, opts WriteOptions) error {
	script := Quote("tee", path) + " > /dev/null"
	if opts.Mode != "" {
		script += " && " + Quote("chmod", opts.Mode, path)
	}
	cmd := Command{Script: script, Stdin: bytes.Clone(data), Sudo: opts.Sudo}
	if _, err := ex.Run(ctx, host, cmd); err != nil {
		return fmt.Errorf("failed to write %s on %s: %w", path, host, err)
	}
	return nil
}
