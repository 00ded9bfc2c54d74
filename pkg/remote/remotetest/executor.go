// Package remotetest provides a scripted remote.Executor for tests.
package remotetest

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/cuemby/cephdeploy/pkg/remote"
)

// Call is one recorded command
type Call struct {
	Host  string
	Line  string
	Stdin []byte
	Sudo  bool
}

// Rule scripts the response for commands whose rendered line contains Match
type Rule struct {
	Match string
	// Host restricts the rule to one host when set
	Host string
	// Stdout is returned on every matching call unless Sequence is set
	Stdout string
	// Sequence returns one entry per matching call; the last one repeats
	Sequence []string
	// ExitCode makes matching calls fail with a CommandError
	ExitCode int

	calls int
}

// Executor records calls and answers them from rules, first match wins.
// Commands without a matching rule succeed with empty output.
type Executor struct {
	mu    sync.Mutex
	rules []*Rule
	calls []Call
	files map[string][]byte
}

// New creates an empty fake executor
func New() *Executor {
	return &Executor{files: make(map[string][]byte)}
}

// On adds a rule that returns stdout for commands containing match
func (e *Executor) On(match, stdout string) *Executor {
	return e.Add(&Rule{Match: match, Stdout: stdout})
}

// Fail adds a rule that makes commands containing match exit with code
func (e *Executor) Fail(match string, code int) *Executor {
	return e.Add(&Rule{Match: match, ExitCode: code})
}

// Add adds a rule
func (e *Executor) Add(r *Rule) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
	return e
}

// Run implements remote.Executor
func (e *Executor) Run(ctx context.Context, host string, cmd remote.Command) (*remote.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	line := cmd.String()
	e.calls = append(e.calls, Call{Host: host, Line: line, Stdin: bytes.Clone(cmd.Stdin), Sudo: cmd.Sudo})

	// Writes through remote.WriteFile are kept so tests can inspect them
	if strings.HasPrefix(cmd.Script, "tee ") && cmd.Stdin != nil {
		path := strings.Fields(cmd.Script)[1]
		e.files[host+":"+strings.Trim(path, "'")] = bytes.Clone(cmd.Stdin)
	}

	for _, r := range e.rules {
		if !strings.Contains(line, r.Match) || (r.Host != "" && r.Host != host) {
			continue
		}
		out := r.Stdout
		if len(r.Sequence) > 0 {
			i := r.calls
			if i >= len(r.Sequence) {
				i = len(r.Sequence) - 1
			}
			out = r.Sequence[i]
		}
		r.calls++

		res := &remote.Result{ExitCode: r.ExitCode, Stdout: []byte(out)}
		if r.ExitCode != 0 {
			return res, &remote.CommandError{
				Host:     host,
				Command:  line,
				ExitCode: r.ExitCode,
				Stdout:   res.Stdout,
				Stderr:   []byte("scripted failure"),
			}
		}
		return res, nil
	}

	return &remote.Result{}, nil
}

// Calls returns every recorded call in order
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Lines returns the recorded lines that contain substr, in order
func (e *Executor) Lines(substr string) []string {
	var out []string
	for _, c := range e.Calls() {
		if strings.Contains(c.Line, substr) {
			out = append(out, c.Line)
		}
	}
	return out
}

// CallsTo returns the recorded calls that contain substr, in order
func (e *Executor) CallsTo(substr string) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if strings.Contains(c.Line, substr) {
			out = append(out, c)
		}
	}
	return out
}

// File returns data written to path on host through remote.WriteFile
func (e *Executor) File(host, path string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.files[host+":"+path]
	return data, ok
}
