// Package toolprobe locates external command-line tools and runs them with
// bounded arguments and timeouts.
package toolprobe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrUnavailable is returned when invoking a tool that is not installed.
var ErrUnavailable = errors.New("tool not available")

// Probe answers whether a tool is on PATH. Lookups are memoised.
type Probe struct {
	lookPath func(string) (string, error)

	mu    sync.Mutex
	paths map[string]string
	found map[string]bool
}

// NewProbe returns a Probe backed by exec.LookPath.
func NewProbe() *Probe {
	return NewProbeWithLookup(exec.LookPath)
}

// NewProbeWithLookup lets tests replace PATH resolution.
func NewProbeWithLookup(lookPath func(string) (string, error)) *Probe {
	return &Probe{
		lookPath: lookPath,
		paths:    make(map[string]string),
		found:    make(map[string]bool),
	}
}

// Available reports whether name resolves on PATH.
func (p *Probe) Available(name string) bool {
	_, ok := p.Path(name)
	return ok
}

// Path returns the resolved location of name.
func (p *Probe) Path(name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ok, seen := p.found[name]; seen {
		return p.paths[name], ok
	}
	path, err := p.lookPath(name)
	ok := err == nil && path != ""
	p.found[name] = ok
	p.paths[name] = path
	return path, ok
}

// Forget drops memoised results so tools installed later are picked up.
func (p *Probe) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = make(map[string]string)
	p.found = make(map[string]bool)
}

// Report returns availability for each name, sorted by name.
func (p *Probe) Report(names ...string) []Status {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	out := make([]Status, 0, len(sorted))
	for _, n := range sorted {
		path, ok := p.Path(n)
		out = append(out, Status{Name: n, Available: ok, Path: path})
	}
	return out
}

// Status is one line of a Report.
type Status struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
}

// Output is what a tool wrote.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Tool is an external program the processors depend on.
type Tool interface {
	Name() string
	Available() bool
	Invoke(ctx context.Context, args ...string) (Output, error)
}

// ExecTool runs a binary found through a Probe.
type ExecTool struct {
	name    string
	probe   *Probe
	timeout time.Duration
}

// NewTool binds name to probe. timeout <= 0 means no per-invocation limit.
func NewTool(probe *Probe, name string, timeout time.Duration) *ExecTool {
	return &ExecTool{name: name, probe: probe, timeout: timeout}
}

func (t *ExecTool) Name() string { return t.name }

func (t *ExecTool) Available() bool { return t.probe.Available(t.name) }

// Invoke runs the tool and captures its output. A non-zero exit is an error
// whose message carries the last stderr line.
func (t *ExecTool) Invoke(ctx context.Context, args ...string) (Output, error) {
	path, ok := t.probe.Path(t.name)
	if !ok {
		return Output{}, fmt.Errorf("%s: %w", t.name, ErrUnavailable)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("%s: %w", t.name, ctx.Err())
		}
		if line := lastLine(stderr.String()); line != "" {
			return out, fmt.Errorf("%s failed: %s", t.name, line)
		}
		return out, fmt.Errorf("%s failed: %w", t.name, err)
	}
	return out, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
