package monitor

import (
	"context"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// GopsutilProcesses implements Processes over the host process table.
//
// Identifier resolution: by default an application's identifier is its
// lowercased executable name. Hosts that carry richer identifiers (desktop
// files, bundle ids) can inject a resolver.
//
// Focus tracking and activation have no portable process-table answer, so
// they are optional shell hooks (e.g. xdotool/wmctrl on X11); without them
// Foreground reports unknown and Activate is a no-op.
type GopsutilProcesses struct {
	// Resolver maps a process name to an application identifier.
	Resolver func(name string) string

	// ForegroundCommand, when set, is run to print the focused
	// application's identifier on stdout.
	ForegroundCommand []string

	// ActivateCommand, when set, is run with the identifier appended to
	// bring that application to the foreground.
	ActivateCommand []string
}

// NewGopsutilProcesses returns the default process backend.
func NewGopsutilProcesses() *GopsutilProcesses {
	return &GopsutilProcesses{}
}

func (g *GopsutilProcesses) resolve(name string) string {
	if g.Resolver != nil {
		return g.Resolver(name)
	}
	return strings.ToLower(name)
}

// Running enumerates the process table.
func (g *GopsutilProcesses) Running(ctx context.Context) (map[string]bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	running := make(map[string]bool, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue // process exited mid-walk or is inaccessible
		}
		if id := g.resolve(name); id != "" {
			running[id] = true
		}
	}
	return running, nil
}

// Foreground runs the configured focus hook, if any.
func (g *GopsutilProcesses) Foreground(ctx context.Context) (string, error) {
	if len(g.ForegroundCommand) == 0 {
		return "", nil
	}
	out, err := exec.CommandContext(ctx, g.ForegroundCommand[0], g.ForegroundCommand[1:]...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Terminate sends a polite terminate to every process matching the
// identifier. A missing process is not an error.
func (g *GopsutilProcesses) Terminate(ctx context.Context, bundleID string) error {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return err
	}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if g.resolve(name) != bundleID {
			continue
		}
		if err := p.TerminateWithContext(ctx); err != nil {
			// Racing an exiting process is fine; keep going.
			continue
		}
	}
	return nil
}

// Activate runs the configured activation hook, if any.
func (g *GopsutilProcesses) Activate(ctx context.Context, bundleID string) error {
	if len(g.ActivateCommand) == 0 {
		return nil
	}
	args := append(append([]string{}, g.ActivateCommand[1:]...), bundleID)
	return exec.CommandContext(ctx, g.ActivateCommand[0], args...).Run()
}

var _ Processes = (*GopsutilProcesses)(nil)
