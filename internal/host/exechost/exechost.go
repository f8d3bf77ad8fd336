// Package exechost runs dispatched commands through the local shell. It is
// the default host collaborator, letting the daemon operate standalone
// without an external command sink.
package exechost

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"dailyrun/internal/dispatch"
	logx "dailyrun/pkg/logx"
)

// Host executes command text via `sh -c`. Output is captured and logged;
// the dispatch result is the process exit status.
type Host struct {
	shell string
	env   []string
	log   logx.Logger
}

type Options struct {
	// Shell is the interpreter binary; defaults to "sh".
	Shell string
	// Env supplements the process environment for every command.
	Env []string
}

func New(opts Options, log logx.Logger) *Host {
	if log.IsZero() {
		log = logx.Nop()
	}
	shell := opts.Shell
	if shell == "" {
		shell = "sh"
	}
	return &Host{shell: shell, env: opts.Env, log: log}
}

// Dispatch runs one command line. The actor is recorded in the command's
// environment (DAILYRUN_ACTOR) so scripts can tell scheduled runs apart.
func (h *Host) Dispatch(ctx context.Context, actor dispatch.Actor, command string) bool {
	start := time.Now()

	cmd := exec.CommandContext(ctx, h.shell, "-c", command)
	if len(h.env) > 0 || !actor.Console {
		cmd.Env = append(cmd.Environ(), h.env...)
	}
	if !actor.Console {
		cmd.Env = append(cmd.Env, "DAILYRUN_ACTOR="+actor.User)
	}

	out, err := cmd.CombinedOutput()
	took := time.Since(start)
	if err != nil {
		h.log.Warn("command failed",
			logx.String("command", command),
			logx.String("output", trimOutput(out)),
			logx.Duration("took", took),
			logx.Err(err))
		return false
	}
	h.log.Debug("command succeeded",
		logx.String("command", command),
		logx.Duration("took", took))
	return true
}

// ActiveUser always reports no user: a shell host has no end-user session, so
// user-targeted commands fall back to console dispatch.
func (h *Host) ActiveUser(context.Context) (string, bool) { return "", false }

func trimOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 512 {
		s = s[:512] + "..."
	}
	return s
}
