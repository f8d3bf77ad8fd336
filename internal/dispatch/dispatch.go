// Package dispatch classifies command strings by their execution target and
// hands them to the host for execution.
//
// A command may carry a bracketed prefix selecting who issues it: "[console]",
// "[op]" or "[player]" (case-insensitive). No prefix means console. The
// classify/strip pair is pure; only Dispatcher.Run touches the host.
package dispatch

import (
	"context"
	"strings"

	logx "dailyrun/pkg/logx"
)

// Target is who a command is dispatched as.
type Target int

const (
	// TargetConsole runs the command as the administrative console actor.
	TargetConsole Target = iota
	// TargetOp runs as console with operator privileges. At this layer it is
	// dispatched identically to console; the distinction is the host's.
	TargetOp
	// TargetPlayer runs as an arbitrary currently-connected end user, falling
	// back to console when none is available.
	TargetPlayer
)

func (t Target) String() string {
	switch t {
	case TargetOp:
		return "op"
	case TargetPlayer:
		return "player"
	default:
		return "console"
	}
}

// prefix returns the bracketed tag for the target.
func (t Target) prefix() string { return "[" + t.String() + "]" }

// FromCommand classifies a raw command string by its leading bracketed tag.
// Unrecognized or missing tags default to console.
func FromCommand(raw string) Target {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(s, "[console]"):
		return TargetConsole
	case strings.HasPrefix(s, "[op]"):
		return TargetOp
	case strings.HasPrefix(s, "[player]"):
		return TargetPlayer
	default:
		return TargetConsole
	}
}

// StripPrefix removes exactly one leading recognized tag, case-insensitively,
// and returns the trimmed remainder. Commands without a recognized tag are
// returned trimmed but otherwise unchanged.
func StripPrefix(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	tag := FromCommand(s).prefix()
	if len(s) >= len(tag) && strings.EqualFold(s[:len(tag)], tag) {
		return strings.TrimSpace(s[len(tag):])
	}
	return s
}

// Actor identifies who the host should issue a command as.
type Actor struct {
	// Console is true for console/administrative dispatch.
	Console bool
	// User names the end user for non-console dispatch.
	User string
}

// Host is the external collaborator that actually interprets and executes
// command text. Errors are host-internal; only boolean success crosses this
// boundary.
type Host interface {
	// Dispatch runs the command as the given actor and reports success.
	Dispatch(ctx context.Context, as Actor, command string) bool
	// ActiveUser returns a currently-connected end user, if any.
	ActiveUser(ctx context.Context) (string, bool)
}

// Dispatcher routes classified commands to the host.
type Dispatcher struct {
	host Host
	log  logx.Logger
}

func New(host Host, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{host: host, log: log}
}

// Run classifies raw, strips its tag and dispatches the remainder.
// It reports whether the host accepted the command. An empty remainder is
// rejected without touching the host.
func (d *Dispatcher) Run(ctx context.Context, raw string) bool {
	target := FromCommand(raw)
	command := StripPrefix(raw)
	if command == "" {
		d.log.Warn("empty command after prefix removal", logx.String("raw", raw))
		return false
	}

	switch target {
	case TargetPlayer:
		if user, ok := d.host.ActiveUser(ctx); ok {
			return d.host.Dispatch(ctx, Actor{User: user}, command)
		}
		d.log.Warn("no connected user for player command, dispatching as console",
			logx.String("command", command))
		return d.host.Dispatch(ctx, Actor{Console: true}, command)
	default:
		// console and op dispatch identically here.
		return d.host.Dispatch(ctx, Actor{Console: true}, command)
	}
}
