// Package control is the transport-agnostic management surface. It parses one
// text command line, checks the caller's permission, applies the operation and
// returns a human-readable reply. Callers (a local admin socket, a chat
// bridge, a CLI) only deal in strings.
package control

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"dailyrun/internal/registry"
	logx "dailyrun/pkg/logx"
)

// Permission names checked against the caller.
const (
	PermUse   = "use"
	PermView  = "view"
	PermAdmin = "admin"
)

// Caller answers permission checks for the party issuing a command.
type Caller interface {
	Can(permission string) bool
}

// AllowAll is a Caller that grants everything (local admin use).
type AllowAll struct{}

func (AllowAll) Can(string) bool { return true }

// TaskAdmin is the slice of the registry the control surface drives.
type TaskAdmin interface {
	TaskIDs() []int
	Task(id int) (registry.Task, bool)
	Count() int
	UpdateTaskTime(id int, timeStr string) error
	AddCommand(id int, command string) error
	RemoveCommand(id int, index int) error
	UpdateMessage(id int, message string) error
	RemoveTask(id int) error
	ExecuteTaskForTesting(ctx context.Context, id int) bool
}

// Handler dispatches management command lines.
type Handler struct {
	tasks  TaskAdmin
	reload func(ctx context.Context) error
	log    logx.Logger
}

// New builds a Handler. reload re-reads the configuration and rebuilds the
// task collection; it may be nil, which disables the reload subcommand.
func New(tasks TaskAdmin, reload func(ctx context.Context) error, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{tasks: tasks, reload: reload, log: log}
}

// Handle runs one command line and returns the reply text.
func (h *Handler) Handle(ctx context.Context, caller Caller, line string) string {
	if !caller.Can(PermUse) {
		return "You don't have permission to use this command."
	}

	args := strings.Fields(line)
	if len(args) == 0 {
		return helpText
	}

	switch strings.ToLower(args[0]) {
	case "help":
		return helpText
	case "list":
		return h.list(caller)
	case "reload":
		return h.handleReload(ctx, caller)
	case "edit":
		return h.edit(caller, args[1:])
	case "test":
		return h.test(ctx, caller, args[1:])
	case "remove":
		return h.remove(caller, args[1:])
	default:
		return "Unknown subcommand: " + args[0] + "\n" + helpText
	}
}

const helpText = `Available commands:
  list - List all tasks
  reload - Reload configuration
  edit <id> time <HH:MM> - Change task time
  edit <id> commands add <command> - Add command
  edit <id> commands remove <index> - Remove command
  edit <id> message <text> - Set task message (empty clears)
  test <id> - Run task now, bypassing schedule and ledger
  remove <id> - Remove task
  help - Show this help`

func (h *Handler) list(caller Caller) string {
	if !caller.Can(PermView) {
		return "You don't have permission to view tasks."
	}
	ids := h.tasks.TaskIDs()
	if len(ids) == 0 {
		return "No tasks configured."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Task List (%d tasks) ===\n", len(ids))
	for _, id := range ids {
		t, ok := h.tasks.Task(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "Task %d at %s", id, t.FormattedTime())
		if msg := strings.TrimSpace(t.Message); msg != "" {
			fmt.Fprintf(&b, " — %s", msg)
		}
		fmt.Fprintf(&b, "\nCommands (%d):\n", len(t.Commands))
		for i, cmd := range t.Commands {
			if len(cmd) > 80 {
				cmd = cmd[:77] + "..."
			}
			fmt.Fprintf(&b, "  %d. %s\n", i+1, cmd)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) handleReload(ctx context.Context, caller Caller) string {
	if !caller.Can(PermAdmin) {
		return "You don't have permission to reload the configuration."
	}
	if h.reload == nil {
		return "Reload is not available."
	}
	if err := h.reload(ctx); err != nil {
		h.log.Error("reload via control surface failed", logx.Err(err))
		return "Failed to reload config: " + err.Error()
	}
	return fmt.Sprintf("Config reloaded successfully (%d tasks).", h.tasks.Count())
}

func (h *Handler) edit(caller Caller, args []string) string {
	if !caller.Can(PermAdmin) {
		return "You don't have permission to edit tasks."
	}
	if len(args) < 2 {
		return "Usage: edit <id> <time|commands|message> <value>"
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return "Invalid task ID. Must be a number."
	}
	if _, ok := h.tasks.Task(id); !ok {
		return fmt.Sprintf("Task %d not found.", id)
	}

	switch strings.ToLower(args[1]) {
	case "time":
		if len(args) < 3 {
			return "Usage: edit <id> time <HH:MM>"
		}
		if err := h.tasks.UpdateTaskTime(id, args[2]); err != nil {
			return "Invalid time format. Use HH:MM format (24-hour)."
		}
		return fmt.Sprintf("Task %d time updated to %s.", id, args[2])

	case "commands":
		return h.editCommands(id, args[2:])

	case "message":
		msg := strings.Join(args[2:], " ")
		if err := h.tasks.UpdateMessage(id, msg); err != nil {
			return "Failed to update message: " + err.Error()
		}
		if strings.TrimSpace(msg) == "" {
			return fmt.Sprintf("Task %d message cleared.", id)
		}
		return fmt.Sprintf("Task %d message updated.", id)

	default:
		return "Invalid edit type. Use 'time', 'commands' or 'message'."
	}
}

func (h *Handler) editCommands(id int, args []string) string {
	if len(args) < 2 {
		return "Usage: edit <id> commands <add|remove> <command|index>"
	}
	switch strings.ToLower(args[0]) {
	case "add":
		cmd := strings.Join(args[1:], " ")
		if err := h.tasks.AddCommand(id, cmd); err != nil {
			return "Cannot add command: " + err.Error()
		}
		return fmt.Sprintf("Command added to task %d: %s", id, strings.TrimSpace(cmd))
	case "remove":
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return "Invalid command index. Must be a number."
		}
		if err := h.tasks.RemoveCommand(id, index); err != nil {
			return "Cannot remove command: " + err.Error()
		}
		return fmt.Sprintf("Command %d removed from task %d.", index, id)
	default:
		return "Usage: edit <id> commands <add|remove> <command|index>"
	}
}

func (h *Handler) test(ctx context.Context, caller Caller, args []string) string {
	if !caller.Can(PermAdmin) {
		return "You don't have permission to test tasks."
	}
	if len(args) < 1 {
		return "Usage: test <id>"
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return "Invalid task ID. Must be a number."
	}
	t, ok := h.tasks.Task(id)
	if !ok {
		return fmt.Sprintf("Task %d not found.", id)
	}
	if !h.tasks.ExecuteTaskForTesting(ctx, id) {
		return fmt.Sprintf("Failed to start task %d.", id)
	}
	return fmt.Sprintf("Testing task %d (%d commands). Check logs for execution details.", id, len(t.Commands))
}

func (h *Handler) remove(caller Caller, args []string) string {
	if !caller.Can(PermAdmin) {
		return "You don't have permission to remove tasks."
	}
	if len(args) < 1 {
		return "Usage: remove <id>"
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return "Invalid task ID. Must be a number."
	}
	if err := h.tasks.RemoveTask(id); err != nil {
		if err == registry.ErrTaskNotFound {
			return fmt.Sprintf("Task %d not found.", id)
		}
		return "Failed to remove task: " + err.Error()
	}
	return fmt.Sprintf("Task %d removed successfully.", id)
}
