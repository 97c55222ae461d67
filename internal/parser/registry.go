package parser

import (
	"fmt"
	"strings"
)

// OpDefinition describes one console operation.
type OpDefinition struct {
	Op          Op
	Aliases     []string
	Usage       string
	Description string
	NeedsName   bool
	// Inferable ops may be produced by the language model from free text.
	Inferable bool
	// Confirm asks the operator before running an inferred op.
	Confirm bool
}

type OpRegistry struct {
	Ops   []OpDefinition
	byKey map[string]OpDefinition
}

// DefaultOps is the console vocabulary.
var DefaultOps = []OpDefinition{
	{Op: OpCreate, Aliases: []string{"add", "save"}, Usage: "create <name>", Description: "Store the marker's current pose under a name.", NeedsName: true, Inferable: true},
	{Op: OpDelete, Aliases: []string{"rm", "remove", "del"}, Usage: "delete <name>", Description: "Forget a named pose.", NeedsName: true, Inferable: true, Confirm: true},
	{Op: OpGo, Aliases: []string{"navigate"}, Usage: "go <name>", Description: "Navigate to a named pose and report the outcome.", NeedsName: true, Inferable: true},
	{Op: OpGoTo, Usage: "goto <name>", Description: "Send the robot to a named pose without tracking it.", NeedsName: true},
	{Op: OpCancel, Aliases: []string{"stop"}, Usage: "cancel", Description: "Preempt the goal in progress.", Inferable: true},
	{Op: OpMove, Usage: "move <name> <x> <y> [yaw_deg]", Description: "Drag a marker to a new position.", NeedsName: true},
	{Op: OpList, Aliases: []string{"ls", "names"}, Usage: "list", Description: "List the stored names.", Inferable: true},
	{Op: OpShow, Usage: "show <name>", Description: "Print a stored pose.", NeedsName: true, Inferable: true},
	{Op: OpStatus, Usage: "status", Description: "Show the goal in progress.", Inferable: true},
	{Op: OpStats, Usage: "stats", Description: "Show timings of recent goals."},
	{Op: OpHelp, Aliases: []string{"?"}, Usage: "help", Description: "Show this help."},
	{Op: OpExit, Aliases: []string{"quit"}, Usage: "exit", Description: "Leave the console and shut down."},
}

func NewOpRegistry(defs []OpDefinition) *OpRegistry {
	r := &OpRegistry{Ops: defs, byKey: make(map[string]OpDefinition)}
	for _, d := range defs {
		r.byKey[string(d.Op)] = d
		for _, a := range d.Aliases {
			r.byKey[a] = d
		}
	}
	return r
}

// Lookup resolves an op name or alias.
func (r *OpRegistry) Lookup(word string) (OpDefinition, bool) {
	def, found := r.byKey[strings.ToLower(word)]
	return def, found
}

// Creates the text block for the LLM prompt
func (r *OpRegistry) GeneratePromptPart() string {
	var sb strings.Builder
	sb.WriteString("AVAILABLE OPERATIONS:\n")
	for _, d := range r.Ops {
		if !d.Inferable {
			continue
		}
		needs := "no name"
		if d.NeedsName {
			needs = "requires `name`"
		}
		sb.WriteString(fmt.Sprintf("- `%s`: %s (%s)\n", d.Op, d.Description, needs))
	}
	return sb.String()
}

// Help lists every operation with its usage.
func (r *OpRegistry) Help() string {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, d := range r.Ops {
		sb.WriteString(fmt.Sprintf("  %-30s %s\n", d.Usage, d.Description))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Validate checks that in is well formed for its op.
func (r *OpRegistry) Validate(in Input) error {
	def, found := r.byKey[string(in.Op)]
	if !found {
		return fmt.Errorf("%w: %q", ErrUnknownInput, in.Op)
	}
	if def.NeedsName && strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: usage: %s", ErrMissingName, def.Usage)
	}
	return nil
}
