package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"map-annotator/internal/llm_client"
)

// noOp is what the model answers when the text is not a command.
const noOp = "none"

// Generator is the part of an llm_client.Provider the resolver uses.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt, model string, schema any) (string, error)
}

// Resolver maps free text such as "take me to the kitchen" onto an op.
type Resolver struct {
	llm   Generator
	model string
	ops   *OpRegistry
}

func NewResolver(llm Generator, model string, ops *OpRegistry) *Resolver {
	if ops == nil {
		ops = NewOpRegistry(DefaultOps)
	}
	return &Resolver{llm: llm, model: model, ops: ops}
}

func (r *Resolver) schema() map[string]any {
	enum := []string{noOp}
	for _, d := range r.ops.Ops {
		if d.Inferable {
			enum = append(enum, string(d.Op))
		}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"op":   map[string]any{"type": "string", "enum": enum},
			"name": map[string]any{"type": "string"},
		},
		"required": []string{"op"},
	}
}

func (r *Resolver) buildIntentPrompt(text string, names []string) string {
	var sb strings.Builder
	sb.WriteString("You translate an operator's request for a mobile robot into one console operation. Respond ONLY with a JSON object. Do not include any other text or markdown formatting.\n\n")
	sb.WriteString(r.ops.GeneratePromptPart())
	sb.WriteString("\nKNOWN POSE NAMES: ")
	if len(names) == 0 {
		sb.WriteString("(none)")
	} else {
		sb.WriteString(strings.Join(names, ", "))
	}
	sb.WriteString("\n\nHARD RULES:\n")
	sb.WriteString("- Except for `create`, `name` must be copied exactly from the known pose names.\n")
	sb.WriteString(fmt.Sprintf("- If the request matches no operation, answer {\"op\": %q}.\n\n", noOp))
	sb.WriteString("EXAMPLE:\n")
	sb.WriteString("Request: \"head over to the charging dock\" (known names: dock, kitchen)\n")
	sb.WriteString("Assistant: {\"op\": \"go\", \"name\": \"dock\"}\n\n")
	sb.WriteString(fmt.Sprintf("Request: %q\n", text))
	sb.WriteString("Assistant JSON response: ")
	return sb.String()
}

// Resolve asks the model for an op and checks the answer against the known
// names before trusting it.
func (r *Resolver) Resolve(ctx context.Context, text string, names []string) (Input, error) {
	if r == nil || r.llm == nil {
		return Input{}, llm_client.ErrNotInitialized
	}
	raw, err := r.llm.GenerateJSON(ctx, r.buildIntentPrompt(text, names), r.model, r.schema())
	if err != nil {
		return Input{}, fmt.Errorf("failed to resolve intent from LLM: %w", err)
	}

	var intent Intent
	if err := json.Unmarshal([]byte(llm_client.CleanJSON(raw)), &intent); err != nil {
		return Input{}, fmt.Errorf("error parsing intent JSON: %v\nRaw Response: %s", err, raw)
	}

	op := strings.ToLower(strings.TrimSpace(intent.Op))
	if op == "" || op == noOp {
		return Input{}, fmt.Errorf("%w: %q", ErrUnknownInput, text)
	}
	def, found := r.ops.Lookup(op)
	if !found || !def.Inferable {
		return Input{}, fmt.Errorf("%w: model answered %q", ErrUnknownInput, intent.Op)
	}

	in := Input{Op: def.Op, Resolved: true}
	if def.NeedsName {
		in.Name = strings.TrimSpace(intent.Name)
		if def.Op != OpCreate && !slices.Contains(names, in.Name) {
			return Input{}, fmt.Errorf("no pose named %s", in.Name)
		}
	}
	if err := r.ops.Validate(in); err != nil {
		return Input{}, err
	}
	return in, nil
}

// NeedsConfirmation reports whether an inferred input should be confirmed by
// the operator before it runs.
func (r *Resolver) NeedsConfirmation(in Input) bool {
	def, found := r.ops.Lookup(string(in.Op))
	return in.Resolved && found && def.Confirm
}
