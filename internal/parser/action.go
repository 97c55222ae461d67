package parser

import "map-annotator/internal/pose"

// Op is one console operation.
type Op string

const (
	OpCreate Op = "create"
	OpDelete Op = "delete"
	OpGoTo   Op = "goto"
	OpGo     Op = "go"
	OpCancel Op = "cancel"
	OpMove   Op = "move"
	OpList   Op = "list"
	OpShow   Op = "show"
	OpStatus Op = "status"
	OpStats  Op = "stats"
	OpHelp   Op = "help"
	OpExit   Op = "exit"
)

// Input is a parsed console line.
type Input struct {
	Op   Op
	Name string
	// Pose is set for OpMove.
	Pose pose.Pose
	// Resolved is true when the input came from the language model rather
	// than the grammar.
	Resolved bool
}

// Intent is the JSON shape the language model answers with.
type Intent struct {
	Op   string `json:"op"`
	Name string `json:"name"`
}
