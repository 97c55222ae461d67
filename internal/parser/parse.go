// Package parser turns console lines into operations, either through the
// fixed grammar or, for free text, through the language model.
package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"map-annotator/internal/pose"
)

var (
	ErrUnknownInput = errors.New("unknown command")
	ErrMissingName  = errors.New("missing pose name")
	ErrBadPose      = errors.New("bad pose")
)

// Parser applies the console grammar.
type Parser struct {
	ops *OpRegistry
}

func New(ops *OpRegistry) *Parser {
	if ops == nil {
		ops = NewOpRegistry(DefaultOps)
	}
	return &Parser{ops: ops}
}

func (p *Parser) Ops() *OpRegistry { return p.ops }

// Parse reads one line. An empty line yields an empty Input and no error;
// a line whose first word is not an op yields ErrUnknownInput.
func (p *Parser) Parse(line string) (Input, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Input{}, nil
	}
	def, found := p.ops.Lookup(fields[0])
	if !found {
		return Input{}, fmt.Errorf("%w: %q", ErrUnknownInput, fields[0])
	}

	in := Input{Op: def.Op}
	args := fields[1:]
	if def.Op == OpMove {
		return parseMove(in, args)
	}
	if def.NeedsName {
		in.Name = strings.Join(args, " ")
	}
	if err := p.ops.Validate(in); err != nil {
		return Input{}, err
	}
	return in, nil
}

// parseMove reads "<name> <x> <y> [yaw_deg]".
func parseMove(in Input, args []string) (Input, error) {
	if len(args) < 3 || len(args) > 4 {
		return Input{}, fmt.Errorf("%w: usage: move <name> <x> <y> [yaw_deg]", ErrBadPose)
	}
	nums := make([]float64, 0, 3)
	for _, a := range args[1:] {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Input{}, fmt.Errorf("%w: %q is not a number", ErrBadPose, a)
		}
		nums = append(nums, v)
	}
	yaw := 0.0
	if len(nums) == 3 {
		yaw = nums[2] * math.Pi / 180
	}
	in.Name = args[0]
	in.Pose = pose.FromXYYaw(nums[0], nums[1], yaw)
	return in, nil
}
