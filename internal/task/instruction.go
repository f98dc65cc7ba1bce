package task

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInstructionParse means the instruction matched no supported tool verb or
// lacked the required numeric arguments. The task fails fast with this reason
// before any protocol call is made.
var ErrInstructionParse = errors.New("could not parse instruction")

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// toolVerbs maps case-insensitive instruction keywords to worker tool names.
// This is a deliberately narrow convenience layer, not a parser: each verb
// takes the first two numeric literals from the text as arguments a and b.
var toolVerbs = []string{"add", "multiply", "divide"}

// ToolCall is an interpreted instruction.
type ToolCall struct {
	Tool      string
	Arguments map[string]any
}

// ParseInstruction interprets an instruction into a tool call by keyword
// matching and positional number extraction.
func ParseInstruction(instruction string) (*ToolCall, error) {
	lower := strings.ToLower(instruction)

	var numbers []float64
	for _, m := range numberPattern.FindAllString(instruction, -1) {
		if n, err := strconv.ParseFloat(m, 64); err == nil {
			numbers = append(numbers, n)
		}
	}

	for _, verb := range toolVerbs {
		if strings.Contains(lower, verb) && len(numbers) >= 2 {
			return &ToolCall{
				Tool:      verb,
				Arguments: map[string]any{"a": numbers[0], "b": numbers[1]},
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: %q (use a form like 'add 5 and 3' or 'multiply 4 and 6')",
		ErrInstructionParse, instruction)
}
