package task

import (
	"errors"
	"testing"
)

func TestParseInstruction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		instruction string
		wantTool    string
		wantA       float64
		wantB       float64
	}{
		{name: "add", instruction: "add 5 and 3", wantTool: "add", wantA: 5, wantB: 3},
		{name: "multiply", instruction: "multiply 4 and 6", wantTool: "multiply", wantA: 4, wantB: 6},
		{name: "divide", instruction: "divide 10 by 2", wantTool: "divide", wantA: 10, wantB: 2},
		{name: "mixed case", instruction: "Please ADD 7 and 2 for me", wantTool: "add", wantA: 7, wantB: 2},
		{name: "decimals", instruction: "multiply 1.5 and 2.25", wantTool: "multiply", wantA: 1.5, wantB: 2.25},
		{name: "extra numbers ignored", instruction: "add 1 and 2 and 3", wantTool: "add", wantA: 1, wantB: 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			call, err := ParseInstruction(tt.instruction)
			if err != nil {
				t.Fatalf("ParseInstruction(%q): %v", tt.instruction, err)
			}
			if call.Tool != tt.wantTool {
				t.Errorf("tool = %q, want %q", call.Tool, tt.wantTool)
			}
			if got := call.Arguments["a"]; got != tt.wantA {
				t.Errorf("a = %v, want %v", got, tt.wantA)
			}
			if got := call.Arguments["b"]; got != tt.wantB {
				t.Errorf("b = %v, want %v", got, tt.wantB)
			}
		})
	}
}

func TestParseInstructionRejectsUnknown(t *testing.T) {
	t.Parallel()

	for _, instruction := range []string{
		"compute the thing",
		"add these up", // verb without two numbers
		"5 and 3",      // numbers without a verb
		"",
	} {
		if _, err := ParseInstruction(instruction); !errors.Is(err, ErrInstructionParse) {
			t.Errorf("ParseInstruction(%q) = %v, want ErrInstructionParse", instruction, err)
		}
	}
}
