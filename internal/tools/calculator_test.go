package tools

import (
	"strings"
	"testing"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"2 + 3", "5"},
		{"10 * 5", "50"},
		{"15 * 7 + 22", "127"},
		{"10 / 4", "2.5"},
		{"6 / 3", "2.0"},
		{"7 // 2", "3"},
		{"-7 // 2", "-4"},
		{"-7 % 3", "2"},
		{"7 % -3", "-2"},
		{"7.5 % 2", "1.5"},
		{"2 ** 10", "1024"},
		{"2 ** 3 ** 2", "512"},
		{"-2 ** 2", "-4"},
		{"2 ** -1", "0.5"},
		{"(1 + 2) * 3", "9"},
		{"--3", "3"},
		{"+4", "4"},
		{"0.1 + 0.2", "0.30000000000000004"},
		{"1e3", "1000.0"},
		{"1e16", "1e+16"},
		{"0.00001", "1e-05"},
		{"1_000 + 1", "1001"},
		{".5 + 1.", "1.5"},
		{"abs(-5)", "5"},
		{"abs(-2.5)", "2.5"},
		{"round(2.5)", "2"},
		{"round(3.5)", "4"},
		{"round(2.675, 2)", "2.67"},
		{"round(1234, -2)", "1200"},
		{"round(1250, -2)", "1200"},
		{"round(1350, -2)", "1400"},
		{"round(7, 2)", "7"},
		{"min(3, 1, 2)", "1"},
		{"max(3, 7.5, 2)", "7.5"},
		{"max(1, 1.0)", "1"},
		{"pow(2, 8)", "256"},
		{"pow(2, 0.5)", "1.4142135623730951"},
		{"2 ** 100", "1267650600228229401496703205376"},
		{"max(1, 2,)", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := Calculate(tt.expr); got != tt.want {
				t.Errorf("Calculate(%q) = %q, want %q", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCalculate_Errors(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"import os", "Error: name 'import' is not defined"},
		{"__import__('os').system('ls')", "Error: "},
		{"open('/etc/passwd').read()", "Error: "},
		{"x + 1", "Error: name 'x' is not defined"},
		{"1 / 0", "Error: division by zero"},
		{"1 // 0", "Error: integer division or modulo by zero"},
		{"5 % 0", "Error: integer modulo by zero"},
		{"0 ** -1", "Error: 0.0 cannot be raised to a negative power"},
		{"", "Error: invalid syntax"},
		{"2 +", "Error: invalid syntax"},
		{"(1 + 2", "Error: '(' was never closed"},
		{"1 2", "Error: invalid syntax"},
		{"abs", "Error: function 'abs' must be called"},
		{"abs(1, 2)", "Error: abs() takes exactly one argument (2 given)"},
		{"min(1)", "Error: 'int' object is not iterable"},
		{"round(1.5, 0.5)", "Error: 'float' object cannot be interpreted as an integer"},
		{"9 ** 9 ** 9", "Error: result too large"},
		{"10.0 ** 400", "Error: numerical result out of range"},
		{"(-8) ** 0.5", "Error: complex results are not supported"},
		{"01", "Error: leading zeros in decimal integer literals are not permitted"},
		{"1; 2", "Error: invalid syntax"},
		{strings.Repeat("(", 200) + "1" + strings.Repeat(")", 200), "Error: expression too deeply nested"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got := Calculate(tt.expr)
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("Calculate(%q) = %q, want prefix %q", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_IntVersusFloat(t *testing.T) {
	v, err := Evaluate("3 * 4")
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsInt() {
		t.Error("3 * 4 should stay an integer")
	}

	v, err = Evaluate("3 * 4.0")
	if err != nil {
		t.Fatal(err)
	}
	if v.IsInt() {
		t.Error("mixed arithmetic should produce a float")
	}
}
