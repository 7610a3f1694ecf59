package tools

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 4", 2.5},
		{"10 % 4", 2},
		{"2 ^ 10", 1024},
		{"2 ** 3 ** 2", 512},
		{"-2 ^ 2", -4},
		{"--3", 3},
		{"+5 - -5", 10},
		{"1e3 + 2.5E-1", 1000.25},
		{"sqrt(16) + abs(-2)", 6},
		{"pow(2, 8)", 256},
		{"min(4, 2, 9)", 2},
		{"max(4, 2, 9)", 9},
		{"floor(2.7) + ceil(2.1) + round(2.5)", 8},
		{"log(1000)", 3},
		{"log2(8)", 3},
		{"ln(e)", 1},
		{"PI", math.Pi},
		{"SQRT(9)", 3},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			if err != nil {
				t.Fatalf("Evaluate(%q): %v", tt.expr, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"1 / 0", "division by zero"},
		{"5 % 0", "division by zero"},
		{"foo + 1", `unknown name "foo"`},
		{"bogus(1)", `unknown function "bogus"`},
		{"(1 + 2", "missing )"},
		{"pow(2)", "pow takes 2 arguments"},
		{"sqrt(1, 2)", "takes 1 argument"},
		{"1 +", "unexpected end of expression"},
		{"2 3", "unexpected"},
		{"sqrt(-1)", "not a finite number"},
		{"1.2.3", "invalid number"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Evaluate(tt.expr)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Evaluate(%q) err = %v, want containing %q", tt.expr, err, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{42, "42"},
		{-3, "-3"},
		{2.5, "2.5"},
		{0.1 + 0.2, "0.3"},
		{1.0 / 3, "0.3333333333"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCalculatorTool(t *testing.T) {
	r := NewRegistry(nil)
	r.SetCalculator()

	res := r.Execute(context.Background(), "calculator", map[string]any{"expression": "(2 + 3) * sqrt(16)"})
	if !res.OK || res.Text != "20" {
		t.Errorf("result = %+v", res)
	}

	res = r.Execute(context.Background(), "calculator", map[string]any{"expression": "1/0"})
	if res.OK || res.Code != CodeInvalidInput || !strings.Contains(res.Text, "division by zero") {
		t.Errorf("division result = %+v", res)
	}

	res = r.Execute(context.Background(), "calculator", map[string]any{})
	if res.OK || res.Code != CodeInvalidInput {
		t.Errorf("missing expression result = %+v", res)
	}
}
