package engine

import "testing"

func mapLookup(values map[string]string) LookupFunc {
	return func(ref string) string {
		return values[ref]
	}
}

func TestEvalCondition(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"A1": "10",
		"B1": "Done",
		"C1": "",
		"D1": "The quick brown fox",
		"E1": "null",
	})

	tests := []struct {
		cond string
		want bool
	}{
		// equality resolves the reference to its output
		{"A1==10", true},
		{"A1 == 10", true},
		{"A1==11", false},
		{"A1=10", true},

		// equality is loose and case-insensitive
		{"B1==done", true},
		{"B1==DONE", true},
		{"B1!=done", false},
		{"B1 != pending", true},

		// numeric comparisons coerce both sides
		{"A1>5", true},
		{"A1<5", false},
		{"A1>=10", true},
		{"A1<=9", false},
		{"B1>5", false}, // non-numeric operand, comparison is false

		// substring operators are case-insensitive
		{"D1 contains QUICK", true},
		{"D1 contains lazy", false},
		{"D1 startsWith the", true},
		{"D1 startsWith fox", false},
		{"D1 endsWith FOX", true},
		{"D1 endsWith quick", false},

		// bare operand is a truthy check
		{"B1", true},
		{"C1", false},
		{"E1", false}, // "null" output reads as empty

		// quoted operands are literals, never lookups
		{`"A1"=="A1"`, true},
		{`'B1' == 'b1'`, true},

		// literals on both sides
		{"done==done", true},
		{"5 > 3", true},

		// degenerate input
		{"", false},
		{"   ", false},
	}

	for _, tt := range tests {
		if got := EvalCondition(tt.cond, lookup); got != tt.want {
			t.Errorf("EvalCondition(%q) = %v, want %v", tt.cond, got, tt.want)
		}
	}
}

func TestEvalCondition_NilLookup(t *testing.T) {
	// with no lookup, reference-shaped operands stay literal
	if !EvalCondition("A1==A1", nil) {
		t.Error("expected literal comparison to hold")
	}
	if EvalCondition("A1", nil) != true {
		t.Error("bare literal is non-empty, expected truthy")
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"hello", true},
		{"0", true}, // zero is a value, not emptiness
		{"", false},
		{"  ", false},
		{"null", false},
		{"NULL", false},
		{"undefined", false},
	}
	for _, tt := range tests {
		if got := truthy(tt.in); got != tt.want {
			t.Errorf("truthy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
