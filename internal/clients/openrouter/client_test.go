package openrouter

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantKey string
		wantErr bool
	}{
		{"plain json", `{"problem_type":"Linear Equation"}`, "problem_type", false},
		{"json fence", "```json\n{\"problem_type\":\"Linear Equation\"}\n```", "problem_type", false},
		{"bare fence", "```\n{\"problem_type\":\"Linear Equation\"}\n```", "problem_type", false},
		{"prose", "The answer is x = 2.", "", true},
		{"empty", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obj, err := ExtractJSON(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ExtractJSON(%q) expected error, got %v", tc.in, obj)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON(%q) error: %v", tc.in, err)
			}
			if _, ok := obj[tc.wantKey]; !ok {
				t.Fatalf("ExtractJSON(%q) missing key %q: %v", tc.in, tc.wantKey, obj)
			}
		})
	}
}
