package rule_test

import (
	"testing"

	"github.com/gin-gonic/gin/binding"

	"github.com/yeisme/yukumo/pkg/rule"
)

func TestBuiltins(t *testing.T) {
	tests := []struct {
		tag   string
		in    string
		valid bool
	}{
		{"notion_id", "0123456789abcdef0123456789abcdef", true},
		{"notion_id", "01234567-89ab-cdef-0123-456789abcdef", true},
		{"notion_id", "0123456789abcdef", false},
		{"notion_id", "01234567-89ab-cdef-0123-456789abcdeg", false},
		{"notion_id", "", false},
		{"xxhash64", "00ff00ff00ff00ff", true},
		{"xxhash64", "00FF00FF00FF00FF", false},
		{"xxhash64", "00ff", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag+"/"+tt.in, func(t *testing.T) {
			err := rule.ValidateVar(tt.in, tt.tag)
			if (err == nil) != tt.valid {
				t.Errorf("ValidateVar(%q, %s) = %v, want valid=%v", tt.in, tt.tag, err, tt.valid)
			}
		})
	}
}

func TestGinBindingKeepsItsTag(t *testing.T) {
	_ = rule.Engine()

	type req struct {
		PageID string `binding:"notion_id"`
		Limit  int    `binding:"max=10"`
	}

	if err := binding.Validator.ValidateStruct(req{PageID: "nope", Limit: 1}); err == nil {
		t.Errorf("custom rule not registered on gin engine")
	}

	if err := binding.Validator.ValidateStruct(req{PageID: "0123456789abcdef0123456789abcdef", Limit: 11}); err == nil {
		t.Errorf("binding tag ignored")
	}
}

func TestErrors(t *testing.T) {
	type hashed struct {
		Hash string `rule:"omitempty,xxhash64"`
		Name string `rule:"required"`
		Age  int    `rule:"gte=18"`
	}

	errs := rule.Errors(rule.ValidateStruct(hashed{Hash: "XYZ", Age: 3}))
	if len(errs) != 3 {
		t.Fatalf("expected 3 field errors, got %v", errs)
	}

	if got := errs["hashed.Age"]; got != "failed on 'gte' (18)" {
		t.Errorf("hashed.Age = %q", got)
	}

	if _, ok := errs["hashed.Hash"]; !ok {
		t.Errorf("missing hashed.Hash in %v", errs)
	}

	if rule.Errors(nil) != nil {
		t.Error("Errors(nil) should be nil")
	}

	if err := rule.ValidateStruct(hashed{Hash: "00ff00ff00ff00ff", Name: "a", Age: 30}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
