package activitypub

import (
	"strings"
	"testing"
)

func defaultJSONLimits() JSONLimits {
	return JSONLimits{
		MaxSize:         1024 * 1024,
		MaxDepth:        50,
		MaxKeys:         1000,
		MaxStringLength: 500 * 1024,
	}
}

func TestParseBoundedJSONAccepts(t *testing.T) {
	body := `{"type":"Create","actor":"https://remote.example/users/alice","object":{"type":"Note","content":"hi"}}`
	var out map[string]any
	raw, err := ParseBoundedJSON(strings.NewReader(body), defaultJSONLimits(), &out)
	if err != nil {
		t.Fatalf("expected valid body to parse, got: %v", err)
	}
	if out["type"] != "Create" {
		t.Errorf("expected type Create, got %v", out["type"])
	}
	if string(raw) != body {
		t.Errorf("expected returned raw bytes to match input")
	}
}

func TestParseBoundedJSONRejectsOversizedBody(t *testing.T) {
	limits := defaultJSONLimits()
	limits.MaxSize = 16
	body := `{"type":"Create","actor":"https://remote.example/users/alice"}`
	var out map[string]any
	_, err := ParseBoundedJSON(strings.NewReader(body), limits, &out)
	if err == nil {
		t.Fatal("expected oversized body to be rejected")
	}
}

func TestParseBoundedJSONRejectsExcessiveDepth(t *testing.T) {
	limits := defaultJSONLimits()
	limits.MaxDepth = 3
	body := `{"a":{"b":{"c":{"d":"too deep"}}}}`
	var out map[string]any
	_, err := ParseBoundedJSON(strings.NewReader(body), limits, &out)
	if err == nil {
		t.Fatal("expected excessively nested body to be rejected")
	}
}

func TestParseBoundedJSONRejectsLongStrings(t *testing.T) {
	limits := defaultJSONLimits()
	limits.MaxStringLength = 8
	body := `{"content":"this string is definitely too long"}`
	var out map[string]any
	_, err := ParseBoundedJSON(strings.NewReader(body), limits, &out)
	if err == nil {
		t.Fatal("expected an overlong string value to be rejected")
	}
}

func TestParseBoundedJSONRejectsMalformed(t *testing.T) {
	var out map[string]any
	_, err := ParseBoundedJSON(strings.NewReader(`{not json`), defaultJSONLimits(), &out)
	if err == nil {
		t.Fatal("expected malformed JSON to be rejected")
	}
}

func TestRequiredActivityFields(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		wantErr bool
	}{
		{"has both fields", map[string]any{"type": "Create", "actor": "https://x.example/users/a"}, false},
		{"missing type", map[string]any{"actor": "https://x.example/users/a"}, true},
		{"missing actor", map[string]any{"type": "Create"}, true},
		{"missing both", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequiredActivityFields(tt.raw)
			if tt.wantErr && err == nil {
				t.Error("expected an error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}
