package schema

import "testing"

func passedSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"passed": map[string]any{"type": "boolean"},
			"issues": map[string]any{"type": "array"},
		},
		"required": []string{"passed"},
	}
}

func TestCheckShapeValid(t *testing.T) {
	if err := CheckShape(passedSchema()); err != nil {
		t.Fatalf("CheckShape: %v", err)
	}
}

func TestCheckShapeRejectsNonObjectRoot(t *testing.T) {
	doc := map[string]any{"type": "array", "required": []string{"passed"}}
	if err := CheckShape(doc); err == nil {
		t.Fatal("expected error for non-object root")
	}
}

func TestCheckShapeRejectsEmptyRequired(t *testing.T) {
	doc := map[string]any{"type": "object", "required": []any{}}
	if err := CheckShape(doc); err == nil {
		t.Fatal("expected error for empty required list")
	}
	doc = map[string]any{"type": "object"}
	if err := CheckShape(doc); err == nil {
		t.Fatal("expected error for missing required list")
	}
}

func TestValidateConformingPayload(t *testing.T) {
	s, err := Compile(passedSchema())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	got, err := s.Validate([]byte(`{"passed": false, "issues": ["missing docs"]}`))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got["passed"] != false {
		t.Errorf("passed = %v, want false", got["passed"])
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	s, err := Compile(passedSchema())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := s.Validate([]byte(`{"issues": []}`)); err == nil {
		t.Fatal("expected validation error for missing required property")
	}
}

func TestValidateRejectsWrongType(t *testing.T) {
	s, err := Compile(passedSchema())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := s.Validate([]byte(`{"passed": "yes"}`)); err == nil {
		t.Fatal("expected validation error for wrong property type")
	}
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	s, err := Compile(passedSchema())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := s.Validate([]byte(`not json {`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
