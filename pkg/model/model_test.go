package model_test

import (
	"testing"

	"github.com/invgraph/graphcore/pkg/errs"
	"github.com/invgraph/graphcore/pkg/model"
)

func personModel() *model.Model {
	return model.New(model.ComplexKind{
		Fqn: "Person",
		Properties: []model.Property{
			{Name: "name", Type: model.Primitive("string"), Required: true},
			{Name: "born", Type: model.Primitive("date")},
			{Name: "tags", Type: model.ArrayOf(model.Primitive("string"))},
		},
	})
}

func TestValidateRequiredProperty(t *testing.T) {
	m := personModel()
	err := m.Validate("Person", map[string]any{})
	if errs.KindOf(err) != errs.KindModelViolation {
		t.Fatalf("expected ModelViolation, got %v", err)
	}
}

func TestValidateUnknownKind(t *testing.T) {
	m := personModel()
	err := m.Validate("Alien", map[string]any{"name": "Max"})
	if errs.KindOf(err) != errs.KindModelViolation {
		t.Fatalf("expected ModelViolation, got %v", err)
	}
}

func TestValidateCoercesDate(t *testing.T) {
	m := personModel()
	payload := map[string]any{"name": "Max", "born": "2021-03-29"}
	if err := m.Validate("Person", payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["born"] != "2021-03-29" {
		t.Errorf("expected canonical date, got %v", payload["born"])
	}
}

func TestValidateArrayProperty(t *testing.T) {
	m := personModel()
	payload := map[string]any{"name": "Max", "tags": []any{"a", "b"}}
	if err := m.Validate("Person", payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
