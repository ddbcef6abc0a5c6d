package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestApplyPatchCreates(t *testing.T) {
	doc, err := ApplyPatch(nil, "olive-oil", []byte(`{"name":"Olive Oil","price_cents":1290}`), fixedNow)
	if err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}

	if got := gjson.GetBytes(doc, "slug").String(); got != "olive-oil" {
		t.Errorf("slug = %q", got)
	}
	if got := gjson.GetBytes(doc, "created_at").String(); got != "2026-03-01T12:00:00Z" {
		t.Errorf("created_at = %q", got)
	}
	if gjson.GetBytes(doc, "updated_at").String() != gjson.GetBytes(doc, "created_at").String() {
		t.Error("new document should have updated_at == created_at")
	}
}

func TestApplyPatchMerges(t *testing.T) {
	current := []byte(`{"slug":"oil","name":"Oil","price_cents":100,"tags":["food"],"created_at":"2025-01-01T00:00:00Z"}`)
	patch := []byte(`{"price_cents":150,"tags":null,"slug":"ignored"}`)

	doc, err := ApplyPatch(current, "oil", patch, fixedNow)
	if err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}

	if got := gjson.GetBytes(doc, "price_cents").Int(); got != 150 {
		t.Errorf("price_cents = %d, want 150", got)
	}
	if gjson.GetBytes(doc, "tags").Exists() {
		t.Error("null in merge patch should remove tags")
	}
	if got := gjson.GetBytes(doc, "slug").String(); got != "oil" {
		t.Errorf("slug = %q, server slug must win", got)
	}
	if got := gjson.GetBytes(doc, "created_at").String(); got != "2025-01-01T00:00:00Z" {
		t.Errorf("created_at changed to %q", got)
	}
}

func TestApplyPatchRejects(t *testing.T) {
	tests := []struct {
		name  string
		patch string
		want  error
	}{
		{"not json", `{`, ErrInvalidPatch},
		{"array", `[{"op":"add"}]`, ErrInvalidPatch},
		{"missing name", `{"price_cents":1}`, ErrInvalidProduct},
		{"blank name", `{"name":"  "}`, ErrInvalidProduct},
		{"negative price", `{"name":"x","price_cents":-5}`, ErrInvalidProduct},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyPatch(nil, "x", []byte(tt.patch), fixedNow)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}
