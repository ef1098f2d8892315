package static

import (
	"encoding/json"
	"testing"

	"github.com/osvaldoandrade/comfyq/pkg/auth"
)

func TestStaticValidator(t *testing.T) {
	raw := json.RawMessage(`{"token":"t-1","subject":"s-1","scopes":["comfyq:invoke"],"raw":{"role":"OPERATOR"}}`)
	v, err := NewValidatorFromJSON(raw)
	if err != nil {
		t.Fatalf("NewValidatorFromJSON: %v", err)
	}

	claims, err := v.Validate(" t-1 ")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "s-1" {
		t.Fatalf("expected subject s-1, got %q", claims.Subject)
	}
	if !claims.HasScope(auth.ScopeInvoke) || claims.HasScope(auth.ScopeAdmin) {
		t.Fatalf("unexpected scopes %v", claims.Scopes)
	}
	if claims.Raw["role"] != "OPERATOR" {
		t.Fatalf("raw claims = %v", claims.Raw)
	}

	if _, err := v.Validate("wrong"); err == nil {
		t.Fatalf("expected validation error for wrong token")
	}
}

func TestStaticValidator_StringConfig(t *testing.T) {
	v, err := auth.NewValidator(auth.ProviderConfig{Type: "static", Config: json.RawMessage(`"t-2"`)})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	claims, err := v.Validate("t-2")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "static" {
		t.Fatalf("default subject = %q", claims.Subject)
	}
}

func TestStaticValidator_Invalid(t *testing.T) {
	for _, raw := range []string{``, `{}`, `{"token": "  "}`, `{"token": 5}`} {
		if _, err := NewValidatorFromJSON(json.RawMessage(raw)); err == nil {
			t.Errorf("config %q should be rejected", raw)
		}
	}
}
