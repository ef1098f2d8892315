package jwt

import (
	"encoding/json"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/osvaldoandrade/comfyq/pkg/auth"
)

func sign(t *testing.T, method gojwt.SigningMethod, key any, claims gojwt.MapClaims) string {
	t.Helper()
	s, err := gojwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newValidator(t *testing.T) auth.Validator {
	t.Helper()
	v, err := auth.NewValidator(auth.ProviderConfig{
		Type:   "jwt",
		Config: json.RawMessage(`{"secret":"top-secret","issuer":"comfyq-tests","audience":"comfyq"}`),
	})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestJWTValidatorAcceptsValidToken(t *testing.T) {
	v := newValidator(t)
	token := sign(t, gojwt.SigningMethodHS256, []byte("top-secret"), gojwt.MapClaims{
		"sub":   "agent-7",
		"iss":   "comfyq-tests",
		"aud":   "comfyq",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
		"scope": "comfyq:invoke comfyq:admin",
	})

	claims, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "agent-7" || claims.Issuer != "comfyq-tests" {
		t.Fatalf("claims = %+v", claims)
	}
	if !claims.HasScope(auth.ScopeAdmin) || len(claims.Scopes) != 2 {
		t.Fatalf("scopes = %v", claims.Scopes)
	}
	if claims.ExpiresAt.IsZero() {
		t.Fatal("expiry not mapped")
	}
}

func TestJWTValidatorRejects(t *testing.T) {
	v := newValidator(t)
	valid := gojwt.MapClaims{
		"sub": "agent-7",
		"iss": "comfyq-tests",
		"aud": "comfyq",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	with := func(k string, val any) gojwt.MapClaims {
		c := gojwt.MapClaims{}
		for key, cv := range valid {
			c[key] = cv
		}
		if val == nil {
			delete(c, k)
		} else {
			c[k] = val
		}
		return c
	}

	tests := map[string]string{
		"wrong secret": sign(t, gojwt.SigningMethodHS256, []byte("other"), valid),
		"wrong alg":    sign(t, gojwt.SigningMethodHS512, []byte("top-secret"), valid),
		"expired":      sign(t, gojwt.SigningMethodHS256, []byte("top-secret"), with("exp", time.Now().Add(-time.Hour).Unix())),
		"no expiry":    sign(t, gojwt.SigningMethodHS256, []byte("top-secret"), with("exp", nil)),
		"wrong issuer": sign(t, gojwt.SigningMethodHS256, []byte("top-secret"), with("iss", "elsewhere")),
		"wrong aud":    sign(t, gojwt.SigningMethodHS256, []byte("top-secret"), with("aud", "other")),
		"garbage":      "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Validate(token); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestJWTValidatorConfig(t *testing.T) {
	for _, raw := range []string{`{}`, `{"secret":" "}`, `{"secret":"s","clockSkew":"soon"}`, `[`} {
		if _, err := NewValidatorFromJSON(json.RawMessage(raw)); err == nil {
			t.Errorf("config %s should be rejected", raw)
		}
	}
}
