// Package jwt validates HS256 bearer tokens signed with a shared secret.
package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/osvaldoandrade/comfyq/pkg/auth"
)

type validatorConfig struct {
	Secret    string `json:"secret"`
	Issuer    string `json:"issuer,omitempty"`
	Audience  string `json:"audience,omitempty"`
	ClockSkew string `json:"clockSkew,omitempty"`
}

type validator struct {
	secret []byte
	opts   []gojwt.ParserOption
}

func NewValidatorFromJSON(raw json.RawMessage) (auth.Validator, error) {
	var cfg validatorConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("jwt auth: invalid config: %w", err)
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("jwt auth: secret is required")
	}

	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, gojwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, gojwt.WithAudience(cfg.Audience))
	}
	if cfg.ClockSkew != "" {
		d, err := time.ParseDuration(cfg.ClockSkew)
		if err != nil {
			return nil, fmt.Errorf("jwt auth: invalid clockSkew: %w", err)
		}
		opts = append(opts, gojwt.WithLeeway(d))
	}
	return &validator{secret: []byte(cfg.Secret), opts: opts}, nil
}

func (v *validator) Validate(tokenString string) (*auth.Claims, error) {
	claims := gojwt.MapClaims{}
	_, err := gojwt.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(*gojwt.Token) (interface{}, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	out := &auth.Claims{Raw: map[string]interface{}(claims)}
	out.Subject, _ = claims.GetSubject()
	out.Issuer, _ = claims.GetIssuer()
	out.Audience, _ = claims.GetAudience()
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, _ := claims.GetIssuedAt(); iat != nil {
		out.IssuedAt = iat.Time
	}
	switch s := claims["scope"].(type) {
	case string:
		out.Scopes = strings.Fields(s)
	case []interface{}:
		for _, e := range s {
			if str, ok := e.(string); ok {
				out.Scopes = append(out.Scopes, str)
			}
		}
	}
	return out, nil
}

func init() {
	auth.RegisterProvider("jwt", NewValidatorFromJSON)
}
