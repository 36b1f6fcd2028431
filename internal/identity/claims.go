package identity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/screener-go/internal/tokenfile"
)

// idTokenClaims are the id_token claims used to describe an account. The
// token arrives directly from the token endpoint over TLS, so its signature
// is not checked.
type idTokenClaims struct {
	Subject           string `json:"sub"`
	ObjectID          string `json:"oid"`
	TenantID          string `json:"tid"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Name              string `json:"name"`
}

// account maps claims to account metadata. The home account ID follows the
// "<oid>.<tid>" convention of the Microsoft identity platform.
func (c idTokenClaims) account() tokenfile.Account {
	home := c.Subject
	if c.ObjectID != "" && c.TenantID != "" {
		home = c.ObjectID + "." + c.TenantID
	}

	username := c.PreferredUsername
	if username == "" {
		username = c.Email
	}

	return tokenfile.Account{HomeAccountID: home, Username: username, Name: c.Name}
}

func claimsFromToken(tok *oauth2.Token) (idTokenClaims, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return idTokenClaims{}, errors.New("identity: token response has no id_token (is the openid scope configured?)")
	}

	return parseIDToken(raw)
}

// parseIDToken decodes the payload segment of a compact JWT.
func parseIDToken(raw string) (idTokenClaims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return idTokenClaims{}, fmt.Errorf("identity: malformed id_token: %d segments", len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return idTokenClaims{}, fmt.Errorf("identity: decoding id_token payload: %w", err)
	}

	var c idTokenClaims
	if err := json.Unmarshal(payload, &c); err != nil {
		return idTokenClaims{}, fmt.Errorf("identity: parsing id_token claims: %w", err)
	}

	return c, nil
}
