package azuread

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/clientcredentials"
)

// defaultTokenLifetime is used when a token's exp claim cannot be
// decoded, matching the reference's 3000-second fallback.
const defaultTokenLifetime = 3000 * time.Second

// clientCredentialsFlow performs the service-account flow: a direct
// POST to the tenant's v2.0 token endpoint with grant_type set to
// client_credentials.
func (c *Credential) clientCredentialsFlow(ctx context.Context, scope string) (azcore.AccessToken, error) {
	tokenURL := c.tokenURLOverride
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.cfg.Tenant)
	}

	conf := &clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.Password,
		TokenURL:     tokenURL,
		Scopes:       []string{scope},
	}
	conf.EndpointParams = map[string][]string{"tenant": {c.cfg.Tenant}}

	token, err := conf.Token(ctx)
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("%w: client credentials request failed: %v", ErrAuth, err)
	}

	raw := token.AccessToken
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		raw = idToken
	}
	if raw == "" {
		return azcore.AccessToken{}, fmt.Errorf("%w: token response carried neither id_token nor access_token", ErrAuth)
	}

	return azcore.AccessToken{
		Token:     raw,
		ExpiresOn: expiresOnFromJWT(raw),
	}, nil
}

// expiresOnFromJWT decodes a JWT's exp claim without verifying its
// signature, since the token was already obtained over an
// authenticated channel; decode failure falls back to a conservative
// default lifetime.
func expiresOnFromJWT(raw string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Now().Add(defaultTokenLifetime)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Now().Add(defaultTokenLifetime)
	}
	return exp.Time
}
