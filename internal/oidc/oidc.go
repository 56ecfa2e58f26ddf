// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package oidc implements trusted publishing: it exchanges a GitHub Actions
// OIDC token for a short-lived package index upload token.
//
// See https://docs.pypi.org/trusted-publishers/using-a-publisher/.
package oidc

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.astrophena.name/autopub-action/internal/apperrors"

	"go.astrophena.name/base/request"
)

// DefaultIndex is the package index used when no repository is configured.
const DefaultIndex = "https://pypi.org"

// Client requests OIDC tokens from the runner.
type Client struct {
	// RequestURL is the value of ACTIONS_ID_TOKEN_REQUEST_URL.
	RequestURL string
	// RequestToken is the value of ACTIONS_ID_TOKEN_REQUEST_TOKEN.
	RequestToken string
	// HTTPClient is a HTTP client for making requests. If nil,
	// request.DefaultClient is used.
	HTTPClient *http.Client
}

// FromEnv returns a Client configured from the runner environment, or nil if
// the job can't request OIDC tokens (it lacks the "id-token: write"
// permission or doesn't run on GitHub Actions).
func FromEnv(getenv func(string) string) *Client {
	c := &Client{
		RequestURL:   getenv("ACTIONS_ID_TOKEN_REQUEST_URL"),
		RequestToken: getenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN"),
	}
	if c.RequestURL == "" || c.RequestToken == "" {
		return nil
	}
	return c
}

type tokenResponse struct {
	Value string `json:"value"`
}

// IDToken requests an OIDC token for audience.
func (c *Client) IDToken(ctx context.Context, audience string) (string, error) {
	u, err := url.Parse(c.RequestURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("audience", audience)
	u.RawQuery = q.Encode()

	resp, err := request.Make[tokenResponse](ctx, request.Params{
		Method: http.MethodGet,
		URL:    u.String(),
		Headers: map[string]string{
			"Authorization": "Bearer " + c.RequestToken,
			"User-Agent":    "actions/oidc-client",
		},
		HTTPClient: c.HTTPClient,
	})
	if err != nil {
		return "", err
	}
	if resp.Value == "" {
		return "", errors.New("runner returned an empty OIDC token")
	}
	return resp.Value, nil
}

// IndexURL returns the base URL of the package index that accepts uploads at
// repository. An empty repository means PyPI.
func IndexURL(repository string) (string, error) {
	if repository == "" {
		return DefaultIndex, nil
	}
	u, err := url.Parse(repository)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("publish-repository must be an absolute URL")
	}
	host := u.Host
	// PyPI accepts uploads on a separate host.
	if strings.HasPrefix(host, "upload.") && strings.HasSuffix(host, "pypi.org") {
		host = strings.TrimPrefix(host, "upload.")
	}
	return u.Scheme + "://" + host, nil
}

type audienceResponse struct {
	Audience string `json:"audience"`
}

type mintRequest struct {
	Token string `json:"token"`
}

type mintResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// MintToken exchanges an OIDC token for an upload token of the index serving
// repository. Failures are reported as missing credentials.
func (c *Client) MintToken(ctx context.Context, repository string) (string, error) {
	index, err := IndexURL(repository)
	if err != nil {
		return "", apperrors.MissingCredential("trusted publishing: %v", err)
	}

	aud, err := request.Make[audienceResponse](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        index + "/_/oidc/audience",
		HTTPClient: c.HTTPClient,
	})
	if err != nil {
		return "", apperrors.MissingCredential("trusted publishing: fetching audience from %s: %v", index, err)
	}

	idToken, err := c.IDToken(ctx, aud.Audience)
	if err != nil {
		return "", apperrors.MissingCredential("trusted publishing: requesting OIDC token: %v", err)
	}

	minted, err := request.Make[mintResponse](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        index + "/_/oidc/mint-token",
		Body:       mintRequest{Token: idToken},
		HTTPClient: c.HTTPClient,
	})
	if err != nil {
		return "", apperrors.MissingCredential("trusted publishing: minting token at %s: %v", index, err)
	}
	if !minted.Success || minted.Token == "" {
		return "", apperrors.MissingCredential("trusted publishing: %s refused to mint a token: %s", index, minted.Message)
	}
	return minted.Token, nil
}
