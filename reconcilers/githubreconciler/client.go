/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubreconciler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// Credentials selects how the GitHub clients authenticate. A GitHub App
// installation takes precedence over a token; with neither the clients are
// anonymous.
type Credentials struct {
	Token string

	AppID          int64
	InstallationID int64
	PrivateKey     []byte

	// APIURL and GraphQLURL point at a GitHub Enterprise Server. Empty or
	// public GitHub values select github.com.
	APIURL     string
	GraphQLURL string
}

const publicAPIURL = "https://api.github.com"

// Clients bundles the REST and GraphQL clients for one installation.
type Clients struct {
	REST    *github.Client
	GraphQL *githubv4.Client
	// Anonymous is true when no credentials were supplied.
	Anonymous bool
}

// NewClients builds GitHub clients from the provided credentials.
func NewClients(ctx context.Context, creds Credentials) (*Clients, error) {
	api := strings.TrimSuffix(creds.APIURL, "/")
	if api == "" {
		api = publicAPIURL
	}
	hc, anonymous, err := httpClient(ctx, creds, api)
	if err != nil {
		return nil, err
	}
	c := &Clients{
		REST:      github.NewClient(hc),
		GraphQL:   githubv4.NewClient(hc),
		Anonymous: anonymous,
	}
	if api == publicAPIURL {
		return c, nil
	}
	if c.REST, err = c.REST.WithEnterpriseURLs(api+"/", api+"/"); err != nil {
		return nil, fmt.Errorf("configuring enterprise URL %s: %w", api, err)
	}
	gql := creds.GraphQLURL
	if gql == "" {
		gql = strings.TrimSuffix(api, "/v3") + "/graphql"
	}
	c.GraphQL = githubv4.NewEnterpriseClient(gql, hc)
	return c, nil
}

// httpClient authenticates requests against api. Installation tokens are
// minted by the same server that serves the API.
func httpClient(ctx context.Context, creds Credentials, api string) (*http.Client, bool, error) {
	switch {
	case creds.AppID != 0 && len(creds.PrivateKey) > 0:
		tr, err := ghinstallation.New(http.DefaultTransport, creds.AppID, creds.InstallationID, creds.PrivateKey)
		if err != nil {
			return nil, false, fmt.Errorf("creating app installation transport: %w", err)
		}
		tr.BaseURL = api
		clog.InfoContextf(ctx, "Using GitHub App %d installation %d", creds.AppID, creds.InstallationID)
		return &http.Client{Transport: tr}, false, nil

	case creds.Token != "":
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token})), false, nil

	default:
		clog.InfoContextf(ctx, "No GitHub credentials provided, using anonymous client")
		return http.DefaultClient, true, nil
	}
}
