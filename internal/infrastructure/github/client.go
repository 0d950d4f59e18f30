// Package github talks to the GitHub REST API on behalf of an app installation.
package github

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/pkg/contextx"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

//nolint:gochecknoglobals
var (
	logger = contextx.LoggerFromContextOrDefault
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
)

// TokenSource returns a bearer credential for an installation.
type TokenSource interface {
	Token(ctx context.Context, installationId int64) (string, error)
}

type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	tokens     TokenSource
}

func NewClient(baseURL, userAgent string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

// do performs an installation-authenticated request. A response whose status is not in want
// fails with UpstreamError; transport failures are returned as internal errors so they can
// be retried.
func (c *Client) do(
	ctx context.Context,
	installationId int64,
	method, path string,
	in, out any,
	want ...int,
) (int, error) {
	token, err := c.tokens.Token(ctx, installationId)
	if err != nil {
		return 0, fmt.Errorf("tokens.Token: %w", err)
	}
	return c.send(ctx, "token "+token, method, path, in, out, want...)
}

func (c *Client) send(
	ctx context.Context,
	authorization, method, path string,
	in, out any,
	want ...int,
) (int, error) {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return 0, domain.WrapError(err, errcodes.InternalServerError, "failed to encode github request")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, domain.WrapError(err, errcodes.InternalServerError, "failed to build github request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", authorization)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, domain.WrapError(err, errcodes.InternalServerError, fmt.Sprintf("github %s %s", method, path))
	}
	defer resp.Body.Close()

	if len(want) == 0 {
		want = []int{http.StatusOK}
	}
	if !slices.Contains(want, resp.StatusCode) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, domain.NewError(errcodes.UpstreamError,
			fmt.Sprintf("github %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, domain.WrapError(err, errcodes.UpstreamError,
				fmt.Sprintf("github %s %s: undecodable response", method, path))
		}
	}
	return resp.StatusCode, nil
}
