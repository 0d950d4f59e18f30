// Package resolver calls the external AI resolution engine.
package resolver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/pkg/contextx"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

//nolint:gochecknoglobals
var (
	logger = contextx.LoggerFromContextOrDefault
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
)

const resolvePath = "/resolve"

type resolveRequest struct {
	ConflictChunk string `json:"conflict_chunk"`
	FilePath      string `json:"file_path"`
}

type resolveResponse struct {
	ResolvedCode    *string  `json:"resolved_code"`
	ConfidenceScore *float64 `json:"confidence_score"`
}

type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewClient(url, apiKey string, timeout time.Duration) *Client {
	return &Client{
		url:        strings.TrimSuffix(url, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Resolve sends one conflict chunk to the engine. Any failure, including a malformed
// answer, is a ResolutionFailure.
func (c *Client) Resolve(ctx context.Context, filePath, chunk string) (entity.ChunkResolution, error) {
	body, err := json.Marshal(resolveRequest{ConflictChunk: chunk, FilePath: filePath})
	if err != nil {
		return entity.ChunkResolution{}, domain.WrapError(err, errcodes.InternalServerError, "failed to encode resolve request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+resolvePath, bytes.NewReader(body))
	if err != nil {
		return entity.ChunkResolution{}, domain.WrapError(err, errcodes.InternalServerError, "failed to build resolve request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entity.ChunkResolution{}, domain.WrapError(err, errcodes.ResolutionFailure, "resolution engine unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return entity.ChunkResolution{}, domain.WrapError(err, errcodes.ResolutionFailure, "failed to read resolution engine response")
	}

	logger(ctx).Debug("resolution engine answered",
		slog.String("file_path", filePath),
		slog.Int("status", resp.StatusCode),
	)

	if resp.StatusCode != http.StatusOK {
		return entity.ChunkResolution{}, domain.NewError(errcodes.ResolutionFailure,
			fmt.Sprintf("resolution engine returned %d: %s", resp.StatusCode, truncate(raw, 200)))
	}

	var out resolveResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return entity.ChunkResolution{}, domain.WrapError(err, errcodes.ResolutionFailure, "malformed resolution engine response")
	}
	if out.ResolvedCode == nil || out.ConfidenceScore == nil {
		return entity.ChunkResolution{}, domain.NewError(errcodes.ResolutionFailure,
			"resolution engine response lacks resolved_code or confidence_score")
	}
	score := *out.ConfidenceScore
	if math.IsNaN(score) || score < 0 || score > 1 {
		return entity.ChunkResolution{}, domain.NewError(errcodes.ResolutionFailure,
			fmt.Sprintf("resolution engine confidence %v outside [0,1]", score))
	}

	return entity.ChunkResolution{
		ResolvedCode:    *out.ResolvedCode,
		ConfidenceScore: score,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
