package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"magnetcast/internal/domain"
)

// SearchRequest identifies the media to look up with the external
// source aggregator. Season and episode are only set for series.
type SearchRequest struct {
	MediaType     string `json:"mediaType"`
	MediaID       string `json:"mediaId"`
	SeasonNumber  int    `json:"seasonNumber,omitempty"`
	EpisodeNumber int    `json:"episodeNumber,omitempty"`
}

func (r SearchRequest) validate() error {
	switch r.MediaType {
	case "movie", "series":
	default:
		return fmt.Errorf("unsupported media type %q", r.MediaType)
	}
	if strings.TrimSpace(r.MediaID) == "" {
		return errors.New("mediaId is required")
	}
	return nil
}

type searchResponse struct {
	Sources []domain.SourceCandidate `json:"sources"`
}

const defaultTimeout = 15 * time.Second

// Client talks to the source aggregator over HTTP. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

// Search queries the aggregator and returns candidates that carry a
// valid magnet link, ordered by seed count and capped at ten.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]domain.SourceCandidate, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}
	if c.baseURL == "" {
		return nil, errors.New("sources service not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sources request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sources service returned status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode sources response: %w", err)
	}

	results := domain.FilterSourceCandidates(decoded.Sources)
	c.logger.Debug("sources search completed",
		slog.String("mediaType", req.MediaType),
		slog.String("mediaId", req.MediaID),
		slog.Int("raw", len(decoded.Sources)),
		slog.Int("usable", len(results)),
	)
	return results, nil
}
