// Package retrieval queries the knowledge-base service for context chunks.
package retrieval

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chatforge/agentd/config"
)

// Chunk is a retrieved passage with its relevance score, ordered by the
// knowledge base from most to least similar.
type Chunk struct {
	Content    string  `json:"content"`
	DocumentID string  `json:"document_id"`
	Similarity float64 `json:"similarity"`
}

// Retriever fetches context for a query. Implementations must degrade to
// an empty result on any failure, never raise.
type Retriever interface {
	Query(ctx context.Context, query, projectID string, limit int) []Chunk
}

// Client is the HTTP retriever backed by the knowledge-base service.
type Client struct {
	baseURL      string
	defaultLimit int
	http         *http.Client
	logger       *log.Logger
}

// NewClient builds a retriever from configuration.
func NewClient(cfg config.RetrievalConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[RETRIEVAL] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = 3
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		defaultLimit: limit,
		http:         &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// Query posts the search to the knowledge base. Any failure — transport,
// status, decode — logs and returns nil so the conversation continues
// without context.
func (c *Client) Query(ctx context.Context, query, projectID string, limit int) []Chunk {
	if limit <= 0 {
		limit = c.defaultLimit
	}
	form := url.Values{
		"query":      {query},
		"project_id": {projectID},
		"limit":      {strconv.Itoa(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.Printf("build query request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("knowledge base query failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Printf("knowledge base query status %d", resp.StatusCode)
		return nil
	}
	var chunks []Chunk
	if err := json.NewDecoder(resp.Body).Decode(&chunks); err != nil {
		c.logger.Printf("knowledge base response decode: %v", err)
		return nil
	}
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks
}
