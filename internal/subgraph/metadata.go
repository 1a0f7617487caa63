package subgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"launchpad-terminal/internal/domain"
)

// ErrMetadataFetch marks a failed token metadata fetch.
var ErrMetadataFetch = errors.New("metadata fetch failed")

// Metadata is the token metadata JSON document. Missing fields are empty.
type Metadata struct {
	Image       string `json:"image"`
	Description string `json:"description"`
	Twitter     string `json:"twitter"`
	Website     string `json:"website"`
	Telegram    string `json:"telegram"`
	Discord     string `json:"discord"`
}

// ResolveURI maps a metadata URI to a fetchable URL. ipfs:// URIs and bare
// CIDs go through the gateway.
func ResolveURI(uri, gateway string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return ""
	}
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	switch {
	case strings.HasPrefix(uri, "ipfs://"):
		return gateway + strings.TrimPrefix(strings.TrimPrefix(uri, "ipfs://"), "ipfs/")
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return uri
	default:
		return gateway + uri
	}
}

// FetchMetadata loads the metadata document behind uri. Errors wrap
// ErrMetadataFetch.
func (c *Client) FetchMetadata(ctx context.Context, uri string) (Metadata, error) {
	url := ResolveURI(uri, c.gateway)
	if url == "" {
		return Metadata{}, fmt.Errorf("%w: empty uri", ErrMetadataFetch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMetadataFetch, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMetadataFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Metadata{}, fmt.Errorf("%w: status %d", ErrMetadataFetch, resp.StatusCode)
	}

	var md Metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&md); err != nil {
		return Metadata{}, fmt.Errorf("%w: decode: %v", ErrMetadataFetch, err)
	}
	return md, nil
}

// Apply copies metadata onto a token. Socials already on the token win.
func (md Metadata) Apply(t *domain.Token) {
	if md.Image != "" {
		t.Image = md.Image
	}
	if t.Description == "" {
		t.Description = md.Description
	}
	t.Socials = mergeSocials(t.Socials, md.socials())
}

// socials keeps the document's own labels; only the scheme is normalized.
func (md Metadata) socials() domain.Socials {
	var out domain.Socials
	if v := strings.TrimSpace(md.Website); v != "" {
		out.Website = withScheme(v)
	}
	if v := strings.TrimSpace(md.Twitter); v != "" {
		out.Twitter = withScheme(v)
	}
	if v := strings.TrimSpace(md.Telegram); v != "" {
		out.Telegram = withScheme(v)
	}
	if v := strings.TrimSpace(md.Discord); v != "" {
		out.Discord = withScheme(v)
	}
	return out
}

// enrich fetches metadata for every token through the bounded pool.
// Failures leave the token as is.
func (c *Client) enrich(ctx context.Context, tokens []domain.Token) {
	var wg sync.WaitGroup
	for i := range tokens {
		if tokens[i].MetadataCID == "" {
			continue
		}
		t := &tokens[i]
		wg.Add(1)
		err := c.pool.Submit(func() {
			defer wg.Done()
			md, err := c.FetchMetadata(ctx, t.MetadataCID)
			c.metrics.RecordMetadataFetch(err == nil)
			if err != nil {
				c.logger.Debug("token metadata unavailable",
					zap.String("market", t.ID), zap.String("uri", t.MetadataCID), zap.Error(err))
				return
			}
			md.Apply(t)
		})
		if err != nil {
			wg.Done()
			c.logger.Warn("metadata pool rejected task", zap.String("market", t.ID), zap.Error(err))
		}
	}
	wg.Wait()
}
