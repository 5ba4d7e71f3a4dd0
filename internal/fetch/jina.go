package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"litassist/internal/logging"
)

// jinaBase is the Jina Reader proxy; it renders JavaScript-heavy pages and
// returns clean markdown. Variable so tests can point it at a local server.
var jinaBase = "https://r.jina.ai/"

// fetchJina retrieves a URL through the Jina Reader proxy.
func (f *Fetcher) fetchJina(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.settings.JinaTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jinaBase+rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build Jina request: %w", err)
	}
	req.Header.Set("x-respond-with", "markdown")
	if key := f.settings.Jina.APIKey; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Jina Reader request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("Jina Reader returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read Jina response: %w", err)
	}

	content := strings.TrimSpace(string(body))
	if content == "" {
		return "", fmt.Errorf("Jina Reader returned empty content")
	}
	logging.FetchDebug("Jina Reader fetched %d chars for %s", len(content), rawURL)
	return content, nil
}
