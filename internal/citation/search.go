package citation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"litassist/internal/config"
	"litassist/internal/logging"
)

// googleCSEBase is the Custom Search v1 endpoint. Variable so tests can
// point it at a local server.
var googleCSEBase = "https://www.googleapis.com/customsearch/v1"

// searchItem is one CSE result.
type searchItem struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// searchClient wraps the Custom Search API with the configured inter-call
// delay shared across all three engines.
type searchClient struct {
	settings *config.Settings
	client   *http.Client

	mu       sync.Mutex
	lastCall time.Time
}

func newSearchClient(settings *config.Settings, client *http.Client) *searchClient {
	return &searchClient{settings: settings, client: client}
}

// pace sleeps out the remainder of the configured CSE delay.
func (s *searchClient) pace() {
	s.mu.Lock()
	last := s.lastCall
	s.mu.Unlock()

	if !last.IsZero() {
		if remaining := s.settings.CSEDelay() - time.Since(last); remaining > 0 {
			logging.CitationDebug("CSE pacing: waiting %v", remaining)
			time.Sleep(remaining)
		}
	}

	s.mu.Lock()
	s.lastCall = time.Now()
	s.mu.Unlock()
}

// search queries one engine and returns its items. A missing items list is
// not an error; it means no results.
func (s *searchClient) search(ctx context.Context, cseID, query string, num int) ([]searchItem, error) {
	s.pace()

	ctx, cancel := context.WithTimeout(ctx, s.settings.CSETimeout())
	defer cancel()

	params := url.Values{}
	params.Set("key", s.settings.GoogleCSE.APIKey)
	params.Set("cx", cseID)
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleCSEBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build CSE request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CSE request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read CSE response: %w", err)
	}

	var parsed searchResponse
	if jerr := json.Unmarshal(body, &parsed); jerr != nil {
		return nil, fmt.Errorf("parse CSE response (HTTP %d): %w", resp.StatusCode, jerr)
	}
	if parsed.Error != nil {
		return nil, cseError(resp.StatusCode, parsed)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CSE returned HTTP %d", resp.StatusCode)
	}
	return parsed.Items, nil
}

// cseError turns a structured API error into an actionable message.
func cseError(status int, parsed searchResponse) error {
	msg := parsed.Error.Message
	reason := ""
	if len(parsed.Error.Errors) > 0 {
		reason = parsed.Error.Errors[0].Reason
	}
	lower := strings.ToLower(msg + " " + reason)

	switch {
	case strings.Contains(lower, "keyinvalid") || strings.Contains(lower, "api key not valid"):
		return fmt.Errorf("CSE API key rejected: %s. Please verify your Google API key at https://console.cloud.google.com/apis/credentials", msg)
	case strings.Contains(lower, "billing"):
		return fmt.Errorf("CSE billing problem: %s. Enable billing at https://console.cloud.google.com/billing", msg)
	case strings.Contains(lower, "accessnotconfigured") || strings.Contains(lower, "disabled"):
		return fmt.Errorf("Custom Search API not enabled: %s. Enable it at https://console.cloud.google.com/apis/library/customsearch.googleapis.com", msg)
	case status == http.StatusTooManyRequests || strings.Contains(lower, "quota") || strings.Contains(lower, "ratelimitexceeded"):
		return fmt.Errorf("CSE quota exhausted: %s. Review limits at https://console.cloud.google.com/apis/api/customsearch.googleapis.com/quotas", msg)
	default:
		return fmt.Errorf("CSE error %d: %s", parsed.Error.Code, msg)
	}
}

// matchesCitation reports whether a result plausibly confirms the citation:
// its lowercased title, snippet or link contains one of the four format
// variations, or, for traditional citations, year + series + page are all
// present.
func matchesCitation(normalized string, item searchItem) bool {
	haystack := strings.ToLower(item.Title + " " + item.Snippet + " " + item.Link)

	for _, v := range formatVariations(normalized) {
		if strings.Contains(haystack, v) {
			return true
		}
	}

	if m := traditionalPattern.FindStringSubmatch(normalized); m != nil {
		year, series, page := m[1], strings.ToLower(m[3]), m[4]
		if strings.Contains(haystack, year) &&
			strings.Contains(haystack, series) &&
			strings.Contains(haystack, page) {
			return true
		}
	}
	return false
}

// formatVariations builds the four lowercased spellings a result may use.
func formatVariations(normalized string) []string {
	lower := strings.ToLower(normalized)
	noBrackets := strings.NewReplacer("[", "", "]", "").Replace(lower)
	noSpaces := strings.ReplaceAll(lower, " ", "")
	noBracketsNoSpaces := strings.ReplaceAll(noBrackets, " ", "")
	return []string{lower, noBrackets, noSpaces, noBracketsNoSpaces}
}
