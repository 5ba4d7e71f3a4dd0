// Package fetch retrieves legal source documents from the open web and local
// disk. Routing is domain-aware: AustLII is fetched directly under strict
// pacing, jade.io is blocked except for its document-download host,
// government and legislation sites get frame-following and gibberish checks,
// and everything else goes through the Jina Reader proxy. PDF bodies are
// extracted with page caps and contamination checks.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"litassist/internal/audit"
	"litassist/internal/config"
	"litassist/internal/logging"
)

// maxBodyBytes caps response reads; large judgment PDFs fit well within it.
const maxBodyBytes = 10 * 1024 * 1024

// BrowserUserAgent is sent on direct fetches. AustLII and several government
// sites reject the default Go client string. Shared with citation
// verification, which issues its own paced AustLII requests.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// frameRef finds the content frame on federal legislation pages, which embed
// the actual instrument text in a document_1.html subdocument.
var frameRef = regexp.MustCompile(`(?i)(?:href|src)=["']([^"']*document_1\.html[^"']*)["']`)

// Fetcher routes document retrieval by domain.
type Fetcher struct {
	settings *config.Settings
	client   *http.Client
	readFile func(string) ([]byte, error)
	gate     *domainGate
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient substitutes the HTTP client, used by tests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithFileReader substitutes the local-file reader, used by tests.
func WithFileReader(fn func(string) ([]byte, error)) Option {
	return func(f *Fetcher) { f.readFile = fn }
}

// New builds a Fetcher from settings.
func New(settings *config.Settings, opts ...Option) *Fetcher {
	f := &Fetcher{
		settings: settings,
		client:   &http.Client{},
		readFile: os.ReadFile,
		gate:     newDomainGate(settings.DomainDelay()),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves the content of a URL or local path as plain text. Failures
// are recorded in the audit trail and returned as errors; callers treat any
// error as "source unavailable" rather than aborting their pipeline.
func (f *Fetcher) Fetch(ctx context.Context, target string) (string, error) {
	start := time.Now()
	content, method, err := f.route(ctx, target)
	elapsed := time.Since(start)

	payload := map[string]interface{}{
		"url":              target,
		"method":           method,
		"success":          err == nil,
		"response_time_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		payload["error"] = err.Error()
		logging.FetchError("Fetch failed for %s via %s: %v", target, method, err)
	} else {
		payload["content"] = content
		payload["content_size"] = len(content)
		logging.Fetch("Fetched %s via %s: %d chars in %v", target, method, len(content), elapsed)
	}
	if _, aerr := audit.SaveLog("fetch_attempt", payload); aerr != nil {
		logging.FetchWarn("Failed to record fetch attempt: %v", aerr)
	}

	if err != nil {
		return "", err
	}
	return content, nil
}

// route dispatches by scheme and host and returns the extracted content plus
// the retrieval method used, for the audit trail.
func (f *Fetcher) route(ctx context.Context, target string) (string, string, error) {
	u, perr := url.Parse(target)
	if perr != nil || u.Scheme == "" {
		content, err := f.fetchLocal(target)
		return content, "local_file", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "unsupported", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case host == "jade.io" || strings.HasSuffix(host, ".jade.io"):
		return f.fetchJade(ctx, u, target)
	case strings.Contains(host, "austlii.edu.au"):
		return f.fetchAustLII(ctx, target)
	case strings.HasSuffix(host, ".gov.au") || strings.HasPrefix(host, "legislation."):
		return f.fetchGovernment(ctx, u, target)
	default:
		return f.fetchGeneric(ctx, u, target)
	}
}

// fetchLocal reads a document from disk.
func (f *Fetcher) fetchLocal(path string) (string, error) {
	data, err := f.readFile(path)
	if err != nil {
		return "", fmt.Errorf("read local file: %w", err)
	}
	if isPDF(data) {
		return extractPDF(data, path)
	}
	return string(data), nil
}

// fetchJade handles jade.io, which requires authentication and blocks
// scrapers on every host except the document-download endpoint.
func (f *Fetcher) fetchJade(ctx context.Context, u *url.URL, target string) (string, string, error) {
	host := strings.ToLower(u.Hostname())
	if host != "ndfv.jade.io" {
		return "", "jade_blocked", fmt.Errorf("jade.io requires authentication and blocks automated access; use the AustLII version instead")
	}
	dl := target
	if !strings.Contains(u.Path, "/download") {
		dl = strings.TrimRight(target, "/") + "/download"
	}
	content, err := f.fetchJina(ctx, dl)
	return content, "jade_download_jina", err
}

// fetchAustLII does a paced direct GET with browser headers, falling back to
// the Jina Reader when the direct fetch fails.
func (f *Fetcher) fetchAustLII(ctx context.Context, target string) (string, string, error) {
	content, err := f.austliiDirect(ctx, target)
	if err == nil {
		return content, "austlii_direct", nil
	}
	logging.FetchWarn("AustLII direct fetch failed for %s, trying Jina Reader: %v", target, err)

	content, jerr := f.fetchJina(ctx, target)
	if jerr != nil {
		return "", "austlii_jina_fallback", fmt.Errorf("direct fetch failed (%v) and Jina fallback failed: %w", err, jerr)
	}
	return content, "austlii_jina_fallback", nil
}

func (f *Fetcher) austliiDirect(ctx context.Context, target string) (string, error) {
	AustLIIWait()
	defer AustLIIDone()

	status, body, err := f.get(ctx, target, f.settings.FetchTimeout())
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", status)
	}
	if isPDF(body) {
		return extractPDF(body, target)
	}

	text, err := htmlToText(string(body))
	if err != nil {
		return "", fmt.Errorf("HTML extraction: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text extracted")
	}
	return text, nil
}

// fetchGovernment handles .gov.au and legislation hosts: direct GET, frame
// following for federal legislation, and a Jina fallback when the result is
// an error page or scraped gibberish.
func (f *Fetcher) fetchGovernment(ctx context.Context, u *url.URL, target string) (string, string, error) {
	content, method, err := f.governmentDirect(ctx, u, target)
	if err == nil && !isGibberish(content) {
		return content, method, nil
	}
	if err != nil {
		logging.FetchWarn("Government direct fetch failed for %s, trying Jina Reader: %v", target, err)
	} else {
		logging.FetchWarn("Government page %s extracted to gibberish (%d chars), trying Jina Reader", target, len(content))
	}

	jcontent, jerr := f.fetchJina(ctx, target)
	if jerr != nil {
		if err == nil {
			err = fmt.Errorf("extracted content failed validation")
		}
		return "", "gov_jina_fallback", fmt.Errorf("direct fetch failed (%v) and Jina fallback failed: %w", err, jerr)
	}
	return jcontent, "gov_jina_fallback", nil
}

func (f *Fetcher) governmentDirect(ctx context.Context, u *url.URL, target string) (string, string, error) {
	f.gate.wait(u.Hostname())

	status, body, err := f.get(ctx, target, f.settings.FetchTimeout())
	if err != nil {
		return "", "gov_direct", err
	}
	if status != http.StatusOK {
		return "", "gov_direct", fmt.Errorf("HTTP %d", status)
	}
	if isPDF(body) {
		content, perr := extractPDF(body, target)
		return content, "gov_pdf", perr
	}

	raw := string(body)
	method := "gov_direct"
	if m := frameRef.FindStringSubmatch(raw); m != nil {
		if ref, rerr := url.Parse(m[1]); rerr == nil {
			frameURL := u.ResolveReference(ref).String()
			logging.Fetch("Following legislation content frame %s", frameURL)
			fstatus, fbody, ferr := f.get(ctx, frameURL, f.settings.FetchTimeout())
			if ferr == nil && fstatus == http.StatusOK {
				raw = string(fbody)
				method = "legislation_frame"
			} else {
				logging.FetchWarn("Content frame fetch failed (status %d, err %v), using outer page", fstatus, ferr)
			}
		}
	}

	text, terr := htmlToText(raw)
	if terr != nil {
		return "", method, fmt.Errorf("HTML extraction: %w", terr)
	}
	return text, method, nil
}

// fetchGeneric probes content type with HEAD: PDFs are downloaded and
// extracted directly, everything else goes through the Jina Reader.
func (f *Fetcher) fetchGeneric(ctx context.Context, u *url.URL, target string) (string, string, error) {
	f.gate.wait(u.Hostname())

	ctype, herr := f.head(ctx, target)
	looksPDF := strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
	if herr == nil && strings.Contains(strings.ToLower(ctype), "application/pdf") {
		looksPDF = true
	}

	if looksPDF {
		status, body, err := f.get(ctx, target, f.settings.PDFTimeout())
		if err != nil {
			return "", "generic_pdf", err
		}
		if status != http.StatusOK {
			return "", "generic_pdf", fmt.Errorf("HTTP %d", status)
		}
		content, perr := extractPDF(body, target)
		return content, "generic_pdf", perr
	}

	content, err := f.fetchJina(ctx, target)
	return content, "generic_jina", err
}

// isGibberish flags extractions too short or too flat to be a real document:
// under 100 characters, or fewer than 5 line breaks.
func isGibberish(content string) bool {
	trimmed := strings.TrimSpace(content)
	return len(trimmed) < 100 || strings.Count(trimmed, "\n") < 5
}

// get performs a browser-headed GET with a per-request timeout.
func (f *Fetcher) get(ctx context.Context, target string, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	setBrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// head performs a HEAD probe and returns the Content-Type.
func (f *Fetcher) head(ctx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.settings.FetchTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return "", err
	}
	setBrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.Header.Get("Content-Type"), nil
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,*/*")
	req.Header.Set("Accept-Language", "en-AU,en;q=0.9")
}
