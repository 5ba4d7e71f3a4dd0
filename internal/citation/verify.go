package citation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"litassist/internal/audit"
	"litassist/internal/config"
	"litassist/internal/fetch"
	"litassist/internal/logging"
)

// austliiCaseURL is the direct-URL template for medium-neutral citations.
const austliiCaseURL = "https://www.austlii.edu.au/cgi-bin/viewdoc/au/cases/%s/%s/%s/%s.html"

// Verifier runs the citation verification order: cache, hardcoded FOI,
// international classification, legislation classification, CSE searches,
// AustLII direct URL. Every outcome is cached before return.
type Verifier struct {
	settings *config.Settings
	cache    *Cache
	search   *searchClient
	client   *http.Client
	fetcher  *fetch.Fetcher
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithCache substitutes the process-wide cache, for isolated test runs.
func WithCache(c *Cache) VerifierOption {
	return func(v *Verifier) { v.cache = c }
}

// WithVerifierHTTPClient substitutes the HTTP client for searches and
// direct-URL checks.
func WithVerifierHTTPClient(c *http.Client) VerifierOption {
	return func(v *Verifier) {
		v.client = c
		v.search.client = c
	}
}

// WithFetcher substitutes the web fetcher used for context retrieval.
func WithFetcher(f *fetch.Fetcher) VerifierOption {
	return func(v *Verifier) { v.fetcher = f }
}

// NewVerifier builds a Verifier sharing the process-wide cache.
func NewVerifier(settings *config.Settings, opts ...VerifierOption) *Verifier {
	client := &http.Client{}
	v := &Verifier{
		settings: settings,
		cache:    defaultCache,
		search:   newSearchClient(settings, client),
		client:   client,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.fetcher == nil {
		v.fetcher = fetch.New(settings)
	}
	return v
}

// VerifySingle verifies one citation and returns (exists, url, reason).
// Idempotent: a second call for the same citation answers from the cache
// with no further network traffic.
func (v *Verifier) VerifySingle(ctx context.Context, cit string) (bool, string, string) {
	normalized := Normalize(cit)

	if r, ok := v.cache.Get(normalized); ok {
		logging.CitationDebug("Cache hit: %s -> exists=%v", normalized, r.Exists)
		return r.Exists, r.URL, r.Reason
	}

	exists, resultURL, reason := v.verifyUncached(ctx, normalized)
	v.cache.Put(normalized, Result{Exists: exists, URL: resultURL, Reason: reason})
	logging.Citation("Verified %s: exists=%v reason=%s", normalized, exists, reason)
	return exists, resultURL, reason
}

func (v *Verifier) verifyUncached(ctx context.Context, normalized string) (bool, string, string) {
	if path, ok := foiaLocalDocuments[normalized]; ok {
		return true, path, "Hardcoded FOI legislation - local reference document"
	}

	if reason := classifyInternational(normalized); reason != "" {
		return true, "", reason
	}

	if IsLegislation(normalized) {
		return true, "", "Legislation reference - verification skipped"
	}

	for _, e := range v.engines() {
		if link, ok := v.searchEngine(ctx, e, normalized); ok {
			return true, link, fmt.Sprintf("Verified via %s search", e.label)
		}
	}

	if parts, ok := parseMediumNeutral(normalized); ok {
		if jurisdiction, known := courtMapping[parts.Court]; known {
			directURL := fmt.Sprintf(austliiCaseURL, jurisdiction, parts.Court, parts.Year, parts.Number)
			if v.urlExists(ctx, directURL) {
				return true, directURL, "Verified via AustLII direct URL"
			}
		}
	}

	return false, "", "Citation not found in any Australian legal database"
}

// cseEngine pairs a configured engine with its query size.
type cseEngine struct {
	label string
	id    string
	num   int
}

func (v *Verifier) engines() []cseEngine {
	all := []cseEngine{
		{"Jade", v.settings.GoogleCSE.CSEID, 10},
		{"comprehensive legal database", v.settings.GoogleCSE.CSEIDComprehensive, 5},
		{"AustLII", v.settings.GoogleCSE.CSEIDAustLII, 10},
	}
	var configured []cseEngine
	for _, e := range all {
		if e.id != "" {
			configured = append(configured, e)
		}
	}
	return configured
}

// searchEngine queries one CSE and returns a confirming link if any item
// matches a format variation of the citation.
func (v *Verifier) searchEngine(ctx context.Context, e cseEngine, normalized string) (string, bool) {
	start := time.Now()
	items, err := v.search.search(ctx, e.id, normalized, e.num)
	elapsed := time.Since(start)

	matched := ""
	for _, item := range items {
		if matchesCitation(normalized, item) {
			matched = item.Link
			break
		}
	}

	payload := map[string]interface{}{
		"citation":         normalized,
		"engine":           e.label,
		"cse_id":           e.id,
		"query":            normalized,
		"result_count":     len(items),
		"matched":          matched != "",
		"response_time_ms": elapsed.Milliseconds(),
	}
	if matched != "" {
		payload["url"] = matched
	}
	if err != nil {
		payload["error"] = err.Error()
		logging.CitationWarn("CSE %s search failed for %s: %v", e.label, normalized, err)
	}
	if _, aerr := audit.SaveLog("google_cse_validation", payload); aerr != nil {
		logging.CitationWarn("Failed to record CSE validation: %v", aerr)
	}

	return matched, matched != ""
}

// urlExists issues a paced GET against an AustLII direct URL and reports
// whether the page exists. HEAD is forbidden for this path; the body is
// discarded after the status is read.
func (v *Verifier) urlExists(ctx context.Context, target string) bool {
	fetch.AustLIIWait()
	defer fetch.AustLIIDone()

	start := time.Now()
	payload := map[string]interface{}{
		"url":    target,
		"method": "check_url_exists",
	}

	rctx, cancel := context.WithTimeout(ctx, v.settings.FetchTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, target, nil)
	if err != nil {
		payload["error"] = err.Error()
		payload["exists"] = false
		v.recordURLCheck(payload, start)
		return false
	}
	req.Header.Set("User-Agent", fetch.BrowserUserAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		payload["error"] = err.Error()
		payload["exists"] = false
		v.recordURLCheck(payload, start)
		return false
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
	resp.Body.Close()

	exists := resp.StatusCode == http.StatusOK
	payload["http_status"] = resp.StatusCode
	payload["exists"] = exists
	v.recordURLCheck(payload, start)
	return exists
}

func (v *Verifier) recordURLCheck(payload map[string]interface{}, start time.Time) {
	payload["response_time_ms"] = time.Since(start).Milliseconds()
	if _, err := audit.SaveLog("austlii_direct_verification", payload); err != nil {
		logging.CitationWarn("Failed to record direct URL check: %v", err)
	}
}

// =============================================================================
// SESSION VERIFICATION
// =============================================================================

// VerifiedCitation is one confirmed citation in a session result.
type VerifiedCitation struct {
	Citation string
	URL      string
	Reason   string
}

// UnverifiedCitation is one citation that could not be confirmed.
type UnverifiedCitation struct {
	Citation string
	Reason   string
}

// SessionResult reports a full verification pass over one document.
type SessionResult struct {
	Found        []string
	Verified     []VerifiedCitation
	Unverified   []UnverifiedCitation
	FormatIssues []string
}

// VerifyText extracts every citation from the content and verifies each,
// recording a citation_verification_session audit report.
func (v *Verifier) VerifyText(ctx context.Context, content string) *SessionResult {
	found := Extract(content)
	res := &SessionResult{Found: found}

	if v.settings.General.EnableOfflineValidation {
		year := time.Now().Year()
		for _, c := range found {
			res.FormatIssues = append(res.FormatIssues, FormatIssues(c, year)...)
		}
		if len(res.FormatIssues) > 0 {
			issues := make([]interface{}, len(res.FormatIssues))
			for i, issue := range res.FormatIssues {
				issues[i] = issue
			}
			audit.SaveLog("citation_validation", map[string]interface{}{
				"method": "validate_citation_patterns",
				"issues": issues,
			})
		}
	}

	for _, c := range found {
		exists, resultURL, reason := v.VerifySingle(ctx, c)
		if exists {
			res.Verified = append(res.Verified, VerifiedCitation{Citation: c, URL: resultURL, Reason: reason})
		} else {
			res.Unverified = append(res.Unverified, UnverifiedCitation{Citation: c, Reason: reason})
		}
	}

	v.recordSession(res)
	return res
}

func (v *Verifier) recordSession(res *SessionResult) {
	foundList := make([]interface{}, len(res.Found))
	for i, c := range res.Found {
		foundList[i] = c
	}
	verifiedList := make([]interface{}, len(res.Verified))
	for i, vc := range res.Verified {
		verifiedList[i] = map[string]interface{}{
			"citation": vc.Citation,
			"url":      vc.URL,
			"reason":   vc.Reason,
		}
	}
	unverifiedList := make([]interface{}, len(res.Unverified))
	for i, uc := range res.Unverified {
		unverifiedList[i] = map[string]interface{}{
			"citation": uc.Citation,
			"reason":   uc.Reason,
		}
	}

	payload := map[string]interface{}{
		"citations_found": foundList,
		"verified":        verifiedList,
		"unverified":      unverifiedList,
		"settings": map[string]interface{}{
			"offline_validation": v.settings.General.EnableOfflineValidation,
			"cse_engines":        len(v.engines()),
		},
	}
	if _, err := audit.SaveLog("citation_verification_session", payload); err != nil {
		logging.CitationWarn("Failed to record verification session: %v", err)
	}
}
