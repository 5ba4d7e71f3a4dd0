package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"litassist/internal/audit"
	"litassist/internal/config"
)

// rewriteTransport sends every request to the test server regardless of the
// host in the URL, so domain routing can be exercised against httptest.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func newTestFetcher(t *testing.T, srv *httptest.Server) *Fetcher {
	t.Helper()
	if err := audit.Init(t.TempDir()); err != nil {
		t.Fatalf("audit.Init: %v", err)
	}
	s := config.Default()
	s.Fetch.DomainDelaySeconds = 0.001
	opts := []Option{}
	if srv != nil {
		target, err := url.Parse(srv.URL)
		if err != nil {
			t.Fatalf("parse server URL: %v", err)
		}
		opts = append(opts, WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}}))
	}
	return New(&s, opts...)
}

func disablePacing(t *testing.T) {
	t.Helper()
	base, rng := austliiGapBase, austliiGapRange
	austliiGapBase = 0
	austliiGapRange = time.Millisecond
	t.Cleanup(func() {
		austliiGapBase = base
		austliiGapRange = rng
		austliiMu.Lock()
		austliiLast = time.Time{}
		austliiMu.Unlock()
	})
}

func TestFetchLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "affidavit.txt")
	if err := os.WriteFile(path, []byte("I, Jane Citizen, affirm the following."), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	f := newTestFetcher(t, nil)
	got, err := f.Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch local file: %v", err)
	}
	if got != "I, Jane Citizen, affirm the following." {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestFetchLocalFileMissing(t *testing.T) {
	f := newTestFetcher(t, nil)
	_, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Fatal("expected error for missing local file")
	}
}

func TestJadeBlocked(t *testing.T) {
	f := newTestFetcher(t, nil)
	got, err := f.Fetch(context.Background(), "https://jade.io/article/123456")
	if err == nil {
		t.Fatal("expected jade.io to be blocked")
	}
	if got != "" {
		t.Errorf("blocked fetch returned content: %q", got)
	}
	if !strings.Contains(err.Error(), "blocks automated access") {
		t.Errorf("error should explain the block, got: %v", err)
	}
}

func TestJadeDownloadViaJina(t *testing.T) {
	var seenPath string
	var seenRespondWith string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.String()
		seenRespondWith = r.Header.Get("x-respond-with")
		w.Write([]byte("# High Court Judgment\n\nThe appeal is allowed."))
	}))
	defer srv.Close()

	old := jinaBase
	jinaBase = srv.URL + "/"
	defer func() { jinaBase = old }()

	f := newTestFetcher(t, nil)
	got, err := f.Fetch(context.Background(), "https://ndfv.jade.io/t/judgment/98765")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(got, "The appeal is allowed.") {
		t.Errorf("missing content: %q", got)
	}
	if !strings.Contains(seenPath, "/t/judgment/98765/download") {
		t.Errorf("download suffix not appended, Jina saw %q", seenPath)
	}
	if seenRespondWith != "markdown" {
		t.Errorf("x-respond-with = %q, want markdown", seenRespondWith)
	}
}

func TestAustLIIDirectExtraction(t *testing.T) {
	disablePacing(t)

	var seenUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUA = r.Header.Get("User-Agent")
		w.Write([]byte(`<html><head><title>Case</title>
			<script>tracker();</script><style>p{color:red}</style></head>
			<body><h1>Smith v Jones [2020] NSWSC 100</h1>
			<p>1. This is an application for summary judgment.</p>
			<p>2. The defendant opposes the application.</p></body></html>`))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	got, err := f.Fetch(context.Background(), "http://www.austlii.edu.au/cgi-bin/viewdoc/au/cases/nsw/NSWSC/2020/100.html")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(got, "Smith v Jones [2020] NSWSC 100") {
		t.Errorf("heading missing from extraction: %q", got)
	}
	if !strings.Contains(got, "summary judgment") {
		t.Errorf("body missing from extraction: %q", got)
	}
	if strings.Contains(got, "tracker()") || strings.Contains(got, "color:red") {
		t.Errorf("script/style leaked into extraction: %q", got)
	}
	if seenUA != BrowserUserAgent {
		t.Errorf("User-Agent = %q, want browser string", seenUA)
	}
}

func TestAustLIIFallsBackToJina(t *testing.T) {
	disablePacing(t)

	// One server plays both roles: the rewrite transport sends the direct
	// fetch and the Jina request here. Jina requests carry the original URL
	// in their path.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/http") {
			w.Write([]byte("# Recovered via proxy\n\nFull judgment text here."))
			return
		}
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	got, err := f.Fetch(context.Background(), "http://www.austlii.edu.au/cases/blocked.html")
	if err != nil {
		t.Fatalf("Fetch should succeed via Jina fallback: %v", err)
	}
	if !strings.Contains(got, "Recovered via proxy") {
		t.Errorf("fallback content missing: %q", got)
	}
}

func TestGovernmentFrameFollow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/C2004A02562/latest/text", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><iframe src="/C2004A02562/latest/document_1.html"></iframe></body></html>`))
	})
	mux.HandleFunc("/C2004A02562/latest/document_1.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<p>Freedom of Information Act 1982</p>
			<p>An Act to give to members of the public rights of access to official documents.</p>
			<p>Section 1 Short title</p>
			<p>Section 2 Commencement</p>
			<p>Section 3 Objects</p>
			<p>Section 4 Interpretation</p>
			<p>Section 11 Right of access</p>
			</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, srv)
	got, err := f.Fetch(context.Background(), "https://www.legislation.gov.au/C2004A02562/latest/text")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(got, "Right of access") {
		t.Errorf("frame content not followed: %q", got)
	}
}

func TestGovernmentGibberishFallsBackToJina(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/http") {
			w.Write([]byte("# Evidence Act 1995\n\nSection 55 Relevant evidence\n\nThe evidence that is relevant..."))
			return
		}
		// Real page but the extraction is too flat to be a document.
		w.Write([]byte("<html><body><p>Loading...</p></body></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	got, err := f.Fetch(context.Background(), "https://www.legislation.nsw.gov.au/view/html/inforce/current/act-1995-025")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(got, "Relevant evidence") {
		t.Errorf("Jina fallback content missing: %q", got)
	}
}

func TestGenericRoutesThroughJina(t *testing.T) {
	var sawAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "text/html")
			return
		}
		sawAuth = r.Header.Get("Authorization")
		w.Write([]byte("# Some blog post\n\nAnalysis of recent High Court decisions."))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	f.settings.Jina.APIKey = "jina-test-key"
	got, err := f.Fetch(context.Background(), "https://example.com/legal-analysis")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(got, "High Court decisions") {
		t.Errorf("content missing: %q", got)
	}
	if sawAuth != "Bearer jina-test-key" {
		t.Errorf("Authorization = %q, want bearer key", sawAuth)
	}
}

func TestFetchRecordsAuditAttempt(t *testing.T) {
	workdir := t.TempDir()
	if err := audit.Init(workdir); err != nil {
		t.Fatalf("audit.Init: %v", err)
	}

	s := config.Default()
	f := New(&s)
	if _, err := f.Fetch(context.Background(), filepath.Join(workdir, "missing.txt")); err == nil {
		t.Fatal("expected fetch error")
	}

	entries, err := os.ReadDir(filepath.Join(workdir, "logs"))
	if err != nil {
		t.Fatalf("read logs dir: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "fetch_attempt_") && strings.HasSuffix(e.Name(), ".json") {
			found = true
		}
	}
	if !found {
		t.Errorf("no fetch_attempt record written, saw: %v", entries)
	}
}

func TestAustLIIPacing(t *testing.T) {
	base, rng := austliiGapBase, austliiGapRange
	austliiGapBase = 40 * time.Millisecond
	austliiGapRange = 10 * time.Millisecond
	defer func() {
		austliiGapBase = base
		austliiGapRange = rng
		austliiMu.Lock()
		austliiLast = time.Time{}
		austliiMu.Unlock()
	}()

	AustLIIDone()
	start := time.Now()
	AustLIIWait()
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("pacing gap not enforced, waited only %v", elapsed)
	}

	// A stale completion timestamp means no wait at all.
	austliiMu.Lock()
	austliiLast = time.Now().Add(-time.Minute)
	austliiMu.Unlock()
	start = time.Now()
	AustLIIWait()
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("unexpected wait %v after stale completion", elapsed)
	}
}

func TestIsGibberish(t *testing.T) {
	long := strings.Repeat("A meaningful line of legislation.\n", 10)
	cases := []struct {
		name    string
		content string
		want    bool
	}{
		{"empty", "", true},
		{"short", "Error 404", true},
		{"long but flat", strings.Repeat("x", 500), true},
		{"real document", long, false},
	}
	for _, tc := range cases {
		if got := isGibberish(tc.content); got != tc.want {
			t.Errorf("%s: isGibberish = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	raw := `<html><head><meta charset="utf-8"><link rel="x"><script>var a=1;</script>
		<style>body{}</style></head>
		<body><h1>Heading</h1><p>First   paragraph.</p><p>Second paragraph.</p></body></html>`
	got, err := htmlToText(raw)
	if err != nil {
		t.Fatalf("htmlToText: %v", err)
	}
	if !strings.Contains(got, "Heading") || !strings.Contains(got, "First paragraph.") {
		t.Errorf("text missing: %q", got)
	}
	if strings.Contains(got, "var a=1") {
		t.Errorf("script leaked: %q", got)
	}
	if strings.Contains(got, "   ") {
		t.Errorf("whitespace not collapsed: %q", got)
	}
}

func TestPDFDetectionAndRejection(t *testing.T) {
	if !isPDF([]byte("%PDF-1.7\n...")) {
		t.Error("isPDF should detect the magic bytes")
	}
	if !isPDF([]byte("\n  %PDF-1.4")) {
		t.Error("isPDF should tolerate leading whitespace")
	}
	if isPDF([]byte("<html>")) {
		t.Error("isPDF false positive on HTML")
	}

	if _, err := extractPDF([]byte("%PDF-1.7 not really a pdf"), "https://example.com/x.pdf"); err == nil {
		t.Error("extractPDF should fail on a malformed body")
	}
}

func TestFOIMarkers(t *testing.T) {
	if m := foiMarker("This bundle contains Documents released under FOI request 2023/41"); m == "" {
		t.Error("FOI marker not detected")
	}
	if m := foiMarker("Section 55 Relevant evidence"); m != "" {
		t.Errorf("false positive FOI marker %q", m)
	}
	if !foiActWhitelist.MatchString("https://www.legislation.gov.au/C2004A02562/latest/text?name=freedom-of-information-act") {
		t.Error("FOI Act page should be whitelisted")
	}
}
