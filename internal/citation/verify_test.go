package citation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"litassist/internal/audit"
	"litassist/internal/config"
)

// countingTransport rewrites every request to the test server and counts
// round trips, so tests can assert on network behaviour.
type countingTransport struct {
	target *url.URL
	calls  int64
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&t.calls, 1)
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func testSettings() *config.Settings {
	s := config.Default()
	s.GoogleCSE.APIKey = "test-key"
	s.GoogleCSE.CSEID = "cse-jade"
	s.GoogleCSE.CSEIDComprehensive = "cse-comprehensive"
	s.GoogleCSE.CSEIDAustLII = "cse-austlii"
	s.Fetch.CSEDelaySeconds = 0.001
	s.Fetch.DomainDelaySeconds = 0.001
	return &s
}

func TestVerifySingleDirectURL(t *testing.T) {
	if err := audit.Init(t.TempDir()); err != nil {
		t.Fatalf("audit.Init: %v", err)
	}

	// CSEs return no items; the AustLII direct URL returns 200.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/customsearch/v1" {
			w.Write([]byte(`{}`))
			return
		}
		if r.URL.Path == "/cgi-bin/viewdoc/au/cases/act/ACTSC/2022/272.html" {
			w.Write([]byte("<html>R v Somebody [2022] ACTSC 272</html>"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	oldCSE := googleCSEBase
	googleCSEBase = srv.URL + "/customsearch/v1"
	defer func() { googleCSEBase = oldCSE }()

	target, _ := url.Parse(srv.URL)
	transport := &countingTransport{target: target}
	cache := NewCache()
	v := NewVerifier(testSettings(),
		WithCache(cache),
		WithVerifierHTTPClient(&http.Client{Transport: transport}))

	exists, gotURL, reason := v.VerifySingle(context.Background(), "[2022] ACTSC 272")
	if !exists {
		t.Fatal("citation should verify via direct URL")
	}
	wantURL := "https://www.austlii.edu.au/cgi-bin/viewdoc/au/cases/act/ACTSC/2022/272.html"
	if gotURL != wantURL {
		t.Errorf("url = %q, want %q", gotURL, wantURL)
	}
	if reason != "Verified via AustLII direct URL" {
		t.Errorf("reason = %q", reason)
	}
	if cache.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", cache.Len())
	}
	if r, ok := cache.Get("[2022] ACTSC 272"); !ok || !r.Exists || r.URL != wantURL {
		t.Errorf("cache entry = %+v, ok=%v", r, ok)
	}

	// Idempotence: the second call answers from the cache with no new
	// network traffic.
	before := atomic.LoadInt64(&transport.calls)
	exists2, url2, reason2 := v.VerifySingle(context.Background(), "[2022] ACTSC 272")
	if exists2 != exists || url2 != gotURL || reason2 != reason {
		t.Error("second verification returned a different triple")
	}
	if after := atomic.LoadInt64(&transport.calls); after != before {
		t.Errorf("cached verification issued %d extra network calls", after-before)
	}
}

func TestVerifySingleInternationalShortCircuit(t *testing.T) {
	transport := &countingTransport{}
	v := NewVerifier(testSettings(),
		WithCache(NewCache()),
		WithVerifierHTTPClient(&http.Client{Transport: transport}))

	exists, gotURL, reason := v.VerifySingle(context.Background(), "[1994] 1 AC 324")
	if !exists {
		t.Fatal("international citation should classify as existing")
	}
	if gotURL != "" {
		t.Errorf("url = %q, want empty", gotURL)
	}
	want := "UK/International citation (Appeal Cases (House of Lords/Privy Council)) - not in Australian databases"
	if reason != want {
		t.Errorf("reason = %q, want %q", reason, want)
	}
	if calls := atomic.LoadInt64(&transport.calls); calls != 0 {
		t.Errorf("classification issued %d network calls, want 0", calls)
	}
}

func TestVerifySingleLegislationSkip(t *testing.T) {
	transport := &countingTransport{}
	v := NewVerifier(testSettings(),
		WithCache(NewCache()),
		WithVerifierHTTPClient(&http.Client{Transport: transport}))

	exists, gotURL, reason := v.VerifySingle(context.Background(), "Family Law Act 1975 (Cth)")
	if !exists || gotURL != "" {
		t.Errorf("legislation should skip verification, got exists=%v url=%q", exists, gotURL)
	}
	if reason != "Legislation reference - verification skipped" {
		t.Errorf("reason = %q", reason)
	}
	if calls := atomic.LoadInt64(&transport.calls); calls != 0 {
		t.Errorf("legislation classification issued %d network calls", calls)
	}
}

func TestVerifySingleHardcodedFOI(t *testing.T) {
	v := NewVerifier(testSettings(), WithCache(NewCache()))

	exists, path, reason := v.VerifySingle(context.Background(), "Freedom of Information Act 1982 (Cth)")
	if !exists {
		t.Fatal("hardcoded FOI statute should verify")
	}
	if path != "sources/freedom_of_information_act_1982_cth.txt" {
		t.Errorf("path = %q", path)
	}
	if reason != "Hardcoded FOI legislation - local reference document" {
		t.Errorf("reason = %q", reason)
	}
}

func TestVerifySingleCSEMatch(t *testing.T) {
	if err := audit.Init(t.TempDir()); err != nil {
		t.Fatalf("audit.Init: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cx := r.URL.Query().Get("cx")
		if cx == "cse-jade" {
			w.Write([]byte(`{"items":[{"title":"Wong v The Queen [2001] HCA 64","snippet":"sentencing guidelines","link":"https://jade.io/article/68121"}]}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	oldCSE := googleCSEBase
	googleCSEBase = srv.URL
	defer func() { googleCSEBase = oldCSE }()

	v := NewVerifier(testSettings(), WithCache(NewCache()))

	exists, gotURL, reason := v.VerifySingle(context.Background(), "[2001] HCA 64")
	if !exists {
		t.Fatal("citation should verify via first CSE")
	}
	if gotURL != "https://jade.io/article/68121" {
		t.Errorf("url = %q", gotURL)
	}
	if reason != "Verified via Jade search" {
		t.Errorf("reason = %q", reason)
	}
}

func TestVerifySingleNotFound(t *testing.T) {
	if err := audit.Init(t.TempDir()); err != nil {
		t.Fatalf("audit.Init: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/customsearch/v1" {
			w.Write([]byte(`{}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	oldCSE := googleCSEBase
	googleCSEBase = srv.URL + "/customsearch/v1"
	defer func() { googleCSEBase = oldCSE }()

	target, _ := url.Parse(srv.URL)
	v := NewVerifier(testSettings(),
		WithCache(NewCache()),
		WithVerifierHTTPClient(&http.Client{Transport: &countingTransport{target: target}}))

	// A fabricated citation: CSEs empty, direct URL 404s.
	exists, gotURL, reason := v.VerifySingle(context.Background(), "[2025] NSWSC 99999")
	if exists {
		t.Error("fabricated citation should not verify")
	}
	if gotURL != "" {
		t.Errorf("url = %q, want empty", gotURL)
	}
	if reason != "Citation not found in any Australian legal database" {
		t.Errorf("reason = %q", reason)
	}
}

func TestVerifyTextSession(t *testing.T) {
	if err := audit.Init(t.TempDir()); err != nil {
		t.Fatalf("audit.Init: %v", err)
	}

	cache := NewCache()
	cache.Put("[2020] HCA 45", Result{Exists: true, URL: "https://example.org/hca45", Reason: "cached"})
	cache.Put("[2025] FAKE 1", Result{Exists: false, Reason: "Citation not found in any Australian legal database"})

	v := NewVerifier(testSettings(), WithCache(cache))
	res := v.VerifyText(context.Background(), "Compare [2020] HCA 45 with [2025] FAKE 1.")

	if len(res.Found) != 2 {
		t.Fatalf("found = %v", res.Found)
	}
	if len(res.Verified) != 1 || res.Verified[0].Citation != "[2020] HCA 45" {
		t.Errorf("verified = %+v", res.Verified)
	}
	if len(res.Unverified) != 1 || res.Unverified[0].Citation != "[2025] FAKE 1" {
		t.Errorf("unverified = %+v", res.Unverified)
	}
}
