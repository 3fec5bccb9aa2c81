package stub

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/config"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/fixture"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/jsontree"
	"github.com/marutisridharjob/cucumber-rest-api-testing/internal/users"
	"github.com/marutisridharjob/cucumber-rest-api-testing/pkg/metrics"
)

func newStub(t *testing.T, mutate func(*config.StubConfig), opts ...Option) *httptest.Server {
	t.Helper()
	cfg := config.Default().Stub
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]Option{WithLogger(zap.NewNop().Sugar())}, opts...)
	ts := httptest.NewServer(New(cfg, opts...).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestPageTwoMatchesFixture(t *testing.T) {
	ts := newStub(t, nil)

	resp, body := get(t, ts, "/api/users?page=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}

	equal, err := jsontree.EqualBytes(fixture.UsersPage2, body)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !equal {
		expected, _ := jsontree.Parse(fixture.UsersPage2)
		actual, _ := jsontree.Parse(body)
		t.Fatalf("stub page 2 differs from fixture:\n%s", jsontree.Diff(expected, actual))
	}
}

func TestListPaging(t *testing.T) {
	ts := newStub(t, nil)

	cases := []struct {
		path       string
		page       int
		perPage    int
		count      int
		totalPages int
		firstID    int
	}{
		{"/api/users", 1, 6, 6, 2, 1},
		{"/api/users?page=3", 3, 6, 0, 2, 0},
		{"/api/users?per_page=12", 1, 12, 12, 1, 1},
		{"/api/users?page=3&per_page=5", 3, 5, 2, 3, 11},
	}

	for _, tc := range cases {
		resp, body := get(t, ts, tc.path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.path, resp.StatusCode)
		}
		var page users.PagedResponse
		if err := json.Unmarshal(body, &page); err != nil {
			t.Fatalf("%s: decode: %v", tc.path, err)
		}
		if page.Page != tc.page || page.PerPage != tc.perPage || page.TotalPages != tc.totalPages || page.Total != 12 {
			t.Fatalf("%s: unexpected paging %+v", tc.path, page)
		}
		if len(page.Data) != tc.count {
			t.Fatalf("%s: expected %d users, got %d", tc.path, tc.count, len(page.Data))
		}
		if tc.count > 0 && page.Data[0].ID != tc.firstID {
			t.Fatalf("%s: expected first id %d, got %d", tc.path, tc.firstID, page.Data[0].ID)
		}
		if err := page.Validate(); err != nil {
			t.Fatalf("%s: invalid page: %v", tc.path, err)
		}
	}
}

func TestEmptyPageEncodesEmptyArray(t *testing.T) {
	ts := newStub(t, nil)

	_, body := get(t, ts, "/api/users?page=9", nil)
	tree, err := jsontree.Parse(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	data, ok := tree.(map[string]any)["data"].([]any)
	if !ok || len(data) != 0 {
		t.Fatalf("expected empty data array, got %v", tree.(map[string]any)["data"])
	}
}

func TestInvalidPageIsProblem(t *testing.T) {
	ts := newStub(t, nil)

	for _, path := range []string{"/api/users?page=abc", "/api/users?page=0", "/api/users?per_page=-1"} {
		resp, _ := get(t, ts, path, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
			t.Fatalf("%s: unexpected content type %q", path, ct)
		}
	}
}

func TestSingleUser(t *testing.T) {
	ts := newStub(t, nil)

	resp, body := get(t, ts, "/api/users/2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var single users.Single
	if err := json.Unmarshal(body, &single); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if single.Data.Email != "janet.weaver@reqres.in" || single.Data.Avatar != "https://reqres.in/img/faces/2-image.jpg" {
		t.Fatalf("unexpected user %+v", single.Data)
	}

	for _, path := range []string{"/api/users/23", "/api/users/abc", "/api/unknown"} {
		resp, body := get(t, ts, path, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
		if equal, _ := jsontree.EqualBytes([]byte(`{}`), body); !equal {
			t.Fatalf("%s: expected empty object, got %s", path, body)
		}
	}
}

func TestHealth(t *testing.T) {
	ts := newStub(t, nil)

	resp, body := get(t, ts, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if equal, _ := jsontree.EqualBytes([]byte(`{"status":"ok"}`), body); !equal {
		t.Fatalf("unexpected health body %s", body)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	frozen := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	ts := newStub(t, func(cfg *config.StubConfig) {
		cfg.RateLimit.Window = config.DurationFrom(time.Minute)
		cfg.RateLimit.Max = 2
	}, WithClock(func() time.Time { return frozen }))

	client := http.Header{"X-Forwarded-For": {"203.0.113.10"}}
	for i := 0; i < 2; i++ {
		if resp, _ := get(t, ts, "/api/users", client); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	resp, _ := get(t, ts, "/api/users", client)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the bucket is empty, got %d", resp.StatusCode)
	}

	other := http.Header{"X-Forwarded-For": {"203.0.113.11"}}
	if resp, _ := get(t, ts, "/api/users", other); resp.StatusCode != http.StatusOK {
		t.Fatalf("other clients keep their own budget, got %d", resp.StatusCode)
	}
}

func TestCORSAllowedOrigins(t *testing.T) {
	ts := newStub(t, func(cfg *config.StubConfig) {
		cfg.AllowedOrigins = []string{"https://allowed.example"}
	})

	resp, _ := get(t, ts, "/api/users", http.Header{"Origin": {"https://allowed.example"}})
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://allowed.example" {
		t.Fatalf("expected allowed origin echoed, got %q", got)
	}

	resp, _ = get(t, ts, "/api/users", http.Header{"Origin": {"https://denied.example"}})
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS header for denied origin, got %q", got)
	}
}

func TestMetricsCountServedRequests(t *testing.T) {
	registry := metrics.NewRegistry(metrics.WithoutDefaultCollectors(), metrics.WithNamespace("reqres_stub"))
	ts := newStub(t, nil, WithMetrics(registry))

	get(t, ts, "/api/users?page=2", nil)
	get(t, ts, "/api/users?page=2", nil)
	get(t, ts, "/api/users/99", nil)

	resp, body := get(t, ts, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
	for _, want := range []string{
		`reqres_stub_requests_total{code="200",route="/api/users"} 2`,
		`reqres_stub_requests_total{code="404",route="/api/users/{id}"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in metrics, got:\n%s", want, body)
		}
	}
}
