package lookup

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentinelsoc/sentinel/internal/repository"
	apperrors "github.com/sentinelsoc/sentinel/pkg/errors"
)

const (
	abuseKey   = "abuse-0123456789abcdef0123456789abcdef0123456789abcdef"
	vtKey      = "vt-0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	shodanKey  = "shodan-0123456789abcdef012345"
	sha256Hash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

type fakeKeys struct {
	mu    sync.Mutex
	keys  map[string]string
	errs  map[string]error
	calls int
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{
		keys: map[string]string{
			ServiceAbuseIPDB:  abuseKey,
			ServiceVirusTotal: vtKey,
			ServiceShodan:     shodanKey,
		},
		errs: map[string]error{},
	}
}

func (f *fakeKeys) GetKey(_ context.Context, service string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[service]; ok {
		return "", err
	}
	key, ok := f.keys[service]
	if !ok {
		return "", repository.ErrNotFound
	}
	return key, nil
}

type upstream struct {
	*httptest.Server
	calls    atomic.Int32
	mu       sync.Mutex
	requests []*http.Request
	handler  http.HandlerFunc
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.handler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		u.mu.Lock()
		u.requests = append(u.requests, r.Clone(context.Background()))
		handler := u.handler
		u.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) setHandler(h http.HandlerFunc) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.handler = h
}

func (u *upstream) last(t *testing.T) *http.Request {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	require.NotEmpty(t, u.requests)
	return u.requests[len(u.requests)-1]
}

func newTestBroker(t *testing.T, u *upstream, keys KeySource, cfg Config) *Broker {
	t.Helper()
	cfg.BaseURLs = map[string]string{
		ServiceAbuseIPDB:  u.URL,
		ServiceVirusTotal: u.URL,
		ServiceShodan:     u.URL,
	}
	broker, err := NewBroker(keys, cfg, WithHTTPClient(u.Client()))
	require.NoError(t, err)
	return broker
}

func TestLookupAbuseIPDB(t *testing.T) {
	u := newUpstream(t)
	broker := newTestBroker(t, u, newFakeKeys(), Config{})

	result, err := broker.Lookup(context.Background(), Request{Service: "AbuseIPDB", Target: "8.8.8.8"})
	require.NoError(t, err)
	require.Equal(t, ServiceAbuseIPDB, result.Service)
	require.Equal(t, KindIP, result.Kind)
	require.JSONEq(t, `{"data":{"ok":true}}`, string(result.Data))

	req := u.last(t)
	require.Equal(t, "/api/v2/check", req.URL.Path)
	require.Equal(t, "8.8.8.8", req.URL.Query().Get("ipAddress"))
	require.Equal(t, "90", req.URL.Query().Get("maxAgeInDays"))
	require.True(t, req.URL.Query().Has("verbose"))
	require.Equal(t, abuseKey, req.Header.Get("Key"))
	require.Equal(t, "application/json", req.Header.Get("Accept"))

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	require.NotContains(t, string(encoded), abuseKey)
}

func TestLookupVirusTotalPaths(t *testing.T) {
	u := newUpstream(t)
	broker := newTestBroker(t, u, newFakeKeys(), Config{})

	cases := []struct {
		target string
		kind   string
		path   string
	}{
		{target: "8.8.8.8", path: "/api/v3/ip_addresses/8.8.8.8"},
		{target: "example.com", path: "/api/v3/domains/example.com"},
		{target: sha256Hash, path: "/api/v3/files/" + sha256Hash},
		{
			target: "https://example.com/login?next=/",
			path:   "/api/v3/urls/" + base64.RawURLEncoding.EncodeToString([]byte("https://example.com/login?next=/")),
		},
		{target: "example.org", kind: "domain", path: "/api/v3/domains/example.org"},
		{target: sha256Hash, kind: "file", path: "/api/v3/files/" + sha256Hash},
	}

	for _, tc := range cases {
		t.Run(tc.target+"/"+tc.kind, func(t *testing.T) {
			_, err := broker.Lookup(context.Background(), Request{Service: ServiceVirusTotal, Target: tc.target, Kind: tc.kind})
			require.NoError(t, err)

			req := u.last(t)
			require.Equal(t, tc.path, req.URL.EscapedPath())
			require.Equal(t, vtKey, req.Header.Get("x-apikey"))
		})
	}
}

func TestLookupShodanSendsKeyAsQuery(t *testing.T) {
	u := newUpstream(t)
	broker := newTestBroker(t, u, newFakeKeys(), Config{})

	_, err := broker.Lookup(context.Background(), Request{Service: ServiceShodan, Target: "1.1.1.1"})
	require.NoError(t, err)

	req := u.last(t)
	require.Equal(t, "/shodan/host/1.1.1.1", req.URL.Path)
	require.Equal(t, shodanKey, req.URL.Query().Get("key"))
}

func TestLookupWithoutKeyMakesNoCall(t *testing.T) {
	u := newUpstream(t)
	keys := newFakeKeys()
	delete(keys.keys, ServiceShodan)
	broker := newTestBroker(t, u, keys, Config{})

	_, err := broker.Lookup(context.Background(), Request{Service: ServiceShodan, Target: "1.1.1.1"})
	require.Error(t, err)
	require.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))
	require.Equal(t, ServiceShodan, apperrors.FromError(err).Service)
	require.Contains(t, apperrors.FromError(err).Message, ServiceShodan)
	require.Zero(t, u.calls.Load())
}

func TestLookupUnusableKeyIsConfigError(t *testing.T) {
	u := newUpstream(t)
	keys := newFakeKeys()
	keys.errs[ServiceAbuseIPDB] = repository.ErrCredentialUnusable
	broker := newTestBroker(t, u, keys, Config{})

	_, err := broker.Lookup(context.Background(), Request{Service: ServiceAbuseIPDB, Target: "8.8.8.8"})
	require.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))
	require.Zero(t, u.calls.Load())
}

func TestLookupValidationHappensBeforeIO(t *testing.T) {
	u := newUpstream(t)
	keys := newFakeKeys()
	broker := newTestBroker(t, u, keys, Config{})

	cases := []Request{
		{Service: ServiceAbuseIPDB, Target: "not-an-ip"},
		{Service: ServiceAbuseIPDB, Target: ""},
		{Service: "", Target: "8.8.8.8"},
		{Service: "greynoise", Target: "8.8.8.8"},
		{Service: ServiceShodan, Target: "example.com", Kind: "domain"},
		{Service: ServiceVirusTotal, Target: "abc", Kind: "hash"},
		{Service: ServiceVirusTotal, Target: "ftp://example.com/x", Kind: "url"},
		{Service: ServiceVirusTotal, Target: "8.8.8.8", Kind: "email"},
		{Service: ServiceVirusTotal, Target: "-bad-.", Kind: "domain"},
	}
	for _, req := range cases {
		_, err := broker.Lookup(context.Background(), req)
		require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err), "%+v", req)
	}

	require.Zero(t, u.calls.Load())
	require.Zero(t, keys.calls)
}

func TestLookupPreservesUpstreamStatus(t *testing.T) {
	u := newUpstream(t)
	u.setHandler(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":[{"detail":"Daily rate limit exceeded"}]}`))
	})
	broker := newTestBroker(t, u, newFakeKeys(), Config{})

	_, err := broker.Lookup(context.Background(), Request{Service: ServiceAbuseIPDB, Target: "8.8.8.8"})
	appErr := apperrors.FromError(err)
	require.Equal(t, apperrors.KindUpstream, appErr.Kind)
	require.Equal(t, http.StatusTooManyRequests, appErr.UpstreamStatus)
	require.Equal(t, http.StatusBadGateway, appErr.StatusCode)
	require.Equal(t, ServiceAbuseIPDB, appErr.Service)
	require.NotContains(t, err.Error(), abuseKey)
	require.EqualValues(t, 1, u.calls.Load())
}

func TestLookupRejectsInvalidJSON(t *testing.T) {
	u := newUpstream(t)
	u.setHandler(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})
	broker := newTestBroker(t, u, newFakeKeys(), Config{})

	_, err := broker.Lookup(context.Background(), Request{Service: ServiceShodan, Target: "1.1.1.1"})
	appErr := apperrors.FromError(err)
	require.Equal(t, apperrors.KindUpstream, appErr.Kind)
	require.Zero(t, appErr.UpstreamStatus)
}

func TestLookupRejectsOversizedResponse(t *testing.T) {
	u := newUpstream(t)
	u.setHandler(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"padding":"` + strings.Repeat("x", 256) + `"}`))
	})
	broker := newTestBroker(t, u, newFakeKeys(), Config{MaxResponseBytes: 64})

	_, err := broker.Lookup(context.Background(), Request{Service: ServiceShodan, Target: "1.1.1.1"})
	require.Equal(t, apperrors.KindUpstream, apperrors.KindOf(err))
}

func TestLookupTimeout(t *testing.T) {
	u := newUpstream(t)
	u.setHandler(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	broker := newTestBroker(t, u, newFakeKeys(), Config{Timeout: 50 * time.Millisecond})

	_, err := broker.Lookup(context.Background(), Request{Service: ServiceShodan, Target: "1.1.1.1"})
	appErr := apperrors.FromError(err)
	require.True(t, apperrors.ErrUpstreamTimeout.Is(appErr), "got %v", err)
	require.Equal(t, http.StatusGatewayTimeout, appErr.StatusCode)
	require.NotContains(t, err.Error(), shodanKey)
}

func TestLookupTransportErrorHidesKey(t *testing.T) {
	u := newUpstream(t)
	broker := newTestBroker(t, u, newFakeKeys(), Config{})
	u.Close()

	_, err := broker.Lookup(context.Background(), Request{Service: ServiceShodan, Target: "1.1.1.1"})
	appErr := apperrors.FromError(err)
	require.Equal(t, apperrors.KindUpstream, appErr.Kind)
	require.Equal(t, http.StatusBadGateway, appErr.StatusCode)
	require.NotContains(t, err.Error(), shodanKey)
	require.NotContains(t, appErr.Message, "127.0.0.1")
}

func TestLookupThrottle(t *testing.T) {
	u := newUpstream(t)
	broker := newTestBroker(t, u, newFakeKeys(), Config{MinInterval: time.Hour})

	_, err := broker.Lookup(context.Background(), Request{Service: ServiceShodan, Target: "1.1.1.1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = broker.Lookup(ctx, Request{Service: ServiceShodan, Target: "1.1.1.1"})
	require.Equal(t, apperrors.KindRateLimit, apperrors.KindOf(err))
	require.EqualValues(t, 1, u.calls.Load())

	// Throttles are per service.
	_, err = broker.Lookup(context.Background(), Request{Service: ServiceAbuseIPDB, Target: "1.1.1.1"})
	require.NoError(t, err)

	broker.SetMinInterval(0)
	_, err = broker.Lookup(context.Background(), Request{Service: ServiceShodan, Target: "1.1.1.1"})
	require.NoError(t, err)
	require.EqualValues(t, 3, u.calls.Load())
}

func TestLookupBatch(t *testing.T) {
	u := newUpstream(t)
	u.setHandler(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"ip":%q}`, r.URL.Query().Get("ipAddress"))
	})
	broker := newTestBroker(t, u, newFakeKeys(), Config{})

	items, err := broker.LookupBatch(context.Background(), ServiceAbuseIPDB, "", []string{"8.8.8.8", "bogus", "1.1.1.1"})
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.True(t, items[0].Success)
	require.JSONEq(t, `{"ip":"8.8.8.8"}`, string(items[0].Data))
	require.False(t, items[1].Success)
	require.Equal(t, apperrors.ErrBadRequest.Code, items[1].Code)
	require.NotEmpty(t, items[1].Error)
	require.True(t, items[2].Success)
	require.EqualValues(t, 2, u.calls.Load())
}

func TestLookupBatchAbortsWithoutKey(t *testing.T) {
	u := newUpstream(t)
	keys := newFakeKeys()
	delete(keys.keys, ServiceVirusTotal)
	broker := newTestBroker(t, u, keys, Config{})

	_, err := broker.LookupBatch(context.Background(), ServiceVirusTotal, "", []string{"8.8.8.8", "1.1.1.1"})
	require.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))
	require.Zero(t, u.calls.Load())

	_, err = broker.LookupBatch(context.Background(), ServiceVirusTotal, "", nil)
	require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = broker.LookupBatch(context.Background(), "otx", "", []string{"8.8.8.8"})
	require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestNewBrokerRejectsUnknownOverride(t *testing.T) {
	_, err := NewBroker(newFakeKeys(), Config{BaseURLs: map[string]string{"otx": "https://otx.example"}})
	require.Error(t, err)

	_, err = NewBroker(nil, Config{})
	require.Error(t, err)
}
