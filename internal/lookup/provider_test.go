package lookup

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInferKind(t *testing.T) {
	cases := map[string]Kind{
		"8.8.8.8":                          KindIP,
		"2001:db8::1":                      KindIP,
		"https://example.com/a":            KindURL,
		"d41d8cd98f00b204e9800998ecf8427e": KindHash,
		sha256Hash:                         KindHash,
		"example.com":                      KindDomain,
		"deadbeef":                         KindDomain,
	}
	for target, want := range cases {
		require.Equal(t, want, InferKind(target), target)
	}
}

func TestParseKind(t *testing.T) {
	kind, ok := ParseKind(" IP ")
	require.True(t, ok)
	require.Equal(t, KindIP, kind)

	kind, ok = ParseKind("file")
	require.True(t, ok)
	require.Equal(t, KindHash, kind)

	_, ok = ParseKind("email")
	require.False(t, ok)
}

func TestProviderTable(t *testing.T) {
	require.Equal(t, []string{ServiceAbuseIPDB, ServiceShodan, ServiceVirusTotal}, ServiceNames())

	providers := DefaultProviders()
	for name, p := range providers {
		require.Equal(t, name, p.Name)
		require.NotEmpty(t, p.Kinds)
	}

	_, _, err := providers[ServiceShodan].Endpoint(KindDomain, "example.com")
	require.Error(t, err)
	require.True(t, providers[ServiceVirusTotal].Supports(KindHash))
	require.False(t, providers[ServiceAbuseIPDB].Supports(KindURL))
}

func TestSafeClientRefusesPlainHTTPAndLoopback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSafeClient(2 * time.Second)
	require.Equal(t, 2*time.Second, client.Timeout)

	_, err := client.Get(server.URL)
	require.Error(t, err)
}
