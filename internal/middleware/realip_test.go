package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolvedIP(t *testing.T, trusted []string, remoteAddr string, header http.Header) string {
	t.Helper()
	prefixes, err := ParseTrustedProxies(trusted)
	require.NoError(t, err)

	var got string
	h := RealIP(prefixes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = clientIP(r)
	}))
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header[k] = v
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		header  http.Header
		want    string
	}{
		{
			name:   "no trusted proxies ignores headers",
			remote: "9.9.9.9:1234",
			header: http.Header{"X-Forwarded-For": {"7.7.7.7"}, "X-Real-Ip": {"8.8.8.8"}},
			want:   "9.9.9.9",
		},
		{
			name:    "untrusted peer ignores headers",
			trusted: []string{"10.0.0.0/8"},
			remote:  "9.9.9.9:1234",
			header:  http.Header{"X-Forwarded-For": {"7.7.7.7"}},
			want:    "9.9.9.9",
		},
		{
			name:    "trusted peer uses rightmost untrusted hop",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.0.0.5:1234",
			header:  http.Header{"X-Forwarded-For": {"1.1.1.1, 7.7.7.7, 10.0.0.2"}},
			want:    "7.7.7.7",
		},
		{
			name:    "repeated headers are joined",
			trusted: []string{"10.0.0.5"},
			remote:  "10.0.0.5:1234",
			header:  http.Header{"X-Forwarded-For": {"1.1.1.1", "6.6.6.6"}},
			want:    "6.6.6.6",
		},
		{
			name:    "garbage hop keeps peer",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.0.0.5:1234",
			header:  http.Header{"X-Forwarded-For": {"7.7.7.7, not-an-ip"}},
			want:    "10.0.0.5",
		},
		{
			name:    "x-real-ip from trusted peer",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.0.0.5:1234",
			header:  http.Header{"X-Real-Ip": {"8.8.8.8"}},
			want:    "8.8.8.8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolvedIP(t, tt.trusted, tt.remote, tt.header))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.7 ", "", "::1"})
	require.NoError(t, err)
	assert.Len(t, prefixes, 3)

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}
