package credential

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"runharvest/internal/telemetry"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeSecretManager keeps the versions of a single secret.
type fakeSecretManager struct {
	mu       sync.Mutex
	versions [][]byte
	tokens   []string
}

func (f *fakeSecretManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/projects/proj/secrets/cookie/versions/latest:access":
		if len(f.versions) == 0 {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"code":404,"message":"Secret has no versions","status":"NOT_FOUND"}}`)
			return
		}
		latest := f.versions[len(f.versions)-1]
		_ = json.NewEncoder(w).Encode(accessResponse{
			Name:    "projects/proj/secrets/cookie/versions/1",
			Payload: secretPayload{Data: base64.StdEncoding.EncodeToString(latest)},
		})
	case r.Method == http.MethodPost && r.URL.Path == "/projects/proj/secrets/cookie:addVersion":
		var req addVersionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Payload.Data)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.versions = append(f.versions, data)
		_, _ = io.WriteString(w, `{"name":"projects/proj/secrets/cookie/versions/2"}`)
	default:
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"Permission denied","status":"PERMISSION_DENIED"}}`)
	}
}

func newTestSecretManager(t *testing.T, secret string, fake *fakeSecretManager) (*SecretManager, *telemetry.Recorder) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	rec := &telemetry.Recorder{}
	sm, err := NewSecretManager(context.Background(), SecretManagerOptions{
		BaseURL:     srv.URL,
		Project:     "proj",
		Secret:      secret,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
	}, rec)
	require.NoError(t, err)
	return sm, rec
}

func TestSecretManagerMissingSecret(t *testing.T) {
	sm, _ := newTestSecretManager(t, "cookie", &fakeSecretManager{})
	cookie, err := sm.Get(context.Background())
	require.NoError(t, err)
	require.Nil(t, cookie)
}

func TestSecretManagerPutThenGet(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSecretManager{}
	sm, _ := newTestSecretManager(t, "cookie", fake)

	stored := RawCookie{Name: "checker", Value: "abc123", Domain: ".runkeeper.com", Path: "/", Expires: ptr(1900000000), Secure: true}
	require.NoError(t, sm.Put(ctx, stored))

	var payload map[string]RawCookie
	require.NoError(t, json.Unmarshal(fake.versions[0], &payload))
	require.Equal(t, stored, payload["checker"])

	cookie, err := sm.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, &stored, cookie)
	require.Contains(t, fake.tokens, "Bearer test-token")
}

func TestSecretManagerPayloads(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		expected *RawCookie
		warned   bool
	}{
		{
			name:     "keyed by cookie name",
			payload:  `{"checker":{"name":"checker","value":"v","domain":"runkeeper.com"}}`,
			expected: &RawCookie{Name: "checker", Value: "v", Domain: "runkeeper.com"},
		},
		{
			name:     "entry without name",
			payload:  `{"checker":{"value":"v"}}`,
			expected: &RawCookie{Name: "checker", Value: "v"},
		},
		{
			name:     "bare cookie object",
			payload:  `{"name":"checker","value":"v"}`,
			expected: &RawCookie{Name: "checker", Value: "v"},
		},
		{
			name:    "other cookies only",
			payload: `{"session":{"name":"session","value":"v"}}`,
		},
		{
			name:    "not json",
			payload: `checker=v`,
			warned:  true,
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			fake := &fakeSecretManager{versions: [][]byte{[]byte(test.payload)}}
			sm, rec := newTestSecretManager(t, "cookie", fake)

			cookie, err := sm.Get(context.Background())
			require.NoError(t, err)
			require.Equal(t, test.expected, cookie)
			if test.warned {
				require.Len(t, rec.Reports("warning", report_secret_parse), 1)
			}
		})
	}
}

func TestSecretManagerPermissionDenied(t *testing.T) {
	sm, rec := newTestSecretManager(t, "forbidden", &fakeSecretManager{})
	_, err := sm.Get(context.Background())
	require.ErrorContains(t, err, "Permission denied")
	require.Len(t, rec.Reports("broken", report_secret_get), 1)

	err = sm.Put(context.Background(), RawCookie{Name: "checker", Value: "v"})
	require.Error(t, err)
}
