package credential

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"runharvest/internal/pagedriver"
	"runharvest/internal/telemetry"

	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

type stubProvider struct {
	cookie *RawCookie
	err    error
	puts   []RawCookie
}

func (s *stubProvider) Get(context.Context) (*RawCookie, error) {
	return s.cookie, s.err
}

func (s *stubProvider) Put(_ context.Context, c RawCookie) error {
	s.puts = append(s.puts, c)
	return nil
}

func TestAdapt(t *testing.T) {
	cases := []struct {
		name     string
		in       RawCookie
		expected pagedriver.Cookie
	}{
		{
			name: "expiry kept",
			in:   RawCookie{Name: "checker", Value: "v", Domain: ".runkeeper.com", Path: "/app", Expires: ptr(1900000000), Secure: true},
			expected: pagedriver.Cookie{
				Name: "checker", Value: "v", Domain: ".runkeeper.com", Path: "/app",
				Expires: 1900000000, Secure: true, SameSite: "Lax",
			},
		},
		{
			name: "missing expiry becomes session cookie",
			in:   RawCookie{Value: "v", Domain: "runkeeper.com"},
			expected: pagedriver.Cookie{
				Name: DefaultCookieName, Value: "v", Domain: "runkeeper.com", Path: "/",
				Expires: pagedriver.SessionExpiry, SameSite: "Lax",
			},
		},
		{
			name: "zero expiry becomes session cookie",
			in:   RawCookie{Name: "checker", Value: "v", Domain: "runkeeper.com", Path: "/", Expires: ptr(0)},
			expected: pagedriver.Cookie{
				Name: "checker", Value: "v", Domain: "runkeeper.com", Path: "/",
				Expires: pagedriver.SessionExpiry, SameSite: "Lax",
			},
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, Adapt(test.in, DefaultCookieName))
		})
	}
}

func TestUnmarshalCoercesExpiry(t *testing.T) {
	cases := []struct {
		name     string
		json     string
		expected *int64
	}{
		{"float", `{"name":"checker","value":"v","expires":1900000000.75}`, ptr(1900000000)},
		{"negative", `{"name":"checker","value":"v","expires":-1}`, nil},
		{"beyond 32 bits", `{"name":"checker","value":"v","expires":99999999999}`, nil},
		{"null", `{"name":"checker","value":"v","expires":null}`, nil},
		{"absent", `{"name":"checker","value":"v"}`, nil},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			var c RawCookie
			require.NoError(t, json.Unmarshal([]byte(test.json), &c))
			require.Equal(t, test.expected, c.Expires)
			require.Equal(t, "v", c.Value)
		})
	}
}

func TestRedacted(t *testing.T) {
	require.Equal(t, "********", RawCookie{Value: "short"}.Redacted())
	require.Equal(t, "abcd…wxyz", RawCookie{Value: "abcdefghijklmnopqrstuvwxyz"}.Redacted())
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	remoteCookie := &RawCookie{Name: "checker", Value: "remote"}
	localCookie := &RawCookie{Name: "checker", Value: "local"}

	t.Run("remote first", func(t *testing.T) {
		remote := &stubProvider{cookie: remoteCookie}
		local := &stubProvider{cookie: localCookie}
		cookie, source, err := Fetch(ctx, remote, local, FetchOptions{SyncToRemote: true}, &telemetry.Recorder{})
		require.NoError(t, err)
		require.Equal(t, SourceRemote, source)
		require.Equal(t, "remote", cookie.Value)
		require.Empty(t, remote.puts)
	})

	t.Run("remote error falls back to local", func(t *testing.T) {
		rec := &telemetry.Recorder{}
		remote := &stubProvider{err: errors.New("permission denied")}
		local := &stubProvider{cookie: localCookie}
		cookie, source, err := Fetch(ctx, remote, local, FetchOptions{}, rec)
		require.NoError(t, err)
		require.Equal(t, SourceLocal, source)
		require.Equal(t, "local", cookie.Value)
		require.Len(t, rec.Reports("warning", report_fetch_remote), 1)
		require.Empty(t, remote.puts)
	})

	t.Run("local cookie synced to remote", func(t *testing.T) {
		remote := &stubProvider{}
		local := &stubProvider{cookie: localCookie}
		_, source, err := Fetch(ctx, remote, local, FetchOptions{SyncToRemote: true}, &telemetry.Recorder{})
		require.NoError(t, err)
		require.Equal(t, SourceLocal, source)
		require.Equal(t, []RawCookie{*localCookie}, remote.puts)
	})

	t.Run("no local source", func(t *testing.T) {
		remote := &stubProvider{cookie: &RawCookie{Name: "checker"}}
		_, _, err := Fetch(ctx, remote, nil, FetchOptions{}, &telemetry.Recorder{})
		require.ErrorIs(t, err, ErrNoCredential)
	})

	t.Run("nothing anywhere", func(t *testing.T) {
		rec := &telemetry.Recorder{}
		_, _, err := Fetch(ctx, &stubProvider{}, &stubProvider{err: errors.New("no profile")}, FetchOptions{}, rec)
		require.ErrorIs(t, err, ErrNoCredential)
		require.Len(t, rec.Reports("warning", report_fetch_local), 1)
	})
}
