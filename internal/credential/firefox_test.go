package credential

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCookieJar(t *testing.T, dir string, rows [][]any) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(dir, "cookies.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE moz_cookies (
		id INTEGER PRIMARY KEY,
		originAttributes TEXT NOT NULL DEFAULT '',
		name TEXT,
		value TEXT,
		host TEXT,
		path TEXT,
		expiry INTEGER,
		lastAccessed INTEGER,
		creationTime INTEGER,
		isSecure INTEGER,
		isHttpOnly INTEGER
	)`)
	require.NoError(t, err)
	for _, row := range rows {
		_, err := db.Exec(`INSERT INTO moz_cookies (name, value, host, path, expiry, lastAccessed, isSecure, isHttpOnly)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, row...)
		require.NoError(t, err)
	}
}

func TestFirefoxJar(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeCookieJar(t, dir, [][]any{
		{"checker", "stale", ".runkeeper.com", "/", 1800000000, 100, 1, 1},
		{"checker", "fresh", ".runkeeper.com", "/", 1900000000000, 200, 1, 0},
		{"checker", "elsewhere", ".example.com", "/", 1900000000, 300, 0, 0},
		{"session", "other", ".runkeeper.com", "/", 1900000000, 400, 0, 0},
	})

	jar := FirefoxJar{ProfileDir: dir, Domain: "runkeeper.com"}
	cookie, err := jar.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, &RawCookie{
		Name:    "checker",
		Value:   "fresh",
		Domain:  ".runkeeper.com",
		Path:    "/",
		Expires: ptr(1900000000),
		Secure:  true,
	}, cookie)

	missing := FirefoxJar{ProfileDir: dir, Domain: "strava.com"}
	cookie, err = missing.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, cookie)

	require.ErrorIs(t, jar.Put(ctx, RawCookie{}), ErrReadOnly)
}

func TestFirefoxJarMissingProfile(t *testing.T) {
	jar := FirefoxJar{ProfileDir: t.TempDir(), Domain: "runkeeper.com"}
	_, err := jar.Get(context.Background())
	require.Error(t, err)
}
