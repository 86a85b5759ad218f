package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"runharvest/lib/osutil"

	_ "modernc.org/sqlite"
)

const cookieQuery = `
SELECT name, value, host, path, expiry, isSecure, isHttpOnly
FROM moz_cookies
WHERE name = ? AND (host = ? OR host = ? OR host LIKE ?)
ORDER BY lastAccessed DESC
LIMIT 1`

// FirefoxJar reads the cookie from a Firefox profile's cookies.sqlite. It never writes to it.
type FirefoxJar struct {
	// ProfileDir is searched for in the default profile locations when empty.
	ProfileDir string
	Domain     string
	Name       string
}

func profileGlobs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	switch runtime.GOOS {
	case "darwin":
		return []string{filepath.Join(home, "Library", "Application Support", "Firefox", "Profiles", "*")}
	case "windows":
		return []string{filepath.Join(os.Getenv("APPDATA"), "Mozilla", "Firefox", "Profiles", "*")}
	default:
		return []string{
			filepath.Join(home, ".mozilla", "firefox", "*"),
			filepath.Join(home, "snap", "firefox", "common", ".mozilla", "firefox", "*"),
		}
	}
}

// cookieDB finds the most recently modified cookies.sqlite among the candidate profiles.
func (f FirefoxJar) cookieDB() (string, error) {
	if f.ProfileDir != "" {
		path := filepath.Join(f.ProfileDir, "cookies.sqlite")
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		return path, nil
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, pattern := range profileGlobs() {
		dirs, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, dir := range dirs {
			path := filepath.Join(dir, "cookies.sqlite")
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			candidates = append(candidates, candidate{path: path, modTime: info.ModTime().UnixNano()})
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no firefox profile with cookies.sqlite: %w", os.ErrNotExist)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime > candidates[j].modTime
	})
	return candidates[0].path, nil
}

func (f FirefoxJar) Get(ctx context.Context) (*RawCookie, error) {
	path, err := f.cookieDB()
	if err != nil {
		return nil, err
	}
	// firefox holds a lock on the live database
	copied, cleanup, err := osutil.CopyToTemp(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	db, err := sql.Open("sqlite", copied)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	name := f.Name
	if name == "" {
		name = DefaultCookieName
	}
	domain := strings.TrimPrefix(f.Domain, ".")

	var (
		cookie   RawCookie
		expiry   int64
		secure   int
		httpOnly int
	)
	err = db.QueryRowContext(ctx, cookieQuery, name, domain, "."+domain, "%."+domain).Scan(
		&cookie.Name,
		&cookie.Value,
		&cookie.Domain,
		&cookie.Path,
		&expiry,
		&secure,
		&httpOnly,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// newer firefox versions store the expiry in milliseconds
	if expiry > 1e11 {
		expiry /= 1000
	}
	cookie.Expires = ValidExpiry(expiry)
	cookie.Secure = secure != 0
	cookie.HTTPOnly = httpOnly != 0
	return &cookie, nil
}

func (FirefoxJar) Put(context.Context, RawCookie) error {
	return ErrReadOnly
}
