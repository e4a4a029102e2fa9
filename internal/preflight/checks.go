package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const checkTimeout = 5 * time.Second

// CheckTMDB verifies that the TMDB API is reachable and the key is accepted.
// It issues a single GET against /configuration with no retries.
func CheckTMDB(ctx context.Context, baseURL, apiKey string) Result {
	const name = "TMDB"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "missing api key"}
	}

	endpoint := base + "/configuration?" + url.Values{"api_key": {strings.TrimSpace(apiKey)}}.Encode()
	status, err := get(ctx, endpoint, nil)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	switch {
	case status == http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "API reachable"}
	case status == http.StatusUnauthorized:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case status == http.StatusTooManyRequests:
		// Reachable; the limiter handles the quota once the run starts.
		return Result{Name: name, Passed: true, Detail: "API reachable (rate limited)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", status)}
	}
}

// CheckStorage verifies that the storage listing can be fetched.
func CheckStorage(ctx context.Context, storageURL string) Result {
	const name = "Storage"

	storageURL = strings.TrimSpace(storageURL)
	if storageURL == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	status, err := get(ctx, storageURL, nil)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	if status >= 200 && status < 300 {
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
	return Result{Name: name, Detail: fmt.Sprintf("listing failed (%d)", status)}
}

// CheckDestination verifies WordPress REST reachability and credentials.
func CheckDestination(ctx context.Context, name, siteURL, username, password string) Result {
	if name = strings.TrimSpace(name); name == "" {
		name = siteURL
	}
	name = "Destination " + name

	base := strings.TrimRight(strings.TrimSpace(siteURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return Result{Name: name, Detail: "missing credentials"}
	}

	status, err := get(ctx, base+"/wp-json/wp/v2/users/me", func(req *http.Request) {
		req.SetBasicAuth(strings.TrimSpace(username), password)
	})
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	switch status {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (check username and application password)"}
	case http.StatusNotFound:
		return Result{Name: name, Detail: "REST API not found (is /wp-json enabled?)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", status)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func get(ctx context.Context, endpoint string, prepare func(*http.Request)) (int, error) {
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	if prepare != nil {
		prepare(req)
	}
	client := &http.Client{Timeout: checkTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// summarizeError produces a human-readable summary for connectivity failures.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (unreachable)"
	}
	return fmt.Sprintf("unreachable (%v)", err)
}
