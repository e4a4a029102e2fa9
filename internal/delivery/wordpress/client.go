package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tmdbsync/internal/fetch"
)

const (
	apiPrefix    = "wp-json/wp/v2/"
	maxErrorBody = 4096
)

// StatusError is a non-2xx REST response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Code   string
	Detail string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Retryable reports whether err is worth another attempt: transport failures,
// throttling and server errors are; client errors are not.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Status >= 500 || status.Status == http.StatusTooManyRequests
	}
	return true
}

// client is a minimal wp/v2 REST client.
type client struct {
	base     string
	username string
	password string
	timeout  time.Duration
	doer     fetch.Doer

	terms   sync.Map // taxonomy + "\x00" + lower(name) -> int
	pending singleflight.Group
}

type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
		TermID int `json:"term_id"`
	} `json:"data"`
}

type termResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (c *client) endpoint(path string, query url.Values) string {
	u := strings.TrimRight(c.base, "/") + "/" + apiPrefix + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, header http.Header, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{Method: method, Path: path, Status: resp.StatusCode}
		var rest restError
		if json.Unmarshal(data, &rest) == nil && rest.Code != "" {
			statusErr.Code = rest.Code
			statusErr.Detail = rest.Message
			if rest.Code == "term_exists" && rest.Data.TermID > 0 {
				return &termExistsError{StatusError: statusErr, id: rest.Data.TermID}
			}
		} else {
			statusErr.Detail = strings.TrimSpace(string(data))
		}
		return statusErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type termExistsError struct {
	*StatusError
	id int
}

func (e *termExistsError) Unwrap() error { return e.StatusError }

func (c *client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	return c.do(ctx, http.MethodPost, path, nil, bytes.NewReader(data), header, out)
}

// uploadMedia sends the file at path to the media library and returns its id.
func (c *client) uploadMedia(ctx context.Context, path, title string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	header := http.Header{
		"Content-Type":        []string{contentType},
		"Content-Disposition": []string{mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(path)})},
	}
	var resp struct {
		ID int `json:"id"`
	}
	query := url.Values{"title": []string{title}}
	if err := c.do(ctx, http.MethodPost, "media", query, bytes.NewReader(data), header, &resp); err != nil {
		return 0, err
	}
	if resp.ID == 0 {
		return 0, errors.New("media upload returned no id")
	}
	return resp.ID, nil
}

// termID finds or creates name in taxonomy. Results are cached and
// concurrent lookups of the same term share one request.
func (c *client) termID(ctx context.Context, taxonomy, name string) (int, error) {
	cacheKey := taxonomy + "\x00" + strings.ToLower(name)
	if id, ok := c.terms.Load(cacheKey); ok {
		return id.(int), nil
	}
	v, err, _ := c.pending.Do(cacheKey, func() (any, error) {
		if id, ok := c.terms.Load(cacheKey); ok {
			return id.(int), nil
		}
		id, err := c.resolveTerm(ctx, taxonomy, name)
		if err != nil {
			return 0, err
		}
		c.terms.Store(cacheKey, id)
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (c *client) resolveTerm(ctx context.Context, taxonomy, name string) (int, error) {
	var found []termResponse
	query := url.Values{"search": []string{name}, "per_page": []string{"100"}}
	if err := c.do(ctx, http.MethodGet, taxonomy, query, nil, nil, &found); err != nil {
		return 0, err
	}
	for _, t := range found {
		if strings.EqualFold(strings.TrimSpace(html.UnescapeString(t.Name)), name) {
			return t.ID, nil
		}
	}

	var created termResponse
	err := c.postJSON(ctx, taxonomy, map[string]string{"name": name}, &created)
	var exists *termExistsError
	if errors.As(err, &exists) {
		return exists.id, nil
	}
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

func (c *client) createPost(ctx context.Context, postType string, payload map[string]any) (int, error) {
	var resp struct {
		ID int `json:"id"`
	}
	if err := c.postJSON(ctx, postType, payload, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}
