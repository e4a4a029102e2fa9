package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tmdbsync/internal/fetch"
	"tmdbsync/internal/logging"
)

// Yandex is a Transformer backed by the Yandex Translate v1.5 API.
type Yandex struct {
	apiKey  string
	baseURL string
	lang    string
	doer    fetch.Doer
	logger  *slog.Logger
}

// YandexOptions configures a Yandex transformer.
type YandexOptions struct {
	APIKey  string
	BaseURL string
	// Source may be empty or "auto" to let the service detect it.
	Source  string
	Target  string
	Timeout time.Duration
	Doer    fetch.Doer
	Logger  *slog.Logger
}

type yandexResponse struct {
	Code    int      `json:"code"`
	Lang    string   `json:"lang"`
	Text    []string `json:"text"`
	Message string   `json:"message"`
}

// NewYandex validates opts and builds the transformer.
func NewYandex(opts YandexOptions) (*Yandex, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("yandex api key required")
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("yandex base url required")
	}
	target := strings.ToLower(strings.TrimSpace(opts.Target))
	if target == "" {
		return nil, errors.New("translation target language required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Doer == nil {
		opts.Doer = &http.Client{Timeout: opts.Timeout}
	}
	return &Yandex{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: strings.TrimSpace(opts.BaseURL),
		lang:    LanguagePair(opts.Source, target),
		doer:    opts.Doer,
		logger:  logging.NewComponentLogger(opts.Logger, "translate"),
	}, nil
}

// LanguagePair renders the lang parameter: "src-dst", or "dst" when the source
// is left to detection.
func LanguagePair(source, target string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" || source == "auto" {
		return target
	}
	return source + "-" + target
}

func (y *Yandex) Transform(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	form := url.Values{}
	form.Set("key", y.apiKey)
	form.Set("lang", y.lang)
	for _, t := range texts {
		form.Add("text", t)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := y.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read translate response: %w", err)
	}
	var payload yandexResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode translate response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || (payload.Code != 0 && payload.Code != http.StatusOK) {
		return nil, fmt.Errorf("translate returned %d: %s", resp.StatusCode, payload.Message)
	}
	y.logger.Debug("translated batch",
		logging.Int("strings", len(texts)),
		logging.String("lang", y.lang),
		logging.Duration("latency", time.Since(started)),
	)
	return payload.Text, nil
}
