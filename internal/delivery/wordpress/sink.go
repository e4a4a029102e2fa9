package wordpress

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"tmdbsync/internal/clock"
	"tmdbsync/internal/delivery"
	"tmdbsync/internal/fetch"
	"tmdbsync/internal/logging"
	"tmdbsync/internal/media"
	"tmdbsync/internal/services"
)

// DefaultPolicy retries each REST call five times with 1-3s jitter.
var DefaultPolicy = delivery.RetryPolicy{
	Attempts:  5,
	MinDelay:  time.Second,
	MaxDelay:  3 * time.Second,
	Retryable: Retryable,
}

// Options configures a Sink.
type Options struct {
	// Name is the destination identifier and ledger column; defaults to URL.
	Name     string
	URL      string
	Username string
	Password string
	Tags     []string
	// FieldLimit caps every list field of a post.
	FieldLimit int
	Timeout    time.Duration
	Assets     *delivery.AssetCache
	Policy     delivery.RetryPolicy
	Doer       fetch.Doer
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Sink publishes records to one WordPress site.
type Sink struct {
	name   string
	tags   []string
	limit  int
	assets *delivery.AssetCache
	policy delivery.RetryPolicy
	clock  clock.Clock
	logger *slog.Logger
	api    *client
}

// New returns a sink for the site at opts.URL.
func New(opts Options) (*Sink, error) {
	if opts.URL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "delivery", "wordpress", "destination url is empty", nil)
	}
	if opts.Assets == nil {
		return nil, services.Wrap(services.ErrConfiguration, "delivery", "wordpress", "asset cache is required", nil)
	}
	name := opts.Name
	if name == "" {
		name = opts.URL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Policy.Attempts <= 0 {
		opts.Policy = DefaultPolicy
	}
	if opts.Doer == nil {
		opts.Doer = &http.Client{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	return &Sink{
		name:   name,
		tags:   slices.Clone(opts.Tags),
		limit:  opts.FieldLimit,
		assets: opts.Assets,
		policy: opts.Policy,
		clock:  opts.Clock,
		logger: logging.NewComponentLogger(opts.Logger, "wordpress").With(logging.Destination(name)),
		api: &client{
			base:     opts.URL,
			username: opts.Username,
			password: opts.Password,
			timeout:  opts.Timeout,
			doer:     opts.Doer,
		},
	}, nil
}

// Name returns the destination identifier.
func (s *Sink) Name() string { return s.name }

// Deliver uploads the poster, resolves terms and publishes the post.
func (s *Sink) Deliver(ctx context.Context, record *media.Record) error {
	post := BuildPost(record, s.tags, s.limit)
	logger := logging.WithContext(ctx, s.logger)

	if post.ImageURL == "" {
		return s.fail("image", post.Title, errors.New("record has no poster"))
	}
	file, err := s.assets.Fetch(ctx, post.ImageURL)
	if err != nil {
		return err
	}

	var mediaID int
	if err := s.retry(ctx, func(ctx context.Context) error {
		var uploadErr error
		mediaID, uploadErr = s.api.uploadMedia(ctx, file, post.Title)
		return uploadErr
	}); err != nil {
		return s.fail("upload image", post.Title, err)
	}

	payload := map[string]any{
		"title":          post.Title,
		"status":         "publish",
		"comment_status": "open",
		"featured_media": mediaID,
		"meta":           post.Meta,
	}
	for taxonomy, names := range post.Terms {
		ids, err := s.termIDs(ctx, taxonomy, names)
		if err != nil {
			return s.fail("resolve "+taxonomy, post.Title, err)
		}
		payload[taxonomy] = ids
	}
	tagIDs, err := s.termIDs(ctx, tagTaxonomy, post.Tags)
	if err != nil {
		return s.fail("resolve tags", post.Title, err)
	}
	payload[tagTaxonomy] = tagIDs

	var postID int
	if err := s.retry(ctx, func(ctx context.Context) error {
		var createErr error
		postID, createErr = s.api.createPost(ctx, post.Type, payload)
		return createErr
	}); err != nil {
		return s.fail("publish", post.Title, err)
	}

	logger.Info("post published",
		logging.String(logging.FieldEventType, "post_published"),
		logging.String("title", post.Title),
		logging.Int("post_id", postID),
		logging.Int("media_id", mediaID))
	return nil
}

func (s *Sink) termIDs(ctx context.Context, taxonomy string, names []string) ([]int, error) {
	ids := make([]int, 0, len(names))
	seen := make(map[int]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		var id int
		if err := s.retry(ctx, func(ctx context.Context) error {
			var termErr error
			id, termErr = s.api.termID(ctx, taxonomy, name)
			return termErr
		}); err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Sink) retry(ctx context.Context, fn func(context.Context) error) error {
	return delivery.Retry(ctx, s.clock, s.policy, fn)
}

func (s *Sink) fail(op, title string, err error) error {
	return services.Wrap(services.ErrDelivery, "delivery", op, s.name+": "+title, err)
}
