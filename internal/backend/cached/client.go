package cached

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/logger"
)

const (
	keySubjects   = "subjects"
	keyCategories = "categories:" // + subject id, empty for all
	keyKeywords   = "keywords"
)

// Client serves catalog lists from the cache and forwards everything else.
// Cache failures are logged and fall through to the backend.
type Client struct {
	backend.Client
	cache Cache
	ttl   time.Duration
	log   *logger.Logger
}

func New(next backend.Client, cache Cache, ttl time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Client{Client: next, cache: cache, ttl: ttl, log: log.With("client", "CachedBackend")}
}

func (c *Client) ListSubjects(ctx context.Context) ([]backend.Subject, error) {
	return readThrough(ctx, c, keySubjects, c.Client.ListSubjects)
}

func (c *Client) ListCategories(ctx context.Context, subjectID string) ([]backend.Category, error) {
	return readThrough(ctx, c, keyCategories+subjectID, func(ctx context.Context) ([]backend.Category, error) {
		return c.Client.ListCategories(ctx, subjectID)
	})
}

func (c *Client) ListKeywords(ctx context.Context) ([]backend.Keyword, error) {
	return readThrough(ctx, c, keyKeywords, c.Client.ListKeywords)
}

func (c *Client) CreateSubject(ctx context.Context, s backend.Subject) (backend.Subject, error) {
	out, err := c.Client.CreateSubject(ctx, s)
	if err == nil {
		c.invalidate(ctx, keySubjects)
	}
	return out, err
}

func (c *Client) CreateCategory(ctx context.Context, cat backend.Category) (backend.Category, error) {
	out, err := c.Client.CreateCategory(ctx, cat)
	if err == nil {
		c.invalidate(ctx, keyCategories, keyCategories+out.SubjectID)
	}
	return out, err
}

func (c *Client) CreateKeyword(ctx context.Context, k backend.Keyword) (backend.Keyword, error) {
	out, err := c.Client.CreateKeyword(ctx, k)
	if err == nil {
		c.invalidate(ctx, keyKeywords)
	}
	return out, err
}

func (c *Client) invalidate(ctx context.Context, keys ...string) {
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.log.Warn("cache invalidate failed", "keys", keys, "error", err)
	}
}

func readThrough[T any](ctx context.Context, c *Client, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	var out []T
	hit, err := c.cache.Get(ctx, key, &out)
	if err != nil {
		c.log.Warn("cache read failed", "key", key, "error", err)
	}
	if hit && err == nil {
		return out, nil
	}
	out, err = load(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, out, c.ttl); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}
	return out, nil
}
