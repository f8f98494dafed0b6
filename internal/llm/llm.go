// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm issues templated prompts to a text generation API and parses
// the JSON replies into typed shapes. Replies are cached in the
// api_responses tier so a repeated prompt never reaches the remote model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/cafe-collector/internal/cache"
	"github.com/pdiddy/cafe-collector/internal/metrics"
	"github.com/pdiddy/cafe-collector/internal/retry"
	"github.com/pdiddy/cafe-collector/pkg/types"
)

// Prompt is one rendered request to the model.
type Prompt struct {
	System string
	User   string

	// JSON asks the backend to constrain the reply to a JSON object.
	JSON bool
}

// Backend sends a prompt to a text generation API and returns the reply text.
// Implementations classify failures into the kinds in pkg/types.
type Backend interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Shape is a reply type that can check its own structure after decoding.
type Shape interface {
	Validate() error
}

// cachedReply is what the api_responses tier holds for one prompt.
type cachedReply struct {
	Raw    string          `json:"raw"`
	Parsed json.RawMessage `json:"parsed"`
}

// Client renders templates, consults the cache and calls the backend
// through the retry policy and a rate limiter.
type Client struct {
	backend Backend
	store   cache.Store
	model   string
	ttl     time.Duration
	policy  retry.Policy
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// Options configures a Client.
type Options struct {
	// Model is part of the cache key so switching models does not reuse replies.
	Model string

	// TTL is the lifetime of cached replies.
	TTL time.Duration

	Policy retry.Policy

	// RequestsPerMinute caps calls to the backend. Zero disables the limit.
	RequestsPerMinute float64

	Metrics *metrics.Metrics
}

// NewClient returns a Client over backend. store may be nil to disable caching.
func NewClient(backend Backend, store cache.Store, opts Options) *Client {
	return &Client{
		backend: backend,
		store:   store,
		model:   opts.Model,
		ttl:     opts.TTL,
		policy:  opts.Policy,
		limiter: newLimiter(opts.RequestsPerMinute),
		metrics: opts.Metrics,
	}
}

func newLimiter(perMinute float64) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perMinute/60), 1)
}

// Generate renders tmpl with params and decodes the model's reply into out,
// which must be a non-nil pointer. A cached reply for the same model,
// template version and rendered prompt is returned without a remote call.
// A reply that is not JSON or fails out.Validate is retried as
// ErrMalformedResponse until the policy is exhausted.
func (c *Client) Generate(ctx context.Context, tmpl *Template, params any, out Shape) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("generate %s: out must be a non-nil pointer", tmpl.Name)
	}

	prompt, err := tmpl.Render(params)
	if err != nil {
		return fmt.Errorf("rendering %s prompt: %w", tmpl.Name, err)
	}
	key := cache.Key(c.model, tmpl.Name, tmpl.Version, prompt.System, prompt.User)

	if c.fromCache(ctx, key, tmpl.Name, out) {
		return nil
	}

	raw, err := retry.Do(ctx, c.policy, tmpl.Name, func(ctx context.Context) (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
		start := time.Now()
		text, err := c.backend.Complete(ctx, prompt)
		c.metrics.RemoteCall(c.backend.Name(), err, time.Since(start))
		if err != nil {
			return "", err
		}
		body := ExtractJSON(text)
		rv.Elem().SetZero()
		if err := decode(body, out); err != nil {
			return "", err
		}
		return body, nil
	}, retry.DefaultClassifier)
	if err != nil {
		return err
	}

	c.toCache(ctx, key, raw, out)
	return nil
}

func (c *Client) fromCache(ctx context.Context, key, name string, out Shape) bool {
	if c.store == nil {
		return false
	}
	hit, ok := cache.GetJSON[cachedReply](ctx, c.store, cache.TierAPIResponses, key)
	if ok {
		reflect.ValueOf(out).Elem().SetZero()
		if err := decode(string(hit.Parsed), out); err != nil {
			slog.Debug("ignoring cached reply", "template", name, "error", err)
			ok = false
		}
	}
	c.metrics.CacheLookup(string(cache.TierAPIResponses), ok)
	if ok {
		slog.Debug("llm cache hit", "template", name)
	}
	return ok
}

func (c *Client) toCache(ctx context.Context, key, raw string, out Shape) {
	if c.store == nil {
		return
	}
	parsed, err := json.Marshal(out)
	if err != nil {
		slog.Warn("marshaling reply for cache", "error", err)
		return
	}
	if err := cache.PutJSON(ctx, c.store, cache.TierAPIResponses, key, cachedReply{Raw: raw, Parsed: parsed}, c.ttl); err != nil {
		slog.Warn("caching llm reply", "error", err)
	}
}

// decode parses body into out and validates it. Both failures are
// reported as ErrMalformedResponse.
func decode(body string, out Shape) error {
	if err := json.Unmarshal([]byte(body), out); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return types.Malformed("reply is not JSON: %v", err)
		}
		return types.Malformed("reply has unexpected shape: %v", err)
	}
	if err := out.Validate(); err != nil {
		return types.Malformed("%v", err)
	}
	return nil
}

// ExtractJSON returns the JSON payload of a model reply, removing Markdown
// code fences and any prose around the outermost object or array.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	if s == "" || s[0] == '{' || s[0] == '[' {
		return s
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s
	}
	return s[start : end+1]
}
