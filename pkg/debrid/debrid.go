// Package debrid defines the common contract of the debrid providers and
// the pool through which the orchestrator talks to them.
package debrid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/keypop3750/autostream/pkg/cache"
	"github.com/keypop3750/autostream/pkg/fetch"
)

// Kind classifies a resolver failure. The play handler maps kinds to HTTP
// statuses; the listing pipeline absorbs all of them.
type Kind int

const (
	KindUnknown Kind = iota
	// Invalid API key — don't retry with the same key
	KindAuthInvalid
	// The provider rate-limited us
	KindRateLimited
	// Temporary provider failure
	KindTransient
	// The provider refuses this server's IP ("no server" responses).
	// Deterministic for a given environment, not a code bug.
	KindBlocked
	// The job exposes no files, or the wanted file is missing
	KindNoFiles
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindAuthInvalid:
		return "auth_invalid"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindBlocked:
		return "blocked"
	case KindNoFiles:
		return "no_files"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error is a classified resolver failure.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Msg
}

func NewError(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// KindOf extracts the failure kind from an error chain, KindUnknown when
// the error isn't a classified one.
func KindOf(err error) Kind {
	var debridErr *Error
	if errors.As(err, &debridErr) {
		return debridErr.Kind
	}
	return KindUnknown
}

// ResolveOptions carry what a resolver needs to pick the right file inside
// a multi-file torrent.
type ResolveOptions struct {
	// Desired file index from the candidate, -1 when unknown
	FileIndex int
	// Series metadata for picking the episode file out of a season pack.
	// Season and Episode are 0 for movies.
	Season  int
	Episode int
}

// Resolver is the uniform contract of all five debrid providers:
// register the hash, poll until files materialize, pick the right file,
// unlock it and return the final direct URL.
type Resolver interface {
	// Resolve turns an info hash into a direct HTTPS URL.
	Resolve(ctx context.Context, infoHash, apiKey string, opts ResolveOptions) (string, error)
	// TestKey probes the provider's user-info endpoint with the key.
	TestKey(ctx context.Context, apiKey string) error
	// Tag is the short display tag, like "AD" or "RD".
	Tag() string
}

// Polling parameters of the uniform state machine.
const (
	PollInterval = 1500 * time.Millisecond
	PollBudget   = 12 * time.Second
)

// Poll calls check on a fixed interval until it reports done, the budget is
// spent or the context ends. A spent budget yields a timeout error.
func Poll(ctx context.Context, check func(ctx context.Context) (bool, error)) error {
	deadline := time.Now().Add(PollBudget)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return NewError(KindTimeout, "job didn't expose files within %v", PollBudget)
		}
		select {
		case <-ctx.Done():
			return NewError(KindTimeout, "context ended while polling: %v", ctx.Err())
		case <-ticker.C:
		}
	}
}

// MagnetURL builds a minimal magnet link for registering an info hash.
func MagnetURL(infoHash string) string {
	return "magnet:?xt=urn:btih:" + strings.ToLower(infoHash)
}

// KindFromStatus maps an upstream HTTP status to a failure kind.
func KindFromStatus(code int) Kind {
	switch {
	case code == 401 || code == 403:
		return KindAuthInvalid
	case code == 429:
		return KindRateLimited
	case code >= 500:
		return KindTransient
	}
	return KindUnknown
}

// ClassifyFetchErr maps transport-level failures to classified errors.
func ClassifyFetchErr(err error) *Error {
	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) {
		return NewError(KindFromStatus(statusErr.Code), "upstream responded with status %v", statusErr.Code)
	}
	if errors.Is(err, fetch.ErrTimeout) {
		return NewError(KindTimeout, "request timed out")
	}
	return NewError(KindTransient, "%v", err)
}

// Finalize follows redirects on a freshly unlocked URL and warms the CDN
// edge with a tiny ranged request. Best effort, the unlocked URL is kept
// when the HEAD fails.
func Finalize(ctx context.Context, fetcher *fetch.Client, streamURL string) string {
	if finalURL, err := fetcher.Head(ctx, streamURL, nil); err == nil && finalURL != "" {
		streamURL = finalURL
	}
	fetcher.WarmRange(ctx, streamURL)
	return streamURL
}

// Caches are the per-provider artifact caches, all LRU-bounded.
type Caches struct {
	// (apiKey, hash) → file list
	Files *cache.Cache[[]File]
	// (apiKey, hash, fileID) → unlocked direct URL
	Links *cache.Cache[string]
	// (apiKey, hash) → provider-side job/transfer ID
	Jobs *cache.Cache[string]
}

// NewCaches creates the artifact caches with the standard TTLs:
// file lists 24h, unlocked links 1h, job metadata 6h.
func NewCaches(size int) Caches {
	return Caches{
		Files: cache.New[[]File](size, 24*time.Hour),
		Links: cache.New[string](size, time.Hour),
		Jobs:  cache.New[string](size, 6*time.Hour),
	}
}

// FilesKey builds the cache key for a user's file list of a torrent.
func FilesKey(apiKey, infoHash string) string {
	return apiKey + ":" + infoHash
}

// LinkKey builds the cache key for an unlocked file URL.
func LinkKey(apiKey, infoHash, fileID string) string {
	return apiKey + ":" + infoHash + ":" + fileID
}

// maxConcurrentResolves bounds resolver work process-wide so that request
// parallelism can't hammer a single provider.
const maxConcurrentResolves = 3

// keyProbeAge is how long a successful key probe is trusted.
const keyProbeAge = 5 * time.Minute

// Pool owns the provider clients, the global resolve semaphore and the
// key-probe cache. The orchestrator selects a provider by its query key
// ("ad", "rd", "pm", "tb", "oc").
type Pool struct {
	resolvers map[string]Resolver
	sem       *semaphore.Weighted
	keyCache  *gocache.Cache
	logger    *zap.Logger
}

// ProviderOrder is the deterministic provider priority used for manifest
// tagging and key selection.
var ProviderOrder = []string{"ad", "rd", "pm", "tb", "oc"}

func NewPool(resolvers map[string]Resolver, logger *zap.Logger) *Pool {
	return &Pool{
		resolvers: resolvers,
		sem:       semaphore.NewWeighted(maxConcurrentResolves),
		keyCache:  gocache.New(keyProbeAge, 10*time.Minute),
		logger:    logger,
	}
}

// Resolver returns the client for a provider query key.
func (p *Pool) Resolver(provider string) (Resolver, bool) {
	r, found := p.resolvers[provider]
	return r, found
}

// Resolve runs one resolution under the global semaphore.
func (p *Pool) Resolve(ctx context.Context, provider, infoHash, apiKey string, opts ResolveOptions) (string, error) {
	resolver, found := p.resolvers[provider]
	if !found {
		return "", NewError(KindUnknown, "unknown debrid provider %q", provider)
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", NewError(KindTimeout, "couldn't acquire resolve slot: %v", err)
	}
	defer p.sem.Release(1)
	return resolver.Resolve(ctx, infoHash, apiKey, opts)
}

// TestKey probes a provider key, trusting a successful probe for 5 minutes.
// Only valid keys are cached — an invalid key may become valid when the
// user renews their subscription, and that should be picked up promptly.
func (p *Pool) TestKey(ctx context.Context, provider, apiKey string) error {
	resolver, found := p.resolvers[provider]
	if !found {
		return NewError(KindUnknown, "unknown debrid provider %q", provider)
	}
	cacheKey := provider + ":" + apiKey
	if _, found := p.keyCache.Get(cacheKey); found {
		return nil
	}
	if err := resolver.TestKey(ctx, apiKey); err != nil {
		return err
	}
	p.keyCache.Set(cacheKey, time.Now(), keyProbeAge)
	return nil
}

// Tag returns the display tag for a provider key, "" when unknown.
func (p *Pool) Tag(provider string) string {
	if resolver, found := p.resolvers[provider]; found {
		return resolver.Tag()
	}
	return ""
}
