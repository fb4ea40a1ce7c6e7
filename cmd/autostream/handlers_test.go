package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keypop3750/autostream/pkg/debrid"
	"github.com/keypop3750/autostream/pkg/reliability"
)

const testInfoHash = "aaaabbbbccccddddeeeeffff0000111122223333"

type stubResolver struct {
	streamURL  string
	resolveErr error
	testKeyErr error
	lastOpts   debrid.ResolveOptions
}

func (s *stubResolver) Resolve(ctx context.Context, infoHash, apiKey string, opts debrid.ResolveOptions) (string, error) {
	s.lastOpts = opts
	if s.resolveErr != nil {
		return "", s.resolveErr
	}
	return s.streamURL, nil
}

func (s *stubResolver) TestKey(ctx context.Context, apiKey string) error {
	return s.testKeyErr
}

func (s *stubResolver) Tag() string {
	return "RD"
}

var _ debrid.Resolver = (*stubResolver)(nil)

func newPlayApp(stub *stubResolver) (*fiber.App, *reliability.Store) {
	pool := debrid.NewPool(map[string]debrid.Resolver{"rd": stub}, zap.NewNop())
	relStore := reliability.NewStore(reliability.DefaultStoreOpts)
	providerHosts := map[string]string{"rd": "api.real-debrid.com"}
	app := fiber.New()
	app.Get("/play", createPlayHandler(pool, relStore, providerHosts, zap.NewNop()))
	return app, relStore
}

func TestPlayRedirects(t *testing.T) {
	stub := &stubResolver{streamURL: "https://cdn.example.com/stream.mkv"}
	app, relStore := newPlayApp(stub)

	res, err := app.Test(httptest.NewRequest("GET", "/play?ih="+testInfoHash+"&idx=2&imdb=tt0944947:2:3&rd=RDKEY1234", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, fiber.StatusFound, res.StatusCode)
	require.Equal(t, "https://cdn.example.com/stream.mkv", res.Header.Get("Location"))
	require.Contains(t, res.Header.Get("Cache-Control"), "private")

	// Season and episode flow through to the resolver for season packs
	require.Equal(t, 2, stub.lastOpts.FileIndex)
	require.Equal(t, 2, stub.lastOpts.Season)
	require.Equal(t, 3, stub.lastOpts.Episode)

	// A successful resolution pays back the target host's penalty
	require.Equal(t, 0, relStore.Penalty("cdn.example.com"))
}

func TestPlayValidation(t *testing.T) {
	app, _ := newPlayApp(&stubResolver{})

	for _, test := range []struct {
		name  string
		query string
	}{
		{"missing hash", "rd=RDKEY1234"},
		{"short hash", "ih=abc&rd=RDKEY1234"},
		{"non-hex hash", "ih=" + strings.Repeat("z", 40) + "&rd=RDKEY1234"},
		{"negative index", "ih=" + testInfoHash + "&idx=-1&rd=RDKEY1234"},
		{"no provider key", "ih=" + testInfoHash},
		{"bad imdb", "ih=" + testInfoHash + "&imdb=notanid&rd=RDKEY1234"},
	} {
		t.Run(test.name, func(t *testing.T) {
			res, err := app.Test(httptest.NewRequest("GET", "/play?"+test.query, nil))
			require.NoError(t, err)
			defer res.Body.Close()
			require.Equal(t, fiber.StatusBadRequest, res.StatusCode)
		})
	}
}

func TestPlayErrorStatuses(t *testing.T) {
	for _, test := range []struct {
		name   string
		kind   debrid.Kind
		status int
	}{
		{"auth", debrid.KindAuthInvalid, fiber.StatusUnauthorized},
		{"rate limit", debrid.KindRateLimited, fiber.StatusTooManyRequests},
		{"no files", debrid.KindNoFiles, fiber.StatusNotFound},
		{"timeout", debrid.KindTimeout, fiber.StatusGatewayTimeout},
		{"transient", debrid.KindTransient, fiber.StatusBadGateway},
		{"blocked", debrid.KindBlocked, fiber.StatusBadGateway},
	} {
		t.Run(test.name, func(t *testing.T) {
			stub := &stubResolver{resolveErr: debrid.NewError(test.kind, "nope")}
			app, relStore := newPlayApp(stub)

			res, err := app.Test(httptest.NewRequest("GET", "/play?ih="+testInfoHash+"&rd=RDKEY1234", nil))
			require.NoError(t, err)
			defer res.Body.Close()
			require.Equal(t, test.status, res.StatusCode)

			body, _ := io.ReadAll(res.Body)
			var payload map[string]string
			require.NoError(t, json.Unmarshal(body, &payload))
			require.Equal(t, test.kind.String(), payload["error"])

			// A failed resolution penalizes the provider's API host
			require.Equal(t, reliability.DefaultStep, relStore.Penalty("api.real-debrid.com"))
		})
	}
}

func TestManifest(t *testing.T) {
	pool := debrid.NewPool(map[string]debrid.Resolver{"rd": &stubResolver{}}, zap.NewNop())
	app := fiber.New()
	app.Get("/manifest.json", createManifestHandler(pool, zap.NewNop()))

	res, err := app.Test(httptest.NewRequest("GET", "/manifest.json", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	body, _ := io.ReadAll(res.Body)
	name := string(body)
	require.Contains(t, name, `"com.autostream.addon"`)
	require.Contains(t, name, `"AutoStream"`)
	require.NotContains(t, name, "AutoStream (RD)")
}

func TestManifestTagsValidatedProvider(t *testing.T) {
	pool := debrid.NewPool(map[string]debrid.Resolver{"rd": &stubResolver{}}, zap.NewNop())
	app := fiber.New()
	app.Get("/manifest.json", createManifestHandler(pool, zap.NewNop()))

	res, err := app.Test(httptest.NewRequest("GET", "/manifest.json?rd=RDKEY1234", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	require.Contains(t, string(body), "AutoStream (RD)")
}

func TestManifestSkipsTagOnInvalidKey(t *testing.T) {
	stub := &stubResolver{testKeyErr: debrid.NewError(debrid.KindAuthInvalid, "bad key")}
	pool := debrid.NewPool(map[string]debrid.Resolver{"rd": stub}, zap.NewNop())
	app := fiber.New()
	app.Get("/manifest.json", createManifestHandler(pool, zap.NewNop()))

	res, err := app.Test(httptest.NewRequest("GET", "/manifest.json?rd=RDKEY1234", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	require.NotContains(t, string(body), "AutoStream (RD)")
}

func TestParseContentID(t *testing.T) {
	for _, test := range []struct {
		in         string
		base       string
		season     int
		episode    int
		hasEpisode bool
		ok         bool
	}{
		{in: "tt0111161", base: "tt0111161", ok: true},
		{in: "tmdb:603", base: "tmdb:603", ok: true},
		{in: "tt0944947:2:3", base: "tt0944947", season: 2, episode: 3, hasEpisode: true, ok: true},
		{in: "tmdb:1399:2:3", base: "tmdb:1399", season: 2, episode: 3, hasEpisode: true, ok: true},
		{in: "notanid"},
		{in: "tt0944947:2"},
		{in: "tmdb:"},
		{in: ""},
	} {
		t.Run(test.in, func(t *testing.T) {
			cid, ok := parseContentID(test.in)
			require.Equal(t, test.ok, ok)
			if !ok {
				return
			}
			require.Equal(t, test.base, cid.base)
			require.Equal(t, test.season, cid.season)
			require.Equal(t, test.episode, cid.episode)
			require.Equal(t, test.hasEpisode, cid.hasEpisode)
		})
	}
}

func TestPlayParsesTMDBEpisode(t *testing.T) {
	stub := &stubResolver{streamURL: "https://cdn.example.com/stream.mkv"}
	app, _ := newPlayApp(stub)

	res, err := app.Test(httptest.NewRequest("GET", "/play?ih="+testInfoHash+"&imdb=tmdb:1399:2:3&rd=RDKEY1234", nil))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, fiber.StatusFound, res.StatusCode)
	require.Equal(t, 2, stub.lastOpts.Season)
	require.Equal(t, 3, stub.lastOpts.Episode)
}

func TestPlayRejectsNonHTTPLocation(t *testing.T) {
	stub := &stubResolver{streamURL: "ftp://cdn.example.com/stream.mkv"}
	app, relStore := newPlayApp(stub)

	res, err := app.Test(httptest.NewRequest("GET", "/play?ih="+testInfoHash+"&rd=RDKEY1234", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, fiber.StatusBadGateway, res.StatusCode)
	require.Empty(t, res.Header.Get("Location"))
	require.Equal(t, reliability.DefaultStep, relStore.Penalty("api.real-debrid.com"))
}

func TestStatusForKind(t *testing.T) {
	require.Equal(t, fiber.StatusUnauthorized, statusForKind(debrid.KindAuthInvalid))
	require.Equal(t, fiber.StatusBadGateway, statusForKind(debrid.KindUnknown))
}

func TestHostOf(t *testing.T) {
	require.Equal(t, "cdn.example.com", hostOf("https://CDN.example.com:8080/path?x=1"))
	require.Equal(t, "", hostOf("not a url"))
}

func TestReliabilityClearHandler(t *testing.T) {
	relStore := reliability.NewStore(reliability.DefaultStoreOpts)
	relStore.OnFail("a.example.com")
	relStore.OnFail("b.example.com")

	app := fiber.New()
	app.Post("/reliability/clear", createReliabilityClearHandler(relStore, zap.NewNop()))

	req := httptest.NewRequest("POST", "/reliability/clear", strings.NewReader(`{"url": "https://a.example.com/stream.mkv"}`))
	req.Header.Set("Content-Type", "application/json")
	res, err := app.Test(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, 0, relStore.Penalty("a.example.com"))
	require.Equal(t, reliability.DefaultStep, relStore.Penalty("b.example.com"))

	// An empty body clears everything
	req = httptest.NewRequest("POST", "/reliability/clear", nil)
	res, err = app.Test(req)
	require.NoError(t, err)
	res.Body.Close()
	count, _, _ := relStore.Stats()
	require.Equal(t, 0, count)
}
