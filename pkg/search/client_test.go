package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keypop3750/autostream/pkg/stream"
)

type fakeFinder struct {
	origin     stream.Origin
	candidates []stream.Candidate
	err        error
	calls      int
}

func (f *fakeFinder) Find(ctx context.Context, req Request) ([]stream.Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

func (f *fakeFinder) Origin() stream.Origin {
	return f.origin
}

var _ Finder = (*fakeFinder)(nil)

func TestFindMergesInFixedOrder(t *testing.T) {
	torrentio := &fakeFinder{origin: stream.OriginTorrentio, candidates: []stream.Candidate{
		{InfoHash: "aaaabbbbccccddddeeeeffff0000111122223333", Name: "from torrentio"},
	}}
	tpb := &fakeFinder{origin: stream.OriginTPB, candidates: []stream.Candidate{
		{InfoHash: "1111222233334444555566667777888899990000", Name: "from tpb"},
	}}
	nuvio := &fakeFinder{origin: stream.OriginNuvio}
	client := NewClient(DefaultClientOpts, torrentio, tpb, nuvio, zap.NewNop())

	merged := client.Find(context.Background(), Request{Type: TypeMovie, IMDBID: "tt0111161"})
	require.Len(t, merged, 2)
	require.Equal(t, "from torrentio", merged[0].Name)
	require.Equal(t, stream.OriginTorrentio, merged[0].Origin)
	require.Equal(t, "from tpb", merged[1].Name)
	require.Equal(t, stream.OriginTPB, merged[1].Origin)
}

func TestFindDeduplicatesInfoHashes(t *testing.T) {
	torrentio := &fakeFinder{origin: stream.OriginTorrentio, candidates: []stream.Candidate{
		{InfoHash: "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333", Name: "first"},
	}}
	tpb := &fakeFinder{origin: stream.OriginTPB, candidates: []stream.Candidate{
		{InfoHash: "aaaabbbbccccddddeeeeffff0000111122223333", Name: "duplicate"},
	}}
	client := NewClient(DefaultClientOpts, torrentio, tpb, &fakeFinder{origin: stream.OriginNuvio}, zap.NewNop())

	merged := client.Find(context.Background(), Request{Type: TypeMovie, IMDBID: "tt0111161"})
	require.Len(t, merged, 1)
	// First occurrence wins, comparison is case-insensitive
	require.Equal(t, "first", merged[0].Name)
}

func TestFindAbsorbsProviderFailures(t *testing.T) {
	torrentio := &fakeFinder{origin: stream.OriginTorrentio, err: errors.New("upstream down")}
	tpb := &fakeFinder{origin: stream.OriginTPB, candidates: []stream.Candidate{
		{InfoHash: "1111222233334444555566667777888899990000", Name: "survivor"},
	}}
	client := NewClient(DefaultClientOpts, torrentio, tpb, &fakeFinder{origin: stream.OriginNuvio}, zap.NewNop())

	merged := client.Find(context.Background(), Request{Type: TypeMovie, IMDBID: "tt0111161"})
	require.Len(t, merged, 1)
	require.Equal(t, "survivor", merged[0].Name)
}

func TestFindDropsUnusableCandidates(t *testing.T) {
	torrentio := &fakeFinder{origin: stream.OriginTorrentio, candidates: []stream.Candidate{
		{Name: "no hash and no url"},
	}}
	client := NewClient(DefaultClientOpts, torrentio, &fakeFinder{origin: stream.OriginTPB}, &fakeFinder{origin: stream.OriginNuvio}, zap.NewNop())

	merged := client.Find(context.Background(), Request{Type: TypeMovie, IMDBID: "tt0111161"})
	require.Empty(t, merged)
}

func TestFindNuvioIsOptIn(t *testing.T) {
	nuvio := &fakeFinder{origin: stream.OriginNuvio, candidates: []stream.Candidate{
		{URL: "https://host.example.com/stream.mp4", Name: "direct"},
	}}
	client := NewClient(DefaultClientOpts, &fakeFinder{origin: stream.OriginTorrentio}, &fakeFinder{origin: stream.OriginTPB}, nuvio, zap.NewNop())

	merged := client.Find(context.Background(), Request{Type: TypeMovie, IMDBID: "tt0111161"})
	require.Empty(t, merged)
	require.Equal(t, 0, nuvio.calls)

	merged = client.Find(context.Background(), Request{Type: TypeMovie, IMDBID: "tt0111161", IncludeNuvio: true})
	require.Len(t, merged, 1)
}

func TestFindOnlyRestrictsFanOut(t *testing.T) {
	torrentio := &fakeFinder{origin: stream.OriginTorrentio}
	tpb := &fakeFinder{origin: stream.OriginTPB, candidates: []stream.Candidate{
		{InfoHash: "1111222233334444555566667777888899990000", Name: "tpb only"},
	}}
	client := NewClient(DefaultClientOpts, torrentio, tpb, &fakeFinder{origin: stream.OriginNuvio}, zap.NewNop())

	merged := client.Find(context.Background(), Request{Type: TypeMovie, IMDBID: "tt0111161", Only: "tpb"})
	require.Len(t, merged, 1)
	require.Equal(t, 0, torrentio.calls)
}

func TestRequestID(t *testing.T) {
	require.Equal(t, "tt0111161", Request{Type: TypeMovie, IMDBID: "tt0111161"}.ID())
	require.Equal(t, "tt0944947:2:3", Request{Type: TypeSeries, IMDBID: "tt0944947", Season: 2, Episode: 3}.ID())
}
