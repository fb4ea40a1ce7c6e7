package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTorrentioFind(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sort=qualitysize/stream/movie/tt0111161.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"streams": [
				{
					"name": "Torrentio\n1080p",
					"title": "Movie.2019.1080p.BluRay.x264\n👤 42 💾 2.5 GB",
					"infoHash": "aaaabbbbccccddddeeeeffff0000111122223333",
					"fileIdx": 1,
					"behaviorHints": {"filename": "Movie.2019.1080p.mkv", "videoSize": 2684354560},
					"sources": ["tracker:udp://tracker.example.org:1337", "dht:aaaabbbb"]
				},
				{
					"name": "Torrentio\n720p",
					"title": "Movie.2019.720p.WEBRip",
					"infoHash": "1111222233334444555566667777888899990000"
				},
				{
					"name": "junk without hash or url",
					"title": "dropped"
				}
			]
		}`))
	}))
	defer ts.Close()

	client := NewTorrentioClient(TorrentioOptions{BaseURL: ts.URL, PathOptions: "sort=qualitysize"}, zap.NewNop())
	candidates, err := client.Find(context.Background(), Request{Type: TypeMovie, IMDBID: "tt0111161"})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	first := candidates[0]
	require.Equal(t, "aaaabbbbccccddddeeeeffff0000111122223333", first.InfoHash)
	require.Equal(t, 1, first.FileIndex)
	require.Equal(t, "Movie.2019.1080p.mkv", first.Filename)
	require.Equal(t, int64(2684354560), first.Bytes)
	require.Contains(t, first.MagnetURL, "magnet:?xt=urn:btih:aaaabbbbccccddddeeeeffff0000111122223333")
	require.Contains(t, first.MagnetURL, "tr=udp")

	// No fileIdx in the response means unset, not zero
	require.Equal(t, -1, candidates[1].FileIndex)
}

func TestTorrentioFindEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"streams": []}`))
	}))
	defer ts.Close()

	client := NewTorrentioClient(TorrentioOptions{BaseURL: ts.URL}, zap.NewNop())
	candidates, err := client.Find(context.Background(), Request{Type: TypeMovie, IMDBID: "tt0111161"})
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestTorrentioFindUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewTorrentioClient(TorrentioOptions{BaseURL: ts.URL}, zap.NewNop())
	_, err := client.Find(context.Background(), Request{Type: TypeMovie, IMDBID: "tt0111161"})
	require.Error(t, err)
}

func TestTorrentioSeriesPath(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"streams": []}`))
	}))
	defer ts.Close()

	client := NewTorrentioClient(TorrentioOptions{BaseURL: ts.URL}, zap.NewNop())
	_, err := client.Find(context.Background(), Request{Type: TypeSeries, IMDBID: "tt0944947", Season: 2, Episode: 3})
	require.NoError(t, err)
	require.Equal(t, "/stream/series/tt0944947:2:3.json", gotPath)
}
