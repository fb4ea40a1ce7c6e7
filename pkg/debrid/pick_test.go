package debrid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const gib = int64(1024 * 1024 * 1024)

func seasonPackFiles() []File {
	return []File{
		{ID: "1", Index: 0, Name: "Show.S02E01.1080p.mkv", Bytes: 3 * gib},
		{ID: "2", Index: 1, Name: "Show.S02E02.1080p.mkv", Bytes: 3 * gib},
		{ID: "3", Index: 2, Name: "Show.S02E03.1080p.mkv", Bytes: 4 * gib},
		{ID: "4", Index: 3, Name: "Show.S02E03.Sample.mkv", Bytes: 50 * 1024 * 1024},
		{ID: "5", Index: 4, Name: "Show.S02E03.srt", Bytes: 100 * 1024},
	}
}

func TestPickFileEmpty(t *testing.T) {
	_, err := PickFile("Show.S02.Complete", nil, 0, ResolveOptions{FileIndex: -1})
	require.Equal(t, KindNoFiles, KindOf(err))
}

func TestPickFileExplicitIndexWins(t *testing.T) {
	files := seasonPackFiles()
	// The explicit index beats the episode marker heuristics
	picked, err := PickFile("Show.S02.Complete", files, TotalBytes(files), ResolveOptions{
		FileIndex: 1, Season: 2, Episode: 3,
	})
	require.NoError(t, err)
	require.Equal(t, "2", picked.ID)
}

func TestPickFilePositionalIndexFallback(t *testing.T) {
	files := []File{
		{ID: "a", Index: -1, Name: "one.mkv", Bytes: 1},
		{ID: "b", Index: -1, Name: "two.mkv", Bytes: 2},
	}
	picked, err := PickFile("Movie", files, 3, ResolveOptions{FileIndex: 1})
	require.NoError(t, err)
	require.Equal(t, "b", picked.ID)
}

func TestPickFileEpisodeFromSeasonPack(t *testing.T) {
	files := seasonPackFiles()
	picked, err := PickFile("Show.S02.Complete.1080p", files, TotalBytes(files), ResolveOptions{
		FileIndex: -1, Season: 2, Episode: 3,
	})
	require.NoError(t, err)
	// The full episode wins over the sample and the subtitle file
	require.Equal(t, "3", picked.ID)
}

func TestPickFileEpisodeMarkerVariants(t *testing.T) {
	for _, name := range []string{
		"Show.S02E03.mkv",
		"Show.s02e03.mkv",
		"Show S02 E03.mkv",
		"Show.S2E3.mkv",
	} {
		t.Run(name, func(t *testing.T) {
			files := []File{
				{ID: "other", Name: "Show.S02E01.mkv", Bytes: 2 * gib},
				{ID: "want", Name: name, Bytes: 2 * gib},
				{ID: "more", Name: "Show.S02E04.mkv", Bytes: 2 * gib},
			}
			picked, err := PickFile("Show.S02.Complete", files, 6*gib, ResolveOptions{
				FileIndex: -1, Season: 2, Episode: 3,
			})
			require.NoError(t, err)
			require.Equal(t, "want", picked.ID)
		})
	}
}

func TestPickFileMovieTakesLargest(t *testing.T) {
	files := []File{
		{ID: "sample", Name: "Movie.Sample.mkv", Bytes: 50 * 1024 * 1024},
		{ID: "movie", Name: "Movie.2019.1080p.mkv", Bytes: 8 * gib},
		{ID: "subs", Name: "Movie.srt", Bytes: 100 * 1024},
	}
	picked, err := PickFile("Movie.2019.1080p", files, TotalBytes(files), ResolveOptions{FileIndex: -1})
	require.NoError(t, err)
	require.Equal(t, "movie", picked.ID)
}

func TestPickFileNoMarkerMatchFallsBack(t *testing.T) {
	files := seasonPackFiles()
	// Episode 9 isn't in the pack, the largest file is served instead
	picked, err := PickFile("Show.S02.Complete", files, TotalBytes(files), ResolveOptions{
		FileIndex: -1, Season: 2, Episode: 9,
	})
	require.NoError(t, err)
	require.Equal(t, "3", picked.ID)
}

func TestIsSeasonPack(t *testing.T) {
	for _, test := range []struct {
		name       string
		packName   string
		files      []File
		totalBytes int64
		expected   bool
	}{
		{"complete token", "Show Season 2 COMPLETE", nil, 0, true},
		{"season marker without episode", "Show.S02.1080p", nil, 0, true},
		{"episode marker present", "Show.S02E03.1080p", nil, 0, false},
		{"three episode files", "Show Pack", seasonPackFiles(), 0, true},
		{"huge total", "Show Bundle", nil, 30 * gib, true},
		{"single movie", "Movie.2019.1080p", []File{{Name: "Movie.mkv"}}, 8 * gib, false},
	} {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, IsSeasonPack(test.packName, test.files, test.totalBytes))
		})
	}
}

func TestTotalBytes(t *testing.T) {
	require.Equal(t, int64(0), TotalBytes(nil))
	require.Equal(t, 3*gib, TotalBytes([]File{{Bytes: gib}, {Bytes: 2 * gib}}))
}
