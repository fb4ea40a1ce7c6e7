package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyResolution(t *testing.T) {
	for _, test := range []struct {
		name       string
		text       string
		resolution int
	}{
		{"2160p token", "Movie.2019.2160p.WEB-DL", 2160},
		{"4k word", "Movie 4K HDR", 2160},
		{"1440p", "Show.S01E01.1440p", 1440},
		{"1080p", "Movie.2019.1080p.BluRay.x264", 1080},
		{"720p", "Movie.720p.WEBRip", 720},
		{"480p", "Old.Movie.480p.DVDRip", 480},
		{"highest wins", "Movie.2160p.also.has.1080p.tokens", 2160},
		{"no token", "Movie.2019.WEBRip", 0},
		{"4k inside word doesn't match", "Movie.X264K.Edition", 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := Candidate{Name: test.text}
			Classify(&c)
			require.Equal(t, test.resolution, c.Resolution)
		})
	}
}

func TestClassifyCodecAndContainer(t *testing.T) {
	c := Candidate{Name: "Movie.2019.1080p.BluRay.x265.10bit.mkv"}
	Classify(&c)
	require.Equal(t, CodecH265, c.Codec)
	require.Equal(t, ContainerMKV, c.Container)
	require.True(t, c.HDR.TenBit)

	c = Candidate{Name: "Movie.2019.720p.WEB-DL.H.264.mp4"}
	Classify(&c)
	require.Equal(t, CodecH264, c.Codec)
	require.Equal(t, ContainerMP4, c.Container)
}

func TestClassifyHDR(t *testing.T) {
	c := Candidate{Name: "Movie.2160p.HDR10+.Dolby.Vision.WEB-DL"}
	Classify(&c)
	require.True(t, c.HDR.HDR10Plus)
	require.True(t, c.HDR.DolbyVision)

	c = Candidate{Name: "Movie.2160p.HDR.WEB-DL"}
	Classify(&c)
	require.False(t, c.HDR.HDR10Plus)
	require.True(t, c.HDR.HDR)
}

func TestClassifySize(t *testing.T) {
	for _, test := range []struct {
		name  string
		text  string
		bytes int64
	}{
		{"plain GB", "Movie 1080p\n💾 2 GB", 2 * 1024 * 1024 * 1024},
		{"decimal point", "Movie\n1.5 GB", int64(float64(1.5) * 1024 * 1024 * 1024)},
		{"decimal comma", "Movie\n1,5 GB", int64(float64(1.5) * 1024 * 1024 * 1024)},
		{"MB", "Movie\n700 MB", 700 * 1024 * 1024},
		{"no size", "Movie 1080p", 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := Candidate{Title: test.text}
			Classify(&c)
			require.Equal(t, test.bytes, c.Bytes)
		})
	}
}

func TestClassifyStructuredFieldsWin(t *testing.T) {
	// Sizes and seeders set by a provider client must not be overwritten
	// by text extraction.
	c := Candidate{Name: "Movie 1080p 2 GB", Bytes: 123, Seeders: 7}
	Classify(&c)
	require.Equal(t, int64(123), c.Bytes)
	require.Equal(t, 7, c.Seeders)
}

func TestClassifySeederLine(t *testing.T) {
	c := Candidate{Title: "Movie.2019.1080p\n42 1.4 GB"}
	Classify(&c)
	require.Equal(t, 42, c.Seeders)
	size := 1.4
	require.Equal(t, int64(size*1024*1024*1024), c.Bytes)
}

func TestDetectLanguages(t *testing.T) {
	for _, test := range []struct {
		name      string
		text      string
		languages []string
	}{
		{"english word", "Movie English 1080p", []string{"en"}},
		{"flag", "Movie 🇩🇪 1080p", []string{"de"}},
		{"generic pt is european", "Filme Portuguese 1080p", []string{"pt-pt"}},
		{"dublado is brazilian", "Filme Dublado 1080p", []string{"pt-br"}},
		{"pt-br token", "Filme PT-BR 1080p", []string{"pt-br"}},
		{"none", "Movie 1080p", nil},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := Candidate{Name: test.text}
			Classify(&c)
			require.Equal(t, test.languages, c.Languages)
		})
	}
}

func TestParseReleaseGroup(t *testing.T) {
	for _, test := range []struct {
		name  string
		text  string
		group string
	}{
		{"trailing dash", "Movie.2019.1080p.BluRay.x264-SPARKS", "SPARKS"},
		{"trailing bracket", "Movie 2019 1080p [FraMeSToR]", "FraMeSToR"},
		{"none", "Movie 2019 1080p", ""},
	} {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.group, parseReleaseGroup(test.text))
		})
	}
}

func TestNormalizeLangPref(t *testing.T) {
	require.Equal(t, "pt-pt", NormalizeLangPref("PT"))
	require.Equal(t, "pt-br", NormalizeLangPref(" pt-br "))
	require.Equal(t, "en", NormalizeLangPref("EN"))
}

func TestLangMatches(t *testing.T) {
	require.True(t, langMatches("en", "en"))
	require.True(t, langMatches("pt", "pt-br"))
	require.False(t, langMatches("pt-pt", "pt-br"))
	require.True(t, langMatches("pt-br", "pt-br"))
	require.False(t, langMatches("", "en"))
}
