package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreBreakdownSumsToScore(t *testing.T) {
	c := Candidate{
		Origin:     OriginTorrentio,
		InfoHash:   "0123456789012345678901234567890123456789",
		Resolution: 1080,
		Codec:      CodecH264,
		Container:  ContainerMP4,
		Bytes:      3 * gib,
		Seeders:    50,
	}
	Score(&c, DeviceTV, ScoreOptions{DebridAvailable: true})

	sum := 0
	for _, v := range c.Breakdown {
		sum += v
	}
	require.Equal(t, c.Score, sum)
}

func TestScoreWebResolutionOrderingSurvivesSize(t *testing.T) {
	// On web the size curve is resolution-independent, so a big 4K file must
	// not fall below a small 1080p file.
	big4K := Candidate{
		InfoHash:   "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Resolution: 2160,
		Bytes:      18 * gib,
		Seeders:    50,
	}
	small1080 := Candidate{
		InfoHash:   "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Resolution: 1080,
		Bytes:      2 * gib,
		Seeders:    50,
	}
	Score(&big4K, DeviceWeb, ScoreOptions{DebridAvailable: true})
	Score(&small1080, DeviceWeb, ScoreOptions{DebridAvailable: true})
	require.Greater(t, big4K.Score, small1080.Score)
}

func TestScoreTVPrefersH264MP4(t *testing.T) {
	hevcMKV := Candidate{
		InfoHash:   "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Resolution: 1080,
		Codec:      CodecH265,
		Container:  ContainerMKV,
		Seeders:    50,
	}
	avcMP4 := Candidate{
		InfoHash:   "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Resolution: 1080,
		Codec:      CodecH264,
		Container:  ContainerMP4,
		Seeders:    50,
	}
	Score(&hevcMKV, DeviceTV, ScoreOptions{})
	Score(&avcMP4, DeviceTV, ScoreOptions{})
	// TV firmwares choke on HEVC in MKV, the gap must be substantial
	require.GreaterOrEqual(t, avcMP4.Score-hevcMKV.Score, 100)

	// On mobile the same pair is much closer
	Score(&hevcMKV, DeviceMobile, ScoreOptions{})
	Score(&avcMP4, DeviceMobile, ScoreOptions{})
	require.Less(t, avcMP4.Score-hevcMKV.Score, 100)
}

func TestScoreSeeders(t *testing.T) {
	for _, test := range []struct {
		name     string
		seeders  int
		expected int
	}{
		{"zero seeders", 0, seedersZeroPenalty},
		{"under 3", 2, seedersUnder3},
		{"under 5", 4, seedersUnder5},
		{"under 10", 9, seedersUnder10},
		{"healthy swarm", 50, 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := Candidate{InfoHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Seeders: test.seeders}
			Score(&c, DeviceWeb, ScoreOptions{})
			require.Equal(t, test.expected, c.Breakdown["seeders"])
		})
	}

	// Direct streams have no swarm, so no seeder contribution at all
	c := Candidate{URL: "https://host.example.com/stream.mp4"}
	Score(&c, DeviceWeb, ScoreOptions{})
	require.Equal(t, 0, c.Breakdown["seeders"])
}

func TestScoreReliabilityPenalty(t *testing.T) {
	c := Candidate{URL: "https://flaky.example.com/stream.mp4"}
	Score(&c, DeviceWeb, ScoreOptions{
		Penalties: map[string]int{"flaky.example.com": 120},
	})
	require.Equal(t, -120, c.Breakdown["reliability"])

	clean := Candidate{URL: "https://flaky.example.com/stream.mp4"}
	Score(&clean, DeviceWeb, ScoreOptions{})
	require.Equal(t, c.Score+120, clean.Score)
}

func TestScoreCookie(t *testing.T) {
	c := Candidate{URL: "https://host.example.com/stream.mp4", RequiresCookie: true}
	Score(&c, DeviceWeb, ScoreOptions{CookiePresent: false})
	require.Equal(t, noCookiePenalty, c.Breakdown["cookie"])

	Score(&c, DeviceWeb, ScoreOptions{CookiePresent: true})
	require.Equal(t, cookieBonus, c.Breakdown["cookie"])
}

func TestScoreHost(t *testing.T) {
	for _, test := range []struct {
		name     string
		url      string
		expected int
	}{
		{"premium host", "https://download.real-debrid.com/d/abc", premiumHostBonus},
		{"premium subdomain", "https://eu1.premiumize.me/dl/abc", premiumHostBonus},
		{"cdn suffix", "https://media.akamaized.net/x.mp4", cdnHostBonus},
		{"cdn prefix", "https://cdn.example.com/x.mp4", cdnHostBonus},
		{"ip literal", "http://203.0.113.5/x.mp4", suspiciousHostMalus},
		{"suspicious tld", "https://streams.xyz/x.mp4", suspiciousHostMalus},
		{"plain host", "https://example.com/x.mp4", 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := Candidate{URL: test.url}
			Score(&c, DeviceWeb, ScoreOptions{})
			require.Equal(t, test.expected, c.Breakdown["host"])
		})
	}
}

func TestScoreDebridBonusOnlyForTorrents(t *testing.T) {
	torrent := Candidate{InfoHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Seeders: 50}
	Score(&torrent, DeviceWeb, ScoreOptions{DebridAvailable: true})
	require.Equal(t, debridHostBonus, torrent.Breakdown["host"])

	Score(&torrent, DeviceWeb, ScoreOptions{DebridAvailable: false})
	require.Equal(t, 0, torrent.Breakdown["host"])
}

func TestScoreGroup(t *testing.T) {
	good := Candidate{URL: "https://example.com/a", ReleaseGroup: "FraMeSToR"}
	Score(&good, DeviceWeb, ScoreOptions{})
	require.Equal(t, 8, good.Breakdown["group"])

	bad := Candidate{URL: "https://example.com/b", ReleaseGroup: "YIFY"}
	Score(&bad, DeviceWeb, ScoreOptions{})
	require.Equal(t, -12, bad.Breakdown["group"])
}
