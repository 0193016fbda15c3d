package hls

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	m3u8 "github.com/mogiioin/hls-m3u8/m3u8"
)

// ignoreRingBuffer skips the library's unexported ring-buffer
// bookkeeping (head, tail, count, capacity, the encode-cache buf, and
// friends) so cmp.Diff compares only the playlist's observable shape.
var ignoreRingBuffer = cmpopts.IgnoreUnexported(m3u8.MediaPlaylist{})

const samplePlaylist = `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:100
#EXT-X-PROGRAM-DATE-TIME:2024-01-01T00:00:00.000Z
#EXTINF:6.0,
seg100.ts
#EXT-X-PROGRAM-DATE-TIME:2024-01-01T00:00:06.000Z
#EXTINF:6.0,
seg101.ts
`

func TestParseMediaPlaylist(t *testing.T) {
	p, err := ParseMediaPlaylist(strings.NewReader(samplePlaylist))
	require.NoError(t, err)
	require.Equal(t, uint8(4), p.Version())
	require.Equal(t, uint(6), p.TargetDuration)
	require.Equal(t, uint64(100), p.SeqNo)
	require.Len(t, p.Segments, 2)
	require.False(t, p.Segments[0].ProgramDateTime.IsZero())
	require.Equal(t, "seg100.ts", p.Segments[0].URI)
	require.Equal(t, 6.0, p.Segments[1].Duration)
}

func TestRoundTrip(t *testing.T) {
	p1, err := ParseMediaPlaylist(strings.NewReader(samplePlaylist))
	require.NoError(t, err)
	out := p1.String()
	p2, err := ParseMediaPlaylist(strings.NewReader(out))
	require.NoError(t, err)
	if diff := cmp.Diff(p1, p2, ignoreRingBuffer); diff != "" {
		t.Errorf("parse(emit(m)) != m (-want +got):\n%s", diff)
	}

	// parse(emit(parse(m))) == parse(m): the round trip is stable past
	// the first generation.
	out2, err := ParseMediaPlaylist(strings.NewReader(p2.String()))
	require.NoError(t, err)
	if diff := cmp.Diff(p2, out2, ignoreRingBuffer); diff != "" {
		t.Errorf("parse(emit(parse(m))) != parse(m) (-want +got):\n%s", diff)
	}
}

func TestMissingExtM3UIsMalformed(t *testing.T) {
	_, err := ParseMediaPlaylist(strings.NewReader("#EXT-X-VERSION:3\n#EXTINF:6,\nseg.ts\n"))
	require.ErrorIs(t, err, ErrMalformedManifest)
}

func TestDanglingExtinfIsMalformed(t *testing.T) {
	_, err := ParseMediaPlaylist(strings.NewReader("#EXTM3U\n#EXTINF:6,\n"))
	require.ErrorIs(t, err, ErrMalformedManifest)
}

// TestUnknownTagsPreserved checks that a tag name absent from
// knownMediaTagPrefixes still survives the round trip, carried through a
// dynamically-registered CustomDecoder rather than being dropped. It
// doesn't assert the tag's exact position relative to other unrecognized
// tags: CustomMap iterates in Go's unspecified map order, so relative
// order among several distinct unrecognized tag names sharing a bucket
// isn't guaranteed (see unknownTagDecoders).
func TestUnknownTagsPreserved(t *testing.T) {
	const pl = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-SOME-FUTURE-TAG:abc
#EXTINF:6.0,
seg.ts
`
	p, err := ParseMediaPlaylist(strings.NewReader(pl))
	require.NoError(t, err)
	require.Len(t, p.Segments, 1)
	require.Contains(t, p.Segments[0].Custom, "#EXT-X-SOME-FUTURE-TAG:")
	require.Equal(t, "#EXT-X-SOME-FUTURE-TAG:abc", p.Segments[0].Custom["#EXT-X-SOME-FUTURE-TAG:"].String())

	out := p.String()
	require.Contains(t, out, "#EXT-X-SOME-FUTURE-TAG:abc")
}

func TestParseMasterPlaylist(t *testing.T) {
	const m = `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-STREAM-INF:BANDWIDTH=1600000,RESOLUTION=1280x720
v_1600k.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=854x480
v_800k.m3u8
`
	p, err := ParseMasterPlaylist(strings.NewReader(m))
	require.NoError(t, err)
	require.Len(t, p.Variants, 2)
	require.Equal(t, "v_1600k.m3u8", p.Variants[0].URI)
	require.Equal(t, "v_800k.m3u8", p.Variants[1].URI)
}

func TestDateRangeEmission(t *testing.T) {
	p, err := NewMediaPlaylist(1)
	require.NoError(t, err)
	p.TargetDuration = 6

	seg := &Segment{Duration: 6.0, URI: "seg.ts"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	AttachInterstitial(seg, "P1", start, 30.0, "pod.m3u8")
	require.NoError(t, p.AppendSegment(seg))

	out := p.String()
	require.Contains(t, out, `CLASS="com.apple.hls.interstitial"`)
	require.Contains(t, out, "DURATION=30.000")
	require.Contains(t, out, `ID="P1"`)
	require.Contains(t, out, `X-ASSET-URI="pod.m3u8"`)
}

func TestHasInterstitialIsPodScoped(t *testing.T) {
	seg := &Segment{Duration: 6.0, URI: "seg.ts"}
	require.False(t, HasInterstitial(seg, "P1"))
	AttachInterstitial(seg, "P1", time.Now(), 30.0, "pod.m3u8")
	require.True(t, HasInterstitial(seg, "P1"))
	require.False(t, HasInterstitial(seg, "P2"))
}
