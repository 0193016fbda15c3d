// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package hls

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	m3u8 "github.com/mogiioin/hls-m3u8/m3u8"
)

// knownMediaTagPrefixes mirrors the tag set decodeLineOfMediaPlaylist
// (m3u8/reader.go) matches natively. Any "#"-prefixed line in a media
// playlist that starts with none of these is a tag the library cannot
// decode on its own, and is routed through a dynamically-registered
// CustomDecoder instead so it survives the round trip (spec.md section
// 4.1, "unknown tags are preserved verbatim").
var knownMediaTagPrefixes = []string{
	"#EXTM3U", "#EXT-X-VERSION:", "#EXT-X-INDEPENDENT-SEGMENTS", "#EXTINF:",
	"#EXT-X-TARGETDURATION:", "#EXT-X-PART-INF:", "#EXT-X-SERVER-CONTROL:",
	"#EXT-X-SKIP:", "#EXT-X-PART:", "#EXT-X-PRELOAD-HINT:",
	"#EXT-X-MEDIA-SEQUENCE:", "#EXT-X-DEFINE:", "#EXT-X-PLAYLIST-TYPE:",
	"#EXT-X-DISCONTINUITY-SEQUENCE:", "#EXT-X-START:", "#EXT-X-KEY:",
	"#EXT-X-MAP:", "#EXT-X-PROGRAM-DATE-TIME:", "#EXT-X-BYTERANGE:",
	"#EXT-SCTE35:", "#EXT-OATCLS-SCTE35:", "#EXT-X-CUE-OUT-CONT:",
	"#EXT-X-CUE-OUT", "#EXT-X-CUE-IN", "#EXT-X-DATERANGE:",
	"#EXT-X-DISCONTINUITY", "#EXT-X-GAP", "#EXT-X-I-FRAMES-ONLY",
	"#EXT-X-ALLOW-CACHE:", "#EXT-X-ENDLIST",
}

// knownMasterTagPrefixes mirrors decodeLineOfMasterPlaylist.
var knownMasterTagPrefixes = []string{
	"#EXTM3U", "#EXT-X-VERSION:", "#EXT-X-START:", "#EXT-X-INDEPENDENT-SEGMENTS",
	"#EXT-X-MEDIA:", "#EXT-X-STREAM-INF:", "#EXT-X-I-FRAME-STREAM-INF:",
	"#EXT-X-DEFINE:", "#EXT-X-SESSION-DATA:", "#EXT-X-SESSION-KEY:",
	"#EXT-X-CONTENT-STEERING:",
}

// rawTag is a CustomTag that round-trips an unrecognized line verbatim.
type rawTag struct{ line string }

func (t *rawTag) TagName() string     { return tagPrefix(t.line) }
func (t *rawTag) String() string      { return t.line }
func (t *rawTag) Encode() *bytes.Buffer {
	var b bytes.Buffer
	b.WriteString(t.line)
	b.WriteByte('\n')
	return &b
}

// rawTagDecoder is a CustomDecoder for exactly one unrecognized tag
// name, built dynamically per parse call. The library's CustomDecoder
// extension point (a fixed TagName prefix registered up front) is
// designed for a single known vendor tag; this generalizes it to
// whatever unrecognized tag names actually turn up in a given
// manifest, which is what this gateway's "pass through anything we
// don't understand" requirement needs instead.
//
// Two unrecognized tags sharing the same name within the same segment
// (or header) bucket collide on the CustomMap's key, and the library
// iterates CustomMap in Go's unspecified map order, so relative
// ordering among several distinct unrecognized tag names in the same
// bucket is not guaranteed on re-emission — a real, library-imposed
// limitation, acceptable for the one-off vendor extension tags this
// exists to carry.
type rawTagDecoder struct {
	prefix  string
	segment bool
}

func (d *rawTagDecoder) TagName() string    { return d.prefix }
func (d *rawTagDecoder) SegmentTag() bool   { return d.segment }
func (d *rawTagDecoder) Decode(line string) (m3u8.CustomTag, error) {
	return &rawTag{line: line}, nil
}

// tagPrefix returns the tag name portion of a playlist line: up to and
// including the first ':', or the whole line for a valueless tag.
func tagPrefix(line string) string {
	if i := strings.IndexByte(line, ':'); i >= 0 {
		return line[:i+1]
	}
	return line
}

func hasKnownPrefix(line string, known []string) bool {
	for _, p := range known {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// unknownTagDecoders scans text for "#"-prefixed lines whose tag name
// isn't in known, and builds one CustomDecoder per distinct unrecognized
// tag name. segmentPrefix is the tag that opens a new segment/variant
// block (#EXTINF: or #EXT-X-STREAM-INF:) — lines seen before its first
// occurrence are treated as header-level tags, lines after as
// segment-level ones.
func unknownTagDecoders(text string, known []string, segmentPrefix string) []m3u8.CustomDecoder {
	seen := make(map[string]bool)
	var decoders []m3u8.CustomDecoder
	inSegment := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r \t")
		if line == "" || !strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, segmentPrefix) {
			inSegment = true
		}
		if hasKnownPrefix(line, known) {
			continue
		}
		prefix := tagPrefix(line)
		if seen[prefix] {
			continue
		}
		seen[prefix] = true
		decoders = append(decoders, &rawTagDecoder{prefix: prefix, segment: inSegment})
	}
	return decoders
}

// ParseMediaPlaylist parses a UTF-8 HLS media playlist. CRLF line
// endings and trailing whitespace are tolerated. Tags the library
// doesn't recognize natively are preserved verbatim via a dynamically
// registered CustomDecoder per distinct tag name (see unknownTagDecoders).
func ParseMediaPlaylist(r io.Reader) (*MediaPlaylist, error) {
	text, err := readAll(r)
	if err != nil {
		return nil, err
	}

	decoders := unknownTagDecoders(text, knownMediaTagPrefixes, "#EXTINF:")
	pl, listType, err := m3u8.DecodeWith(strings.NewReader(text), false, decoders)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	if listType != m3u8.MEDIA {
		return nil, ErrMalformedManifest
	}
	p, ok := pl.(*MediaPlaylist)
	if !ok {
		return nil, ErrMalformedManifest
	}
	return p, nil
}

// ParseMasterPlaylist parses a multivariant playlist: enough structure
// to locate and rewrite each Variant's URI (spec.md section 4.7).
func ParseMasterPlaylist(r io.Reader) (*MasterPlaylist, error) {
	text, err := readAll(r)
	if err != nil {
		return nil, err
	}

	decoders := unknownTagDecoders(text, knownMasterTagPrefixes, "#EXT-X-STREAM-INF:")
	pl, listType, err := m3u8.DecodeWith(strings.NewReader(text), false, decoders)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	if listType != m3u8.MASTER {
		return nil, ErrMalformedManifest
	}
	p, ok := pl.(*MasterPlaylist)
	if !ok {
		return nil, ErrMalformedManifest
	}
	return p, nil
}

func readAll(r io.Reader) (string, error) {
	var b strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		b.WriteString(sc.Text())
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}
