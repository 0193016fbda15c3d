// Package vast implements the subset of IAB VAST 4.2
// (https://iabtechlab.com/wp-content/uploads/2019/06/VAST_4.2_final_june26.pdf)
// this gateway's ad-decision waterfall needs: wrapper chasing down to an
// InLine ad, and nearest-bitrate MediaFile selection. Fields outside that
// path (companions, icons, verification, non-linear ads) are intentionally
// not modeled.
package vast

import "encoding/xml"

// VAST is the root <VAST> document returned by an ad server.
type VAST struct {
	XMLName xml.Name      `xml:"VAST"`
	Version string        `xml:"version,attr"`
	Ads     []Ad          `xml:"Ad"`
	Errors  []CDATAString `xml:"Error"`
}

// Ad is a single <Ad> entry: exactly one of InLine or Wrapper is set.
type Ad struct {
	ID       string   `xml:"id,attr"`
	Sequence int      `xml:"sequence,attr"`
	InLine   *InLine  `xml:"InLine"`
	Wrapper  *Wrapper `xml:"Wrapper"`
}

// InLine is a terminal ad definition: everything needed to play it.
type InLine struct {
	AdSystem    string        `xml:"AdSystem"`
	AdTitle     string        `xml:"AdTitle"`
	Impressions []Impression  `xml:"Impression"`
	Errors      []CDATAString `xml:"Error"`
	Creatives   []Creative    `xml:"Creatives>Creative"`
}

// Wrapper points at a downstream ad server for the actual InLine ad.
type Wrapper struct {
	VASTAdTagURI             CDATAString   `xml:"VASTAdTagURI"`
	Impressions              []Impression  `xml:"Impression"`
	Errors                   []CDATAString `xml:"Error"`
	FollowAdditionalWrappers *bool         `xml:"followAdditionalWrappers,attr"`
}

// Impression is a tracking pixel fired on first frame.
type Impression struct {
	ID  string `xml:"id,attr"`
	URI string `xml:",cdata"`
}

// CDATAString is character data wrapped in <![CDATA[ ]]>.
type CDATAString struct {
	CDATA string `xml:",cdata"`
}

// Creative carries the Linear ad (the only creative type this gateway
// schedules into an HLS break).
type Creative struct {
	ID     string  `xml:"id,attr"`
	Linear *Linear `xml:"Linear"`
}

// Linear is a pre-roll style ad meant to play instead of content.
type Linear struct {
	Duration   Duration    `xml:"Duration"`
	MediaFiles []MediaFile `xml:"MediaFiles>MediaFile"`
}

// MediaFile is one encoded rendition of the creative.
type MediaFile struct {
	URI      string `xml:",cdata"`
	Delivery string `xml:"delivery,attr"`
	Type     string `xml:"type,attr"`
	Width    int    `xml:"width,attr"`
	Height   int    `xml:"height,attr"`
	Bitrate  int    `xml:"bitrate,attr"`
}
