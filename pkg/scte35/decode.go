package scte35

import (
	"fmt"

	"github.com/Comcast/gots/v2/scte35"
)

// CommandType identifies the splice command carried by a decoded cue.
// Command types other than the two below are parsed far enough to be
// skipped; Decode returns them as CommandTypeOther.
type CommandType string

const (
	CommandTypeSpliceInsert CommandType = "splice_insert"
	CommandTypeTimeSignal   CommandType = "time_signal"
	CommandTypeOther        CommandType = "other"
)

// Cue is the gateway-internal view of a decoded splice_info_section: just
// the fields the Channel Coordinator and Manifest Transformer need to
// react to a break (spec.md section 4.3). The program-date-time a cue
// applies at comes from the manifest segment it was attached to, not from
// the payload itself, so it is not part of this struct.
type Cue struct {
	EventID               uint32
	CommandType           CommandType
	DurationS             float64 // 0 if the command carries no duration.
	HasDuration           bool
	Tier                  uint16
	OutOfNetworkIndicator bool
}

// Decode parses a base64-decoded SCTE-35 splice_info_section, as found in
// an #EXT-OATCLS-SCTE35 tag or an EXT-X-DATERANGE SCTE35-OUT/SCTE35-IN/
// SCTE35-CMD attribute. A parse failure is returned as the gots error
// wrapped with %w, so callers can still classify it with errors.Is/As.
func Decode(payload []byte) (Cue, error) {
	section, err := scte35.NewSCTE35(payload)
	if err != nil {
		return Cue{}, fmt.Errorf("scte35: decode splice_info_section: %w", err)
	}

	cue := Cue{Tier: section.Tier()}

	switch section.Command() {
	case scte35.SpliceInsert:
		cue.CommandType = CommandTypeSpliceInsert
		if cmd, ok := section.CommandInfo().(scte35.SpliceInsertCommand); ok {
			cue.EventID = cmd.EventID()
			cue.OutOfNetworkIndicator = cmd.IsOut()
			if cmd.HasDuration() {
				cue.HasDuration = true
				cue.DurationS = float64(cmd.Duration()) / 90000.0
			}
		}
	case scte35.TimeSignal:
		cue.CommandType = CommandTypeTimeSignal
		if descs := section.Descriptors(); len(descs) > 0 {
			d := descs[0]
			cue.EventID = d.EventID()
			cue.OutOfNetworkIndicator = d.IsOut()
			if d.HasDuration() {
				cue.HasDuration = true
				cue.DurationS = float64(d.Duration()) / 90000.0
			}
		}
	default:
		cue.CommandType = CommandTypeOther
	}

	return cue, nil
}
