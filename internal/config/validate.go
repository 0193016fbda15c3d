package config

import (
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dashif-labs/ssaigw/pkg/apperr"
)

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the package's singleton validator instance.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateChannel validates a Channel's struct tags plus the ascending
// bitrate-ladder invariant, returning an apperr.Error with
// KindInvalidRequest on failure.
func ValidateChannel(c *Channel) error {
	v := getValidator()
	if err := v.Struct(c); err != nil {
		return apperr.Wrap(apperr.KindInvalidRequest, "invalid channel config", err)
	}
	for i := 1; i < len(c.BitrateLadder); i++ {
		if c.BitrateLadder[i] <= c.BitrateLadder[i-1] {
			return apperr.New(apperr.KindInvalidRequest, "bitrate_ladder must be strictly ascending")
		}
	}
	return nil
}

// ValidateAdBreakState validates an AdBreakState's struct tags and the
// end_time = start_time + duration_s invariant.
func ValidateAdBreakState(s *AdBreakState) error {
	v := getValidator()
	if err := v.Struct(s); err != nil {
		return apperr.Wrap(apperr.KindInvalidRequest, "invalid ad break state", err)
	}
	wantEnd := s.StartTime.Add(durationFromSeconds(s.DurationS))
	if !s.EndTime.Equal(wantEnd) {
		return apperr.New(apperr.KindInvalidRequest, "end_time must equal start_time + duration_s")
	}
	return nil
}
