package tzif

import (
	"errors"
	"fmt"
)

// Validate reports every violation of RFC 8536 section 3 found in f.
// The returned error wraps ErrFormat.
func Validate(f File) error {
	var errs []error
	switch f.Version {
	case V1, V2, V3, V4:
	default:
		errs = append(errs, fmt.Errorf("unknown version %v", f.Version))
	}
	errs = append(errs, validateBlock("v1", f.V1)...)
	if f.Version >= V2 {
		errs = append(errs, validateBlock("v2", f.V2)...)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFormat, errors.Join(errs...))
}

func validateBlock(name string, b DataBlock) []error {
	var err []error
	typecnt := len(b.LocalTimeTypes)

	if n := len(b.UTLocalIndicators); n != 0 && n != typecnt {
		err = append(err, fmt.Errorf("invalid %s isutcnt (%d): must be 0 or equal to typecnt (%d)", name, n, typecnt))
	}
	if n := len(b.StandardWallIndicators); n != 0 && n != typecnt {
		err = append(err, fmt.Errorf("invalid %s isstdcnt (%d): must be 0 or equal to typecnt (%d)", name, n, typecnt))
	}
	if times, types := len(b.TransitionTimes), len(b.TransitionTypes); times != types {
		err = append(err, fmt.Errorf("inconsistent %s transitions: transition times = %d, transition types = %d", name, times, types))
	}
	for i := 1; i < len(b.TransitionTimes); i++ {
		if b.TransitionTimes[i] <= b.TransitionTimes[i-1] {
			err = append(err, fmt.Errorf("%s transition times not ascending at %d", name, i))
			break
		}
	}

	if typecnt == 0 {
		err = append(err, fmt.Errorf("invalid %s typecnt: must not be zero", name))
	}
	for i, t := range b.TransitionTypes {
		if int(t) >= typecnt {
			err = append(err, fmt.Errorf("%s transition %d: type %d out of range", name, i, t))
			break
		}
	}

	if len(b.Designations) == 0 {
		err = append(err, fmt.Errorf("invalid %s charcnt: must not be zero", name))
	} else if b.Designations[len(b.Designations)-1] != 0 {
		err = append(err, fmt.Errorf("invalid %s time zone designations: missing null terminator", name))
	}
	for i, t := range b.LocalTimeTypes {
		if int(t.Idx) >= len(b.Designations) {
			err = append(err, fmt.Errorf("%s local time type %d: designation index %d out of range", name, i, t.Idx))
		}
	}
	return err
}
