package schema

import (
	"iter"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/menta2k/bddconv/pkg/types"
)

// Policy decides what an exporter does with a record that fails validation
type Policy int

const (
	// PolicyAbort stops the whole split on the first bad record
	PolicyAbort Policy = iota
	// PolicySkip logs the bad record and carries on
	PolicySkip
)

func (p Policy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	case PolicySkip:
		return "skip"
	}
	return "unknown"
}

// ParsePolicy parses "abort" or "skip"
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return PolicyAbort, nil
	case "skip":
		return PolicySkip, nil
	}
	return PolicyAbort, errors.Errorf("unknown validation policy %q (use abort or skip)", s)
}

// WalkStats summarizes one pass over a source
type WalkStats struct {
	Records  int   // records read
	Valid    int   // records handed to the callback
	Skipped  int   // records dropped under PolicySkip
	Failures error // every skipped ValidationError, combined with multierr
}

// Walk validates every record of a source and calls fn with each valid one.
// Source errors and callback errors end the walk. Validation failures end it
// under PolicyAbort and are logged and counted under PolicySkip.
func Walk(records iter.Seq2[types.RawImageRecord, error], policy Policy, logger *zap.SugaredLogger, fn func(types.ImageAnnotation) error) (WalkStats, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var stats WalkStats
	i := 0
	for raw, err := range records {
		if err != nil {
			return stats, err
		}
		stats.Records++
		res := ValidateAt(i, raw)
		i++
		if !res.OK() {
			if policy == PolicyAbort {
				return stats, res.Err()
			}
			stats.Skipped++
			stats.Failures = multierr.Append(stats.Failures, res.Err())
			logger.Warnw("skipping invalid record", "record", res.Err().Record, "image", res.Err().Image, "reason", res.Err().Error())
			continue
		}
		stats.Valid++
		if err := fn(res.Annotation()); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
