package samplemux

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	LineTypeSample  = "sample"
	LineTypeStatus  = "status"
	LineTypeComment = "comment"
	LineTypeUnknown = "unknown"
)

// ClassifyLine inspects a feed line and returns a simple line type token.
// Trackers emit CSV sample lines, occasional JSON status blobs, and comment
// lines starting with '#'.
func ClassifyLine(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return LineTypeUnknown
	case strings.HasPrefix(trimmed, "#"):
		return LineTypeComment
	case strings.HasPrefix(trimmed, "{"):
		return LineTypeStatus
	case strings.Count(trimmed, ",") == 2:
		return LineTypeSample
	default:
		return LineTypeUnknown
	}
}

// Sample is one parsed tracker observation: a timestamp in seconds and a 2D
// position.
type Sample struct {
	T float64
	X float64
	Y float64
}

// ParseSample parses a "t,x,y" CSV line into a Sample.
func ParseSample(line string) (Sample, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 3 {
		return Sample{}, fmt.Errorf("expected 3 fields, got %d in %q", len(parts), line)
	}

	var s Sample
	var err error
	if s.T, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return Sample{}, fmt.Errorf("bad timestamp in %q: %w", line, err)
	}
	if s.X, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return Sample{}, fmt.Errorf("bad x in %q: %w", line, err)
	}
	if s.Y, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64); err != nil {
		return Sample{}, fmt.Errorf("bad y in %q: %w", line, err)
	}
	return s, nil
}

// FormatSample renders a Sample as the "t,x,y" line format the parser reads.
// The mock feed and the simulator use it to emit fixture streams.
func FormatSample(s Sample) string {
	return fmt.Sprintf("%.4f,%.3f,%.3f", s.T, s.X, s.Y)
}
