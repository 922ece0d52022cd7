package schema

import "math"

// Gap thresholds in absolute proportion.
const (
	OnTargetGap = 0.001
	CloseGap    = 0.01
)

// GetGapLabel returns a plain text label describing how close a weighted
// share landed to its target.
func GetGapLabel(gap float64) string {
	switch g := math.Abs(gap); {
	case g < OnTargetGap:
		return "On target"
	case g < CloseGap:
		return "Close"
	default:
		return "Off"
	}
}
