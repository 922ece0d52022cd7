package outwriter

import (
	"os"

	"golang.org/x/term"

	"github.com/surveykit/raking/internal/contract"
)

// Fixed columns of the marginals table: Target, Unweighted, Weighted, Gap, Status, N.
const marginalColumnsWidth = 70

// GetMaxTableLabelWidth calculates the maximum width for variable and category
// labels in table output based on terminal width.
func GetMaxTableLabelWidth(cfg *contract.Config) int {
	termWidth := cfg.Width
	if termWidth <= 0 {
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			termWidth = 80 // Conservative default for narrow terminals and CI
		} else {
			termWidth = detectedWidth
		}
	}

	// Variable and category share what is left
	available := (termWidth - marginalColumnsWidth) / 2
	if available < 12 {
		return 12
	}
	if available > 40 {
		return 40
	}
	return available
}
