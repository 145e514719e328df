package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxSequence is the largest monthly sequence a YYMM-NNNN code can hold.
const MaxSequence = 9999

// CodePrefix returns the YYMM bucket for t.
func CodePrefix(t time.Time) string { return t.Format("0601") }

// FormatCode renders prefix and seq as YYMM-NNNN.
func FormatCode(prefix string, seq int) (string, error) {
	if seq < 1 || seq > MaxSequence {
		return "", validationf("ncp sequence %d out of range for prefix %s", seq, prefix)
	}
	return fmt.Sprintf("%s-%04d", prefix, seq), nil
}

// ParseSequence extracts the numeric suffix of code if it belongs to prefix.
func ParseSequence(code, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(code, prefix+"-")
	if !ok || len(rest) != 4 {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
