package expr

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
)

// dicePattern matches an NdM dice macro. The negative lookbehind the
// original implementation uses to avoid matching inside identifiers
// isn't available in Go's RE2 engine, so the match is instead validated
// against its surrounding characters by the caller (expandDice below).
var dicePattern = regexp.MustCompile(`(\d*)d(\d+)`)

// Limits bounds dice macros and overall expression length, drawn from
// internal_settings in the base config.
type Limits struct {
	DiceMaxCount int
	DiceMaxSides int
	MaxLen       int
}

// DefaultLimits mirrors catalog.DefaultConfig's internal_settings.
func DefaultLimits() Limits {
	return Limits{DiceMaxCount: 20, DiceMaxSides: 100, MaxLen: 500}
}

// expandDice pre-expands every NdM macro in src into its summed random
// result before the expression is tokenized, per §4.1. N defaults to 1
// when omitted. A match is only treated as a dice macro when it is not
// itself part of a longer identifier (no letter/digit/underscore/dot
// immediately before it and no letter/underscore immediately after the
// side count) — this reproduces the original's
// `(?<![\w.])(\d*)d(\d+)` lookbehind without Go's RE2 needing one.
func expandDice(src string, limits Limits, rng *rand.Rand, sink *ErrorSink) string {
	out := make([]byte, 0, len(src))
	matches := dicePattern.FindAllStringSubmatchIndex(src, -1)
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start < last {
			continue // overlapped with a previous replacement's tail
		}
		if start > 0 && isIdentChar(src[start-1]) {
			continue
		}
		if end < len(src) && isIdentTailChar(src[end]) {
			continue
		}
		countStr := src[m[2]:m[3]]
		sidesStr := src[m[4]:m[5]]
		count := 1
		if countStr != "" {
			n, err := strconv.Atoi(countStr)
			if err != nil {
				continue
			}
			count = n
		}
		sides, err := strconv.Atoi(sidesStr)
		if err != nil {
			continue
		}
		if count <= 0 || sides <= 0 || count > limits.DiceMaxCount || sides > limits.DiceMaxSides {
			sink.Add(fmt.Sprintf("dice macro %s exceeds limits (max %dd%d)", src[start:end], limits.DiceMaxCount, limits.DiceMaxSides))
			out = append(out, src[last:start]...)
			out = append(out, '0')
			last = end
			continue
		}
		total := 0
		for i := 0; i < count; i++ {
			total += 1 + rng.IntN(sides)
		}
		out = append(out, src[last:start]...)
		out = append(out, strconv.Itoa(total)...)
		last = end
	}
	out = append(out, src[last:]...)
	return string(out)
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isIdentTailChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
