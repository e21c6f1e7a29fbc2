package tier

import (
	"fmt"
	"strings"
)

// Tier is a subscription level. Levels are ordered FREE < PRO < MAX.
type Tier string

const (
	Free Tier = "FREE"
	Pro  Tier = "PRO"
	Max  Tier = "MAX"
)

// All returns the tiers in ascending level order.
func All() []Tier {
	return []Tier{Free, Pro, Max}
}

func Parse(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Free):
		return Free, nil
	case string(Pro):
		return Pro, nil
	case string(Max):
		return Max, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Level returns the ordinal of the tier, FREE lowest. Unknown tiers
// return -1.
func (t Tier) Level() int {
	switch t {
	case Free:
		return 0
	case Pro:
		return 1
	case Max:
		return 2
	}
	return -1
}

func (t Tier) Valid() bool {
	return t.Level() >= 0
}

func (t Tier) String() string {
	return string(t)
}

// AtOrAbove returns t and every higher tier, ascending.
func AtOrAbove(t Tier) []Tier {
	out := make([]Tier, 0, 3)
	for _, x := range All() {
		if x.Level() >= t.Level() {
			out = append(out, x)
		}
	}
	return out
}
