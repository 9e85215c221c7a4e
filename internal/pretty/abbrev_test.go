package pretty

import (
	"fmt"
	"testing"
)

func TestAbbrev(t *testing.T) {
	cases := []struct {
		In     string
		Ranges []int
		Want   string
	}{
		{
			In:   "short",
			Want: "short",
		},
		{
			In:   "0123456789abcdef",
			Want: "0123456789ab… (16 bytes)",
		},
		{
			In:     "0123456789",
			Ranges: []int{4},
			Want:   "0123… (10 bytes)",
		},
		{
			In:     "0123456789",
			Ranges: []int{8, 2},
			Want:   "01… (10 bytes)",
		},
		{
			In:     "0123456789",
			Ranges: []int{0},
			Want:   "0123456789",
		},
	}

	for i, tc := range cases {
		if got := fmt.Sprintf("%s", Abbrev(tc.In, tc.Ranges...)); got != tc.Want {
			t.Errorf("case #%d: got %q; want %q", i, got, tc.Want)
		}
	}
}
