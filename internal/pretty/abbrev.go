package pretty

import "fmt"

// Abbrev returns s cut down for display. With no ranges, strings longer than
// 12 bytes are cut to 12. With one value, it is both the limit and the cut
// point. With two, strings longer than the first are cut to the second.
func Abbrev(s string, ranges ...int) Abbreviated {
	MaxLen := 12
	CutTo := 12
	if len(ranges) >= 2 {
		MaxLen, CutTo = ranges[0], ranges[1]
	} else if len(ranges) == 1 {
		MaxLen, CutTo = ranges[0], ranges[0]
	}
	return Abbreviated{
		Original: s,
		MaxLen:   MaxLen,
		CutTo:    CutTo,
	}
}

// Abbreviated is a lazily abbreviated string, formatted with %s.
type Abbreviated struct {
	Original string
	MaxLen   int
	CutTo    int
}

func (s Abbreviated) String() string {
	if s.MaxLen <= 0 || len(s.Original) <= s.MaxLen {
		return s.Original
	}
	cut := s.CutTo
	if cut > len(s.Original) {
		cut = len(s.Original)
	}
	return fmt.Sprintf("%s… (%d bytes)", s.Original[:cut], len(s.Original))
}
