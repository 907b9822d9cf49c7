package filter

// Stats accumulates match/miss counters across calls to a Matcher.
type Stats struct {
	Matches    int
	Misses     int
	LastSource string
}

func (s *Stats) record(source string, matched bool) {
	if matched {
		s.Matches++
		s.LastSource = source
	} else {
		s.Misses++
	}
}
