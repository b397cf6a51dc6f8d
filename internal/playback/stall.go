package playback

// stallDetector flags buffering when the position stops moving while the
// destination still claims to be playing. It never changes controller state.
type stallDetector struct {
	threshold int

	last      float64
	hasSample bool
	unchanged int
	buffering bool
}

func newStallDetector(threshold int) *stallDetector {
	if threshold <= 0 {
		threshold = DefaultStallThreshold
	}
	return &stallDetector{threshold: threshold}
}

// sample feeds one position reading and reports whether the buffering flag
// flipped.
func (s *stallDetector) sample(position float64, playing bool) (changed bool) {
	was := s.buffering
	switch {
	case !s.hasSample:
		s.hasSample = true
		s.unchanged = 0
	case playing && position == s.last:
		s.unchanged++
		if s.unchanged >= s.threshold {
			s.buffering = true
		}
	default:
		s.unchanged = 0
		s.buffering = false
	}
	s.last = position
	return was != s.buffering
}

// reset forgets all samples and clears the flag.
func (s *stallDetector) reset() (changed bool) {
	was := s.buffering
	*s = stallDetector{threshold: s.threshold}
	return was
}
