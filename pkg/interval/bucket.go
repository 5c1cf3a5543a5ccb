package interval

// Epoch values at or above this are treated as milliseconds. The cutoff is
// ~2286-11-20 in seconds, and ~1973-03-03 in milliseconds, so any real
// market timestamp lands on the right side.
const millisecondCutoff = int64(1e12)

// NormalizeUnix converts an epoch timestamp to seconds. Venue payloads come
// in either seconds or milliseconds; everything downstream is seconds only.
func NormalizeUnix(ts int64) int64 {
	if ts >= millisecondCutoff {
		return ts / 1000
	}
	return ts
}

// AlignUnix normalizes ts to seconds and rounds it down to the interval
// boundary. Every stored candle time is a multiple of Seconds().
func (i Interval) AlignUnix(ts int64) int64 {
	ts = NormalizeUnix(ts)
	sec := i.Seconds()
	if sec <= 0 {
		return ts
	}
	return ts - ts%sec
}

// IsAligned reports whether ts (in seconds) sits exactly on an interval
// boundary.
func (i Interval) IsAligned(ts int64) bool {
	sec := i.Seconds()
	return sec > 0 && ts%sec == 0
}

// BucketRange returns the inclusive start and exclusive end of the bucket
// containing ts.
func (i Interval) BucketRange(ts int64) (start, end int64) {
	start = i.AlignUnix(ts)
	end = start + i.Seconds()
	return start, end
}
