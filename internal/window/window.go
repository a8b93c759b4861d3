package window

// Family selects the merge rule applied when values land in a bucket.
type Family int

const (
	FamilyPrice Family = iota
	FamilyVolume
)

// Bucket is one time slice of a rolling window. Price windows use the OHLC
// fields, volume windows the buy/sell/total fields; Count tracks how many
// values merged in either way.
type Bucket struct {
	Start int64 // bucket start, unix ms

	Open  float64
	High  float64
	Low   float64
	Close float64

	BuyVolume   float64
	SellVolume  float64
	TotalVolume float64

	Count int64
}

// PricePoint builds the bucket value for a single observed price.
func PricePoint(price float64) Bucket {
	return Bucket{Open: price, High: price, Low: price, Close: price, Count: 1}
}

// VolumePoint builds the bucket value for a single taker execution.
func VolumePoint(qty float64, isBuy bool) Bucket {
	b := Bucket{TotalVolume: qty, Count: 1}
	if isBuy {
		b.BuyVolume = qty
	} else {
		b.SellVolume = qty
	}
	return b
}

type slot struct {
	set bool
	b   Bucket
}

// Window is a fixed-size ring of buckets for one instrument and family. It
// retains at most bucketCount buckets; anything older reads as absent. The
// window is owned by the pipeline goroutine and is not safe for concurrent
// use.
type Window struct {
	family       Family
	bucketSizeMs int64
	slots        []slot
	cursor       int
	// lastBucketTime is the start of the bucket under the cursor, 0 until
	// the first Add.
	lastBucketTime int64
}

func New(family Family, bucketSizeMs int64, bucketCount int) *Window {
	if bucketSizeMs <= 0 {
		bucketSizeMs = 1000
	}
	if bucketCount <= 0 {
		bucketCount = 60
	}
	return &Window{
		family:       family,
		bucketSizeMs: bucketSizeMs,
		slots:        make([]slot, bucketCount),
	}
}

func (w *Window) BucketSizeMs() int64 { return w.bucketSizeMs }
func (w *Window) BucketCount() int    { return len(w.slots) }

// Add advances the window to ts and merges v into the current bucket.
// Timestamps earlier than the current bucket do not move the cursor backward;
// the value is floored into the current bucket instead.
func (w *Window) Add(v Bucket, ts int64) {
	count := int64(len(w.slots))

	if w.lastBucketTime == 0 {
		w.lastBucketTime = ts - ts%w.bucketSizeMs
	}

	elapsed := (ts - w.lastBucketTime) / w.bucketSizeMs
	if elapsed < 0 {
		elapsed = 0
	}

	if elapsed >= count {
		// the gap lapped the whole ring; nothing retained is recent enough
		for i := range w.slots {
			w.slots[i].set = false
		}
		w.cursor = int((int64(w.cursor) + elapsed) % count)
		w.lastBucketTime += elapsed * w.bucketSizeMs
	} else if elapsed > 0 {
		// null out skipped buckets between the old and new cursor
		for i := int64(1); i < elapsed; i++ {
			w.slots[(int64(w.cursor)+i)%count].set = false
		}
		w.cursor = int((int64(w.cursor) + elapsed) % count)
		w.lastBucketTime += elapsed * w.bucketSizeMs
	}

	s := &w.slots[w.cursor]
	if !s.set || s.b.Start != w.lastBucketTime {
		// empty slot, or leftover data from a lapped ring: overwrite
		s.b = v
		s.b.Start = w.lastBucketTime
		s.set = true
		return
	}
	w.merge(&s.b, v)
}

func (w *Window) merge(dst *Bucket, v Bucket) {
	switch w.family {
	case FamilyPrice:
		if v.High > dst.High {
			dst.High = v.High
		}
		if v.Low < dst.Low {
			dst.Low = v.Low
		}
		dst.Close = v.Close
	case FamilyVolume:
		dst.BuyVolume += v.BuyVolume
		dst.SellVolume += v.SellVolume
		dst.TotalVolume += v.TotalVolume
	}
	dst.Count += v.Count
}

// Range returns the retained buckets with start times in [start, end], oldest
// first. This is the primary read path for the metrics engine.
func (w *Window) Range(start, end int64) []Bucket {
	count := len(w.slots)
	out := make([]Bucket, 0, count)
	// walk from the oldest position so output is already ascending
	for i := 1; i <= count; i++ {
		s := w.slots[(w.cursor+i)%count]
		if !s.set {
			continue
		}
		if s.b.Start < start || s.b.Start > end {
			continue
		}
		out = append(out, s.b)
	}
	return out
}

// Last returns up to n most recent buckets, oldest first.
func (w *Window) Last(n int) []Bucket {
	count := len(w.slots)
	if n > count {
		n = count
	}
	out := make([]Bucket, 0, n)
	for i := count - n + 1; i <= count; i++ {
		s := w.slots[((w.cursor+i)%count+count)%count]
		if s.set {
			out = append(out, s.b)
		}
	}
	return out
}

// Aggregate folds the last n buckets into one using the family merge. An
// empty selection yields the family identity (a zero bucket), never an error.
func (w *Window) Aggregate(n int) Bucket {
	buckets := w.Last(n)
	if len(buckets) == 0 {
		return Bucket{}
	}
	agg := buckets[0]
	for _, b := range buckets[1:] {
		w.merge(&agg, b)
	}
	return agg
}

// Clear resets the window to empty.
func (w *Window) Clear() {
	for i := range w.slots {
		w.slots[i] = slot{}
	}
	w.cursor = 0
	w.lastBucketTime = 0
}
