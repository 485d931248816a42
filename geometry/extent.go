package geometry

// Extent is an optional bounding rectangle. The zero value is the empty
// extent: no positions contributed to it. Merge treats the empty extent as
// its identity, so extents can be folded in any order.
type Extent struct {
	MinLat *Number
	MaxLat *Number
	MinLon *Number
	MaxLon *Number
}

func pointExtent(p Pair) Extent {
	lat, lon := p.Lat, p.Lon
	return Extent{MinLat: &lat, MaxLat: &lat, MinLon: &lon, MaxLon: &lon}
}

// Empty reports whether no extent is known.
func (e Extent) Empty() bool {
	return e.MinLat == nil && e.MaxLat == nil && e.MinLon == nil && e.MaxLon == nil
}

// Merge combines two extents into the smallest extent covering both.
// The operation is associative and commutative.
func (e Extent) Merge(other Extent) Extent {
	return Extent{
		MinLat: pickNumber(e.MinLat, other.MinLat, func(a, b Number) bool { return a.LessThan(b) }),
		MaxLat: pickNumber(e.MaxLat, other.MaxLat, func(a, b Number) bool { return b.LessThan(a) }),
		MinLon: pickNumber(e.MinLon, other.MinLon, func(a, b Number) bool { return a.LessThan(b) }),
		MaxLon: pickNumber(e.MaxLon, other.MaxLon, func(a, b Number) bool { return b.LessThan(a) }),
	}
}

func pickNumber(a, b *Number, wins func(a, b Number) bool) *Number {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case wins(*a, *b):
		return a
	default:
		return b
	}
}

// Round rescales every known bound to the given number of decimal places.
func (e Extent) Round(places int32) Extent {
	return Extent{
		MinLat: roundPtr(e.MinLat, places),
		MaxLat: roundPtr(e.MaxLat, places),
		MinLon: roundPtr(e.MinLon, places),
		MaxLon: roundPtr(e.MaxLon, places),
	}
}

func roundPtr(n *Number, places int32) *Number {
	if n == nil {
		return nil
	}
	r := n.Round(places)
	return &r
}
