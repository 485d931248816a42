package geometry

import (
	"bytes"
	"encoding/json"
)

// Tree is the recursive coordinate structure carried by GeoJSON geometries:
// either a single [longitude, latitude] position or a sequence of subtrees.
// Nesting depth is unbounded; Point, LineString, Polygon and MultiPolygon
// shapes are all just trees of different depths.
type Tree struct {
	pair     *Pair
	branches []Tree
}

// Pair is a coordinate leaf. GeoJSON orders positions longitude first.
type Pair struct {
	Lon Number
	Lat Number
}

// Leaf returns a position node.
func Leaf(lon, lat Number) Tree {
	return Tree{pair: &Pair{Lon: lon, Lat: lat}}
}

// Branch returns a sequence node.
func Branch(children ...Tree) Tree {
	return Tree{branches: children}
}

func (t Tree) IsLeaf() bool { return t.pair != nil }

// Pair returns the position of a leaf node.
func (t Tree) Pair() (Pair, bool) {
	if t.pair == nil {
		return Pair{}, false
	}
	return *t.pair, true
}

func (t Tree) Children() []Tree { return t.branches }

// Empty reports whether the tree holds no positions at all.
func (t Tree) Empty() bool {
	if t.pair != nil {
		return false
	}
	for _, c := range t.branches {
		if !c.Empty() {
			return false
		}
	}
	return true
}

// Round returns a copy with every leaf rescaled to the given number of
// decimal places. Rounding an already rounded tree is a no-op.
func (t Tree) Round(places int32) Tree {
	if t.pair != nil {
		return Leaf(t.pair.Lon.Round(places), t.pair.Lat.Round(places))
	}
	if t.branches == nil {
		return Tree{}
	}
	children := make([]Tree, len(t.branches))
	for i, c := range t.branches {
		children[i] = c.Round(places)
	}
	return Branch(children...)
}

// Extent folds every leaf into a bounding extent. An empty tree yields the
// empty extent, which signals that no spatial extent is available.
func (t Tree) Extent() Extent {
	var e Extent
	t.walk(func(p Pair) {
		e = e.Merge(pointExtent(p))
	})
	return e
}

func (t Tree) walk(fn func(Pair)) {
	if t.pair != nil {
		fn(*t.pair)
		return
	}
	for _, c := range t.branches {
		c.walk(fn)
	}
}

// MarshalJSON renders the tree back into the nested-array wire form.
func (t Tree) MarshalJSON() ([]byte, error) {
	if t.pair != nil {
		return json.Marshal([2]Number{t.pair.Lon, t.pair.Lat})
	}
	if t.branches == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.branches)
}

// UnmarshalJSON maps nested arrays onto the tagged form. A 2-element array
// of numbers is a leaf; any other array is a branch. Anything that is not
// an array decodes to the empty tree: a missing extent is degraded output,
// not an error.
func (t *Tree) UnmarshalJSON(data []byte) error {
	*t = Tree{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil
	}
	if len(elems) == 2 && isNumber(elems[0]) && isNumber(elems[1]) {
		var lon, lat Number
		if err := json.Unmarshal(elems[0], &lon); err != nil {
			return nil
		}
		if err := json.Unmarshal(elems[1], &lat); err != nil {
			return nil
		}
		*t = Leaf(lon, lat)
		return nil
	}
	children := make([]Tree, 0, len(elems))
	for _, raw := range elems {
		var c Tree
		_ = c.UnmarshalJSON(raw)
		children = append(children, c)
	}
	*t = Branch(children...)
	return nil
}

func isNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case '[', '{', '"', 't', 'f', 'n':
		return false
	}
	return true
}
