package store

// Position identifies a slot of a triple.
type Position int

const (
	PosSubject Position = iota
	PosPredicate
	PosObject
)

// index is one permutation of (S,P,O) as a two-level nested map ending in a
// set of node keys. order[i] names the triple position stored at level i.
type index struct {
	name  string
	order [3]Position
	tree  map[string]map[string]map[string]struct{}
}

func newIndex(name string, a, b, c Position) *index {
	return &index{
		name:  name,
		order: [3]Position{a, b, c},
		tree:  make(map[string]map[string]map[string]struct{}),
	}
}

func (ix *index) insert(keys [3]string) {
	k1, k2, k3 := keys[ix.order[0]], keys[ix.order[1]], keys[ix.order[2]]
	level1, ok := ix.tree[k1]
	if !ok {
		level1 = make(map[string]map[string]struct{})
		ix.tree[k1] = level1
	}
	leaf, ok := level1[k2]
	if !ok {
		leaf = make(map[string]struct{})
		level1[k2] = leaf
	}
	leaf[k3] = struct{}{}
}

// delete removes the entry and prunes branches left empty.
func (ix *index) delete(keys [3]string) {
	k1, k2, k3 := keys[ix.order[0]], keys[ix.order[1]], keys[ix.order[2]]
	level1, ok := ix.tree[k1]
	if !ok {
		return
	}
	leaf, ok := level1[k2]
	if !ok {
		return
	}
	delete(leaf, k3)
	if len(leaf) == 0 {
		delete(level1, k2)
	}
	if len(level1) == 0 {
		delete(ix.tree, k1)
	}
}

// scan visits every entry under the bound prefix. depth is the number of
// leading levels fixed by k1 and k2 (0, 1 or 2).
func (ix *index) scan(depth int, k1, k2 string, fn func(keys [3]string)) {
	emit := func(a, b, c string) {
		var keys [3]string
		keys[ix.order[0]], keys[ix.order[1]], keys[ix.order[2]] = a, b, c
		fn(keys)
	}

	switch depth {
	case 2:
		for c := range ix.tree[k1][k2] {
			emit(k1, k2, c)
		}
	case 1:
		for b, leaf := range ix.tree[k1] {
			for c := range leaf {
				emit(k1, b, c)
			}
		}
	default:
		for a, level1 := range ix.tree {
			for b, leaf := range level1 {
				for c := range leaf {
					emit(a, b, c)
				}
			}
		}
	}
}

// first returns the keys of any one entry under k1.
func (ix *index) first(k1 string) ([3]string, bool) {
	var keys [3]string
	for b, leaf := range ix.tree[k1] {
		for c := range leaf {
			keys[ix.order[0]], keys[ix.order[1]], keys[ix.order[2]] = k1, b, c
			return keys, true
		}
	}
	return keys, false
}

func (ix *index) size() int {
	return len(ix.tree)
}

func (ix *index) reset() {
	ix.tree = make(map[string]map[string]map[string]struct{})
}
