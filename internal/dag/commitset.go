package dag

import (
	"sync"

	"github.com/branchlessvcs/smartlog/internal/dagerrors"
)

// CommitSet is an abstract, lazily-evaluated, ordered set of vertices with
// set algebra. A CommitSet value is a cheap handle onto shared, at-most-once
// evaluated state: copying a CommitSet does not re-run its generator, and
// two CommitSets produced from the same literal or query return vertices in
// the same order on every iteration of that instance. Set algebra
// (Union/Intersection/Difference) never touches the backing index; only the
// Index's own queries (Ancestors, Descendants, ...) do.
type CommitSet struct {
	state *commitSetState
}

type commitSetState struct {
	mu       sync.Mutex
	resolved bool
	vertices []Vertex
	index    map[string]int // vertex key -> position, built alongside vertices
	err      error
	gen      func() ([]Vertex, error)
}

// Empty returns the empty CommitSet.
func Empty() CommitSet {
	return CommitSet{state: &commitSetState{resolved: true}}
}

// FromVertex returns a CommitSet containing exactly one vertex.
func FromVertex(v Vertex) CommitSet {
	return FromVertices([]Vertex{v})
}

// FromVertices returns a CommitSet containing the given vertices, in order,
// deduplicated.
func FromVertices(vs []Vertex) CommitSet {
	return CommitSet{state: &commitSetState{resolved: true, vertices: dedupeVertices(vs)}}
}

// FromOid returns a CommitSet containing exactly the given commit.
func FromOid(oid NonZeroOid) CommitSet {
	return FromVertex(OidToVertex(oid))
}

// FromOids returns a CommitSet containing the given commits, in iteration
// order, deduplicated.
func FromOids(oids []NonZeroOid) CommitSet {
	vs := make([]Vertex, len(oids))
	for i, o := range oids {
		vs[i] = OidToVertex(o)
	}
	return FromVertices(vs)
}

// lazy wraps a generator function in a CommitSet that evaluates it at most
// once, on first use.
func lazy(gen func() ([]Vertex, error)) CommitSet {
	return CommitSet{state: &commitSetState{gen: gen}}
}

func dedupeVertices(vs []Vertex) []Vertex {
	seen := make(map[string]bool, len(vs))
	out := make([]Vertex, 0, len(vs))
	for _, v := range vs {
		k := v.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

// resolve evaluates the set's generator exactly once, caching the result
// (including any error) for subsequent calls.
func (s CommitSet) resolve() ([]Vertex, error) {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.resolved {
		return st.vertices, st.err
	}
	st.resolved = true
	if st.gen == nil {
		return st.vertices, nil
	}
	vs, err := st.gen()
	st.gen = nil
	if err != nil {
		st.err = err
		return nil, err
	}
	st.vertices = dedupeVertices(vs)
	return st.vertices, nil
}

func (s CommitSet) vertexIndex() (map[string]int, error) {
	st := s.state
	vs, err := s.resolve()
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.index != nil {
		return st.index, nil
	}
	idx := make(map[string]int, len(vs))
	for i, v := range vs {
		idx[v.key()] = i
	}
	st.index = idx
	return idx, nil
}

// Iter eagerly materializes the set's vertices in iteration order,
// propagating any backend error as IterationFailure.
func (s CommitSet) Iter() ([]Vertex, error) {
	vs, err := s.resolve()
	if err != nil {
		return nil, dagerrors.WrapIteration(err, "iterate")
	}
	return vs, nil
}

// IsEmpty reports whether the set has no members.
func (s CommitSet) IsEmpty() (bool, error) {
	vs, err := s.Iter()
	if err != nil {
		return false, err
	}
	return len(vs) == 0, nil
}

// Count returns the number of members.
func (s CommitSet) Count() (int, error) {
	vs, err := s.Iter()
	if err != nil {
		return 0, err
	}
	return len(vs), nil
}

// Contains reports whether the given vertex is a member.
func (s CommitSet) Contains(v Vertex) (bool, error) {
	idx, err := s.vertexIndex()
	if err != nil {
		return false, dagerrors.WrapIteration(err, "iterate")
	}
	_, ok := idx[v.key()]
	return ok, nil
}

// Union returns a set containing a's members followed by any of b's members
// not already present. Pure set algebra: never touches the backing index.
func (a CommitSet) Union(b CommitSet) CommitSet {
	return lazy(func() ([]Vertex, error) {
		av, err := a.resolve()
		if err != nil {
			return nil, err
		}
		bv, err := b.resolve()
		if err != nil {
			return nil, err
		}
		out := make([]Vertex, 0, len(av)+len(bv))
		out = append(out, av...)
		out = append(out, bv...)
		return out, nil
	})
}

// Intersection returns a's members that are also in b, in a's order.
func (a CommitSet) Intersection(b CommitSet) CommitSet {
	return lazy(func() ([]Vertex, error) {
		av, err := a.resolve()
		if err != nil {
			return nil, err
		}
		bidx, err := b.vertexIndex()
		if err != nil {
			return nil, err
		}
		out := make([]Vertex, 0, len(av))
		for _, v := range av {
			if _, ok := bidx[v.key()]; ok {
				out = append(out, v)
			}
		}
		return out, nil
	})
}

// Difference returns a's members that are not in b, in a's order.
func (a CommitSet) Difference(b CommitSet) CommitSet {
	return lazy(func() ([]Vertex, error) {
		av, err := a.resolve()
		if err != nil {
			return nil, err
		}
		bidx, err := b.vertexIndex()
		if err != nil {
			return nil, err
		}
		out := make([]Vertex, 0, len(av))
		for _, v := range av {
			if _, ok := bidx[v.key()]; !ok {
				out = append(out, v)
			}
		}
		return out, nil
	})
}

// UnionAll folds Union across a slice of sets, starting from the empty set.
func UnionAll(sets []CommitSet) CommitSet {
	acc := Empty()
	for _, s := range sets {
		acc = acc.Union(s)
	}
	return acc
}

// CommitSetToOids eagerly materializes a CommitSet into an ordered slice of
// non-zero oids, propagating codec errors and the set's own iteration
// error.
func CommitSetToOids(s CommitSet) ([]NonZeroOid, error) {
	vs, err := s.Iter()
	if err != nil {
		return nil, err
	}
	out := make([]NonZeroOid, 0, len(vs))
	for _, v := range vs {
		oid, err := VertexToNonZeroOid(v)
		if err != nil {
			return nil, dagerrors.Wrapf(err, dagerrors.CodecError, "convert", "converting vertex to oid")
		}
		out = append(out, oid)
	}
	return out, nil
}
