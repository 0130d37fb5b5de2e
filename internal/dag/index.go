package dag

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/branchlessvcs/smartlog/internal/dagerrors"
	gocache "github.com/patrickmn/go-cache"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
)

var (
	bucketVertices = []byte("vertices") // vertex -> concatenated parent vertices
	bucketChildren = []byte("children") // vertex -> concatenated child vertices
	bucketMaster   = []byte("master")   // vertex -> presence marks "reachable from master heads"; consulted by AddHeadsAndFlush to skip re-walking recorded master ancestors
	bucketMeta     = []byte("meta")     // scalar key/value pairs, e.g. the history fingerprint SyncFromOids uses to detect rewrites
)

// parentFrontierConcurrency is the frontier size at or above which parent
// lookups during add_heads_and_flush are resolved concurrently (§4.4
// addition).
const parentFrontierConcurrency = 16

// ParentFn returns the parent vertices of v. It absorbs "unknown or
// non-commit" by returning an empty slice; any other failure should be
// returned as an error, which propagates as BackendError.
type ParentFn func(v Vertex) ([]Vertex, error)

// Index is the persistent, segment-based DAG index: one bbolt database
// holding the commit adjacency (and its reverse), opened under the repo's
// private metadata directory. Queries walk only the segments reachable from
// their roots, not the whole bucket.
type Index struct {
	db            *bolt.DB
	ancestorCache *gocache.Cache
}

// OpenIndex opens (creating if necessary) the persistent DAG index rooted
// at dir. Directory creation is idempotent.
func OpenIndex(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dagerrors.WrapIndexIO(err, "open", "creating DAG index directory "+dir)
	}
	path := filepath.Join(dir, "index.bbolt")
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, dagerrors.WrapIndexIO(err, "open", "opening DAG index at "+path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketVertices, bucketChildren, bucketMaster, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, dagerrors.WrapIndexIO(err, "open", "initializing DAG index buckets")
	}
	return &Index{
		db:            db,
		ancestorCache: gocache.New(gocache.NoExpiration, gocache.NoExpiration),
	}, nil
}

// Close releases the index's file handle. No pending writes are buffered
// beyond what AddHeadsAndFlush already flushed, so Close never itself
// writes.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Meta reads a scalar value previously recorded with SetMeta. found is
// false if key was never set.
func (ix *Index) Meta(key string) (value string, found bool, err error) {
	err = ix.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		value = string(raw)
		return nil
	})
	if err != nil {
		return "", false, dagerrors.WrapIndexIO(err, "query", "reading DAG index metadata")
	}
	return value, found, nil
}

// SetMeta records a scalar value in bucketMeta, overwriting any prior value
// for key.
func (ix *Index) SetMeta(key, value string) error {
	err := ix.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return dagerrors.WrapIndexIO(err, "sync", "writing DAG index metadata")
	}
	return nil
}

func encodeVertexList(vs []Vertex) []byte {
	buf := make([]byte, 0, len(vs)*oidSize)
	for _, v := range vs {
		buf = append(buf, v...)
	}
	return buf
}

func decodeVertexList(b []byte) []Vertex {
	n := len(b) / oidSize
	out := make([]Vertex, n)
	for i := 0; i < n; i++ {
		v := make(Vertex, oidSize)
		copy(v, b[i*oidSize:(i+1)*oidSize])
		out[i] = v
	}
	return out
}

func getAdjacency(tx *bolt.Tx, bucket []byte, v Vertex) []Vertex {
	raw := tx.Bucket(bucket).Get(v)
	if raw == nil {
		return nil
	}
	return decodeVertexList(raw)
}

func hasVertex(tx *bolt.Tx, v Vertex) bool {
	return tx.Bucket(bucketVertices).Get(v) != nil
}

func isMasterMarked(tx *bolt.Tx, v Vertex) bool {
	return tx.Bucket(bucketMaster).Get(v) != nil
}

// AddHeadsAndFlush extends the index to cover all ancestors of masterHeads
// and nonMasterHeads, persisting the result in one transaction. parentFn is
// only invoked for vertices not already recorded. If forceRewalk is set, no
// vertex is assumed already recorded, even if bucketVertices/bucketMaster
// say otherwise; SyncFromOids sets this when it detects the repository's
// history has been rewritten since the last flush (§4.4 addition).
func (ix *Index) AddHeadsAndFlush(parentFn ParentFn, masterHeads, nonMasterHeads CommitSet, forceRewalk bool) error {
	masterVs, err := masterHeads.Iter()
	if err != nil {
		return err
	}
	nonMasterVs, err := nonMasterHeads.Iter()
	if err != nil {
		return err
	}

	discovered := make(map[string][]Vertex) // newly discovered vertex -> its parents
	visited := make(map[string]bool)
	var frontier []Vertex

	// Master heads already marked in bucketMaster at a prior flush have
	// their entire ancestry recorded there too (bucketMaster is always
	// written as the full ancestor closure of masterHeads, below) — skip
	// re-walking them entirely rather than falling through to the generic
	// "already in bucketVertices" check every other vertex gets. This is
	// the "master-reachable vertices are append-mostly and not re-walked
	// once recorded" optimization from §4.3.
	err = ix.db.View(func(tx *bolt.Tx) error {
		for _, v := range masterVs {
			if !forceRewalk && isMasterMarked(tx, v) {
				visited[v.key()] = true
				continue
			}
			frontier = append(frontier, v)
		}
		for _, v := range nonMasterVs {
			if !forceRewalk && hasVertex(tx, v) {
				visited[v.key()] = true
				continue
			}
			frontier = append(frontier, v)
		}
		return nil
	})
	if err != nil {
		return dagerrors.WrapIndexIO(err, "sync", "reading existing DAG index")
	}
	frontier = dedupeVertices(frontier)

	for len(frontier) > 0 {
		var unknown []Vertex
		// A vertex reached while expanding the frontier (not just an initial
		// head) may already be recorded from a prior flush — e.g. the
		// immediate parent of a single new commit on top of otherwise
		// unchanged history. Stop there instead of re-deriving parents for
		// the rest of an already-indexed ancestor chain.
		err = ix.db.View(func(tx *bolt.Tx) error {
			for _, v := range frontier {
				k := v.key()
				if visited[k] {
					continue
				}
				visited[k] = true
				if !forceRewalk && hasVertex(tx, v) {
					continue
				}
				unknown = append(unknown, v)
			}
			return nil
		})
		if err != nil {
			return dagerrors.WrapIndexIO(err, "sync", "reading existing DAG index")
		}
		if len(unknown) == 0 {
			break
		}

		parentsOf, err := resolveParents(parentFn, unknown)
		if err != nil {
			return err
		}

		var next []Vertex
		for _, v := range unknown {
			parents := parentsOf[v.key()]
			discovered[v.key()] = parents
			next = append(next, parents...)
		}
		frontier = next
	}

	return ix.db.Update(func(tx *bolt.Tx) error {
		vb := tx.Bucket(bucketVertices)
		cb := tx.Bucket(bucketChildren)
		for key, parents := range discovered {
			v := Vertex(key)
			if err := vb.Put(v, encodeVertexList(parents)); err != nil {
				return err
			}
			for _, p := range parents {
				existing := decodeVertexList(cb.Get(p))
				existing = dedupeVertices(append(existing, v))
				if err := cb.Put(p, encodeVertexList(existing)); err != nil {
					return err
				}
			}
		}

		mb := tx.Bucket(bucketMaster)
		masterAncestors := ancestorsTx(tx, masterVs)
		for _, v := range masterAncestors {
			if err := mb.Put(v, []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
}

// resolveParents evaluates parentFn for each vertex, fanning out across
// goroutines once the frontier is large enough to be worth it (§4.4).
func resolveParents(parentFn ParentFn, vs []Vertex) (map[string][]Vertex, error) {
	out := make(map[string][]Vertex, len(vs))
	if len(vs) < parentFrontierConcurrency {
		for _, v := range vs {
			parents, err := parentFn(v)
			if err != nil {
				return nil, dagerrors.WrapBackend(err, "sync", "resolving parents for "+v.key())
			}
			out[v.key()] = parents
		}
		return out, nil
	}

	results := make([][]Vertex, len(vs))
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, v := range vs {
		i, v := i, v
		g.Go(func() error {
			parents, err := parentFn(v)
			if err != nil {
				return dagerrors.WrapBackend(err, "sync", "resolving parents for "+v.key())
			}
			results[i] = parents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, v := range vs {
		out[v.key()] = results[i]
	}
	return out, nil
}

// walk performs a BFS over the adjacency named by bucket, starting from
// roots, and returns all visited vertices including the roots themselves.
func walk(tx *bolt.Tx, bucket []byte, roots []Vertex) []Vertex {
	visited := make(map[string]bool, len(roots))
	var order []Vertex
	queue := append([]Vertex{}, roots...)
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		k := v.key()
		if visited[k] {
			continue
		}
		visited[k] = true
		order = append(order, v)
		queue = append(queue, getAdjacency(tx, bucket, v)...)
	}
	return order
}

func ancestorsTx(tx *bolt.Tx, roots []Vertex) []Vertex {
	return walk(tx, bucketVertices, roots)
}

// Ancestors returns the transitive closure over the parent relation,
// including the roots themselves.
func (ix *Index) Ancestors(set CommitSet) (CommitSet, error) {
	return ix.transitiveClosure(set, bucketVertices)
}

// Descendants returns the transitive closure over the child relation,
// including the roots themselves.
func (ix *Index) Descendants(set CommitSet) (CommitSet, error) {
	return ix.transitiveClosure(set, bucketChildren)
}

func (ix *Index) transitiveClosure(set CommitSet, bucket []byte) (CommitSet, error) {
	roots, err := set.Iter()
	if err != nil {
		return CommitSet{}, err
	}
	var out []Vertex
	err = ix.db.View(func(tx *bolt.Tx) error {
		out = walk(tx, bucket, roots)
		return nil
	})
	if err != nil {
		return CommitSet{}, dagerrors.WrapIndexIO(err, "query", "walking DAG index")
	}
	return FromVertices(out), nil
}

// Parents returns the direct parents of every member of set.
func (ix *Index) Parents(set CommitSet) (CommitSet, error) {
	return ix.directAdjacency(set, bucketVertices)
}

// Children returns the direct children of every member of set.
func (ix *Index) Children(set CommitSet) (CommitSet, error) {
	return ix.directAdjacency(set, bucketChildren)
}

func (ix *Index) directAdjacency(set CommitSet, bucket []byte) (CommitSet, error) {
	vs, err := set.Iter()
	if err != nil {
		return CommitSet{}, err
	}
	var out []Vertex
	err = ix.db.View(func(tx *bolt.Tx) error {
		for _, v := range vs {
			out = append(out, getAdjacency(tx, bucket, v)...)
		}
		return nil
	})
	if err != nil {
		return CommitSet{}, dagerrors.WrapIndexIO(err, "query", "reading DAG adjacency")
	}
	return FromVertices(out), nil
}

// Roots returns the members of set with no parent within set.
func (ix *Index) Roots(set CommitSet) (CommitSet, error) {
	return ix.frontierMembers(set, bucketVertices)
}

// Heads returns the members of set with no child within set.
func (ix *Index) Heads(set CommitSet) (CommitSet, error) {
	return ix.frontierMembers(set, bucketChildren)
}

func (ix *Index) frontierMembers(set CommitSet, bucket []byte) (CommitSet, error) {
	vs, err := set.Iter()
	if err != nil {
		return CommitSet{}, err
	}
	idx, err := set.vertexIndex()
	if err != nil {
		return CommitSet{}, err
	}
	var out []Vertex
	err = ix.db.View(func(tx *bolt.Tx) error {
		for _, v := range vs {
			hasMemberNeighbor := false
			for _, n := range getAdjacency(tx, bucket, v) {
				if _, ok := idx[n.key()]; ok {
					hasMemberNeighbor = true
					break
				}
			}
			if !hasMemberNeighbor {
				out = append(out, v)
			}
		}
		return nil
	})
	if err != nil {
		return CommitSet{}, dagerrors.WrapIndexIO(err, "query", "computing frontier")
	}
	return FromVertices(out), nil
}

// Only returns commits reachable from roots but not from bases:
// ancestors(roots) \ ancestors(bases).
func (ix *Index) Only(roots, bases CommitSet) (CommitSet, error) {
	rootAncestors, err := ix.Ancestors(roots)
	if err != nil {
		return CommitSet{}, err
	}
	baseAncestors, err := ix.Ancestors(bases)
	if err != nil {
		return CommitSet{}, err
	}
	return rootAncestors.Difference(baseAncestors), nil
}

// Range returns descendants(roots) ∩ ancestors(heads).
func (ix *Index) Range(roots, heads CommitSet) (CommitSet, error) {
	desc, err := ix.Descendants(roots)
	if err != nil {
		return CommitSet{}, err
	}
	anc, err := ix.Ancestors(heads)
	if err != nil {
		return CommitSet{}, err
	}
	return desc.Intersection(anc), nil
}

// Sort returns the members of set in topological order (parents before
// children) restricted to the induced subgraph over set, with ties broken
// by byte order of the vertex for determinism.
func (ix *Index) Sort(set CommitSet) (CommitSet, error) {
	vs, err := set.Iter()
	if err != nil {
		return CommitSet{}, err
	}
	members := make(map[string]bool, len(vs))
	for _, v := range vs {
		members[v.key()] = true
	}

	var sorted []Vertex
	err = ix.db.View(func(tx *bolt.Tx) error {
		inDegree := make(map[string]int, len(vs))
		childrenOf := make(map[string][]Vertex, len(vs))
		for _, v := range vs {
			deg := 0
			for _, p := range getAdjacency(tx, bucketVertices, v) {
				if members[p.key()] {
					deg++
					childrenOf[p.key()] = append(childrenOf[p.key()], v)
				}
			}
			inDegree[v.key()] = deg
		}

		var ready []Vertex
		for _, v := range vs {
			if inDegree[v.key()] == 0 {
				ready = append(ready, v)
			}
		}

		for len(ready) > 0 {
			sort.Slice(ready, func(i, j int) bool { return ready[i].key() < ready[j].key() })
			v := ready[0]
			ready = ready[1:]
			sorted = append(sorted, v)
			for _, child := range childrenOf[v.key()] {
				inDegree[child.key()]--
				if inDegree[child.key()] == 0 {
					ready = append(ready, child)
				}
			}
		}
		return nil
	})
	if err != nil {
		return CommitSet{}, dagerrors.WrapIndexIO(err, "query", "sorting DAG index")
	}
	return FromVertices(sorted), nil
}

// IsAncestor reports whether a is an ancestor of (or equal to) b. Results
// are memoized for the lifetime of the index handle.
func (ix *Index) IsAncestor(a, b NonZeroOid) (bool, error) {
	cacheKey := a.String() + ">" + b.String()
	if cached, ok := ix.ancestorCache.Get(cacheKey); ok {
		return cached.(bool), nil
	}

	av := OidToVertex(a)
	bv := OidToVertex(b)
	var result bool
	err := ix.db.View(func(tx *bolt.Tx) error {
		if av.key() == bv.key() {
			result = true
			return nil
		}
		visited := map[string]bool{bv.key(): true}
		queue := getAdjacency(tx, bucketVertices, bv)
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			if v.key() == av.key() {
				result = true
				return nil
			}
			if visited[v.key()] {
				continue
			}
			visited[v.key()] = true
			queue = append(queue, getAdjacency(tx, bucketVertices, v)...)
		}
		return nil
	})
	if err != nil {
		return false, dagerrors.WrapIndexIO(err, "query", "computing is_ancestor")
	}
	ix.ancestorCache.Set(cacheKey, result, gocache.NoExpiration)
	return result, nil
}
