package dag

import "github.com/branchlessvcs/smartlog/internal/dagerrors"

// GetConnectedComponents partitions commitSet into its connected components
// under the induced parent-or-child graph restricted to commitSet itself.
//
// This is a known O(n^2) algorithm in the worst case: acceptable at the
// input sizes this engine expects in practice (a user's visible or draft
// commit set, not the whole repository). A linear-expected alternative
// would build an adjacency over commitSet and union components via a
// disjoint-set forest instead of repeatedly intersecting with the
// remaining set; left as a documented possible improvement (§9).
func (d *Dag) GetConnectedComponents(commitSet CommitSet) ([]CommitSet, error) {
	members, err := CommitSetToOids(commitSet)
	if err != nil {
		return nil, err
	}

	var components []CommitSet
	component := Empty()
	remaining := commitSet

	for _, oid := range members {
		commitVertexSet := FromOid(oid)

		remainingEmpty, err := remaining.IsEmpty()
		if err != nil {
			return nil, err
		}
		if remainingEmpty {
			break
		}

		contains, err := remaining.Contains(OidToVertex(oid))
		if err != nil {
			return nil, err
		}
		if !contains {
			continue
		}

		frontier := commitVertexSet
		for {
			frontierEmpty, err := frontier.IsEmpty()
			if err != nil {
				return nil, err
			}
			if frontierEmpty {
				break
			}

			component = component.Union(frontier)
			remaining = remaining.Difference(frontier)

			parents, err := d.index.Parents(frontier)
			if err != nil {
				return nil, err
			}
			children, err := d.index.Children(frontier)
			if err != nil {
				return nil, err
			}
			frontier = parents.Union(children).Intersection(remaining)
		}

		components = append(components, component)
		component = Empty()
	}

	connected := UnionAll(components)
	total, err := commitSet.Count()
	if err != nil {
		return nil, err
	}
	connectedCount, err := connected.Count()
	if err != nil {
		return nil, err
	}
	if total != connectedCount {
		return nil, dagerrors.New(dagerrors.BackendError, "connected_components", "decomposition did not cover every member of the input set")
	}

	intersected := commitSet.Intersection(connected)
	intersectedCount, err := intersected.Count()
	if err != nil {
		return nil, err
	}
	if total != intersectedCount {
		return nil, dagerrors.New(dagerrors.BackendError, "connected_components", "decomposition introduced vertices outside the input set")
	}

	return components, nil
}
