package tree

import (
	"math/big"
	"sort"

	"multitrack/logger"
	"multitrack/model"
)

// Node wraps one publication and the remixes layered directly on it.
// Children are in ascending numeric sequence order.
type Node struct {
	Record   model.PublicationRecord `json:"record"`
	Children []*Node                 `json:"children"`
}

// OrphanWarning reports a remix whose parent was not found in the forest.
type OrphanWarning struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
}

// Forest is one tree per original track.
type Forest struct {
	Roots   []*Node         `json:"roots"`
	Orphans []OrphanWarning `json:"orphans"`
}

// Build arranges a flat snapshot of publications into a forest.
//
// Originals become roots in their input order. Remixes are sorted by the
// numeric value of their sequence id (stable, so ties keep input order) and
// attached in a single pass to the node wrapping their parent. A remix whose
// parent is not yet in the forest at that point is an orphan: it is logged,
// reported in Forest.Orphans and left out. Orphans are not retried, so a
// remix sorted ahead of its own parent is orphaned as well.
//
// Build does not modify records and is safe for concurrent use.
func Build(records []model.PublicationRecord) *Forest {
	forest := &Forest{Roots: []*Node{}, Orphans: []OrphanWarning{}}
	index := make(map[string]*Node, len(records))

	var pending []pendingRemix
	for _, rec := range records {
		if rec.Kind != model.KindRemix {
			node := &Node{Record: rec, Children: []*Node{}}
			forest.Roots = append(forest.Roots, node)
			if _, dup := index[rec.ID]; !dup {
				index[rec.ID] = node
			}
			continue
		}
		pending = append(pending, pendingRemix{record: rec, seq: sequenceOf(rec.ID)})
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].seq.Cmp(pending[j].seq) < 0
	})

	for _, p := range pending {
		parent, ok := index[p.record.ParentID]
		if !ok || p.record.ParentID == p.record.ID {
			logger.Warn("[TreeBuilder] 混音找不到父节点",
				logger.String("id", p.record.ID),
				logger.String("parentId", p.record.ParentID))
			forest.Orphans = append(forest.Orphans, OrphanWarning{ID: p.record.ID, ParentID: p.record.ParentID})
			continue
		}
		node := &Node{Record: p.record, Children: []*Node{}}
		parent.Children = append(parent.Children, node)
		if _, dup := index[p.record.ID]; !dup {
			index[p.record.ID] = node
		}
	}

	return forest
}

type pendingRemix struct {
	record model.PublicationRecord
	seq    *big.Int
}

// unparsable sequences sort first, as zero
func sequenceOf(id string) *big.Int {
	if seq, ok := model.Sequence(id); ok {
		return seq
	}
	return new(big.Int)
}

// Walk visits every node depth-first, parents before children.
func (f *Forest) Walk(fn func(n *Node, depth int)) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, r := range f.Roots {
		visit(r, 0)
	}
}

// Size counts the nodes in the forest.
func (f *Forest) Size() int {
	n := 0
	f.Walk(func(*Node, int) { n++ })
	return n
}

// Find returns the node wrapping id, or nil.
func (f *Forest) Find(id string) *Node {
	var found *Node
	f.Walk(func(n *Node, _ int) {
		if found == nil && n.Record.ID == id {
			found = n
		}
	})
	return found
}
