package tree

import (
	"math/rand"
	"sort"
	"strings"
	"testing"

	"multitrack/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func original(id string) model.PublicationRecord {
	return model.PublicationRecord{ID: id, Kind: model.KindOriginal, Title: id, MediaRefs: []string{"ipfs://" + id}}
}

func remix(id, parent string) model.PublicationRecord {
	return model.PublicationRecord{
		ID:        id,
		Kind:      model.KindRemix,
		ParentID:  parent,
		Title:     id,
		MediaRefs: []string{"ipfs://" + id + "/layer", "ipfs://" + id + "/mix"},
	}
}

func childIDs(n *Node) []string {
	ids := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		ids = append(ids, c.Record.ID)
	}
	return ids
}

// canonical renders a forest so that isomorphic forests compare equal.
func canonical(f *Forest) string {
	var render func(n *Node) string
	render = func(n *Node) string {
		kids := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			kids = append(kids, render(c))
		}
		sort.Strings(kids)
		return n.Record.ID + "(" + strings.Join(kids, ",") + ")"
	}
	roots := make([]string, 0, len(f.Roots))
	for _, r := range f.Roots {
		roots = append(roots, render(r))
	}
	sort.Strings(roots)
	return strings.Join(roots, ";")
}

func TestBuild_AttachesRemixChains(t *testing.T) {
	records := []model.PublicationRecord{
		original("0x01-0x01"),
		remix("0x02-0x03", "0x01-0x01"),
		original("0x01-0x02"),
		remix("0x03-0x05", "0x02-0x03"),
		remix("0x01-0x07", "0x03-0x05"),
	}

	f := Build(records)

	require.Len(t, f.Roots, 2)
	assert.Equal(t, "0x01-0x01", f.Roots[0].Record.ID)
	assert.Equal(t, "0x01-0x02", f.Roots[1].Record.ID)
	assert.Empty(t, f.Orphans)
	assert.Equal(t, 5, f.Size())

	depths := map[string]int{}
	f.Walk(func(n *Node, depth int) { depths[n.Record.ID] = depth })
	assert.Equal(t, map[string]int{
		"0x01-0x01": 0,
		"0x01-0x02": 0,
		"0x02-0x03": 1,
		"0x03-0x05": 2,
		"0x01-0x07": 3,
	}, depths)
	assert.Empty(t, f.Roots[1].Children)
}

func TestBuild_OrphansAreReportedAndExcluded(t *testing.T) {
	records := []model.PublicationRecord{
		original("1-1"),
		remix("1-2", "1-1"),
		remix("1-3", "9-9"),
		remix("1-4", "8-8"),
	}

	f := Build(records)

	assert.Equal(t, 2, f.Size())
	assert.Nil(t, f.Find("1-3"))
	assert.Nil(t, f.Find("1-4"))
	assert.Equal(t, []OrphanWarning{
		{ID: "1-3", ParentID: "9-9"},
		{ID: "1-4", ParentID: "8-8"},
	}, f.Orphans)
}

func TestBuild_ChildrenOrderedNumerically(t *testing.T) {
	records := []model.PublicationRecord{
		original("1-1"),
		remix("1-10", "1-1"),
		remix("1-2", "1-1"),
		remix("1-0x03", "1-1"),
	}

	f := Build(records)

	require.Len(t, f.Roots, 1)
	assert.Equal(t, []string{"1-2", "1-0x03", "1-10"}, childIDs(f.Roots[0]))
}

func TestBuild_SinglePassOrphansChildSortedBeforeParent(t *testing.T) {
	// The remix at sequence 2 points at a remix with sequence 5, which is
	// only attached later in the pass.
	records := []model.PublicationRecord{
		original("1-1"),
		remix("1-5", "1-1"),
		remix("1-2", "1-5"),
	}

	f := Build(records)

	assert.Equal(t, []OrphanWarning{{ID: "1-2", ParentID: "1-5"}}, f.Orphans)
	assert.Equal(t, []string{"1-5"}, childIDs(f.Roots[0]))
}

func TestBuild_CyclesNeverAttach(t *testing.T) {
	records := []model.PublicationRecord{
		original("1-1"),
		remix("1-2", "1-3"),
		remix("1-3", "1-2"),
		remix("1-4", "1-4"),
	}

	f := Build(records)

	assert.Equal(t, 1, f.Size())
	assert.Len(t, f.Orphans, 3)
}

func TestBuild_EmptyInput(t *testing.T) {
	f := Build(nil)
	assert.NotNil(t, f.Roots)
	assert.Empty(t, f.Roots)
	assert.Empty(t, f.Orphans)
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	records := []model.PublicationRecord{remix("1-9", "1-1"), original("1-1"), remix("1-3", "1-1")}
	snapshot := append([]model.PublicationRecord(nil), records...)

	Build(records)

	assert.Equal(t, snapshot, records)
}

func TestBuild_PermutationYieldsIsomorphicForest(t *testing.T) {
	records := []model.PublicationRecord{
		original("0x01-0x01"),
		original("0x02-0x01"),
		remix("0x03-0x02", "0x01-0x01"),
		remix("0x04-0x02", "0x01-0x01"),
		remix("0x01-0x04", "0x03-0x02"),
		remix("0x02-0x06", "0x02-0x01"),
		remix("0x05-0x08", "0x02-0x06"),
		remix("0x05-0x09", "0x7f-0x01"),
	}
	want := canonical(Build(records))

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]model.PublicationRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		f := Build(shuffled)
		assert.Equal(t, want, canonical(f))
		assert.Len(t, f.Orphans, 1)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	records := []model.PublicationRecord{original("1-1"), remix("1-2", "1-1"), remix("1-3", "1-2")}
	assert.Equal(t, Build(records), Build(records))
}
