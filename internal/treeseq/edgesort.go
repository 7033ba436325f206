package treeseq

import "sort"

// SortEdges sorts edges in place by (parent node time descending is NOT used here;
// tskit sorts by increasing parent time), then parent, then child, then left, per
// spec §4.5's edge-sort requirement. The spec's prose names five fields
// ("parent-time, parent, child, left, right") while also saying the sort is over
// "those four keys"; this implementation resolves the discrepancy by using the
// first four named fields (parent-time, parent, child, left) as the sort key,
// since left and right are monotonic within a single parent/child pair and right
// never needs to participate in breaking ties.
func SortEdges(tables *TableCollection) {
	edges := tables.Edges
	nodes := tables.Nodes
	sort.SliceStable(edges, func(i, j int) bool {
		ti, tj := nodeTime(nodes, edges[i].Parent), nodeTime(nodes, edges[j].Parent)
		if ti != tj {
			return ti < tj
		}
		if edges[i].Parent != edges[j].Parent {
			return edges[i].Parent < edges[j].Parent
		}
		if edges[i].Child != edges[j].Child {
			return edges[i].Child < edges[j].Child
		}
		return edges[i].Left < edges[j].Left
	})
}

func nodeTime(nodes []Node, id int64) float64 {
	if id < 0 || int(id) >= len(nodes) {
		return 0
	}
	return nodes[id].Time
}
