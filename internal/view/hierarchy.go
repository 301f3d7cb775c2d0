package view

import (
	"sort"

	"netshield/internal/models"
)

// HierarchyNode is one protocol in the protocol hierarchy tree.
type HierarchyNode struct {
	Protocol string          `json:"protocol"`
	Count    int             `json:"count"`
	Percent  float64         `json:"percent"`
	Children []HierarchyNode `json:"children,omitempty"`
}

type hnode struct {
	name     string
	count    int
	children []*hnode
	index    map[string]*hnode
}

func (n *hnode) child(name string) *hnode {
	if c, ok := n.index[name]; ok {
		return c
	}
	c := &hnode{name: name, index: make(map[string]*hnode)}
	n.index[name] = c
	n.children = append(n.children, c)
	return c
}

// stack returns the protocol path of one record: link type, network
// payload protocol, then the record's own protocol when it adds a level.
func stack(r models.Record) []string {
	var path []string
	if t := r.Details.LookupText("ethernet", "type"); t != "" {
		path = append(path, t)
	}
	ipProto := r.Details.LookupText("ip", "protocol")
	if ipProto == "" {
		ipProto = r.Details.LookupText("ipv6", "next_header")
	}
	if ipProto != "" {
		path = append(path, ipProto)
	}
	if r.Protocol != "" && r.Protocol != ipProto {
		path = append(path, r.Protocol)
	}
	return path
}

// Hierarchy builds the protocol tree of the captured list. Percentages are
// relative to the sibling total at each level.
func Hierarchy(captured []models.Record) []HierarchyNode {
	root := &hnode{index: make(map[string]*hnode)}
	for _, r := range captured {
		cur := root
		for _, p := range stack(r) {
			cur = cur.child(p)
			cur.count++
		}
	}
	return export(root.children)
}

func export(nodes []*hnode) []HierarchyNode {
	if len(nodes) == 0 {
		return nil
	}
	total := 0
	for _, n := range nodes {
		total += n.count
	}
	out := make([]HierarchyNode, len(nodes))
	for i, n := range nodes {
		out[i] = HierarchyNode{
			Protocol: n.name,
			Count:    n.count,
			Percent:  float64(n.count) * 100 / float64(total),
			Children: export(n.children),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
