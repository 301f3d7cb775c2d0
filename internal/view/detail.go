package view

import (
	"strconv"
	"strings"

	"netshield/internal/models"
)

// Placeholder texts shown when nothing is selected.
const (
	NoDetailText  = "Select a packet to see details"
	NoDiagramText = "Select a packet to see diagram"
)

// PathSep joins tree path segments. Separators, '#' and backslashes inside a
// name are backslash-escaped. The k-th repeat of a name among its siblings
// gets a "#k" suffix so that every node has its own path.
const PathSep = "."

var segmentEscaper = strings.NewReplacer(`\`, `\\`, PathSep, `\`+PathSep, "#", `\#`)

func segment(name string, repeat int) string {
	seg := segmentEscaper.Replace(name)
	if repeat > 0 {
		seg += "#" + strconv.Itoa(repeat)
	}
	return seg
}

// Expansion records which composite nodes of the detail tree are expanded.
// Everything not listed is collapsed.
type Expansion map[string]bool

func (e Expansion) Expanded(path string) bool { return e[path] }

// Toggle flips one node and returns its new state.
func (e Expansion) Toggle(path string) bool {
	if e[path] {
		delete(e, path)
		return false
	}
	e[path] = true
	return true
}

// Clone returns an independent copy.
func (e Expansion) Clone() Expansion {
	out := make(Expansion, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// KV is one top-level record field.
type KV struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TreeLine is one visible line of the flattened detail tree.
type TreeLine struct {
	Path      string `json:"path"`
	Depth     int    `json:"depth"`
	Name      string `json:"name"`
	Value     string `json:"value,omitempty"`
	Composite bool   `json:"composite,omitempty"`
	Expanded  bool   `json:"expanded,omitempty"`
	Children  int    `json:"children,omitempty"`
}

// Detail is the rendered detail pane.
type Detail struct {
	Empty       bool       `json:"empty"`
	Placeholder string     `json:"placeholder,omitempty"`
	Title       string     `json:"title,omitempty"`
	Fields      []KV       `json:"fields,omitempty"`
	Tree        []TreeLine `json:"tree,omitempty"`
}

// DetailOf renders r. A nil record yields the placeholder.
func DetailOf(r *models.Record, exp Expansion) Detail {
	if r == nil {
		return Detail{Empty: true, Placeholder: NoDetailText}
	}
	d := Detail{
		Title: "Packet Details (ID: " + r.ID + ")",
		Fields: []KV{
			{"id", r.ID},
			{"timestamp", r.TimestampText()},
			{"source", r.Source},
			{"destination", r.Destination},
			{"protocol", r.Protocol},
			{"length", strconv.Itoa(r.Length)},
			{"info", r.Info},
		},
	}
	if r.Status != models.StatusNone {
		d.Fields = append(d.Fields, KV{"status", string(r.Status)})
	}
	d.Tree = Flatten(r.Details, exp)
	return d
}

// Flatten lists the visible lines of a detail tree. The root itself is not
// shown; its children are at depth 0. A leaf root becomes a single line.
func Flatten(root models.Detail, exp Expansion) []TreeLine {
	var out []TreeLine
	switch root.Kind() {
	case models.KindNull:
		return nil
	case models.KindNode, models.KindList:
		walkChildren(root, "", 0, exp, &out)
	default:
		out = append(out, TreeLine{Path: "details", Name: "details", Value: root.Text()})
	}
	return out
}

func walkChildren(d models.Detail, prefix string, depth int, exp Expansion, out *[]TreeLine) {
	visit := func(name, seg string, child models.Detail) {
		path := seg
		if prefix != "" {
			path = prefix + PathSep + seg
		}
		line := TreeLine{Path: path, Depth: depth, Name: name}
		if child.IsComposite() {
			line.Composite = true
			line.Children = child.Len()
			line.Expanded = exp.Expanded(path)
			line.Value = summary(child)
		} else {
			line.Value = child.Text()
		}
		*out = append(*out, line)
		if line.Expanded {
			walkChildren(child, path, depth+1, exp, out)
		}
	}
	switch d.Kind() {
	case models.KindNode:
		seen := make(map[string]int, d.Len())
		for _, f := range d.Fields() {
			visit(f.Name, segment(f.Name, seen[f.Name]), f.Value)
			seen[f.Name]++
		}
	case models.KindList:
		for i, item := range d.Items() {
			idx := strconv.Itoa(i)
			visit(idx, idx, item)
		}
	}
}

// summary is the collapsed rendering of a composite: {…n} or [a, b].
func summary(d models.Detail) string {
	if d.Kind() == models.KindList {
		parts := make([]string, 0, d.Len())
		for _, item := range d.Items() {
			if item.IsComposite() {
				return "[" + strconv.Itoa(d.Len()) + " items]"
			}
			parts = append(parts, item.Text())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "{" + strconv.Itoa(d.Len()) + " fields}"
}
