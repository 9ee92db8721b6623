package profiler

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
)

type SortMode int

const (
	SORT_BY_TOTAL SortMode = iota
	SORT_BY_SELF
)

// ReportNode aggregates every call of one tag at one position of the tree.
type ReportNode struct {
	Tag        string
	Calls      int
	Total      time.Duration
	Self       time.Duration
	Percent    float64
	Allocs     uint64
	Frees      uint64
	AllocBytes uint64
	FreeBytes  uint64
	Children   []*ReportNode
}

// FlatEntry aggregates every call of one tag, wherever it happened.
type FlatEntry struct {
	Tag     string
	Calls   int
	Total   time.Duration
	Self    time.Duration
	Percent float64
}

// Report is built on demand from a saved frame.
type Report struct {
	ID      uuid.UUID
	FrameID uuid.UUID
	Thread  string
	Elapsed time.Duration
	Tree    *ReportNode
	Flat    []FlatEntry
}

// NewReport builds both views of f. f may be nil, giving an empty report.
func NewReport(f *Frame, mode SortMode) *Report {
	r := &Report{ID: uuid.New()}
	if f == nil {
		return r
	}
	r.FrameID = f.ID
	r.Thread = f.ThreadName
	r.Elapsed = f.Elapsed()
	r.Tree = BuildReportTree(f)
	r.Flat = BuildFlatReport(f, mode)
	return r
}

// BuildReportTree merges the calls of a frame: children of one parent sharing
// a tag become a single node counting the calls and summing their time.
func BuildReportTree(f *Frame) *ReportNode {
	if f == nil || len(f.Nodes) == 0 {
		return nil
	}
	root := mergeNodes(f, []int32{0})
	setPercent(root, root.Total)
	return root
}

func mergeNodes(f *Frame, group []int32) *ReportNode {
	rn := &ReportNode{
		Tag:   f.Nodes[group[0]].Tag,
		Calls: len(group),
	}

	var kids []int32
	for _, i := range group {
		n := &f.Nodes[i]
		rn.Total += n.Elapsed()
		rn.Allocs += n.Allocs
		rn.Frees += n.Frees
		rn.AllocBytes += n.AllocBytes
		rn.FreeBytes += n.FreeBytes
		kids = append(kids, f.Children(i)...)
	}

	var tags []string
	byTag := make(map[string][]int32)
	for _, c := range kids {
		tag := f.Nodes[c].Tag
		if _, ok := byTag[tag]; !ok {
			tags = append(tags, tag)
		}
		byTag[tag] = append(byTag[tag], c)
	}

	var childTotal time.Duration
	for _, tag := range tags {
		child := mergeNodes(f, byTag[tag])
		childTotal += child.Total
		rn.Children = append(rn.Children, child)
	}
	rn.Self = max(rn.Total-childTotal, 0)
	return rn
}

func setPercent(rn *ReportNode, rootTotal time.Duration) {
	rn.Percent = percent(rn.Total, rootTotal)
	for _, c := range rn.Children {
		setPercent(c, rootTotal)
	}
}

func percent(d, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return float64(d) / float64(total) * 100
}

// BuildFlatReport groups every node of f by tag alone, sorted descending by
// total or self time. Ties keep tag order.
func BuildFlatReport(f *Frame, mode SortMode) []FlatEntry {
	if f == nil || len(f.Nodes) == 0 {
		return nil
	}
	rootTotal := f.Elapsed()

	index := make(map[string]int)
	var entries []FlatEntry
	for i := range f.Nodes {
		n := &f.Nodes[i]
		elapsed := n.Elapsed()
		self := elapsed
		for _, c := range f.Children(int32(i)) {
			self -= f.Nodes[c].Elapsed()
		}

		pos, ok := index[n.Tag]
		if !ok {
			pos = len(entries)
			index[n.Tag] = pos
			entries = append(entries, FlatEntry{Tag: n.Tag})
		}
		e := &entries[pos]
		e.Calls++
		e.Total += elapsed
		e.Self += max(self, 0)
	}

	for i := range entries {
		entries[i].Percent = percent(entries[i].Total, rootTotal)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		ka, kb := a.Total, b.Total
		if mode == SORT_BY_SELF {
			ka, kb = a.Self, b.Self
		}
		if ka != kb {
			return ka > kb
		}
		return a.Tag < b.Tag
	})
	return entries
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(cellStyleAt).
		Headers(headers...)
}

// the header is row 0, data rows start at 1
func cellStyleAt(row, col int) lipgloss.Style {
	if row == 0 {
		return headerStyle
	}
	return cellStyle
}

func formatMS(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 3, 64)
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}

// WriteTree renders the hierarchical view.
func (r *Report) WriteTree(w io.Writer) error {
	if r.Tree == nil {
		_, err := io.WriteString(w, "no frame recorded\n")
		return err
	}
	t := newTable("Scope", "Calls", "Total ms", "Self ms", "%", "Allocs", "Alloc bytes")
	var walk func(n *ReportNode, depth int)
	walk = func(n *ReportNode, depth int) {
		t.Row(
			strings.Repeat("  ", depth)+n.Tag,
			strconv.Itoa(n.Calls),
			formatMS(n.Total),
			formatMS(n.Self),
			formatPercent(n.Percent),
			strconv.FormatUint(n.Allocs, 10),
			strconv.FormatUint(n.AllocBytes, 10),
		)
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(r.Tree, 0)
	_, err := fmt.Fprintf(w, "%s frame %s (%s ms)\n%s\n", r.Thread, r.FrameID, formatMS(r.Elapsed), t.Render())
	return err
}

// WriteFlat renders the flat view.
func (r *Report) WriteFlat(w io.Writer) error {
	if len(r.Flat) == 0 {
		_, err := io.WriteString(w, "no frame recorded\n")
		return err
	}
	t := newTable("Scope", "Calls", "Total ms", "Self ms", "%")
	for _, e := range r.Flat {
		t.Row(e.Tag, strconv.Itoa(e.Calls), formatMS(e.Total), formatMS(e.Self), formatPercent(e.Percent))
	}
	_, err := fmt.Fprintf(w, "%s frame %s (%s ms)\n%s\n", r.Thread, r.FrameID, formatMS(r.Elapsed), t.Render())
	return err
}
