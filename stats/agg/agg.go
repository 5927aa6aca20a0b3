// Package agg rolls per-segment metric vectors up the recording hierarchy:
// segment means feed channel means, channel means feed file means, file
// means feed group means. Every level averages the means of the level
// below elementwise, so an over-sampled channel cannot outweigh its
// siblings. Scalar metrics are length-1 vectors.
package agg

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/Tousak/spectral-analysis/ephys"
)

// DefaultGroup is the group label assigned to leaves with no group of
// their own.
const DefaultGroup = "grand"

// Level identifies a node's depth in the aggregation tree.
type Level int

const (
	LevelSegment Level = iota
	LevelChannel
	LevelFile
	LevelGroup
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelSegment:
		return "segment"
	case LevelChannel:
		return "channel"
	case LevelFile:
		return "file"
	case LevelGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Leaf is one per-segment metric vector with its position in the
// hierarchy. Group may be left empty; a Grouping or DefaultGroup fills it.
type Leaf struct {
	Group   string
	File    string
	Channel string
	Segment string // time-range label, e.g. "10-20s"
	Values  []float64
}

// Grouping maps recording files to experimental group labels. Files absent
// from the map keep the leaf's own group, or DefaultGroup when that is
// empty too.
type Grouping map[string]string

func (g Grouping) resolve(l Leaf) string {
	if label, ok := g[l.File]; ok {
		return label
	}

	if l.Group != "" {
		return l.Group
	}

	return DefaultGroup
}

// Node is one level of the aggregation tree. Mean is the elementwise mean
// of the children's means; SEM is the standard error of those means per
// element. A node averaging a single child reports zero SEM and
// SingleSample true.
type Node struct {
	Label        string
	Level        Level
	Mean         []float64
	SEM          []float64
	N            int // number of direct children
	SingleSample bool
	Children     []*Node
}

// Aggregate builds one tree per group. Groups are ordered by first
// appearance in leaves, as are files, channels, and segments within, so
// identical input yields identical output. All leaf vectors must share one
// length. Returns an error wrapping [ephys.ErrEmptyGroup] when leaves is
// empty, and one wrapping [ephys.ErrMalformedSegment] on ragged or NaN
// vectors.
func Aggregate(leaves []Leaf, grouping Grouping) ([]*Node, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("agg: no values to aggregate: %w", ephys.ErrEmptyGroup)
	}

	width := len(leaves[0].Values)
	for _, l := range leaves {
		if len(l.Values) != width || width == 0 {
			return nil, fmt.Errorf("agg: leaf %s/%s/%s has %d values, want %d: %w",
				l.File, l.Channel, l.Segment, len(l.Values), width, ephys.ErrMalformedSegment)
		}

		for _, v := range l.Values {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("agg: NaN value at %s/%s/%s: %w",
					l.File, l.Channel, l.Segment, ephys.ErrMalformedSegment)
			}
		}
	}

	groups := newIndex()
	for _, l := range leaves {
		segments := groups.child(grouping.resolve(l)).child(l.File).child(l.Channel)
		seg := segments.child(l.Segment)
		seg.values = append(seg.values, l.Values)
	}

	out := make([]*Node, 0, len(groups.order))
	for _, g := range groups.order {
		node, err := groups.children[g].build(g, LevelGroup, width)
		if err != nil {
			return nil, err
		}

		out = append(out, node)
	}

	return out, nil
}

// AggregateGroup aggregates only the leaves of one group. Returns an error
// wrapping [ephys.ErrEmptyGroup] when no leaf contributes to it.
func AggregateGroup(leaves []Leaf, grouping Grouping, group string) (*Node, error) {
	kept := make([]Leaf, 0, len(leaves))
	for _, l := range leaves {
		if grouping.resolve(l) == group {
			kept = append(kept, l)
		}
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("agg: group %q: %w", group, ephys.ErrEmptyGroup)
	}

	trees, err := Aggregate(kept, grouping)
	if err != nil {
		return nil, err
	}

	return trees[0], nil
}

// index is an insertion-ordered tree of labels collecting leaf vectors.
type index struct {
	order    []string
	children map[string]*index
	values   [][]float64
}

func newIndex() *index {
	return &index{children: map[string]*index{}}
}

func (ix *index) child(label string) *index {
	c, ok := ix.children[label]
	if !ok {
		c = newIndex()
		ix.children[label] = c
		ix.order = append(ix.order, label)
	}

	return c
}

// build converts the index into a Node at the given level, recursing down
// to the segment leaves.
func (ix *index) build(label string, level Level, width int) (*Node, error) {
	node := &Node{Label: label, Level: level}

	var childMeans [][]float64

	if level == LevelSegment {
		childMeans = ix.values
	} else {
		for _, l := range ix.order {
			child, err := ix.children[l].build(l, level-1, width)
			if err != nil {
				return nil, err
			}

			node.Children = append(node.Children, child)
			childMeans = append(childMeans, child.Mean)
		}
	}

	if err := summarize(node, childMeans, width); err != nil {
		return nil, err
	}

	return node, nil
}

// summarize fills the node's elementwise mean and SEM from the vectors it
// averages.
func summarize(node *Node, vectors [][]float64, width int) error {
	node.N = len(vectors)
	node.Mean = make([]float64, width)
	node.SEM = make([]float64, width)

	if len(vectors) < 2 {
		node.SingleSample = true
		if len(vectors) == 1 {
			copy(node.Mean, vectors[0])
		}

		return nil
	}

	column := make([]float64, len(vectors))
	for j := 0; j < width; j++ {
		for i, v := range vectors {
			column[i] = v[j]
		}

		mean, err := stats.Mean(column)
		if err != nil {
			return fmt.Errorf("agg: %s %s: %w", node.Level, node.Label, err)
		}

		sd, err := stats.StandardDeviationSample(column)
		if err != nil {
			return fmt.Errorf("agg: %s %s: %w", node.Level, node.Label, err)
		}

		node.Mean[j] = mean
		node.SEM[j] = sd / math.Sqrt(float64(len(vectors)))
	}

	return nil
}

// Find walks the tree by labels, one per level below the receiver.
func (n *Node) Find(labels ...string) *Node {
	cur := n
	for _, label := range labels {
		var next *Node
		for _, c := range cur.Children {
			if c.Label == label {
				next = c

				break
			}
		}

		if next == nil {
			return nil
		}

		cur = next
	}

	return cur
}
