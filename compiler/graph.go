package compiler

import (
	"fmt"

	"github.com/chazu/ellie/pkg/bytecode"
)

// Span is a source range. It is the same type DebugHeaders carry.
type Span = bytecode.Span

// Page is one parsed unit of source: a module file or the body of a
// function, class member, branch or loop.
type Page struct {
	Hash         uint64
	Path         string
	Dependencies []uint64
	Items        []Item
}

// Graph is the set of pages the assembler reads. Pages keep the order in
// which they were added.
type Graph struct {
	pages map[uint64]*Page
	order []uint64
}

// NewGraph builds a graph from pages. Two pages may not share a hash.
func NewGraph(pages ...*Page) (*Graph, error) {
	g := &Graph{pages: make(map[uint64]*Page, len(pages))}
	for _, p := range pages {
		if err := g.Add(p); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Add inserts p into the graph.
func (g *Graph) Add(p *Page) error {
	if p == nil {
		return fmt.Errorf("nil page")
	}
	if g.pages == nil {
		g.pages = make(map[uint64]*Page)
	}
	if old, ok := g.pages[p.Hash]; ok {
		return fmt.Errorf("page %d (%s) already present as %s", p.Hash, p.Path, old.Path)
	}
	g.pages[p.Hash] = p
	g.order = append(g.order, p.Hash)
	return nil
}

// Page returns the page with hash h.
func (g *Graph) Page(h uint64) (*Page, bool) {
	if g == nil {
		return nil, false
	}
	p, ok := g.pages[h]
	return p, ok
}

// Pages returns every page in insertion order.
func (g *Graph) Pages() []*Page {
	out := make([]*Page, 0, len(g.order))
	for _, h := range g.order {
		out = append(out, g.pages[h])
	}
	return out
}

// Len returns the number of pages.
func (g *Graph) Len() int { return len(g.order) }
