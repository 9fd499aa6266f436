package task

import (
	"fmt"
	"log"

	"github.com/weaveworld/goweave/pkg/worlddb"
)

// Facet identifies one renderable part of the client view.
type Facet int

const (
	FacetWorld Facet = iota
	FacetLocale
	FacetFocus
	FacetPopulace
	FacetTool
)

// Facets lists every facet in render order.
var Facets = []Facet{FacetWorld, FacetLocale, FacetFocus, FacetPopulace, FacetTool}

// Bit returns the dirty bit for a facet.
func (f Facet) Bit() DirtyBits {
	switch f {
	case FacetWorld:
		return DirtyWorld
	case FacetLocale:
		return DirtyLocale
	case FacetFocus:
		return DirtyFocus
	case FacetPopulace:
		return DirtyPopulace
	case FacetTool:
		return DirtyTool
	default:
		return 0
	}
}

func (f Facet) String() string {
	switch f {
	case FacetWorld:
		return "world"
	case FacetLocale:
		return "locale"
	case FacetFocus:
		return "focus"
	case FacetPopulace:
		return "populace"
	case FacetTool:
		return "tool"
	default:
		return fmt.Sprintf("facet(%d)", int(f))
	}
}

// Conn is the task's view of one live player connection: who it is and
// which property keys each rendered facet depended on last time.
type Conn interface {
	UID() worlddb.PlayerID
	// FacetDeps returns the dependency set last recorded for a facet.
	// May be nil for a facet never rendered.
	FacetDeps(f Facet) worlddb.KeySet
}

// RenderFunc re-renders the dirty facets of one connection and pushes
// the result. It also rebuilds the connection's dependency sets for
// those facets from the render that just occurred.
type RenderFunc func(conn Conn, dirty DirtyBits) error

// Resolve closes out the task: in-place mutations are noted into the
// changeset, the cache is flushed, and every connection whose facet
// dependencies intersect the changeset (or which was explicitly marked
// dirty) is re-rendered. A render failure is logged and does not stop
// the remaining connections.
func (t *Task) Resolve(conns []Conn, render RenderFunc) error {
	for _, ent := range t.cache.NoteChangedEntries() {
		t.changeset.Add(ent.Key)
	}
	if err := t.cache.WriteAllDirty(); err != nil {
		return fmt.Errorf("task: flush: %w", err)
	}

	for _, conn := range conns {
		bits := t.dirty[conn.UID()]
		if bits != DirtyAll && len(t.changeset) > 0 {
			for _, facet := range Facets {
				if bits&facet.Bit() != 0 {
					continue
				}
				if deps := conn.FacetDeps(facet); deps != nil && deps.Intersects(t.changeset) {
					bits |= facet.Bit()
				}
			}
		}
		if bits == 0 {
			continue
		}
		if err := render(conn, bits); err != nil {
			log.Printf("task: render update for %s: %v", conn.UID(), err)
		}
	}

	t.cache.Final()
	return nil
}
