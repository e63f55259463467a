// Package debugindex turns the backend's raw block/port identifiers into
// the display strings a step-debug session or authoring UI shows a human,
// title-casing the author's free-form displayName the way a catalog or
// breakpoint list would present it.
package debugindex

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/graph"
)

var titleCaser = cases.Title(language.English)

// Humanize renders a raw displayName (often a short camelCase or
// snake_case author label) into title case for presentation.
func Humanize(displayName string) string {
	spaced := strings.Map(func(r rune) rune {
		switch r {
		case '_', '-':
			return ' '
		default:
			return r
		}
	}, displayName)
	return titleCaser.String(spaced)
}

// Index is a presentation-ready view of a backend.DebugIndex: the same
// lookups, with humanized labels precomputed once per compile instead of
// on every breakpoint render.
type Index struct {
	raw    *backend.DebugIndex
	labels map[graph.BlockID]string
}

// Build wraps a backend.DebugIndex.
func Build(raw *backend.DebugIndex) *Index {
	labels := make(map[graph.BlockID]string, len(raw.DisplayNames))
	for id, name := range raw.DisplayNames {
		labels[id] = Humanize(name)
	}
	return &Index{raw: raw, labels: labels}
}

// Label returns block's humanized display name, or its raw BlockID if it
// has none.
func (ix *Index) Label(block graph.BlockID) string {
	if l, ok := ix.labels[block]; ok && l != "" {
		return l
	}
	return string(block)
}

// SlotsFor returns every value slot a block's expressions were lowered
// into.
func (ix *Index) SlotsFor(block graph.BlockID) []backend.SlotID {
	return ix.raw.BlockToSlots[block]
}

// PortOf returns the (block, port) endpoint a slot was lowered from.
func (ix *Index) PortOf(slot backend.SlotID) (graph.Endpoint, bool) {
	ep, ok := ix.raw.SlotToPort[slot]
	return ep, ok
}

// BlockOfStep returns the block a schedule step index is attributed to.
func (ix *Index) BlockOfStep(step int) (graph.BlockID, bool) {
	b, ok := ix.raw.StepToBlock[step]
	return b, ok
}
