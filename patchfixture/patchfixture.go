// Package patchfixture loads example graph.Patch values from YAML, for
// package tests and the cmd/demo program. It is a boundary concern: the
// compiler packages never import it, matching the donor's own
// core.LoadProgramFileFromYAML, which the simulator core likewise never
// calls directly.
package patchfixture

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/fieldgraph/engine/diag"
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/registry"
)

type blockDoc struct {
	ID          string         `yaml:"id"`
	Type        string         `yaml:"type"`
	DisplayName string         `yaml:"displayName"`
	Params      map[string]any `yaml:"params,omitempty"`
}

type edgeDoc struct {
	ID       string `yaml:"id"`
	From     string `yaml:"from"`
	FromPort string `yaml:"fromPort"`
	To       string `yaml:"to"`
	ToPort   string `yaml:"toPort"`
}

type patchDoc struct {
	Blocks []blockDoc `yaml:"blocks"`
	Edges  []edgeDoc  `yaml:"edges"`
}

// LoadYAML parses a YAML patch document into a graph.Patch. It performs
// no registry validation; callers run it through a frontend.Compiler (or
// graph.Patch.Validate) the same as any author-supplied patch.
func LoadYAML(data []byte) (*graph.Patch, error) {
	var doc patchDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("patchfixture: %w", err)
	}

	p := graph.New()
	for _, b := range doc.Blocks {
		if b.ID == "" {
			return nil, fmt.Errorf("patchfixture: block with empty id")
		}
		p.AddBlock(&graph.Block{
			ID:          graph.BlockID(b.ID),
			Type:        registry.BlockType(b.Type),
			DisplayName: b.DisplayName,
			Params:      normalizeParams(b.Params),
		})
	}
	for _, e := range doc.Edges {
		if e.ID == "" {
			return nil, fmt.Errorf("patchfixture: edge with empty id")
		}
		p.AddEdge(&graph.Edge{
			ID:   graph.EdgeID(e.ID),
			From: graph.Endpoint{Block: graph.BlockID(e.From), Port: registry.PortID(e.FromPort)},
			To:   graph.Endpoint{Block: graph.BlockID(e.To), Port: registry.PortID(e.ToPort)},
		})
	}
	return p, nil
}

// normalizeParams copies a decoded params map, leaving yaml.v3's own
// int/float64/string/bool decoding untouched; block Params readers match
// on the concrete type their own ParamDef.Kind declares.
func normalizeParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Validate runs a loaded patch's structural checks against reg, returning
// any diagnostics (the same ones the frontend compiler would report for
// a malformed author patch) without running a full compile.
func Validate(p *graph.Patch, reg *registry.Registry) diag.List {
	return p.Validate(reg)
}

// goldenRingTemplate is the YAML source for GoldenRing: a scalar time
// integrator cycle beside a resizable ring of elements, each element's
// golden-angle phase delayed one frame through field state before being
// rendered, matching the donor's own habit of keeping sample topologies
// as committed fixture data rather than synthesizing them in Go.
const goldenRingTemplate = `
blocks:
  - {id: dt, type: Const, displayName: "Frame Delta", params: {value: 0.016666666666666666}}
  - {id: time, type: Time, displayName: "Time"}
  - {id: integrate, type: Sum, displayName: "Integrate"}
  - {id: ring, type: PhaseRing, displayName: "Ring", params: {count: %d}}
  - {id: phase, type: GoldenAnglePhase, displayName: "Golden Angle Phase"}
  - {id: delay, type: UnitDelayField, displayName: "Phase Delay"}
  - {id: pos, type: PhaseToVec2, displayName: "Phase To Position"}
  - {id: color, type: PhaseToColor, displayName: "Phase To Color"}
  - {id: sink, type: CircleField, displayName: "Circles"}
edges:
  - {id: e.time.out, from: time, fromPort: t, to: integrate, toPort: terms}
  - {id: e.dt.out, from: dt, fromPort: out, to: integrate, toPort: terms}
  - {id: e.integrate.out, from: integrate, fromPort: out, to: time, toPort: next}
  - {id: e.ring.domain.phase, from: ring, fromPort: ring, to: phase, toPort: domain}
  - {id: e.ring.domain.delay, from: ring, fromPort: ring, to: delay, toPort: domain}
  - {id: e.ring.domain.sink, from: ring, fromPort: ring, to: sink, toPort: domain}
  - {id: e.phase.delay, from: phase, fromPort: phase, to: delay, toPort: in}
  - {id: e.delay.pos, from: delay, fromPort: prev, to: pos, toPort: phase}
  - {id: e.delay.color, from: delay, fromPort: prev, to: color, toPort: phase}
  - {id: e.pos.sink, from: pos, fromPort: pos, to: sink, toPort: position}
  - {id: e.color.sink, from: color, fromPort: color, to: sink, toPort: color}
`

// GoldenRing builds the ring-of-elements demo patch at the given element
// count, parsed from goldenRingTemplate.
func GoldenRing(count int) (*graph.Patch, error) {
	return LoadYAML([]byte(fmt.Sprintf(goldenRingTemplate, count)))
}
