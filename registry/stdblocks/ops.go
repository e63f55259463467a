package stdblocks

import (
	"fmt"
	"math"

	"github.com/fieldgraph/engine/backend"
)

const goldenAngle = 0.6180339887498949 // 1/phi, in phase01 units

// Ops returns the Op behavior for every block type declared in Defs()
// that computes an ordinary value (state-read/write and render-sink
// roles need none; the backend lowers those directly).
func Ops() backend.OpTable {
	return backend.OpTable{
		Const: {
			Kind: backend.OpScalarKind,
			Scalar: func(params map[string]any, _ [][]float64) []float64 {
				v, _ := params["value"].(float64)
				return []float64{v}
			},
		},
		Sum: {
			Kind: backend.OpFieldKind,
			Scalar: func(_ map[string]any, args [][]float64) []float64 {
				return args[0]
			},
			Lane: func(_ map[string]any, _ int, args [][]float64) []float64 {
				return args[0]
			},
		},
		PhaseRing: {
			Kind: backend.OpDomainKind,
			Domain: func(params map[string]any, _ [][]float64) int {
				n, _ := params["count"].(int)
				return n
			},
			LaneKeys: func(_ map[string]any, _ [][]float64, n int) []string {
				keys := make([]string, n)
				for i := range keys {
					keys[i] = fmt.Sprintf("elem-%d", i)
				}
				return keys
			},
		},
		GoldenAnglePhase: {
			Kind: backend.OpFieldKind,
			Lane: func(_ map[string]any, lane int, _ [][]float64) []float64 {
				return []float64{math.Mod(float64(lane)*goldenAngle, 1)}
			},
		},
		PhaseToVec2: {
			Kind: backend.OpFieldKind,
			Lane: func(_ map[string]any, _ int, args [][]float64) []float64 {
				angle := args[0][0] * 2 * math.Pi
				return []float64{math.Cos(angle), math.Sin(angle)}
			},
		},
		PhaseToColor: {
			Kind: backend.OpFieldKind,
			Lane: func(_ map[string]any, _ int, args [][]float64) []float64 {
				h := args[0][0]
				r := 0.5 + 0.5*math.Cos(2*math.Pi*h)
				g := 0.5 + 0.5*math.Cos(2*math.Pi*(h+1.0/3.0))
				b := 0.5 + 0.5*math.Cos(2*math.Pi*(h+2.0/3.0))
				return []float64{r, g, b, 1}
			},
		},
	}
}
