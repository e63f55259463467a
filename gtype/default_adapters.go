package gtype

import "math"

// DefaultAdapters returns the stock unit-adapter set for Float-payload
// angle and normalized-range units. Callers extend or replace it for
// their own block registries; the frontend compiler never hardcodes
// adapters itself.
func DefaultAdapters() *AdapterRegistry {
	r := NewAdapterRegistry()

	scale := func(name string, from, to Unit, factor float64) {
		r.Register(Adapter{
			Payload: Float, From: from, To: to, Name: name,
			Apply: func(lane []float64) []float64 {
				out := make([]float64, len(lane))
				for i, v := range lane {
					out[i] = v * factor
				}
				return out
			},
		})
	}

	scale("radians-to-degrees", UnitRadians, UnitDegrees, 180/math.Pi)
	scale("degrees-to-radians", UnitDegrees, UnitRadians, math.Pi/180)
	scale("phase01-to-radians", UnitPhase01, UnitRadians, 2*math.Pi)
	scale("radians-to-phase01", UnitRadians, UnitPhase01, 1/(2*math.Pi))
	scale("norm01-to-scalar", UnitNorm01, UnitScalar, 1)
	scale("scalar-to-norm01", UnitScalar, UnitNorm01, 1)

	return r
}
