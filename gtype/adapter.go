package gtype

// Adapter converts a scalar or per-lane value between two units of the
// same payload. Apply operates on one lane's arity-sized value.
type Adapter struct {
	Payload Payload
	From    Unit
	To      Unit
	Name    string
	Apply   func(lane []float64) []float64
}

type adapterKey struct {
	payload Payload
	unit    Unit
}

// AdapterRegistry is a table of unit adapters keyed by (payload, fromUnit).
// It is queried to find a path of adapters between two units of the same
// payload and cardinality.
type AdapterRegistry struct {
	edges map[adapterKey][]Adapter
}

// NewAdapterRegistry returns an empty registry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{edges: make(map[adapterKey][]Adapter)}
}

// Register adds an adapter. Adapters are directed; register the inverse
// explicitly if conversion is symmetric.
func (r *AdapterRegistry) Register(a Adapter) {
	k := adapterKey{a.Payload, a.From}
	r.edges[k] = append(r.edges[k], a)
}

// FindPath returns an ordered list of adapters that converts a value of
// type from into type to, or ok=false if no such path exists. from and to
// must share Payload and Cardinality; only Unit may differ.
func (r *AdapterRegistry) FindPath(from, to Type) (path []Adapter, ok bool) {
	if from.Payload != to.Payload || from.Cardinality != to.Cardinality {
		return nil, false
	}
	if from.Unit == to.Unit {
		return nil, true
	}

	type frame struct {
		unit Unit
		path []Adapter
	}
	visited := map[Unit]bool{from.Unit: true}
	queue := []frame{{from.Unit, nil}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, a := range r.edges[adapterKey{from.Payload, cur.unit}] {
			if visited[a.To] {
				continue
			}
			nextPath := append(append([]Adapter{}, cur.path...), a)
			if a.To == to.Unit {
				return nextPath, true
			}
			visited[a.To] = true
			queue = append(queue, frame{a.To, nextPath})
		}
	}

	return nil, false
}

// Assignable reports whether a value of type from can feed a port of type
// to: either the types are Equal, or a unit-adapter path exists, or a
// signal-to-field broadcast applies per Promote.
func Assignable(from, to Type, adapters *AdapterRegistry) bool {
	if from.Equal(to) {
		return true
	}
	if from.Payload != to.Payload {
		return false
	}
	if from.Cardinality != to.Cardinality {
		if !cardinalityBroadcastable(from.Cardinality, to.Cardinality) {
			return false
		}
	}
	if from.Unit == to.Unit {
		return true
	}
	_, ok := adapters.FindPath(Type{Payload: from.Payload, Unit: from.Unit, Cardinality: to.Cardinality}, to)
	return ok
}

func cardinalityBroadcastable(from, to Cardinality) bool {
	return from == Signal && to == Field
}

// Promote broadcasts a Signal type to the equivalent Field type. Fields
// never demote to Signal implicitly; that requires an explicit reducer
// block in the graph.
func Promote(sig Type) (Type, bool) {
	if sig.Cardinality != Signal {
		return Type{}, false
	}
	field := sig
	field.Cardinality = Field
	return field, true
}
