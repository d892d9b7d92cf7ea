package executor

import (
	"strings"

	"github.com/exocortex/exoql/pkg/rdf"
	"github.com/exocortex/exoql/pkg/sparql/algebra"
	"github.com/exocortex/exoql/pkg/sparql/evaluator"
	"github.com/exocortex/exoql/pkg/store"
)

type partition struct {
	keys         []rdf.Term
	accumulators []*evaluator.Accumulator
}

// group partitions the input by the structural keys of the grouping values
// and emits one solution per partition, in order of first appearance.
// Without grouping keys an empty input still forms one group.
func (r *run) group(o *algebra.Group, graph string) []*store.Binding {
	ev := r.evaluator(graph)
	iter := r.iterator(o.Input, graph, store.NewBinding())
	defer iter.Close()

	newPartition := func(keys []rdf.Term) *partition {
		p := &partition{keys: keys, accumulators: make([]*evaluator.Accumulator, len(o.Aggregates))}
		for i, agg := range o.Aggregates {
			p.accumulators[i] = ev.NewAccumulator(agg.Expression)
		}
		return p
	}

	var order []*partition
	index := make(map[string]*partition)
	for iter.Next() {
		b := iter.Binding()
		keys := make([]rdf.Term, len(o.Keys))
		var sig strings.Builder
		for i, key := range o.Keys {
			if v, err := ev.Evaluate(key.Expression, b); err == nil && v != nil {
				keys[i] = v
				sig.WriteString(v.Key())
			}
			sig.WriteByte(0)
		}
		p, ok := index[sig.String()]
		if !ok {
			p = newPartition(keys)
			index[sig.String()] = p
			order = append(order, p)
		}
		for _, acc := range p.accumulators {
			acc.Add(b)
		}
	}
	if r.err != nil {
		return nil
	}
	if len(order) == 0 && len(o.Keys) == 0 {
		order = append(order, newPartition(nil))
	}

	out := make([]*store.Binding, 0, len(order))
	for _, p := range order {
		b := store.NewBinding()
		for i, key := range o.Keys {
			if p.keys[i] != nil {
				b.Set(key.Variable, p.keys[i])
			}
		}
		for i, agg := range o.Aggregates {
			if v := p.accumulators[i].Result(); v != nil {
				b.Set(agg.Variable, v)
			}
		}
		out = append(out, b)
	}
	return out
}
