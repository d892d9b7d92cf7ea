package store

import (
	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/rdf"
)

type txState int

const (
	txActive txState = iota
	txCommitted
	txRolledBack
)

func (s txState) String() string {
	switch s {
	case txCommitted:
		return "committed"
	case txRolledBack:
		return "rolled back"
	default:
		return "active"
	}
}

type opKind int

const (
	opAdd opKind = iota
	opRemove
)

type pendingOp struct {
	kind   opKind
	graph  string
	triple *rdf.Triple
}

// Transaction queues mutations against one store. Commit replays the queue
// in submission order; Rollback discards it. Both are terminal.
type Transaction struct {
	store *TripleStore
	ops   []pendingOp
	state txState
}

// Begin starts a transaction bound to the store.
func (s *TripleStore) Begin() *Transaction {
	return &Transaction{store: s}
}

func (tx *Transaction) checkActive(op string) error {
	if tx.state != txActive {
		return errors.New(errors.CodeStoreTransactionClosed, "transaction already "+tx.state.String(),
			errors.Field("operation", op))
	}
	return nil
}

func (tx *Transaction) enqueue(kind opKind, graph string, t *rdf.Triple) error {
	if err := tx.checkActive("enqueue"); err != nil {
		return err
	}
	if err := rdf.ValidateTriple(t); err != nil {
		return err
	}
	tx.ops = append(tx.ops, pendingOp{kind: kind, graph: graph, triple: t})
	return nil
}

// Add queues an insertion into the default graph.
func (tx *Transaction) Add(t *rdf.Triple) error {
	return tx.enqueue(opAdd, DefaultGraph, t)
}

// Remove queues a deletion from the default graph.
func (tx *Transaction) Remove(t *rdf.Triple) error {
	return tx.enqueue(opRemove, DefaultGraph, t)
}

// AddToGraph queues an insertion into a named graph.
func (tx *Transaction) AddToGraph(graph string, t *rdf.Triple) error {
	return tx.enqueue(opAdd, graph, t)
}

// RemoveFromGraph queues a deletion from a named graph.
func (tx *Transaction) RemoveFromGraph(graph string, t *rdf.Triple) error {
	return tx.enqueue(opRemove, graph, t)
}

// Len returns the number of queued operations.
func (tx *Transaction) Len() int {
	return len(tx.ops)
}

// Commit applies the queued operations in order. Operations are validated
// when queued, so replay does not stop half way.
func (tx *Transaction) Commit() error {
	if err := tx.checkActive("commit"); err != nil {
		return err
	}
	for _, op := range tx.ops {
		switch op.kind {
		case opAdd:
			if err := tx.store.AddToGraph(op.graph, op.triple); err != nil {
				tx.state = txCommitted
				return err
			}
		case opRemove:
			tx.store.RemoveFromGraph(op.graph, op.triple)
		}
	}
	tx.store.logger.WithField("operations", len(tx.ops)).Debug("store: transaction committed")
	tx.ops = nil
	tx.state = txCommitted
	return nil
}

// Rollback discards the queued operations without touching the store.
func (tx *Transaction) Rollback() error {
	if err := tx.checkActive("rollback"); err != nil {
		return err
	}
	tx.store.logger.WithField("operations", len(tx.ops)).Debug("store: transaction rolled back")
	tx.ops = nil
	tx.state = txRolledBack
	return nil
}
