package store

import (
	"fmt"
	"io"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/exocortex/exoql/pkg/rdf"
)

// DefaultCacheSize is the number of match results kept by default.
const DefaultCacheSize = 1000

const wildcard = "*"

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// TripleStore is an in-memory RDF triple store.
//
// Every triple is reachable through six permutation indexes (SPO, SOP, PSO,
// POS, OSP, OPS) so any combination of bound positions resolves by
// descending at most two index levels. Match results are kept in a bounded
// LRU cache that is purged on every mutation.
//
// The store performs no locking of its own: mutations must be serialized by
// the caller, and reads may only run concurrently with each other.
type TripleStore struct {
	triples map[string]*rdf.Triple

	spo, sop, pso, pos, osp, ops *index
	indexes                      []*index

	// lowercased UUID -> subject IRIs containing it; never pruned
	uuids map[string]map[string]struct{}

	cache     *lru.Cache[xxh3.Uint128, []*rdf.Triple]
	cacheSize int

	graphs map[string]*TripleStore

	blankCounter atomic.Uint64
	logger       *logrus.Logger
}

// Option configures a TripleStore.
type Option func(*TripleStore)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *TripleStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCacheSize bounds the match cache. A size of zero disables caching.
func WithCacheSize(size int) Option {
	return func(s *TripleStore) {
		s.cacheSize = size
	}
}

// New creates an empty triple store.
func New(opts ...Option) *TripleStore {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &TripleStore{
		cacheSize: DefaultCacheSize,
		logger:    discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.init()
	return s
}

func (s *TripleStore) init() {
	s.triples = make(map[string]*rdf.Triple)
	s.spo = newIndex("spo", PosSubject, PosPredicate, PosObject)
	s.sop = newIndex("sop", PosSubject, PosObject, PosPredicate)
	s.pso = newIndex("pso", PosPredicate, PosSubject, PosObject)
	s.pos = newIndex("pos", PosPredicate, PosObject, PosSubject)
	s.osp = newIndex("osp", PosObject, PosSubject, PosPredicate)
	s.ops = newIndex("ops", PosObject, PosPredicate, PosSubject)
	s.indexes = []*index{s.spo, s.sop, s.pso, s.pos, s.osp, s.ops}
	s.uuids = make(map[string]map[string]struct{})
	s.graphs = make(map[string]*TripleStore)

	if s.cacheSize > 0 {
		cache, err := lru.New[xxh3.Uint128, []*rdf.Triple](s.cacheSize)
		if err != nil {
			// only reachable with a non-positive size
			panic(err)
		}
		s.cache = cache
	}
}

// newSubStore creates a named-graph store sharing configuration with s.
func (s *TripleStore) newSubStore() *TripleStore {
	return New(WithLogger(s.logger), WithCacheSize(s.cacheSize))
}

func tripleKeys(t *rdf.Triple) [3]string {
	return [3]string{t.Subject.Key(), t.Predicate.Key(), t.Object.Key()}
}

func joinKeys(keys [3]string) string {
	return keys[0] + "\x00" + keys[1] + "\x00" + keys[2]
}

// Add inserts a triple. Adding a triple that is already present is a no-op.
// A triple with a term in a position it may not occupy is rejected.
func (s *TripleStore) Add(t *rdf.Triple) error {
	if err := rdf.ValidateTriple(t); err != nil {
		return err
	}
	s.invalidate()

	keys := tripleKeys(t)
	key := joinKeys(keys)
	if _, exists := s.triples[key]; exists {
		return nil
	}

	s.triples[key] = t
	for _, ix := range s.indexes {
		ix.insert(keys)
	}
	s.indexUUIDs(t)
	return nil
}

// AddAll inserts every triple, stopping at the first invalid one.
func (s *TripleStore) AddAll(triples []*rdf.Triple) error {
	for _, t := range triples {
		if err := s.Add(t); err != nil {
			return err
		}
	}
	s.logger.WithField("triples", len(triples)).Debug("store: bulk add")
	return nil
}

// Remove deletes a triple and reports whether it was present.
func (s *TripleStore) Remove(t *rdf.Triple) bool {
	if rdf.ValidateTriple(t) != nil {
		return false
	}
	s.invalidate()

	keys := tripleKeys(t)
	key := joinKeys(keys)
	if _, exists := s.triples[key]; !exists {
		return false
	}

	delete(s.triples, key)
	for _, ix := range s.indexes {
		ix.delete(keys)
	}
	return true
}

// Has reports whether the triple is stored.
func (s *TripleStore) Has(t *rdf.Triple) bool {
	if rdf.ValidateTriple(t) != nil {
		return false
	}
	_, ok := s.triples[t.Key()]
	return ok
}

// Count returns the number of triples in the default graph.
func (s *TripleStore) Count() int {
	return len(s.triples)
}

// Clear removes every triple of the default graph. Named graphs are kept.
func (s *TripleStore) Clear() {
	s.invalidate()
	s.triples = make(map[string]*rdf.Triple)
	for _, ix := range s.indexes {
		ix.reset()
	}
	s.uuids = make(map[string]map[string]struct{})
}

func (s *TripleStore) invalidate() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// Match returns the triples matching the pattern. A nil term is a wildcard.
// The returned slice is owned by the caller.
func (s *TripleStore) Match(subject, predicate, object rdf.Term) []*rdf.Triple {
	var cacheKey xxh3.Uint128
	if s.cache != nil {
		cacheKey = xxh3.HashString128(patternKey(subject, predicate, object))
		if cached, ok := s.cache.Get(cacheKey); ok {
			return slices.Clone(cached)
		}
	}

	result := s.resolve(subject, predicate, object)

	if s.cache != nil {
		s.cache.Add(cacheKey, result)
		return slices.Clone(result)
	}
	return result
}

func patternKey(subject, predicate, object rdf.Term) string {
	parts := [3]string{wildcard, wildcard, wildcard}
	for i, term := range []rdf.Term{subject, predicate, object} {
		if term != nil {
			parts[i] = term.Key()
		}
	}
	return strings.Join(parts[:], "|")
}

// resolve picks the single index whose leading levels are bound.
func (s *TripleStore) resolve(subject, predicate, object rdf.Term) []*rdf.Triple {
	var sk, pk, obj string
	if subject != nil {
		sk = subject.Key()
	}
	if predicate != nil {
		pk = predicate.Key()
	}
	if object != nil {
		obj = object.Key()
	}

	var result []*rdf.Triple
	collect := func(keys [3]string) {
		if t, found := s.triples[joinKeys(keys)]; found {
			result = append(result, t)
		}
	}

	switch {
	case subject != nil && predicate != nil && object != nil:
		collect([3]string{sk, pk, obj})
	case subject != nil && predicate != nil:
		s.spo.scan(2, sk, pk, collect)
	case subject != nil && object != nil:
		s.sop.scan(2, sk, obj, collect)
	case predicate != nil && object != nil:
		s.pos.scan(2, pk, obj, collect)
	case subject != nil:
		s.spo.scan(1, sk, "", collect)
	case predicate != nil:
		s.pso.scan(1, pk, "", collect)
	case object != nil:
		s.osp.scan(1, obj, "", collect)
	default:
		result = make([]*rdf.Triple, 0, len(s.triples))
		for _, t := range s.triples {
			result = append(result, t)
		}
	}
	return result
}

// Triples returns every triple of the default graph ordered by key.
func (s *TripleStore) Triples() []*rdf.Triple {
	result := s.Match(nil, nil, nil)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key() < result[j].Key()
	})
	return result
}

// Subjects returns the distinct terms in subject position.
func (s *TripleStore) Subjects() []rdf.Term {
	return s.distinct(s.spo, PosSubject)
}

// Predicates returns the distinct terms in predicate position.
func (s *TripleStore) Predicates() []rdf.Term {
	return s.distinct(s.pos, PosPredicate)
}

// Objects returns the distinct terms in object position.
func (s *TripleStore) Objects() []rdf.Term {
	return s.distinct(s.ops, PosObject)
}

func (s *TripleStore) distinct(ix *index, position Position) []rdf.Term {
	terms := make([]rdf.Term, 0, ix.size())
	for k1 := range ix.tree {
		keys, ok := ix.first(k1)
		if !ok {
			continue
		}
		t := s.triples[joinKeys(keys)]
		if t == nil {
			continue
		}
		switch position {
		case PosSubject:
			terms = append(terms, t.Subject)
		case PosPredicate:
			terms = append(terms, t.Predicate)
		case PosObject:
			terms = append(terms, t.Object)
		}
	}
	return terms
}

func (s *TripleStore) indexUUIDs(t *rdf.Triple) {
	subject, ok := t.Subject.(*rdf.NamedNode)
	if !ok {
		return
	}
	for _, candidate := range uuidPattern.FindAllString(subject.IRI, -1) {
		if _, err := uuid.Parse(candidate); err != nil {
			continue
		}
		id := strings.ToLower(candidate)
		set, exists := s.uuids[id]
		if !exists {
			set = make(map[string]struct{})
			s.uuids[id] = set
		}
		set[subject.IRI] = struct{}{}
	}
}

// FindSubjectsByUUID returns the subject IRIs containing the UUID. The
// lookup is case-insensitive and skips subjects that are no longer stored.
func (s *TripleStore) FindSubjectsByUUID(id string) []*rdf.NamedNode {
	candidates := s.uuids[strings.ToLower(id)]
	result := make([]*rdf.NamedNode, 0, len(candidates))
	for iri := range candidates {
		node := rdf.NewNamedNode(iri)
		if len(s.spo.tree[node.Key()]) > 0 {
			result = append(result, node)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].IRI < result[j].IRI
	})
	return result
}

// NewBlankNode returns a blank node with an identifier unique to this store.
// It is safe to call from concurrent readers.
func (s *TripleStore) NewBlankNode() *rdf.BlankNode {
	return rdf.NewBlankNode(fmt.Sprintf("b%d", s.blankCounter.Add(1)))
}

// Stats summarizes the contents of the store.
type Stats struct {
	Triples      int `json:"triples" yaml:"triples"`
	Subjects     int `json:"subjects" yaml:"subjects"`
	Predicates   int `json:"predicates" yaml:"predicates"`
	Objects      int `json:"objects" yaml:"objects"`
	NamedGraphs  int `json:"named_graphs" yaml:"named_graphs"`
	CacheEntries int `json:"cache_entries" yaml:"cache_entries"`
}

// Stats returns counts for the default graph plus the number of named graphs.
func (s *TripleStore) Stats() Stats {
	stats := Stats{
		Triples:     len(s.triples),
		Subjects:    s.spo.size(),
		Predicates:  s.pos.size(),
		Objects:     s.ops.size(),
		NamedGraphs: len(s.NamedGraphs()),
	}
	if s.cache != nil {
		stats.CacheEntries = s.cache.Len()
	}
	return stats
}
