package persona

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"

	twinerrors "twinlab/internal/errors"
	"twinlab/internal/logging"
)

// Source supplies the raw persona corpus. The engine ships a file source;
// tests and the HTTP server may inject in-memory corpora.
type Source interface {
	Open() (io.ReadCloser, error)
	Name() string
}

type fileSource struct{ path string }

func (s fileSource) Open() (io.ReadCloser, error) { return os.Open(s.path) }
func (s fileSource) Name() string                 { return s.path }

// FileSource reads the corpus from a JSON file on disk.
func FileSource(path string) Source { return fileSource{path: path} }

type readerSource struct {
	name   string
	reader io.Reader
}

func (s readerSource) Open() (io.ReadCloser, error) { return io.NopCloser(s.reader), nil }
func (s readerSource) Name() string                 { return s.name }

// ReaderSource wraps an in-memory corpus, mainly for tests.
func ReaderSource(name string, r io.Reader) Source { return readerSource{name: name, reader: r} }

// corpusRecord tolerates both the engine's schema and the original processed
// dataset naming (persona_text).
type corpusRecord struct {
	ID          string            `json:"id"`
	Narrative   string            `json:"narrative"`
	PersonaText string            `json:"persona_text"`
	Attributes  map[string]string `json:"attributes"`
}

// Store holds the loaded corpus and answers selection queries. Read-only
// after Load; safe for concurrent readers.
type Store struct {
	source Source
	logger logging.Logger

	mu       sync.Mutex
	loaded   bool
	personas []Persona
	byID     map[string]*Persona
}

// NewStore creates a store over the given corpus source. Nothing is read
// until Load.
func NewStore(source Source) *Store {
	return &Store{
		source: source,
		logger: logging.NewComponentLogger("persona-store"),
	}
}

// Load populates the corpus once. Repeated calls are no-ops. An unreachable
// source or unrecognized schema fails with a LoadError before any model spend.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return nil
	}

	reader, err := s.source.Open()
	if err != nil {
		return &twinerrors.LoadError{Source: s.source.Name(), Err: err}
	}
	defer func() { _ = reader.Close() }()

	var records []corpusRecord
	if err := json.NewDecoder(reader).Decode(&records); err != nil {
		return &twinerrors.LoadError{Source: s.source.Name(), Err: fmt.Errorf("decode corpus: %w", err)}
	}

	personas := make([]Persona, 0, len(records))
	byID := make(map[string]*Persona, len(records))
	for i, record := range records {
		if record.ID == "" {
			return &twinerrors.LoadError{Source: s.source.Name(), Err: fmt.Errorf("record %d has no id", i)}
		}
		if _, dup := byID[record.ID]; dup {
			return &twinerrors.LoadError{Source: s.source.Name(), Err: fmt.Errorf("duplicate persona id %q", record.ID)}
		}
		narrative := record.Narrative
		if narrative == "" {
			narrative = record.PersonaText
		}
		personas = append(personas, Persona{ID: record.ID, Narrative: narrative, Attributes: record.Attributes})
		byID[record.ID] = &personas[len(personas)-1]
	}

	s.personas = personas
	s.byID = byID
	s.loaded = true
	s.logger.Info("loaded %d personas from %s", len(personas), s.source.Name())
	return nil
}

// Len returns the corpus size.
func (s *Store) Len() int { return len(s.personas) }

// All returns every persona in stable original order.
func (s *Store) All() []*Persona {
	result := make([]*Persona, len(s.personas))
	for i := range s.personas {
		result[i] = &s.personas[i]
	}
	return result
}

// Random returns a without-replacement sample of size n. The same seed over
// the same corpus always yields the same ID sequence. n >= corpus size
// returns the full corpus in original order.
func (s *Store) Random(n int, seed int64) []*Persona {
	if n >= len(s.personas) {
		return s.All()
	}
	if n <= 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(s.personas))

	result := make([]*Persona, n)
	for i := 0; i < n; i++ {
		result[i] = &s.personas[perm[i]]
	}
	return result
}

// Filter returns every persona whose attributes satisfy pred, in original
// order. An empty result is valid, not an error.
func (s *Store) Filter(pred func(attrs map[string]string) bool) []*Persona {
	var result []*Persona
	for i := range s.personas {
		if pred(s.personas[i].Attributes) {
			result = append(result, &s.personas[i])
		}
	}
	return result
}

// AttributeEquals is a convenience predicate for Filter.
func AttributeEquals(name, value string) func(attrs map[string]string) bool {
	return func(attrs map[string]string) bool {
		return attrs[name] == value
	}
}

// ByID looks personas up by exact ID, preserving the requested order. If any
// ID is absent the whole selection fails with a NotFoundError listing every
// missing ID.
func (s *Store) ByID(ids ...string) ([]*Persona, error) {
	result := make([]*Persona, 0, len(ids))
	var missing []string
	for _, id := range ids {
		p, ok := s.byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		result = append(result, p)
	}
	if len(missing) > 0 {
		return nil, &twinerrors.NotFoundError{Missing: missing}
	}
	return result, nil
}

// Fields returns the sorted set of attribute keys present in the corpus.
func (s *Store) Fields() []string {
	seen := map[string]struct{}{}
	for i := range s.personas {
		for key := range s.personas[i].Attributes {
			seen[key] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for key := range seen {
		fields = append(fields, key)
	}
	sort.Strings(fields)
	return fields
}

// FieldValues returns the sorted distinct values of one attribute.
func (s *Store) FieldValues(name string) []string {
	seen := map[string]struct{}{}
	for i := range s.personas {
		if value, ok := s.personas[i].Attributes[name]; ok {
			seen[value] = struct{}{}
		}
	}
	values := make([]string, 0, len(seen))
	for value := range seen {
		values = append(values, value)
	}
	sort.Strings(values)
	return values
}
