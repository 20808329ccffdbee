package statsrelay

// Set holds the distinct members seen for a set metric, in insertion order.
type Set struct {
	Values []string
	seen   map[string]struct{}
}

func (s *Set) insert(value string) {
	if _, ok := s.seen[value]; ok {
		return
	}
	s.seen[value] = struct{}{}
	s.Values = append(s.Values, value)
}

// Sets stores sets keyed by metric name. Iteration follows first-seen order.
type Sets struct {
	names  []string
	values map[string]*Set
}

func newSets() Sets {
	return Sets{values: map[string]*Set{}}
}

func (s *Sets) add(name, value string) {
	set, ok := s.values[name]
	if !ok {
		set = &Set{seen: map[string]struct{}{}}
		s.names = append(s.names, name)
		s.values[name] = set
	}
	set.insert(value)
}

// Get returns the set stored under name.
func (s Sets) Get(name string) (*Set, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Len returns the number of distinct sets.
func (s Sets) Len() int {
	return len(s.names)
}

// Each iterates over each set in insertion order.
func (s Sets) Each(f func(name string, set *Set)) {
	for _, name := range s.names {
		f(name, s.values[name])
	}
}
