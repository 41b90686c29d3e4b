package lamp

// Lamps is the ordered set of managers built by the composition root.
type Lamps struct {
	order []*Manager
	byID  map[string]*Manager
}

// NewLamps builds a collection. Later duplicates of an ID are ignored.
func NewLamps(managers ...*Manager) *Lamps {
	l := &Lamps{byID: make(map[string]*Manager, len(managers))}
	for _, m := range managers {
		if _, dup := l.byID[m.ID()]; dup {
			continue
		}
		l.order = append(l.order, m)
		l.byID[m.ID()] = m
	}
	return l
}

// Get returns the manager for an entry ID.
func (l *Lamps) Get(id string) (*Manager, bool) {
	m, ok := l.byID[id]
	return m, ok
}

// All returns managers in configuration order.
func (l *Lamps) All() []*Manager {
	return l.order
}

// IDs returns the entry IDs in configuration order.
func (l *Lamps) IDs() []string {
	ids := make([]string, len(l.order))
	for i, m := range l.order {
		ids[i] = m.ID()
	}
	return ids
}
