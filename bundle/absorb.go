package bundle

import "fmt"

// Absorb merges a freshly scraped copy of m into m. The period is taken from
// fresh. Items m already knows keep their identity and take the fresh
// spelling; unknown items are moved into m. It returns the items that were
// new to m, ordered by normalized name.
//
// Items missing from fresh are kept: the archive never deletes.
func (m *Month) Absorb(fresh *Month) ([]*Item, error) {
	if !m.Equal(fresh) {
		return nil, fmt.Errorf("%w: %s vs %s", ErrMonthMismatch, m.URL(), fresh.URL())
	}
	if m == fresh {
		return nil, nil
	}

	fresh.mu.RLock()
	month, year := fresh.month, fresh.year
	fresh.mu.RUnlock()
	incoming := fresh.Items()

	var added []*Item
	m.mu.Lock()
	m.month, m.year = month, year
	for _, it := range incoming {
		name := it.Name()
		key := NormalizeName(name)
		if known, ok := m.items[key]; ok {
			known.rename(name)
			continue
		}
		moved := NewItem(name, m)
		if id, ok := it.ID(); ok {
			moved.identity.id, moved.identity.bound = id, true
		}
		m.items[key] = moved
		added = append(added, moved)
	}
	m.mu.Unlock()
	return added, nil
}
