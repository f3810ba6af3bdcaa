package coordinator

import "github.com/datamart/webapp/internal/models"

// NbRecent is the number of recent discoveries kept.
const NbRecent = 15

// RecentList keeps the most recent discoveries, newest first. Re-inserting a
// known dataset replaces it in place.
type RecentList struct {
	size  int
	items []models.Discovery
}

// NewRecentList creates a list holding at most size entries, seeded with the
// first size items of init.
func NewRecentList(size int, init ...models.Discovery) *RecentList {
	if len(init) > size {
		init = init[:size]
	}
	return &RecentList{size: size, items: append([]models.Discovery(nil), init...)}
}

// InsertOrReplace adds d at the front, or updates the entry with the same dataset id.
func (l *RecentList) InsertOrReplace(d models.Discovery) {
	for i := range l.items {
		if l.items[i].DatasetID == d.DatasetID {
			l.items[i] = d
			return
		}
	}
	l.items = append(l.items, models.Discovery{})
	copy(l.items[1:], l.items)
	l.items[0] = d
	if len(l.items) > l.size {
		l.items = l.items[:l.size]
	}
}

// Items returns a copy of the entries.
func (l *RecentList) Items() []models.Discovery {
	return append([]models.Discovery{}, l.items...)
}
