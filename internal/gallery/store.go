package gallery

import "tush00nka/teledrive/internal/model"

// Store holds the canonical item set and the subset currently displayed.
// It is not safe for concurrent use; the Controller serialises access.
type Store struct {
	all       []model.MediaItem
	displayed []model.MediaItem
	version   uint64 // bumped whenever all changes
}

// ReplaceAll sets both sequences. A nil slice is stored as empty.
func (s *Store) ReplaceAll(items []model.MediaItem) {
	s.all = model.CloneItems(items)
	s.displayed = model.CloneItems(items)
	s.version++
}

func (s *Store) SetDisplayed(items []model.MediaItem) {
	s.displayed = model.CloneItems(items)
}

// Prepend puts item first in both sequences. An existing entry with the same id
// is replaced, so ids stay unique.
func (s *Store) Prepend(item model.MediaItem) {
	s.all = prepend(s.all, item)
	s.displayed = prepend(s.displayed, item)
	s.version++
}

func prepend(items []model.MediaItem, item model.MediaItem) []model.MediaItem {
	out := make([]model.MediaItem, 0, len(items)+1)
	out = append(out, item)
	for _, it := range items {
		if it.ID != item.ID {
			out = append(out, it)
		}
	}
	return out
}

// Version identifies the current contents of all. SetDisplayed leaves it alone.
func (s *Store) Version() uint64 {
	return s.version
}

func (s *Store) All() []model.MediaItem {
	return model.CloneItems(s.all)
}

func (s *Store) Displayed() []model.MediaItem {
	return model.CloneItems(s.displayed)
}

func (s *Store) Find(id string) (model.MediaItem, bool) {
	for _, it := range s.all {
		if it.ID == id {
			return it, true
		}
	}
	return model.MediaItem{}, false
}
