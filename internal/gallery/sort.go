package gallery

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"tush00nka/teledrive/internal/model"
)

// Sort returns a stably ordered copy of items. Descending order negates the
// ascending comparison, so equal elements keep their relative order either way.
func Sort(items []model.MediaItem, spec model.SortSpec) []model.MediaItem {
	out := model.CloneItems(items)

	var compare func(a, b model.MediaItem) int
	switch spec.Key {
	case model.SortByName:
		// Collator не потокобезопасен, создаём на каждый вызов
		col := collate.New(language.English)
		compare = func(a, b model.MediaItem) int {
			return col.CompareString(a.Name, b.Name)
		}
	case model.SortByType:
		compare = func(a, b model.MediaItem) int {
			return strings.Compare(string(a.Type), string(b.Type))
		}
	default:
		compare = func(a, b model.MediaItem) int {
			return cmp.Compare(a.Timestamp, b.Timestamp)
		}
	}

	if spec.Order == model.SortDesc {
		asc := compare
		compare = func(a, b model.MediaItem) int {
			return -asc(a, b)
		}
	}

	slices.SortStableFunc(out, compare)
	return out
}
