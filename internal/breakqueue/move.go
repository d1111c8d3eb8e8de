package breakqueue

import (
	"fmt"

	"github.com/dyluth/rota/pkg/rotation"
)

// Move relocates the entry at lists[fromList][fromIndex] to lists[toList] at toIndex and returns a
// new list-of-lists; the input is not modified. toIndex is clamped to [0, len(destination)] where
// the destination length is measured after the entry left its origin. Every list other than the
// origin and destination is shared with the input unchanged.
func Move(lists [][]rotation.QueueEntry, fromList, fromIndex, toList, toIndex int) ([][]rotation.QueueEntry, error) {
	if fromList < 0 || fromList >= len(lists) {
		return nil, fmt.Errorf("origin list %d out of range", fromList)
	}
	if toList < 0 || toList >= len(lists) {
		return nil, fmt.Errorf("destination list %d out of range", toList)
	}
	if fromIndex < 0 || fromIndex >= len(lists[fromList]) {
		return nil, fmt.Errorf("origin index %d out of range", fromIndex)
	}

	out := make([][]rotation.QueueEntry, len(lists))
	copy(out, lists)

	origin := append([]rotation.QueueEntry{}, lists[fromList]...)
	entry := origin[fromIndex]
	origin = append(origin[:fromIndex], origin[fromIndex+1:]...)
	out[fromList] = origin

	dest := out[toList]
	if toList != fromList {
		dest = append([]rotation.QueueEntry{}, dest...)
	}

	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > len(dest) {
		toIndex = len(dest)
	}

	dest = append(dest, rotation.QueueEntry{})
	copy(dest[toIndex+1:], dest[toIndex:])
	dest[toIndex] = entry
	out[toList] = dest

	return out, nil
}
