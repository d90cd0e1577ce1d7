package detection

import "sort"

// Ranked is a scored box taking part in suppression.
type Ranked struct {
	Box   Box
	Score float64
	Order int
}

// Suppress runs greedy non-maximum suppression and returns the indices of the
// items that survive, highest score first.
//
// Items are ranked by Score descending with ties broken by ascending Order.
// Walking that ranking, an item is kept unless its IoU with an already kept
// item is at least iouThreshold, so no two kept boxes overlap by the
// threshold or more. items is not modified.
func Suppress(items []Ranked, iouThreshold float64) []int {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := items[order[a]], items[order[b]]
		if ia.Score != ib.Score {
			return ia.Score > ib.Score
		}
		return ia.Order < ib.Order
	})

	kept := make([]int, 0, len(items))
	for _, i := range order {
		suppressed := false
		for _, k := range kept {
			if IoU(items[i].Box, items[k].Box) >= iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, i)
		}
	}
	return kept
}
