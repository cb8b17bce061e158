package clearing

import "sort"

// ration allocates target units across demands pro-rata by size using
// largest-remainder rounding. The result sums to min(target, sum) and
// no entry exceeds its demand. Ties on the fractional part go to the
// larger demand, then to the earlier entry, so the outcome is
// deterministic and independent of submission order beyond input order.
func ration(demands []int64, target int64) []int64 {
	out := make([]int64, len(demands))
	if target <= 0 || len(demands) == 0 {
		return out
	}

	var total int64
	for _, d := range demands {
		if d > 0 {
			total += d
		}
	}
	if total == 0 {
		return out
	}
	if total <= target {
		for i, d := range demands {
			if d > 0 {
				out[i] = d
			}
		}
		return out
	}

	type slot struct {
		index int
		rem   int64 // numerator remainder of target*d/total
		size  int64
	}
	var allocated int64
	slots := make([]slot, 0, len(demands))
	for i, d := range demands {
		if d <= 0 {
			continue
		}
		share := target * d / total
		out[i] = share
		allocated += share
		slots = append(slots, slot{index: i, rem: target * d % total, size: d})
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].rem != slots[j].rem {
			return slots[i].rem > slots[j].rem
		}
		if slots[i].size != slots[j].size {
			return slots[i].size > slots[j].size
		}
		return slots[i].index < slots[j].index
	})

	for _, s := range slots {
		if allocated >= target {
			break
		}
		if out[s.index] < s.size {
			out[s.index]++
			allocated++
		}
	}
	return out
}
