package wifi

import "sort"

// SortAccessPoints sorts a slice of AccessPoint structs in place.
// The sorting order is:
// 1. Signal strength, strongest first.
// 2. Fallback to SSID alphabetically.
func SortAccessPoints(aps []AccessPoint) {
	sort.SliceStable(aps, func(i, j int) bool {
		a := aps[i]
		b := aps[j]

		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		return a.SSID < b.SSID
	})
}
