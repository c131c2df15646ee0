package weather

// HourlyLimit is the maximum number of entries in the hourly view.
const HourlyLimit = 10

// FilterHourly keeps entries at or after anchor, in source order, capped at HourlyLimit.
// The result never shares a backing array with entries.
func FilterHourly(entries []HourlyEntry, anchor int64) []HourlyEntry {
	out := make([]HourlyEntry, 0, HourlyLimit)
	for _, e := range entries {
		if e.Dt < anchor {
			continue
		}
		out = append(out, e)
		if len(out) == HourlyLimit {
			break
		}
	}
	return out
}
