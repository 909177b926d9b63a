package credential

// Identifiers returns the identifiers of records in batch order.
func Identifiers(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.Identifier
	}
	return ids
}

// FindDuplicates returns every identifier that occurs more than once in the
// batch, each listed once, in order of first occurrence.
func FindDuplicates(records []Record) []string {
	counts := make(map[string]int, len(records))
	for _, r := range records {
		counts[r.Identifier]++
	}

	var dups []string
	for _, r := range records {
		if counts[r.Identifier] > 1 {
			dups = append(dups, r.Identifier)
			counts[r.Identifier] = 0 // report once
		}
	}
	return dups
}

// KeepOrder returns the members of subset ordered as they appear in ids.
// Members of subset absent from ids are dropped.
func KeepOrder(ids, subset []string) []string {
	want := make(map[string]bool, len(subset))
	for _, id := range subset {
		want[id] = true
	}

	var out []string
	for _, id := range ids {
		if want[id] {
			out = append(out, id)
			want[id] = false
		}
	}
	return out
}
