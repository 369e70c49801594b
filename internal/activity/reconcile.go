package activity

// Delta is the outcome of comparing two eligible activity sets by name.
type Delta struct {
	// Unchanged is true when both sets contain exactly the same names.
	Unchanged bool
	// Remove holds names present before but gone after.
	Remove []string
	// Add holds names present after but absent before.
	Add []string
}

// Reconcile compares before and after by name only. Names present on both
// sides are continuing and appear in neither Remove nor Add. Output order
// follows the order of first appearance in the respective input.
func Reconcile(before, after []Activity) Delta {
	beforeNames := names(before)
	afterNames := names(after)

	var delta Delta
	for _, n := range orderedNames(before) {
		if _, ok := afterNames[n]; !ok {
			delta.Remove = append(delta.Remove, n)
		}
	}
	for _, n := range orderedNames(after) {
		if _, ok := beforeNames[n]; !ok {
			delta.Add = append(delta.Add, n)
		}
	}

	delta.Unchanged = len(delta.Remove) == 0 && len(delta.Add) == 0
	return delta
}

func names(activities []Activity) map[string]struct{} {
	set := make(map[string]struct{}, len(activities))
	for _, a := range activities {
		set[a.Name] = struct{}{}
	}
	return set
}

func orderedNames(activities []Activity) []string {
	out := make([]string, 0, len(activities))
	for _, a := range Dedupe(activities) {
		out = append(out, a.Name)
	}
	return out
}
