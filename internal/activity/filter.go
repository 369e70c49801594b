package activity

// Filter decides which activity reports are eligible for tracking.
type Filter struct {
	denylist map[string]struct{}
	kinds    map[Kind]struct{}
}

// NewFilter creates a filter. Denylist matching is exact and case-sensitive.
// An empty kinds list falls back to DefaultEligibleKinds.
func NewFilter(denylist []string, kinds []Kind) *Filter {
	if len(kinds) == 0 {
		kinds = DefaultEligibleKinds
	}

	f := &Filter{
		denylist: make(map[string]struct{}, len(denylist)),
		kinds:    make(map[Kind]struct{}, len(kinds)),
	}
	for _, name := range denylist {
		f.denylist[name] = struct{}{}
	}
	for _, k := range kinds {
		f.kinds[k] = struct{}{}
	}

	return f
}

// IsEligible reports whether a single activity may be tracked.
// Activities without a kind are eligible unless denylisted.
func (f *Filter) IsEligible(a Activity) bool {
	if _, denied := f.denylist[a.Name]; denied {
		return false
	}

	if a.HasKind() {
		if _, ok := f.kinds[a.Kind]; !ok {
			return false
		}
	}

	return true
}

// Denied reports whether name is on the denylist.
func (f *Filter) Denied(name string) bool {
	_, denied := f.denylist[name]
	return denied
}

// StripIneligible removes duplicate names (first occurrence wins) and then
// drops every activity that fails IsEligible. Input order is preserved.
func (f *Filter) StripIneligible(activities []Activity) []Activity {
	eligible := make([]Activity, 0, len(activities))
	for _, a := range Dedupe(activities) {
		if f.IsEligible(a) {
			eligible = append(eligible, a)
		}
	}
	return eligible
}

// Dedupe returns activities with repeated names removed, keeping the first.
func Dedupe(activities []Activity) []Activity {
	seen := make(map[string]struct{}, len(activities))
	out := make([]Activity, 0, len(activities))
	for _, a := range activities {
		if _, ok := seen[a.Name]; ok {
			continue
		}
		seen[a.Name] = struct{}{}
		out = append(out, a)
	}
	return out
}
