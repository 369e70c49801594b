package activity

import (
	"strings"
)

// Kind is the reported type of an activity.
type Kind string

const (
	// KindUnset means the report carried no type at all (custom-status style entries).
	KindUnset     Kind = ""
	KindPlaying   Kind = "playing"
	KindStreaming Kind = "streaming"
	KindListening Kind = "listening"
	KindWatching  Kind = "watching"
	KindCustom    Kind = "custom"
	KindCompeting Kind = "competing"
	KindOther     Kind = "other"
)

// DefaultEligibleKinds are the kinds tracked when none are configured
var DefaultEligibleKinds = []Kind{KindPlaying, KindStreaming}

// ParseKind normalizes a kind string. Unknown values map to KindOther.
func ParseKind(s string) Kind {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindUnset, KindPlaying, KindStreaming, KindListening, KindWatching, KindCustom, KindCompeting:
		return k
	default:
		return KindOther
	}
}

// Activity is a single activity report for a subject.
type Activity struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind,omitempty"`
}

// HasKind reports whether the activity carried an explicit type.
func (a Activity) HasKind() bool {
	return a.Kind != KindUnset
}

func (a Activity) String() string {
	if !a.HasKind() {
		return a.Name
	}
	return a.Name + " (" + string(a.Kind) + ")"
}
