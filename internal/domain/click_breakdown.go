package domain

// BreakdownItem is one grouped value with its click count.
type BreakdownItem struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// ClickBreakdown groups a link's click events by their classified
// dimensions over a trailing window. Derived data, recomputable from
// ClickEvent rows at any time.
type ClickBreakdown struct {
	Referrers []BreakdownItem `json:"referrers"`
	Devices   []BreakdownItem `json:"devices"`
	Browsers  []BreakdownItem `json:"browsers"`
	Countries []BreakdownItem `json:"countries"`
}
