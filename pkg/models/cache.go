package models

// CacheEntry is one persisted resolution of a question. CreatedAt is kept as
// text so that entries written by other tools with a different timestamp
// format can still be served.
type CacheEntry struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	QueryText   string      `json:"query_text"`
	PlanKind    PlanKind    `json:"query_type"`
	Result      []byte      `json:"result"`
	CreatedAt   string      `json:"created_at"`
}
