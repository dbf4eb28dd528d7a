package model

// UsageCounter is a per-org daily aggregate. Date is formatted YYYY-MM-DD
// in UTC so month rollups can prefix-match.
type UsageCounter struct {
	OrgID         string  `json:"org_id"`
	Date          string  `json:"date"`
	TokensUsed    int64   `json:"tokens_used"`
	APICalls      int64   `json:"api_calls"`
	EstimatedCost float64 `json:"estimated_cost"`
}
