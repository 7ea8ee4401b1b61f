package model

// DedupStats summarizes one dedup run.
type DedupStats struct {
	Lines       int `json:"lines"`
	Folded      int `json:"folded"`
	Spooled     int `json:"spooled"`
	Skipped     int `json:"skipped"`
	Canonical   int `json:"canonical"`
	Passthrough int `json:"passthrough"`
	Rewritten   int `json:"rewritten"` // reference values replaced
}

// InferStats summarizes one inference run.
type InferStats struct {
	Evidence       int `json:"evidence"`
	Mentions       int `json:"mentions"`
	OracleFailures int `json:"oracle_failures"`
}

// LoadStats summarizes one graph load.
type LoadStats struct {
	Records int `json:"records"`
	Nodes   int `json:"nodes"`
	Edges   int `json:"edges"`
	Skipped int `json:"skipped"`
}
