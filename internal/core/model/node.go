package model

// GraphNode is the graph projection of one record.
type GraphNode struct {
	ID         string `json:"id"`
	Schema     string `json:"schema"`
	Caption    string `json:"caption"`
	Properties string `json:"properties"` // JSON-encoded property map
}
