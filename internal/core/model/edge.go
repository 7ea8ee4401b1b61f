package model

// GraphEdge links a record to the record one of its reference properties
// points at. Relationship type is REFERENCES.
type GraphEdge struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Property string `json:"property"`
}
