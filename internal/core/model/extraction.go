package model

import (
	"encoding/json"

	"github.com/agenthands/ftmresolve/internal/ftm"
)

// CandidateItem is one raw entity proposed by the extraction oracle.
type CandidateItem struct {
	Schema     string          `json:"schema"`
	Properties ftm.Properties  `json:"properties"`
	Confidence json.RawMessage `json:"confidence,omitempty"`
	Evidence   json.RawMessage `json:"evidence,omitempty"`
}

// InferenceNote is the provenance attached to every inferred mention.
// Field order is the serialized key order.
type InferenceNote struct {
	Stream     string          `json:"stream"`
	Source     string          `json:"source"`
	Confidence json.RawMessage `json:"confidence"`
	Evidence   json.RawMessage `json:"evidence"`
	Proof      string          `json:"proof"`
	Kind       EvidenceKind    `json:"kind,omitempty"`
}

const StreamInferred = "inferred"
