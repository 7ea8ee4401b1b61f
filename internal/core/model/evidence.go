package model

type EvidenceKind string

const (
	KindDocument EvidenceKind = "Document"
	KindImage    EvidenceKind = "Image"
)

// Evidence is one unit of unstructured source material handed to the
// extraction oracle.
type Evidence struct {
	ProofID string       `json:"proof_id"`
	Kind    EvidenceKind `json:"kind"`
	Text    string       `json:"text"`
}
