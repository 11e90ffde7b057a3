// Package models holds the shared data types for the corpus graph: documents,
// section containers, provisions, domains and the edges that connect them.
package models

import "time"

// DocumentClass enumerates the legal instrument types carried by a Document node.
type DocumentClass string

const (
	DocumentClassStatute DocumentClass = "statute"
	DocumentClassDecree  DocumentClass = "decree"
	DocumentClassRule    DocumentClass = "rule"
)

// Document is a top-level legal instrument.
type Document struct {
	ID    string        `json:"id"`
	Title string        `json:"title"`
	Class DocumentClass `json:"class"`
}

// SectionContainer is an inner hierarchical grouping of provisions (chapter,
// section, article head). It carries no textual content beyond a heading.
type SectionContainer struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Position int    `json:"position"`
	ParentID string `json:"parent_id"`
	// Embedding is optional: populated only when the container was indexed
	// for the optional container-level search channel in the hybrid retriever.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Provision is the leaf unit of retrieval.
type Provision struct {
	// ID is the globally unique identifier: document title concatenated with
	// the path of section labels including the provision's own label.
	ID      string `json:"id"`
	Content string `json:"content"`

	// NodeEmbedding has length D_node; SecondaryEmbedding has length
	// D_node' per spec 3.1. Both are optional until the embedding
	// gateway has processed the provision.
	NodeEmbedding      []float32 `json:"node_embedding,omitempty"`
	SecondaryEmbedding []float32 `json:"secondary_embedding,omitempty"`

	// Denormalized display fields, never fatal when absent.
	DocumentTitle   string `json:"document_title"`
	ProvisionPath   string `json:"provision_path"`
	ProvisionNumber string `json:"provision_number"`

	IsSubProvision bool `json:"is_sub_provision"`
}

// EdgeKind enumerates the traversable edge types returned by GetNeighbors.
type EdgeKind string

const (
	EdgeKindParent        EdgeKind = "parent"
	EdgeKindSibling       EdgeKind = "sibling"
	EdgeKindChild         EdgeKind = "child"
	EdgeKindCrossDocument EdgeKind = "cross_document"
)

// SemanticType is the discrete label carried by hierarchy edges that have a
// relation-space embedding (spec 3.1, invariant 4).
type SemanticType string

const (
	SemanticDetail    SemanticType = "detail"
	SemanticException SemanticType = "exception"
	SemanticReference SemanticType = "reference"
	SemanticCondition SemanticType = "condition"
	SemanticAddition  SemanticType = "addition"
	SemanticGeneral   SemanticType = "general"
)

// EdgePayload carries whatever a neighbor edge contributes to RAE's cost
// function: its relation-space embedding and semantic type, when present.
type EdgePayload struct {
	RelationEmbedding []float32    `json:"relation_embedding,omitempty"`
	SemanticType      SemanticType `json:"semantic_type,omitempty"`
	Keywords          []string     `json:"keywords,omitempty"`
	Position          int          `json:"position,omitempty"`
}

// Neighbor is one edge returned by GraphStore.GetNeighbors.
type Neighbor struct {
	NeighborID string
	Kind       EdgeKind
	Payload    EdgePayload
}

// Domain is a corpus partition: a centroid, a member count and links to peers.
type Domain struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Cardinality int      `json:"cardinality"`
	Centroid   []float32 `json:"centroid"`
	Neighbors  []string  `json:"neighbors"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Clone returns a deep-enough copy of the domain safe to hand to a caller
// outside the registry's write lock (centroid and neighbor slices copied).
func (d *Domain) Clone() *Domain {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Centroid = append([]float32(nil), d.Centroid...)
	clone.Neighbors = append([]string(nil), d.Neighbors...)
	return &clone
}
