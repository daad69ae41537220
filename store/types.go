// Package store implements the Triple Store Adapter (C1), the Query
// Template Service (C2), and the Memory Store (C5) over a remote SPARQL
// endpoint, plus the RDF-shaped domain types shared by every other package.
package store

import "time"

// MemoryType classifies an Interaction's retention tier.
type MemoryType string

const (
	MemoryShortTerm MemoryType = "short-term"
	MemoryLongTerm  MemoryType = "long-term"
	MemoryLazy      MemoryType = "lazy"
)

// ProcessingStatus tracks the lazy→processed lifecycle of an Interaction.
type ProcessingStatus string

const (
	StatusLazy      ProcessingStatus = "lazy"
	StatusProcessed ProcessingStatus = "processed"
)

// RelationshipType enumerates the first-class edge kinds in §3.
type RelationshipType string

const (
	RelSimilarity      RelationshipType = "similarity"
	RelEntityMatch     RelationshipType = "entity-match"
	RelCommunityBridge RelationshipType = "community-bridge"
	RelSemanticAnswer  RelationshipType = "semantic-answer"
	RelKeywordAnswer   RelationshipType = "keyword-answer"
)

// Interaction is the atomic memory unit (semem:Interaction).
type Interaction struct {
	ID               string
	Prompt           string
	Output           string
	Embedding        []float32
	Timestamp        time.Time
	AccessCount      uint64
	DecayFactor      float32
	MemoryType       MemoryType
	ProcessingStatus ProcessingStatus
	Title            string
	Label            string
}

// Concept is a single extracted concept string (ragno:Unit). Embedding is
// the vector its owning ConceptCorpuscle's pooled embedding is derived
// from (I3) — concepts are extracted per-chunk rather than re-embedded
// individually, so every concept in a corpuscle shares its chunk's vector.
type Concept struct {
	URI       string
	Label     string
	Embedding []float32
}

// ConceptCorpuscle groups concepts that share a context (ragno:Corpuscle).
type ConceptCorpuscle struct {
	URI       string
	Members   []Concept
	Embedding []float32
}

// TextElement is an addressable span of a source document (ragno:TextElement).
type TextElement struct {
	URI          string
	Content      string
	OffsetStart  int
	OffsetEnd    int
	DocumentURI  string
}

// Chunk is a TextElement produced by the chunker, additionally ordered
// within its document and carrying its own embedding.
type Chunk struct {
	TextElement
	Index     int
	Embedding []float32
}

// Document is the ingestion root (ragno:Document).
type Document struct {
	URI        string
	Title      string
	SourceURI  string
	Format     string
	IngestedAt time.Time
	Chunks     []Chunk
}

// Entity is a named thing extracted by decomposition (ragno:Entity).
type Entity struct {
	URI          string
	Label        string
	Type         string
	DerivedFrom  string
}

// Relationship is a reified first-class edge (ragno:Relationship).
type Relationship struct {
	URI         string
	Source      string
	Target      string
	Type        RelationshipType
	Weight      float64
	Description string
	SourceCorpus string
	SweepID     string
	Timestamp   time.Time
}

// ScoredInteraction pairs an Interaction with a retrieval score.
type ScoredInteraction struct {
	Interaction Interaction
	Score       float64
}
