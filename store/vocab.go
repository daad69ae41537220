package store

// RDF vocabulary prefixes used throughout the ragno/semem graph shape (§3).
// Writers and readers must agree on exactly one shape per predicate — the
// source system this spec was distilled from mixed `ragno:hasTextElement`+
// `skos:prefLabel` in some queries with `rdfs:label` in others; this
// implementation uses `rdfs:label` everywhere, with no alternate shape.
const (
	PrefixSemem  = "semem: <http://purl.org/stuff/semem/>"
	PrefixRagno  = "ragno: <http://purl.org/stuff/ragno/>"
	PrefixSKOS   = "skos: <http://www.w3.org/2004/02/skos/core#>"
	PrefixPROV   = "prov: <http://www.w3.org/ns/prov#>"
	PrefixDCTerm = "dcterms: <http://purl.org/dc/terms/>"
	PrefixRDFS   = "rdfs: <http://www.w3.org/2000/01/rdf-schema#>"
	PrefixXSD    = "xsd: <http://www.w3.org/2001/XMLSchema#>"

	ClassInteraction = "semem:Interaction"
	ClassUnit        = "ragno:Unit"
	ClassCorpuscle   = "ragno:Corpuscle"
	ClassTextElement = "ragno:TextElement"
	ClassDocument    = "ragno:Document"
	ClassEntity      = "ragno:Entity"
	ClassRelationship = "ragno:Relationship"

	PredMember            = "skos:member"
	PredDerivedFrom       = "prov:wasDerivedFrom"
	PredTitle             = "dcterms:title"
	PredLabel             = "rdfs:label"
	PredContent           = "ragno:content"
	PredHasSourceEntity   = "ragno:hasSourceEntity"
	PredHasTargetEntity   = "ragno:hasTargetEntity"
	PredRelationshipType  = "ragno:relationshipType"
	PredWeight            = "ragno:weight"
	PredEmbedding         = "semem:embedding"
	PredOffsetStart       = "ragno:offsetStart"
	PredOffsetEnd         = "ragno:offsetEnd"
	PredChunkIndex        = "ragno:chunkIndex"
	PredFormat            = "ragno:format"
	PredHasConceptCorpuscle = "ragno:hasConceptCorpuscle"
	PredSourceCorpus      = "ragno:sourceCorpus"

	// DefaultGraphURI is the default named graph when none is configured (§6).
	DefaultGraphURI = "http://hyperdata.it/content"
)

// AllPrefixes returns the SPARQL PREFIX block prepended to every query.
func AllPrefixes() []string {
	return []string{PrefixSemem, PrefixRagno, PrefixSKOS, PrefixPROV, PrefixDCTerm, PrefixRDFS, PrefixXSD}
}
