package types

// Source discriminants for ingestion events.
const (
	SourceS3  = "s3"
	SourceAPI = "api"
)

// IngestEvent is the invocation envelope consumed by the ingestion
// pipeline. Two shapes exist: object-store notifications (Bucket/Key
// identify the file; the external parser attaches the decoded Payload)
// and direct API submissions (Payload only).
type IngestEvent struct {
	Source       string         `json:"source"`
	TaxonomyType TaxonomyType   `json:"taxonomyType"`
	Bucket       string         `json:"bucket,omitempty"`
	Key          string         `json:"key,omitempty"`
	Payload      *IngestPayload `json:"payload,omitempty"`
}

// IngestPayload carries the parsed source: identity, taxonomy display
// name, the raw column headers (the layout resolver marker-parses
// them), and the rows as column-name → value documents.
type IngestPayload struct {
	CustomerID   string `json:"customer_id"`
	TaxonomyID   string `json:"taxonomy_id"`
	TaxonomyName string `json:"taxonomy_name,omitempty"`
	Layout       struct {
		Columns []string `json:"columns"`
	} `json:"layout"`
	Rows []*Doc `json:"rows"`
}

// IngestResponse reports the outcome of one ingestion invocation.
// NodeIDs is populated for customer loads and scopes the downstream
// mapping job to the nodes this load touched.
type IngestResponse struct {
	OK            bool         `json:"ok"`
	LoadID        int64        `json:"load_id"`
	CustomerID    string       `json:"customer_id"`
	TaxonomyID    string       `json:"taxonomy_id"`
	TaxonomyType  TaxonomyType `json:"taxonomy_type"`
	LoadType      LoadType     `json:"load_type"`
	RowsProcessed int          `json:"rows_processed"`
	NodeIDs       []int64      `json:"node_ids_processed,omitempty"`
	Errors        []string     `json:"errors,omitempty"`
}

// MapRequest invokes the mapping engine for one customer taxonomy load.
// NodeIDs, when set on an updated load, restricts mapping to the nodes
// the ingestion pass touched.
type MapRequest struct {
	LoadID       int64        `json:"load_id"`
	CustomerID   string       `json:"customer_id"`
	TaxonomyID   string       `json:"taxonomy_id"`
	LoadType     LoadType     `json:"load_type"`
	TaxonomyType TaxonomyType `json:"taxonomy_type"`
	NodeIDs      []int64      `json:"node_ids,omitempty"`
}

// MapResults are the per-action counters of one mapping run.
type MapResults struct {
	NodesProcessed      int `json:"nodes_processed"`
	MappingsCreated     int `json:"mappings_created"`
	MappingsUpdated     int `json:"mappings_updated"`
	MappingsDeactivated int `json:"mappings_deactivated"`
	MappingsUnchanged   int `json:"mappings_unchanged"`
	Failures            int `json:"failures"`
}

// MapResponse reports the outcome of one mapping run. Success is true
// only when at least some nodes succeeded; per-node failures are always
// surfaced in Errors.
type MapResponse struct {
	Success          bool       `json:"success"`
	LoadID           int64      `json:"load_id"`
	CustomerID       string     `json:"customer_id"`
	TaxonomyID       string     `json:"taxonomy_id"`
	Results          MapResults `json:"results"`
	VersionID        *int64     `json:"version_id,omitempty"`
	Errors           []string   `json:"errors,omitempty"`
	ProcessingTimeMS int64      `json:"processing_time_ms"`
}

// Vocabulary is the output of the vocabulary extractor: term sets
// derived from the Master hierarchy for downstream qualifier matchers.
type Vocabulary struct {
	StrongHeads    map[string]struct{} `json:"-"`
	QualifiedHeads map[string]struct{} `json:"-"`
	Qualifiers     map[string]struct{} `json:"-"`
}

// Translation is one answer row of the translation query: the customer
// node in the target taxonomy equivalent to the source value, plus the
// Master node both are mapped to.
type Translation struct {
	SourceNodeID int64  `json:"source_node_id"`
	MasterNodeID int64  `json:"master_node_id"`
	MasterValue  string `json:"master_value"`
	TargetNodeID int64  `json:"target_node_id"`
	TargetValue  string `json:"target_value"`
}
