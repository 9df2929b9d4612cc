// Package types defines core data structures for the taxonomy platform.
package types

import (
	"fmt"
	"time"
)

// TaxonomyType distinguishes the canonical Master hierarchy from
// customer-owned vocabularies.
type TaxonomyType string

const (
	TaxonomyMaster   TaxonomyType = "master"
	TaxonomyCustomer TaxonomyType = "customer"
)

// Valid reports whether t is a known taxonomy type.
func (t TaxonomyType) Valid() bool {
	return t == TaxonomyMaster || t == TaxonomyCustomer
}

// LoadType is derived per load: "new" when no taxonomy header exists yet
// for the (customer, taxonomy) pair, "updated" otherwise.
type LoadType string

const (
	LoadNew     LoadType = "new"
	LoadUpdated LoadType = "updated"
)

// LoadStatus is the lifecycle of a Bronze load header.
type LoadStatus string

const (
	LoadInProgress         LoadStatus = "in_progress"
	LoadCompleted          LoadStatus = "completed"
	LoadPartiallyCompleted LoadStatus = "partially_completed"
	LoadFailed             LoadStatus = "failed"
)

// RowStatus is the per-row lifecycle inside a load.
type RowStatus string

const (
	RowInProgress RowStatus = "in_progress"
	RowCompleted  RowStatus = "completed"
	RowFailed     RowStatus = "failed"
)

// Status is the active/inactive lifecycle shared by nodes, attributes,
// taxonomies and mappings. Nothing is hard-deleted by the pipelines.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// NAPlaceholderTypeID is the reserved node-type id for synthetic "N/A"
// nodes inserted to bridge skipped hierarchy levels.
const NAPlaceholderTypeID int64 = -1

// NAPlaceholderValue is the value and profession carried by placeholder
// nodes.
const NAPlaceholderValue = "N/A"

// Load is the Bronze header for one ingestion invocation.
type Load struct {
	ID         int64        `json:"id"`
	CustomerID string       `json:"customer_id"`
	TaxonomyID string       `json:"taxonomy_id"`
	Type       TaxonomyType `json:"taxonomy_type"`
	LoadType   LoadType     `json:"load_type,omitempty"` // empty until resolved
	Status     LoadStatus   `json:"status"`
	RowCount   int          `json:"row_count"`
	Details    *Doc         `json:"details,omitempty"` // provenance: source URI, request id, layout, row errors
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    *time.Time   `json:"ended_at,omitempty"`
}

// RawRow is one verbatim source record in Bronze.
type RawRow struct {
	ID         int64     `json:"id"`
	LoadID     int64     `json:"load_id"`
	CustomerID string    `json:"customer_id"`
	TaxonomyID string    `json:"taxonomy_id"`
	Doc        *Doc      `json:"doc"`
	Status     RowStatus `json:"status"`
	Active     bool      `json:"active"`
}

// Taxonomy is the header row for a (customer, taxonomy) pair. Exactly
// one header exists per pair.
type Taxonomy struct {
	CustomerID string       `json:"customer_id"`
	TaxonomyID string       `json:"taxonomy_id"`
	Name       string       `json:"name"`
	Type       TaxonomyType `json:"taxonomy_type"`
	Status     Status       `json:"status"`
	LastLoadID int64        `json:"last_load_id,omitempty"`
}

// Key returns the taxonomy's identifying pair.
func (t *Taxonomy) Key() TaxonomyKey {
	return TaxonomyKey{CustomerID: t.CustomerID, TaxonomyID: t.TaxonomyID}
}

// NodeType is an entry in the append-only node-type dictionary, keyed
// case-insensitively by name.
type NodeType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AttributeType is an entry in the append-only attribute-type dictionary.
type AttributeType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Node is a point in a taxonomy hierarchy.
//
// Natural key: (taxonomy, node type, customer, parent, lower(value)).
// Parent is part of the key so identical values under different parents
// are distinct nodes; the null-safe parent comparison lives in the
// storage layer.
type Node struct {
	ID         int64  `json:"id"`
	TypeID     int64  `json:"node_type_id"`
	TaxonomyID string `json:"taxonomy_id"`
	CustomerID string `json:"customer_id"`
	ParentID   *int64 `json:"parent_id,omitempty"`
	Value      string `json:"value"`
	Profession string `json:"profession,omitempty"` // informational, never a hierarchy level
	Level      int    `json:"level"`
	Status     Status `json:"status"`
	LoadID     int64  `json:"load_id"`
	RowID      int64  `json:"row_id,omitempty"`
}

// IsPlaceholder reports whether the node is a synthetic N/A gap filler.
func (n *Node) IsPlaceholder() bool { return n.TypeID == NAPlaceholderTypeID }

// NodeAttribute is a (node, attribute-type, value) fact.
// Natural key: (node, attribute type, lower(value)).
type NodeAttribute struct {
	ID     int64  `json:"id"`
	NodeID int64  `json:"node_id"`
	TypeID int64  `json:"attribute_type_id"`
	Value  string `json:"value"`
	Status Status `json:"status"`
	LoadID int64  `json:"load_id"`
	RowID  int64  `json:"row_id,omitempty"`
}

// AffectedNode is one entry in a taxonomy version's change manifest.
type AffectedNode struct {
	ID        int64  `json:"id"`
	Value     string `json:"value"`
	Type      string `json:"type"`
	NewStatus Status `json:"new_status"`
}

// AffectedAttribute is the attribute analog of AffectedNode.
type AffectedAttribute struct {
	ID        int64  `json:"id"`
	NodeID    int64  `json:"node_id"`
	Value     string `json:"value"`
	Type      string `json:"type"`
	NewStatus Status `json:"new_status"`
}

// VersionCounters are the per-version processing counters populated by
// the mapping engine when a remapping job runs.
type VersionCounters struct {
	Processed int `json:"processed"`
	New       int `json:"new"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// TaxonomyVersion is one link in a taxonomy's monotonic version chain.
// For each taxonomy at most one version is open (ToTS == nil);
// version numbers are dense and strictly increasing.
type TaxonomyVersion struct {
	ID                 int64               `json:"id"`
	CustomerID         string              `json:"customer_id"`
	TaxonomyID         string              `json:"taxonomy_id"`
	VersionNumber      int                 `json:"version_number"`
	ChangeType         string              `json:"change_type"`
	AffectedNodes      []AffectedNode      `json:"affected_nodes,omitempty"`
	AffectedAttributes []AffectedAttribute `json:"affected_attributes,omitempty"`
	Remapping          bool                `json:"remapping"`
	Counters           VersionCounters     `json:"counters"`
	ProcessStatus      string              `json:"process_status,omitempty"`
	FromTS             time.Time           `json:"from_ts"`
	ToTS               *time.Time          `json:"to_ts,omitempty"`
	LoadID             int64               `json:"load_id"`
}

// Mapping assigns a customer node to a Master node. For each child node
// at most one mapping is active.
type Mapping struct {
	ID           int64  `json:"id"`
	RuleID       int64  `json:"rule_id"`
	MasterNodeID int64  `json:"master_node_id"`
	ChildNodeID  int64  `json:"child_node_id"`
	Confidence   int    `json:"confidence"` // 0-100
	Status       Status `json:"status"`
	CreatedBy    string `json:"created_by,omitempty"`
}

// MappingVersion is one link in a mapping's version chain. On
// supersession the open version of the replaced mapping is closed and
// the replacement's first version continues the old chain's numbering.
type MappingVersion struct {
	ID            int64      `json:"id"`
	MappingID     int64      `json:"mapping_id"`
	VersionNumber int        `json:"version_number"`
	FromTS        time.Time  `json:"from_ts"`
	ToTS          *time.Time `json:"to_ts,omitempty"`
	SupersededBy  *int64     `json:"superseded_by,omitempty"` // replacement mapping id
	SupersededAt  *time.Time `json:"superseded_at,omitempty"`
}

// RuleCommand is the match operator a mapping rule executes.
type RuleCommand string

const (
	CommandEquals     RuleCommand = "equals"
	CommandContains   RuleCommand = "contains"
	CommandStartsWith RuleCommand = "startswith"
	CommandEndsWith   RuleCommand = "endswith"
	CommandRegex      RuleCommand = "regex"
)

// Valid reports whether c is a known rule command.
func (c RuleCommand) Valid() bool {
	switch c {
	case CommandEquals, CommandContains, CommandStartsWith, CommandEndsWith, CommandRegex:
		return true
	}
	return false
}

// MappingRule is a named match command. Pattern may be empty, in which
// case the child node's value is used as the literal.
type MappingRule struct {
	ID      int64       `json:"id"`
	Name    string      `json:"name"`
	Enabled bool        `json:"enabled"`
	Command RuleCommand `json:"command"`
	Pattern string      `json:"pattern,omitempty"`
	AIFlag  bool        `json:"ai_flag"`
	Human   bool        `json:"human_flag"`
}

// RuleAssignment binds a rule to a (master node type, child node type)
// pair with a priority. Lower priority number wins.
type RuleAssignment struct {
	ID           int64 `json:"id"`
	RuleID       int64 `json:"rule_id"`
	MasterTypeID int64 `json:"master_node_type_id"`
	ChildTypeID  int64 `json:"child_node_type_id"`
	Priority     int   `json:"priority"`
	Enabled      bool  `json:"enabled"`
}

// GoldMapping is the approved projection of an active, non-AI Silver
// mapping. Gold is a derived view, not a ledger.
type GoldMapping struct {
	MappingID    int64 `json:"mapping_id"`
	MasterNodeID int64 `json:"master_node_id"`
	ChildNodeID  int64 `json:"child_node_id"`
}

// TaxonomyKey identifies a taxonomy by its owning customer.
type TaxonomyKey struct {
	CustomerID string
	TaxonomyID string
}

func (k TaxonomyKey) String() string {
	return fmt.Sprintf("%s/%s", k.CustomerID, k.TaxonomyID)
}
