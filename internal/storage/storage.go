// Package storage provides shared types for taxonomy storage.
//
// The concrete implementation lives in the sqlite sub-package. This
// package holds the interfaces and sentinel errors referenced by both
// the sqlite implementation and its consumers (internal/ingest,
// internal/mapping, internal/vocab, cmd/taxo).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoMasterTaxonomy is returned when no active Master taxonomy exists
// to map against.
var ErrNoMasterTaxonomy = errors.New("no active master taxonomy")

// ErrInvariant is returned when a structural invariant is violated
// (open-version count, dictionary insert yielding no id, self-parent).
// It always aborts the enclosing transaction.
var ErrInvariant = errors.New("invariant violation")

// AssignedRule is a rule assignment joined with its rule row, as
// consumed by the mapping engine's priority-ordered evaluation.
type AssignedRule struct {
	Assignment types.RuleAssignment
	Rule       types.MappingRule
}

// Store is the interface satisfied by *sqlite.Store.
//
// Methods on Store run on the shared pool, outside any pipeline
// transaction. MarkLoadFailed in particular must work after the load's
// transaction has rolled back.
type Store interface {
	// Load headers (Bronze)
	CreateLoad(ctx context.Context, typ types.TaxonomyType, details *types.Doc) (int64, error)
	GetLoad(ctx context.Context, id int64) (*types.Load, error)
	ListLoads(ctx context.Context, limit int) ([]*types.Load, error)
	ListRawRows(ctx context.Context, loadID int64) ([]*types.RawRow, error)
	// MarkLoadFailed is the best-effort out-of-transaction failure path:
	// sets status=failed, end timestamp, and appends {"Error": msg} to
	// the load's provenance document.
	MarkLoadFailed(ctx context.Context, id int64, msg string)

	// Taxonomies
	GetTaxonomy(ctx context.Context, key types.TaxonomyKey) (*types.Taxonomy, error)
	ListTaxonomies(ctx context.Context) ([]*types.Taxonomy, error)
	ActiveMasterTaxonomy(ctx context.Context) (*types.Taxonomy, error)

	// Nodes (read-only surface for vocab and translation)
	GetNode(ctx context.Context, id int64) (*types.Node, error)
	ListActiveNodes(ctx context.Context, key types.TaxonomyKey) ([]*types.Node, error)
	FindActiveNodeByValue(ctx context.Context, key types.TaxonomyKey, value string) (*types.Node, error)
	GetActiveMapping(ctx context.Context, childNodeID int64) (*types.Mapping, error)
	ListActiveChildrenOfMaster(ctx context.Context, key types.TaxonomyKey, masterNodeID int64) ([]*types.Node, error)

	// Rule administration
	CreateRule(ctx context.Context, rule *types.MappingRule) (int64, error)
	ListRules(ctx context.Context) ([]*types.MappingRule, error)
	SetRuleEnabled(ctx context.Context, id int64, enabled bool) error
	AssignRule(ctx context.Context, a *types.RuleAssignment) (int64, error)
	ListAllAssignments(ctx context.Context) ([]*types.RuleAssignment, error)

	// Versions and Gold (read-only inspection)
	ListTaxonomyVersions(ctx context.Context, key types.TaxonomyKey) ([]*types.TaxonomyVersion, error)
	ListGoldMappings(ctx context.Context) ([]types.GoldMapping, error)

	// RunInTransaction executes fn inside a single database transaction
	// on a dedicated connection. On error or panic the transaction is
	// rolled back; on nil return it is committed.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the transactional surface used by the ingestion and mapping
// pipelines. All methods run on the transaction's dedicated connection;
// temp staging tables created through Tx are session-scoped.
type Tx interface {
	// Load header, inside the pipeline transaction
	UpdateLoadHeader(ctx context.Context, load *types.Load) error
	FinalizeLoad(ctx context.Context, id int64, status types.LoadStatus, endedAt time.Time) error

	// Taxonomy header
	GetTaxonomy(ctx context.Context, key types.TaxonomyKey) (*types.Taxonomy, error)
	UpsertTaxonomy(ctx context.Context, t *types.Taxonomy) error
	ActiveMasterTaxonomy(ctx context.Context) (*types.Taxonomy, error)

	// Bronze rows
	InsertRawRow(ctx context.Context, row *types.RawRow) (int64, error)
	SetRawRowStatus(ctx context.Context, id int64, status types.RowStatus) error

	// Append-only dictionaries
	EnsureNodeType(ctx context.Context, name string, loadID int64) (int64, error)
	EnsureAttributeType(ctx context.Context, name string, loadID int64) (int64, error)
	GetNodeTypeID(ctx context.Context, name string) (int64, error)

	// Silver hierarchy
	UpsertNode(ctx context.Context, node *types.Node, mode types.LoadType) (int64, error)
	UpsertNodeAttribute(ctx context.Context, attr *types.NodeAttribute, mode types.LoadType) (int64, error)
	FindActivePlaceholder(ctx context.Context, key types.TaxonomyKey, level int, parentID *int64) (int64, error)

	// Reconciliation staging (session-scoped temp tables)
	CreateStaging(ctx context.Context) error
	StageNode(ctx context.Context, key types.TaxonomyKey, nodeTypeID int64, value string) error
	StageAttribute(ctx context.Context, nodeID, attrTypeID int64, value string) error
	ReconcileNodes(ctx context.Context, key types.TaxonomyKey, loadID int64) (int64, error)
	ReconcileAttributes(ctx context.Context, key types.TaxonomyKey, loadID int64) (int64, error)
	ListDeactivatedNodes(ctx context.Context, key types.TaxonomyKey, loadID int64) ([]types.AffectedNode, error)
	ListDeactivatedAttributes(ctx context.Context, key types.TaxonomyKey, loadID int64) ([]types.AffectedAttribute, error)

	// Taxonomy version chain
	NextVersionNumber(ctx context.Context, key types.TaxonomyKey) (int, error)
	CloseOpenTaxonomyVersion(ctx context.Context, key types.TaxonomyKey, at time.Time) error
	InsertTaxonomyVersion(ctx context.Context, v *types.TaxonomyVersion) (int64, error)
	GetVersionByLoad(ctx context.Context, key types.TaxonomyKey, loadID int64) (*types.TaxonomyVersion, error)
	UpdateVersionCounters(ctx context.Context, versionID int64, c types.VersionCounters, processStatus string) error

	// Mapping evaluation
	ListActiveNodesAtLevel(ctx context.Context, key types.TaxonomyKey, level int, ids []int64) ([]*types.Node, error)
	ListAssignedRules(ctx context.Context, childTypeID int64) ([]AssignedRule, error)
	FindMasterMatch(ctx context.Context, masterKey types.TaxonomyKey, masterTypeID int64, cmd types.RuleCommand, pattern, childValue string) (*types.Node, error)

	// Mapping state
	GetActiveMapping(ctx context.Context, childNodeID int64) (*types.Mapping, error)
	InsertMapping(ctx context.Context, m *types.Mapping) (int64, error)
	SetMappingStatus(ctx context.Context, id int64, status types.Status) error

	// Mapping version chain
	MaxMappingVersion(ctx context.Context, mappingID int64) (int, error)
	CloseOpenMappingVersion(ctx context.Context, mappingID int64, at time.Time, supersededBy *int64) error
	InsertMappingVersion(ctx context.Context, v *types.MappingVersion) (int64, error)

	// Gold projection
	SyncGold(ctx context.Context) (inserted, deleted int64, err error)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
