package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// transformer turns Bronze rows into Silver hierarchy facts within one
// load's transaction. It is stateful across rows: the ancestor
// resolver carries spreadsheet context from earlier rows, and customer
// loads accumulate the node ids they touched for the downstream
// mapping job.
type transformer struct {
	tx            storage.Tx
	key           types.TaxonomyKey
	loadID        int64
	mode          types.LoadType
	layout        *types.Layout
	dict          *dictCache
	gaps          *gapFiller
	ancestors     *ancestorResolver
	staging       bool // master updated loads stage for reconciliation
	customerLevel int

	nodeIDs []int64
}

func newTransformer(tx storage.Tx, key types.TaxonomyKey, loadID int64, mode types.LoadType,
	layout *types.Layout, maxDepth, customerLevel int, staging bool) *transformer {
	return &transformer{
		tx:            tx,
		key:           key,
		loadID:        loadID,
		mode:          mode,
		layout:        layout,
		dict:          newDictCache(loadID),
		gaps:          &gapFiller{maxDepth: maxDepth},
		ancestors:     newAncestorResolver(),
		staging:       staging,
		customerLevel: customerLevel,
	}
}

func (t *transformer) processRow(ctx context.Context, rowID int64, doc *types.Doc) error {
	if t.layout.Kind == types.TaxonomyCustomer {
		return t.processCustomerRow(ctx, rowID, doc)
	}
	return t.processMasterRow(ctx, rowID, doc)
}

// processMasterRow materializes every non-empty declared hierarchy
// level of the row, ascending, chaining each level under the previous
// one. Profession lands on the row's deepest created nodes; declared
// attributes land on the last node created.
func (t *transformer) processMasterRow(ctx context.Context, rowID int64, doc *types.Doc) error {
	rowHasValue := func(level int) bool {
		nl, ok := t.layout.LevelFor(level)
		return ok && !isNA(types.DocString(doc, nl.Column))
	}

	deepest := -1
	for _, nl := range t.layout.NodeLevels {
		if !isNA(types.DocString(doc, nl.Column)) {
			deepest = nl.Level
		}
	}

	profession := strings.TrimSpace(types.DocString(doc, t.layout.ProfessionColumn.Column))
	var lastCreated int64
	created := false

	for _, nl := range t.layout.NodeLevels {
		cell := types.DocString(doc, nl.Column)
		if isNA(cell) {
			continue
		}
		typeID, err := t.dict.nodeType(ctx, t.tx, nl.Name)
		if err != nil {
			return err
		}

		var semParent *int64
		semID, semLevel, ok := t.ancestors.resolve(nl.Level, rowHasValue)
		if ok {
			semParent = &semID
		}
		parentID, err := t.gaps.parentFor(ctx, t.tx, t.key, t.loadID, rowID, nl.Level, semParent, semLevel, t.mode, t.staging)
		if err != nil {
			return fmt.Errorf("level %d (%s): %w", nl.Level, nl.Name, err)
		}

		prof := ""
		if nl.Level == deepest {
			prof = profession
		}

		var lastID int64
		for _, value := range splitSiblings(cell) {
			id, err := t.tx.UpsertNode(ctx, &types.Node{
				TypeID:     typeID,
				TaxonomyID: t.key.TaxonomyID,
				CustomerID: t.key.CustomerID,
				ParentID:   parentID,
				Value:      value,
				Profession: prof,
				Level:      nl.Level,
				Status:     types.StatusActive,
				LoadID:     t.loadID,
				RowID:      rowID,
			}, t.mode)
			if err != nil {
				return fmt.Errorf("node %q at level %d: %w", value, nl.Level, err)
			}
			if t.staging {
				if err := t.tx.StageNode(ctx, t.key, typeID, value); err != nil {
					return err
				}
			}
			lastID = id
		}
		t.ancestors.remember(nl.Level, lastID)
		lastCreated = lastID
		created = true
	}

	if !created {
		// Row carried no hierarchy values; nothing to attach facts to.
		return nil
	}
	return t.writeAttributes(ctx, rowID, lastCreated, doc)
}

func (t *transformer) writeAttributes(ctx context.Context, rowID, nodeID int64, doc *types.Doc) error {
	for _, attr := range t.layout.Attributes {
		value := strings.TrimSpace(types.DocString(doc, attr.Column))
		if isNA(value) {
			continue
		}
		typeID, err := t.dict.attributeType(ctx, t.tx, attr.Name)
		if err != nil {
			return err
		}
		if _, err := t.tx.UpsertNodeAttribute(ctx, &types.NodeAttribute{
			NodeID: nodeID,
			TypeID: typeID,
			Value:  value,
			Status: types.StatusActive,
			LoadID: t.loadID,
			RowID:  rowID,
		}, t.mode); err != nil {
			return fmt.Errorf("attribute %q: %w", attr.Name, err)
		}
		if t.staging {
			if err := t.tx.StageAttribute(ctx, nodeID, typeID, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// processCustomerRow materializes one profession node hanging off the
// root, plus every other non-empty cell as a dynamic attribute fact
// keyed by its column header.
func (t *transformer) processCustomerRow(ctx context.Context, rowID int64, doc *types.Doc) error {
	profession := strings.TrimSpace(types.DocString(doc, t.layout.ProfessionColumn.Column))
	if isNA(profession) {
		return nil
	}
	typeID, err := t.dict.nodeType(ctx, t.tx, t.layout.ProfessionColumn.Name)
	if err != nil {
		return err
	}
	nodeID, err := t.tx.UpsertNode(ctx, &types.Node{
		TypeID:     typeID,
		TaxonomyID: t.key.TaxonomyID,
		CustomerID: t.key.CustomerID,
		Value:      profession,
		Profession: profession,
		Level:      t.customerLevel,
		Status:     types.StatusActive,
		LoadID:     t.loadID,
		RowID:      rowID,
	}, t.mode)
	if err != nil {
		return fmt.Errorf("profession node %q: %w", profession, err)
	}
	t.nodeIDs = append(t.nodeIDs, nodeID)

	for _, column := range types.DocKeys(doc) {
		if column == t.layout.ProfessionColumn.Column {
			continue
		}
		value := strings.TrimSpace(types.DocString(doc, column))
		if isNA(value) {
			continue
		}
		attrTypeID, err := t.dict.attributeType(ctx, t.tx, column)
		if err != nil {
			return err
		}
		if _, err := t.tx.UpsertNodeAttribute(ctx, &types.NodeAttribute{
			NodeID: nodeID,
			TypeID: attrTypeID,
			Value:  value,
			Status: types.StatusActive,
			LoadID: t.loadID,
			RowID:  rowID,
		}, t.mode); err != nil {
			return fmt.Errorf("attribute %q: %w", column, err)
		}
	}
	return nil
}

// splitSiblings splits a multi-value cell on ';' into trimmed sibling
// values, dropping empties and placeholders.
func splitSiblings(cell string) []string {
	parts := strings.Split(cell, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || isNA(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}
