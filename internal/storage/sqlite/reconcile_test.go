package sqlite

import (
	"context"
	"testing"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

func TestReconcileNodesSoftDeletesAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inTx(t, s, func(tx storage.Tx) error {
		typeID, err := tx.EnsureNodeType(ctx, "Occupation", 1)
		if err != nil {
			return err
		}
		seedNode(t, tx, testKey, typeID, "Registered Nurse", 3, nil)
		seedNode(t, tx, testKey, typeID, "Midwife", 3, nil)
		seedNode(t, tx, testKey, typeID, "Pharmacist", 3, nil)
		return nil
	})

	inTx(t, s, func(tx storage.Tx) error {
		typeID, err := tx.GetNodeTypeID(ctx, "Occupation")
		if err != nil {
			return err
		}
		if err := tx.CreateStaging(ctx); err != nil {
			return err
		}
		// The reload carried only two of the three, case shifted.
		if err := tx.StageNode(ctx, testKey, typeID, "REGISTERED NURSE"); err != nil {
			return err
		}
		if err := tx.StageNode(ctx, testKey, typeID, "Pharmacist"); err != nil {
			return err
		}

		n, err := tx.ReconcileNodes(ctx, testKey, 2)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("deactivated %d nodes, want 1", n)
		}

		affected, err := tx.ListDeactivatedNodes(ctx, testKey, 2)
		if err != nil {
			return err
		}
		if len(affected) != 1 || affected[0].Value != "Midwife" || affected[0].Type != "Occupation" {
			t.Errorf("affected = %+v", affected)
		}
		if affected[0].NewStatus != types.StatusInactive {
			t.Errorf("new status = %s", affected[0].NewStatus)
		}
		return nil
	})

	nodes, err := s.ListActiveNodes(ctx, testKey)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("got %d active nodes, want 2", len(nodes))
	}
}

func TestReconcileAttributes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var nodeID, attrState, attrCode int64
	inTx(t, s, func(tx storage.Tx) error {
		typeID, err := tx.EnsureNodeType(ctx, "Occupation", 1)
		if err != nil {
			return err
		}
		if attrState, err = tx.EnsureAttributeType(ctx, "State", 1); err != nil {
			return err
		}
		if attrCode, err = tx.EnsureAttributeType(ctx, "Code", 1); err != nil {
			return err
		}
		nodeID = seedNode(t, tx, testKey, typeID, "Registered Nurse", 3, nil)
		for _, a := range []struct {
			typ   int64
			value string
		}{{attrState, "CA"}, {attrCode, "29-1141"}} {
			if _, err := tx.UpsertNodeAttribute(ctx, &types.NodeAttribute{
				NodeID: nodeID, TypeID: a.typ, Value: a.value, Status: types.StatusActive, LoadID: 1,
			}, types.LoadNew); err != nil {
				return err
			}
		}
		return nil
	})

	inTx(t, s, func(tx storage.Tx) error {
		if err := tx.CreateStaging(ctx); err != nil {
			return err
		}
		if err := tx.StageNode(ctx, testKey, 1, "Registered Nurse"); err != nil {
			return err
		}
		if err := tx.StageAttribute(ctx, nodeID, attrState, "CA"); err != nil {
			return err
		}

		n, err := tx.ReconcileAttributes(ctx, testKey, 2)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("deactivated %d attributes, want 1", n)
		}
		affected, err := tx.ListDeactivatedAttributes(ctx, testKey, 2)
		if err != nil {
			return err
		}
		if len(affected) != 1 || affected[0].Value != "29-1141" || affected[0].Type != "Code" {
			t.Errorf("affected = %+v", affected)
		}
		return nil
	})
}

func TestCreateStagingResetsBetweenLoads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inTx(t, s, func(tx storage.Tx) error {
		typeID, err := tx.EnsureNodeType(ctx, "Occupation", 1)
		if err != nil {
			return err
		}
		seedNode(t, tx, testKey, typeID, "Registered Nurse", 3, nil)
		if err := tx.CreateStaging(ctx); err != nil {
			return err
		}
		return tx.StageNode(ctx, testKey, typeID, "Registered Nurse")
	})

	// A later transaction may land on the same pooled connection; its
	// staging set must start empty, or stale entries would shield nodes
	// from reconciliation.
	inTx(t, s, func(tx storage.Tx) error {
		if err := tx.CreateStaging(ctx); err != nil {
			return err
		}
		n, err := tx.ReconcileNodes(ctx, testKey, 3)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("deactivated %d nodes, want 1 (stale staging rows leaked)", n)
		}
		return nil
	})
}
