package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage/sqlite"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/version"
)

func newIngestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func docOf(pairs ...string) *types.Doc {
	d := types.NewDoc()
	for i := 0; i+1 < len(pairs); i += 2 {
		d.Set(pairs[i], pairs[i+1])
	}
	return d
}

func apiEvent(kind types.TaxonomyType, customer, taxonomy string, columns []string, rows ...*types.Doc) *types.IngestEvent {
	p := &types.IngestPayload{CustomerID: customer, TaxonomyID: taxonomy, TaxonomyName: "test taxonomy"}
	p.Layout.Columns = columns
	p.Rows = rows
	return &types.IngestEvent{Source: types.SourceAPI, TaxonomyType: kind, Payload: p}
}

var masterColumns = []string{
	"Group (node 1)",
	"Specialty (node 2)",
	"Broad Occupation (profession)",
	"Code",
}

func masterRow(group, specialty, profession, code string) *types.Doc {
	return docOf(
		"Group (node 1)", group,
		"Specialty (node 2)", specialty,
		"Broad Occupation (profession)", profession,
		"Code", code,
	)
}

func nodeByValue(t *testing.T, nodes []*types.Node, value string) *types.Node {
	t.Helper()
	for _, n := range nodes {
		if n.Value == value {
			return n
		}
	}
	t.Fatalf("node %q not found in %d nodes", value, len(nodes))
	return nil
}

func countAttributes(t *testing.T, s *sqlite.Store, nodeID int64) int {
	t.Helper()
	var n int
	err := s.UnderlyingDB().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM node_attributes WHERE node_id = ? AND status = 'active'`, nodeID).Scan(&n)
	if err != nil {
		t.Fatalf("count attributes: %v", err)
	}
	return n
}

func TestIngestMasterInitialLoad(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	c := NewCoordinator(s, Options{})

	resp, err := c.Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", masterColumns,
		masterRow("Nursing", "Registered Nurse", "Registered Nurses", "29-1141"),
	))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !resp.OK || resp.LoadType != types.LoadNew || resp.RowsProcessed != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.NodeIDs) != 0 {
		t.Errorf("master load reported node ids: %v", resp.NodeIDs)
	}

	key := types.TaxonomyKey{CustomerID: "1", TaxonomyID: "1"}
	nodes, err := s.ListActiveNodes(ctx, key)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	group := nodeByValue(t, nodes, "Nursing")
	if group.Level != 1 || group.ParentID != nil {
		t.Errorf("group = %+v", group)
	}
	specialty := nodeByValue(t, nodes, "Registered Nurse")
	if specialty.Level != 2 || specialty.ParentID == nil || *specialty.ParentID != group.ID {
		t.Errorf("specialty = %+v", specialty)
	}
	// Profession lands on the row's deepest node only.
	if specialty.Profession != "Registered Nurses" || group.Profession != "" {
		t.Errorf("profession: group=%q specialty=%q", group.Profession, specialty.Profession)
	}

	// Declared attributes attach to the last created node: Code plus the
	// profession column doubling as an attribute.
	if n := countAttributes(t, s, specialty.ID); n != 2 {
		t.Errorf("specialty has %d attributes, want 2", n)
	}

	versions, err := s.ListTaxonomyVersions(ctx, key)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("got %d versions, want 1", len(versions))
	}
	if versions[0].VersionNumber != 1 || versions[0].ChangeType != version.ChangeInitialLoad || versions[0].ToTS != nil {
		t.Errorf("version = %+v", versions[0])
	}

	load, err := s.GetLoad(ctx, resp.LoadID)
	if err != nil {
		t.Fatalf("get load: %v", err)
	}
	if load.Status != types.LoadCompleted || load.EndedAt == nil || load.RowCount != 1 {
		t.Errorf("load = %+v", load)
	}
	if load.LoadType != types.LoadNew || load.Type != types.TaxonomyMaster {
		t.Errorf("load typing = %+v", load)
	}
}

func TestIngestGapFilling(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	c := NewCoordinator(s, Options{})

	columns := []string{"Group (node 1)", "Detail (node 4)", "Occupation (profession)"}
	row := docOf(
		"Group (node 1)", "N/A",
		"Detail (node 4)", "Dialysis Technician",
		"Occupation (profession)", "Technicians",
	)
	ev := apiEvent(types.TaxonomyMaster, "1", "1", columns, row)

	if _, err := c.Ingest(ctx, ev); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	key := types.TaxonomyKey{CustomerID: "1", TaxonomyID: "1"}
	nodes, err := s.ListActiveNodes(ctx, key)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	// Placeholders at 1..3, real node at 4.
	if len(nodes) != 4 {
		t.Fatalf("got %d nodes, want 4", len(nodes))
	}
	byLevel := make(map[int]*types.Node)
	for _, n := range nodes {
		byLevel[n.Level] = n
	}
	for level := 1; level <= 3; level++ {
		n := byLevel[level]
		if n == nil || !n.IsPlaceholder() || n.Value != types.NAPlaceholderValue {
			t.Fatalf("level %d: %+v", level, n)
		}
		if level == 1 {
			if n.ParentID != nil {
				t.Errorf("chain top has parent %v", *n.ParentID)
			}
		} else if n.ParentID == nil || *n.ParentID != byLevel[level-1].ID {
			t.Errorf("level %d parent = %v", level, n.ParentID)
		}
	}
	leaf := byLevel[4]
	if leaf == nil || leaf.IsPlaceholder() || leaf.Value != "Dialysis Technician" {
		t.Fatalf("leaf = %+v", leaf)
	}
	if leaf.ParentID == nil || *leaf.ParentID != byLevel[3].ID {
		t.Errorf("leaf parent = %v", leaf.ParentID)
	}

	// Reloading reuses the placeholder chain instead of growing a second one.
	if _, err := c.Ingest(ctx, ev); err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	nodes, err = s.ListActiveNodes(ctx, key)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 4 {
		t.Errorf("after reload: %d nodes, want 4", len(nodes))
	}
}

func TestIngestUpdateRestoresPlaceholderChain(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	c := NewCoordinator(s, Options{})
	key := types.TaxonomyKey{CustomerID: "1", TaxonomyID: "1"}

	columns := []string{"Group (node 1)", "Detail (node 4)", "Occupation (profession)"}
	full := docOf(
		"Group (node 1)", "Imaging",
		"Detail (node 4)", "MRI Technologist",
		"Occupation (profession)", "Technologists",
	)
	topOnly := docOf(
		"Group (node 1)", "Imaging",
		"Occupation (profession)", "Technologists",
	)

	if _, err := c.Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", columns, full)); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	// The update keeps only the group; reconciliation deactivates the
	// leaf and the placeholder chain bridging levels 2-3.
	if _, err := c.Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", columns, topOnly)); err != nil {
		t.Fatalf("pruning load: %v", err)
	}
	nodes, err := s.ListActiveNodes(ctx, key)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Value != "Imaging" {
		t.Fatalf("after prune: %+v, want Imaging only", nodes)
	}

	// Re-adding the full row must bring the whole chain back: the leaf
	// and both placeholders, not an active leaf on inactive ancestors.
	if _, err := c.Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", columns, full)); err != nil {
		t.Fatalf("restoring load: %v", err)
	}
	nodes, err = s.ListActiveNodes(ctx, key)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 4 {
		t.Fatalf("after restore: %d active nodes, want 4", len(nodes))
	}
	byLevel := make(map[int]*types.Node)
	for _, n := range nodes {
		byLevel[n.Level] = n
	}
	for level := 2; level <= 3; level++ {
		n := byLevel[level]
		if n == nil || !n.IsPlaceholder() {
			t.Fatalf("level %d: %+v, want active placeholder", level, n)
		}
	}
	leaf := byLevel[4]
	if leaf == nil || leaf.Value != "MRI Technologist" {
		t.Fatalf("leaf = %+v", leaf)
	}
	if leaf.ParentID == nil || *leaf.ParentID != byLevel[3].ID {
		t.Errorf("leaf parent = %v", leaf.ParentID)
	}
	if byLevel[2].ParentID == nil || *byLevel[2].ParentID != byLevel[1].ID {
		t.Errorf("chain detached from group: %v", byLevel[2].ParentID)
	}
}

func TestIngestSiblingSplit(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	c := NewCoordinator(s, Options{})

	resp, err := c.Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", masterColumns,
		masterRow("Nursing", "Registered Nurse; Nurse Practitioner", "Nurses", "29-1141"),
	))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if resp.RowsProcessed != 1 {
		t.Errorf("rows processed = %d", resp.RowsProcessed)
	}

	key := types.TaxonomyKey{CustomerID: "1", TaxonomyID: "1"}
	nodes, err := s.ListActiveNodes(ctx, key)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(nodes))
	}
	group := nodeByValue(t, nodes, "Nursing")
	for _, value := range []string{"Registered Nurse", "Nurse Practitioner"} {
		n := nodeByValue(t, nodes, value)
		if n.ParentID == nil || *n.ParentID != group.ID {
			t.Errorf("%s parent = %v", value, n.ParentID)
		}
		if n.Profession != "Nurses" {
			t.Errorf("%s profession = %q", value, n.Profession)
		}
	}

	// Attributes land on the last created sibling.
	if n := countAttributes(t, s, nodeByValue(t, nodes, "Nurse Practitioner").ID); n != 2 {
		t.Errorf("last sibling has %d attributes, want 2", n)
	}
	if n := countAttributes(t, s, nodeByValue(t, nodes, "Registered Nurse").ID); n != 0 {
		t.Errorf("first sibling has %d attributes, want 0", n)
	}
}

func TestIngestRollingAncestorAcrossRows(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	c := NewCoordinator(s, Options{})

	_, err := c.Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", masterColumns,
		masterRow("Nursing", "Registered Nurse", "Nurses", ""),
		// Continuation row: group cell blank, inherits Nursing.
		masterRow("", "Nurse Midwife", "Nurses", ""),
		// New branch resets the deeper memory.
		masterRow("Therapy", "Physical Therapist", "Therapists", ""),
	))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	nodes, err := s.ListActiveNodes(ctx, types.TaxonomyKey{CustomerID: "1", TaxonomyID: "1"})
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	nursing := nodeByValue(t, nodes, "Nursing")
	therapy := nodeByValue(t, nodes, "Therapy")

	midwife := nodeByValue(t, nodes, "Nurse Midwife")
	if midwife.ParentID == nil || *midwife.ParentID != nursing.ID {
		t.Errorf("midwife parent = %v, want Nursing %d", midwife.ParentID, nursing.ID)
	}
	pt := nodeByValue(t, nodes, "Physical Therapist")
	if pt.ParentID == nil || *pt.ParentID != therapy.ID {
		t.Errorf("therapist parent = %v, want Therapy %d", pt.ParentID, therapy.ID)
	}
}

func TestIngestCustomerLoad(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	c := NewCoordinator(s, Options{})

	columns := []string{"Profession (profession)", "State", "Years Experience", "Department"}
	ev := apiEvent(types.TaxonomyCustomer, "3", "7", columns,
		docOf(
			"Profession (profession)", "Licensed Clinical Social Worker",
			"State", "CA",
			"Years Experience", "5",
			"Department", "Mental Health",
		),
		docOf("Profession (profession)", "N/A", "State", "TX"), // skipped, no profession
	)

	resp, err := c.Ingest(ctx, ev)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !resp.OK || resp.TaxonomyType != types.TaxonomyCustomer {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.NodeIDs) != 1 {
		t.Fatalf("node ids = %v, want one", resp.NodeIDs)
	}

	nodes, err := s.ListActiveNodes(ctx, types.TaxonomyKey{CustomerID: "3", TaxonomyID: "7"})
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(nodes))
	}
	n := nodes[0]
	if n.ID != resp.NodeIDs[0] || n.Level != 1 || n.ParentID != nil {
		t.Errorf("node = %+v", n)
	}
	if n.Value != "Licensed Clinical Social Worker" || n.Profession != n.Value {
		t.Errorf("node values = %+v", n)
	}
	// Dynamic attributes: every non-empty cell except the profession column.
	if got := countAttributes(t, s, n.ID); got != 3 {
		t.Errorf("got %d attributes, want 3", got)
	}
}

func TestIngestCustomerReloadIsNeutral(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	c := NewCoordinator(s, Options{})

	columns := []string{"Profession (profession)", "State"}
	ev := apiEvent(types.TaxonomyCustomer, "3", "7", columns,
		docOf("Profession (profession)", "Registered Nurse", "State", "CA"),
	)

	first, err := c.Ingest(ctx, ev)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := c.Ingest(ctx, ev)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.LoadType != types.LoadUpdated {
		t.Errorf("second load type = %s", second.LoadType)
	}
	if len(first.NodeIDs) != 1 || len(second.NodeIDs) != 1 || first.NodeIDs[0] != second.NodeIDs[0] {
		t.Errorf("node ids: first %v, second %v, want same single id", first.NodeIDs, second.NodeIDs)
	}

	nodes, err := s.ListActiveNodes(ctx, types.TaxonomyKey{CustomerID: "3", TaxonomyID: "7"})
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Errorf("after reload: %d nodes, want 1", len(nodes))
	}
}

func TestIngestMasterUpdateReconciles(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	c := NewCoordinator(s, Options{})
	key := types.TaxonomyKey{CustomerID: "1", TaxonomyID: "1"}

	_, err := c.Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", masterColumns,
		masterRow("Nursing", "Registered Nurse", "Nurses", ""),
		masterRow("Therapy", "Physical Therapist", "Therapists", ""),
	))
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}

	// The update drops the Therapy branch.
	resp, err := c.Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", masterColumns,
		masterRow("Nursing", "Registered Nurse", "Nurses", ""),
	))
	if err != nil {
		t.Fatalf("update load: %v", err)
	}
	if resp.LoadType != types.LoadUpdated {
		t.Errorf("load type = %s", resp.LoadType)
	}

	nodes, err := s.ListActiveNodes(ctx, key)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d active nodes, want 2", len(nodes))
	}
	for _, n := range nodes {
		if n.Value == "Therapy" || n.Value == "Physical Therapist" {
			t.Errorf("node %q still active", n.Value)
		}
	}

	versions, err := s.ListTaxonomyVersions(ctx, key)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(versions))
	}
	if versions[0].ToTS == nil {
		t.Error("version 1 still open")
	}
	v2 := versions[1]
	if v2.VersionNumber != 2 || v2.ChangeType != version.ChangeUpdated || v2.ToTS != nil {
		t.Errorf("version 2 = %+v", v2)
	}
	if len(v2.AffectedNodes) != 2 {
		t.Fatalf("affected nodes = %+v, want Therapy branch", v2.AffectedNodes)
	}
	for _, a := range v2.AffectedNodes {
		if a.NewStatus != types.StatusInactive {
			t.Errorf("affected node %+v", a)
		}
	}
}

func TestIngestRowFailureContinue(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	// MaxDepth 1 makes every level-2 row fail.
	c := NewCoordinator(s, Options{MaxDepth: 1})

	resp, err := c.Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", masterColumns,
		masterRow("Nursing", "", "Nurses", ""),
		masterRow("Therapy", "Physical Therapist", "Therapists", ""),
	))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !resp.OK || resp.RowsProcessed != 1 || len(resp.Errors) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(resp.Errors[0], "level 2") {
		t.Errorf("error = %q", resp.Errors[0])
	}

	load, err := s.GetLoad(ctx, resp.LoadID)
	if err != nil {
		t.Fatalf("get load: %v", err)
	}
	if load.Status != types.LoadPartiallyCompleted {
		t.Errorf("status = %s", load.Status)
	}

	rows, err := s.ListRawRows(ctx, resp.LoadID)
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d raw rows", len(rows))
	}
	statuses := map[types.RowStatus]int{}
	for _, r := range rows {
		statuses[r.Status]++
	}
	if statuses[types.RowCompleted] != 1 || statuses[types.RowFailed] != 1 {
		t.Errorf("row statuses = %v", statuses)
	}
}

func TestIngestRowFailureAbort(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	c := NewCoordinator(s, Options{MaxDepth: 1, RowFailurePolicy: PolicyAbort})

	_, err := c.Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", masterColumns,
		masterRow("Therapy", "Physical Therapist", "Therapists", ""),
	))
	if !errors.Is(err, ErrNAChainInvalid) {
		t.Fatalf("err = %v, want depth violation", err)
	}

	loads, err := s.ListLoads(ctx, 10)
	if err != nil {
		t.Fatalf("list loads: %v", err)
	}
	if len(loads) != 1 {
		t.Fatalf("got %d loads", len(loads))
	}
	load := loads[0]
	if load.Status != types.LoadFailed || load.EndedAt == nil {
		t.Errorf("load = %+v", load)
	}
	if msg := types.DocString(load.Details, "Error"); msg == "" {
		t.Error("failed load carries no error detail")
	}

	// The aborted transaction rolled back; no Silver rows survive.
	nodes, err := s.ListActiveNodes(ctx, types.TaxonomyKey{CustomerID: "1", TaxonomyID: "1"})
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 0 {
		t.Errorf("rollback left %d nodes", len(nodes))
	}
}

func TestIngestAllRowsFailedKeepsHierarchy(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	key := types.TaxonomyKey{CustomerID: "1", TaxonomyID: "1"}

	if _, err := NewCoordinator(s, Options{}).Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", masterColumns,
		masterRow("Nursing", "Registered Nurse", "Nurses", ""),
	)); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	// Every row of the update fails. With nothing staged, running
	// reconciliation would deactivate the whole hierarchy.
	shallow := NewCoordinator(s, Options{MaxDepth: 1})
	resp, err := shallow.Ingest(ctx, apiEvent(types.TaxonomyMaster, "1", "1", masterColumns,
		masterRow("Therapy", "Physical Therapist", "Therapists", ""),
	))
	if err != nil {
		t.Fatalf("update load: %v", err)
	}
	if resp.OK || resp.RowsProcessed != 0 {
		t.Errorf("resp = %+v", resp)
	}

	load, err := s.GetLoad(ctx, resp.LoadID)
	if err != nil {
		t.Fatalf("get load: %v", err)
	}
	if load.Status != types.LoadFailed {
		t.Errorf("status = %s", load.Status)
	}

	nodes, err := s.ListActiveNodes(ctx, key)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	want := map[string]bool{"Nursing": true, "Registered Nurse": true, "Therapy": true}
	for _, n := range nodes {
		if !want[n.Value] {
			t.Errorf("unexpected active node %q", n.Value)
		}
	}
	if len(nodes) != 3 {
		t.Errorf("got %d active nodes, want the original pair plus the partial row", len(nodes))
	}
}

func TestIngestInvalidLayoutFailsLoad(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()
	c := NewCoordinator(s, Options{})

	ev := apiEvent(types.TaxonomyMaster, "1", "1",
		[]string{"Group (node 1)", "Code"}, // no profession column
		docOf("Group (node 1)", "Nursing"),
	)
	_, err := c.Ingest(ctx, ev)
	if !errors.Is(err, ErrLayoutInvalid) {
		t.Fatalf("err = %v, want ErrLayoutInvalid", err)
	}

	loads, err := s.ListLoads(ctx, 10)
	if err != nil {
		t.Fatalf("list loads: %v", err)
	}
	if len(loads) != 1 || loads[0].Status != types.LoadFailed {
		t.Fatalf("loads = %+v, want one failed", loads)
	}
}
