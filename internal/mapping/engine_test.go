package mapping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ingest"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage/sqlite"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

var customerKey = types.TaxonomyKey{CustomerID: "3", TaxonomyID: "7"}

// setupTaxonomies loads a small Master hierarchy plus one customer
// taxonomy carrying the given professions, and returns the customer
// load's ingest response for building map requests.
func setupTaxonomies(t *testing.T, professions ...string) (*sqlite.Store, *types.IngestResponse) {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := ingest.NewCoordinator(s, ingest.Options{})
	_, err = c.Ingest(ctx, masterEvent())
	require.NoError(t, err, "master load")
	resp, err := c.Ingest(ctx, customerEvent(customerKey, professions...))
	require.NoError(t, err, "customer load")
	return s, resp
}

func masterEvent() *types.IngestEvent {
	columns := []string{"Group (node 1)", "Occupation (node 2)", "Broad Occupation (profession)"}
	row := func(group, occupation, profession string) *types.Doc {
		d := types.NewDoc()
		d.Set("Group (node 1)", group)
		d.Set("Occupation (node 2)", occupation)
		d.Set("Broad Occupation (profession)", profession)
		return d
	}
	p := &types.IngestPayload{CustomerID: "1", TaxonomyID: "1", TaxonomyName: "master hierarchy"}
	p.Layout.Columns = columns
	p.Rows = []*types.Doc{
		row("Nursing", "Registered Nurse", "Nurses"),
		row("Nursing", "Nurse Practitioner", "Nurses"),
		row("Therapy", "Physical Therapist", "Therapists"),
	}
	return &types.IngestEvent{Source: types.SourceAPI, TaxonomyType: types.TaxonomyMaster, Payload: p}
}

func customerEvent(key types.TaxonomyKey, professions ...string) *types.IngestEvent {
	p := &types.IngestPayload{CustomerID: key.CustomerID, TaxonomyID: key.TaxonomyID, TaxonomyName: "customer titles"}
	p.Layout.Columns = []string{"Profession (profession)", "State"}
	for _, prof := range professions {
		d := types.NewDoc()
		d.Set("Profession (profession)", prof)
		d.Set("State", "CA")
		p.Rows = append(p.Rows, d)
	}
	return &types.IngestEvent{Source: types.SourceAPI, TaxonomyType: types.TaxonomyCustomer, Payload: p}
}

func nodeTypeID(t *testing.T, s *sqlite.Store, name string) int64 {
	t.Helper()
	var id int64
	err := s.UnderlyingDB().QueryRowContext(context.Background(),
		`SELECT id FROM node_types WHERE name_lower = lower(?)`, name).Scan(&id)
	require.NoError(t, err, "node type %q", name)
	return id
}

// addRule creates an enabled rule and assigns it from the customer
// profession type to the Master occupation type.
func addRule(t *testing.T, s *sqlite.Store, name string, cmd types.RuleCommand, pattern string, priority int) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := s.CreateRule(ctx, &types.MappingRule{Name: name, Enabled: true, Command: cmd, Pattern: pattern})
	require.NoError(t, err)
	_, err = s.AssignRule(ctx, &types.RuleAssignment{
		RuleID:       id,
		MasterTypeID: nodeTypeID(t, s, "Occupation"),
		ChildTypeID:  nodeTypeID(t, s, "Profession"),
		Priority:     priority,
		Enabled:      true,
	})
	require.NoError(t, err)
	return id
}

func mapRequest(resp *types.IngestResponse) *types.MapRequest {
	return &types.MapRequest{
		LoadID:       resp.LoadID,
		CustomerID:   resp.CustomerID,
		TaxonomyID:   resp.TaxonomyID,
		LoadType:     resp.LoadType,
		TaxonomyType: resp.TaxonomyType,
		NodeIDs:      resp.NodeIDs,
	}
}

func masterValueOf(t *testing.T, s *sqlite.Store, m *types.Mapping) string {
	t.Helper()
	n, err := s.GetNode(context.Background(), m.MasterNodeID)
	require.NoError(t, err)
	return n.Value
}

func TestMapCreatesMappings(t *testing.T) {
	s, loaded := setupTaxonomies(t, "Registered Nurse", "Telemetry Tech")
	ctx := context.Background()
	addRule(t, s, "exact title", types.CommandEquals, "", 1)

	resp, err := NewEngine(s, 0).Map(ctx, mapRequest(loaded))
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, 2, resp.Results.NodesProcessed)
	require.Equal(t, 1, resp.Results.MappingsCreated)
	require.Zero(t, resp.Results.Failures)

	// The matching node carries an active system mapping at full confidence.
	nodes, err := s.ListActiveNodes(ctx, customerKey)
	require.NoError(t, err)
	var mapped, unmapped *types.Node
	for _, n := range nodes {
		if n.Value == "Registered Nurse" {
			mapped = n
		} else {
			unmapped = n
		}
	}
	m, err := s.GetActiveMapping(ctx, mapped.ID)
	require.NoError(t, err)
	require.Equal(t, 100, m.Confidence)
	require.Equal(t, createdBySystem, m.CreatedBy)
	require.Equal(t, "Registered Nurse", masterValueOf(t, s, m))

	// Unmatched node on a new load: no mapping, no failure.
	_, err = s.GetActiveMapping(ctx, unmapped.ID)
	require.True(t, storage.IsNotFound(err))

	// First version opens with version 1.
	versions, err := s.MappingVersions(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, 1, versions[0].VersionNumber)
	require.Nil(t, versions[0].ToTS)

	// Counters land on the load's taxonomy version.
	tvs, err := s.ListTaxonomyVersions(ctx, customerKey)
	require.NoError(t, err)
	require.Len(t, tvs, 1)
	require.Equal(t, 2, tvs[0].Counters.Processed)
	require.Equal(t, 1, tvs[0].Counters.New)
	require.Equal(t, "done", tvs[0].ProcessStatus)

	gold, err := s.ListGoldMappings(ctx)
	require.NoError(t, err)
	require.Len(t, gold, 1)
	require.Equal(t, m.ID, gold[0].MappingID)
	require.Equal(t, mapped.ID, gold[0].ChildNodeID)
}

func TestMapUnchangedOnRerun(t *testing.T) {
	s, loaded := setupTaxonomies(t, "Registered Nurse")
	ctx := context.Background()
	addRule(t, s, "exact title", types.CommandEquals, "", 1)
	engine := NewEngine(s, 1)

	_, err := engine.Map(ctx, mapRequest(loaded))
	require.NoError(t, err)
	resp, err := engine.Map(ctx, mapRequest(loaded))
	require.NoError(t, err)
	require.Equal(t, 1, resp.Results.MappingsUnchanged)
	require.Zero(t, resp.Results.MappingsCreated)

	// Gold sync is idempotent.
	gold, err := s.ListGoldMappings(ctx)
	require.NoError(t, err)
	require.Len(t, gold, 1)
}

func TestMapSupersedesOnRuleChange(t *testing.T) {
	s, loaded := setupTaxonomies(t, "Registered Nurse")
	ctx := context.Background()
	exact := addRule(t, s, "exact title", types.CommandEquals, "", 1)
	engine := NewEngine(s, 1)

	_, err := engine.Map(ctx, mapRequest(loaded))
	require.NoError(t, err)
	nodes, err := s.ListActiveNodes(ctx, customerKey)
	require.NoError(t, err)
	old, err := s.GetActiveMapping(ctx, nodes[0].ID)
	require.NoError(t, err)

	// Steer the node to a different Master occupation and remap.
	require.NoError(t, s.SetRuleEnabled(ctx, exact, false))
	addRule(t, s, "practitioner override", types.CommandEquals, "Nurse Practitioner", 1)

	req := mapRequest(loaded)
	req.LoadType = types.LoadUpdated
	resp, err := engine.Map(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, resp.Results.MappingsUpdated)

	replacement, err := s.GetActiveMapping(ctx, nodes[0].ID)
	require.NoError(t, err)
	require.NotEqual(t, old.ID, replacement.ID, "mapping was not superseded")
	require.Equal(t, "Nurse Practitioner", masterValueOf(t, s, replacement))

	// Old chain closed with the superseding mapping id.
	oldChain, err := s.MappingVersions(ctx, old.ID)
	require.NoError(t, err)
	require.Len(t, oldChain, 1)
	require.NotNil(t, oldChain[0].ToTS)
	require.NotNil(t, oldChain[0].SupersededBy)
	require.Equal(t, replacement.ID, *oldChain[0].SupersededBy)

	// Replacement continues the numbering.
	newChain, err := s.MappingVersions(ctx, replacement.ID)
	require.NoError(t, err)
	require.Len(t, newChain, 1)
	require.Equal(t, 2, newChain[0].VersionNumber)
	require.Nil(t, newChain[0].ToTS)

	// Gold follows the supersession.
	gold, err := s.ListGoldMappings(ctx)
	require.NoError(t, err)
	require.Len(t, gold, 1)
	require.Equal(t, replacement.ID, gold[0].MappingID)
}

func TestMapDeactivatesOnUpdateMiss(t *testing.T) {
	s, loaded := setupTaxonomies(t, "Registered Nurse")
	ctx := context.Background()
	exact := addRule(t, s, "exact title", types.CommandEquals, "", 1)
	engine := NewEngine(s, 1)

	_, err := engine.Map(ctx, mapRequest(loaded))
	require.NoError(t, err)
	require.NoError(t, s.SetRuleEnabled(ctx, exact, false))

	req := mapRequest(loaded)
	req.LoadType = types.LoadUpdated
	resp, err := engine.Map(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, resp.Results.MappingsDeactivated)

	nodes, err := s.ListActiveNodes(ctx, customerKey)
	require.NoError(t, err)
	_, err = s.GetActiveMapping(ctx, nodes[0].ID)
	require.True(t, storage.IsNotFound(err), "mapping still active")

	gold, err := s.ListGoldMappings(ctx)
	require.NoError(t, err)
	require.Empty(t, gold)
}

func TestMapFirstMatchWins(t *testing.T) {
	s, loaded := setupTaxonomies(t, "Travel Nurse")
	ctx := context.Background()
	// Both rules hit; the lower priority number runs first.
	addRule(t, s, "therapist fallback", types.CommandEquals, "Physical Therapist", 20)
	addRule(t, s, "nurse suffix", types.CommandEndsWith, "nurse", 10)

	_, err := NewEngine(s, 1).Map(ctx, mapRequest(loaded))
	require.NoError(t, err)
	nodes, err := s.ListActiveNodes(ctx, customerKey)
	require.NoError(t, err)
	m, err := s.GetActiveMapping(ctx, nodes[0].ID)
	require.NoError(t, err)
	require.Equal(t, "Registered Nurse", masterValueOf(t, s, m), "endswith match should win")
}

func TestMapScopesUpdateToNodeIDs(t *testing.T) {
	s, loaded := setupTaxonomies(t, "Registered Nurse", "Nurse Practitioner")
	ctx := context.Background()
	addRule(t, s, "exact title", types.CommandEquals, "", 1)

	req := mapRequest(loaded)
	req.LoadType = types.LoadUpdated
	req.NodeIDs = loaded.NodeIDs[:1]
	resp, err := NewEngine(s, 1).Map(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, resp.Results.NodesProcessed)
}

func TestMapRuleErrorFailsNodeWithoutStateChange(t *testing.T) {
	s, loaded := setupTaxonomies(t, "Registered Nurse")
	ctx := context.Background()
	addRule(t, s, "broken pattern", types.CommandRegex, "(", 1)

	resp, err := NewEngine(s, 1).Map(ctx, mapRequest(loaded))
	require.NoError(t, err)
	require.False(t, resp.Success, "run with every node failed reported success")
	require.Equal(t, 1, resp.Results.Failures)
	require.Len(t, resp.Errors, 1)
	require.Contains(t, resp.Errors[0], "broken pattern")

	nodes, err := s.ListActiveNodes(ctx, customerKey)
	require.NoError(t, err)
	_, err = s.GetActiveMapping(ctx, nodes[0].ID)
	require.True(t, storage.IsNotFound(err), "failed node gained mapping state")
}

func TestMapRequiresMasterTaxonomy(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := ingest.NewCoordinator(s, ingest.Options{})
	loaded, err := c.Ingest(ctx, customerEvent(customerKey, "Registered Nurse"))
	require.NoError(t, err)

	_, err = NewEngine(s, 1).Map(ctx, mapRequest(loaded))
	require.ErrorIs(t, err, storage.ErrNoMasterTaxonomy)
}

func TestMapOutOfBandRunOpensRemappingVersion(t *testing.T) {
	s, loaded := setupTaxonomies(t, "Registered Nurse")
	ctx := context.Background()
	addRule(t, s, "exact title", types.CommandEquals, "", 1)

	// A load with no version of its own: the engine appends a
	// remapping link to the chain.
	loadID, err := s.CreateLoad(ctx, types.TaxonomyCustomer, types.NewDoc())
	require.NoError(t, err)
	req := mapRequest(loaded)
	req.LoadID = loadID
	req.LoadType = types.LoadUpdated
	req.NodeIDs = nil
	_, err = NewEngine(s, 1).Map(ctx, req)
	require.NoError(t, err)

	tvs, err := s.ListTaxonomyVersions(ctx, customerKey)
	require.NoError(t, err)
	require.Len(t, tvs, 2)
	require.NotNil(t, tvs[0].ToTS, "ingest version still open")
	v2 := tvs[1]
	require.Equal(t, 2, v2.VersionNumber)
	require.True(t, v2.Remapping)
	require.Nil(t, v2.ToTS)
	require.Equal(t, loadID, v2.LoadID)
}
