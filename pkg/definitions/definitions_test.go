package definitions

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence/file"
	"github.com/cmsflow/approvals/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const examplesDir = "../../examples/definitions"

func TestParse(t *testing.T) {
	workflow, err := Parse([]byte(`{
		"code": "W",
		"name": "Review",
		"nodes": [
			{"id": "s", "node_type": "START", "name": "Start"},
			{"id": "a", "node_type": "APPROVAL", "name": "Check", "sort_order": 1, "approver_ids": ["u1"]}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "W", workflow.Code)
	require.Len(t, workflow.Nodes, 2)
	assert.Equal(t, models.NodeTypeApproval, workflow.Nodes[1].NodeType)
	assert.Equal(t, []string{"u1"}, workflow.Nodes[1].ApproverIDs)
}

func TestValidate_Rejects(t *testing.T) {
	tests := map[string]string{
		"missing code":         `{"name": "x", "nodes": [{"node_type": "START", "name": "s"}]}`,
		"unknown node type":    `{"code": "W", "name": "x", "nodes": [{"node_type": "FORK", "name": "s"}]}`,
		"approval without ids": `{"code": "W", "name": "x", "nodes": [{"node_type": "APPROVAL", "name": "a"}]}`,
		"empty approver list":  `{"code": "W", "name": "x", "nodes": [{"node_type": "APPROVAL", "name": "a", "approver_ids": []}]}`,
		"unknown field":        `{"code": "W", "name": "x", "owner": "me", "nodes": [{"node_type": "START", "name": "s"}]}`,
		"bad status":           `{"code": "W", "name": "x", "status": "LIVE", "nodes": [{"node_type": "START", "name": "s"}]}`,
		"no nodes":             `{"code": "W", "name": "x", "nodes": []}`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Validate([]byte(doc)))
		})
	}
}

func TestValidate_NotJSON(t *testing.T) {
	assert.Error(t, Validate([]byte("code: W")))
}

func TestLoad_ExamplesDirectory(t *testing.T) {
	workflows, err := Load(examplesDir)
	require.NoError(t, err)
	require.Len(t, workflows, 2)

	assert.Equal(t, "CONTENT_PUBLISH", workflows[0].Code)
	assert.Equal(t, models.WorkflowStatusActive, workflows[0].Status)
	assert.Equal(t, "PRODUCT_LAUNCH", workflows[1].Code)
}

func TestLoad_SingleFileAndErrors(t *testing.T) {
	workflows, err := Load(filepath.Join(examplesDir, "content_publish.json"))
	require.NoError(t, err)
	assert.Len(t, workflows, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"code": "W"}`), 0o600))

	_, err = Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.json")
}

func TestImporter(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	workflows := services.NewWorkflow(p)
	importer := NewImporter(workflows, slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := importer.LoadAndImport(t.Context(), examplesDir)
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Created: 2}, result)

	result, err = importer.LoadAndImport(t.Context(), examplesDir)
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Updated: 2}, result)

	workflow, err := workflows.FetchByCode(t.Context(), "CONTENT_PUBLISH")
	require.NoError(t, err)
	assert.Equal(t, 2, workflow.Version)
	assert.Len(t, workflow.Nodes, 4)

	first, ok := workflow.FirstApprovalNode()
	require.True(t, ok)
	assert.Equal(t, "editor", first.ID)
}
