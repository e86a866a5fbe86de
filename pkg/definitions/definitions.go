// Package definitions loads workflow definitions from JSON files.
package definitions

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/services"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Validate checks a definition document against the definition schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate definition: %w", err)
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Parse validates and decodes one definition document.
func Parse(data []byte) (*models.Workflow, error) {
	err := Validate(data)
	if err != nil {
		return nil, err
	}

	var workflow models.Workflow

	err = json.Unmarshal(data, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}

	return &workflow, nil
}

// Load reads a definition file, or every *.json file of a directory in name
// order.
func Load(path string) ([]*models.Workflow, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	files := []string{path}

	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("failed to list definitions in %s: %w", path, err)
		}

		sort.Strings(files)
	}

	workflows := make([]*models.Workflow, 0, len(files))

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		workflow, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(file), err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

// ImportResult counts what an import changed.
type ImportResult struct {
	Created int
	Updated int
}

// Importer upserts definitions by code.
type Importer struct {
	workflows *services.Workflow
	logger    *slog.Logger
}

func NewImporter(workflows *services.Workflow, logger *slog.Logger) *Importer {
	return &Importer{workflows: workflows, logger: logger.With("module", "definitions")}
}

// Import creates definitions with unknown codes and replaces existing ones.
func (i *Importer) Import(ctx context.Context, workflows []*models.Workflow) (*ImportResult, error) {
	result := &ImportResult{}

	for _, workflow := range workflows {
		existing, err := i.workflows.FetchByCode(ctx, workflow.Code)
		if err != nil && !services.IsNotFound(err) {
			return result, err
		}

		if existing == nil {
			created, err := i.workflows.Create(ctx, workflow)
			if err != nil {
				return result, fmt.Errorf("failed to import %s: %w", workflow.Code, err)
			}

			i.logger.InfoContext(ctx, "Imported workflow", "code", created.Code, "id", created.ID)
			result.Created++

			continue
		}

		updated, err := i.workflows.Update(ctx, existing.ID, workflow)
		if err != nil {
			return result, fmt.Errorf("failed to import %s: %w", workflow.Code, err)
		}

		i.logger.InfoContext(ctx, "Updated workflow", "code", updated.Code, "id", updated.ID, "version", updated.Version)
		result.Updated++
	}

	return result, nil
}

// LoadAndImport loads definitions from path and imports them.
func (i *Importer) LoadAndImport(ctx context.Context, path string) (*ImportResult, error) {
	workflows, err := Load(path)
	if err != nil {
		return nil, err
	}

	return i.Import(ctx, workflows)
}
