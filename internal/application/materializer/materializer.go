// Package materializer implements C1, the File Materializer: given a
// program version, it fetches every VersionFile from the file store and
// writes it into a fresh sandbox directory, and — when a UiComponent is
// attached — synthesizes a typed UI-binding stub alongside it.
package materializer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smilemakc/mbflow/internal/infrastructure/filestore"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/pkg/models"
)

// Materializer builds an execution sandbox from a Version's files.
type Materializer struct {
	store     filestore.Store
	log       *logger.Logger
	diskQuota int64 // bytes; 0 means unlimited
}

// New creates a Materializer backed by store. diskQuota bounds the total
// bytes a single materialized sandbox may consume; 0 disables the check.
func New(store filestore.Store, log *logger.Logger, diskQuota int64) *Materializer {
	return &Materializer{store: store, log: log, diskQuota: diskQuota}
}

// Result describes the materialized sandbox layout.
type Result struct {
	SandboxRoot string
	InputDir    string
	OutputDir   string
	StubPath    string // empty if the version has no attached UiComponent
}

// Materialize writes every file of version into sandboxRoot, preserving
// relative paths, then (if component is non-nil) synthesizes a UI-binding
// stub for program.Language next to them. It always creates empty
// input/ and output/ subdirectories so the language runner and process
// supervisor have a stable place to read parameters and collect results.
func (m *Materializer) Materialize(ctx context.Context, program *models.Program, version *models.Version, component *models.UiComponent, sandboxRoot string) (*Result, error) {
	if err := os.MkdirAll(sandboxRoot, 0o755); err != nil {
		return nil, &models.MaterializationError{ProgramID: program.ID, VersionID: version.ID, Err: fmt.Errorf("create sandbox: %w", err)}
	}

	var total int64
	for _, f := range version.Files {
		data, err := m.store.Get(ctx, f.StorageKey)
		if err != nil {
			return nil, &models.MaterializationError{ProgramID: program.ID, VersionID: version.ID, Err: fmt.Errorf("fetch %s: %w", f.Path, err)}
		}
		if f.Hash != "" && f.StorageKey != f.Hash {
			// VersionFile.Hash is the declared content hash; StorageKey is
			// the store's content-addressed key. A local store uses the
			// hash as the key directly, so a mismatch here means the file
			// was re-uploaded and the version record is stale.
			return nil, &models.MaterializationError{ProgramID: program.ID, VersionID: version.ID, Err: fmt.Errorf("hash mismatch for %s", f.Path)}
		}
		total += int64(len(data))
		if m.diskQuota > 0 && total > m.diskQuota {
			return nil, &models.MaterializationError{ProgramID: program.ID, VersionID: version.ID, Err: fmt.Errorf("disk quota exceeded (%d > %d bytes)", total, m.diskQuota)}
		}

		dest := filepath.Join(sandboxRoot, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, &models.MaterializationError{ProgramID: program.ID, VersionID: version.ID, Err: fmt.Errorf("create dir for %s: %w", f.Path, err)}
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return nil, &models.MaterializationError{ProgramID: program.ID, VersionID: version.ID, Err: fmt.Errorf("write %s: %w", f.Path, err)}
		}
	}

	result := &Result{
		SandboxRoot: sandboxRoot,
		InputDir:    filepath.Join(sandboxRoot, "input"),
		OutputDir:   filepath.Join(sandboxRoot, "output"),
	}
	if err := os.MkdirAll(result.InputDir, 0o755); err != nil {
		return nil, &models.MaterializationError{ProgramID: program.ID, VersionID: version.ID, Err: err}
	}
	if err := os.MkdirAll(result.OutputDir, 0o755); err != nil {
		return nil, &models.MaterializationError{ProgramID: program.ID, VersionID: version.ID, Err: err}
	}

	if component != nil {
		stub, stubErr := generateStub(program.Language, component)
		if stubErr != nil {
			return nil, &models.MaterializationError{ProgramID: program.ID, VersionID: version.ID, Err: stubErr}
		}
		stubPath := filepath.Join(sandboxRoot, stubFilename(program.Language))
		if err := os.WriteFile(stubPath, []byte(stub), 0o644); err != nil {
			return nil, &models.MaterializationError{ProgramID: program.ID, VersionID: version.ID, Err: err}
		}
		result.StubPath = stubPath
	}

	m.log.Info("materialized sandbox",
		"programId", program.ID, "versionId", version.ID,
		"files", len(version.Files), "bytes", total, "sandbox", sandboxRoot)

	return result, nil
}
