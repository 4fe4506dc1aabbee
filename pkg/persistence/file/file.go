// Package file provides a file-based persistence implementation for local
// development and tests. Records are JSON documents under the root directory;
// every repository serializes document access through a process-wide lock, so
// this backend is single-process only.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dripflow/dripflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root           string
	mu             sync.Mutex
	workflowRepo   *WorkflowRepository
	runRepo        *RunRepository
	contactRepo    *ContactRepository
	templateRepo   *TemplateRepository
	smtpConfigRepo *SMTPConfigRepository
	sendRecordRepo *SendRecordRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// Accepts both a plain path and a file:// URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflowRepo = &WorkflowRepository{persistence: p}
	p.runRepo = &RunRepository{persistence: p}
	p.contactRepo = &ContactRepository{persistence: p}
	p.templateRepo = &TemplateRepository{persistence: p}
	p.smtpConfigRepo = &SMTPConfigRepository{persistence: p}
	p.sendRecordRepo = &SendRecordRepository{persistence: p}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory is usable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return os.MkdirAll(p.root, 0o755)
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

func (p *Persistence) ContactRepository() persistence.ContactRepository {
	return p.contactRepo
}

func (p *Persistence) TemplateRepository() persistence.TemplateRepository {
	return p.templateRepo
}

func (p *Persistence) SMTPConfigRepository() persistence.SMTPConfigRepository {
	return p.smtpConfigRepo
}

func (p *Persistence) SendRecordRepository() persistence.SendRecordRepository {
	return p.sendRecordRepo
}

func (p *Persistence) collectionDir(collection string) string {
	return filepath.Join(p.root, collection)
}

func (p *Persistence) readDocument(collection, id string, out any) error {
	data, err := os.ReadFile(filepath.Join(p.collectionDir(collection), id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		}

		return fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}

	return nil
}

func (p *Persistence) writeDocument(collection, id string, doc any) error {
	dir := p.collectionDir(collection)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}

	err = os.WriteFile(filepath.Join(dir, id+".json"), data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}

	return nil
}

func (p *Persistence) documentIDs(collection string) ([]string, error) {
	entries, err := os.ReadDir(p.collectionDir(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}

	return ids, nil
}
