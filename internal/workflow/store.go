package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/osvaldoandrade/comfyq/pkg/domain"
)

// TemplateStore hands out a fresh Graph per call, so concurrent invocations never
// share a document.
type TemplateStore interface {
	Load(ctx context.Context, templateID string) (*Graph, error)
}

type fsTemplateStore struct {
	fsys fs.FS
}

// NewTemplateStore serves <templateID>.json files from fsys.
func NewTemplateStore(fsys fs.FS) TemplateStore {
	return &fsTemplateStore{fsys: fsys}
}

// NewDirTemplateStore serves templates from a directory on disk.
func NewDirTemplateStore(dir string) TemplateStore {
	return &fsTemplateStore{fsys: os.DirFS(dir)}
}

func (s *fsTemplateStore) Load(ctx context.Context, templateID string) (*Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := templateID + ".json"
	if templateID == "" || strings.ContainsAny(templateID, `/\`) || !fs.ValidPath(name) {
		return nil, &domain.Error{Kind: domain.KindTemplateNotFound, Template: templateID, Err: errors.New("invalid template id")}
	}
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.Error{Kind: domain.KindTemplateNotFound, Template: templateID}
		}
		return nil, fmt.Errorf("read template %s: %w", templateID, err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindInvalidTemplate, Template: templateID, Err: err}
	}
	return g, nil
}
