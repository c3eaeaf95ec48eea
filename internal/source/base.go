// Package source provides the submission feeds pipelines grade from: GitHub
// pull requests and spreadsheet exports. Every source owns a document store
// under its destination directory and keeps one directory of working files
// per submission next to the documents.
package source

import (
	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/store"
)

// Base carries the document store shared by all sources and implements the
// persistence half of the pipeline's source contract. Concrete sources embed
// it and add their own Collect.
type Base struct {
	docs *store.Store
}

// NewBase roots a source's documents at dest.
func NewBase(dest string) Base {
	return Base{docs: store.New(dest)}
}

// Store exposes the underlying document store.
func (b Base) Store() *store.Store {
	return b.docs
}

// Ref reloads the persisted document for key.
func (b Base) Ref(key string) (*item.Item, error) {
	return b.docs.Read(key)
}

// UpdateSteps folds recorded results into the persisted document.
func (b Base) UpdateSteps(key string, results map[string]item.Result) (*item.Item, error) {
	return b.docs.Merge(key, results)
}
