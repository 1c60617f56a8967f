package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/ca-srg/photosearch/internal/types"
)

// DocumentIndexerMock records every IndexDocument call and can be told to fail.
type DocumentIndexerMock struct {
	mu sync.RWMutex

	// Mock behavior settings
	ShouldFailIndexing bool
	FailKeys           map[string]bool

	// Mock state tracking
	IndexedDocuments  []*types.SearchDocument
	IndexingCallCount int

	// Mock data storage, index name -> object key -> latest document
	Documents map[string]map[string]*types.SearchDocument
}

// NewDocumentIndexerMock creates a new mock instance
func NewDocumentIndexerMock() *DocumentIndexerMock {
	return &DocumentIndexerMock{
		FailKeys:  make(map[string]bool),
		Documents: make(map[string]map[string]*types.SearchDocument),
	}
}

// IndexDocument mocks an upsert by object key
func (m *DocumentIndexerMock) IndexDocument(ctx context.Context, indexName string, doc *types.SearchDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.IndexingCallCount++

	if doc == nil {
		return fmt.Errorf("mock indexing failed: nil document")
	}
	if m.ShouldFailIndexing || m.FailKeys[doc.ObjectKey] {
		return fmt.Errorf("mock indexing failed for %s", doc.ObjectKey)
	}

	m.IndexedDocuments = append(m.IndexedDocuments, doc)
	if m.Documents[indexName] == nil {
		m.Documents[indexName] = make(map[string]*types.SearchDocument)
	}
	m.Documents[indexName][doc.ObjectKey] = doc
	return nil
}

// Document returns the latest document stored under key, or nil.
func (m *DocumentIndexerMock) Document(indexName, key string) *types.SearchDocument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Documents[indexName][key]
}

// CallCount returns how many IndexDocument calls were made
func (m *DocumentIndexerMock) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IndexingCallCount
}
