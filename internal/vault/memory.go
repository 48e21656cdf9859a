package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"dt-go/internal/dt"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It is useful for testing and is safe for concurrent use.
type MemoryVault struct {
	name     string
	items    map[string][]byte // "namespace/name" -> data
	versions map[string]int64  // "namespace/name" -> version
	mu       sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		items:    make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

// itemKey returns the map key for a namespace/name pair.
func itemKey(namespace, name string) string {
	return namespace + "/" + name
}

// PutMetadata stores a named item under namespace.
func (m *MemoryVault) PutMetadata(namespace, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := itemKey(namespace, name)
	m.items[key] = data
	m.versions[key] = version
	return nil
}

// GetMetadataVersion returns the version stored with an item.
// Returns 0 if nothing has been stored for this namespace/name.
func (m *MemoryVault) GetMetadataVersion(namespace, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.versions[itemKey(namespace, name)], nil
}

// GetMetadata retrieves a named item and writes it to w.
func (m *MemoryVault) GetMetadata(namespace, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.items[itemKey(namespace, name)]
	if !ok {
		return fmt.Errorf("metadata %q not found in %s", name, namespace)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements dt.Vault interface
var _ dt.Vault = (*MemoryVault)(nil)
