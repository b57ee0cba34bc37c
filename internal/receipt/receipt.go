// Package receipt validates the receipt references attached to payment
// submissions. Files are uploaded out of band; the ledger stores only a
// path relative to the receipt root.
package receipt

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

const maxRefLen = 512

// DirStore checks references against a directory. With an empty root only
// the shape of the reference is checked.
type DirStore struct {
	root string
}

var _ ledger.ReceiptStore = (*DirStore)(nil)

// NewDirStore creates a DirStore rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

// Validate rejects absolute paths, parent traversal and, when a root is
// configured, references that do not name a regular file under it.
func (s *DirStore) Validate(ref string) error {
	if ref == "" {
		return nil
	}
	if len(ref) > maxRefLen {
		return fmt.Errorf("%w: longer than %d bytes", ledger.ErrInvalidReceipt, maxRefLen)
	}
	if strings.ContainsRune(ref, '\\') || strings.ContainsRune(ref, 0) {
		return fmt.Errorf("%w: %q", ledger.ErrInvalidReceipt, ref)
	}
	if path.IsAbs(ref) {
		return fmt.Errorf("%w: %q is absolute", ledger.ErrInvalidReceipt, ref)
	}
	clean := path.Clean(ref)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q escapes the receipt root", ledger.ErrInvalidReceipt, ref)
	}
	if s.root == "" {
		return nil
	}
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(clean)))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %q not found", ledger.ErrInvalidReceipt, ref)
	}
	if err != nil {
		return fmt.Errorf("checking receipt %q: %w", ref, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %q is not a file", ledger.ErrInvalidReceipt, ref)
	}
	return nil
}
