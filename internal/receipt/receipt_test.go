package receipt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matthewbaird/rentledger/internal/ledger"
)

func TestDirStore_Shape(t *testing.T) {
	s := NewDirStore("")
	for _, ok := range []string{"", "2025/03/inv-0001.pdf", "./receipt.jpg"} {
		if err := s.Validate(ok); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", ok, err)
		}
	}
	for _, bad := range []string{"/etc/passwd", "../secret.pdf", "a/../../b.pdf", "..", ".", `a\b.pdf`} {
		if err := s.Validate(bad); !errors.Is(err, ledger.ErrInvalidReceipt) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidReceipt", bad, err)
		}
	}
}

func TestDirStore_Existence(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "2025"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "2025", "r.pdf"), []byte("%PDF"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewDirStore(root)
	if err := s.Validate("2025/r.pdf"); err != nil {
		t.Fatalf("existing receipt rejected: %v", err)
	}
	if err := s.Validate("2025/missing.pdf"); !errors.Is(err, ledger.ErrInvalidReceipt) {
		t.Errorf("missing receipt = %v, want ErrInvalidReceipt", err)
	}
	if err := s.Validate("2025"); !errors.Is(err, ledger.ErrInvalidReceipt) {
		t.Errorf("directory = %v, want ErrInvalidReceipt", err)
	}
}
