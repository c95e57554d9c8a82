// Package lineage verifies chains of receipts linked by parent
// signature references. A chain expresses delegated authority: each
// receipt points at the signature of the receipt that authorized it,
// terminating at a root receipt with no parent.
package lineage

import (
	"errors"
	"fmt"

	"github.com/giovannypietro/poi/pkg/receipt"
)

// DefaultMaxDepth bounds chain walks unless the caller configures
// otherwise.
const DefaultMaxDepth = 10

// ErrNotFound is returned by resolvers that cannot map a signature to
// a receipt.
var ErrNotFound = errors.New("no receipt found for signature")

// Resolver maps a base64 signature back to the receipt that carries
// it. Implementations may be in-memory maps or backed by an archive.
type Resolver interface {
	Resolve(signature string) (*receipt.Receipt, error)
}

// MapResolver is an in-memory Resolver keyed by signature.
type MapResolver map[string]*receipt.Receipt

func (m MapResolver) Resolve(signature string) (*receipt.Receipt, error) {
	r, ok := m[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// CheckFunc verifies a single ancestor receipt. The validator supplies
// its signature and temporal checks here, so this package stays free of
// crypto concerns.
type CheckFunc func(r *receipt.Receipt) error

// BrokenError reports a dangling parent reference: the resolver could
// not produce the ancestor a receipt points at.
type BrokenError struct {
	ReceiptID       string
	ParentSignature string
}

func (e *BrokenError) Error() string {
	return fmt.Sprintf("lineage broken at receipt %s: parent signature cannot be resolved", e.ReceiptID)
}

// TooDeepError reports a chain exceeding the configured depth bound.
type TooDeepError struct {
	ReceiptID string
	MaxDepth  int
}

func (e *TooDeepError) Error() string {
	return fmt.Sprintf("lineage of receipt %s exceeds maximum depth %d", e.ReceiptID, e.MaxDepth)
}

// Verify walks the chain child→root, depth-first. Each ancestor is
// resolved and passed to check; the first failure short-circuits and is
// reported with the offending receipt's id. maxDepth <= 0 means
// DefaultMaxDepth.
func Verify(r *receipt.Receipt, resolver Resolver, check CheckFunc, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	current := r
	for depth := 0; current.ParentReceiptSignature != ""; depth++ {
		if depth >= maxDepth {
			return &TooDeepError{ReceiptID: r.ReceiptID, MaxDepth: maxDepth}
		}
		if resolver == nil {
			return &BrokenError{ReceiptID: current.ReceiptID, ParentSignature: current.ParentReceiptSignature}
		}

		parent, err := resolver.Resolve(current.ParentReceiptSignature)
		if err != nil || parent == nil {
			return &BrokenError{ReceiptID: current.ReceiptID, ParentSignature: current.ParentReceiptSignature}
		}

		if check != nil {
			if err := check(parent); err != nil {
				return fmt.Errorf("ancestor %s: %w", parent.ReceiptID, err)
			}
		}
		current = parent
	}
	return nil
}
