package sign

import (
	"fmt"

	"github.com/giovannypietro/poi/pkg/receipt"
)

// VerificationError reports that a signature does not verify against
// the canonical bytes under the stated algorithm.
type VerificationError struct {
	Algorithm receipt.Algorithm
	Reason    string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s signature verification failed: %s", e.Algorithm, e.Reason)
}

// AlgorithmMismatchError reports that the receipt's stated algorithm
// does not match what the verification key supports.
type AlgorithmMismatchError struct {
	Stated  receipt.Algorithm
	KeyType string
}

func (e *AlgorithmMismatchError) Error() string {
	return fmt.Sprintf("stated algorithm %q does not match key type %s", e.Stated, e.KeyType)
}
