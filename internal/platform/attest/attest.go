// Package attest isolates the tamper-evident attestation boundary. Consent
// grants are stamped with an opaque token standing in for an entry on an
// external verification ledger; swapping in a real ledger client only
// requires a new Service implementation.
package attest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Service produces an opaque attestation token for a record reference.
// Tokens are write-once: callers stamp them onto the record and never
// verify them locally.
type Service interface {
	Attest(ctx context.Context, recordRef string) (string, error)
}

// LocalService issues locally-generated tokens. It is the default
// implementation used when no external ledger is configured.
type LocalService struct{}

// NewLocalService creates a LocalService.
func NewLocalService() *LocalService { return &LocalService{} }

// Attest returns a token derived from a fresh UUID, prefixed so tokens are
// recognizable in logs and exports.
func (s *LocalService) Attest(_ context.Context, recordRef string) (string, error) {
	if strings.TrimSpace(recordRef) == "" {
		return "", fmt.Errorf("record reference is required")
	}
	return "att_" + strings.ReplaceAll(uuid.New().String(), "-", ""), nil
}
