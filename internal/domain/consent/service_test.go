package consent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medimate/api/internal/platform/audit"
	"github.com/medimate/api/internal/platform/events"
	"github.com/medimate/api/internal/platform/identity"
)

// -- Mock Repository --

type mockRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*Consent
	entries map[uuid.UUID][]*AuditEntry
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items:   make(map[uuid.UUID]*Consent),
		entries: make(map[uuid.UUID][]*AuditEntry),
	}
}

func (m *mockRepo) appendLocked(consentID uuid.UUID, entries []*AuditEntry) {
	for _, e := range entries {
		e.ID = uuid.New()
		e.ConsentID = consentID
		e.Seq = len(m.entries[consentID]) + 1
		if e.RecordedAt.IsZero() {
			e.RecordedAt = time.Now().UTC()
		}
		m.entries[consentID] = append(m.entries[consentID], e)
	}
}

func (m *mockRepo) Create(_ context.Context, c *Consent, entries ...*AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.VersionID = uuid.New()
	cp := *c
	m.items[c.ID] = &cp
	m.appendLocked(c.ID, entries)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Consent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) GetByKey(_ context.Context, patientID, entityID uuid.UUID, entityType EntityType) (*Consent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.PatientID == patientID && c.EntityID == entityID && c.EntityType == entityType {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Update(_ context.Context, c *Consent, expectedVersion uuid.UUID, entries ...*AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[c.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.VersionID != expectedVersion {
		return errConflict
	}
	c.VersionID = uuid.New()
	cp := *c
	m.items[c.ID] = &cp
	m.appendLocked(c.ID, entries)
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Consent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Consent
	for _, c := range m.items {
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Consent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Consent
	for _, c := range m.items {
		if c.PatientID == patientID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByEntity(_ context.Context, entityID uuid.UUID, limit, offset int) ([]*Consent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Consent
	for _, c := range m.items {
		if c.EntityID == entityID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListAudit(_ context.Context, consentID uuid.UUID) ([]*AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*AuditEntry(nil), m.entries[consentID]...), nil
}

// -- Fakes --

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type fakeAttestor struct{}

func (fakeAttestor) Attest(context.Context, string) (string, error) {
	return "att_" + uuid.New().String(), nil
}

func newTestService(repo *mockRepo) (*Service, *capturePublisher) {
	pub := &capturePublisher{}
	svc := NewService(repo, fakeAttestor{}, pub, audit.NopRecorder{}, 365*24*time.Hour)
	return svc, pub
}

func patientActor(id uuid.UUID) identity.Identity {
	return identity.Identity{UserID: id, Role: identity.RolePatient}
}

func TestGrant_Idempotent(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo)

	patient := uuid.New()
	hospital := uuid.New()
	in := GrantInput{PatientID: patient, EntityID: hospital, EntityType: EntityHospital}

	first, err := svc.Grant(context.Background(), patientActor(patient), in)
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if first.Status != StatusGranted {
		t.Errorf("expected granted, got %s", first.Status)
	}
	if first.AttestationToken == "" || !first.AttestationConfirmed {
		t.Error("expected attestation token to be stamped")
	}

	_, err = svc.Grant(context.Background(), patientActor(patient), in)
	if !errors.Is(err, ErrAlreadyGranted) {
		t.Fatalf("expected ErrAlreadyGranted, got %v", err)
	}
	if len(repo.items) != 1 {
		t.Errorf("expected exactly one record, got %d", len(repo.items))
	}
}

func TestGrant_ForbiddenForOtherActor(t *testing.T) {
	svc, _ := newTestService(newMockRepo())

	in := GrantInput{PatientID: uuid.New(), EntityID: uuid.New(), EntityType: EntityHospital}
	_, err := svc.Grant(context.Background(), patientActor(uuid.New()), in)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGrant_PublishesToEntity(t *testing.T) {
	svc, pub := newTestService(newMockRepo())

	patient := uuid.New()
	hospital := uuid.New()
	_, err := svc.Grant(context.Background(), patientActor(patient),
		GrantInput{PatientID: patient, EntityID: hospital, EntityType: EntityHospital})
	if err != nil {
		t.Fatal(err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	e := pub.events[0]
	if e.Type != events.TypeConsentGranted {
		t.Errorf("expected %s, got %s", events.TypeConsentGranted, e.Type)
	}
	if e.RecipientID != hospital.String() {
		t.Errorf("event addressed to %s, want entity %s", e.RecipientID, hospital)
	}
}

func TestRevokeRenew_RoundTrip(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo)

	patient := uuid.New()
	insurer := uuid.New()
	actor := patientActor(patient)

	c, err := svc.Grant(context.Background(), actor,
		GrantInput{PatientID: patient, EntityID: insurer, EntityType: EntityInsurer})
	if err != nil {
		t.Fatal(err)
	}
	firstExpiry := c.ExpiresAt

	c, err = svc.Revoke(context.Background(), actor, c.ID, "changed my mind")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if c.Status != StatusRevoked || c.RevokedAt == nil {
		t.Errorf("expected revoked with RevokedAt set, got %s %v", c.Status, c.RevokedAt)
	}

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	c, err = svc.Renew(context.Background(), actor, c.ID, nil)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if c.Status != StatusGranted || c.RevokedAt != nil {
		t.Errorf("expected granted with RevokedAt cleared, got %s %v", c.Status, c.RevokedAt)
	}
	if !c.ExpiresAt.After(firstExpiry) {
		t.Error("expected a fresh expiry after renewal")
	}

	trail, err := repo.ListAudit(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{ActionGranted, ActionRevoked, ActionRenewed}
	if len(trail) != len(want) {
		t.Fatalf("expected %d audit entries, got %d", len(want), len(trail))
	}
	for i, e := range trail {
		if e.Action != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], e.Action)
		}
		if e.Seq != i+1 {
			t.Errorf("entry %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
	}
}

func TestRenew_FromActiveFails(t *testing.T) {
	svc, _ := newTestService(newMockRepo())

	patient := uuid.New()
	actor := patientActor(patient)
	c, err := svc.Grant(context.Background(), actor,
		GrantInput{PatientID: patient, EntityID: uuid.New(), EntityType: EntityHospital})
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Renew(context.Background(), actor, c.ID, nil)
	if !errors.Is(err, ErrAlreadyGranted) {
		t.Fatalf("expected ErrAlreadyGranted, got %v", err)
	}
}

func TestHasActiveConsent_ExpiryBoundary(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo)

	patient := uuid.New()
	hospital := uuid.New()
	c, err := svc.Grant(context.Background(), patientActor(patient),
		GrantInput{PatientID: patient, EntityID: hospital, EntityType: EntityHospital})
	if err != nil {
		t.Fatal(err)
	}

	// Exactly at expiresAt the consent is no longer active.
	svc.now = func() time.Time { return c.ExpiresAt }
	active, err := svc.HasActiveConsent(context.Background(), patient, hospital, EntityHospital)
	if err != nil {
		t.Fatal(err)
	}
	if active {
		t.Error("consent expiring exactly now must not be active")
	}

	svc.now = func() time.Time { return c.ExpiresAt.Add(-time.Second) }
	active, err = svc.HasActiveConsent(context.Background(), patient, hospital, EntityHospital)
	if err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Error("consent expiring in one second must be active")
	}
}

func TestHasActiveConsent_MissingIsNotAnError(t *testing.T) {
	svc, _ := newTestService(newMockRepo())
	active, err := svc.HasActiveConsent(context.Background(), uuid.New(), uuid.New(), EntityHospital)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active {
		t.Error("missing consent reported active")
	}
}

func TestGrant_OverExpiredRecordsExpiry(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo)

	patient := uuid.New()
	hospital := uuid.New()
	actor := patientActor(patient)
	in := GrantInput{PatientID: patient, EntityID: hospital, EntityType: EntityHospital}

	c, err := svc.Grant(context.Background(), actor, in)
	if err != nil {
		t.Fatal(err)
	}

	// Step past the validity window and grant again: the lapsed record is
	// reactivated in place, with the expiry recorded on the trail first.
	svc.now = func() time.Time { return c.ExpiresAt.Add(time.Minute) }
	c2, err := svc.Grant(context.Background(), actor, in)
	if err != nil {
		t.Fatalf("re-grant over expired: %v", err)
	}
	if c2.ID != c.ID {
		t.Error("expected reactivation in place, got a new record")
	}
	if c2.Status != StatusGranted {
		t.Errorf("expected granted, got %s", c2.Status)
	}

	trail, _ := repo.ListAudit(context.Background(), c.ID)
	want := []string{ActionGranted, ActionExpired, ActionGranted}
	if len(trail) != len(want) {
		t.Fatalf("expected %d audit entries, got %d", len(want), len(trail))
	}
	for i, e := range trail {
		if e.Action != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], e.Action)
		}
	}
}

func TestRevoke_ConcurrentSecondFails(t *testing.T) {
	repo := newMockRepo()
	svc, _ := newTestService(repo)

	patient := uuid.New()
	actor := patientActor(patient)
	c, err := svc.Grant(context.Background(), actor,
		GrantInput{PatientID: patient, EntityID: uuid.New(), EntityType: EntityInsurer})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Revoke(context.Background(), actor, c.ID, "race")
		}(i)
	}
	wg.Wait()

	var ok, alreadyRevoked int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyRevoked):
			alreadyRevoked++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || alreadyRevoked != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d alreadyRevoked=%d", ok, alreadyRevoked)
	}

	trail, _ := repo.ListAudit(context.Background(), c.ID)
	if len(trail) != 2 {
		t.Errorf("expected 2 audit entries (granted, revoked), got %d", len(trail))
	}
}

func TestGet_UniformNotFoundForForeignActor(t *testing.T) {
	svc, _ := newTestService(newMockRepo())

	patient := uuid.New()
	c, err := svc.Grant(context.Background(), patientActor(patient),
		GrantInput{PatientID: patient, EntityID: uuid.New(), EntityType: EntityHospital})
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Get(context.Background(), patientActor(uuid.New()), c.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected uniform ErrNotFound for foreign reader, got %v", err)
	}

	admin := identity.Identity{UserID: uuid.New(), Role: identity.RoleAdmin}
	if _, err := svc.Get(context.Background(), admin, c.ID); err != nil {
		t.Fatalf("admin read failed: %v", err)
	}
}
