package memberships

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/internal/grants"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/config"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/outbox"
)

type stubMembershipRepo struct {
	membership *models.Membership
	getErr     error

	// txMembership, when set, is what the in-transaction re-read returns
	// instead of membership. Lets tests model a row that changed between
	// the initial read and the transaction.
	txMembership *models.Membership

	actorRoles map[enums.MemberRole]bool
	roleErr    error

	ownerCount int64
	// txOwnerCount, when set, is what the in-transaction owner count
	// returns instead of ownerCount.
	txOwnerCount *int64
	countErr     error

	members []*EntityMemberDTO
	pending []*models.Membership

	created *models.Membership
	removed []uuid.UUID
}

func (s *stubMembershipRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Membership, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.membership == nil || s.membership.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.membership
	return &copied, nil
}

func (s *stubMembershipRepo) ListByEntity(context.Context, uuid.UUID) ([]*EntityMemberDTO, error) {
	return s.members, nil
}

func (s *stubMembershipRepo) ListPendingByEntity(context.Context, uuid.UUID) ([]*models.Membership, error) {
	return s.pending, nil
}

func (s *stubMembershipRepo) GetMembershipsForUser(context.Context, uuid.UUID) ([]*MembershipWithEntity, error) {
	return nil, nil
}

func (s *stubMembershipRepo) GetByIDTx(_ *gorm.DB, id uuid.UUID) (*models.Membership, error) {
	if s.txMembership != nil {
		copied := *s.txMembership
		return &copied, nil
	}
	return s.GetByID(context.Background(), id)
}

func (s *stubMembershipRepo) CountActiveWithRolesTx(*gorm.DB, uuid.UUID, []enums.MemberRole) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	if s.txOwnerCount != nil {
		return *s.txOwnerCount, nil
	}
	return s.ownerCount, nil
}

func (s *stubMembershipRepo) UserHasRole(_ context.Context, _, _ uuid.UUID, roles []enums.MemberRole) (bool, error) {
	if s.roleErr != nil {
		return false, s.roleErr
	}
	for _, role := range roles {
		if s.actorRoles[role] {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubMembershipRepo) CreateTx(_ *gorm.DB, m *models.Membership) error {
	m.ID = uuid.New()
	s.created = m
	return nil
}

func (s *stubMembershipRepo) MarkRemovedTx(_ *gorm.DB, id uuid.UUID, _ time.Time) error {
	s.removed = append(s.removed, id)
	return nil
}

type stubGrantRepo struct {
	deletedFor []uuid.UUID
	deleteN    int64
	deleteErr  error
	created    []*models.Grant
	createErr  error
}

func (s *stubGrantRepo) DeleteAllForUserTx(_ *gorm.DB, _, userID uuid.UUID) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	s.deletedFor = append(s.deletedFor, userID)
	return s.deleteN, nil
}

func (s *stubGrantRepo) CreateManyTx(_ *gorm.DB, grants []*models.Grant) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, grants...)
	return nil
}

type stubAccessCache struct {
	invalidated []uuid.UUID
}

func (s *stubAccessCache) InvalidateUser(userID uuid.UUID) {
	s.invalidated = append(s.invalidated, userID)
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubEmitter struct {
	events []outbox.DomainEvent
	err    error
}

func (s *stubEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func inviteTestConfig() config.InviteConfig {
	return config.InviteConfig{
		TokenTTL:      24 * time.Hour,
		AcceptBaseURL: "https://app.capmatch.test/accept-invite",
	}
}

func activeMember(entityID uuid.UUID, role enums.MemberRole) *models.Membership {
	userID := uuid.New()
	email := "member@example.com"
	return &models.Membership{
		ID:           uuid.New(),
		EntityID:     entityID,
		UserID:       &userID,
		Role:         role,
		Status:       enums.MembershipStatusActive,
		InvitedEmail: &email,
	}
}

func newTestService(t *testing.T, repo *stubMembershipRepo, grants *stubGrantRepo, emitter *stubEmitter) Service {
	t.Helper()
	return newTestServiceWithCache(t, repo, grants, emitter, nil)
}

func newTestServiceWithCache(t *testing.T, repo *stubMembershipRepo, grants *stubGrantRepo, emitter *stubEmitter, cache cacheInvalidator) Service {
	t.Helper()
	svc, err := NewService(repo, grants, stubTxRunner{}, emitter, cache, inviteTestConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRemoveMember_CascadesGrantsAndEmits(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
	}
	grants := &stubGrantRepo{deleteN: 3}
	emitter := &stubEmitter{}
	svc := newTestService(t, repo, grants, emitter)

	if err := svc.RemoveMember(context.Background(), uuid.New(), entityID, membership.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if len(repo.removed) != 1 || repo.removed[0] != membership.ID {
		t.Fatalf("expected membership %s removed, got %v", membership.ID, repo.removed)
	}
	if len(grants.deletedFor) != 1 || grants.deletedFor[0] != *membership.UserID {
		t.Fatalf("expected grants cascade for %s, got %v", *membership.UserID, grants.deletedFor)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventMemberRemoved {
		t.Fatalf("expected member_removed event, got %v", emitter.events)
	}
}

func TestRemoveMember_LastOwnerRefused(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleOwner)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
		ownerCount: 1,
	}
	grants := &stubGrantRepo{}
	svc := newTestService(t, repo, grants, &stubEmitter{})

	err := svc.RemoveMember(context.Background(), uuid.New(), entityID, membership.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvariant {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if len(repo.removed) != 0 {
		t.Fatal("membership must not be removed")
	}
	if len(grants.deletedFor) != 0 {
		t.Fatal("grants must not be touched")
	}
}

func TestRemoveMember_SecondOwnerAllowed(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleOwner)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
		ownerCount: 2,
	}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	if err := svc.RemoveMember(context.Background(), uuid.New(), entityID, membership.ID); err != nil {
		t.Fatalf("remove second owner: %v", err)
	}
}

func TestRemoveMember_MemberActorForbidden(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	repo := &stubMembershipRepo{membership: membership, actorRoles: map[enums.MemberRole]bool{}}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	err := svc.RemoveMember(context.Background(), uuid.New(), entityID, membership.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRemoveMember_RoleCheckDependencyError(t *testing.T) {
	repo := &stubMembershipRepo{roleErr: errors.New("db down")}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	err := svc.RemoveMember(context.Background(), uuid.New(), uuid.New(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestPromoteToOwner_ClearsGrants(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
	}
	grants := &stubGrantRepo{deleteN: 2}
	emitter := &stubEmitter{}
	svc := newTestService(t, repo, grants, emitter)

	dto, err := svc.PromoteToOwner(context.Background(), uuid.New(), entityID, membership.ID)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if dto.Role != enums.MemberRoleOwner {
		t.Fatalf("expected owner role, got %s", dto.Role)
	}
	if len(repo.removed) != 1 || repo.removed[0] != membership.ID {
		t.Fatalf("expected prior row tombstoned, got %v", repo.removed)
	}
	if repo.created == nil || repo.created.Role != enums.MemberRoleOwner || repo.created.Status != enums.MembershipStatusActive {
		t.Fatalf("expected fresh active owner row, got %+v", repo.created)
	}
	if repo.created.UserID == nil || *repo.created.UserID != *membership.UserID {
		t.Fatal("replacement row must keep the user")
	}
	if len(grants.deletedFor) != 1 {
		t.Fatal("expected explicit grants cleared on promotion")
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventMemberPromoted {
		t.Fatalf("expected member_promoted event, got %v", emitter.events)
	}
}

func TestPromoteToOwner_ManagerActorForbidden(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleManager: true},
	}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	_, err := svc.PromoteToOwner(context.Background(), uuid.New(), entityID, membership.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestDemoteOwner_ResetsGrantsToWildcard(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleOwner)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
		ownerCount: 2,
	}
	grants := &stubGrantRepo{deleteN: 4}
	emitter := &stubEmitter{}
	svc := newTestService(t, repo, grants, emitter)

	projects := []uuid.UUID{uuid.New(), uuid.New()}
	dto, err := svc.DemoteOwnerToMember(context.Background(), uuid.New(), entityID, membership.ID, projects)
	if err != nil {
		t.Fatalf("demote: %v", err)
	}
	if dto.Role != enums.MemberRoleMember {
		t.Fatalf("expected member role, got %s", dto.Role)
	}
	if len(repo.removed) != 1 || repo.removed[0] != membership.ID {
		t.Fatalf("expected owner row tombstoned, got %v", repo.removed)
	}
	if repo.created == nil || repo.created.Role != enums.MemberRoleMember || repo.created.Status != enums.MembershipStatusActive {
		t.Fatalf("expected fresh active member row, got %+v", repo.created)
	}
	if len(grants.deletedFor) != 1 {
		t.Fatal("expected prior grants deleted, not merged")
	}
	if len(grants.created) != len(projects) {
		t.Fatalf("expected %d wildcard grants, got %d", len(projects), len(grants.created))
	}
	for _, g := range grants.created {
		if g.Path != "*" || g.Kind != enums.GrantKindFolder {
			t.Fatalf("expected wildcard folder grant, got path=%q kind=%s", g.Path, g.Kind)
		}
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventMemberDemoted {
		t.Fatalf("expected member_demoted event, got %v", emitter.events)
	}
}

func TestDemoteOwner_LastOwnerRefused(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleOwner)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
		ownerCount: 1,
	}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	_, err := svc.DemoteOwnerToMember(context.Background(), uuid.New(), entityID, membership.ID, nil)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvariant {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestRemoveAndReinvite_IssuesInviteBeforeRemoval(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
	}
	grants := &stubGrantRepo{deleteN: 1}
	emitter := &stubEmitter{}
	svc := newTestService(t, repo, grants, emitter)

	dto, err := svc.RemoveAndReinviteMember(context.Background(), uuid.New(), entityID, membership.ID, enums.MemberRoleManager, nil)
	if err != nil {
		t.Fatalf("remove and reinvite: %v", err)
	}
	if dto.Status != enums.MembershipStatusPending {
		t.Fatalf("expected pending reinvite, got %s", dto.Status)
	}
	if dto.Role != enums.MemberRoleManager {
		t.Fatalf("expected manager role on reinvite, got %s", dto.Role)
	}
	if repo.created == nil {
		t.Fatal("expected reinvite row created")
	}
	if repo.created.InviteToken == nil || *repo.created.InviteToken == "" {
		t.Fatal("expected fresh invite token")
	}
	if len(repo.removed) != 1 || repo.removed[0] != membership.ID {
		t.Fatalf("expected original membership removed, got %v", repo.removed)
	}

	if len(emitter.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(emitter.events))
	}
	if emitter.events[0].EventType != enums.EventInviteCreated {
		t.Fatalf("expected invite_created first, got %s", emitter.events[0].EventType)
	}
	if emitter.events[1].EventType != enums.EventMemberRemoved {
		t.Fatalf("expected member_removed second, got %s", emitter.events[1].EventType)
	}
	if emitter.events[2].EventType != enums.EventNotificationRequested {
		t.Fatalf("expected notification_requested last, got %s", emitter.events[2].EventType)
	}
}

func TestRemoveAndReinvite_MemberRoleKeepsSnapshot(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleManager)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
	}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	projects := []uuid.UUID{uuid.New()}
	_, err := svc.RemoveAndReinviteMember(context.Background(), uuid.New(), entityID, membership.ID, enums.MemberRoleMember, projects)
	if err != nil {
		t.Fatalf("remove and reinvite: %v", err)
	}
	if len(repo.created.GrantProjectIDs) != 1 || repo.created.GrantProjectIDs[0] != projects[0] {
		t.Fatalf("expected project snapshot on member reinvite, got %v", repo.created.GrantProjectIDs)
	}
}

func TestRemoveAndReinvite_NonMemberRoleDropsSnapshot(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
	}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	projects := []uuid.UUID{uuid.New()}
	_, err := svc.RemoveAndReinviteMember(context.Background(), uuid.New(), entityID, membership.ID, enums.MemberRoleManager, projects)
	if err != nil {
		t.Fatalf("remove and reinvite: %v", err)
	}
	if len(repo.created.GrantProjectIDs) != 0 {
		t.Fatalf("manager reinvite must not carry a project snapshot, got %v", repo.created.GrantProjectIDs)
	}
}

func TestRemoveAndReinvite_SameRoleConflict(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
	}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	_, err := svc.RemoveAndReinviteMember(context.Background(), uuid.New(), entityID, membership.ID, enums.MemberRoleMember, nil)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRemoveAndReinvite_LastOwnerRefused(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleOwner)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
		ownerCount: 1,
	}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	_, err := svc.RemoveAndReinviteMember(context.Background(), uuid.New(), entityID, membership.ID, enums.MemberRoleMember, nil)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvariant {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestRemoveAndReinvite_ManagerCannotGrantOwner(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleManager: true},
	}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	_, err := svc.RemoveAndReinviteMember(context.Background(), uuid.New(), entityID, membership.ID, enums.MemberRoleOwner, nil)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

// resolverGrantStore backs a real access resolver and the membership
// service's grant cascade with the same rows, so tests observe the cached
// decision flipping when a removal cascades the grants away.
type resolverGrantStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID][]*models.Grant
}

func (s *resolverGrantStore) ListByProjectUser(_ context.Context, projectID, userID uuid.UUID) ([]*models.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Grant
	for _, g := range s.rows[userID] {
		if g.ProjectID == projectID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *resolverGrantStore) UserIsProjectOwner(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}

func (s *resolverGrantStore) DeleteAllForUserTx(_ *gorm.DB, _, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.rows[userID]))
	delete(s.rows, userID)
	return n, nil
}

func (s *resolverGrantStore) CreateManyTx(_ *gorm.DB, created []*models.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range created {
		s.rows[g.UserID] = append(s.rows[g.UserID], g)
	}
	return nil
}

func TestRemoveMember_DeniesAccessAfterRemoval(t *testing.T) {
	entityID := uuid.New()
	projectID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	store := &resolverGrantStore{rows: map[uuid.UUID][]*models.Grant{
		*membership.UserID: {{
			EntityID:  entityID,
			ProjectID: projectID,
			UserID:    *membership.UserID,
			Path:      "deck.pdf",
			Kind:      enums.GrantKindFile,
		}},
	}}
	resolver, err := grants.NewResolver(store, nil, nil)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	ctx := context.Background()
	decision, err := resolver.CheckAccess(ctx, projectID, *membership.UserID, "deck.pdf")
	if err != nil {
		t.Fatalf("warm check: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected access before removal")
	}

	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
	}
	svc, err := NewService(repo, store, stubTxRunner{}, &stubEmitter{}, resolver, inviteTestConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.RemoveMember(ctx, uuid.New(), entityID, membership.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}

	decision, err = resolver.CheckAccess(ctx, projectID, *membership.UserID, "deck.pdf")
	if err != nil {
		t.Fatalf("check after removal: %v", err)
	}
	if decision.Allowed {
		t.Fatal("removed member must not keep access from the resolver cache")
	}
}

func TestPromoteToOwner_InvalidatesResolverCache(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
	}
	cache := &stubAccessCache{}
	svc := newTestServiceWithCache(t, repo, &stubGrantRepo{}, &stubEmitter{}, cache)

	if _, err := svc.PromoteToOwner(context.Background(), uuid.New(), entityID, membership.ID); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != *membership.UserID {
		t.Fatalf("expected cache invalidation for %s, got %v", *membership.UserID, cache.invalidated)
	}
}

func TestDemoteOwner_InvalidatesResolverCache(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleOwner)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
		ownerCount: 2,
	}
	cache := &stubAccessCache{}
	svc := newTestServiceWithCache(t, repo, &stubGrantRepo{}, &stubEmitter{}, cache)

	if _, err := svc.DemoteOwnerToMember(context.Background(), uuid.New(), entityID, membership.ID, nil); err != nil {
		t.Fatalf("demote: %v", err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != *membership.UserID {
		t.Fatalf("expected cache invalidation for %s, got %v", *membership.UserID, cache.invalidated)
	}
}

func TestRemoveAndReinvite_InvalidatesResolverCache(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	repo := &stubMembershipRepo{
		membership: membership,
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
	}
	cache := &stubAccessCache{}
	svc := newTestServiceWithCache(t, repo, &stubGrantRepo{}, &stubEmitter{}, cache)

	if _, err := svc.RemoveAndReinviteMember(context.Background(), uuid.New(), entityID, membership.ID, enums.MemberRoleManager, nil); err != nil {
		t.Fatalf("remove and reinvite: %v", err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != *membership.UserID {
		t.Fatalf("expected cache invalidation for %s, got %v", *membership.UserID, cache.invalidated)
	}
}

func TestRemoveMember_ConcurrentOwnerLossRefused(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleOwner)
	one := int64(1)
	repo := &stubMembershipRepo{
		membership:   membership,
		actorRoles:   map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
		ownerCount:   2,
		txOwnerCount: &one,
	}
	grantRepo := &stubGrantRepo{}
	svc := newTestService(t, repo, grantRepo, &stubEmitter{})

	err := svc.RemoveMember(context.Background(), uuid.New(), entityID, membership.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvariant {
		t.Fatalf("expected invariant violation from in-transaction count, got %v", err)
	}
	if len(repo.removed) != 0 {
		t.Fatal("membership must not be removed when a concurrent removal took the spare owner")
	}
	if len(grantRepo.deletedFor) != 0 {
		t.Fatal("grants must not be touched")
	}
}

func TestDemoteOwner_ConcurrentOwnerLossRefused(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleOwner)
	one := int64(1)
	repo := &stubMembershipRepo{
		membership:   membership,
		actorRoles:   map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
		ownerCount:   2,
		txOwnerCount: &one,
	}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	_, err := svc.DemoteOwnerToMember(context.Background(), uuid.New(), entityID, membership.ID, nil)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvariant {
		t.Fatalf("expected invariant violation from in-transaction count, got %v", err)
	}
	if len(repo.removed) != 0 {
		t.Fatal("owner row must survive")
	}
}

func TestRemoveMember_RowRemovedBeforeTxConflict(t *testing.T) {
	entityID := uuid.New()
	membership := activeMember(entityID, enums.MemberRoleMember)
	alreadyRemoved := *membership
	alreadyRemoved.Status = enums.MembershipStatusRemoved
	repo := &stubMembershipRepo{
		membership:   membership,
		txMembership: &alreadyRemoved,
		actorRoles:   map[enums.MemberRole]bool{enums.MemberRoleOwner: true},
	}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	err := svc.RemoveMember(context.Background(), uuid.New(), entityID, membership.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for a row removed mid-flight, got %v", err)
	}
	if len(repo.removed) != 0 {
		t.Fatal("already-removed row must not be tombstoned again")
	}
}

func TestListMembers_RequiresAdminRole(t *testing.T) {
	repo := &stubMembershipRepo{actorRoles: map[enums.MemberRole]bool{}}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	_, err := svc.ListMembers(context.Background(), uuid.New(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestListPendingInvites_MapsRows(t *testing.T) {
	entityID := uuid.New()
	email := "pending@example.com"
	expires := time.Now().Add(12 * time.Hour)
	repo := &stubMembershipRepo{
		actorRoles: map[enums.MemberRole]bool{enums.MemberRoleManager: true},
		pending: []*models.Membership{{
			ID:              uuid.New(),
			EntityID:        entityID,
			Role:            enums.MemberRoleMember,
			Status:          enums.MembershipStatusPending,
			InvitedEmail:    &email,
			InviteExpiresAt: &expires,
		}},
	}
	svc := newTestService(t, repo, &stubGrantRepo{}, &stubEmitter{})

	rows, err := svc.ListPendingInvites(context.Background(), uuid.New(), entityID)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 pending invite, got %d", len(rows))
	}
	if rows[0].InvitedEmail != email {
		t.Fatalf("expected email %s, got %s", email, rows[0].InvitedEmail)
	}
	if rows[0].ExpiresAt == nil {
		t.Fatal("expected expiry carried through")
	}
}
