package memberships

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

func setupMembershipsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	users := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  phone TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  last_login_at DATETIME,
  system_role TEXT,
  entity_ids TEXT NOT NULL DEFAULT '{}',
  created_at DATETIME,
  updated_at DATETIME
);`
	entities := `
CREATE TABLE IF NOT EXISTS entities (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  website TEXT,
  phone TEXT,
  email TEXT,
  owner TEXT NOT NULL,
  last_active_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	memberships := `
CREATE TABLE IF NOT EXISTS memberships (
  id TEXT PRIMARY KEY,
  entity_id TEXT NOT NULL,
  user_id TEXT,
  role TEXT NOT NULL,
  status TEXT NOT NULL,
  invited_email TEXT,
  invite_token TEXT,
  invite_expires_at DATETIME,
  invited_by_user_id TEXT,
  grant_project_ids TEXT NOT NULL DEFAULT '{}',
  accepted_at DATETIME,
  removed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	for _, ddl := range []string{users, entities, memberships} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "Test",
		LastName:     "User",
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedEntity(t *testing.T, db *gorm.DB, ownerID uuid.UUID) *models.Entity {
	t.Helper()
	entity := &models.Entity{
		ID:      uuid.New(),
		Type:    enums.EntityTypeBorrower,
		Name:    "Acme Capital",
		OwnerID: ownerID,
	}
	require.NoError(t, db.Create(entity).Error)
	return entity
}

func seedMembership(t *testing.T, db *gorm.DB, m *models.Membership) *models.Membership {
	t.Helper()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

func activeMembership(entityID, userID uuid.UUID, role enums.MemberRole) *models.Membership {
	uid := userID
	return &models.Membership{
		ID:       uuid.New(),
		EntityID: entityID,
		UserID:   &uid,
		Role:     role,
		Status:   enums.MembershipStatusActive,
	}
}

func TestRepo_GetActiveByUser(t *testing.T) {
	db := setupMembershipsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	owner := seedUser(t, db, "owner-active@example.com")
	entity := seedEntity(t, db, owner.ID)
	seedMembership(t, db, activeMembership(entity.ID, owner.ID, enums.MemberRoleOwner))

	got, err := repo.GetActiveByUser(ctx, entity.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MemberRoleOwner, got.Role)

	_, err = repo.GetActiveByUser(ctx, entity.ID, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepo_ListByEntity_JoinsUserColumns(t *testing.T) {
	db := setupMembershipsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	owner := seedUser(t, db, "owner-list@example.com")
	member := seedUser(t, db, "member-list@example.com")
	entity := seedEntity(t, db, owner.ID)
	seedMembership(t, db, activeMembership(entity.ID, owner.ID, enums.MemberRoleOwner))
	seedMembership(t, db, activeMembership(entity.ID, member.ID, enums.MemberRoleMember))

	// Removed rows must not appear on the roster.
	removed := activeMembership(entity.ID, uuid.New(), enums.MemberRoleMember)
	removed.Status = enums.MembershipStatusRemoved
	seedMembership(t, db, removed)

	rows, err := repo.ListByEntity(ctx, entity.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byEmail := map[string]*EntityMemberDTO{}
	for _, row := range rows {
		byEmail[row.Email] = row
	}
	require.Contains(t, byEmail, "owner-list@example.com")
	assert.Equal(t, enums.MemberRoleOwner, byEmail["owner-list@example.com"].Role)
	assert.Equal(t, "Test", byEmail["owner-list@example.com"].FirstName)
	require.Contains(t, byEmail, "member-list@example.com")
	assert.Equal(t, enums.MemberRoleMember, byEmail["member-list@example.com"].Role)
}

func TestRepo_FindPendingByToken_And_Email(t *testing.T) {
	db := setupMembershipsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	owner := seedUser(t, db, "owner-token@example.com")
	entity := seedEntity(t, db, owner.ID)

	token := "tok-" + uuid.NewString()
	email := "Invitee-Token@Example.com"
	expires := time.Now().Add(24 * time.Hour)
	pending := seedMembership(t, db, &models.Membership{
		EntityID:        entity.ID,
		Role:            enums.MemberRoleMember,
		Status:          enums.MembershipStatusPending,
		InvitedEmail:    &email,
		InviteToken:     &token,
		InviteExpiresAt: &expires,
		InvitedByUserID: &owner.ID,
	})

	byToken, err := repo.FindPendingByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, byToken.ID)

	byEmail, err := repo.FindPendingByEmail(ctx, entity.ID, "invitee-token@example.com")
	require.NoError(t, err)
	assert.Equal(t, pending.ID, byEmail.ID)

	_, err = repo.FindPendingByToken(ctx, "missing-token")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepo_ActivateIfPending_RacesSafely(t *testing.T) {
	db := setupMembershipsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	owner := seedUser(t, db, "owner-cas@example.com")
	invitee := seedUser(t, db, "invitee-cas@example.com")
	entity := seedEntity(t, db, owner.ID)

	token := "tok-" + uuid.NewString()
	email := invitee.Email
	pending := seedMembership(t, db, &models.Membership{
		EntityID:     entity.ID,
		Role:         enums.MemberRoleMember,
		Status:       enums.MembershipStatusPending,
		InvitedEmail: &email,
		InviteToken:  &token,
	})

	acceptedAt := time.Now().UTC()
	affected, err := repo.ActivateIfPending(db, pending.ID, invitee.ID, acceptedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// Second accept loses the race: the status guard matches nothing.
	affected, err = repo.ActivateIfPending(db, pending.ID, invitee.ID, acceptedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	got, err := repo.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MembershipStatusActive, got.Status)
	assert.Nil(t, got.InviteToken)
	require.NotNil(t, got.UserID)
	assert.Equal(t, invitee.ID, *got.UserID)
}

func TestRepo_MarkRemovedTx_ClearsToken(t *testing.T) {
	db := setupMembershipsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	owner := seedUser(t, db, "owner-remove@example.com")
	member := seedUser(t, db, "member-remove@example.com")
	entity := seedEntity(t, db, owner.ID)
	membership := seedMembership(t, db, activeMembership(entity.ID, member.ID, enums.MemberRoleMember))

	removedAt := time.Now().UTC()
	require.NoError(t, repo.MarkRemovedTx(db, membership.ID, removedAt))

	got, err := repo.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MembershipStatusRemoved, got.Status)
	assert.Nil(t, got.InviteToken)
	require.NotNil(t, got.RemovedAt)
}

func TestRepo_CountActiveWithRolesTx(t *testing.T) {
	db := setupMembershipsTestDB(t)
	repo := NewRepo(db)

	owner := seedUser(t, db, "owner-count@example.com")
	second := seedUser(t, db, "owner2-count@example.com")
	member := seedUser(t, db, "member-count@example.com")
	entity := seedEntity(t, db, owner.ID)
	seedMembership(t, db, activeMembership(entity.ID, owner.ID, enums.MemberRoleOwner))
	seedMembership(t, db, activeMembership(entity.ID, second.ID, enums.MemberRoleOwner))
	seedMembership(t, db, activeMembership(entity.ID, member.ID, enums.MemberRoleMember))

	count, err := repo.CountActiveWithRolesTx(db, entity.ID, []enums.MemberRole{enums.MemberRoleOwner})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.CountActiveWithRolesTx(db, entity.ID, []enums.MemberRole{enums.MemberRoleOwner, enums.MemberRoleMember})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRepo_UserHasRole(t *testing.T) {
	db := setupMembershipsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	owner := seedUser(t, db, "owner-role@example.com")
	member := seedUser(t, db, "member-role@example.com")
	entity := seedEntity(t, db, owner.ID)
	seedMembership(t, db, activeMembership(entity.ID, owner.ID, enums.MemberRoleOwner))
	seedMembership(t, db, activeMembership(entity.ID, member.ID, enums.MemberRoleMember))

	ok, err := repo.UserHasRole(ctx, entity.ID, owner.ID, adminRoles)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UserHasRole(ctx, entity.ID, member.ID, adminRoles)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepo_GetMembershipsForUser_JoinsEntity(t *testing.T) {
	db := setupMembershipsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	user := seedUser(t, db, "multi-entity@example.com")
	first := seedEntity(t, db, user.ID)
	second := seedEntity(t, db, user.ID)
	seedMembership(t, db, activeMembership(first.ID, user.ID, enums.MemberRoleOwner))
	seedMembership(t, db, activeMembership(second.ID, user.ID, enums.MemberRoleMember))

	rows, err := repo.GetMembershipsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "Acme Capital", row.EntityName)
		assert.Equal(t, enums.EntityTypeBorrower, row.EntityType)
	}
}

func TestRepo_Create_EmptyGrantProjectIDsRoundTrips(t *testing.T) {
	db := setupMembershipsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	owner := seedUser(t, db, "owner-empty-grants@example.com")
	entity := seedEntity(t, db, owner.ID)
	m := activeMembership(entity.ID, owner.ID, enums.MemberRoleOwner)
	require.NoError(t, repo.Create(ctx, m))

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, got.GrantProjectIDs)
}
