package grants

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
)

func setupGrantsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
CREATE TABLE IF NOT EXISTS grants (
  id TEXT PRIMARY KEY,
  entity_id TEXT NOT NULL,
  project_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  path TEXT NOT NULL,
  kind TEXT NOT NULL,
  granted_by_user_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  entity_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  status TEXT NOT NULL,
  target_amount TEXT,
  created_by TEXT,
  archived_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
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
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedGrant(t *testing.T, db *gorm.DB, entityID, projectID, userID uuid.UUID, path string, kind enums.GrantKind) *models.Grant {
	t.Helper()
	g := &models.Grant{
		ID:        uuid.New(),
		EntityID:  entityID,
		ProjectID: projectID,
		UserID:    userID,
		Path:      path,
		Kind:      kind,
	}
	require.NoError(t, db.Create(g).Error)
	return g
}

func TestGrantRepo_ListByProjectUser(t *testing.T) {
	db := setupGrantsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	entityID, projectID, userID := uuid.New(), uuid.New(), uuid.New()
	seedGrant(t, db, entityID, projectID, userID, "docs", enums.GrantKindFolder)
	seedGrant(t, db, entityID, projectID, userID, "report.pdf", enums.GrantKindFile)
	seedGrant(t, db, entityID, uuid.New(), userID, "other-project.pdf", enums.GrantKindFile)
	seedGrant(t, db, entityID, projectID, uuid.New(), "other-user.pdf", enums.GrantKindFile)

	rows, err := repo.ListByProjectUser(ctx, projectID, userID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestGrantRepo_DeleteAllForUserTx_CascadesAcrossProjects(t *testing.T) {
	db := setupGrantsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	entityID, userID := uuid.New(), uuid.New()
	projectA, projectB := uuid.New(), uuid.New()
	seedGrant(t, db, entityID, projectA, userID, "a", enums.GrantKindFolder)
	seedGrant(t, db, entityID, projectB, userID, "b", enums.GrantKindFolder)
	other := seedGrant(t, db, entityID, projectA, uuid.New(), "keep", enums.GrantKindFolder)

	deleted, err := repo.DeleteAllForUserTx(db, entityID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := repo.ListByEntityUser(ctx, entityID, userID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	kept, err := repo.ListByProjectUser(ctx, projectA, other.UserID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestGrantRepo_DeleteByPathsTx(t *testing.T) {
	db := setupGrantsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	entityID, projectID, userID := uuid.New(), uuid.New(), uuid.New()
	seedGrant(t, db, entityID, projectID, userID, "docs", enums.GrantKindFolder)
	seedGrant(t, db, entityID, projectID, userID, "report.pdf", enums.GrantKindFile)

	deleted, err := repo.DeleteByPathsTx(db, projectID, userID, []string{"docs", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	rows, err := repo.ListByProjectUser(ctx, projectID, userID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "report.pdf", rows[0].Path)
}

func TestGrantRepo_UserIsProjectOwner(t *testing.T) {
	db := setupGrantsTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	entityID, ownerID, memberID := uuid.New(), uuid.New(), uuid.New()
	projectID := uuid.New()
	require.NoError(t, db.Create(&models.Project{
		ID:       projectID,
		EntityID: entityID,
		Name:     "Bridge Loan",
		Status:   enums.ProjectStatusActive,
	}).Error)

	memberships := []*models.Membership{
		{ID: uuid.New(), EntityID: entityID, UserID: &ownerID, Role: enums.MemberRoleOwner, Status: enums.MembershipStatusActive},
		{ID: uuid.New(), EntityID: entityID, UserID: &memberID, Role: enums.MemberRoleMember, Status: enums.MembershipStatusActive},
	}
	for _, m := range memberships {
		require.NoError(t, db.Create(m).Error)
	}

	ok, err := repo.UserIsProjectOwner(ctx, projectID, ownerID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UserIsProjectOwner(ctx, projectID, memberID)
	require.NoError(t, err)
	assert.False(t, ok)

	// Removed owners lose the bypass.
	require.NoError(t, db.Model(&models.Membership{}).
		Where("user_id = ?", ownerID).
		Update("status", enums.MembershipStatusRemoved).Error)
	ok, err = repo.UserIsProjectOwner(ctx, projectID, ownerID)
	require.NoError(t, err)
	assert.False(t, ok)
}
