package grants

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/paramvora-capmatch/capmatch-backend/pkg/db/models"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/enums"
	pkgerrors "github.com/paramvora-capmatch/capmatch-backend/pkg/errors"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/logger"
	"github.com/paramvora-capmatch/capmatch-backend/pkg/metrics"
)

// WildcardPath is the grant path covering every document in a project.
const WildcardPath = "*"

const (
	tierOwner = "owner"
	tierGrant = "grant"
	tierNone  = "none"
)

// Decision is the outcome of a document access check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Tier    string `json:"tier"`
}

type grantReader interface {
	ListByProjectUser(ctx context.Context, projectID, userID uuid.UUID) ([]*models.Grant, error)
	UserIsProjectOwner(ctx context.Context, projectID, userID uuid.UUID) (bool, error)
}

type cachedGrant struct {
	path string
	kind enums.GrantKind
}

// cacheEntry carries the loaded flag alongside the grants: an entry that
// exists but is not loaded never answers a check. "Not yet loaded" and
// "loaded, zero grants" must stay distinguishable or a cold cache would
// deny access the store would allow.
type cacheEntry struct {
	loaded bool
	grants []cachedGrant
}

// Resolver computes allow/deny decisions for (project, document, user)
// triples. Tier 1 is the unconditional owner bypass; tier 2 matches the
// user's explicit grants by exact path, folder prefix, or wildcard. Store
// failures on either tier degrade to denial.
type Resolver struct {
	repo    grantReader
	metrics *metrics.AccessMetrics
	logg    *logger.Logger

	mu    sync.RWMutex
	cache map[string]*cacheEntry
}

// NewResolver builds a resolver. Metrics and logger may be nil.
func NewResolver(repo grantReader, m *metrics.AccessMetrics, logg *logger.Logger) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("grant reader required")
	}
	return &Resolver{
		repo:    repo,
		metrics: m,
		logg:    logg,
		cache:   make(map[string]*cacheEntry),
	}, nil
}

func cacheKey(projectID, userID uuid.UUID) string {
	return projectID.String() + ":" + userID.String()
}

// CheckAccess decides whether the user may read the document at path within
// the project. Read-side store failures are logged and reported as a denial
// rather than an error.
func (r *Resolver) CheckAccess(ctx context.Context, projectID, userID uuid.UUID, documentPath string) (Decision, error) {
	if projectID == uuid.Nil || userID == uuid.Nil {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "project and user are required")
	}
	documentPath = strings.TrimSpace(documentPath)
	if documentPath == "" {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "document path is required")
	}

	isOwner, err := r.repo.UserIsProjectOwner(ctx, projectID, userID)
	if err != nil {
		r.denyOnStoreFailure(ctx, projectID, userID, "owner check failed", err)
		return Decision{Allowed: false, Tier: tierNone}, nil
	}
	if isOwner {
		r.metrics.IncAllowed(tierOwner)
		return Decision{Allowed: true, Tier: tierOwner}, nil
	}

	grants, err := r.loadGrants(ctx, projectID, userID)
	if err != nil {
		r.denyOnStoreFailure(ctx, projectID, userID, "grant load failed", err)
		return Decision{Allowed: false, Tier: tierNone}, nil
	}

	for _, g := range grants {
		if grantMatches(g, documentPath) {
			r.metrics.IncAllowed(tierGrant)
			return Decision{Allowed: true, Tier: tierGrant}, nil
		}
	}

	r.metrics.IncDenied(tierNone)
	return Decision{Allowed: false, Tier: tierNone}, nil
}

// loadGrants serves from the cache only when the entry is marked loaded;
// anything else goes to the store and populates the entry.
func (r *Resolver) loadGrants(ctx context.Context, projectID, userID uuid.UUID) ([]cachedGrant, error) {
	key := cacheKey(projectID, userID)

	r.mu.RLock()
	entry, ok := r.cache[key]
	if ok && entry.loaded {
		grants := entry.grants
		r.mu.RUnlock()
		return grants, nil
	}
	r.mu.RUnlock()

	rows, err := r.repo.ListByProjectUser(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}

	grants := make([]cachedGrant, 0, len(rows))
	for _, row := range rows {
		grants = append(grants, cachedGrant{path: row.Path, kind: row.Kind})
	}

	r.mu.Lock()
	r.cache[key] = &cacheEntry{loaded: true, grants: grants}
	r.mu.Unlock()
	return grants, nil
}

// Invalidate drops the cached grants for one (project, user) pair. Grant
// mutations call this so the next check re-reads the store.
func (r *Resolver) Invalidate(projectID, userID uuid.UUID) {
	r.mu.Lock()
	delete(r.cache, cacheKey(projectID, userID))
	r.mu.Unlock()
}

// InvalidateUser drops every cached entry for the user across projects.
// Used by the removal cascade, which deletes grants entity-wide.
func (r *Resolver) InvalidateUser(userID uuid.UUID) {
	suffix := ":" + userID.String()
	r.mu.Lock()
	for key := range r.cache {
		if strings.HasSuffix(key, suffix) {
			delete(r.cache, key)
		}
	}
	r.mu.Unlock()
}

func (r *Resolver) denyOnStoreFailure(ctx context.Context, projectID, userID uuid.UUID, msg string, err error) {
	r.metrics.IncDenied(tierNone)
	if r.logg == nil {
		return
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"project_id": projectID.String(),
		"user_id":    userID.String(),
	})
	r.logg.Error(logCtx, "access check degraded to denial: "+msg, err)
}

// grantMatches applies the three match rules: exact path, folder prefix,
// and the wildcard literal.
func grantMatches(g cachedGrant, documentPath string) bool {
	if g.path == WildcardPath {
		return true
	}
	if g.path == documentPath {
		return true
	}
	if g.kind == enums.GrantKindFolder && strings.HasPrefix(documentPath, strings.TrimSuffix(g.path, "/")+"/") {
		return true
	}
	return false
}
