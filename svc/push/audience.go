package push

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/pushkit/pkg/pg"
)

// PostgresAudience reads the podcasts and podcast_follows tables.
type PostgresAudience struct {
	db pg.DB
}

var _ Audience = (*PostgresAudience)(nil)

func NewPostgresAudience(db pg.DB) *PostgresAudience {
	return &PostgresAudience{db: db}
}

func (a *PostgresAudience) PodcastOwner(ctx context.Context, tenantID, podcastID string) (string, error) {
	var owner string
	err := a.db.QueryRow(ctx,
		`SELECT owner_id FROM podcasts WHERE tenant_id = $1 AND id = $2`,
		tenantID, podcastID,
	).Scan(&owner)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", fmt.Errorf("%w: podcast %s", ErrNotFound, podcastID)
		}
		return "", fmt.Errorf("get podcast owner: %w", err)
	}
	return owner, nil
}

func (a *PostgresAudience) OwnedPodcasts(ctx context.Context, tenantID, ownerID string) ([]string, error) {
	rows, err := a.db.Query(ctx,
		`SELECT id FROM podcasts WHERE tenant_id = $1 AND owner_id = $2 ORDER BY id`,
		tenantID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list owned podcasts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan owned podcasts: %w", err)
	}
	return ids, nil
}

func (a *PostgresAudience) Followers(ctx context.Context, tenantID string, podcastIDs []string) ([]string, error) {
	if len(podcastIDs) == 0 {
		return nil, nil
	}
	rows, err := a.db.Query(ctx, `
		SELECT DISTINCT f.user_id
		FROM podcast_follows f
		JOIN podcasts p ON p.id = f.podcast_id
		WHERE p.tenant_id = $1 AND f.podcast_id = ANY($2)
		ORDER BY f.user_id`,
		tenantID, podcastIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan followers: %w", err)
	}
	return ids, nil
}

type memoryPodcast struct {
	tenantID  string
	ownerID   string
	followers []string
}

// MemoryAudience is an in-process Audience.
type MemoryAudience struct {
	mu       sync.RWMutex
	podcasts map[string]*memoryPodcast
}

var _ Audience = (*MemoryAudience)(nil)

func NewMemoryAudience() *MemoryAudience {
	return &MemoryAudience{podcasts: make(map[string]*memoryPodcast)}
}

// AddPodcast registers a podcast owned by ownerID.
func (a *MemoryAudience) AddPodcast(tenantID, podcastID, ownerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.podcasts[podcastID] = &memoryPodcast{tenantID: tenantID, ownerID: ownerID}
}

// Follow makes userID a follower of podcastID.
func (a *MemoryAudience) Follow(podcastID, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.podcasts[podcastID]; ok && !slices.Contains(p.followers, userID) {
		p.followers = append(p.followers, userID)
	}
}

func (a *MemoryAudience) PodcastOwner(_ context.Context, tenantID, podcastID string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.podcasts[podcastID]
	if !ok || p.tenantID != tenantID {
		return "", fmt.Errorf("%w: podcast %s", ErrNotFound, podcastID)
	}
	return p.ownerID, nil
}

func (a *MemoryAudience) OwnedPodcasts(_ context.Context, tenantID, ownerID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var ids []string
	for id, p := range a.podcasts {
		if p.tenantID == tenantID && p.ownerID == ownerID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (a *MemoryAudience) Followers(_ context.Context, tenantID string, podcastIDs []string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var ids []string
	for _, id := range podcastIDs {
		if p, ok := a.podcasts[id]; ok && p.tenantID == tenantID {
			ids = append(ids, p.followers...)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}
