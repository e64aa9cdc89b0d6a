package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/kitalumni/backend/internal/domain"
)

// CachedDirectory keeps recent user lookups in memory. Every send, accept
// and chat message resolves both parties, mostly the same few users.
type CachedDirectory struct {
	next  domain.Directory
	users *ttlcache.Cache[uuid.UUID, domain.User]
}

func NewCachedDirectory(next domain.Directory, ttl time.Duration) *CachedDirectory {
	cache := ttlcache.New[uuid.UUID, domain.User](
		ttlcache.WithTTL[uuid.UUID, domain.User](ttl),
		ttlcache.WithDisableTouchOnHit[uuid.UUID, domain.User](),
	)
	go cache.Start()

	return &CachedDirectory{
		next:  next,
		users: cache,
	}
}

func (d *CachedDirectory) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if item := d.users.Get(id); item != nil {
		user := item.Value()
		return &user, nil
	}

	user, err := d.next.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.users.Set(id, *user, ttlcache.DefaultTTL)
	return user, nil
}

func (d *CachedDirectory) ListUsersByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	return d.next.ListUsersByRole(ctx, role)
}

func (d *CachedDirectory) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	if err := d.next.SetOnline(ctx, id, online); err != nil {
		return err
	}
	d.users.Delete(id)
	return nil
}

func (d *CachedDirectory) ResetPresence(ctx context.Context) error {
	if err := d.next.ResetPresence(ctx); err != nil {
		return err
	}
	d.users.DeleteAll()
	return nil
}

// Stop ends the expiry loop.
func (d *CachedDirectory) Stop() {
	d.users.Stop()
}
