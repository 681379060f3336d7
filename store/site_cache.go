package store

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"hotspot/api/models"
)

// CachedSiteDirectory fronts a SiteDirectory with a short-lived in-process
// cache. Every tracked request resolves its site, so lookups by id and by
// tracking token are cached; owner listings are not.
type CachedSiteDirectory struct {
	next  SiteDirectory
	cache *cache.Cache
}

func NewCachedSiteDirectory(next SiteDirectory, ttl time.Duration) *CachedSiteDirectory {
	return &CachedSiteDirectory{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedSiteDirectory) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	key := "id:" + strconv.FormatInt(id, 10)
	if v, found := c.cache.Get(key); found {
		site := v.(models.Site)
		return &site, nil
	}
	site, err := c.next.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, *site)
	return site, nil
}

func (c *CachedSiteDirectory) GetSiteByTrackingID(ctx context.Context, trackingID string) (*models.Site, error) {
	key := "tracking:" + trackingID
	if v, found := c.cache.Get(key); found {
		site := v.(models.Site)
		return &site, nil
	}
	site, err := c.next.GetSiteByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, *site)
	return site, nil
}

func (c *CachedSiteDirectory) ListSitesByOwner(ctx context.Context, ownerID string) ([]models.Site, error) {
	return c.next.ListSitesByOwner(ctx, ownerID)
}
