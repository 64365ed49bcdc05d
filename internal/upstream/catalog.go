package upstream

import (
	"context"
	"fmt"
	"net/url"

	"bookfront/internal/models"
)

const keyCatalog = "catalog:%s"

// CatalogClient fetches the ordered catalog snapshot of a tenant.
type CatalogClient struct {
	*Client
}

func NewCatalogClient(c *Client) *CatalogClient {
	return &CatalogClient{Client: c}
}

func (c *CatalogClient) FetchCatalog(ctx context.Context, tenantID string) ([]models.BookableItem, error) {
	endpoint := fmt.Sprintf("%s/tenants/%s/items", c.baseURL, url.PathEscape(tenantID))
	cacheKey := fmt.Sprintf(keyCatalog, tenantID)
	var wrap struct {
		Items []models.BookableItem `json:"items"`
	}

	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Items, nil
	}

	if err := c.getJSON(ctx, endpoint, &wrap); err != nil {
		return nil, fmt.Errorf("fetch catalog for %s: %w", tenantID, err)
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Items, nil
}

// Invalidate drops the cached snapshot, e.g. after a lost seat race.
func (c *CatalogClient) Invalidate(ctx context.Context, tenantID string) {
	c.dropCache(ctx, fmt.Sprintf(keyCatalog, tenantID))
}
