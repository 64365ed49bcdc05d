package upstream

import (
	"context"
	"fmt"
	"os"

	"bookfront/internal/models"

	"gopkg.in/yaml.v2"
)

// StaticCatalog serves catalog snapshots from a YAML file, for development
// and demos without a catalog service.
//
//	tenants:
//	  studio-1:
//	    - id: yoga
//	      full_price: 25
type StaticCatalog struct {
	tenants map[string][]models.BookableItem
}

func LoadStaticCatalog(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseStaticCatalog(data)
}

func ParseStaticCatalog(data []byte) (*StaticCatalog, error) {
	var file struct {
		Tenants map[string][]models.BookableItem `yaml:"tenants"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	for tenant, items := range file.Tenants {
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			if item.ID == "" {
				return nil, fmt.Errorf("tenant %s: catalog item without id", tenant)
			}
			if seen[item.ID] {
				return nil, fmt.Errorf("tenant %s: duplicate catalog item %s", tenant, item.ID)
			}
			seen[item.ID] = true
		}
	}
	return &StaticCatalog{tenants: file.Tenants}, nil
}

func (s *StaticCatalog) FetchCatalog(_ context.Context, tenantID string) ([]models.BookableItem, error) {
	items, ok := s.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}
	out := make([]models.BookableItem, len(items))
	copy(out, items)
	return out, nil
}
