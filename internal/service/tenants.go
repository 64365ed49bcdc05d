package service

import (
	"fmt"
	"time"

	"bookfront/internal/config"
	"bookfront/internal/pricing"
	"bookfront/internal/timegrid"
)

// Tenant is a configured business with its resolved zone, currency and
// calendar axis.
type Tenant struct {
	ID       string
	Name     string
	Currency string
	Location *time.Location
	Axis     *timegrid.Axis
}

type TenantDirectory struct {
	tenants map[string]*Tenant
	order   []string
}

func NewTenantDirectory(cfgs []config.TenantConfig) (*TenantDirectory, error) {
	d := &TenantDirectory{tenants: make(map[string]*Tenant, len(cfgs))}
	for _, c := range cfgs {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", c.ID, err)
		}
		code, err := pricing.ParseCurrency(c.Currency)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", c.ID, err)
		}
		axis, err := timegrid.BuildAxis(timegrid.AxisConfig{Start: c.DayStart, End: c.DayEnd})
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", c.ID, err)
		}
		d.tenants[c.ID] = &Tenant{ID: c.ID, Name: c.Name, Currency: code, Location: loc, Axis: axis}
		d.order = append(d.order, c.ID)
	}
	return d, nil
}

func (d *TenantDirectory) Get(id string) (*Tenant, error) {
	t, ok := d.tenants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	return t, nil
}

func (d *TenantDirectory) List() []*Tenant {
	out := make([]*Tenant, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.tenants[id])
	}
	return out
}
