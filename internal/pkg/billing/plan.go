package billing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Plan is a purchasable plan. VideoLimit is the number of videos per billing
// period.
type Plan struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	PriceID     string `yaml:"price_id" json:"-"`
	AmountCents int64  `yaml:"amount_cents" json:"amount_cents"`
	Currency    string `yaml:"currency" json:"currency"`
	Interval    string `yaml:"interval" json:"interval"`
	VideoLimit  int    `yaml:"video_limit" json:"video_limit"`
}

// DefaultPlans is the built in catalog. Price ids are filled from the
// environment at startup.
func DefaultPlans() []Plan {
	return []Plan{
		{ID: "basic", Name: "Basic", AmountCents: 1999, Currency: "usd", Interval: "month", VideoLimit: 4},
		{ID: "growth", Name: "Growth", AmountCents: 4999, Currency: "usd", Interval: "month", VideoLimit: 10},
		{ID: "professional", Name: "Professional", AmountCents: 9999, Currency: "usd", Interval: "month", VideoLimit: 20},
	}
}

// LoadPlansFile reads a YAML list of plans.
func LoadPlansFile(path string) ([]Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plans file %s: %w", path, err)
	}
	return doc.Plans, nil
}

// WithPrices sets provider price ids from prices, keyed by plan id. Plans
// not in prices keep the price id they have.
func WithPrices(plans []Plan, prices map[string]string) []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	for i := range out {
		if price, ok := prices[normalizePlan(out[i].ID)]; ok && price != "" {
			out[i].PriceID = price
		}
	}
	return out
}

// Catalog indexes plans by id and provider price id.
type Catalog struct {
	plans   []Plan
	byID    map[string]Plan
	byPrice map[string]Plan
}

// NewCatalog validates plans and builds a Catalog.
func NewCatalog(plans []Plan) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[string]Plan, len(plans)),
		byPrice: make(map[string]Plan, len(plans)),
	}
	for _, p := range plans {
		p.ID = normalizePlan(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("plan without id")
		}
		if p.VideoLimit < 0 {
			return nil, fmt.Errorf("plan %s: negative video limit", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("plan %s defined twice", p.ID)
		}
		if p.PriceID != "" {
			if other, dup := c.byPrice[p.PriceID]; dup {
				return nil, fmt.Errorf("price %s used by plans %s and %s", p.PriceID, other.ID, p.ID)
			}
			c.byPrice[p.PriceID] = p
		}
		c.byID[p.ID] = p
		c.plans = append(c.plans, p)
	}
	return c, nil
}

// Plan looks a plan up by id.
func (c *Catalog) Plan(id string) (Plan, bool) {
	p, ok := c.byID[normalizePlan(id)]
	return p, ok
}

// ByPriceID looks a plan up by provider price id.
func (c *Catalog) ByPriceID(priceID string) (Plan, bool) {
	p, ok := c.byPrice[priceID]
	return p, ok
}

// Plans returns the catalog in definition order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// resolve finds the plan for a provider subscription: the explicit plan id
// first, then the price id.
func (c *Catalog) resolve(planID, priceID string) (Plan, bool) {
	if planID != "" {
		if p, ok := c.Plan(planID); ok {
			return p, true
		}
	}
	return c.ByPriceID(priceID)
}

func normalizePlan(plan string) string {
	return strings.ToLower(strings.TrimSpace(plan))
}
