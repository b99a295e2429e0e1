package order

import (
	"context"
	"fmt"
	"sync"

	"github.com/mergeeats/core/core/model"
)

// Catalog is the restaurant/menu collaborator consulted during order
// validation. The catalog service itself lives outside this core.
type Catalog interface {
	Restaurant(ctx context.Context, id string) (model.Restaurant, error)
	MenuItem(ctx context.Context, restaurantID, itemID string) (model.MenuItem, error)
}

// StaticCatalog is an in-memory Catalog used by the binary and tests.
type StaticCatalog struct {
	mu          sync.RWMutex
	restaurants map[string]model.Restaurant
	items       map[string]map[string]model.MenuItem
}

// NewStaticCatalog returns an empty catalog.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		restaurants: make(map[string]model.Restaurant),
		items:       make(map[string]map[string]model.MenuItem),
	}
}

// AddRestaurant registers or replaces a restaurant and its menu.
func (c *StaticCatalog) AddRestaurant(r model.Restaurant, menu []model.MenuItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restaurants[r.ID] = r
	m := make(map[string]model.MenuItem, len(menu))
	for _, it := range menu {
		m[it.ID] = it
	}
	c.items[r.ID] = m
}

func (c *StaticCatalog) Restaurant(_ context.Context, id string) (model.Restaurant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.restaurants[id]
	if !ok {
		return model.Restaurant{}, fmt.Errorf("restaurant %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (c *StaticCatalog) MenuItem(_ context.Context, restaurantID, itemID string) (model.MenuItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[restaurantID][itemID]
	if !ok {
		return model.MenuItem{}, fmt.Errorf("menu item %s: %w", itemID, ErrNotFound)
	}
	return it, nil
}
