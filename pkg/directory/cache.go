package directory

import (
	"context"
	"sync"
)

// Lister is the slice of the API gateway the cache needs.
type Lister interface {
	ListDepartments(ctx context.Context) ([]DepartmentRecord, error)
	ListGroups(ctx context.Context) ([]GroupRecord, error)
}

// Cache holds departments and groups for one workspace session. It is
// read-through: populated lazily on first access, returned as-is until
// Invalidate is called by a mutating operation. Never invalidated by time.
//
// Users are deliberately not cached here: the user population is too large
// and volatile, so user lookups always go through the gateway.
type Cache struct {
	lister Lister

	mu          sync.Mutex
	departments []DepartmentRecord
	groups      []GroupRecord
	deptsLoaded bool
	groupLoaded bool
}

func NewCache(lister Lister) *Cache {
	return &Cache{lister: lister}
}

func (c *Cache) Departments(ctx context.Context) ([]DepartmentRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.deptsLoaded {
		depts, err := c.lister.ListDepartments(ctx)
		if err != nil {
			return nil, err
		}
		c.departments = depts
		c.deptsLoaded = true
	}
	return c.departments, nil
}

func (c *Cache) Groups(ctx context.Context) ([]GroupRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.groupLoaded {
		groups, err := c.lister.ListGroups(ctx)
		if err != nil {
			return nil, err
		}
		c.groups = groups
		c.groupLoaded = true
	}
	return c.groups, nil
}

// Invalidate drops both cached sequences. The next access re-fetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.departments = nil
	c.groups = nil
	c.deptsLoaded = false
	c.groupLoaded = false
}
