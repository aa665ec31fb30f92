package symbols

import (
	"github.com/blacktop/fptrace/pkg/fingerprint"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of resolved addresses kept by a Cache
const DefaultCacheSize = 4096

// Cache memoizes a SymbolResolver by address. Misses (nil symbols) are
// cached too; errors are not.
type Cache struct {
	next  fingerprint.SymbolResolver
	cache *lru.Cache[uint64, *fingerprint.Symbol]
}

func NewCache(next fingerprint.SymbolResolver, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	lcache, err := lru.New[uint64, *fingerprint.Symbol](size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		next:  next,
		cache: lcache,
	}, nil
}

func (c *Cache) Resolve(pc uint64) (*fingerprint.Symbol, error) {
	if sym, ok := c.cache.Get(pc); ok {
		return sym, nil
	}
	sym, err := c.next.Resolve(pc)
	if err != nil {
		return nil, err
	}
	c.cache.Add(pc, sym)
	return sym, nil
}

// Len returns the number of cached addresses
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Purge drops every cached address
func (c *Cache) Purge() {
	c.cache.Purge()
}
