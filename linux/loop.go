package linux

import (
	"time"

	"github.com/patrickmn/go-cache"
	"machinerun.io/diskprov"
)

const loopCacheKey = "loopdevices"

type cachingLoopLister struct {
	ll    diskprov.LoopLister
	cache *cache.Cache
}

// CachingLoopLister wraps ll so that the loop table is read at most once per
// ttl. A ttl of zero returns ll unchanged. The cache belongs to the returned
// value; pass it to one Registry through diskprov.Options.Loops.
func CachingLoopLister(ll diskprov.LoopLister, ttl time.Duration) diskprov.LoopLister {
	if ttl <= 0 {
		return ll
	}

	return &cachingLoopLister{
		ll:    ll,
		cache: cache.New(ttl, 2*ttl), //nolint:gomnd
	}
}

func (c *cachingLoopLister) LoopDevices() ([]diskprov.LoopDevice, error) {
	type lresult struct {
		devs []diskprov.LoopDevice
		err  error
	}

	if cached, found := c.cache.Get(loopCacheKey); found {
		ret := cached.(lresult)
		return ret.devs, ret.err
	}

	devs, err := c.ll.LoopDevices()
	c.cache.Set(loopCacheKey, lresult{devs: devs, err: err}, cache.DefaultExpiration)

	return devs, err
}

// Flush drops the cached table.
func (c *cachingLoopLister) Flush() {
	c.cache.Flush()
}
