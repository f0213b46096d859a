package pool

// BeforeConn installs fn to run after a database is looked up and before a
// connection is taken from it.
func (p *Pool) BeforeConn(fn func()) { p.beforeConn = fn }

// Evict drops namespace from the cache, closing its database.
func (p *Pool) Evict(namespace string) { p.cache.Remove(namespace) }
