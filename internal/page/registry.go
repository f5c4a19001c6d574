package page

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Registry holds the live pages. A page lives at most ttl after it was
// added; pages that expire or are pushed out by size are unloaded and
// closed, so a tab that never said goodbye still records its visit.
type Registry struct {
	pages *lru.LRU[string, *Page]
	wg    sync.WaitGroup
}

func NewRegistry(size int, ttl time.Duration) *Registry {
	r := &Registry{}
	r.pages = lru.NewLRU[string, *Page](size, r.evict, ttl)
	return r
}

// evict runs with the cache lock held.
func (r *Registry) evict(_ string, p *Page) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = p.Unload()
		p.Close()
	}()
}

func (r *Registry) Add(p *Page) {
	r.pages.Add(p.ID(), p)
}

func (r *Registry) Get(id string) (*Page, error) {
	p, ok := r.pages.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// Remove unloads and closes the page.
func (r *Registry) Remove(id string) bool {
	return r.pages.Remove(id)
}

func (r *Registry) Len() int {
	return r.pages.Len()
}

// Close unloads every page and waits for them to finish.
func (r *Registry) Close() {
	r.pages.Purge()
	r.wg.Wait()
}

// Wait blocks until pending evictions are done.
func (r *Registry) Wait() {
	r.wg.Wait()
}
