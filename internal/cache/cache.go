// Package cache implements the In-Memory Cache (spec §4.2): a read-through,
// write-through layer wrapping the Content Store. Values are held via a
// size-bounded LRU standing in for soft/weak references, per the Design
// Notes' re-architecture guidance — "a value may disappear between two
// gets, forcing a re-read from the store; correctness must not depend on
// retention." No cache library appears anywhere in the retrieved example
// pack, so this is a deliberate standard-library (container/list + map)
// implementation rather than an adopted third-party cache.
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/jgwest/github-api-mirror/internal/store"
	"github.com/sirupsen/logrus"
)

// DefaultMaxEntries bounds the cache when the caller doesn't specify one.
// Proportional-to-memory sizing (per the Design Notes) is a deployment-time
// concern; this default is conservative enough for a single mirror process.
const DefaultMaxEntries = 50_000

type entry struct {
	key   string
	value interface{}
}

// Cache is a read-through/write-through wrapper around a *store.Store. It
// is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	store      *store.Store
	maxEntries int
	ll         *list.List
	elems      map[string]*list.Element
	log        logrus.FieldLogger
}

// New constructs a Cache over s, bounded to maxEntries (DefaultMaxEntries if
// <= 0).
func New(s *store.Store, maxEntries int, log logrus.FieldLogger) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{
		store:      s,
		maxEntries: maxEntries,
		ll:         list.New(),
		elems:      make(map[string]*list.Element),
		log:        log.WithField("component", "cache"),
	}
}

// get returns the cached value for key, if present and still live (it may
// have been evicted at any time, in which case this is a cache miss).
func (c *Cache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elems[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// set unconditionally populates the cache for key with value.
func (c *Cache) set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elems[key]; ok {
		el.Value.(*entry).value = value
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&entry{key: key, value: value})
	c.elems[key] = el
	for c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.elems, oldest.Value.(*entry).key)
	}
}

// invalidate drops key from the cache without touching the store. Not
// exposed publicly: the cache has "no invalidation API other than implicit
// overwrite" (spec §4.2); this exists only for PutRepository, which drops
// its entry because the store may have merged the write with fields it
// already held.
func (c *Cache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elems[key]; ok {
		c.ll.Remove(el)
		delete(c.elems, key)
	}
}

func issueKey(owner, repo string, number int) string {
	return "issue:" + store.IssueKey(owner, repo, number)
}

func repoKey(owner, repo string) string { return fmt.Sprintf("repo:%s/%s", owner, repo) }
func orgKey(name string) string         { return "org:" + name }
func userReposKey(login string) string  { return "userrepos:" + login }
func userKey(login string) string       { return "user:" + login }

// GetIssue is read-through: on a cache miss, it delegates to the store and
// populates the cache with the found value only (never the absent fact).
func (c *Cache) GetIssue(owner, repo string, number int) (*model.Issue, error) {
	key := issueKey(owner, repo, number)
	if v, ok := c.get(key); ok {
		issue := v.(model.Issue)
		return &issue, nil
	}
	issue, err := c.store.GetIssue(owner, repo, number)
	if err != nil {
		return nil, err
	}
	c.set(key, *issue)
	return issue, nil
}

// PutIssue is write-through: it always writes to the store first, then
// unconditionally populates the cache.
func (c *Cache) PutIssue(owner, repo string, issue model.Issue) error {
	if err := c.store.PutIssue(owner, repo, issue); err != nil {
		return err
	}
	c.set(issueKey(owner, repo, issue.Number), issue)
	return nil
}

func (c *Cache) GetRepository(owner, name string) (*model.Repository, error) {
	key := repoKey(owner, name)
	if v, ok := c.get(key); ok {
		r := v.(model.Repository)
		return &r, nil
	}
	r, err := c.store.GetRepository(owner, name)
	if err != nil {
		return nil, err
	}
	c.set(key, *r)
	return r, nil
}

func (c *Cache) PutRepository(repo model.Repository) error {
	if err := c.store.PutRepository(repo); err != nil {
		return err
	}
	// The store may have merged this write with a higher pre-existing
	// LastIssue (monotonicity); invalidate rather than cache our possibly
	// stale argument so the next read goes to the store.
	c.invalidate(repoKey(repo.Owner, repo.Name))
	return nil
}

func (c *Cache) GetOrganization(name string) (*model.Organization, error) {
	key := orgKey(name)
	if v, ok := c.get(key); ok {
		o := v.(model.Organization)
		return &o, nil
	}
	o, err := c.store.GetOrganization(name)
	if err != nil {
		return nil, err
	}
	c.set(key, *o)
	return o, nil
}

func (c *Cache) PutOrganization(org model.Organization) error {
	if err := c.store.PutOrganization(org); err != nil {
		return err
	}
	c.set(orgKey(org.Name), org)
	return nil
}

func (c *Cache) GetUserRepositories(login string) (*model.UserRepositories, error) {
	key := userReposKey(login)
	if v, ok := c.get(key); ok {
		ur := v.(model.UserRepositories)
		return &ur, nil
	}
	ur, err := c.store.GetUserRepositories(login)
	if err != nil {
		return nil, err
	}
	c.set(key, *ur)
	return ur, nil
}

func (c *Cache) PutUserRepositories(ur model.UserRepositories) error {
	if err := c.store.PutUserRepositories(ur); err != nil {
		return err
	}
	c.set(userReposKey(ur.Login), ur)
	return nil
}

func (c *Cache) GetUser(login string) (*model.User, error) {
	key := userKey(login)
	if v, ok := c.get(key); ok {
		u := v.(model.User)
		return &u, nil
	}
	u, err := c.store.GetUser(login)
	if err != nil {
		return nil, err
	}
	c.set(key, *u)
	return u, nil
}

func (c *Cache) PutUser(u model.User) error {
	if err := c.store.PutUser(u); err != nil {
		return err
	}
	c.set(userKey(u.Login), u)
	return nil
}

// Store returns the underlying Content Store, for components (the
// Background Scheduler, the Event Scanner) that need operations the cache
// does not wrap (scalars, change events, processed events, reconciliation).
func (c *Cache) Store() *store.Store { return c.store }
