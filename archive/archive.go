// Package archive defines the archive client contract the Revision
// Builder and History Walker consume (spec §6) and provides an
// in-memory fake implementation plus a bounded LRU existence cache,
// since no archive-client library is part of this system's scope —
// it is an external collaborator, referenced only through its
// interface.
package archive

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/svnarchive/loader/objecthash"
	"github.com/svnarchive/loader/revision"
)

// Snapshot is a single-branch pointer at the end of a visit: branch
// "HEAD" targeting the final revision id.
type Snapshot struct {
	ID         objecthash.ID
	RevisionID objecthash.ID
}

// Client is the archive collaborator's full surface (spec §6).
type Client interface {
	revision.Archive
	SnapshotAdd(s Snapshot) error
	OriginVisitUpdate(origin string, visit int64, status string, snapshotID objecthash.ID) error
}

// Dial would return a Client backed by a real archive-storage backend,
// which is explicitly outside this system's scope (spec.md §1) — no
// such client library appears anywhere in this module's dependency
// pack. Production deployments link a Client implementation of their
// own and never call this function; it exists so main's wiring compiles
// and fails loudly rather than silently running against nothing.
func Dial() (Client, error) {
	return nil, fmt.Errorf("archive: no archive backend configured; link a Client implementation")
}

// Fake is an in-memory Client used by tests and by svnloader's
// --dryrun mode; it never rejects a submission.
type Fake struct {
	mu         sync.Mutex
	blobs      map[objecthash.ID][]byte
	dirs       map[objecthash.ID][]byte
	revisions  map[objecthash.ID][]byte
	snapshots  []Snapshot
	visitLog   []string
}

// NewFake returns an empty Fake archive.
func NewFake() *Fake {
	return &Fake{
		blobs:     make(map[objecthash.ID][]byte),
		dirs:      make(map[objecthash.ID][]byte),
		revisions: make(map[objecthash.ID][]byte),
	}
}

func (f *Fake) ContentMissing(ids []objecthash.ID) ([]objecthash.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var missing []objecthash.ID
	for _, id := range ids {
		if _, ok := f.blobs[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (f *Fake) ContentAdd(blobs []revision.Blob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range blobs {
		f.blobs[b.ID] = b.Content
	}
	return nil
}

func (f *Fake) DirectoryMissing(ids []objecthash.ID) ([]objecthash.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var missing []objecthash.ID
	for _, id := range ids {
		if _, ok := f.dirs[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (f *Fake) DirectoryAdd(dirs []revision.Dir) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range dirs {
		f.dirs[d.ID] = d.Body
	}
	return nil
}

func (f *Fake) RevisionMissing(ids []objecthash.ID) ([]objecthash.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var missing []objecthash.ID
	for _, id := range ids {
		if _, ok := f.revisions[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (f *Fake) RevisionAdd(id objecthash.ID, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revisions[id] = body
	return nil
}

func (f *Fake) SnapshotAdd(s Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, s)
	return nil
}

func (f *Fake) OriginVisitUpdate(origin string, visit int64, status string, snapshotID objecthash.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visitLog = append(f.visitLog, status)
	return nil
}

// Snapshots returns every snapshot submitted so far, for assertions.
func (f *Fake) Snapshots() []Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Snapshot, len(f.snapshots))
	copy(out, f.snapshots)
	return out
}

// HasRevision reports whether id was ever added.
func (f *Fake) HasRevision(id objecthash.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.revisions[id]
	return ok
}

// DefaultRetryAttempts and DefaultRetryBaseDelay bound RetryingClient's
// backoff: spec §7 requires ArchiveError to be "retried with
// exponential backoff up to a bounded number of attempts, then fatal."
const (
	DefaultRetryAttempts  = 5
	DefaultRetryBaseDelay = 250 * time.Millisecond
)

// RetryingClient wraps a Client, retrying a failing call with bounded
// exponential backoff before giving up. The final error, if every
// attempt fails, is returned unwrapped so the caller still sees the
// real cause it wraps as an ArchiveError.
type RetryingClient struct {
	Client
	Attempts  int
	BaseDelay time.Duration
}

// NewRetryingClient wraps inner with the default attempt count and
// base delay.
func NewRetryingClient(inner Client) *RetryingClient {
	return &RetryingClient{Client: inner, Attempts: DefaultRetryAttempts, BaseDelay: DefaultRetryBaseDelay}
}

func (c *RetryingClient) retry(fn func() error) error {
	delay := c.BaseDelay
	var err error
	for attempt := 1; attempt <= c.Attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == c.Attempts {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

func (c *RetryingClient) ContentMissing(ids []objecthash.ID) ([]objecthash.ID, error) {
	var out []objecthash.ID
	err := c.retry(func() error {
		var innerErr error
		out, innerErr = c.Client.ContentMissing(ids)
		return innerErr
	})
	return out, err
}

func (c *RetryingClient) ContentAdd(blobs []revision.Blob) error {
	return c.retry(func() error { return c.Client.ContentAdd(blobs) })
}

func (c *RetryingClient) DirectoryMissing(ids []objecthash.ID) ([]objecthash.ID, error) {
	var out []objecthash.ID
	err := c.retry(func() error {
		var innerErr error
		out, innerErr = c.Client.DirectoryMissing(ids)
		return innerErr
	})
	return out, err
}

func (c *RetryingClient) DirectoryAdd(dirs []revision.Dir) error {
	return c.retry(func() error { return c.Client.DirectoryAdd(dirs) })
}

func (c *RetryingClient) RevisionMissing(ids []objecthash.ID) ([]objecthash.ID, error) {
	var out []objecthash.ID
	err := c.retry(func() error {
		var innerErr error
		out, innerErr = c.Client.RevisionMissing(ids)
		return innerErr
	})
	return out, err
}

func (c *RetryingClient) RevisionAdd(id objecthash.ID, body []byte) error {
	return c.retry(func() error { return c.Client.RevisionAdd(id, body) })
}

func (c *RetryingClient) SnapshotAdd(s Snapshot) error {
	return c.retry(func() error { return c.Client.SnapshotAdd(s) })
}

func (c *RetryingClient) OriginVisitUpdate(origin string, visit int64, status string, snapshotID objecthash.ID) error {
	return c.retry(func() error { return c.Client.OriginVisitUpdate(origin, visit, status, snapshotID) })
}

// DefaultExistenceCacheCapacity bounds CachingClient's two LRUs.
const DefaultExistenceCacheCapacity = 4096

// CachingClient wraps a Client with a bounded existence cache (spec
// §9: "client-side caching of recently-seen identifiers is permitted
// to elide redundant queries"), filtering Missing queries down to ids
// not already known-present and recording every id the wrapped client
// confirms present, whether via a Missing query or a later Add.
type CachingClient struct {
	Client
	blobs *ExistenceCache
	dirs  *ExistenceCache
}

// NewCachingClient wraps inner with two LRUs of the given capacity,
// one for blobs and one for directories.
func NewCachingClient(inner Client, capacity int) *CachingClient {
	return &CachingClient{Client: inner, blobs: NewExistenceCache(capacity), dirs: NewExistenceCache(capacity)}
}

func (c *CachingClient) ContentMissing(ids []objecthash.ID) ([]objecthash.ID, error) {
	toQuery := c.blobs.FilterMissing(ids)
	if len(toQuery) == 0 {
		return nil, nil
	}
	missing, err := c.Client.ContentMissing(toQuery)
	if err != nil {
		return nil, err
	}
	missingSet := idSet(missing)
	for _, id := range toQuery {
		if !missingSet[id] {
			c.blobs.Record(id)
		}
	}
	return missing, nil
}

func (c *CachingClient) ContentAdd(blobs []revision.Blob) error {
	if err := c.Client.ContentAdd(blobs); err != nil {
		return err
	}
	for _, b := range blobs {
		c.blobs.Record(b.ID)
	}
	return nil
}

func (c *CachingClient) DirectoryMissing(ids []objecthash.ID) ([]objecthash.ID, error) {
	toQuery := c.dirs.FilterMissing(ids)
	if len(toQuery) == 0 {
		return nil, nil
	}
	missing, err := c.Client.DirectoryMissing(toQuery)
	if err != nil {
		return nil, err
	}
	missingSet := idSet(missing)
	for _, id := range toQuery {
		if !missingSet[id] {
			c.dirs.Record(id)
		}
	}
	return missing, nil
}

func (c *CachingClient) DirectoryAdd(dirs []revision.Dir) error {
	if err := c.Client.DirectoryAdd(dirs); err != nil {
		return err
	}
	for _, d := range dirs {
		c.dirs.Record(d.ID)
	}
	return nil
}

func idSet(ids []objecthash.ID) map[objecthash.ID]bool {
	m := make(map[objecthash.ID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// ExistenceCache is a bounded LRU over recently-seen object ids,
// eliding redundant existence queries (spec §9: "client-side caching
// of recently-seen identifiers is permitted to elide redundant
// queries... the client cache is bounded").
type ExistenceCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[objecthash.ID]*list.Element
}

// NewExistenceCache returns a cache holding up to capacity identifiers.
func NewExistenceCache(capacity int) *ExistenceCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &ExistenceCache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[objecthash.ID]*list.Element),
	}
}

// Seen reports whether id was recently recorded as present.
func (c *ExistenceCache) Seen(id objecthash.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[id]
	if !ok {
		return false
	}
	c.ll.MoveToFront(el)
	return true
}

// Record marks id as present, evicting the least-recently-used entry
// if the cache is full.
func (c *ExistenceCache) Record(id objecthash.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[id]; ok {
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(id)
	c.index[id] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(objecthash.ID))
		}
	}
}

// FilterMissing returns the ids not recently recorded as present,
// which are the only ones that need an actual archive query; callers
// should query the archive for those and Record every id the archive
// reports present.
func (c *ExistenceCache) FilterMissing(ids []objecthash.ID) []objecthash.ID {
	var toQuery []objecthash.ID
	for _, id := range ids {
		if !c.Seen(id) {
			toQuery = append(toQuery, id)
		}
	}
	return toQuery
}
