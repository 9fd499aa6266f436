// Package propcache caches property reads and writes for the duration
// of one task. Reads fill the cache (misses are cached as misses, so
// dependency tracking sees them); writes stay in the cache until
// WriteAllDirty flushes them to the backing store at end of task.
//
// Mutable values (lists and maps) are also tracked by identity, so a
// value mutated in place after a read is detected as changed even
// though nothing called Set.
package propcache

import (
	"fmt"
	"log"
	"reflect"

	"github.com/weaveworld/goweave/pkg/worlddb"
)

// Entry is one cached property slot.
type Entry struct {
	Key worlddb.PropKey
	Val any
	// Found reports whether the property exists; a deleted or
	// never-present key keeps a negative entry.
	Found bool
	// Dirty marks the entry for write-back.
	Dirty bool
	// Mutable is set for list and map values, which get identity and
	// change tracking.
	Mutable bool

	// origval is a deep copy taken when the entry was last known to
	// match the store, for detecting in-place mutation.
	origval any
}

// HasChanged reports whether a clean mutable value no longer matches
// the copy taken at cache time. Dirty entries are already marked for
// write-back and report false.
func (ent *Entry) HasChanged() bool {
	if ent.Dirty || !ent.Mutable {
		return false
	}
	return !reflect.DeepEqual(ent.Val, ent.origval)
}

// Cache is a per-task property cache over a backing store.
type Cache struct {
	store   worlddb.PropStore
	propmap map[worlddb.PropKey]*Entry
	objmap  map[uintptr]*Entry
}

// New returns an empty cache over the given store.
func New(store worlddb.PropStore) *Cache {
	return &Cache{
		store:   store,
		propmap: map[worlddb.PropKey]*Entry{},
		objmap:  map[uintptr]*Entry{},
	}
}

// identityOf returns a stable identity for mutable values. Maps always
// have one; slices only when non-empty (an empty slice has no unique
// allocation to key on).
func identityOf(val any) (uintptr, bool) {
	switch v := val.(type) {
	case []any:
		if len(v) == 0 {
			return 0, false
		}
		return reflect.ValueOf(v).Pointer(), true
	case map[string]any:
		return reflect.ValueOf(v).Pointer(), true
	}
	return 0, false
}

func isMutable(val any) bool {
	switch val.(type) {
	case []any, map[string]any:
		return true
	}
	return false
}

// Get returns the entry for a key, or nil if the property does not
// exist. The key lands in deps either way; absence is a dependency
// too, since creating the property later must invalidate the caller.
func (c *Cache) Get(key worlddb.PropKey, deps worlddb.KeySet) (*Entry, error) {
	deps.Add(key)

	if ent, ok := c.propmap[key]; ok {
		if !ent.Found {
			return nil, nil
		}
		return ent, nil
	}

	val, found, err := c.store.GetProp(key)
	if err != nil {
		return nil, fmt.Errorf("propcache: get %s: %w", key, err)
	}
	ent := &Entry{Key: key, Val: val, Found: found}
	c.propmap[key] = ent
	if found {
		c.cacheIdentity(ent)
	}
	if !found {
		return nil, nil
	}
	return ent, nil
}

// cacheIdentity records origval and the identity mapping for a mutable
// value.
func (c *Cache) cacheIdentity(ent *Entry) {
	ent.Mutable = isMutable(ent.Val)
	if !ent.Mutable {
		ent.origval = nil
		return
	}
	ent.origval = worlddb.DeepCopy(ent.Val)
	if id, ok := identityOf(ent.Val); ok {
		c.objmap[id] = ent
	}
}

func (c *Cache) dropIdentity(ent *Entry) {
	if id, ok := identityOf(ent.Val); ok {
		if c.objmap[id] == ent {
			delete(c.objmap, id)
		}
	}
}

// GetByObject returns the entry whose live value is the given mutable
// object, or nil. Script code that mutates a list or map in place can
// be traced back to the property holding it.
func (c *Cache) GetByObject(val any) *Entry {
	id, ok := identityOf(val)
	if !ok {
		return nil
	}
	return c.objmap[id]
}

// Set stores a value into the cache, to be written back at flush time.
func (c *Cache) Set(key worlddb.PropKey, val any) error {
	if err := worlddb.CheckStorable(val); err != nil {
		return fmt.Errorf("propcache: set %s: %w", key, err)
	}
	ent, ok := c.propmap[key]
	if !ok {
		ent = &Entry{Key: key}
		c.propmap[key] = ent
	} else {
		c.dropIdentity(ent)
	}
	ent.Val = val
	ent.Found = true
	ent.Dirty = true
	ent.Mutable = isMutable(val)
	ent.origval = nil
	if id, idok := identityOf(val); idok {
		c.objmap[id] = ent
	}
	return nil
}

// Delete removes a property. Deleting an absent property still dirties
// the entry; the flush issues the store delete regardless.
func (c *Cache) Delete(key worlddb.PropKey) error {
	ent, ok := c.propmap[key]
	if !ok {
		ent = &Entry{Key: key}
		c.propmap[key] = ent
	} else {
		c.dropIdentity(ent)
	}
	ent.Val = nil
	ent.Found = false
	ent.Dirty = true
	ent.Mutable = false
	ent.origval = nil
	return nil
}

// NoteChangedEntries finds clean entries whose mutable values were
// changed in place, marks them dirty, and returns them. A second call
// returns nothing new.
func (c *Cache) NoteChangedEntries() []*Entry {
	var changed []*Entry
	for _, ent := range c.propmap {
		if ent.HasChanged() {
			ent.Dirty = true
			changed = append(changed, ent)
		}
	}
	return changed
}

// DirtyEntries returns the entries marked for write-back.
func (c *Cache) DirtyEntries() []*Entry {
	var dirty []*Entry
	for _, ent := range c.propmap {
		if ent.Dirty {
			dirty = append(dirty, ent)
		}
	}
	return dirty
}

// WriteAllDirty flushes every dirty entry: present values are upserted
// and absent ones deleted. Entries for non-writable stores are logged
// and skipped; call sites should never produce them. Flushed entries
// become clean, with a fresh change-tracking copy.
func (c *Cache) WriteAllDirty() error {
	for _, ent := range c.DirtyEntries() {
		if !ent.Key.Store.Writable() {
			log.Printf("propcache: dirty entry in non-writable store, skipping: %s", ent.Key)
			continue
		}
		if ent.Found {
			if err := c.store.SetProp(ent.Key, ent.Val); err != nil {
				return fmt.Errorf("propcache: flush %s: %w", ent.Key, err)
			}
		} else {
			if err := c.store.DeleteProp(ent.Key); err != nil {
				return fmt.Errorf("propcache: flush delete %s: %w", ent.Key, err)
			}
		}
		ent.Dirty = false
		if ent.Found {
			c.cacheIdentity(ent)
		}
	}
	return nil
}

// Final checks that the cache was flushed and releases its maps.
func (c *Cache) Final() {
	if len(c.DirtyEntries()) > 0 {
		log.Printf("propcache: finalizing while dirty")
	}
	c.propmap = nil
	c.objmap = nil
}
