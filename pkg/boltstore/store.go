package boltstore

import (
	"bytes"
	"fmt"
	"sort"

	bbolt "go.etcd.io/bbolt"

	"github.com/weaveworld/goweave/pkg/worlddb"
)

// Store is the persistent worlddb.WorldStore over a bbolt file. Every
// document kind gets its own bucket; properties share one bucket under
// composite keys. Writes go straight through; the per-task property
// cache above this layer absorbs read traffic during a command.
type Store struct {
	bolt *bbolt.DB
}

var _ worlddb.WorldStore = (*Store)(nil)

// Open opens or creates a bbolt database file and ensures all buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketMeta, bucketWorlds, bucketLocations, bucketLocKeys,
			bucketPlayers, bucketPlayState, bucketScopes,
			bucketInstances, bucketInstScope,
			bucketPortals, bucketPortLists, bucketProps,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if got := meta.Get(keyFormat); got != nil && string(got) != formatVersion {
			return fmt.Errorf("format version %q, want %q", got, formatVersion)
		}
		return meta.Put(keyFormat, []byte(formatVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: init %s: %w", path, err)
	}
	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// --- properties ---

// GetProp implements worlddb.PropStore.
func (s *Store) GetProp(key worlddb.PropKey) (any, bool, error) {
	var val any
	var found bool
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketProps).Get(propKey(key))
		if data == nil {
			return nil
		}
		decoded, err := decodeProp(data)
		if err != nil {
			return err
		}
		val, found = decoded, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("boltstore: get %s: %w", key, err)
	}
	return val, found, nil
}

// SetProp implements worlddb.PropStore.
func (s *Store) SetProp(key worlddb.PropKey, val any) error {
	if !key.Store.Writable() {
		return worlddb.ErrNotWritable
	}
	if err := worlddb.CheckStorable(val); err != nil {
		return err
	}
	return s.putProp(key, val)
}

// DeleteProp implements worlddb.PropStore.
func (s *Store) DeleteProp(key worlddb.PropKey) error {
	if !key.Store.Writable() {
		return worlddb.ErrNotWritable
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProps).Delete(propKey(key))
	})
	if err != nil {
		return fmt.Errorf("boltstore: delete %s: %w", key, err)
	}
	return nil
}

// SeedProp installs a property without the writability check. The world
// loader uses this to write authored world-level content.
func (s *Store) SeedProp(key worlddb.PropKey, val any) error {
	if err := worlddb.CheckStorable(val); err != nil {
		return err
	}
	return s.putProp(key, val)
}

func (s *Store) putProp(key worlddb.PropKey, val any) error {
	data, err := encodeProp(val)
	if err != nil {
		return fmt.Errorf("boltstore: encode %s: %w", key, err)
	}
	err = s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProps).Put(propKey(key), data)
	})
	if err != nil {
		return fmt.Errorf("boltstore: put %s: %w", key, err)
	}
	return nil
}

// ClearWorldProps removes every authored property of one world, in
// both the world and world-player namespaces. The loader calls this
// before re-importing a world file.
func (s *Store) ClearWorldProps(wid worlddb.WorldID) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketProps)
		for _, kind := range []worlddb.StoreKind{worlddb.WorldProp, worlddb.WPlayerProp} {
			prefix := compose(kind.String(), string(wid), "")
			cur := bucket.Cursor()
			for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
				if err := cur.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: clear props of %s: %w", wid, err)
	}
	return nil
}

// DropProp removes a property in any namespace, without the writability
// check. Loader use.
func (s *Store) DropProp(key worlddb.PropKey) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProps).Delete(propKey(key))
	})
	if err != nil {
		return fmt.Errorf("boltstore: drop %s: %w", key, err)
	}
	return nil
}

// ClearProps removes every property under (kind, id1, id2). Loader use.
func (s *Store) ClearProps(kind worlddb.StoreKind, id1, id2 string) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketProps)
		prefix := append(compose(kind.String(), id1, id2), sep)
		cur := bucket.Cursor()
		for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
			if err := cur.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: clear %s %s %s: %w", kind, id1, id2, err)
	}
	return nil
}

// --- documents ---

func (s *Store) getDoc(bucket []byte, key []byte, doc any) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return worlddb.ErrNotFound
		}
		return decodeDoc(data, doc)
	})
}

func (s *Store) putDoc(bucket []byte, key []byte, doc any) error {
	data, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

// World implements worlddb.WorldStore.
func (s *Store) World(wid worlddb.WorldID) (*worlddb.World, error) {
	var w worlddb.World
	if err := s.getDoc(bucketWorlds, []byte(wid), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// WorldByName finds a world by its display name, scanning the world
// bucket. Loader use; names are not indexed.
func (s *Store) WorldByName(name string) (*worlddb.World, error) {
	var found *worlddb.World
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketWorlds).ForEach(func(k, v []byte) error {
			var w worlddb.World
			if err := decodeDoc(v, &w); err != nil {
				return err
			}
			if w.Name == name && found == nil {
				found = &w
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: world named %q: %w", name, err)
	}
	if found == nil {
		return nil, worlddb.ErrNotFound
	}
	return found, nil
}

// PutWorld stores a world definition. Loader use.
func (s *Store) PutWorld(w *worlddb.World) error {
	return s.putDoc(bucketWorlds, []byte(w.WID), w)
}

// Location implements worlddb.WorldStore.
func (s *Store) Location(locid worlddb.LocID) (*worlddb.Location, error) {
	var loc worlddb.Location
	if err := s.getDoc(bucketLocations, []byte(locid), &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// LocationByKey implements worlddb.WorldStore via the slug index.
func (s *Store) LocationByKey(wid worlddb.WorldID, key string) (*worlddb.Location, error) {
	var locid []byte
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		locid = tx.Bucket(bucketLocKeys).Get(locKey(wid, key))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if locid == nil {
		return nil, worlddb.ErrNotFound
	}
	return s.Location(worlddb.LocID(locid))
}

// PutLocation stores a location and indexes its slug. Loader use.
func (s *Store) PutLocation(loc *worlddb.Location) error {
	data, err := encodeDoc(loc)
	if err != nil {
		return err
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketLocations).Put([]byte(loc.LocID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketLocKeys).Put(locKey(loc.WID, loc.Key), []byte(loc.LocID))
	})
}

// Player implements worlddb.WorldStore.
func (s *Store) Player(uid worlddb.PlayerID) (*worlddb.Player, error) {
	var p worlddb.Player
	if err := s.getDoc(bucketPlayers, []byte(uid), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PlayerByName finds a player account by display name, scanning the
// player bucket. Loader use.
func (s *Store) PlayerByName(name string) (*worlddb.Player, error) {
	var found *worlddb.Player
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPlayers).ForEach(func(k, v []byte) error {
			var p worlddb.Player
			if err := decodeDoc(v, &p); err != nil {
				return err
			}
			if p.Name == name && found == nil {
				found = &p
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: player named %q: %w", name, err)
	}
	if found == nil {
		return nil, worlddb.ErrNotFound
	}
	return found, nil
}

// SetPlayer implements worlddb.WorldStore.
func (s *Store) SetPlayer(p *worlddb.Player) error {
	return s.putDoc(bucketPlayers, []byte(p.UID), p)
}

// PlayState implements worlddb.WorldStore.
func (s *Store) PlayState(uid worlddb.PlayerID) (*worlddb.PlayState, error) {
	var ps worlddb.PlayState
	if err := s.getDoc(bucketPlayState, []byte(uid), &ps); err != nil {
		return nil, err
	}
	return &ps, nil
}

// SetPlayState implements worlddb.WorldStore.
func (s *Store) SetPlayState(ps *worlddb.PlayState) error {
	return s.putDoc(bucketPlayState, []byte(ps.UID), ps)
}

// PlayersInLocation implements worlddb.WorldStore by scanning the
// playstate bucket. Populations are small; no index is kept.
func (s *Store) PlayersInLocation(iid worlddb.InstanceID, locid worlddb.LocID) ([]worlddb.PlayerID, error) {
	var uids []worlddb.PlayerID
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPlayState).ForEach(func(k, v []byte) error {
			var ps worlddb.PlayState
			if err := decodeDoc(v, &ps); err != nil {
				return err
			}
			if ps.IID == iid && ps.LocID == locid {
				uids = append(uids, ps.UID)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: players in %s/%s: %w", iid, locid, err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// Instance implements worlddb.WorldStore.
func (s *Store) Instance(iid worlddb.InstanceID) (*worlddb.Instance, error) {
	var inst worlddb.Instance
	if err := s.getDoc(bucketInstances, []byte(iid), &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// InstanceForScope implements worlddb.WorldStore via the scope index.
func (s *Store) InstanceForScope(wid worlddb.WorldID, sid worlddb.ScopeID) (*worlddb.Instance, error) {
	var iid []byte
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		iid = tx.Bucket(bucketInstScope).Get(instScopeKey(wid, sid))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if iid == nil {
		return nil, worlddb.ErrNotFound
	}
	return s.Instance(worlddb.InstanceID(iid))
}

// CreateInstance implements worlddb.WorldStore, keeping the scope index
// in step.
func (s *Store) CreateInstance(inst *worlddb.Instance) error {
	data, err := encodeDoc(inst)
	if err != nil {
		return err
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketInstances).Put([]byte(inst.IID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketInstScope).Put(instScopeKey(inst.WID, inst.SID), []byte(inst.IID))
	})
}

// Scope implements worlddb.WorldStore.
func (s *Store) Scope(sid worlddb.ScopeID) (*worlddb.Scope, error) {
	var sc worlddb.Scope
	if err := s.getDoc(bucketScopes, []byte(sid), &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// PutScope stores a scope document.
func (s *Store) PutScope(sc *worlddb.Scope) error {
	return s.putDoc(bucketScopes, []byte(sc.SID), sc)
}

// Portal implements worlddb.WorldStore.
func (s *Store) Portal(portid worlddb.PortalID) (*worlddb.Portal, error) {
	var p worlddb.Portal
	if err := s.getDoc(bucketPortals, []byte(portid), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePortal implements worlddb.WorldStore.
func (s *Store) CreatePortal(p *worlddb.Portal) error {
	return s.putDoc(bucketPortals, []byte(p.PortID), p)
}

// SetPortal implements worlddb.WorldStore.
func (s *Store) SetPortal(p *worlddb.Portal) error {
	return s.putDoc(bucketPortals, []byte(p.PortID), p)
}

// DeletePortal implements worlddb.WorldStore.
func (s *Store) DeletePortal(portid worlddb.PortalID) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPortals).Delete([]byte(portid))
	})
}

// PortList implements worlddb.WorldStore.
func (s *Store) PortList(plistid worlddb.PortListID) (*worlddb.PortList, error) {
	var pl worlddb.PortList
	if err := s.getDoc(bucketPortLists, []byte(plistid), &pl); err != nil {
		return nil, err
	}
	return &pl, nil
}

// PutPortList stores a portlist document.
func (s *Store) PutPortList(pl *worlddb.PortList) error {
	return s.putDoc(bucketPortLists, []byte(pl.PListID), pl)
}

// PortalsInList implements worlddb.WorldStore by scanning the portal
// bucket, ordered by list position.
func (s *Store) PortalsInList(plistid worlddb.PortListID) ([]*worlddb.Portal, error) {
	var out []*worlddb.Portal
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPortals).ForEach(func(k, v []byte) error {
			var p worlddb.Portal
			if err := decodeDoc(v, &p); err != nil {
				return err
			}
			if p.PListID == plistid {
				out = append(out, &p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: portlist %s: %w", plistid, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ListPos < out[j].ListPos })
	return out, nil
}
