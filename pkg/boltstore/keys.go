package boltstore

import (
	"bytes"

	"github.com/weaveworld/goweave/pkg/worlddb"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta      = []byte("meta")
	bucketWorlds    = []byte("worlds")
	bucketLocations = []byte("locations")
	bucketLocKeys   = []byte("lockeys")
	bucketPlayers   = []byte("players")
	bucketPlayState = []byte("playstate")
	bucketScopes    = []byte("scopes")
	bucketInstances = []byte("instances")
	bucketInstScope = []byte("instscope")
	bucketPortals   = []byte("portals")
	bucketPortLists = []byte("portlists")
	bucketProps     = []byte("props")
)

// Meta key constants.
var (
	keyFormat = []byte("format")
)

// formatVersion is bumped when the on-disk encoding changes.
const formatVersion = "1"

// sep joins the parts of a composite key. Document ids are uuid-style
// strings and never contain it.
const sep = byte(0x1f)

// compose builds a composite bucket key from id parts.
func compose(parts ...string) []byte {
	var buf bytes.Buffer
	for i, part := range parts {
		if i > 0 {
			buf.WriteByte(sep)
		}
		buf.WriteString(part)
	}
	return buf.Bytes()
}

// propKey flattens a property address into its bucket key. The store
// kind leads, so each namespace groups together.
func propKey(key worlddb.PropKey) []byte {
	return compose(key.Store.String(), key.ID1, key.ID2, key.Name)
}

// locKey indexes a location slug within a world.
func locKey(wid worlddb.WorldID, key string) []byte {
	return compose(string(wid), key)
}

// instScopeKey indexes an instance by its (world, scope) pair.
func instScopeKey(wid worlddb.WorldID, sid worlddb.ScopeID) []byte {
	return compose(string(wid), string(sid))
}
