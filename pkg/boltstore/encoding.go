package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/weaveworld/goweave/pkg/worlddb"
)

func init() {
	// Property values are interface-typed; every record that can land in
	// a property must be registered.
	gob.Register(&worlddb.Text{})
	gob.Register(&worlddb.Code{})
	gob.Register(&worlddb.GenText{})
	gob.Register(&worlddb.Event{})
	gob.Register(&worlddb.Panic{})
	gob.Register(&worlddb.Move{})
	gob.Register(&worlddb.SelfDesc{})
	gob.Register(&worlddb.EditStr{})
	gob.Register(&worlddb.PortalRef{})
	gob.Register(&worlddb.PortListRef{})
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// propEntry wraps an interface-typed property value so gob can carry
// the concrete type.
type propEntry struct {
	Val any
}

func encodeProp(val any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&propEntry{Val: val}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeProp(data []byte) (any, error) {
	var ent propEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ent); err != nil {
		return nil, err
	}
	return ent.Val, nil
}

// encodeDoc serializes one of the document structs.
func encodeDoc(doc any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeDoc deserializes into the pointed-to document struct.
func decodeDoc(data []byte, doc any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(doc)
}
