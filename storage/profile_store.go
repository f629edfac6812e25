// Package storage persists translation profiles across runs so hot blocks
// can be translated before the guest first reaches them.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/colorfulnotion/armjit/common"
	"github.com/colorfulnotion/armjit/log"
	"github.com/colorfulnotion/armjit/recompiler"
	"github.com/colorfulnotion/armjit/types"
)

// Profiles of different images never mix: every key is prefixed by the
// image hash.
var profilePrefix = []byte("profile/")

// ProfileStore keeps one translation profile per guest image.
type ProfileStore struct {
	ps *PersistenceStore
}

// OpenProfileStore opens the store at path; an empty path keeps it in
// memory.
func OpenProfileStore(path string) (*ProfileStore, error) {
	ps, err := NewPersistenceStore(path)
	if err != nil {
		return nil, err
	}
	return &ProfileStore{ps: ps}, nil
}

func imagePrefix(image common.Hash) []byte {
	return append(append([]byte(nil), profilePrefix...), image[:]...)
}

func entryKey(image common.Hash, key types.GuestAddress) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], key.Key())
	return append(imagePrefix(image), k[:]...)
}

// Save replaces the stored profile of image with entries.
func (s *ProfileStore) Save(image common.Hash, entries []recompiler.ProfileEntry) error {
	kvs := make([][2][]byte, 0, len(entries))
	for _, e := range entries {
		v, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode profile entry %s: %w", e.Key, err)
		}
		kvs = append(kvs, [2][]byte{entryKey(image, e.Key), v})
	}
	if err := s.ps.ReplacePrefix(imagePrefix(image), kvs); err != nil {
		return err
	}
	log.Debug(log.StorageMonitoring, "profile saved", "image", image, "entries", len(entries))
	return nil
}

// Load returns the stored profile of image in key order.
func (s *ProfileStore) Load(image common.Hash) ([]recompiler.ProfileEntry, error) {
	kvs, err := s.ps.GetWithPrefix(imagePrefix(image))
	if err != nil {
		return nil, err
	}
	out := make([]recompiler.ProfileEntry, 0, len(kvs))
	for _, kv := range kvs {
		var e recompiler.ProfileEntry
		if err := json.Unmarshal(kv[1], &e); err != nil {
			return nil, fmt.Errorf("decode profile entry %x: %w", kv[0], err)
		}
		out = append(out, e)
	}
	log.Debug(log.StorageMonitoring, "profile loaded", "image", image, "entries", len(out))
	return out, nil
}

// Keys returns the keys of the stored profile of image.
func (s *ProfileStore) Keys(image common.Hash) ([]types.GuestAddress, error) {
	entries, err := s.Load(image)
	if err != nil {
		return nil, err
	}
	keys := make([]types.GuestAddress, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

func (s *ProfileStore) Close() error {
	return s.ps.Close()
}
