package storage

import (
	"testing"

	"github.com/colorfulnotion/armjit/common"
	"github.com/colorfulnotion/armjit/recompiler"
	"github.com/colorfulnotion/armjit/types"
)

func TestPersistenceStore_BasicOperations(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	if err != nil {
		t.Fatalf("Failed to create memory store: %v", err)
	}
	defer ps.Close()

	if err := ps.Put([]byte("a/1"), []byte("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := ps.Put([]byte("a/2"), []byte("y")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := ps.Put([]byte("b/1"), []byte("z")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := ps.Get([]byte("a/2"))
	if err != nil || !found || string(got) != "y" {
		t.Fatalf("Get a/2 = %q, %v, %v", got, found, err)
	}
	if _, found, _ := ps.Get([]byte("missing")); found {
		t.Error("Expected key not to be found")
	}

	kvs, err := ps.GetWithPrefix([]byte("a/"))
	if err != nil {
		t.Fatalf("GetWithPrefix failed: %v", err)
	}
	if len(kvs) != 2 || string(kvs[0][0]) != "a/1" || string(kvs[1][1]) != "y" {
		t.Fatalf("GetWithPrefix returned %q", kvs)
	}

	if err := ps.ReplacePrefix([]byte("a/"), [][2][]byte{{[]byte("a/9"), []byte("w")}}); err != nil {
		t.Fatalf("ReplacePrefix failed: %v", err)
	}
	kvs, _ = ps.GetWithPrefix([]byte("a/"))
	if len(kvs) != 1 || string(kvs[0][0]) != "a/9" {
		t.Fatalf("after ReplacePrefix got %q", kvs)
	}
	if _, found, _ := ps.Get([]byte("b/1")); !found {
		t.Error("ReplacePrefix removed a key outside its prefix")
	}

	if err := ps.Delete([]byte("a/9")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found, _ := ps.Get([]byte("a/9")); found {
		t.Error("Expected key to be deleted")
	}
}

func TestProfileStore(t *testing.T) {
	s, err := OpenProfileStore("")
	if err != nil {
		t.Fatalf("OpenProfileStore: %v", err)
	}
	defer s.Close()

	image := common.ComputeHash([]byte("image"))
	other := common.ComputeHash([]byte("other"))
	entries := []recompiler.ProfileEntry{
		{Key: types.NewGuestAddress(0x8001, true), Compiles: 2, Instructions: 4, HostBytes: 120},
		{Key: types.NewGuestAddress(0x1000, false), Compiles: 1, Instructions: 3, HostBytes: 90},
	}
	if err := s.Save(image, entries); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(other, entries[:1]); err != nil {
		t.Fatalf("Save: %v", err)
	}

	keys, err := s.Keys(image)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	want := []types.GuestAddress{0x1000, 0x8001}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}

	// saving again replaces the profile
	if err := s.Save(image, entries[1:]); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := s.Load(image)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Instructions != 3 {
		t.Fatalf("Load = %+v", loaded)
	}
	if keys, _ := s.Keys(other); len(keys) != 1 {
		t.Fatalf("other profile has %d keys", len(keys))
	}
}
