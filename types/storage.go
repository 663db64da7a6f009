package types

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Storage is a mutex-guarded leveldb wrapper shared by every record kind.
// Values are canonical JSON; keys carry a kind prefix. PutIfAbsent is the
// conditional insert the no-double-vote invariant hangs off.
type Storage struct {
	db   *leveldb.DB
	lock sync.Mutex
}

func OpenStorage(path string) (*Storage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Put(key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.db.Put(key, b, nil)
}

// PutIfAbsent stores v only when key does not exist yet. Returns false
// without mutating anything when a record is already present.
func (s *Storage) PutIfAbsent(key []byte, v any) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	_, err = s.db.Get(key, nil)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, leveldb.ErrNotFound) {
		return false, err
	}
	if err := s.db.Put(key, b, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) Get(key []byte, out any) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	b, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, out)
}

func (s *Storage) Has(key []byte) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	ok, err := s.db.Has(key, nil)
	return ok, err
}

func (s *Storage) Delete(key []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.db.Delete(key, nil)
}

// Iterate walks every record under prefix. fn returning an error stops
// the walk and propagates it.
func (s *Storage) Iterate(prefix []byte, fn func(key []byte, value []byte) error) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *Storage) Close() error {
	return s.db.Close()
}
