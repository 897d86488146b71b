// Copyright 2025 The uor-labs Authors
// This file is part of the uor-labs library.
//
// The uor-labs library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The uor-labs library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the uor-labs library. If not, see <http://www.gnu.org/licenses/>.

// Package checkpoint persists CHECKPOINT snapshots in a local leveldb
// database, snappy-compressed. Snapshots are keyed by program identity hash
// and a per-program monotone sequence number.
package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/inconshreveable/log15"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"

	"github.com/UOR-Foundation/uor-labs/vm"
)

var logger = log15.New("module", "checkpoint")

// ErrNotFound is returned when no snapshot exists for the requested key.
var ErrNotFound = errors.New("checkpoint: not found")

// Store is a leveldb-backed snapshot store. It implements vm.Store.
type Store struct {
	db *leveldb.DB
	mu sync.Mutex // serializes sequence allocation
}

// Open opens (creating if needed) the store rooted at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func snapKey(hash string, seq uint64) []byte {
	return []byte(fmt.Sprintf("ckpt/%s/%016x", hash, seq))
}

func seqKey(hash string) []byte {
	return []byte("seq/" + hash)
}

// Save implements vm.Store: it appends the snapshot under the program's
// next sequence number.
func (s *Store) Save(snap *vm.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	compressed := snappy.Encode(nil, raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	seq, err := s.nextSeq(snap.ProgramHash)
	if err != nil {
		return err
	}
	if err := s.db.Put(snapKey(snap.ProgramHash, seq), compressed, nil); err != nil {
		return err
	}
	logger.Info("checkpoint saved", "program", abbrev(snap.ProgramHash), "seq", seq,
		"pc", snap.PC, "bytes", len(compressed))
	return nil
}

// Load returns the snapshot stored for (hash, seq).
func (s *Store) Load(hash string, seq uint64) (*vm.Snapshot, error) {
	raw, err := s.db.Get(snapKey(hash, seq), nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s seq %d", ErrNotFound, abbrev(hash), seq)
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// Latest returns the most recently saved snapshot for a program.
func (s *Store) Latest(hash string) (*vm.Snapshot, error) {
	raw, err := s.db.Get(seqKey(hash), nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, abbrev(hash))
	}
	if err != nil {
		return nil, err
	}
	return s.Load(hash, binary.BigEndian.Uint64(raw))
}

// nextSeq allocates the next sequence number for a program and records it
// as the latest. Caller holds s.mu.
func (s *Store) nextSeq(hash string) (uint64, error) {
	seq := uint64(0)
	raw, err := s.db.Get(seqKey(hash), nil)
	switch {
	case errors.Is(err, ldberrors.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		seq = binary.BigEndian.Uint64(raw) + 1
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := s.db.Put(seqKey(hash), buf[:], nil); err != nil {
		return 0, err
	}
	return seq, nil
}

func decode(raw []byte) (*vm.Snapshot, error) {
	decompressed, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, err
	}
	var snap vm.Snapshot
	if err := json.Unmarshal(decompressed, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func abbrev(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
