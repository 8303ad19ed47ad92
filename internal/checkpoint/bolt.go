// Package checkpoint persists the replicator's offset and mirror in a bolt
// file. The offset and the entries it covers are written in one
// transaction, so a restart never sees one without the other.
package checkpoint

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Domenick1991/seatledger/internal/replicator"
	"github.com/boltdb/bolt"
	"github.com/fxamacker/cbor/v2"
)

var (
	metaBucket   = []byte("meta")
	mirrorBucket = []byte("mirror")
	offsetKey    = []byte("offset")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	var err error
	if encMode, err = encOptions.EncMode(); err != nil {
		panic("checkpoint: cbor encoder: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{TextUnmarshaler: cbor.TextUnmarshalerTextString}).DecMode(); err != nil {
		panic("checkpoint: cbor decoder: " + err.Error())
	}
}

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{metaBucket, mirrorBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(_ context.Context) (uint64, []replicator.Entry, error) {
	var (
		offset  uint64
		entries []replicator.Entry
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(metaBucket).Get(offsetKey); v != nil {
			offset = binary.BigEndian.Uint64(v)
		}
		return tx.Bucket(mirrorBucket).ForEach(func(k, v []byte) error {
			var e replicator.Entry
			if err := decMode.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return 0, nil, err
	}
	return offset, entries, nil
}

// Save upserts entries and advances the stored offset. An offset lower
// than the stored one is ignored; the entries are still written.
func (s *Store) Save(_ context.Context, offset uint64, entries []replicator.Entry) error {
	encoded := make([][]byte, len(entries))
	for i, e := range entries {
		data, err := encMode.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry %d: %w", e.Service.ID, err)
		}
		encoded[i] = data
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		mirror := tx.Bucket(mirrorBucket)
		for i, e := range entries {
			if err := mirror.Put(key(e.Service.ID), encoded[i]); err != nil {
				return err
			}
		}
		meta := tx.Bucket(metaBucket)
		if v := meta.Get(offsetKey); v != nil && binary.BigEndian.Uint64(v) > offset {
			return nil
		}
		return meta.Put(offsetKey, key(offset))
	})
}

// Reset removes the offset and every entry.
func (s *Store) Reset(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{metaBucket, mirrorBucket} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func key(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

var _ replicator.Checkpoint = (*Store)(nil)
