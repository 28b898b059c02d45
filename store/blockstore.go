package store

import (
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"

	"weave/block"
	"weave/logx"
)

var blocksBucket = []byte("blocks")

var ErrClosed = errors.New("block store closed")

// BlockStore persists block headers and bodies by id. Append-only except for
// pruning deletes.
type BlockStore struct {
	db *bolt.DB
}

func Open(path string) (*BlockStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blocksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	logx.Info("BLOCKSTORE", "Opened block store at ", path)
	return &BlockStore{db: db}, nil
}

func (bs *BlockStore) Close() error {
	return bs.db.Close()
}

func (bs *BlockStore) Put(b *block.Block) error {
	id := b.Header.ComputeId()
	return bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(blocksBucket).Put(id[:], b.Marshal())
	})
}

// Get returns the stored block or nil if the id is unknown.
func (bs *BlockStore) Get(id block.BlockId) (*block.Block, error) {
	var out *block.Block
	err := bs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(blocksBucket).Get(id[:])
		if data == nil {
			return nil
		}
		b, err := block.Unmarshal(data)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (bs *BlockStore) Has(id block.BlockId) (bool, error) {
	var found bool
	err := bs.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(blocksBucket).Get(id[:]) != nil
		return nil
	})
	return found, err
}

func (bs *BlockStore) Delete(id block.BlockId) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(blocksBucket).Delete(id[:])
	})
}

// Count returns the number of stored blocks.
func (bs *BlockStore) Count() (int, error) {
	var n int
	err := bs.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(blocksBucket).Stats().KeyN
		return nil
	})
	return n, err
}
