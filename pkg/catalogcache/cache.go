package catalogcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/rerrors"
)

var (
	bucketNodes           = []byte("nodes")
	bucketReplicationInfo = []byte("replication_info")
)

// Cache is a local, best-effort mirror of the last catalog read and the
// local node's last observed replication state. It exists so that a
// one-shot command can still answer "node status" or "node check" when
// the catalog connection is down, degrading gracefully instead of
// failing outright on a Connectivity error.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the cache file under dataDir.
func Open(dataDir string) (*Cache, error) {
	dbPath := filepath.Join(dataDir, "repmgrd-cache.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "catalogcache.Open", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNodes, bucketReplicationInfo} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, rerrors.New(rerrors.FileSystem, "catalogcache.Open", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying bbolt database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// PutNodes overwrites the cached node list with nodes, replacing any
// previously stored snapshot.
func (c *Cache) PutNodes(nodes []*catalog.Node) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketNodes); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketNodes)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			data, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := b.Put(nodeKey(n.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetNodes returns the most recently cached node list.
func (c *Cache) GetNodes() ([]*catalog.Node, error) {
	var nodes []*catalog.Node
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.ForEach(func(k, v []byte) error {
			var n catalog.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			nodes = append(nodes, &n)
			return nil
		})
	})
	if err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "catalogcache.GetNodes", err)
	}
	return nodes, nil
}

// PutReplicationInfo caches the local node's most recent replication
// snapshot.
func (c *Cache) PutReplicationInfo(nodeID int32, info *catalog.ReplicationInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return rerrors.New(rerrors.FileSystem, "catalogcache.PutReplicationInfo", err)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReplicationInfo).Put(nodeKey(nodeID), data)
	})
	if err != nil {
		return rerrors.New(rerrors.FileSystem, "catalogcache.PutReplicationInfo", err)
	}
	return nil
}

// GetReplicationInfo returns the cached replication snapshot for
// nodeID, or nil if none has ever been recorded.
func (c *Cache) GetReplicationInfo(nodeID int32) (*catalog.ReplicationInfo, error) {
	var info *catalog.ReplicationInfo
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReplicationInfo).Get(nodeKey(nodeID))
		if data == nil {
			return nil
		}
		info = &catalog.ReplicationInfo{}
		return json.Unmarshal(data, info)
	})
	if err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "catalogcache.GetReplicationInfo", err)
	}
	return info, nil
}

func nodeKey(id int32) []byte {
	return []byte(fmt.Sprintf("%d", id))
}
