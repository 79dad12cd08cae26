package vault

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	vaultBucket = []byte("vault")

	ErrNotFound = errors.New("vault: no such record")
)

// Keystore stores sealed records by name. bbolt gives us atomic writes, so a
// reader never observes a partially written record.
type Keystore struct {
	db *bolt.DB
}

func OpenKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(vaultBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Keystore{db: db}, nil
}

func (k *Keystore) Put(name string, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return k.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(vaultBucket).Put([]byte(name), raw)
	})
}

func (k *Keystore) Get(name string) (*Record, error) {
	var raw []byte
	err := k.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(vaultBucket).Get([]byte(name))
		if v == nil {
			return ErrNotFound
		}
		raw = append(raw, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	rec := new(Record)
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (k *Keystore) List() ([]string, error) {
	var names []string
	err := k.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(vaultBucket).ForEach(func(key, _ []byte) error {
			names = append(names, string(key))
			return nil
		})
	})
	return names, err
}

func (k *Keystore) Delete(name string) error {
	return k.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(vaultBucket).Delete([]byte(name))
	})
}

func (k *Keystore) Close() error {
	return k.db.Close()
}
