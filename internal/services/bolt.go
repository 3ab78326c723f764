package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MegaGrindStone/ollama-web-ui/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the Store interface using a BoltDB backend for persistent storage of the
// conversation history and the user settings. Messages are kept in insertion order through the
// bucket sequence.
type BoltDB struct {
	db *bolt.DB
}

var (
	messagesBucket = []byte("messages")
	settingsBucket = []byte("settings")

	errBucketMissing = errors.New("bucket is missing")
)

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(messagesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create buckets: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

// Messages retrieves all stored messages of the conversation in their stored order.
func (b BoltDB) Messages(context.Context) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(messagesBucket)
		if b == nil {
			return errBucketMissing
		}

		return b.ForEach(func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AddMessage appends a message to the conversation. The key is the big-endian bucket sequence, so
// iteration order matches insertion order.
func (b BoltDB) AddMessage(_ context.Context, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(messagesBucket)
		if b == nil {
			return errBucketMissing
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return b.Put(sequenceKey(seq), v)
	})
}

// ClearMessages drops the whole conversation history.
func (b BoltDB) ClearMessages(context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(messagesBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("failed to delete messages bucket: %w", err)
		}
		_, err := tx.CreateBucket(messagesBucket)
		return err
	})
}

// Setting returns the stored value of key, or an empty string if it was never set.
func (b BoltDB) Setting(_ context.Context, key string) (string, error) {
	var value string
	err := b.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(settingsBucket)
		if b == nil {
			return errBucketMissing
		}
		value = string(b.Get([]byte(key)))
		return nil
	})
	return value, err
}

// SetSetting stores value under key, replacing any previous value.
func (b BoltDB) SetSetting(_ context.Context, key, value string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(settingsBucket)
		if b == nil {
			return errBucketMissing
		}
		return b.Put([]byte(key), []byte(value))
	})
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
