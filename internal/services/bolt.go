package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/or0ji/Association-Website-Template/internal/models"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a requested record doesn't exist.
var ErrNotFound = errors.New("not found")

var (
	menusBucket         = []byte("menus")
	categoriesBucket    = []byte("categories")
	articlesBucket      = []byte("articles")
	bannersBucket       = []byte("banners")
	settingsBucket      = []byte("settings")
	conversationsBucket = []byte("conversations")

	contentBuckets = [][]byte{menusBucket, categoriesBucket, articlesBucket, bannersBucket, settingsBucket}
)

// BoltDB stores the site content and the relay's conversation histories in a single BoltDB file. Content
// records are JSON values keyed by their big-endian id; each conversation gets its own nested bucket of
// messages keyed by insertion sequence.
type BoltDB struct {
	db *bolt.DB
}

// Content is a complete snapshot of the site content, as written by ReplaceContent.
type Content struct {
	Menus      []models.Menu
	Categories []models.Category
	Articles   []models.Article
	Banners    []models.Banner
	Settings   []models.Setting
}

// NewBoltDB opens (creating if needed) the database at path and makes sure every bucket exists. The
// database file is created with 0600 permissions.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range append(contentBuckets, conversationsBucket) {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, err
	}

	return BoltDB{db: db}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func itob(v int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func listBucket[T any](db *bolt.DB, name []byte) ([]T, error) {
	var items []T
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(name)
		if b == nil {
			return nil
		}

		return b.ForEach(func(_, v []byte) error {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("failed to unmarshal %s record: %w", name, err)
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.Put(key, data)
}

// Menus returns every menu entry ordered by id.
func (b BoltDB) Menus(context.Context) ([]models.Menu, error) {
	return listBucket[models.Menu](b.db, menusBucket)
}

// Categories returns every category ordered by id.
func (b BoltDB) Categories(context.Context) ([]models.Category, error) {
	return listBucket[models.Category](b.db, categoriesBucket)
}

// Articles returns every article ordered by id, published or not.
func (b BoltDB) Articles(context.Context) ([]models.Article, error) {
	return listBucket[models.Article](b.db, articlesBucket)
}

// Article returns the article with the given id or ErrNotFound.
func (b BoltDB) Article(_ context.Context, id int) (models.Article, error) {
	var article models.Article
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(articlesBucket).Get(itob(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &article)
	})
	return article, err
}

// IncrementViewCount adds one view to the article and returns its updated record. The read and the
// write happen in a single transaction so concurrent visits are all counted.
func (b BoltDB) IncrementViewCount(_ context.Context, id int) (models.Article, error) {
	var article models.Article
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(articlesBucket)
		v := bucket.Get(itob(id))
		if v == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(v, &article); err != nil {
			return fmt.Errorf("failed to unmarshal article: %w", err)
		}
		article.ViewCount++
		return putJSON(bucket, itob(id), article)
	})
	return article, err
}

// Banners returns every banner ordered by id.
func (b BoltDB) Banners(context.Context) ([]models.Banner, error) {
	return listBucket[models.Banner](b.db, bannersBucket)
}

// Settings returns every site setting ordered by key.
func (b BoltDB) Settings(context.Context) ([]models.Setting, error) {
	return listBucket[models.Setting](b.db, settingsBucket)
}

// ReplaceContent drops all site content and writes c in its place, atomically. Conversation histories
// are left untouched.
func (b BoltDB) ReplaceContent(_ context.Context, c Content) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range contentBuckets {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return fmt.Errorf("failed to drop bucket %s: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		for _, m := range c.Menus {
			if err := putJSON(tx.Bucket(menusBucket), itob(m.ID), m); err != nil {
				return err
			}
		}
		for _, cat := range c.Categories {
			if err := putJSON(tx.Bucket(categoriesBucket), itob(cat.ID), cat); err != nil {
				return err
			}
		}
		for _, a := range c.Articles {
			if err := putJSON(tx.Bucket(articlesBucket), itob(a.ID), a); err != nil {
				return err
			}
		}
		for _, bn := range c.Banners {
			if err := putJSON(tx.Bucket(bannersBucket), itob(bn.ID), bn); err != nil {
				return err
			}
		}
		for _, s := range c.Settings {
			if err := putJSON(tx.Bucket(settingsBucket), []byte(s.Key), s); err != nil {
				return err
			}
		}
		return nil
	})
}

// Messages retrieves the history of a relay conversation in the order it was written. An unknown
// conversation has no messages.
func (b BoltDB) Messages(_ context.Context, conversationID string) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := b.db.View(func(tx *bolt.Tx) error {
		conv := tx.Bucket(conversationsBucket).Bucket([]byte(conversationID))
		if conv == nil {
			return nil
		}

		return conv.ForEach(func(_, v []byte) error {
			var message models.ChatMessage
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

// AddMessages appends messages to the conversation, creating it if needed, in a single transaction.
func (b BoltDB) AddMessages(_ context.Context, conversationID string, messages ...models.ChatMessage) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		conv, err := tx.Bucket(conversationsBucket).CreateBucketIfNotExists([]byte(conversationID))
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}

		for _, msg := range messages {
			seq, err := conv.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to get next sequence: %w", err)
			}
			if err := putJSON(conv, itob(int(seq)), msg); err != nil {
				return err
			}
		}
		return nil
	})
}
