package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/milkdiary/internal/model"
)

// AssetStore is the persistent cache storage behind the offline worker.
// Entries are grouped by cache name so a new version can be filled while
// the old one still serves.
type AssetStore struct {
	db *sql.DB
}

func NewAssetStore(db *sql.DB) *AssetStore {
	return &AssetStore{db: db}
}

const assetCols = `cache_name, path, status, content_type, etag, body, stored_at`

func scanAsset(scanner interface{ Scan(...any) error }) (*model.Asset, error) {
	var a model.Asset
	if err := scanner.Scan(&a.CacheName, &a.Path, &a.Status, &a.ContentType, &a.ETag, &a.Body, &a.StoredAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// PutAll stores a batch of entries atomically; either every asset is
// cached or none is.
func (s *AssetStore) PutAll(assets []model.Asset) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, a := range assets {
		if err := putAsset(tx, a); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *AssetStore) Put(a model.Asset) error {
	return putAsset(s.db, a)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func putAsset(db execer, a model.Asset) error {
	body := a.Body
	if body == nil {
		body = []byte{}
	}
	_, err := db.Exec(
		`INSERT INTO asset_cache (cache_name, path, status, content_type, etag, body)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_name, path) DO UPDATE SET
		   status = excluded.status, content_type = excluded.content_type,
		   etag = excluded.etag, body = excluded.body, stored_at = CURRENT_TIMESTAMP`,
		a.CacheName, a.Path, a.Status, a.ContentType, a.ETag, body,
	)
	if err != nil {
		return fmt.Errorf("put asset %s: %w", a.Path, err)
	}
	return nil
}

// Match returns the cached entry for path in cacheName, or nil.
func (s *AssetStore) Match(cacheName, path string) (*model.Asset, error) {
	row := s.db.QueryRow(`SELECT `+assetCols+` FROM asset_cache WHERE cache_name = ? AND path = ?`, cacheName, path)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("match asset: %w", err)
	}
	return a, nil
}

// CacheNames lists every cache version present.
func (s *AssetStore) CacheNames() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT cache_name FROM asset_cache ORDER BY cache_name`)
	if err != nil {
		return nil, fmt.Errorf("list cache names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan cache name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Paths lists the cached paths of one cache version.
func (s *AssetStore) Paths(cacheName string) ([]string, error) {
	rows, err := s.db.Query(`SELECT path FROM asset_cache WHERE cache_name = ? ORDER BY path`, cacheName)
	if err != nil {
		return nil, fmt.Errorf("list asset paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan asset path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *AssetStore) DeleteCache(cacheName string) error {
	if _, err := s.db.Exec(`DELETE FROM asset_cache WHERE cache_name = ?`, cacheName); err != nil {
		return fmt.Errorf("delete cache %s: %w", cacheName, err)
	}
	return nil
}
