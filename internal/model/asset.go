package model

import "time"

// Asset is one cached response of the offline worker.
type Asset struct {
	CacheName   string    `json:"cache_name"`
	Path        string    `json:"path"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	ETag        string    `json:"etag"`
	Body        []byte    `json:"-"`
	StoredAt    time.Time `json:"stored_at"`
}
