package model

// Tables holds the cached sheet rows exactly as the upstream returned them,
// header rows included.
type Tables struct {
	Monthly   [][]any `json:"monthly"`
	Daily     [][]any `json:"daily"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}
