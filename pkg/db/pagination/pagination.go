package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid page token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50" binding:"gte=1,lte=250"`
}

// Cursor points at the first row of the next page.
type Cursor struct {
	Offset int `json:"offset"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil || cursor.Offset < 0 {
		return nil, ErrInvalidPageToken
	}

	return &cursor, nil
}

// Page slices items according to p and reports where the next page starts.
func Page[T any](items []T, p Pagination) ([]T, *PageInfo, error) {
	size := p.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	offset := 0
	if p.PageToken != "" {
		cursor, err := DecodeCursor(p.PageToken)
		if err != nil {
			return nil, nil, err
		}
		offset = cursor.Offset
	}
	if offset >= len(items) {
		return []T{}, &PageInfo{HasMore: false}, nil
	}

	end := offset + size
	if end >= len(items) {
		return items[offset:], &PageInfo{HasMore: false}, nil
	}

	token, err := EncodeCursor(Cursor{Offset: end})
	if err != nil {
		return nil, nil, err
	}
	return items[offset:end], &PageInfo{NextPageToken: token, HasMore: true}, nil
}
