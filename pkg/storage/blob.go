package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// MaxListCap is the largest page size the blob service will return.
const MaxListCap int32 = 5000

// BlobMeta describes a stored blob without its content.
type BlobMeta struct {
	Name          string    `json:"name"`
	ContentType   string    `json:"content_type"`
	ContentLength int64     `json:"content_length"`
	LastModified  time.Time `json:"last_modified"`
}

// BlobList is one page of a prefix listing.
type BlobList struct {
	Blobs      []BlobMeta `json:"blobs"`
	NextMarker string     `json:"next_marker,omitempty"`
}

// BlobResult carries a blob body with the headers needed to serve it.
type BlobResult struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// ReadAll downloads the blob at key and returns its full content.
func ReadAll(ctx context.Context, sys System, key string) ([]byte, error) {
	result, err := sys.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, nil
}

// DeletePrefix removes every blob under prefix, following list markers until
// the listing is exhausted or maxPages is reached. It returns the number of
// blobs deleted and the first error encountered; deletion continues past
// individual blob failures.
func DeletePrefix(ctx context.Context, sys System, prefix string, pageSize int32, maxPages int) (int, error) {
	if prefix == "" {
		return 0, ErrEmptyKey
	}

	var (
		deleted  int
		firstErr error
		marker   string
	)

	for page := 0; page < maxPages; page++ {
		list, err := sys.List(ctx, prefix, marker, pageSize)
		if err != nil {
			return deleted, err
		}

		for _, b := range list.Blobs {
			if err := sys.Delete(ctx, b.Name); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			deleted++
		}

		if list.NextMarker == "" {
			return deleted, firstErr
		}
		marker = list.NextMarker
	}

	if firstErr == nil {
		firstErr = fmt.Errorf("delete prefix %s: %w", prefix, ErrListLimit)
	}
	return deleted, firstErr
}
