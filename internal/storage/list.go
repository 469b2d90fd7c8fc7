package storage

import (
	"context"
	"strings"
)

// maxListKeys caps a single listing page.
const maxListKeys = 1000

// rollup computes the sort key of one object key under a delimiter
// grouping: the shared prefix through the first delimiter after the
// request prefix, or the key itself when no delimiter follows. The
// second return reports whether the key rolled up into a common prefix.
func rollup(key, prefix, delimiter string) (string, bool) {
	if delimiter == "" {
		return key, false
	}
	rest := key[len(prefix):]
	idx := strings.Index(rest, delimiter)
	if idx < 0 {
		return key, false
	}
	return prefix + rest[:idx+len(delimiter)], true
}

// ListObjects returns one page of the latest non-deleted objects,
// grouped by delimiter. Keys and common prefixes merge into a single
// lexicographic stream; a page holds at most MaxKeys entries counting
// both. The resume marker is the sort key of the last returned entry,
// so a page boundary inside a rolled-up group cannot surface the
// group's keys twice.
func (e *Engine) ListObjects(ctx context.Context, in *ListObjectsInput) (*ListObjectsOutput, error) {
	if _, err := e.requireBucket(ctx, in.Bucket); err != nil {
		return nil, err
	}

	max := in.MaxKeys
	if max < 0 || max > maxListKeys {
		max = maxListKeys
	}
	out := &ListObjectsOutput{}
	if max == 0 {
		return out, nil
	}

	rows, err := e.db.LatestKeys(ctx, in.Bucket, in.Prefix, in.Marker)
	if err != nil {
		return nil, err
	}

	var lastSortKey string
	for _, row := range rows {
		sortKey, isPrefix := rollup(row.Key, in.Prefix, in.Delimiter)
		if sortKey <= in.Marker {
			continue
		}
		if isPrefix && sortKey == lastSortKey {
			continue
		}
		if out.KeyCount == max {
			out.IsTruncated = true
			out.NextMarker = lastSortKey
			break
		}
		if isPrefix {
			out.CommonPrefixes = append(out.CommonPrefixes, sortKey)
		} else {
			out.Objects = append(out.Objects, row.ObjectInfo)
		}
		out.KeyCount++
		lastSortKey = sortKey
	}
	return out, nil
}

// ListObjectVersions returns one page of every version and delete
// marker, ordered by key ascending then recency descending. With a
// delimiter, all versions of keys under a common prefix collapse into
// the prefix entry.
func (e *Engine) ListObjectVersions(ctx context.Context, in *ListVersionsInput) (*ListVersionsOutput, error) {
	if _, err := e.requireBucket(ctx, in.Bucket); err != nil {
		return nil, err
	}

	max := in.MaxKeys
	if max < 0 || max > maxListKeys {
		max = maxListKeys
	}
	out := &ListVersionsOutput{}
	if max == 0 {
		return out, nil
	}

	rows, err := e.db.AllVersions(ctx, in.Bucket, in.Prefix)
	if err != nil {
		return nil, err
	}

	// With a version-id marker, resume strictly after that version of
	// the marker key; otherwise after every entry sorting at or before
	// the key marker.
	resumed := in.KeyMarker == ""

	var count int32
	var lastSortKey, lastKey, lastVersionID string
	for _, row := range rows {
		sortKey, isPrefix := rollup(row.Key, in.Prefix, in.Delimiter)

		if !resumed {
			if in.VersionIDMarker != "" {
				if sortKey < in.KeyMarker {
					continue
				}
				if !isPrefix && row.Key == in.KeyMarker {
					if row.VersionID == in.VersionIDMarker {
						resumed = true
					}
					continue
				}
				// Past the marker key without meeting the marker
				// version: resume from here.
				resumed = true
			} else {
				if sortKey <= in.KeyMarker {
					continue
				}
				resumed = true
			}
		}

		if isPrefix && sortKey == lastSortKey {
			continue
		}
		if count == max {
			out.IsTruncated = true
			out.NextKeyMarker = lastKey
			out.NextVersionIDMarker = lastVersionID
			break
		}

		switch {
		case isPrefix:
			out.CommonPrefixes = append(out.CommonPrefixes, sortKey)
			lastKey, lastVersionID = sortKey, ""
		case row.IsDeleteMarker:
			out.DeleteMarkers = append(out.DeleteMarkers, row.ObjectInfo)
			lastKey, lastVersionID = row.Key, row.VersionID
		default:
			out.Versions = append(out.Versions, row.ObjectInfo)
			lastKey, lastVersionID = row.Key, row.VersionID
		}
		count++
		lastSortKey = sortKey
	}
	return out, nil
}
