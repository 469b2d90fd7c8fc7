package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
)

// metadata is the SQLite-backed store for buckets, object versions,
// multipart uploads and their configuration. Every committed object —
// versioned or not — is a row in the versions table; unversioned and
// suspended-versioning writes use the reserved "null" version id.
type metadata struct {
	db *sql.DB
}

func openMetadata(dbPath string) (*metadata, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create metadata directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	m := &metadata{db: db}
	if err := m.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *metadata) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS buckets (
			name TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			creation_date DATETIME NOT NULL,
			versioning TEXT NOT NULL DEFAULT '',
			object_lock_enabled INTEGER NOT NULL DEFAULT 0,
			ownership TEXT NOT NULL DEFAULT '',
			policy TEXT NOT NULL DEFAULT '',
			lock_config TEXT NOT NULL DEFAULT '',
			acl TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS bucket_tags (
			bucket TEXT NOT NULL REFERENCES buckets(name) ON DELETE CASCADE,
			tag_key TEXT NOT NULL,
			tag_value TEXT NOT NULL,
			PRIMARY KEY (bucket, tag_key)
		)`,
		`CREATE TABLE IF NOT EXISTS versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			version_id TEXT NOT NULL,
			is_latest INTEGER NOT NULL DEFAULT 0,
			is_delete_marker INTEGER NOT NULL DEFAULT 0,
			size INTEGER NOT NULL DEFAULT 0,
			etag TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL DEFAULT '',
			cache_control TEXT NOT NULL DEFAULT '',
			content_encoding TEXT NOT NULL DEFAULT '',
			content_disposition TEXT NOT NULL DEFAULT '',
			storage_class TEXT NOT NULL DEFAULT 'STANDARD',
			metadata TEXT NOT NULL DEFAULT '',
			blob TEXT NOT NULL DEFAULT '',
			checksum_algorithm TEXT NOT NULL DEFAULT '',
			checksum_value TEXT NOT NULL DEFAULT '',
			part_sizes TEXT NOT NULL DEFAULT '',
			retention_mode TEXT NOT NULL DEFAULT '',
			retain_until DATETIME,
			legal_hold TEXT NOT NULL DEFAULT '',
			acl TEXT NOT NULL DEFAULT '',
			last_modified DATETIME NOT NULL,
			UNIQUE (bucket, key, version_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_bucket_key ON versions(bucket, key, id)`,
		`CREATE TABLE IF NOT EXISTS object_tags (
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			version_id TEXT NOT NULL,
			tag_key TEXT NOT NULL,
			tag_value TEXT NOT NULL,
			PRIMARY KEY (bucket, key, version_id, tag_key)
		)`,
		`CREATE TABLE IF NOT EXISTS uploads (
			upload_id TEXT PRIMARY KEY,
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			cache_control TEXT NOT NULL DEFAULT '',
			content_encoding TEXT NOT NULL DEFAULT '',
			content_disposition TEXT NOT NULL DEFAULT '',
			storage_class TEXT NOT NULL DEFAULT 'STANDARD',
			metadata TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			checksum_algorithm TEXT NOT NULL DEFAULT '',
			acl TEXT NOT NULL DEFAULT '',
			initiated DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_bucket_key ON uploads(bucket, key, upload_id)`,
		`CREATE TABLE IF NOT EXISTS parts (
			upload_id TEXT NOT NULL REFERENCES uploads(upload_id) ON DELETE CASCADE,
			part_number INTEGER NOT NULL,
			size INTEGER NOT NULL,
			etag TEXT NOT NULL,
			blob TEXT NOT NULL,
			last_modified DATETIME NOT NULL,
			PRIMARY KEY (upload_id, part_number)
		)`,
	}

	for _, stmt := range schema {
		if _, err := m.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (m *metadata) Close() error {
	return m.db.Close()
}

// ---- buckets ----

func (m *metadata) CreateBucket(ctx context.Context, b *Bucket) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO buckets (name, owner, creation_date, object_lock_enabled)
		VALUES (?, ?, ?, ?)
	`, b.Name, b.Owner, b.CreationDate, b.ObjectLockEnabled)
	if isConstraintViolation(err) {
		// The name row already exists; a racing duplicate create is the
		// same conflict as a sequential one.
		return ErrBucketAlreadyOwned
	}
	return err
}

// isConstraintViolation reports whether err is a SQLITE_CONSTRAINT
// failure, extended codes included.
func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == 19
}

func (m *metadata) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	var b Bucket
	var lockEnabled int
	var versioning string
	err := m.db.QueryRowContext(ctx, `
		SELECT name, owner, creation_date, versioning, object_lock_enabled
		FROM buckets WHERE name = ?
	`, name).Scan(&b.Name, &b.Owner, &b.CreationDate, &versioning, &lockEnabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Versioning = VersioningStatus(versioning)
	b.ObjectLockEnabled = lockEnabled != 0
	return &b, nil
}

// ListBuckets returns buckets in name order, filtered by prefix,
// starting strictly after marker, at most max+1 rows so the caller can
// detect truncation.
func (m *metadata) ListBuckets(ctx context.Context, prefix, marker string, limit int32) ([]Bucket, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT name, owner, creation_date, versioning, object_lock_enabled
		FROM buckets
		WHERE name LIKE ? ESCAPE '\' AND name > ?
		ORDER BY name
		LIMIT ?
	`, likePrefix(prefix), marker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		var lockEnabled int
		var versioning string
		if err := rows.Scan(&b.Name, &b.Owner, &b.CreationDate, &versioning, &lockEnabled); err != nil {
			return nil, err
		}
		b.Versioning = VersioningStatus(versioning)
		b.ObjectLockEnabled = lockEnabled != 0
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// DeleteBucketIfEmpty removes the bucket and its configuration in one
// transaction, failing with ErrBucketNotEmpty while any version, delete
// marker, or in-progress upload remains.
func (m *metadata) DeleteBucketIfEmpty(ctx context.Context, name string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM buckets WHERE name = ?`, name).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrBucketNotFound
	}
	if err != nil {
		return err
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM versions WHERE bucket = ?`, name).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrBucketNotEmpty
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads WHERE bucket = ?`, name).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrBucketNotEmpty
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM buckets WHERE name = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *metadata) SetBucketVersioning(ctx context.Context, name string, status VersioningStatus) error {
	_, err := m.db.ExecContext(ctx, `UPDATE buckets SET versioning = ? WHERE name = ?`, string(status), name)
	return err
}

func (m *metadata) setBucketField(ctx context.Context, name, field, value string) error {
	_, err := m.db.ExecContext(ctx, `UPDATE buckets SET `+field+` = ? WHERE name = ?`, value, name)
	return err
}

func (m *metadata) getBucketField(ctx context.Context, name, field string) (string, error) {
	var v string
	err := m.db.QueryRowContext(ctx, `SELECT `+field+` FROM buckets WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrBucketNotFound
	}
	return v, err
}

func (m *metadata) SetOwnership(ctx context.Context, name string, rule OwnershipRule) error {
	return m.setBucketField(ctx, name, "ownership", string(rule))
}

func (m *metadata) GetOwnership(ctx context.Context, name string) (OwnershipRule, error) {
	v, err := m.getBucketField(ctx, name, "ownership")
	return OwnershipRule(v), err
}

func (m *metadata) SetPolicy(ctx context.Context, name, policy string) error {
	return m.setBucketField(ctx, name, "policy", policy)
}

func (m *metadata) GetPolicy(ctx context.Context, name string) (string, error) {
	return m.getBucketField(ctx, name, "policy")
}

func (m *metadata) SetLockConfig(ctx context.Context, name, config string) error {
	return m.setBucketField(ctx, name, "lock_config", config)
}

func (m *metadata) GetLockConfig(ctx context.Context, name string) (string, error) {
	return m.getBucketField(ctx, name, "lock_config")
}

func (m *metadata) SetBucketACL(ctx context.Context, name string, acl *ACL) error {
	data, err := json.Marshal(acl)
	if err != nil {
		return err
	}
	return m.setBucketField(ctx, name, "acl", string(data))
}

func (m *metadata) GetBucketACL(ctx context.Context, name string) (*ACL, error) {
	v, err := m.getBucketField(ctx, name, "acl")
	if err != nil {
		return nil, err
	}
	if v == "" {
		return nil, nil
	}
	var acl ACL
	if err := json.Unmarshal([]byte(v), &acl); err != nil {
		return nil, err
	}
	return &acl, nil
}

// ---- bucket tags ----

func (m *metadata) PutBucketTags(ctx context.Context, bucket string, tags []Tag) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bucket_tags WHERE bucket = ?`, bucket); err != nil {
		return err
	}
	for _, t := range tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bucket_tags (bucket, tag_key, tag_value) VALUES (?, ?, ?)
		`, bucket, t.Key, t.Value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *metadata) GetBucketTags(ctx context.Context, bucket string) ([]Tag, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT tag_key, tag_value FROM bucket_tags WHERE bucket = ? ORDER BY tag_key
	`, bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.Key, &t.Value); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (m *metadata) DeleteBucketTags(ctx context.Context, bucket string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM bucket_tags WHERE bucket = ?`, bucket)
	return err
}

// ---- versions ----

const versionColumns = `key, version_id, is_latest, is_delete_marker, size, etag,
	content_type, cache_control, content_encoding, content_disposition,
	storage_class, metadata, blob, checksum_algorithm, checksum_value,
	part_sizes, retention_mode, retain_until, legal_hold, last_modified`

// versionRow is the storage-side shape of one version row.
type versionRow struct {
	ObjectInfo
	Blob            string
	RetentionMode   string
	RetainUntil     *time.Time
	LegalHoldStatus string
}

func scanVersion(scan func(dest ...any) error) (*versionRow, error) {
	var v versionRow
	var isLatest, isMarker int
	var metadataStr, partSizes, algorithm string
	var retainUntil sql.NullTime
	err := scan(&v.Key, &v.VersionID, &isLatest, &isMarker, &v.Size, &v.ETag,
		&v.ContentType, &v.CacheControl, &v.ContentEncoding, &v.ContentDisposition,
		&v.StorageClass, &metadataStr, &v.Blob, &algorithm, &v.ChecksumValue,
		&partSizes, &v.RetentionMode, &retainUntil, &v.LegalHoldStatus, &v.LastModified)
	if err != nil {
		return nil, err
	}
	v.IsLatest = isLatest != 0
	v.IsDeleteMarker = isMarker != 0
	v.ChecksumAlgorithm = ChecksumAlgorithm(algorithm)
	if retainUntil.Valid {
		t := retainUntil.Time
		v.RetainUntil = &t
	}
	if metadataStr != "" {
		if err := json.Unmarshal([]byte(metadataStr), &v.Metadata); err != nil {
			return nil, err
		}
	}
	if partSizes != "" {
		if err := json.Unmarshal([]byte(partSizes), &v.PartSizes); err != nil {
			return nil, err
		}
	}
	return &v, nil
}

// InsertVersion commits a new version row as the latest for its key.
// When replaceNull is set, any existing "null" row for the key is
// removed first (unversioned or suspended write); its blob id is
// returned so the caller can release the content.
func (m *metadata) InsertVersion(ctx context.Context, bucket string, v *versionRow, replaceNull bool) (replacedBlob string, err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if replaceNull {
		var blob string
		err := tx.QueryRowContext(ctx, `
			SELECT blob FROM versions WHERE bucket = ? AND key = ? AND version_id = ?
		`, bucket, v.Key, NullVersionID).Scan(&blob)
		if err != nil && err != sql.ErrNoRows {
			return "", err
		}
		if err == nil {
			replacedBlob = blob
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM versions WHERE bucket = ? AND key = ? AND version_id = ?
			`, bucket, v.Key, NullVersionID); err != nil {
				return "", err
			}
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM object_tags WHERE bucket = ? AND key = ? AND version_id = ?
			`, bucket, v.Key, NullVersionID); err != nil {
				return "", err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE versions SET is_latest = 0 WHERE bucket = ? AND key = ? AND is_latest = 1
	`, bucket, v.Key); err != nil {
		return "", err
	}

	metadataStr := ""
	if len(v.Metadata) > 0 {
		data, err := json.Marshal(v.Metadata)
		if err != nil {
			return "", err
		}
		metadataStr = string(data)
	}
	partSizes := ""
	if len(v.PartSizes) > 0 {
		data, err := json.Marshal(v.PartSizes)
		if err != nil {
			return "", err
		}
		partSizes = string(data)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO versions (bucket, `+versionColumns+`)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, bucket, v.Key, v.VersionID, boolInt(v.IsDeleteMarker), v.Size, v.ETag,
		v.ContentType, v.CacheControl, v.ContentEncoding, v.ContentDisposition,
		v.StorageClass, metadataStr, v.Blob, string(v.ChecksumAlgorithm), v.ChecksumValue,
		partSizes, v.RetentionMode, v.RetainUntil, v.LegalHoldStatus, v.LastModified); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return replacedBlob, nil
}

// GetLatest returns the latest version row for a key, or nil.
func (m *metadata) GetLatest(ctx context.Context, bucket, key string) (*versionRow, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM versions
		WHERE bucket = ? AND key = ? AND is_latest = 1
	`, bucket, key)
	v, err := scanVersion(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// GetVersion returns one specific version row, or nil.
func (m *metadata) GetVersion(ctx context.Context, bucket, key, versionID string) (*versionRow, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM versions
		WHERE bucket = ? AND key = ? AND version_id = ?
	`, bucket, key, versionID)
	v, err := scanVersion(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// DeleteVersion permanently removes one version row. If the removed row
// was the latest, the most recent remaining version is promoted. The
// removed row's blob id is returned.
func (m *metadata) DeleteVersion(ctx context.Context, bucket, key, versionID string) (blob string, err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var wasLatest int
	err = tx.QueryRowContext(ctx, `
		SELECT blob, is_latest FROM versions WHERE bucket = ? AND key = ? AND version_id = ?
	`, bucket, key, versionID).Scan(&blob, &wasLatest)
	if err == sql.ErrNoRows {
		return "", ErrVersionNotFound
	}
	if err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM versions WHERE bucket = ? AND key = ? AND version_id = ?
	`, bucket, key, versionID); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM object_tags WHERE bucket = ? AND key = ? AND version_id = ?
	`, bucket, key, versionID); err != nil {
		return "", err
	}

	if wasLatest != 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE versions SET is_latest = 1
			WHERE id = (SELECT MAX(id) FROM versions WHERE bucket = ? AND key = ?)
		`, bucket, key); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return blob, nil
}

// UpdateRetention sets retention mode and retain-until on a version.
func (m *metadata) UpdateRetention(ctx context.Context, bucket, key, versionID, mode string, until time.Time) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE versions SET retention_mode = ?, retain_until = ?
		WHERE bucket = ? AND key = ? AND version_id = ?
	`, mode, until, bucket, key, versionID)
	return err
}

// UpdateLegalHold sets the legal hold status on a version.
func (m *metadata) UpdateLegalHold(ctx context.Context, bucket, key, versionID, status string) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE versions SET legal_hold = ?
		WHERE bucket = ? AND key = ? AND version_id = ?
	`, status, bucket, key, versionID)
	return err
}

// LatestKeys streams the latest, non-delete-marker rows of a bucket in
// key order, restricted to a prefix and starting strictly after marker.
func (m *metadata) LatestKeys(ctx context.Context, bucket, prefix, marker string) ([]versionRow, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM versions
		WHERE bucket = ? AND is_latest = 1 AND is_delete_marker = 0
			AND key LIKE ? ESCAPE '\' AND key > ?
		ORDER BY key
	`, bucket, likePrefix(prefix), marker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVersions(rows)
}

// AllVersions returns every version row of a bucket ordered by key
// ascending, then recency descending (newest first).
func (m *metadata) AllVersions(ctx context.Context, bucket, prefix string) ([]versionRow, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM versions
		WHERE bucket = ? AND key LIKE ? ESCAPE '\'
		ORDER BY key ASC, id DESC
	`, bucket, likePrefix(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVersions(rows)
}

func collectVersions(rows *sql.Rows) ([]versionRow, error) {
	var out []versionRow
	for rows.Next() {
		v, err := scanVersion(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// ---- object tags ----

func (m *metadata) PutObjectTags(ctx context.Context, bucket, key, versionID string, tags []Tag) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM object_tags WHERE bucket = ? AND key = ? AND version_id = ?
	`, bucket, key, versionID); err != nil {
		return err
	}
	for _, t := range tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO object_tags (bucket, key, version_id, tag_key, tag_value)
			VALUES (?, ?, ?, ?, ?)
		`, bucket, key, versionID, t.Key, t.Value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *metadata) GetObjectTags(ctx context.Context, bucket, key, versionID string) ([]Tag, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT tag_key, tag_value FROM object_tags
		WHERE bucket = ? AND key = ? AND version_id = ?
		ORDER BY tag_key
	`, bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.Key, &t.Value); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (m *metadata) DeleteObjectTags(ctx context.Context, bucket, key, versionID string) error {
	_, err := m.db.ExecContext(ctx, `
		DELETE FROM object_tags WHERE bucket = ? AND key = ? AND version_id = ?
	`, bucket, key, versionID)
	return err
}

// ---- multipart uploads ----

func (m *metadata) CreateUpload(ctx context.Context, u *MultipartUpload) error {
	metadataStr := ""
	if len(u.Metadata) > 0 {
		data, err := json.Marshal(u.Metadata)
		if err != nil {
			return err
		}
		metadataStr = string(data)
	}
	tagsStr := ""
	if len(u.Tags) > 0 {
		data, err := json.Marshal(u.Tags)
		if err != nil {
			return err
		}
		tagsStr = string(data)
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO uploads (upload_id, bucket, key, content_type, cache_control,
			content_encoding, content_disposition, storage_class, metadata, tags,
			checksum_algorithm, initiated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.UploadID, u.Bucket, u.Key, u.ContentType, u.CacheControl,
		u.ContentEncoding, u.ContentDisposition, u.StorageClass, metadataStr, tagsStr,
		string(u.ChecksumAlgorithm), u.Initiated)
	return err
}

func (m *metadata) GetUpload(ctx context.Context, uploadID string) (*MultipartUpload, error) {
	var u MultipartUpload
	var metadataStr, tagsStr, algorithm string
	err := m.db.QueryRowContext(ctx, `
		SELECT upload_id, bucket, key, content_type, cache_control, content_encoding,
			content_disposition, storage_class, metadata, tags, checksum_algorithm, initiated
		FROM uploads WHERE upload_id = ?
	`, uploadID).Scan(&u.UploadID, &u.Bucket, &u.Key, &u.ContentType, &u.CacheControl,
		&u.ContentEncoding, &u.ContentDisposition, &u.StorageClass, &metadataStr, &tagsStr,
		&algorithm, &u.Initiated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.ChecksumAlgorithm = ChecksumAlgorithm(algorithm)
	if metadataStr != "" {
		if err := json.Unmarshal([]byte(metadataStr), &u.Metadata); err != nil {
			return nil, err
		}
	}
	if tagsStr != "" {
		if err := json.Unmarshal([]byte(tagsStr), &u.Tags); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

// DeleteUpload removes the upload record and all its parts, returning
// the part blob ids so the caller can release storage.
func (m *metadata) DeleteUpload(ctx context.Context, uploadID string) ([]string, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT blob FROM parts WHERE upload_id = ?`, uploadID)
	if err != nil {
		return nil, err
	}
	var blobs []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			rows.Close()
			return nil, err
		}
		blobs = append(blobs, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM parts WHERE upload_id = ?`, uploadID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM uploads WHERE upload_id = ?`, uploadID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return blobs, nil
}

// PutPart stores a part row, overwriting any previous part with the
// same number; the overwritten blob id is returned.
func (m *metadata) PutPart(ctx context.Context, uploadID string, p *Part, blob string) (replacedBlob string, err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var old string
	err = tx.QueryRowContext(ctx, `
		SELECT blob FROM parts WHERE upload_id = ? AND part_number = ?
	`, uploadID, p.PartNumber).Scan(&old)
	if err != nil && err != sql.ErrNoRows {
		return "", err
	}
	replacedBlob = old

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO parts (upload_id, part_number, size, etag, blob, last_modified)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uploadID, p.PartNumber, p.Size, p.ETag, blob, p.LastModified); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return replacedBlob, nil
}

// GetParts returns all parts of an upload in ascending part-number
// order, with their blob ids.
func (m *metadata) GetParts(ctx context.Context, uploadID string) ([]Part, []string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT part_number, size, etag, blob, last_modified
		FROM parts WHERE upload_id = ? ORDER BY part_number
	`, uploadID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var parts []Part
	var blobs []string
	for rows.Next() {
		var p Part
		var blob string
		if err := rows.Scan(&p.PartNumber, &p.Size, &p.ETag, &blob, &p.LastModified); err != nil {
			return nil, nil, err
		}
		parts = append(parts, p)
		blobs = append(blobs, blob)
	}
	return parts, blobs, rows.Err()
}

// ListParts returns parts after the marker, at most limit rows.
func (m *metadata) ListParts(ctx context.Context, uploadID string, marker, limit int32) ([]Part, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT part_number, size, etag, last_modified
		FROM parts WHERE upload_id = ? AND part_number > ?
		ORDER BY part_number
		LIMIT ?
	`, uploadID, marker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		var p Part
		if err := rows.Scan(&p.PartNumber, &p.Size, &p.ETag, &p.LastModified); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// ListUploads returns in-progress uploads of a bucket ordered by key
// then upload id, starting strictly after the marker pair.
func (m *metadata) ListUploads(ctx context.Context, bucket, prefix, keyMarker, uploadIDMarker string, limit int32) ([]MultipartUpload, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT upload_id, bucket, key, content_type, initiated
		FROM uploads
		WHERE bucket = ? AND key LIKE ? ESCAPE '\'
			AND (key > ? OR (key = ? AND upload_id > ?))
		ORDER BY key, upload_id
		LIMIT ?
	`, bucket, likePrefix(prefix), keyMarker, keyMarker, uploadIDMarker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []MultipartUpload
	for rows.Next() {
		var u MultipartUpload
		if err := rows.Scan(&u.UploadID, &u.Bucket, &u.Key, &u.ContentType, &u.Initiated); err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// likePrefix escapes LIKE metacharacters so a prefix matches literally.
func likePrefix(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+2)
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, c)
	}
	return string(escaped) + "%"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
