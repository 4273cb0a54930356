package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pdbot/internal/models"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when no record holds the access code.
	ErrNotFound = errors.New("file record not found")
	// ErrCodeTaken is returned by Create when the access code already exists.
	ErrCodeTaken = errors.New("access code already taken")
	// ErrStoreUnavailable marks driver level failures.
	ErrStoreUnavailable = errors.New("record store unavailable")
)

const mysqlDuplicateEntry = 1062

// StoreError wraps a driver failure so callers can match ErrStoreUnavailable.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// Store persists access code to file reference mappings.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// NewStore creates a store over an already migrated database.
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: strings.ToLower(driver), now: time.Now}
}

func (s *Store) isMySQL() bool { return s.driver == "mysql" }

// Put writes the record, replacing any existing record with the same code.
func (s *Store) Put(ctx context.Context, rec *models.FileRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	s.stamp(rec)
	query := `INSERT INTO file_records (access_code, storage_kind, storage_ref, platform, kind, display_name, content_type, size_bytes, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(access_code) DO UPDATE SET
			storage_kind = excluded.storage_kind,
			storage_ref = excluded.storage_ref,
			platform = excluded.platform,
			kind = excluded.kind,
			display_name = excluded.display_name,
			content_type = excluded.content_type,
			size_bytes = excluded.size_bytes,
			uploaded_by = excluded.uploaded_by,
			created_at = excluded.created_at`
	if s.isMySQL() {
		query = `INSERT INTO file_records (access_code, storage_kind, storage_ref, platform, kind, display_name, content_type, size_bytes, uploaded_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				storage_kind = VALUES(storage_kind),
				storage_ref = VALUES(storage_ref),
				platform = VALUES(platform),
				kind = VALUES(kind),
				display_name = VALUES(display_name),
				content_type = VALUES(content_type),
				size_bytes = VALUES(size_bytes),
				uploaded_by = VALUES(uploaded_by),
				created_at = VALUES(created_at)`
	}
	if _, err := s.db.ExecContext(ctx, query, args(rec)...); err != nil {
		return &StoreError{Op: "put file record", Err: err}
	}
	return nil
}

// Create inserts the record and fails with ErrCodeTaken if the code exists.
func (s *Store) Create(ctx context.Context, rec *models.FileRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	s.stamp(rec)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_records (access_code, storage_kind, storage_ref, platform, kind, display_name, content_type, size_bytes, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args(rec)...,
	)
	if err != nil {
		if isConflict(err) {
			return fmt.Errorf("create file record %s: %w", rec.AccessCode, ErrCodeTaken)
		}
		return &StoreError{Op: "create file record", Err: err}
	}
	return nil
}

// Get loads the record for code.
func (s *Store) Get(ctx context.Context, code string) (*models.FileRecord, error) {
	var (
		rec         models.FileRecord
		storageKind string
		platform    string
		kind        string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT access_code, storage_kind, storage_ref, platform, kind, display_name, content_type, size_bytes, uploaded_by, created_at
		FROM file_records WHERE access_code = ?`,
		code,
	).Scan(&rec.AccessCode, &storageKind, &rec.StorageRef, &platform, &kind, &rec.DisplayName, &rec.ContentType, &rec.SizeBytes, &rec.UploadedBy, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &StoreError{Op: "get file record", Err: err}
	}
	rec.StorageKind = models.StorageKind(storageKind)
	rec.Platform = models.Platform(platform)
	rec.Kind = models.AttachmentKind(kind)
	return &rec, nil
}

// Exists reports whether code is already assigned.
func (s *Store) Exists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM file_records WHERE access_code = ?`, code).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, &StoreError{Op: "check access code", Err: err}
	}
	return true, nil
}

func (s *Store) stamp(rec *models.FileRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
}

func validate(rec *models.FileRecord) error {
	if rec == nil {
		return errors.New("file record required")
	}
	if rec.AccessCode == "" {
		return errors.New("access code required")
	}
	if rec.StorageRef == "" {
		return errors.New("storage reference required")
	}
	return nil
}

func args(rec *models.FileRecord) []any {
	return []any{
		rec.AccessCode,
		string(rec.StorageKind),
		rec.StorageRef,
		string(rec.Platform),
		string(rec.Kind),
		rec.DisplayName,
		rec.ContentType,
		rec.SizeBytes,
		rec.UploadedBy,
		rec.CreatedAt,
	}
}

func isConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return false
}
