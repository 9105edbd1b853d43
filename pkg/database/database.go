package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	tyderrors "github.com/openletter/api/pkg/errors"
)

const uniqueViolation = "23505"

// SQLite extended result codes for SQLITE_CONSTRAINT_PRIMARYKEY and
// SQLITE_CONSTRAINT_UNIQUE.
const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// Migrate creates or updates the signatures table.
func Migrate(d *gorm.DB) error {
	return d.AutoMigrate(&Signature{})
}

// SignatureStore persists signatures. It is safe for concurrent use.
type SignatureStore struct {
	db *gorm.DB
}

func NewSignatureStore(d *gorm.DB) *SignatureStore {
	return &SignatureStore{db: d}
}

// Create inserts sig as an unverified row. The id, token and creation time
// are filled in on sig.
func (s *SignatureStore) Create(ctx context.Context, sig *Signature) error {
	res := s.db.WithContext(ctx).Create(sig)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return fmt.Errorf("insert signature: %w", tyderrors.ErrDuplicate)
		}
		return fmt.Errorf("insert signature: %w", res.Error)
	}

	return nil
}

// Delete hard-deletes the row with the given id.
func (s *SignatureStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Signature{})
	if res.Error != nil {
		return fmt.Errorf("delete signature %s: %w", id, res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("delete signature %s: %w", id, tyderrors.ErrNotFound)
	}

	return nil
}

// FindByToken returns the row whose verification token equals token exactly.
func (s *SignatureStore) FindByToken(ctx context.Context, token string) (*Signature, error) {
	var sig Signature
	res := s.db.WithContext(ctx).
		Where("verification_token = ?", token).
		Limit(1).
		Find(&sig)
	if res.Error != nil {
		return nil, fmt.Errorf("find signature by token: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return nil, tyderrors.ErrNotFound
	}

	return &sig, nil
}

// MarkVerified sets verified unconditionally, so concurrent calls for the
// same token converge.
func (s *SignatureStore) MarkVerified(ctx context.Context, token string) error {
	res := s.db.WithContext(ctx).
		Model(&Signature{}).
		Where("verification_token = ?", token).
		Update("verified", true)
	if res.Error != nil {
		return fmt.Errorf("mark signature verified: %w", res.Error)
	}

	return nil
}

// ListVerified returns verified signatories, oldest first.
func (s *SignatureStore) ListVerified(ctx context.Context) ([]Signatory, error) {
	signatories := []Signatory{}
	res := s.db.WithContext(ctx).
		Model(&Signature{}).
		Select("name", "job_title", "affiliation").
		Where("verified = ?", true).
		Order("created_at ASC").
		Find(&signatories)
	if res.Error != nil {
		return nil, fmt.Errorf("list verified signatures: %w", res.Error)
	}

	return signatories, nil
}

func (s *SignatureStore) CountVerified(ctx context.Context) (int64, error) {
	var count int64

	res := s.db.WithContext(ctx).
		Model(&Signature{}).
		Where("verified = ?", true).
		Count(&count)
	if res.Error != nil {
		return 0, fmt.Errorf("count verified signatures: %w", res.Error)
	}

	return count, nil
}

func (s *SignatureStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var e *pgconn.PgError
	if errors.As(err, &e) {
		return e.Code == uniqueViolation
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code() == sqliteConstraintUnique || coded.Code() == sqliteConstraintPrimaryKey
	}

	return false
}
