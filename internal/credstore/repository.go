package credstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jkaninda/gitcreds/internal/credentials"
)

// CredentialModel is the GORM record for a stored credential.
// Seq preserves insertion order across both backends; it is never exposed.
// OwnerID is empty for system-scoped credentials.
type CredentialModel struct {
	Seq          uint   `gorm:"primaryKey;autoIncrement"`
	CredentialID string `gorm:"column:credential_id;size:64;uniqueIndex"`
	Kind         string `gorm:"size:32;index:idx_credentials_scope"`
	OwnerID      string `gorm:"size:64;index:idx_credentials_scope"`
	Username     string `gorm:"size:128"`
	Description  string `gorm:"size:255"`
	PrivateKey   []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName overrides GORM's default pluralization.
func (CredentialModel) TableName() string { return "credentials" }

// Repository implements credentials.Store plus the admin operations the
// host (and the seeding CLI) needs. Safe for concurrent use.
type Repository struct {
	db     *gorm.DB
	driver string
	logger *slog.Logger
}

// NewRepository creates a Repository over an open GORM connection.
func NewRepository(db *gorm.DB, driver string, logger *slog.Logger) *Repository {
	return &Repository{db: db, driver: driver, logger: logger}
}

// Lookup returns credentials of the given kind visible to the access
// context, in insertion order. User contexts see only their own rows; the
// system context sees only unowned rows.
func (r *Repository) Lookup(ctx context.Context, kind credentials.Kind, access credentials.AccessContext) ([]credentials.Candidate, error) {
	q := r.db.WithContext(ctx).Where("kind = ?", string(kind))
	if access.IsSystem() {
		q = q.Where("owner_id = ?", "")
	} else {
		if access.UserID() == "" {
			return nil, nil
		}
		q = q.Where("owner_id = ?", access.UserID())
	}

	var models []CredentialModel
	if err := q.Order("seq ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("looking up credentials: %w", err)
	}

	candidates := make([]credentials.Candidate, 0, len(models))
	for _, m := range models {
		candidates = append(candidates, credentials.Candidate{
			ID:          m.CredentialID,
			Username:    m.Username,
			Description: m.Description,
			PrivateKey:  m.PrivateKey,
		})
	}
	return candidates, nil
}

// Put inserts or updates a credential. ownerID "" stores it system-scoped.
// Updating an existing credential keeps its sequence position.
func (r *Repository) Put(ctx context.Context, cand credentials.Candidate, ownerID string) error {
	if cand.ID == "" {
		return fmt.Errorf("credential id is required")
	}
	model := CredentialModel{
		CredentialID: cand.ID,
		Kind:         string(credentials.KindSSHPrivateKey),
		OwnerID:      ownerID,
		Username:     cand.Username,
		Description:  cand.Description,
		PrivateKey:   cand.PrivateKey,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "credential_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner_id", "username", "description", "private_key", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("storing credential %s: %w", cand.ID, err)
	}
	return nil
}

// Delete removes a credential by ID. Returns credentials.ErrNotFound when
// no row matches.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("credential_id = ?", id).Delete(&CredentialModel{})
	if res.Error != nil {
		return fmt.Errorf("deleting credential %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", credentials.ErrNotFound, id)
	}
	return nil
}

// Migrate creates or updates the credentials table.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(&CredentialModel{})
}

// Ping verifies the database connection. Used by the readiness probe.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns the storage driver name.
func (r *Repository) Driver() string { return r.driver }

// IsNotFound reports whether err is the store's not-found condition, from
// either this package or GORM directly.
func IsNotFound(err error) bool {
	return errors.Is(err, credentials.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
