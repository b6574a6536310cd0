package billing

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Abdullah2434/backend/app/models"
)

// Store is the persistence surface of the billing core. Transaction hands fn
// a Store bound to the transaction; everything fn does commits or rolls back
// as one unit.
type Store interface {
	IsProcessed(ctx context.Context, providerEventID string) (bool, error)
	// MarkProcessed inserts the marker unless one exists already and reports
	// whether it inserted.
	MarkProcessed(ctx context.Context, event *models.ProcessedEvent) (bool, error)

	FindSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	// LockSubscription reads the subscription and holds a row lock on it until
	// the surrounding transaction ends.
	LockSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	FindSubscriptionsByCustomer(ctx context.Context, providerCustomerID string) ([]models.Subscription, error)
	// FindOwnerSubscriptions returns the owner's subscriptions, newest first.
	FindOwnerSubscriptions(ctx context.Context, ownerID string) ([]models.Subscription, error)
	// FindStaleSubscriptions returns up to limit non-canceled subscriptions
	// whose period ended before cutoff, oldest period end first.
	FindStaleSubscriptions(ctx context.Context, cutoff time.Time, limit int) ([]models.Subscription, error)
	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	// IncrementVideoCount adds one video when the count is below the limit and
	// reports whether it did.
	IncrementVideoCount(ctx context.Context, subscriptionID uint) (bool, error)

	FindBillingRecord(ctx context.Context, providerInvoiceID string) (*models.BillingRecord, error)
	InsertBillingRecord(ctx context.Context, rec *models.BillingRecord) (bool, error)
	UpdateBillingOutcome(ctx context.Context, id uint, outcome models.BillingOutcome) error
	ListBillingRecords(ctx context.Context, subscriptionID uint) ([]models.BillingRecord, error)

	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// GormStore implements Store on MySQL or PostgreSQL through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a Store backed by db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) IsProcessed(ctx context.Context, providerEventID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ProcessedEvent{}).
		Where("provider_event_id = ?", providerEventID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) MarkProcessed(ctx context.Context, event *models.ProcessedEvent) (bool, error) {
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *GormStore) FindSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *GormStore) LockSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *GormStore) FindSubscriptionsByCustomer(ctx context.Context, providerCustomerID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("provider_customer_id = ?", providerCustomerID).
		Order("created_at DESC, id DESC").
		Find(&subs).Error
	return subs, err
}

func (s *GormStore) FindOwnerSubscriptions(ctx context.Context, ownerID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&subs).Error
	return subs, err
}

func (s *GormStore) FindStaleSubscriptions(ctx context.Context, cutoff time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("status <> ? AND current_period_end < ?", models.SubscriptionStatusCanceled, cutoff).
		Order("current_period_end ASC, id ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (s *GormStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.db.WithContext(ctx).Save(sub).Error
}

func (s *GormStore) IncrementVideoCount(ctx context.Context, subscriptionID uint) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND video_count < video_limit", subscriptionID).
		UpdateColumn("video_count", gorm.Expr("video_count + ?", 1))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (s *GormStore) FindBillingRecord(ctx context.Context, providerInvoiceID string) (*models.BillingRecord, error) {
	var rec models.BillingRecord
	err := s.db.WithContext(ctx).
		Where("provider_invoice_id = ?", providerInvoiceID).
		First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (s *GormStore) InsertBillingRecord(ctx context.Context, rec *models.BillingRecord) (bool, error) {
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_invoice_id"}},
		DoNothing: true,
	}).Create(rec)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *GormStore) UpdateBillingOutcome(ctx context.Context, id uint, outcome models.BillingOutcome) error {
	return s.db.WithContext(ctx).Model(&models.BillingRecord{}).
		Where("id = ?", id).
		Update("outcome", outcome).Error
}

func (s *GormStore) ListBillingRecords(ctx context.Context, subscriptionID uint) ([]models.BillingRecord, error) {
	var recs []models.BillingRecord
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("recorded_at DESC, id DESC").
		Find(&recs).Error
	return recs, err
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// sortNewestFirst orders subscriptions the way the SQL queries do.
func sortNewestFirst(subs []models.Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.After(subs[j].CreatedAt)
		}
		return subs[i].ID > subs[j].ID
	})
}
