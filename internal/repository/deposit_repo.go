package repository

import (
	"context"
	"errors"

	"momovault/internal/model"

	"gorm.io/gorm"
)

var (
	ErrDepositNotFound      = errors.New("定期存款不存在")
	ErrDepositStatusInvalid = errors.New("定期存款状态不合法")
)

type DepositRepository struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

func (r *DepositRepository) Create(ctx context.Context, tx *gorm.DB, deposit *model.LockedDeposit) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(deposit).Error
}

func (r *DepositRepository) GetByID(ctx context.Context, id int64) (*model.LockedDeposit, error) {
	var deposit model.LockedDeposit
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&deposit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	return &deposit, nil
}

// ListLockedByUserID 用户名下所有 LOCKED 状态的存款，按创建时间升序（先存先取）
func (r *DepositRepository) ListLockedByUserID(ctx context.Context, userID int64) ([]*model.LockedDeposit, error) {
	var deposits []*model.LockedDeposit
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.DepositStatusLocked).
		Order("created_at ASC").
		Find(&deposits).Error
	return deposits, err
}

func (r *DepositRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.LockedDeposit, error) {
	var deposits []*model.LockedDeposit
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&deposits).Error
	return deposits, err
}

func (r *DepositRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.LockedDeposit, error) {
	var deposits []*model.LockedDeposit
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&deposits).Error
	return deposits, err
}

// UpdateStatus 条件更新存款状态
//
// WHERE 同时带上旧状态：两笔结算并发抢同一笔存款时，后到的一方
// RowsAffected == 0，整个落账事务回滚，保证一笔本金只被结算一次
func (r *DepositRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, penaltyApplied bool) error {
	if !model.DepositCanTransitionTo(fromStatus, toStatus) {
		return ErrDepositStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.LockedDeposit{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":          toStatus,
			"penalty_applied": penaltyApplied,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrDepositStatusInvalid
	}

	return nil
}
