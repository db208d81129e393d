package repository

import (
	"context"
	"errors"

	"momovault/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrVaultNotFound   = errors.New("保险柜不存在")
	ErrNegativeBalance = errors.New("余额不足以扣减，疑似账务不一致")
)

type VaultRepository struct {
	db *gorm.DB
}

func NewVaultRepository(db *gorm.DB) *VaultRepository {
	return &VaultRepository{db: db}
}

func (r *VaultRepository) GetByUserID(ctx context.Context, userID int64) (*model.Vault, error) {
	var vault model.Vault
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&vault).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVaultNotFound
		}
		return nil, err
	}
	return &vault, nil
}

// GetOrCreate 首次存款时自动开柜
// OnConflict DoNothing 防止并发开柜时唯一索引冲突
func (r *VaultRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Vault, error) {
	vault, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return vault, nil
	}

	if !errors.Is(err, ErrVaultNotFound) {
		return nil, err
	}

	newVault := &model.Vault{
		UserID:  userID,
		Balance: decimal.Zero,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newVault).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// Increase 存款入柜，余额加
func (r *VaultRepository) Increase(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Vault{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrVaultNotFound
	}

	return nil
}

// Deduct 结算落账时扣减余额（扣的是被结算存款的本金合计）
//
// balance >= amount 写进 WHERE，余额永不为负。
// 不做版本比对：同一保险柜的结算已被分布式锁串行化，
// 并发存款只会加余额，不允许让一笔网关已受理的放款因此回滚
func (r *VaultRepository) Deduct(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Vault{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByUserID(ctx, userID); err != nil {
			return err
		}
		return ErrNegativeBalance
	}

	return nil
}
