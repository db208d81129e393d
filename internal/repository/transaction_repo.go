package repository

import (
	"context"

	"momovault/internal/model"

	"gorm.io/gorm"
)

// TransactionRepository 保险柜流水仓储
// 流水只追加：这里刻意不提供任何 Update / Delete 方法
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.VaultTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.VaultTransaction, error) {
	var trans model.VaultTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// ListByReferenceID 按外部放款引用号查流水，对账时核对某次放款落了哪些账
func (r *TransactionRepository) ListByReferenceID(ctx context.Context, referenceID string) ([]*model.VaultTransaction, error) {
	var transactions []*model.VaultTransaction
	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

// ListByUserID 用户流水分页查询，新的在前
func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.VaultTransaction, int64, error) {
	var transactions []*model.VaultTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.VaultTransaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// ListRecentByUserID 最近 N 条流水（保险柜详情页展示用）
func (r *TransactionRepository) ListRecentByUserID(ctx context.Context, userID int64, limit int) ([]*model.VaultTransaction, error) {
	var transactions []*model.VaultTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}
