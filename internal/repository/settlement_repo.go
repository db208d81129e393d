package repository

import (
	"context"
	"errors"
	"time"

	"momovault/internal/model"

	"gorm.io/gorm"
)

var (
	ErrSettlementNotFound      = errors.New("结算单不存在")
	ErrSettlementStatusInvalid = errors.New("结算单状态不合法")
)

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) Create(ctx context.Context, tx *gorm.DB, settlement *model.Settlement) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(settlement).Error
}

func (r *SettlementRepository) GetBySettlementNo(ctx context.Context, settlementNo string) (*model.Settlement, error) {
	var settlement model.Settlement
	err := r.db.WithContext(ctx).Where("settlement_no = ?", settlementNo).First(&settlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}
	return &settlement, nil
}

// GetByRequestID 按幂等ID查结算单，查不到返回 nil 不报错
// 幂等ID是调用方自选的，必须按用户隔离：绝不允许用户A用（猜到的）
// 用户B的 request_id 读到B的结算单
func (r *SettlementRepository) GetByRequestID(ctx context.Context, userID int64, requestID string) (*model.Settlement, error) {
	var settlement model.Settlement
	err := r.db.WithContext(ctx).Where("user_id = ? AND request_id = ?", userID, requestID).First(&settlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settlement, nil
}

// UpdateStatus 条件更新结算单状态，WHERE 带旧状态 + 状态机校验
func (r *SettlementRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, settlementNo string, fromStatus, toStatus string) error {
	if !model.SettlementCanTransitionTo(fromStatus, toStatus) {
		return ErrSettlementStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}

	now := time.Now()
	switch toStatus {
	case model.SettlementStatusSubmitted:
		updates["submitted_at"] = &now
	case model.SettlementStatusCommitted:
		updates["committed_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.Settlement{}).
		Where("settlement_no = ? AND status = ?", settlementNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrSettlementStatusInvalid
	}

	return nil
}

// MarkRejected 记录拒绝原因并置为 REJECTED（提交外部放款之前的本地拒绝）
func (r *SettlementRepository) MarkRejected(ctx context.Context, settlementNo, reason string) error {
	if !model.SettlementCanTransitionTo(model.SettlementStatusPending, model.SettlementStatusRejected) {
		return ErrSettlementStatusInvalid
	}

	result := r.db.WithContext(ctx).
		Model(&model.Settlement{}).
		Where("settlement_no = ? AND status = ?", settlementNo, model.SettlementStatusPending).
		Updates(map[string]interface{}{
			"status":      model.SettlementStatusRejected,
			"fail_reason": reason,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSettlementStatusInvalid
	}
	return nil
}

// MarkFailed 网关明确拒绝（或对账确认失败）后置为 FAILED
func (r *SettlementRepository) MarkFailed(ctx context.Context, settlementNo, fromStatus, reason string) error {
	if !model.SettlementCanTransitionTo(fromStatus, model.SettlementStatusFailed) {
		return ErrSettlementStatusInvalid
	}

	result := r.db.WithContext(ctx).
		Model(&model.Settlement{}).
		Where("settlement_no = ? AND status = ?", settlementNo, fromStatus).
		Updates(map[string]interface{}{
			"status":      model.SettlementStatusFailed,
			"fail_reason": reason,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSettlementStatusInvalid
	}
	return nil
}

// ListUnresolved 捞出长时间没有结论的结算单（已提交 / 无定论），给对账任务用
func (r *SettlementRepository) ListUnresolved(ctx context.Context, beforeTime time.Time, limit int) ([]*model.Settlement, error) {
	var settlements []*model.Settlement
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{model.SettlementStatusSubmitted, model.SettlementStatusIndeterminate},
			beforeTime).
		Limit(limit).
		Find(&settlements).Error
	return settlements, err
}

// HasUnresolvedByUserID 用户是否存在无定论的结算单
// 有的话新的提现请求一律先对账再受理，避免同一笔钱重复在途。
// PENDING 也算在途：持锁进程若中途消失，锁过期后新请求不能趁虚重复选取
func (r *SettlementRepository) HasUnresolvedByUserID(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Settlement{}).
		Where("user_id = ? AND status IN ?", userID,
			[]string{model.SettlementStatusPending, model.SettlementStatusSubmitted, model.SettlementStatusIndeterminate}).
		Count(&count).Error
	return count > 0, err
}

// ListStalePending 捞出长时间停在 PENDING 的结算单
// PENDING 意味着外部放款从未提交过，可以安全作废，解除该保险柜的在途限制
func (r *SettlementRepository) ListStalePending(ctx context.Context, beforeTime time.Time, limit int) ([]*model.Settlement, error) {
	var settlements []*model.Settlement
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.SettlementStatusPending, beforeTime).
		Limit(limit).
		Find(&settlements).Error
	return settlements, err
}
