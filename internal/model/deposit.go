package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DepositStatusLocked         = "LOCKED"
	DepositStatusUnlocked       = "UNLOCKED"
	DepositStatusWithdrawnEarly = "WITHDRAWN_EARLY"
)

// ValidDepositTransitions 定期存款状态机
// LOCKED 是唯一的非终态：一旦解锁或提前支取，记录不可再变更（只保留作审计）
var ValidDepositTransitions = map[string][]string{
	DepositStatusLocked: {DepositStatusUnlocked, DepositStatusWithdrawnEarly},
}

func DepositCanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidDepositTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// LockedDeposit 定期存款表
// 一笔锁定的本金，锁定期满前支取会产生罚金
type LockedDeposit struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DepositNo      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"deposit_no"`
	UserID         int64           `gorm:"index;not null" json:"user_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`       // 本金
	LockPeriodDays int             `gorm:"not null" json:"lock_period_days"`                // 锁定天数（>=1）
	StartAt        time.Time       `gorm:"not null" json:"start_at"`                        // 起息时间
	MaturityAt     time.Time       `gorm:"not null;index" json:"maturity_at"`               // 到期时间 = StartAt + 锁定天数
	Status         string          `gorm:"type:varchar(20);index;not null" json:"status"`
	PenaltyApplied bool            `gorm:"not null;default:false" json:"penalty_applied"`   // 是否扣过罚金
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LockedDeposit) TableName() string {
	return "locked_deposit"
}

// IsMature 判断在参考时间点存款是否已到期
func (d *LockedDeposit) IsMature(now time.Time) bool {
	return !now.Before(d.MaturityAt)
}
