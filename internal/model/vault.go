package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vault 用户保险柜表
// 记录用户锁仓资金的总余额，是整个储蓄系统的核心数据
//
// 余额不变式：balance == 所有未结算定期存款的本金之和
// 任何会把余额扣成负数的结算，必须在调用外部放款接口之前被拒绝
type Vault struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64           `gorm:"uniqueIndex;not null" json:"user_id"`             // 用户ID，由认证层传入
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance"`      // 锁仓总余额
	Version   int             `gorm:"not null;default:0" json:"version"`               // 乐观锁版本号
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Vault) TableName() string {
	return "vault"
}
