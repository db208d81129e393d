package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeDeposit    = "DEPOSIT"    // 存入
	TransactionTypeWithdrawal = "WITHDRAWAL" // 提现（净额出账）
	TransactionTypePenalty    = "PENALTY"    // 罚金 / 固定手续费
)

// ============================================================================
// 保险柜流水实体
// ============================================================================

// VaultTransaction 保险柜流水表
// 记录每一笔存入、提现、罚金事件，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 提现相关流水必须携带放款引用号 —— 与外部放款一一对应
// 3. 每笔流水关联到具体的定期存款 —— 便于逐笔核对
type VaultTransaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64           `gorm:"index;not null" json:"user_id"`                               // 用户ID
	Type          string          `gorm:"type:varchar(20);not null" json:"type"`                       // 交易类型
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`                   // 金额
	PenaltyFee    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"penalty_fee"`              // 关联罚金/手续费
	ReferenceID   string          `gorm:"type:varchar(64);index" json:"reference_id"`                  // 外部放款引用号
	DepositID     int64           `gorm:"index" json:"deposit_id"`                                     // 关联定期存款ID
	Remark        string          `gorm:"type:varchar(256)" json:"remark"`                             // 备注
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (VaultTransaction) TableName() string {
	return "vault_transaction"
}
