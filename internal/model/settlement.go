package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SettlementStatusPending       = "PENDING"       // 已受理，还未提交外部放款
	SettlementStatusSubmitted     = "SUBMITTED"     // 已向外部网关提交放款
	SettlementStatusCommitted     = "COMMITTED"     // 放款受理成功，本地账务已落账（终态）
	SettlementStatusRejected      = "REJECTED"      // 提交前被本地校验拒绝（终态，无外部调用）
	SettlementStatusFailed        = "FAILED"        // 网关明确拒绝或确认失败（终态，本地零变更）
	SettlementStatusIndeterminate = "INDETERMINATE" // 网关超时无定论，待对账
)

// ValidSettlementTransitions 结算单状态机
//
// PENDING 阶段的拒绝不产生任何外部调用；
// SUBMITTED 之后只能通过网关的明确答复（或对账）推进，不允许本地猜测结果
var ValidSettlementTransitions = map[string][]string{
	SettlementStatusPending:       {SettlementStatusSubmitted, SettlementStatusRejected},
	SettlementStatusSubmitted:     {SettlementStatusCommitted, SettlementStatusFailed, SettlementStatusIndeterminate},
	SettlementStatusIndeterminate: {SettlementStatusCommitted, SettlementStatusFailed},
}

func SettlementCanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidSettlementTransitions[currentStatus]
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

// Settlement 结算单表
// 一次提现请求对应一张结算单，串起「选取存款 -> 计价 -> 外部放款 -> 本地落账」全流程
//
// ReferenceID 每次结算尝试全新生成，作为外部放款的幂等键，失败后不复用
type Settlement struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SettlementNo   string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"settlement_no"`
	RequestID      string          `gorm:"type:varchar(64);uniqueIndex:uk_user_request;not null" json:"request_id"` // 调用方幂等ID，按用户隔离
	UserID         int64           `gorm:"uniqueIndex:uk_user_request;not null" json:"user_id"`
	PayeePhone     string          `gorm:"type:varchar(20);not null" json:"payee_phone"`            // 收款手机号（MSISDN）
	ReferenceID    string          `gorm:"type:varchar(64);index" json:"reference_id"`              // 外部放款引用号
	TotalPrincipal decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_principal"`      // 本金合计
	TotalPenalty   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_penalty"`        // 罚金合计
	TotalFee       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_fee"`            // 固定手续费合计
	TotalNet       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_net"`            // 实际放款净额
	Details        string          `gorm:"type:text" json:"details"`                                // 逐笔计价明细（JSON），对账落账时使用
	FailReason     string          `gorm:"type:varchar(256)" json:"fail_reason"`
	Status         string          `gorm:"type:varchar(20);index;not null" json:"status"`
	SubmittedAt    *time.Time      `json:"submitted_at"`
	CommittedAt    *time.Time      `json:"committed_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Settlement) TableName() string {
	return "settlement"
}

// SettlementDetail 结算单里每笔存款的计价快照
// 落账（含对账补偿落账）必须使用提交时刻的快照，而不是重新计价
type SettlementDetail struct {
	DepositID int64           `json:"deposit_id"`
	Principal decimal.Decimal `json:"principal"`
	Penalty   decimal.Decimal `json:"penalty"`
	FlatFee   decimal.Decimal `json:"flat_fee"`
	Net       decimal.Decimal `json:"net"`
	IsEarly   bool            `json:"is_early"`
}
