package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 放款网关抽象
// ============================================================================
//
// 结算编排只依赖这组接口，不关心具体走哪家移动钱包。
// ReferenceID 由编排方每次结算尝试全新生成，作为外部侧的幂等键
// ============================================================================

var (
	// ErrUnauthenticated 拿不到网关授权凭证（或凭证被网关判定失效）
	ErrUnauthenticated = errors.New("放款网关认证失败")
	// ErrIndeterminate 超时 / 传输中断，放款结果无定论
	// 【重要】收到该错误后不允许直接重试，必须先调 TransferStatus 对账，
	// 否则可能把一笔可能已在途的钱再放一次
	ErrIndeterminate = errors.New("放款结果无定论，需要对账确认")
)

// RejectedError 网关明确拒绝放款
// Reason 只用于内部记录，不把网关原始报文原样透给用户
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "放款被网关拒绝: " + e.Reason
}

// DisburseRequest 一次放款请求
type DisburseRequest struct {
	ReferenceID string          // 幂等键，UUIDv4
	Amount      decimal.Decimal // 放款净额
	Currency    string
	PayeePhone  string // 收款方 MSISDN
	Message     string
}

// 对账查询到的外部转账状态
const (
	TransferStatusPending    = "PENDING"
	TransferStatusSuccessful = "SUCCESSFUL"
	TransferStatusFailed     = "FAILED"
)

// TransferStatus 对账查询结果
type TransferStatus struct {
	ReferenceID string
	Status      string
	Reason      string
}

// Gateway 放款网关能力
type Gateway interface {
	// Authenticate 获取（或复用缓存的）授权凭证
	Authenticate(ctx context.Context) error
	// Disburse 提交放款，返回 nil 表示网关已受理（accepted-for-processing）
	// 明确拒绝返回 *RejectedError；结果无定论返回 ErrIndeterminate
	Disburse(ctx context.Context, req *DisburseRequest) error
	// GetTransferStatus 按引用号查询放款的最终状态（对账用）
	GetTransferStatus(ctx context.Context, referenceID string) (*TransferStatus, error)
}
