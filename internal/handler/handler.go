package handler

import (
	"errors"
	"strconv"

	"momovault/internal/config"
	"momovault/internal/gateway"
	"momovault/internal/repository"
	"momovault/internal/service"
	"momovault/pkg/phone"
	"momovault/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	vaultService       *service.VaultService
	withdrawService    *service.WithdrawService
	transactionService *service.TransactionService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, gw gateway.Gateway, cfg *config.Config) *Handler {
	return &Handler{
		vaultService:       service.NewVaultService(db, cfg),
		withdrawService:    service.NewWithdrawService(db, rdb, gw, cfg),
		transactionService: service.NewTransactionService(db, cfg),
	}
}

// ============================================================
// 存款相关接口
// ============================================================

// DepositRequest 存款请求
type DepositRequest struct {
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	LockPeriodDays int             `json:"lock_period_days" binding:"required,gte=1"`
}

// Deposit 存入定期存款
// POST /api/v1/vault/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.vaultService.Deposit(c.Request.Context(), &service.DepositRequest{
		UserID:         CurrentUserID(c),
		Amount:         req.Amount,
		LockPeriodDays: req.LockPeriodDays,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			response.BusinessError(c, response.CodeInvalidAmount, err.Error())
		case errors.Is(err, service.ErrInvalidLockPeriod):
			response.BusinessError(c, response.CodeInvalidLockPeriod, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, result)
}

// GetVaultInfo 保险柜详情
// GET /api/v1/vault/info
func (h *Handler) GetVaultInfo(c *gin.Context) {
	info, err := h.vaultService.GetVaultInfo(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, info)
}

// ListWithdrawable 可提取存款预览
// GET /api/v1/vault/withdrawable
func (h *Handler) ListWithdrawable(c *gin.Context) {
	previews, err := h.vaultService.ListWithdrawable(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, previews)
}

// ============================================================
// 提现相关接口
// ============================================================

// WithdrawRequest 提现请求
// mode=ALL 提取全部；mode=EXPLICIT 按 deposit_ids 提取指定存款
type WithdrawRequest struct {
	RequestID   string  `json:"request_id" binding:"required"` // 幂等ID
	PhoneNumber string  `json:"phone_number" binding:"required"`
	Mode        string  `json:"mode" binding:"required"`
	DepositIDs  []int64 `json:"deposit_ids"`
}

// Withdraw 发起提现结算
// POST /api/v1/vault/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.withdrawService.Withdraw(c.Request.Context(), &service.WithdrawRequest{
		RequestID:   req.RequestID,
		UserID:      CurrentUserID(c),
		PhoneNumber: req.PhoneNumber,
		Mode:        req.Mode,
		DepositIDs:  req.DepositIDs,
	})
	if err != nil {
		h.writeWithdrawError(c, err)
		return
	}

	response.Success(c, result)
}

// writeWithdrawError 把结算错误映射成对外业务码
// 只报「哪条规则不满足」，不透传网关内部报文
func (h *Handler) writeWithdrawError(c *gin.Context, err error) {
	var rejected *gateway.RejectedError

	switch {
	case errors.Is(err, phone.ErrEmptyPhone), errors.Is(err, phone.ErrInvalidPhone):
		response.BusinessError(c, response.CodeInvalidPhone, err.Error())
	case errors.Is(err, service.ErrNoEligibleDeposits):
		response.BusinessError(c, response.CodeNoEligibleDeposits, err.Error())
	case errors.Is(err, service.ErrUnknownOrSettled):
		response.BusinessError(c, response.CodeUnknownOrSettled, err.Error())
	case errors.Is(err, service.ErrInvalidWithdrawMode), errors.Is(err, service.ErrEmptyDepositIDs):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInsufficientNet):
		response.BusinessError(c, response.CodeInsufficientNet, err.Error())
	case errors.Is(err, service.ErrSettlementInFlight):
		response.BusinessError(c, response.CodeSettlementInFlight, err.Error())
	case errors.Is(err, repository.ErrVaultNotFound):
		response.BusinessError(c, response.CodeVaultNotFound, err.Error())
	case errors.Is(err, repository.ErrNegativeBalance):
		response.BusinessError(c, response.CodeBalanceInconsistent, "保险柜余额异常，请联系客服")
	case errors.Is(err, gateway.ErrUnauthenticated):
		response.BusinessError(c, response.CodeGatewayUnauthenticated, "放款网关暂不可用，请稍后重试")
	case errors.Is(err, gateway.ErrIndeterminate):
		response.BusinessError(c, response.CodeGatewayIndeterminate, "放款结果待确认，请先对账后再重试")
	case errors.As(err, &rejected):
		response.BusinessError(c, response.CodeGatewayRejected, "放款被网关拒绝")
	default:
		response.ServerError(c, err.Error())
	}
}

// GetWithdrawStatus 查询结算单状态
// GET /api/v1/vault/withdraw/status?request_id=xxx
func (h *Handler) GetWithdrawStatus(c *gin.Context) {
	requestID := c.Query("request_id")
	if requestID == "" {
		response.ParamError(c, "request_id 参数错误")
		return
	}

	result, err := h.withdrawService.Status(c.Request.Context(), CurrentUserID(c), requestID)
	if err != nil {
		if errors.Is(err, repository.ErrSettlementNotFound) {
			response.BusinessError(c, response.CodeSettlementNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, result)
}

// ReconcileRequest 对账请求
type ReconcileRequest struct {
	RequestID string `json:"request_id" binding:"required"`
}

// Reconcile 对无定论的结算单发起对账
// POST /api/v1/vault/withdraw/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.withdrawService.Reconcile(c.Request.Context(), CurrentUserID(c), req.RequestID)
	if err != nil {
		if errors.Is(err, repository.ErrSettlementNotFound) {
			response.BusinessError(c, response.CodeSettlementNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, result)
}

// ============================================================
// 流水相关接口
// ============================================================

// ListTransactions 流水分页查询
// GET /api/v1/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	transactions, total, err := h.transactionService.History(c.Request.Context(), CurrentUserID(c), page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
