package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"momovault/internal/config"
	"momovault/internal/gateway"
	"momovault/internal/infrastructure/lock"
	"momovault/internal/model"
	"momovault/internal/pricing"
	"momovault/internal/repository"
	"momovault/pkg/idgen"
	"momovault/pkg/phone"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrInsufficientNet 某笔存款扣除罚金和手续费后净额不为正，整个请求拒绝
	ErrInsufficientNet = errors.New("存款净额不足")
	// ErrSettlementInFlight 该保险柜存在无定论的结算单，新请求必须先对账
	ErrSettlementInFlight = errors.New("存在结果未确认的结算，请先对账")
	// ErrPartialCommit 外部放款已受理但本地落账事务失败
	// 这是账务一致性告警，不是普通业务错误：钱已出去，账还没落，
	// 必须由对账任务（或人工）按网关侧结果补落账，绝不能自动重放放款
	ErrPartialCommit = errors.New("放款已受理但本地落账失败")
)

// 结算编排对各协作方只依赖下面这组窄接口，
// 生产路径由 gorm/redis 仓储实现，测试用内存替身

type vaultStore interface {
	GetByUserID(ctx context.Context, userID int64) (*model.Vault, error)
	Deduct(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal) error
}

type depositStore interface {
	ListLockedByUserID(ctx context.Context, userID int64) ([]*model.LockedDeposit, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, penaltyApplied bool) error
}

type settlementStore interface {
	Create(ctx context.Context, tx *gorm.DB, settlement *model.Settlement) error
	GetByRequestID(ctx context.Context, userID int64, requestID string) (*model.Settlement, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, settlementNo string, fromStatus, toStatus string) error
	MarkRejected(ctx context.Context, settlementNo, reason string) error
	MarkFailed(ctx context.Context, settlementNo, fromStatus, reason string) error
	ListUnresolved(ctx context.Context, beforeTime time.Time, limit int) ([]*model.Settlement, error)
	ListStalePending(ctx context.Context, beforeTime time.Time, limit int) ([]*model.Settlement, error)
	HasUnresolvedByUserID(ctx context.Context, userID int64) (bool, error)
}

type ledgerStore interface {
	Create(ctx context.Context, tx *gorm.DB, trans *model.VaultTransaction) error
}

type outboxStore interface {
	Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error
}

type txRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

type vaultLocker interface {
	Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error
	Unlock(ctx context.Context) error
}

// WithdrawService 结算编排
//
// 状态机：PENDING -> SUBMITTED -> COMMITTED（成功）
//         PENDING -> REJECTED（提交前本地拒绝，零外部调用）
//         SUBMITTED -> FAILED / INDETERMINATE（网关拒绝 / 无定论）
//
// 不变式：每次外部放款至多对应一套本地账务变更；
//         本地账务绝不反映一笔没有真正发生的放款
type WithdrawService struct {
	db              txRunner
	gw              gateway.Gateway
	cfg             *config.Config
	newLock         func(userID int64, requestID string) vaultLocker
	vaultRepo       vaultStore
	depositRepo     depositStore
	transactionRepo ledgerStore
	settlementRepo  settlementStore
	outboxRepo      outboxStore
}

func NewWithdrawService(db *gorm.DB, redisClient *redis.Client, gw gateway.Gateway, cfg *config.Config) *WithdrawService {
	return &WithdrawService{
		db:  db,
		gw:  gw,
		cfg: cfg,
		newLock: func(userID int64, requestID string) vaultLocker {
			return lock.NewVaultLock(redisClient, userID, requestID)
		},
		vaultRepo:       repository.NewVaultRepository(db),
		depositRepo:     repository.NewDepositRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		settlementRepo:  repository.NewSettlementRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

type WithdrawRequest struct {
	RequestID   string  // 调用方幂等ID（按用户隔离）
	UserID      int64   // 来自认证层，不信任请求体
	PhoneNumber string  // 收款手机号
	Mode        string  // ALL / EXPLICIT
	DepositIDs  []int64 // EXPLICIT 模式下的存款ID集合
}

type WithdrawResponse struct {
	SettlementNo      string          `json:"settlement_no"`
	ReferenceID       string          `json:"reference_id"`
	Status            string          `json:"status"`
	TotalNet          decimal.Decimal `json:"total_net"`
	TotalPenalty      decimal.Decimal `json:"total_penalty"`
	TotalFee          decimal.Decimal `json:"total_fee"`
	DepositsProcessed int             `json:"deposits_processed"`
	Message           string          `json:"message,omitempty"`
}

// Withdraw 处理一次提现结算
func (s *WithdrawService) Withdraw(ctx context.Context, req *WithdrawRequest) (*WithdrawResponse, error) {
	payeePhone, err := phone.Format(req.PhoneNumber)
	if err != nil {
		return nil, err
	}

	// 幂等校验：同一用户同一 RequestID 直接返回上次结果，绝不重复执行。
	// 查询按用户隔离，别人的 RequestID 查不到也撞不上
	existing, err := s.settlementRepo.GetByRequestID(ctx, req.UserID, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询结算单失败: %w", err)
	}
	if existing != nil {
		return buildWithdrawResponse(existing, "结算单已存在"), nil
	}

	// 同一保险柜同一时刻至多一笔在途结算
	vaultLock := s.newLock(req.UserID, req.RequestID)
	if err := vaultLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer vaultLock.Unlock(ctx)

	// 获取锁后再次检查幂等
	existing, err = s.settlementRepo.GetByRequestID(ctx, req.UserID, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询结算单失败: %w", err)
	}
	if existing != nil {
		return buildWithdrawResponse(existing, "结算单已存在"), nil
	}

	// 有结果无定论的结算单时禁止受理新请求：那笔钱可能已经在途。
	// PENDING 也算：锁若在持有期间过期，这道检查兜底挡住重复选取
	unresolved, err := s.settlementRepo.HasUnresolvedByUserID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("查询结算单失败: %w", err)
	}
	if unresolved {
		return nil, ErrSettlementInFlight
	}

	// 选取：解析本次要结算的存款集合（只读）
	lockedDeposits, err := s.depositRepo.ListLockedByUserID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("查询存款失败: %w", err)
	}
	selected, err := SelectDeposits(lockedDeposits, req.Mode, req.DepositIDs)
	if err != nil {
		return nil, err
	}

	// 计价：全部存款必须净额为正，否则整单拒绝，不做部分结算
	now := time.Now()
	quotes, totals := pricing.PriceAll(selected, now)
	for i, q := range quotes {
		if !q.Withdrawable {
			return nil, fmt.Errorf("%w: 存款 %s 扣除罚金和手续费后不足以放款", ErrInsufficientNet, selected[i].DepositNo)
		}
	}

	// 提交外部放款前的余额防线：扣减后余额不能为负
	vault, err := s.vaultRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("获取保险柜失败: %w", err)
	}
	if vault.Balance.LessThan(totals.Principal) {
		log.Printf("[INTEGRITY] 余额与存款本金不一致: userID=%d, balance=%s, principal=%s",
			req.UserID, vault.Balance.StringFixed(2), totals.Principal.StringFixed(2))
		return nil, repository.ErrNegativeBalance
	}

	// 固化计价快照：落账（包括对账补偿落账）只认提交时刻的数字
	details := make([]model.SettlementDetail, 0, len(quotes))
	for _, q := range quotes {
		details = append(details, model.SettlementDetail{
			DepositID: q.DepositID,
			Principal: q.Principal,
			Penalty:   q.Penalty,
			FlatFee:   q.FlatFee,
			Net:       q.Net,
			IsEarly:   q.IsEarly,
		})
	}
	detailsBytes, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}

	// 引用号每次尝试全新生成，失败后不复用
	referenceID := uuid.NewString()
	settlement := &model.Settlement{
		SettlementNo:   idgen.GenerateSettlementNo(),
		RequestID:      req.RequestID,
		UserID:         req.UserID,
		PayeePhone:     payeePhone,
		ReferenceID:    referenceID,
		TotalPrincipal: totals.Principal,
		TotalPenalty:   totals.Penalty,
		TotalFee:       totals.FlatFee,
		TotalNet:       totals.Net,
		Details:        string(detailsBytes),
		Status:         model.SettlementStatusPending,
	}
	if err := s.settlementRepo.Create(ctx, nil, settlement); err != nil {
		return nil, fmt.Errorf("创建结算单失败: %w", err)
	}

	// 获取网关凭证；拿不到则本地拒绝，零外部资金调用
	if err := s.gw.Authenticate(ctx); err != nil {
		_ = s.settlementRepo.MarkRejected(ctx, settlement.SettlementNo, "网关认证失败")
		return nil, gateway.ErrUnauthenticated
	}

	// 提交放款：整个请求只打一次放款调用
	if err := s.settlementRepo.UpdateStatus(ctx, nil, settlement.SettlementNo,
		model.SettlementStatusPending, model.SettlementStatusSubmitted); err != nil {
		return nil, fmt.Errorf("更新结算单状态失败: %w", err)
	}

	disburseErr := s.gw.Disburse(ctx, &gateway.DisburseRequest{
		ReferenceID: referenceID,
		Amount:      totals.Net,
		Currency:    s.cfg.Momo.Currency,
		PayeePhone:  payeePhone,
		Message:     "MoMoVault 提现",
	})

	switch {
	case disburseErr == nil:
		// 网关已受理：本地账务一次性落账
		if err := s.commitSettlement(ctx, settlement, details, model.SettlementStatusSubmitted); err != nil {
			return nil, err
		}
		settlement.Status = model.SettlementStatusCommitted
		log.Printf("提现结算成功: settlementNo=%s, userID=%d, net=%s, referenceId=%s",
			settlement.SettlementNo, req.UserID, totals.Net.StringFixed(2), referenceID)
		return buildWithdrawResponse(settlement, "提现成功，放款已受理"), nil

	case errors.Is(disburseErr, gateway.ErrIndeterminate):
		// 无定论：不猜结果，标记待对账；存款保持 LOCKED，余额不动
		if err := s.settlementRepo.UpdateStatus(ctx, nil, settlement.SettlementNo,
			model.SettlementStatusSubmitted, model.SettlementStatusIndeterminate); err != nil {
			log.Printf("[WithdrawService] 标记无定论失败: settlementNo=%s, err=%v", settlement.SettlementNo, err)
		}
		return nil, gateway.ErrIndeterminate

	case errors.Is(disburseErr, gateway.ErrUnauthenticated):
		// 401 说明请求没有被受理，可以安全置失败
		_ = s.settlementRepo.MarkFailed(ctx, settlement.SettlementNo, model.SettlementStatusSubmitted, "网关认证失败")
		return nil, gateway.ErrUnauthenticated

	default:
		// 明确拒绝：本地零变更，调用方可用新 RequestID 重试
		var rejected *gateway.RejectedError
		reason := "网关拒绝"
		if errors.As(disburseErr, &rejected) {
			reason = rejected.Reason
		}
		_ = s.settlementRepo.MarkFailed(ctx, settlement.SettlementNo, model.SettlementStatusSubmitted, reason)
		log.Printf("提现被网关拒绝: settlementNo=%s, referenceId=%s, reason=%s", settlement.SettlementNo, referenceID, reason)
		return nil, disburseErr
	}
}

// commitSettlement 放款受理成功后的本地落账，单个数据库事务内全部完成：
//   - 每笔存款 LOCKED -> UNLOCKED / WITHDRAWN_EARLY（条件更新，抢不到就整体回滚）
//   - 保险柜余额扣减被结算存款的本金合计（WHERE balance >= ?，永不为负）
//   - 逐笔追加提现流水、罚金流水、手续费流水（共享同一引用号）
//   - 结算单推进到 COMMITTED，写结算结果事件
//
// fromStatus 区分正常链路（SUBMITTED）和对账补偿链路（INDETERMINATE）
func (s *WithdrawService) commitSettlement(ctx context.Context, settlement *model.Settlement, details []model.SettlementDetail, fromStatus string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, d := range details {
			toStatus := model.DepositStatusUnlocked
			if d.IsEarly {
				toStatus = model.DepositStatusWithdrawnEarly
			}
			if err := s.depositRepo.UpdateStatus(ctx, tx, d.DepositID, model.DepositStatusLocked, toStatus, d.Penalty.IsPositive()); err != nil {
				return fmt.Errorf("更新存款状态失败: depositID=%d, %w", d.DepositID, err)
			}

			withdrawal := &model.VaultTransaction{
				TransactionNo: idgen.GenerateTransactionNo(),
				UserID:        settlement.UserID,
				Type:          model.TransactionTypeWithdrawal,
				Amount:        d.Net,
				PenaltyFee:    d.Penalty,
				ReferenceID:   settlement.ReferenceID,
				DepositID:     d.DepositID,
				Remark:        "提现净额",
			}
			if err := s.transactionRepo.Create(ctx, tx, withdrawal); err != nil {
				return fmt.Errorf("记录提现流水失败: %w", err)
			}

			if d.Penalty.IsPositive() {
				penalty := &model.VaultTransaction{
					TransactionNo: idgen.GenerateTransactionNo(),
					UserID:        settlement.UserID,
					Type:          model.TransactionTypePenalty,
					Amount:        d.Penalty,
					PenaltyFee:    d.Penalty,
					ReferenceID:   settlement.ReferenceID,
					DepositID:     d.DepositID,
					Remark:        "提前支取罚金",
				}
				if err := s.transactionRepo.Create(ctx, tx, penalty); err != nil {
					return fmt.Errorf("记录罚金流水失败: %w", err)
				}
			}

			flatFee := &model.VaultTransaction{
				TransactionNo: idgen.GenerateTransactionNo(),
				UserID:        settlement.UserID,
				Type:          model.TransactionTypePenalty,
				Amount:        d.FlatFee,
				PenaltyFee:    d.FlatFee,
				ReferenceID:   settlement.ReferenceID,
				DepositID:     d.DepositID,
				Remark:        "提现固定手续费",
			}
			if err := s.transactionRepo.Create(ctx, tx, flatFee); err != nil {
				return fmt.Errorf("记录手续费流水失败: %w", err)
			}
		}

		if err := s.vaultRepo.Deduct(ctx, tx, settlement.UserID, settlement.TotalPrincipal); err != nil {
			return fmt.Errorf("余额扣减失败: %w", err)
		}

		if err := s.settlementRepo.UpdateStatus(ctx, tx, settlement.SettlementNo, fromStatus, model.SettlementStatusCommitted); err != nil {
			return fmt.Errorf("更新结算单状态失败: %w", err)
		}

		msgPayload := map[string]interface{}{
			"settlement_no": settlement.SettlementNo,
			"user_id":       settlement.UserID,
			"reference_id":  settlement.ReferenceID,
			"total_net":     settlement.TotalNet.StringFixed(2),
			"total_penalty": settlement.TotalPenalty.StringFixed(2),
			"total_fee":     settlement.TotalFee.StringFixed(2),
			"deposits":      len(details),
			"committed_at":  time.Now().Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: settlement.SettlementNo,
			Topic:      s.cfg.Kafka.Topic.SettlementResult,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		return nil
	})

	if err != nil {
		// 钱已受理、账没落上：结算单停在原状态，等对账任务按网关侧结果补落账
		log.Printf("[INTEGRITY] 落账事务失败: settlementNo=%s, referenceId=%s, err=%v",
			settlement.SettlementNo, settlement.ReferenceID, err)
		return fmt.Errorf("%w: %v", ErrPartialCommit, err)
	}

	return nil
}

// Status 查询结算单状态（按幂等ID，仅限本人）
func (s *WithdrawService) Status(ctx context.Context, userID int64, requestID string) (*WithdrawResponse, error) {
	settlement, err := s.settlementRepo.GetByRequestID(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, repository.ErrSettlementNotFound
	}
	return buildWithdrawResponse(settlement, ""), nil
}

// Reconcile 对账：向网关查询放款最终状态，推进无定论的结算单
//
// SUCCESSFUL -> 按提交时的计价快照补落账
// FAILED     -> 置 FAILED，本地零变更，解除该保险柜的在途限制
// PENDING    -> 网关还没出结果，保持现状
func (s *WithdrawService) Reconcile(ctx context.Context, userID int64, requestID string) (*WithdrawResponse, error) {
	settlement, err := s.settlementRepo.GetByRequestID(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, repository.ErrSettlementNotFound
	}

	if settlement.Status != model.SettlementStatusSubmitted && settlement.Status != model.SettlementStatusIndeterminate {
		return buildWithdrawResponse(settlement, "结算单已有结论，无需对账"), nil
	}

	return s.reconcileSettlement(ctx, settlement)
}

func (s *WithdrawService) reconcileSettlement(ctx context.Context, settlement *model.Settlement) (*WithdrawResponse, error) {
	transferStatus, err := s.gw.GetTransferStatus(ctx, settlement.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("对账查询失败: %w", err)
	}

	switch transferStatus.Status {
	case gateway.TransferStatusSuccessful:
		var details []model.SettlementDetail
		if err := json.Unmarshal([]byte(settlement.Details), &details); err != nil {
			return nil, fmt.Errorf("结算单计价明细损坏: %w", err)
		}
		if err := s.commitSettlement(ctx, settlement, details, settlement.Status); err != nil {
			return nil, err
		}
		settlement.Status = model.SettlementStatusCommitted
		log.Printf("对账确认放款成功，已补落账: settlementNo=%s, referenceId=%s", settlement.SettlementNo, settlement.ReferenceID)
		return buildWithdrawResponse(settlement, "对账确认放款成功"), nil

	case gateway.TransferStatusFailed:
		if err := s.settlementRepo.MarkFailed(ctx, settlement.SettlementNo, settlement.Status, transferStatus.Reason); err != nil {
			return nil, err
		}
		settlement.Status = model.SettlementStatusFailed
		log.Printf("对账确认放款失败: settlementNo=%s, referenceId=%s, reason=%s",
			settlement.SettlementNo, settlement.ReferenceID, transferStatus.Reason)
		return buildWithdrawResponse(settlement, "对账确认放款失败，存款未变动"), nil

	default:
		return buildWithdrawResponse(settlement, "网关处理中，请稍后再对账"), nil
	}
}

// ReconcileUnresolved 批量对账（后台任务入口）
//
// 两类悬挂单分开处理：
//   - 长时间停在 PENDING：外部放款从未提交，安全作废
//   - SUBMITTED / INDETERMINATE：按网关侧结果推进
func (s *WithdrawService) ReconcileUnresolved(ctx context.Context, beforeTime time.Time, limit int) (int, error) {
	resolved := 0

	stale, err := s.settlementRepo.ListStalePending(ctx, beforeTime, limit)
	if err != nil {
		return 0, err
	}
	for _, settlement := range stale {
		if err := s.settlementRepo.MarkRejected(ctx, settlement.SettlementNo, "提交前中断，超时作废"); err != nil {
			log.Printf("[WithdrawService] 作废悬挂结算单失败: settlementNo=%s, err=%v", settlement.SettlementNo, err)
			continue
		}
		log.Printf("[WithdrawService] 作废提交前中断的结算单: settlementNo=%s", settlement.SettlementNo)
		resolved++
	}

	settlements, err := s.settlementRepo.ListUnresolved(ctx, beforeTime, limit)
	if err != nil {
		return resolved, err
	}
	for _, settlement := range settlements {
		result, err := s.reconcileSettlement(ctx, settlement)
		if err != nil {
			log.Printf("[WithdrawService] 对账失败: settlementNo=%s, err=%v", settlement.SettlementNo, err)
			continue
		}
		if result.Status == model.SettlementStatusCommitted || result.Status == model.SettlementStatusFailed {
			resolved++
		}
	}
	return resolved, nil
}

func buildWithdrawResponse(settlement *model.Settlement, message string) *WithdrawResponse {
	depositsProcessed := 0
	if settlement.Details != "" {
		var details []model.SettlementDetail
		if err := json.Unmarshal([]byte(settlement.Details), &details); err == nil {
			depositsProcessed = len(details)
		}
	}

	return &WithdrawResponse{
		SettlementNo:      settlement.SettlementNo,
		ReferenceID:       settlement.ReferenceID,
		Status:            settlement.Status,
		TotalNet:          settlement.TotalNet,
		TotalPenalty:      settlement.TotalPenalty,
		TotalFee:          settlement.TotalFee,
		DepositsProcessed: depositsProcessed,
		Message:           message,
	}
}
