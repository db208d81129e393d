package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"momovault/internal/config"
	"momovault/internal/model"
	"momovault/internal/pricing"
	"momovault/internal/repository"
	"momovault/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount     = errors.New("存款金额必须大于0")
	ErrInvalidLockPeriod = errors.New("锁定天数必须不少于1天")
)

type VaultService struct {
	db              *gorm.DB
	cfg             *config.Config
	vaultRepo       *repository.VaultRepository
	depositRepo     *repository.DepositRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewVaultService(db *gorm.DB, cfg *config.Config) *VaultService {
	return &VaultService{
		db:              db,
		cfg:             cfg,
		vaultRepo:       repository.NewVaultRepository(db),
		depositRepo:     repository.NewDepositRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

type DepositRequest struct {
	UserID         int64
	Amount         decimal.Decimal
	LockPeriodDays int
}

type DepositResponse struct {
	DepositNo  string          `json:"deposit_no"`
	Amount     decimal.Decimal `json:"amount"`
	MaturityAt time.Time       `json:"maturity_at"`
	Balance    decimal.Decimal `json:"balance"`
}

// Deposit 存入一笔定期存款
// 建存款、加余额、记流水、写事件，四步在同一个数据库事务里完成
func (s *VaultService) Deposit(ctx context.Context, req *DepositRequest) (*DepositResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.LockPeriodDays < 1 {
		return nil, ErrInvalidLockPeriod
	}

	vault, err := s.vaultRepo.GetOrCreate(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("获取保险柜失败: %w", err)
	}

	now := time.Now()
	deposit := &model.LockedDeposit{
		DepositNo:      idgen.GenerateDepositNo(),
		UserID:         req.UserID,
		Amount:         req.Amount.Round(2),
		LockPeriodDays: req.LockPeriodDays,
		StartAt:        now,
		MaturityAt:     now.AddDate(0, 0, req.LockPeriodDays),
		Status:         model.DepositStatusLocked,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.depositRepo.Create(ctx, tx, deposit); err != nil {
			return fmt.Errorf("创建存款失败: %w", err)
		}

		if err := s.vaultRepo.Increase(ctx, tx, req.UserID, deposit.Amount); err != nil {
			return fmt.Errorf("余额入账失败: %w", err)
		}

		transaction := &model.VaultTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        req.UserID,
			Type:          model.TransactionTypeDeposit,
			Amount:        deposit.Amount,
			PenaltyFee:    decimal.Zero,
			DepositID:     deposit.ID,
			Remark:        fmt.Sprintf("存入-锁定%d天", req.LockPeriodDays),
		}
		if err := s.transactionRepo.Create(ctx, tx, transaction); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		msgPayload := map[string]interface{}{
			"deposit_no":       deposit.DepositNo,
			"user_id":          req.UserID,
			"amount":           deposit.Amount.StringFixed(2),
			"lock_period_days": req.LockPeriodDays,
			"maturity_at":      deposit.MaturityAt.Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: deposit.DepositNo,
			Topic:      s.cfg.Kafka.Topic.DepositConfirmed,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	log.Printf("存款成功: depositNo=%s, userID=%d, amount=%s, lockDays=%d",
		deposit.DepositNo, req.UserID, deposit.Amount.StringFixed(2), req.LockPeriodDays)

	return &DepositResponse{
		DepositNo:  deposit.DepositNo,
		Amount:     deposit.Amount,
		MaturityAt: deposit.MaturityAt,
		Balance:    vault.Balance.Add(deposit.Amount),
	}, nil
}

// DepositPreview 单笔存款的提取预览
type DepositPreview struct {
	DepositID          int64           `json:"deposit_id"`
	DepositNo          string          `json:"deposit_no"`
	Amount             decimal.Decimal `json:"amount"`
	LockPeriodDays     int             `json:"lock_period_days"`
	StartAt            time.Time       `json:"start_at"`
	MaturityAt         time.Time       `json:"maturity_at"`
	Status             string          `json:"status"`
	IsEarly            bool            `json:"is_early"`
	Penalty            decimal.Decimal `json:"penalty"`
	FlatFee            decimal.Decimal `json:"flat_fee"`
	NetAmount          decimal.Decimal `json:"net_amount"`
	Withdrawable       bool            `json:"withdrawable"`
	HoursUntilMaturity int             `json:"hours_until_maturity"`
}

// VaultInfo 保险柜详情
type VaultInfo struct {
	Balance            decimal.Decimal           `json:"balance"`
	Deposits           []*DepositPreview         `json:"deposits"`
	RecentTransactions []*model.VaultTransaction `json:"recent_transactions"`
	WithdrawalPreview  *WithdrawalPreview        `json:"withdrawal_preview"`
}

// WithdrawalPreview 全部可提存款的合计预览
type WithdrawalPreview struct {
	TotalLocked    decimal.Decimal `json:"total_locked"`
	TotalPenalties decimal.Decimal `json:"total_penalties"`
	TotalFees      decimal.Decimal `json:"total_fees"`
	NetAvailable   decimal.Decimal `json:"net_available"`
	DepositCount   int             `json:"deposit_count"`
}

// GetVaultInfo 保险柜详情：余额、逐笔存款、最近流水、提现预览
// 预览复用结算链路同一个计价器，口径完全一致，且不产生任何写入
func (s *VaultService) GetVaultInfo(ctx context.Context, userID int64) (*VaultInfo, error) {
	balance := decimal.Zero
	vault, err := s.vaultRepo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrVaultNotFound) {
		return nil, err
	}
	if err == nil {
		balance = vault.Balance
	}

	deposits, err := s.depositRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询存款失败: %w", err)
	}

	recentTransactions, err := s.transactionRepo.ListRecentByUserID(ctx, userID, 10)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}

	now := time.Now()
	previews := make([]*DepositPreview, 0, len(deposits))
	preview := &WithdrawalPreview{
		TotalLocked:    decimal.Zero,
		TotalPenalties: decimal.Zero,
		TotalFees:      decimal.Zero,
		NetAvailable:   decimal.Zero,
	}

	for _, d := range deposits {
		p := buildDepositPreview(d, now)
		previews = append(previews, p)

		if d.Status != model.DepositStatusLocked {
			continue
		}
		preview.TotalLocked = preview.TotalLocked.Add(d.Amount)
		preview.TotalPenalties = preview.TotalPenalties.Add(p.Penalty)
		preview.TotalFees = preview.TotalFees.Add(p.FlatFee)
		preview.NetAvailable = preview.NetAvailable.Add(p.NetAmount)
		preview.DepositCount++
	}

	return &VaultInfo{
		Balance:            balance,
		Deposits:           previews,
		RecentTransactions: recentTransactions,
		WithdrawalPreview:  preview,
	}, nil
}

// ListWithdrawable 逐笔列出 LOCKED 存款的提取预览
func (s *VaultService) ListWithdrawable(ctx context.Context, userID int64) ([]*DepositPreview, error) {
	deposits, err := s.depositRepo.ListLockedByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询存款失败: %w", err)
	}

	now := time.Now()
	previews := make([]*DepositPreview, 0, len(deposits))
	for _, d := range deposits {
		previews = append(previews, buildDepositPreview(d, now))
	}
	return previews, nil
}

func buildDepositPreview(d *model.LockedDeposit, now time.Time) *DepositPreview {
	q := pricing.Price(d, now)

	hoursUntilMaturity := 0
	if now.Before(d.MaturityAt) {
		hoursUntilMaturity = int(math.Ceil(d.MaturityAt.Sub(now).Hours()))
	}

	return &DepositPreview{
		DepositID:          d.ID,
		DepositNo:          d.DepositNo,
		Amount:             d.Amount,
		LockPeriodDays:     d.LockPeriodDays,
		StartAt:            d.StartAt,
		MaturityAt:         d.MaturityAt,
		Status:             d.Status,
		IsEarly:            q.IsEarly,
		Penalty:            q.Penalty,
		FlatFee:            q.FlatFee,
		NetAmount:          q.Net,
		Withdrawable:       q.Withdrawable && d.Status == model.DepositStatusLocked,
		HoursUntilMaturity: hoursUntilMaturity,
	}
}
