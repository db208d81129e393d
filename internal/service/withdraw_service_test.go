package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sort"
	"testing"
	"time"

	"momovault/internal/config"
	"momovault/internal/gateway"
	"momovault/internal/model"
	"momovault/internal/repository"
	"momovault/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	idgen.Init(1)
	os.Exit(m.Run())
}

// ----------------------------------------------------------------------------
// 内存替身：结算编排只依赖窄接口，这里用纯内存实现替代 gorm/redis
// ----------------------------------------------------------------------------

type stubGateway struct {
	authErr     error
	disburseErr error
	disburses   []gateway.DisburseRequest
	statusByRef map[string]*gateway.TransferStatus
}

func (g *stubGateway) Authenticate(ctx context.Context) error { return g.authErr }

func (g *stubGateway) Disburse(ctx context.Context, req *gateway.DisburseRequest) error {
	g.disburses = append(g.disburses, *req)
	return g.disburseErr
}

func (g *stubGateway) GetTransferStatus(ctx context.Context, referenceID string) (*gateway.TransferStatus, error) {
	if st, ok := g.statusByRef[referenceID]; ok {
		return st, nil
	}
	return &gateway.TransferStatus{ReferenceID: referenceID, Status: gateway.TransferStatusPending}, nil
}

type memVaults struct {
	byUser map[int64]*model.Vault
}

func (m *memVaults) GetByUserID(ctx context.Context, userID int64) (*model.Vault, error) {
	v, ok := m.byUser[userID]
	if !ok {
		return nil, repository.ErrVaultNotFound
	}
	return v, nil
}

func (m *memVaults) Deduct(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal) error {
	v, ok := m.byUser[userID]
	if !ok {
		return repository.ErrVaultNotFound
	}
	if v.Balance.LessThan(amount) {
		return repository.ErrNegativeBalance
	}
	v.Balance = v.Balance.Sub(amount)
	v.Version++
	return nil
}

type memDeposits struct {
	byID map[int64]*model.LockedDeposit
}

func (m *memDeposits) ListLockedByUserID(ctx context.Context, userID int64) ([]*model.LockedDeposit, error) {
	var out []*model.LockedDeposit
	for _, d := range m.byID {
		if d.UserID == userID && d.Status == model.DepositStatusLocked {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDeposits) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, penaltyApplied bool) error {
	d, ok := m.byID[id]
	if !ok {
		return repository.ErrDepositNotFound
	}
	if d.Status != fromStatus || !model.DepositCanTransitionTo(fromStatus, toStatus) {
		return repository.ErrDepositStatusInvalid
	}
	d.Status = toStatus
	d.PenaltyApplied = penaltyApplied
	return nil
}

type memSettlements struct {
	byNo map[string]*model.Settlement
}

func (m *memSettlements) Create(ctx context.Context, tx *gorm.DB, settlement *model.Settlement) error {
	for _, s := range m.byNo {
		if s.UserID == settlement.UserID && s.RequestID == settlement.RequestID {
			return errors.New("结算单幂等键冲突")
		}
	}
	now := time.Now()
	settlement.CreatedAt = now
	settlement.UpdatedAt = now
	m.byNo[settlement.SettlementNo] = settlement
	return nil
}

func (m *memSettlements) GetByRequestID(ctx context.Context, userID int64, requestID string) (*model.Settlement, error) {
	for _, s := range m.byNo {
		if s.UserID == userID && s.RequestID == requestID {
			return s, nil
		}
	}
	return nil, nil
}

func (m *memSettlements) UpdateStatus(ctx context.Context, tx *gorm.DB, settlementNo string, fromStatus, toStatus string) error {
	s, ok := m.byNo[settlementNo]
	if !ok {
		return repository.ErrSettlementNotFound
	}
	if s.Status != fromStatus || !model.SettlementCanTransitionTo(fromStatus, toStatus) {
		return repository.ErrSettlementStatusInvalid
	}
	now := time.Now()
	s.Status = toStatus
	s.UpdatedAt = now
	switch toStatus {
	case model.SettlementStatusSubmitted:
		s.SubmittedAt = &now
	case model.SettlementStatusCommitted:
		s.CommittedAt = &now
	}
	return nil
}

func (m *memSettlements) MarkRejected(ctx context.Context, settlementNo, reason string) error {
	s, ok := m.byNo[settlementNo]
	if !ok {
		return repository.ErrSettlementNotFound
	}
	if s.Status != model.SettlementStatusPending {
		return repository.ErrSettlementStatusInvalid
	}
	s.Status = model.SettlementStatusRejected
	s.FailReason = reason
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memSettlements) MarkFailed(ctx context.Context, settlementNo, fromStatus, reason string) error {
	s, ok := m.byNo[settlementNo]
	if !ok {
		return repository.ErrSettlementNotFound
	}
	if s.Status != fromStatus || !model.SettlementCanTransitionTo(fromStatus, model.SettlementStatusFailed) {
		return repository.ErrSettlementStatusInvalid
	}
	s.Status = model.SettlementStatusFailed
	s.FailReason = reason
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memSettlements) ListUnresolved(ctx context.Context, beforeTime time.Time, limit int) ([]*model.Settlement, error) {
	var out []*model.Settlement
	for _, s := range m.byNo {
		if (s.Status == model.SettlementStatusSubmitted || s.Status == model.SettlementStatusIndeterminate) &&
			s.UpdatedAt.Before(beforeTime) && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSettlements) ListStalePending(ctx context.Context, beforeTime time.Time, limit int) ([]*model.Settlement, error) {
	var out []*model.Settlement
	for _, s := range m.byNo {
		if s.Status == model.SettlementStatusPending && s.UpdatedAt.Before(beforeTime) && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSettlements) HasUnresolvedByUserID(ctx context.Context, userID int64) (bool, error) {
	for _, s := range m.byNo {
		if s.UserID != userID {
			continue
		}
		switch s.Status {
		case model.SettlementStatusPending, model.SettlementStatusSubmitted, model.SettlementStatusIndeterminate:
			return true, nil
		}
	}
	return false, nil
}

type memLedger struct {
	rows []*model.VaultTransaction
}

func (m *memLedger) Create(ctx context.Context, tx *gorm.DB, trans *model.VaultTransaction) error {
	m.rows = append(m.rows, trans)
	return nil
}

type memOutbox struct {
	msgs []*model.OutboxMessage
}

func (m *memOutbox) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	m.msgs = append(m.msgs, msg)
	return nil
}

type memTx struct{}

func (memTx) Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	return fc(nil)
}

type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	return nil
}
func (noopLocker) Unlock(ctx context.Context) error { return nil }

// ----------------------------------------------------------------------------
// 测试夹具
// ----------------------------------------------------------------------------

type withdrawFixture struct {
	svc         *WithdrawService
	gw          *stubGateway
	vaults      *memVaults
	deposits    *memDeposits
	settlements *memSettlements
	ledger      *memLedger
	outbox      *memOutbox
}

func newWithdrawFixture() *withdrawFixture {
	cfg := &config.Config{}
	cfg.Momo.Currency = "SZL"
	cfg.Kafka.Topic.SettlementResult = "vault-settlement-result"
	cfg.Business.ReconcileAfterMinutes = 5

	f := &withdrawFixture{
		gw:          &stubGateway{statusByRef: map[string]*gateway.TransferStatus{}},
		vaults:      &memVaults{byUser: map[int64]*model.Vault{}},
		deposits:    &memDeposits{byID: map[int64]*model.LockedDeposit{}},
		settlements: &memSettlements{byNo: map[string]*model.Settlement{}},
		ledger:      &memLedger{},
		outbox:      &memOutbox{},
	}
	f.svc = &WithdrawService{
		db:              memTx{},
		gw:              f.gw,
		cfg:             cfg,
		newLock:         func(userID int64, requestID string) vaultLocker { return noopLocker{} },
		vaultRepo:       f.vaults,
		depositRepo:     f.deposits,
		transactionRepo: f.ledger,
		settlementRepo:  f.settlements,
		outboxRepo:      f.outbox,
	}
	return f
}

func (f *withdrawFixture) addVault(userID int64, balance string) *model.Vault {
	v := &model.Vault{ID: userID, UserID: userID, Balance: decimal.RequireFromString(balance), Version: 1}
	f.vaults.byUser[userID] = v
	return v
}

func (f *withdrawFixture) addDeposit(id, userID int64, amount string, matured bool) *model.LockedDeposit {
	now := time.Now()
	d := &model.LockedDeposit{
		ID:             id,
		DepositNo:      "DEP-test",
		UserID:         userID,
		Amount:         decimal.RequireFromString(amount),
		LockPeriodDays: 30,
		Status:         model.DepositStatusLocked,
	}
	if matured {
		d.StartAt = now.AddDate(0, 0, -40)
		d.MaturityAt = now.AddDate(0, 0, -10)
	} else {
		d.StartAt = now
		d.MaturityAt = now.AddDate(0, 0, 30)
	}
	f.deposits.byID[id] = d
	return d
}

func mustWithdraw(t *testing.T, f *withdrawFixture, userID int64, requestID string) *WithdrawResponse {
	t.Helper()
	resp, err := f.svc.Withdraw(context.Background(), &WithdrawRequest{
		RequestID:   requestID,
		UserID:      userID,
		PhoneNumber: "76123456",
		Mode:        WithdrawModeAll,
	})
	if err != nil {
		t.Fatalf("Withdraw() err = %v", err)
	}
	return resp
}

// ----------------------------------------------------------------------------
// 用例
// ----------------------------------------------------------------------------

func TestWithdrawCommitsMatureDeposits(t *testing.T) {
	f := newWithdrawFixture()
	f.addVault(1, "300")
	f.addDeposit(11, 1, "100", true)
	f.addDeposit(12, 1, "100", true)

	resp := mustWithdraw(t, f, 1, "req-commit")

	if resp.Status != model.SettlementStatusCommitted {
		t.Fatalf("status = %s, want COMMITTED", resp.Status)
	}
	// 每笔到期存款净额 = 100 - 5 手续费
	if !resp.TotalNet.Equal(decimal.RequireFromString("190")) {
		t.Fatalf("totalNet = %s, want 190", resp.TotalNet)
	}
	if resp.DepositsProcessed != 2 {
		t.Fatalf("depositsProcessed = %d, want 2", resp.DepositsProcessed)
	}

	if len(f.gw.disburses) != 1 {
		t.Fatalf("网关放款调用 %d 次, want 1", len(f.gw.disburses))
	}
	dr := f.gw.disburses[0]
	if !dr.Amount.Equal(decimal.RequireFromString("190")) || dr.PayeePhone != "26876123456" {
		t.Fatalf("disburse = %+v", dr)
	}
	if dr.ReferenceID != resp.ReferenceID {
		t.Fatalf("引用号不一致: %s vs %s", dr.ReferenceID, resp.ReferenceID)
	}

	for _, id := range []int64{11, 12} {
		if got := f.deposits.byID[id].Status; got != model.DepositStatusUnlocked {
			t.Fatalf("存款 %d 状态 = %s, want UNLOCKED", id, got)
		}
	}
	if !f.vaults.byUser[1].Balance.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("balance = %s, want 100", f.vaults.byUser[1].Balance)
	}

	// 到期存款无罚金：每笔一条提现流水 + 一条手续费流水
	if len(f.ledger.rows) != 4 {
		t.Fatalf("流水 %d 条, want 4", len(f.ledger.rows))
	}
	for _, row := range f.ledger.rows {
		if row.ReferenceID != resp.ReferenceID {
			t.Fatalf("流水引用号 = %s, want %s", row.ReferenceID, resp.ReferenceID)
		}
	}
	if len(f.outbox.msgs) != 1 {
		t.Fatalf("outbox %d 条, want 1", len(f.outbox.msgs))
	}
}

func TestWithdrawIdempotentResubmit(t *testing.T) {
	f := newWithdrawFixture()
	f.addVault(1, "100")
	f.addDeposit(11, 1, "100", true)

	first := mustWithdraw(t, f, 1, "req-idem")

	second, err := f.svc.Withdraw(context.Background(), &WithdrawRequest{
		RequestID:   "req-idem",
		UserID:      1,
		PhoneNumber: "76123456",
		Mode:        WithdrawModeAll,
	})
	if err != nil {
		t.Fatalf("重复提交 err = %v", err)
	}

	if second.SettlementNo != first.SettlementNo {
		t.Fatalf("重复提交返回了新结算单: %s vs %s", second.SettlementNo, first.SettlementNo)
	}
	if len(f.gw.disburses) != 1 {
		t.Fatalf("重复提交触发了第 %d 次放款", len(f.gw.disburses))
	}
	if len(f.ledger.rows) != 2 {
		t.Fatalf("重复提交产生了额外流水: %d 条", len(f.ledger.rows))
	}
}

func TestWithdrawRequestIDScopedPerUser(t *testing.T) {
	f := newWithdrawFixture()
	f.addVault(1, "100")
	f.addDeposit(11, 1, "100", true)
	f.addVault(2, "50")
	f.addDeposit(21, 2, "50", true)

	respA := mustWithdraw(t, f, 1, "shared-request-id")
	respB := mustWithdraw(t, f, 2, "shared-request-id")

	// 用户B用和用户A相同的 request_id，必须得到自己的结算，而不是A的单据
	if respB.SettlementNo == respA.SettlementNo {
		t.Fatal("不同用户的相同 request_id 返回了同一张结算单")
	}
	if !respB.TotalNet.Equal(decimal.RequireFromString("45")) {
		t.Fatalf("用户B totalNet = %s, want 45", respB.TotalNet)
	}
	if len(f.gw.disburses) != 2 {
		t.Fatalf("放款调用 %d 次, want 2", len(f.gw.disburses))
	}
	if got := f.deposits.byID[21].Status; got != model.DepositStatusUnlocked {
		t.Fatalf("用户B的存款状态 = %s, want UNLOCKED", got)
	}
}

func TestWithdrawEarlyDepositPenaltyLedger(t *testing.T) {
	f := newWithdrawFixture()
	f.addVault(1, "100")
	f.addDeposit(11, 1, "100", false)

	resp := mustWithdraw(t, f, 1, "req-early")

	// 提前支取：罚金 10，手续费 5，净额 85
	if !resp.TotalNet.Equal(decimal.RequireFromString("85")) {
		t.Fatalf("totalNet = %s, want 85", resp.TotalNet)
	}
	d := f.deposits.byID[11]
	if d.Status != model.DepositStatusWithdrawnEarly || !d.PenaltyApplied {
		t.Fatalf("存款 = %s penaltyApplied=%v, want WITHDRAWN_EARLY/true", d.Status, d.PenaltyApplied)
	}

	// 提现流水 + 罚金流水 + 手续费流水
	if len(f.ledger.rows) != 3 {
		t.Fatalf("流水 %d 条, want 3", len(f.ledger.rows))
	}
	var penaltyTotal decimal.Decimal
	for _, row := range f.ledger.rows {
		if row.Type == model.TransactionTypePenalty {
			penaltyTotal = penaltyTotal.Add(row.Amount)
		}
	}
	if !penaltyTotal.Equal(decimal.RequireFromString("15")) {
		t.Fatalf("罚金类流水合计 = %s, want 15", penaltyTotal)
	}
	if !f.vaults.byUser[1].Balance.Equal(decimal.Zero) {
		t.Fatalf("balance = %s, want 0", f.vaults.byUser[1].Balance)
	}
}

func TestWithdrawGatewayRejectedLeavesStateUntouched(t *testing.T) {
	f := newWithdrawFixture()
	f.addVault(1, "100")
	f.addDeposit(11, 1, "100", true)
	f.gw.disburseErr = &gateway.RejectedError{Reason: "payee blocked"}

	_, err := f.svc.Withdraw(context.Background(), &WithdrawRequest{
		RequestID:   "req-rejected",
		UserID:      1,
		PhoneNumber: "76123456",
		Mode:        WithdrawModeAll,
	})

	var rejected *gateway.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want RejectedError", err)
	}

	settlement, _ := f.settlements.GetByRequestID(context.Background(), 1, "req-rejected")
	if settlement == nil || settlement.Status != model.SettlementStatusFailed {
		t.Fatalf("settlement = %+v, want FAILED", settlement)
	}
	if got := f.deposits.byID[11].Status; got != model.DepositStatusLocked {
		t.Fatalf("存款状态 = %s, want LOCKED", got)
	}
	if !f.vaults.byUser[1].Balance.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("balance = %s, want 100", f.vaults.byUser[1].Balance)
	}
	if len(f.ledger.rows) != 0 || len(f.outbox.msgs) != 0 {
		t.Fatalf("明确拒绝后产生了本地账务变更: ledger=%d outbox=%d", len(f.ledger.rows), len(f.outbox.msgs))
	}

	// FAILED 是终态，不挡后续请求：换新 request_id 可以重试成功
	f.gw.disburseErr = nil
	retry := mustWithdraw(t, f, 1, "req-retry")
	if retry.Status != model.SettlementStatusCommitted {
		t.Fatalf("重试 status = %s, want COMMITTED", retry.Status)
	}
	if retry.ReferenceID == settlement.ReferenceID {
		t.Fatal("失败后的重试复用了旧引用号")
	}
}

func TestWithdrawInsufficientNetRejectsWholeRequest(t *testing.T) {
	f := newWithdrawFixture()
	f.addVault(1, "105")
	f.addDeposit(11, 1, "100", true)
	// 提前支取 5 元：罚金 0.50 + 手续费 5 超过本金，整单必须拒绝
	f.addDeposit(12, 1, "5", false)

	_, err := f.svc.Withdraw(context.Background(), &WithdrawRequest{
		RequestID:   "req-net",
		UserID:      1,
		PhoneNumber: "76123456",
		Mode:        WithdrawModeAll,
	})
	if !errors.Is(err, ErrInsufficientNet) {
		t.Fatalf("err = %v, want ErrInsufficientNet", err)
	}

	if len(f.gw.disburses) != 0 {
		t.Fatal("拒绝的请求不应触发外部放款")
	}
	if len(f.settlements.byNo) != 0 {
		t.Fatalf("拒绝的请求不应留下结算单: %d", len(f.settlements.byNo))
	}
	for _, id := range []int64{11, 12} {
		if got := f.deposits.byID[id].Status; got != model.DepositStatusLocked {
			t.Fatalf("存款 %d 状态 = %s, want LOCKED", id, got)
		}
	}
}

func TestWithdrawAuthFailureRejectsBeforeSubmit(t *testing.T) {
	f := newWithdrawFixture()
	f.addVault(1, "100")
	f.addDeposit(11, 1, "100", true)
	f.gw.authErr = gateway.ErrUnauthenticated

	_, err := f.svc.Withdraw(context.Background(), &WithdrawRequest{
		RequestID:   "req-auth",
		UserID:      1,
		PhoneNumber: "76123456",
		Mode:        WithdrawModeAll,
	})
	if !errors.Is(err, gateway.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}

	if len(f.gw.disburses) != 0 {
		t.Fatal("认证失败后不应提交放款")
	}
	settlement, _ := f.settlements.GetByRequestID(context.Background(), 1, "req-auth")
	if settlement == nil || settlement.Status != model.SettlementStatusRejected {
		t.Fatalf("settlement = %+v, want REJECTED", settlement)
	}
}

func TestWithdrawBlockedByUnresolvedSettlement(t *testing.T) {
	blockingStatuses := []string{
		model.SettlementStatusPending,
		model.SettlementStatusSubmitted,
		model.SettlementStatusIndeterminate,
	}

	for _, status := range blockingStatuses {
		t.Run(status, func(t *testing.T) {
			f := newWithdrawFixture()
			f.addVault(1, "100")
			f.addDeposit(11, 1, "100", true)
			f.settlements.byNo["WDR-stuck"] = &model.Settlement{
				SettlementNo: "WDR-stuck",
				RequestID:    "req-old",
				UserID:       1,
				Status:       status,
				UpdatedAt:    time.Now(),
			}

			_, err := f.svc.Withdraw(context.Background(), &WithdrawRequest{
				RequestID:   "req-new",
				UserID:      1,
				PhoneNumber: "76123456",
				Mode:        WithdrawModeAll,
			})
			if !errors.Is(err, ErrSettlementInFlight) {
				t.Fatalf("err = %v, want ErrSettlementInFlight", err)
			}
			if len(f.gw.disburses) != 0 {
				t.Fatal("在途结算未决时不应提交新放款")
			}
		})
	}
}

func TestWithdrawIndeterminateThenReconcile(t *testing.T) {
	f := newWithdrawFixture()
	f.addVault(1, "100")
	f.addDeposit(11, 1, "100", true)
	f.gw.disburseErr = gateway.ErrIndeterminate

	_, err := f.svc.Withdraw(context.Background(), &WithdrawRequest{
		RequestID:   "req-indet",
		UserID:      1,
		PhoneNumber: "76123456",
		Mode:        WithdrawModeAll,
	})
	if !errors.Is(err, gateway.ErrIndeterminate) {
		t.Fatalf("err = %v, want ErrIndeterminate", err)
	}

	settlement, _ := f.settlements.GetByRequestID(context.Background(), 1, "req-indet")
	if settlement == nil || settlement.Status != model.SettlementStatusIndeterminate {
		t.Fatalf("settlement = %+v, want INDETERMINATE", settlement)
	}
	// 无定论期间本地零变更
	if got := f.deposits.byID[11].Status; got != model.DepositStatusLocked {
		t.Fatalf("存款状态 = %s, want LOCKED", got)
	}
	if len(f.ledger.rows) != 0 {
		t.Fatalf("无定论期间产生了流水: %d 条", len(f.ledger.rows))
	}

	t.Run("对账确认成功后按快照补落账", func(t *testing.T) {
		f.gw.statusByRef[settlement.ReferenceID] = &gateway.TransferStatus{
			ReferenceID: settlement.ReferenceID,
			Status:      gateway.TransferStatusSuccessful,
		}

		resp, err := f.svc.Reconcile(context.Background(), 1, "req-indet")
		if err != nil {
			t.Fatalf("Reconcile() err = %v", err)
		}
		if resp.Status != model.SettlementStatusCommitted {
			t.Fatalf("status = %s, want COMMITTED", resp.Status)
		}
		if got := f.deposits.byID[11].Status; got != model.DepositStatusUnlocked {
			t.Fatalf("存款状态 = %s, want UNLOCKED", got)
		}
		if !f.vaults.byUser[1].Balance.Equal(decimal.Zero) {
			t.Fatalf("balance = %s, want 0", f.vaults.byUser[1].Balance)
		}
		if len(f.ledger.rows) != 2 {
			t.Fatalf("流水 %d 条, want 2", len(f.ledger.rows))
		}
	})
}

func TestReconcileConfirmsGatewayFailure(t *testing.T) {
	f := newWithdrawFixture()
	f.addVault(1, "100")
	f.addDeposit(11, 1, "100", true)
	f.gw.disburseErr = gateway.ErrIndeterminate

	_, _ = f.svc.Withdraw(context.Background(), &WithdrawRequest{
		RequestID:   "req-fail",
		UserID:      1,
		PhoneNumber: "76123456",
		Mode:        WithdrawModeAll,
	})
	settlement, _ := f.settlements.GetByRequestID(context.Background(), 1, "req-fail")
	f.gw.statusByRef[settlement.ReferenceID] = &gateway.TransferStatus{
		ReferenceID: settlement.ReferenceID,
		Status:      gateway.TransferStatusFailed,
		Reason:      "payee not found",
	}

	resp, err := f.svc.Reconcile(context.Background(), 1, "req-fail")
	if err != nil {
		t.Fatalf("Reconcile() err = %v", err)
	}
	if resp.Status != model.SettlementStatusFailed {
		t.Fatalf("status = %s, want FAILED", resp.Status)
	}
	if got := f.deposits.byID[11].Status; got != model.DepositStatusLocked {
		t.Fatalf("放款失败后存款状态 = %s, want LOCKED", got)
	}
	if !f.vaults.byUser[1].Balance.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("balance = %s, want 100", f.vaults.byUser[1].Balance)
	}

	// FAILED 出结论后解除在途限制
	f.gw.disburseErr = nil
	retry := mustWithdraw(t, f, 1, "req-after-fail")
	if retry.Status != model.SettlementStatusCommitted {
		t.Fatalf("重试 status = %s, want COMMITTED", retry.Status)
	}
}

func TestReconcileUnresolvedSweepsStalePending(t *testing.T) {
	f := newWithdrawFixture()
	f.addVault(1, "100")
	f.settlements.byNo["WDR-stale"] = &model.Settlement{
		SettlementNo: "WDR-stale",
		RequestID:    "req-stale",
		UserID:       1,
		Status:       model.SettlementStatusPending,
		UpdatedAt:    time.Now().Add(-2 * time.Hour),
	}

	resolved, err := f.svc.ReconcileUnresolved(context.Background(), time.Now().Add(-time.Hour), 50)
	if err != nil {
		t.Fatalf("ReconcileUnresolved() err = %v", err)
	}
	if resolved != 1 {
		t.Fatalf("resolved = %d, want 1", resolved)
	}
	if got := f.settlements.byNo["WDR-stale"].Status; got != model.SettlementStatusRejected {
		t.Fatalf("悬挂结算单状态 = %s, want REJECTED", got)
	}

	unresolved, _ := f.settlements.HasUnresolvedByUserID(context.Background(), 1)
	if unresolved {
		t.Fatal("作废后仍被视为在途")
	}
}
