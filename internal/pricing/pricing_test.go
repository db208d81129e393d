package pricing

import (
	"testing"
	"time"

	"momovault/internal/model"

	"github.com/shopspring/decimal"
)

func newDeposit(id int64, amount string, lockDays int, start time.Time) *model.LockedDeposit {
	return &model.LockedDeposit{
		ID:             id,
		UserID:         1,
		Amount:         decimal.RequireFromString(amount),
		LockPeriodDays: lockDays,
		StartAt:        start,
		MaturityAt:     start.AddDate(0, 0, lockDays),
		Status:         model.DepositStatusLocked,
	}
}

func TestPrice(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		amount       string
		lockDays     int
		elapsed      time.Duration
		wantEarly    bool
		wantPenalty  string
		wantFee      string
		wantNet      string
		withdrawable bool
	}{
		{
			// 存100锁3天，第2天支取：罚10、手续费5、净额85
			name:   "early withdrawal pays 10 percent penalty",
			amount: "100", lockDays: 3, elapsed: 48 * time.Hour,
			wantEarly: true, wantPenalty: "10", wantFee: "5", wantNet: "85", withdrawable: true,
		},
		{
			// 存100锁3天，第4天支取：零罚金、净额95
			name:   "mature withdrawal pays no penalty",
			amount: "100", lockDays: 3, elapsed: 96 * time.Hour,
			wantEarly: false, wantPenalty: "0", wantFee: "5", wantNet: "95", withdrawable: true,
		},
		{
			// 存3锁1天提前支取：罚0.30，净额不为正，不可提取
			name:   "net not positive is flagged not withdrawable",
			amount: "3", lockDays: 1, elapsed: 1 * time.Hour,
			wantEarly: true, wantPenalty: "0.30", wantFee: "5", wantNet: "0", withdrawable: false,
		},
		{
			// 到期时刻整点支取不算提前
			name:   "exactly at maturity is not early",
			amount: "100", lockDays: 3, elapsed: 72 * time.Hour,
			wantEarly: false, wantPenalty: "0", wantFee: "5", wantNet: "95", withdrawable: true,
		},
		{
			name:   "one second before maturity is early",
			amount: "100", lockDays: 3, elapsed: 72*time.Hour - time.Second,
			wantEarly: true, wantPenalty: "10", wantFee: "5", wantNet: "85", withdrawable: true,
		},
		{
			// 罚金 12.45 * 0.10 = 1.245，0.5 进位到 1.25
			name:   "penalty rounds half up at minor unit",
			amount: "12.45", lockDays: 7, elapsed: time.Hour,
			wantEarly: true, wantPenalty: "1.25", wantFee: "5", wantNet: "6.20", withdrawable: true,
		},
		{
			name:   "penalty rounds down below half",
			amount: "1.24", lockDays: 7, elapsed: time.Hour,
			wantEarly: true, wantPenalty: "0.12", wantFee: "5", wantNet: "0", withdrawable: false,
		},
		{
			// 扣完正好为0也不可提取
			name:   "net exactly zero is not withdrawable",
			amount: "5", lockDays: 3, elapsed: 96 * time.Hour,
			wantEarly: false, wantPenalty: "0", wantFee: "5", wantNet: "0", withdrawable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deposit := newDeposit(1, tt.amount, tt.lockDays, start)
			q := Price(deposit, start.Add(tt.elapsed))

			if q.IsEarly != tt.wantEarly {
				t.Fatalf("IsEarly = %v, want %v", q.IsEarly, tt.wantEarly)
			}
			if !q.Penalty.Equal(decimal.RequireFromString(tt.wantPenalty)) {
				t.Fatalf("Penalty = %s, want %s", q.Penalty, tt.wantPenalty)
			}
			if !q.FlatFee.Equal(decimal.RequireFromString(tt.wantFee)) {
				t.Fatalf("FlatFee = %s, want %s", q.FlatFee, tt.wantFee)
			}
			if !q.Net.Equal(decimal.RequireFromString(tt.wantNet)) {
				t.Fatalf("Net = %s, want %s", q.Net, tt.wantNet)
			}
			if q.Withdrawable != tt.withdrawable {
				t.Fatalf("Withdrawable = %v, want %v", q.Withdrawable, tt.withdrawable)
			}
		})
	}
}

// 到期后任意时间点罚金恒为0；到期前罚金恒为本金的10%（0.5进位）
func TestPriceMaturityMatrix(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	deposit := newDeposit(7, "250.55", 5, start)

	for hours := 0; hours <= 10*24; hours += 6 {
		now := start.Add(time.Duration(hours) * time.Hour)
		q := Price(deposit, now)

		if now.Before(deposit.MaturityAt) {
			want := decimal.RequireFromString("25.06") // 25.055 进位
			if !q.IsEarly || !q.Penalty.Equal(want) {
				t.Fatalf("hours=%d: got early=%v penalty=%s, want early=true penalty=%s", hours, q.IsEarly, q.Penalty, want)
			}
		} else {
			if q.IsEarly || !q.Penalty.IsZero() {
				t.Fatalf("hours=%d: got early=%v penalty=%s, want early=false penalty=0", hours, q.IsEarly, q.Penalty)
			}
		}
	}
}

func TestPriceHasNoSideEffects(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	deposit := newDeposit(1, "100", 3, start)

	Price(deposit, start.Add(time.Hour))

	if deposit.Status != model.DepositStatusLocked || deposit.PenaltyApplied {
		t.Fatalf("Price mutated the deposit: status=%s penaltyApplied=%v", deposit.Status, deposit.PenaltyApplied)
	}
	if !deposit.Amount.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("Price mutated the amount: %s", deposit.Amount)
	}
}

func TestPriceAllTotals(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	deposits := []*model.LockedDeposit{
		newDeposit(1, "100", 3, start), // 提前：罚10 费5 净85
		newDeposit(2, "200", 1, start), // 已到期：罚0 费5 净195
	}
	now := start.Add(48 * time.Hour)

	quotes, totals := PriceAll(deposits, now)
	if len(quotes) != 2 {
		t.Fatalf("quotes = %d, want 2", len(quotes))
	}

	if !totals.Principal.Equal(decimal.RequireFromString("300")) {
		t.Fatalf("total principal = %s, want 300", totals.Principal)
	}
	if !totals.Penalty.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("total penalty = %s, want 10", totals.Penalty)
	}
	if !totals.FlatFee.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("total fee = %s, want 10", totals.FlatFee)
	}
	if !totals.Net.Equal(decimal.RequireFromString("280")) {
		t.Fatalf("total net = %s, want 280", totals.Net)
	}
}
