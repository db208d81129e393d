package pricing

import (
	"time"

	"momovault/internal/model"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 提现计价器
// ============================================================================
//
// 纯函数：给定一笔定期存款和一个参考时间，算出罚金、固定手续费、净额。
// 不读库、不写库，保证提交链路和各个只读预览接口用的是同一套算法，
// 不会出现「预览说 85、实际放款 84」的口径漂移。
//
// 规则（当前口径）：
//   - 未到期支取：按本金 10% 收罚金，任意锁定期一视同仁，无最短持有时间
//   - 每笔存款收固定手续费 5 元，到期与否都收
//   - 净额 = 本金 - 罚金 - 手续费；净额不为正的存款不可提取
//
// 金额统一保留 2 位小数，四舍五入（0.5 进位）
// ============================================================================

const minorUnitScale = 2

var (
	penaltyRate = decimal.NewFromFloat(0.10)
	flatFee     = decimal.NewFromInt(5)
)

// Quote 单笔存款的计价结果
// 计价器本身不报错：净额不为正时置 Withdrawable=false，由调用方决定拒绝
type Quote struct {
	DepositID    int64
	Principal    decimal.Decimal
	IsEarly      bool
	Penalty      decimal.Decimal
	FlatFee      decimal.Decimal
	Net          decimal.Decimal // 已截到 0，不为负
	Withdrawable bool            // 本金 - 罚金 - 手续费 > 0
}

// Totals 一批存款的计价合计
type Totals struct {
	Principal decimal.Decimal
	Penalty   decimal.Decimal
	FlatFee   decimal.Decimal
	Net       decimal.Decimal
}

// Price 对单笔存款计价
func Price(deposit *model.LockedDeposit, now time.Time) Quote {
	isEarly := !deposit.IsMature(now)

	penalty := decimal.Zero
	if isEarly {
		penalty = deposit.Amount.Mul(penaltyRate).Round(minorUnitScale)
	}

	net := deposit.Amount.Sub(penalty).Sub(flatFee)
	withdrawable := net.IsPositive()
	if net.IsNegative() {
		net = decimal.Zero
	}

	return Quote{
		DepositID:    deposit.ID,
		Principal:    deposit.Amount,
		IsEarly:      isEarly,
		Penalty:      penalty,
		FlatFee:      flatFee,
		Net:          net,
		Withdrawable: withdrawable,
	}
}

// PriceAll 对一批存款计价并汇总
func PriceAll(deposits []*model.LockedDeposit, now time.Time) ([]Quote, Totals) {
	quotes := make([]Quote, 0, len(deposits))
	totals := Totals{
		Principal: decimal.Zero,
		Penalty:   decimal.Zero,
		FlatFee:   decimal.Zero,
		Net:       decimal.Zero,
	}

	for _, d := range deposits {
		q := Price(d, now)
		quotes = append(quotes, q)
		totals.Principal = totals.Principal.Add(q.Principal)
		totals.Penalty = totals.Penalty.Add(q.Penalty)
		totals.FlatFee = totals.FlatFee.Add(q.FlatFee)
		totals.Net = totals.Net.Add(q.Net)
	}

	return quotes, totals
}

// FlatFee 当前的固定手续费（只读预览接口展示用）
func FlatFee() decimal.Decimal {
	return flatFee
}
