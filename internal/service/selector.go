package service

import (
	"errors"

	"momovault/internal/model"
)

// ============================================================================
// 提现选取器
// ============================================================================
//
// 纯函数：从已加载的用户名下 LOCKED 存款里解析出本次要结算的集合。
// 只读不写，真正的状态变更全部发生在结算编排的落账事务里
// ============================================================================

const (
	WithdrawModeAll      = "ALL"      // 全部 LOCKED 存款
	WithdrawModeExplicit = "EXPLICIT" // 指定存款ID集合
)

var (
	ErrNoEligibleDeposits  = errors.New("没有可提取的定期存款")
	ErrEmptyDepositIDs     = errors.New("未指定要提取的存款")
	ErrUnknownOrSettled    = errors.New("部分存款不存在或已被结算")
	ErrInvalidWithdrawMode = errors.New("提现模式不合法")
)

// SelectDeposits 解析提现请求指向的存款集合
//
// lockedDeposits 必须是请求用户名下全部 LOCKED 状态的存款。
// Explicit 模式是全有或全无：任何一个 ID 解析不到（不存在、不属于该用户、
// 已结算、重复传入），整个请求失败，绝不静默丢弃一部分
func SelectDeposits(lockedDeposits []*model.LockedDeposit, mode string, depositIDs []int64) ([]*model.LockedDeposit, error) {
	switch mode {
	case WithdrawModeAll:
		if len(lockedDeposits) == 0 {
			return nil, ErrNoEligibleDeposits
		}
		return lockedDeposits, nil

	case WithdrawModeExplicit:
		if len(depositIDs) == 0 {
			return nil, ErrEmptyDepositIDs
		}

		byID := make(map[int64]*model.LockedDeposit, len(lockedDeposits))
		for _, d := range lockedDeposits {
			byID[d.ID] = d
		}

		selected := make([]*model.LockedDeposit, 0, len(depositIDs))
		seen := make(map[int64]bool, len(depositIDs))
		for _, id := range depositIDs {
			d, ok := byID[id]
			if !ok || seen[id] {
				return nil, ErrUnknownOrSettled
			}
			seen[id] = true
			selected = append(selected, d)
		}

		if len(selected) != len(depositIDs) {
			return nil, ErrUnknownOrSettled
		}
		return selected, nil

	default:
		return nil, ErrInvalidWithdrawMode
	}
}
