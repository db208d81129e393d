package model

import "testing"

func TestDepositCanTransitionTo(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{DepositStatusLocked, DepositStatusUnlocked, true},
		{DepositStatusLocked, DepositStatusWithdrawnEarly, true},
		// 非 LOCKED 即终态，不可再变更
		{DepositStatusUnlocked, DepositStatusLocked, false},
		{DepositStatusUnlocked, DepositStatusWithdrawnEarly, false},
		{DepositStatusWithdrawnEarly, DepositStatusUnlocked, false},
		{DepositStatusWithdrawnEarly, DepositStatusLocked, false},
		{"UNKNOWN", DepositStatusUnlocked, false},
	}

	for _, tt := range tests {
		if got := DepositCanTransitionTo(tt.from, tt.to); got != tt.want {
			t.Fatalf("DepositCanTransitionTo(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSettlementCanTransitionTo(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{SettlementStatusPending, SettlementStatusSubmitted, true},
		{SettlementStatusPending, SettlementStatusRejected, true},
		// 提交前不允许直接成功或失败
		{SettlementStatusPending, SettlementStatusCommitted, false},
		{SettlementStatusPending, SettlementStatusFailed, false},
		{SettlementStatusSubmitted, SettlementStatusCommitted, true},
		{SettlementStatusSubmitted, SettlementStatusFailed, true},
		{SettlementStatusSubmitted, SettlementStatusIndeterminate, true},
		{SettlementStatusSubmitted, SettlementStatusRejected, false},
		// 无定论只能靠对账推进
		{SettlementStatusIndeterminate, SettlementStatusCommitted, true},
		{SettlementStatusIndeterminate, SettlementStatusFailed, true},
		{SettlementStatusIndeterminate, SettlementStatusSubmitted, false},
		// 终态不可再变更
		{SettlementStatusCommitted, SettlementStatusFailed, false},
		{SettlementStatusRejected, SettlementStatusSubmitted, false},
		{SettlementStatusFailed, SettlementStatusCommitted, false},
	}

	for _, tt := range tests {
		if got := SettlementCanTransitionTo(tt.from, tt.to); got != tt.want {
			t.Fatalf("SettlementCanTransitionTo(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
