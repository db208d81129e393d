package job

import (
	"context"
	"log"
	"time"

	"momovault/internal/config"
	"momovault/internal/service"
)

// SettlementReconcileJob 结算对账任务
//
// 兜底两类悬挂的结算单：
//   - SUBMITTED：放款已受理但落账事务失败（账务一致性告警场景）
//   - INDETERMINATE：放款提交后超时无定论
//
// 周期性向放款网关查询最终状态，按提交时的计价快照补落账或置失败。
// 在这之前相关保险柜的新提现请求会被拒绝，避免同一笔钱重复在途
type SettlementReconcileJob struct {
	withdrawService *service.WithdrawService
	cfg             *config.Config
	stopCh          chan struct{}
	interval        time.Duration
	batchSize       int
}

func NewSettlementReconcileJob(withdrawService *service.WithdrawService, cfg *config.Config) *SettlementReconcileJob {
	return &SettlementReconcileJob{
		withdrawService: withdrawService,
		cfg:             cfg,
		stopCh:          make(chan struct{}),
		interval:        30 * time.Second,
		batchSize:       50,
	}
}

func (j *SettlementReconcileJob) Start(ctx context.Context) {
	log.Println("[SettlementReconcileJob] 结算对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SettlementReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[SettlementReconcileJob] 任务停止")
			return
		case <-ticker.C:
			j.reconcile(ctx)
		}
	}
}

func (j *SettlementReconcileJob) Stop() {
	close(j.stopCh)
}

func (j *SettlementReconcileJob) reconcile(ctx context.Context) {
	reconcileAfter := time.Duration(j.cfg.Business.ReconcileAfterMinutes) * time.Minute
	beforeTime := time.Now().Add(-reconcileAfter)

	resolved, err := j.withdrawService.ReconcileUnresolved(ctx, beforeTime, j.batchSize)
	if err != nil {
		log.Printf("[SettlementReconcileJob] 批量对账失败: %v", err)
		return
	}

	if resolved > 0 {
		log.Printf("[SettlementReconcileJob] 本次对账出结论 %d 单", resolved)
	}
}
