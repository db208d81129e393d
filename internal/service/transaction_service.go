package service

import (
	"context"

	"momovault/internal/config"
	"momovault/internal/model"
	"momovault/internal/repository"

	"gorm.io/gorm"
)

type TransactionService struct {
	transactionRepo *repository.TransactionRepository
	db              *gorm.DB
	cfg             *config.Config
}

func NewTransactionService(db *gorm.DB, cfg *config.Config) *TransactionService {
	return &TransactionService{
		transactionRepo: repository.NewTransactionRepository(db),
		db:              db,
		cfg:             cfg,
	}
}

// History 用户流水分页查询，新的在前
func (s *TransactionService) History(ctx context.Context, userID int64, page, pageSize int) ([]*model.VaultTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = s.cfg.Business.HistoryPageSize
		if pageSize < 1 {
			pageSize = 20
		}
	}
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}
