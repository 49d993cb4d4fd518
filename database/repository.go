package database

import (
	"context"
	"time"

	"github.com/sellolabs/sello/model"
)

type issuance interface {
	RecordIssuance(ctx context.Context, issuance *model.Issuance) (*model.Issuance, error)
	GetIssuance(ctx context.Context, id string) (*model.Issuance, error)
	GetIssuanceByVerificationUUID(ctx context.Context, uuid string) (*model.Issuance, error)
	UpdateIssuanceStatus(ctx context.Context, id string, status string, note string, transactionHash string) error
	GetAllIssuances(ctx context.Context, limit, offset int) ([]model.Issuance, error)
	GetPendingIssuances(ctx context.Context) ([]*model.Issuance, error)
	GetUnconfirmedIssuances(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Issuance, error)
}

type IDataSource interface {
	issuance
}
