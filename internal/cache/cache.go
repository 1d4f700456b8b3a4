package cache

import (
	"context"
	"errors"

	"github.com/creditoya/whatsapp-gateway/internal/model"
)

var ErrNoReport = errors.New("no dispatch report cached for session")

type ReportCache interface {
	StoreReport(ctx context.Context, report model.DispatchReport) error
	LastReport(ctx context.Context, sessionID string) (model.DispatchReport, error)
}
