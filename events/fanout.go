package events

import (
	"context"
	stderrors "errors"

	"github.com/ssugameworks/ratedvc/interfaces"
	"github.com/ssugameworks/ratedvc/models"
)

// Fanout 여러 Notifier에 같은 알림을 보냅니다. 하나가 실패해도 나머지는 계속 보냅니다
type Fanout struct {
	notifiers []interfaces.Notifier
}

// NewFanout nil이 아닌 notifier만 모읍니다
func NewFanout(notifiers ...interfaces.Notifier) *Fanout {
	f := &Fanout{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

// Len 등록된 notifier 수
func (f *Fanout) Len() int {
	return len(f.notifiers)
}

func (f *Fanout) VCStandings(ctx context.Context, vc *models.VirtualContest, ranklist *models.Ranklist) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.VCStandings(ctx, vc, ranklist); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (f *Fanout) VCResults(ctx context.Context, result *models.SettlementResult) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.VCResults(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
