package instance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StatusRefresher periodically reconciles instance status with the
// provider. Webhook connection.update events keep status fresh in the
// happy path; the cron pass catches missed events.
type StatusRefresher struct {
	cron   *cron.Cron
	svc    *Service
	spec   string
	logger *slog.Logger
}

func NewStatusRefresher(log *slog.Logger, svc *Service, spec string) *StatusRefresher {
	return &StatusRefresher{
		cron:   cron.New(),
		svc:    svc,
		spec:   spec,
		logger: log.With(slog.String("service", "instance_sync")),
	}
}

func (r *StatusRefresher) Start() error {
	if r.spec == "" {
		r.logger.Info("status sync disabled")
		return nil
	}
	_, err := r.cron.AddFunc(r.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := r.svc.SyncAll(ctx); err != nil {
			r.logger.Warn("status sync pass failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("status sync scheduled", slog.String("spec", r.spec))
	return nil
}

func (r *StatusRefresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
