package application

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"swap_service/domain"
)

// ExpirationService sweeps pending proposals whose deadline has passed and
// drives them through the expired transition. One failed proposal never
// stops the rest of the batch.
type ExpirationService struct {
	swaps     domain.SwapStore
	lifecycle *SwapService
	interval  time.Duration
	tracer    trace.Tracer
	logger    *logrus.Logger
	nowFunc   func() time.Time

	mu                   sync.Mutex
	running              bool
	stopCh               chan struct{}
	doneCh               chan struct{}
	totalChecksPerformed int64
	totalSwapsProcessed  int64
	lastError            string
}

func NewExpirationService(swaps domain.SwapStore, lifecycle *SwapService, interval time.Duration, tracer trace.Tracer, logger *logrus.Logger) *ExpirationService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ExpirationService{
		swaps:     swaps,
		lifecycle: lifecycle,
		interval:  interval,
		tracer:    tracer,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// Start launches the periodic sweep. Calling Start on a running sweeper is
// a no-op.
func (service *ExpirationService) Start() {
	service.mu.Lock()
	defer service.mu.Unlock()

	if service.running {
		return
	}
	service.running = true
	service.stopCh = make(chan struct{})
	service.doneCh = make(chan struct{})

	go service.run(service.stopCh, service.doneCh)
	service.logger.Infof("expiration sweeper started with interval %s", service.interval)
}

// Stop halts the sweep and waits for an in-flight check to finish.
func (service *ExpirationService) Stop() {
	service.mu.Lock()
	if !service.running {
		service.mu.Unlock()
		return
	}
	service.running = false
	stopCh, doneCh := service.stopCh, service.doneCh
	service.mu.Unlock()

	close(stopCh)
	<-doneCh
	service.logger.Info("expiration sweeper stopped")
}

// ForceCheck runs one sweep immediately, outside the schedule, and returns
// how many proposals were expired.
func (service *ExpirationService) ForceCheck(ctx context.Context) (int, error) {
	ctx, span := service.tracer.Start(ctx, "ExpirationService.ForceCheck")
	defer span.End()

	return service.check(ctx)
}

func (service *ExpirationService) Status() domain.SweeperStatus {
	service.mu.Lock()
	defer service.mu.Unlock()

	return domain.SweeperStatus{
		Running:              service.running,
		IntervalSeconds:      int(service.interval / time.Second),
		TotalChecksPerformed: service.totalChecksPerformed,
		TotalSwapsProcessed:  service.totalSwapsProcessed,
		LastError:            service.lastError,
	}
}

func (service *ExpirationService) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(service.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := service.check(context.Background()); err != nil {
				service.logger.Errorf("scheduled expiration sweep failed: %s", err)
			}
		case <-stopCh:
			return
		}
	}
}

// check is the single sweep path shared by the ticker and ForceCheck.
func (service *ExpirationService) check(ctx context.Context) (int, error) {
	ctx, span := service.tracer.Start(ctx, "ExpirationService.check")
	defer span.End()

	service.mu.Lock()
	service.totalChecksPerformed++
	service.mu.Unlock()

	lapsed, err := service.swaps.FindExpiredPending(ctx, service.nowFunc())
	if err != nil {
		service.recordError(err)
		return 0, err
	}

	processed := 0
	for _, proposal := range lapsed {
		if err := service.lifecycle.ExpireProposal(ctx, proposal.ID.Hex()); err != nil {
			// Another writer may have beaten the sweeper to a terminal
			// status; either way the batch continues.
			service.logger.Warnf("failed to expire proposal %s: %s", proposal.ID.Hex(), err)
			service.recordError(err)
			continue
		}
		processed++
	}

	if processed > 0 {
		service.logger.Infof("expiration sweep expired %d of %d lapsed proposals", processed, len(lapsed))
	}

	service.mu.Lock()
	service.totalSwapsProcessed += int64(processed)
	service.mu.Unlock()

	return processed, nil
}

func (service *ExpirationService) recordError(err error) {
	service.mu.Lock()
	service.lastError = err.Error()
	service.mu.Unlock()
}
