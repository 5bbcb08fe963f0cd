package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// ExpirySweeper periodically scans the store for expired subscriptions
// and drives each one through the revoke-then-remove transition. A
// single instance runs per process; each tick processes users
// sequentially so one user's failure never aborts the rest.
type ExpirySweeper struct {
	service  *SubscriptionService
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewExpirySweeper(service *SubscriptionService, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		service:  service,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (w *ExpirySweeper) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *ExpirySweeper) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			w.RunOnce(ctx)
			cancel()
		case <-w.stopChan:
			return
		}
	}
}

// RunOnce performs a single sweep tick: snapshot now, list expired
// users, revoke and remove each in expiry order. Failed users stay in
// the store and show up again on the next tick.
func (w *ExpirySweeper) RunOnce(ctx context.Context) {
	sweepRunsTotal.Inc()

	now := w.service.now().Unix()
	expired, err := w.service.ExpiredUserIDs(ctx, now)
	if err != nil {
		log.Printf("Sweep aborted, could not list expired users: %v", err)
		return
	}
	if len(expired) == 0 {
		log.Println("Sweep found no expired users")
		return
	}

	log.Printf("Sweeping %d expired user(s)...", len(expired))
	for _, userID := range expired {
		if err := w.service.SweepUser(ctx, userID); err != nil {
			log.Printf("Error sweeping user %d: %v", userID, err)
		}
	}
}

// Stop shuts the sweeper down and waits for an in-flight tick to finish.
func (w *ExpirySweeper) Stop() {
	log.Println("Stopping expiry sweeper...")
	close(w.stopChan)
	w.wg.Wait()
	log.Println("Expiry sweeper stopped")
}
