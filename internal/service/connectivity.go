package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"palette_backend/pkg/logger"
	"palette_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// ConnectivityMonitor probes Canvas on a fixed interval and exposes a single
// online/offline flag. The probe itself carries no backoff: it is cheap and
// interval-bounded.
type ConnectivityMonitor struct {
	client   CanvasAPI
	interval time.Duration

	online   atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
}

func NewConnectivityMonitor(client CanvasAPI, interval time.Duration) *ConnectivityMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ConnectivityMonitor{
		client:   client,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start probes once immediately, then on every tick until Stop.
func (m *ConnectivityMonitor) Start() {
	go func() {
		m.Probe(context.Background())
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Probe(context.Background())
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *ConnectivityMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Probe performs one connectivity check and records the outcome.
func (m *ConnectivityMonitor) Probe(ctx context.Context) bool {
	err := m.client.Ping(ctx)
	online := err == nil
	if !online {
		logger.Log.Debug("Canvas unavailable, working offline", zap.Error(err))
	}
	m.SetOnline(online)
	return online
}

func (m *ConnectivityMonitor) SetOnline(online bool) {
	m.online.Store(online)
	if online {
		monitoring.CanvasOnline.Set(1)
	} else {
		monitoring.CanvasOnline.Set(0)
	}
}

func (m *ConnectivityMonitor) IsOnline() bool {
	return m.online.Load()
}
