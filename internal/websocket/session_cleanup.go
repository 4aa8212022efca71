package websocket

import (
	"time"

	"go.uber.org/zap"
)

// SessionCleanupService disconnects learners whose connection has been
// silent for longer than the idle timeout
type SessionCleanupService struct {
	hub         *Hub
	idleTimeout time.Duration
	interval    time.Duration
	logger      *zap.Logger
	stopChan    chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(hub *Hub, idleTimeout time.Duration, logger *zap.Logger) *SessionCleanupService {
	interval := idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	return &SessionCleanupService{
		hub:         hub,
		idleTimeout: idleTimeout,
		interval:    interval,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started", zap.Duration("idleTimeout", s.idleTimeout))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Session cleanup service stopped")
}

func (s *SessionCleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.runCleanup(now)
		}
	}
}

// runCleanup closes every connection idle since before now minus the timeout
func (s *SessionCleanupService) runCleanup(now time.Time) int {
	idle := s.hub.idleClients(now.Add(-s.idleTimeout))
	for _, client := range idle {
		s.logger.Info("Closing idle session",
			zap.String("sessionID", client.session.ID()),
			zap.Time("lastSeen", client.lastSeen()))
		client.conn.Close()
	}
	return len(idle)
}
