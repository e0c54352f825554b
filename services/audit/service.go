package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/user-auth-api/models"
	"github.com/upb/user-auth-api/repositories"
	"go.uber.org/zap"
)

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// AuditService writes audit entries on a pool of background workers.
// Requests never wait on the database for auditing.
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	mu          sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for queued ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	pending := len(s.eventChan)
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking. A full buffer drops the event.
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)))
		return fmt.Errorf("audit event buffer full")
	}
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ListByActor returns entries recorded for actorID, newest first. limit is
// clamped to 1..200 with 50 used for zero.
func (s *AuditService) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.auditRepo.ListByActor(ctx, actorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// record stamps request metadata from ctx and queues the entry.
// Audit failures are logged, never returned to the caller's flow.
func (s *AuditService) record(ctx context.Context, log *models.AuditLog) {
	if s == nil {
		return
	}
	if meta, ok := RequestMetaFromContext(ctx); ok {
		log.WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	}
	if err := s.LogEvent(&AuditEvent{Log: log}); err != nil {
		s.logger.Debug("audit event not queued", zap.Error(err), zap.String("action", string(log.Action)))
	}
}

// LogLogin records a successful login
func (s *AuditService) LogLogin(ctx context.Context, userID uuid.UUID) {
	s.record(ctx, models.NewAuditLog(models.AuditActionLogin).WithActor(userID))
}

// LogLoginFailed records a rejected credential check. The identifier is kept,
// the password never is.
func (s *AuditService) LogLoginFailed(ctx context.Context, identifier string) {
	s.record(ctx, models.NewAuditLog(models.AuditActionLoginFailed).
		WithDetails(map[string]interface{}{"identifier": identifier}))
}

// LogLoginAndUpdate records a login that also replaced email and password
func (s *AuditService) LogLoginAndUpdate(ctx context.Context, userID uuid.UUID, emailChanged bool) {
	s.record(ctx, models.NewAuditLog(models.AuditActionLoginAndUpdate).
		WithActor(userID).
		WithDetails(map[string]interface{}{"email_changed": emailChanged}))
}

// LogLogout records cookie removal
func (s *AuditService) LogLogout(ctx context.Context, userID uuid.UUID) {
	s.record(ctx, models.NewAuditLog(models.AuditActionLogout).WithActor(userID))
}

// LogShadowUser records an administrator obtaining a session as another user
func (s *AuditService) LogShadowUser(ctx context.Context, actorID, targetID uuid.UUID) {
	s.record(ctx, models.NewAuditLog(models.AuditActionShadowUser).WithActor(actorID).WithTarget(targetID))
}

// LogUserCreated records account creation; actor is nil for self sign-up
func (s *AuditService) LogUserCreated(ctx context.Context, actorID *uuid.UUID, user *models.User) {
	log := models.NewAuditLog(models.AuditActionUserCreated).
		WithTarget(user.ID).
		WithDetails(map[string]interface{}{"username": user.Username})
	if actorID != nil {
		log.WithActor(*actorID)
	}
	s.record(ctx, log)
}

// LogUserDeleted records account removal
func (s *AuditService) LogUserDeleted(ctx context.Context, actorID, userID uuid.UUID) {
	s.record(ctx, models.NewAuditLog(models.AuditActionUserDeleted).WithActor(actorID).WithTarget(userID))
}

// LogRoleGranted records a role assignment
func (s *AuditService) LogRoleGranted(ctx context.Context, actorID uuid.UUID, assignment *models.UserRole) {
	s.record(ctx, models.NewAuditLog(models.AuditActionRoleGranted).
		WithActor(actorID).
		WithTarget(assignment.UserID).
		WithDetails(roleDetails(assignment.RoleID, assignment.TargetUserID)))
}

// LogRoleRevoked records removal of a role assignment
func (s *AuditService) LogRoleRevoked(ctx context.Context, actorID, userID, roleID uuid.UUID, target *uuid.UUID) {
	s.record(ctx, models.NewAuditLog(models.AuditActionRoleRevoked).
		WithActor(actorID).
		WithTarget(userID).
		WithDetails(roleDetails(roleID, target)))
}

// LogListedAllUsers records a bulk user listing and its window
func (s *AuditService) LogListedAllUsers(ctx context.Context, actorID uuid.UUID, after, before time.Time, count int) {
	s.record(ctx, models.NewAuditLog(models.AuditActionListedAllUsers).
		WithActor(actorID).
		WithDetails(map[string]interface{}{
			"created_after":  after.UTC().Format(time.RFC3339),
			"created_before": before.UTC().Format(time.RFC3339),
			"count":          count,
		}))
}

func roleDetails(roleID uuid.UUID, target *uuid.UUID) map[string]interface{} {
	details := map[string]interface{}{"role_id": roleID.String()}
	if target != nil {
		details["scope_user_id"] = target.String()
	}
	return details
}
