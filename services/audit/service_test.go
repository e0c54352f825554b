package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/user-auth-api/models"
	"go.uber.org/zap"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu           sync.Mutex
	insertedLogs []*models.AuditLog
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	args := m.Called(ctx, log)
	m.mu.Lock()
	m.insertedLogs = append(m.insertedLogs, log)
	m.mu.Unlock()
	return args.Error(0)
}

func (m *MockAuditRepository) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, actorID, limit, offset)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetInsertedLogs() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditLog(nil), m.insertedLogs...)
}

func startedService(t *testing.T, repo *MockAuditRepository, cfg Config) *AuditService {
	t.Helper()
	service := NewAuditService(repo, zap.NewNop(), cfg)
	require.NoError(t, service.Start())
	return service
}

func TestAuditService_StartStop(t *testing.T) {
	service := NewAuditService(new(MockAuditRepository), zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)
	assert.Error(t, service.Stop(time.Second))
}

func TestAuditService_LogEventBeforeStartAndAfterStop(t *testing.T) {
	repo := new(MockAuditRepository)
	service := NewAuditService(repo, zap.NewNop(), DefaultConfig())

	event := &AuditEvent{Log: models.NewAuditLog(models.AuditActionLogin)}
	assert.Error(t, service.LogEvent(event))

	require.NoError(t, service.Start())
	require.NoError(t, service.Stop(time.Second))
	assert.Error(t, service.LogEvent(event))
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestAuditService_StopDrainsQueue(t *testing.T) {
	repo := new(MockAuditRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	service := startedService(t, repo, Config{BufferSize: 100, WorkerCount: 3})

	for i := 0; i < 50; i++ {
		require.NoError(t, service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionLogin)}))
	}
	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, repo.GetInsertedLogs(), 50)
}

func TestAuditService_ConcurrentLogging(t *testing.T) {
	repo := new(MockAuditRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	service := startedService(t, repo, Config{BufferSize: 1000, WorkerCount: 5})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionLogin)})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, repo.GetInsertedLogs(), 100)
}

func TestAuditService_BufferFullDropsEvents(t *testing.T) {
	repo := new(MockAuditRepository)
	release := make(chan struct{})
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		<-release
	})
	service := startedService(t, repo, Config{BufferSize: 5, WorkerCount: 1})

	accepted := 0
	for i := 0; i < 20; i++ {
		if err := service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionLogin)}); err == nil {
			accepted++
		}
	}

	// one event may already sit in the blocked worker
	assert.LessOrEqual(t, accepted, 6)
	assert.GreaterOrEqual(t, accepted, 5)

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, repo.GetInsertedLogs(), accepted)
}

func TestAuditService_StopTimeout(t *testing.T) {
	repo := new(MockAuditRepository)
	release := make(chan struct{})
	defer close(release)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		<-release
	})
	service := startedService(t, repo, Config{BufferSize: 10, WorkerCount: 1})

	require.NoError(t, service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionLogin)}))

	err := service.Stop(50 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestAuditService_HelpersStampRequestMeta(t *testing.T) {
	repo := new(MockAuditRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	service := startedService(t, repo, DefaultConfig())

	ctx := WithRequestMeta(context.Background(), RequestMeta{
		RequestID: "req-42",
		IPAddress: "192.0.2.10",
		UserAgent: "test-agent",
	})
	actor := uuid.New()
	target := uuid.New()

	service.LogShadowUser(ctx, actor, target)
	service.LogLoginFailed(ctx, "alice@example.com")
	require.NoError(t, service.Stop(5*time.Second))

	logs := repo.GetInsertedLogs()
	require.Len(t, logs, 2)

	byAction := map[models.AuditAction]*models.AuditLog{}
	for _, l := range logs {
		byAction[l.Action] = l
	}

	shadow := byAction[models.AuditActionShadowUser]
	require.NotNil(t, shadow)
	assert.Equal(t, actor, *shadow.ActorUserID)
	assert.Equal(t, target, *shadow.TargetUserID)
	assert.Equal(t, "req-42", shadow.RequestID)
	assert.Equal(t, "192.0.2.10", shadow.IPAddress)
	assert.Equal(t, "test-agent", shadow.UserAgent)

	failed := byAction[models.AuditActionLoginFailed]
	require.NotNil(t, failed)
	assert.Nil(t, failed.ActorUserID)
	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(failed.Details, &details))
	assert.Equal(t, "alice@example.com", details["identifier"])
}

func TestAuditService_RoleGrantDetails(t *testing.T) {
	repo := new(MockAuditRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	service := startedService(t, repo, DefaultConfig())

	scope := uuid.New()
	grant := models.NewUserRole(uuid.New(), uuid.New(), &scope)
	service.LogRoleGranted(context.Background(), uuid.New(), grant)
	require.NoError(t, service.Stop(5*time.Second))

	logs := repo.GetInsertedLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, grant.UserID, *logs[0].TargetUserID)
	assert.JSONEq(t,
		`{"role_id":"`+grant.RoleID.String()+`","scope_user_id":"`+scope.String()+`"}`,
		string(logs[0].Details))
}

func TestAuditService_NilServiceIsNoop(t *testing.T) {
	var service *AuditService
	assert.NotPanics(t, func() {
		service.LogLogin(context.Background(), uuid.New())
		service.LogUserCreated(context.Background(), nil, models.NewUser("bob", "", "h"))
	})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 1000, config.BufferSize)
	assert.Equal(t, 2, config.WorkerCount)
}

func TestAuditService_ListByActor(t *testing.T) {
	actor := uuid.New()
	entry := models.NewAuditLog(models.AuditActionLogin).WithActor(actor)

	tests := []struct {
		name      string
		limit     int
		offset    int
		wantLimit int
		wantOff   int
	}{
		{"zero limit uses default", 0, 0, 50, 0},
		{"limit is capped", 1000, 10, 200, 10},
		{"negative offset starts at zero", 5, -3, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockAuditRepository)
			repo.On("ListByActor", mock.Anything, actor, tt.wantLimit, tt.wantOff).
				Return([]*models.AuditLog{entry}, nil)

			service := NewAuditService(repo, zap.NewNop(), DefaultConfig())
			logs, err := service.ListByActor(context.Background(), actor, tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Len(t, logs, 1)
			repo.AssertExpectations(t)
		})
	}

	t.Run("repository failure", func(t *testing.T) {
		repo := new(MockAuditRepository)
		repo.On("ListByActor", mock.Anything, actor, 50, 0).Return(nil, errors.New("db down"))

		service := NewAuditService(repo, zap.NewNop(), DefaultConfig())
		_, err := service.ListByActor(context.Background(), actor, 0, 0)
		assert.ErrorContains(t, err, "db down")
	})
}
