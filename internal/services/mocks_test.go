package services

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tapshop/backend/internal/models"
	"github.com/tapshop/backend/internal/notifier"
)

const defaultTestTimeout = time.Second

type MockAuditSink struct {
	mock.Mock
	mu      sync.Mutex
	entries []models.AuditLogEntry
}

func (m *MockAuditSink) Append(ctx context.Context, entry models.AuditLogEntry) error {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	args := m.Called(entry.Action, entry.Target)
	return args.Error(0)
}

func (m *MockAuditSink) Entries() []models.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AuditLogEntry(nil), m.entries...)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Send(ctx context.Context, ev notifier.Event) error {
	args := m.Called(ev)
	return args.Error(0)
}

// newTestAudit returns an emitter backed by a sink that accepts every entry
func newTestAudit() (*AuditEmitter, *MockAuditSink) {
	sink := &MockAuditSink{}
	sink.On("Append", mock.Anything, mock.Anything).Return(nil).Maybe()
	return NewAuditEmitter(sink, defaultTestTimeout), sink
}
