// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/memstore"
	"github.com/keyward/keyward/internal/observability"
	"github.com/keyward/keyward/internal/store"
)

var errNoSQL = errors.New("fake pool runs no SQL")

// fakePool satisfies Pool; tests pair it with a memstore StoreFactory.
type fakePool struct {
	mu      sync.Mutex
	pingErr error
	closed  bool
}

func (p *fakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNoSQL
}

func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errNoSQL
}

func (p *fakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (p *fakePool) Ping(context.Context) error { return p.pingErr }

func (p *fakePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// memDeps returns CommonDeps over a fake pool and a shared memstore.
func memDeps(pool *fakePool, creds *memstore.Store) CommonDeps {
	return CommonDeps{
		PoolFactory: func(context.Context, string, store.ConnectOptions) (Pool, error) {
			return pool, nil
		},
		StoreFactory: func(Pool) auth.CredentialStore { return creds },
	}
}

// mockMigrator implements MigrationRunner for testing.
type mockMigrator struct {
	upCalled    bool
	upError     error
	downCalled  bool
	steps       int
	forced      int
	version     uint
	dirty       bool
	applied     []uint
	pending     []uint
	closeCalled bool
	closeError  error
}

func (m *mockMigrator) Up() error {
	m.upCalled = true
	return m.upError
}

func (m *mockMigrator) Down() error {
	m.downCalled = true
	return nil
}

func (m *mockMigrator) Steps(n int) error {
	m.steps = n
	return nil
}

func (m *mockMigrator) Version() (uint, bool, error) { return m.version, m.dirty, nil }

func (m *mockMigrator) Force(v int) error {
	m.forced = v
	return nil
}

func (m *mockMigrator) PendingMigrations() ([]uint, error) { return m.pending, nil }

func (m *mockMigrator) AppliedMigrations() ([]uint, error) { return m.applied, nil }

func (m *mockMigrator) Close() error {
	m.closeCalled = true
	return m.closeError
}

// mockObservabilityServer implements ObservabilityServer for testing.
type mockObservabilityServer struct {
	startErr error
	errCh    chan error
	metrics  *observability.Metrics
	stopped  bool
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	if m.errCh == nil {
		m.errCh = make(chan error, 1)
	}
	return m.errCh, nil
}

func (m *mockObservabilityServer) Stop(context.Context) error {
	m.stopped = true
	return nil
}

func (m *mockObservabilityServer) Addr() string { return "127.0.0.1:9100" }

func (m *mockObservabilityServer) Metrics() *observability.Metrics { return m.metrics }

// mockHTTPServer implements HTTPServer for testing.
type mockHTTPServer struct {
	mu       sync.Mutex
	startErr error
	errCh    chan error
	started  chan struct{}
	stopped  bool
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{errCh: make(chan error, 1), started: make(chan struct{})}
}

func (m *mockHTTPServer) Start() (<-chan error, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	close(m.started)
	return m.errCh, nil
}

func (m *mockHTTPServer) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *mockHTTPServer) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *mockHTTPServer) Addr() string { return "127.0.0.1:1234" }

// newMockCmd returns a command whose output is captured.
func newMockCmd() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	return cmd, out
}
