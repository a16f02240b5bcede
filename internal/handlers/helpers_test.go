package handlers_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/archers7727/rokey5/internal/actuation"
)

var epoch = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// recordingPublisher captures actuation requests.
type recordingPublisher struct {
	mu     sync.Mutex
	exits  []actuation.ExitRequest
	guides []actuation.GuideRequest
	err    error
}

func (p *recordingPublisher) PublishExit(_ context.Context, req actuation.ExitRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exits = append(p.exits, req)
	return p.err
}

func (p *recordingPublisher) PublishGuide(_ context.Context, req actuation.GuideRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.guides = append(p.guides, req)
	return p.err
}

func (p *recordingPublisher) Exits() []actuation.ExitRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]actuation.ExitRequest(nil), p.exits...)
}

func (p *recordingPublisher) Guides() []actuation.GuideRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]actuation.GuideRequest(nil), p.guides...)
}
