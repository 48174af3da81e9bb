package llm

import (
	"context"
	"fmt"
	"log"

	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/tools"
)

// Router selects between a local and a cloud chat backend according to the
// session's privacy mode. local_only never sends a byte to the cloud;
// hybrid prefers local and falls back; cloud_preferred is the inverse.
type Router struct {
	local ChatProvider
	cloud ChatProvider
	mode  domain.PrivacyMode
}

func NewRouter(local, cloud ChatProvider, mode domain.PrivacyMode) *Router {
	if mode == "" {
		mode = domain.PrivacyModeLocalOnly
	}
	return &Router{local: local, cloud: cloud, mode: mode}
}

func (r *Router) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	primary, fallback := r.order()
	if primary == nil {
		return nil, fmt.Errorf("no chat backend configured for privacy mode %q", r.mode)
	}

	resp, err := primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	if fallback == nil || ctx.Err() != nil || tools.IsCancellationError(err) {
		return nil, err
	}

	log.Printf("WARN: primary chat backend failed, falling back: %v", err)
	return fallback.Chat(ctx, req)
}

func (r *Router) IsAvailable(ctx context.Context) bool {
	primary, fallback := r.order()
	if primary != nil && primary.IsAvailable(ctx) {
		return true
	}
	return fallback != nil && fallback.IsAvailable(ctx)
}

// order returns the backend preference for the configured privacy mode.
func (r *Router) order() (primary, fallback ChatProvider) {
	switch r.mode {
	case domain.PrivacyModeCloudPreferred:
		return r.cloud, r.local
	case domain.PrivacyModeHybrid:
		return r.local, r.cloud
	default: // local_only
		return r.local, nil
	}
}
