package llm

import (
	"log"
	"os"
	"time"

	"github.com/cutline/orchestrator/internal/domain"
)

const (
	// EnvCutlineMode is the environment variable name for mode selection.
	EnvCutlineMode = "CUTLINE_MODE"
	// ModeMock indicates the deterministic mock provider should be used.
	ModeMock = "MOCK"
)

// BackendConfig describes one OpenAI-compatible chat backend.
type BackendConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewChatProvider builds the chat provider stack. CUTLINE_MODE=MOCK yields
// the deterministic mock; otherwise a privacy-mode router over the
// configured local and cloud backends. A backend with no base URL is left
// out of the router.
func NewChatProvider(local, cloud BackendConfig, mode domain.PrivacyMode, timeout time.Duration) ChatProvider {
	if os.Getenv(EnvCutlineMode) == ModeMock {
		log.Println("CUTLINE_MODE=MOCK detected, using mock chat provider")
		return NewMockClient()
	}

	var localClient, cloudClient ChatProvider
	if local.BaseURL != "" {
		localClient = NewClient(local.BaseURL, local.APIKey, local.Model, timeout)
	}
	if cloud.BaseURL != "" {
		cloudClient = NewClient(cloud.BaseURL, cloud.APIKey, cloud.Model, timeout)
	}
	return NewRouter(localClient, cloudClient, mode)
}
