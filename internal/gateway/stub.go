package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubProvider is an in-memory provider for development and tests. Created
// sessions immediately produce an intent in requires_capture.
type StubProvider struct {
	mu      sync.Mutex
	intents map[string]string // intent id -> status
}

func NewStubProvider() *StubProvider {
	return &StubProvider{intents: make(map[string]string)}
}

func (s *StubProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	now := time.Now().UnixNano()
	sessionID := fmt.Sprintf("cs_stub_%d", now)
	intentID := fmt.Sprintf("pi_stub_%d", now)

	s.mu.Lock()
	s.intents[intentID] = IntentRequiresCapture
	s.mu.Unlock()

	return &CheckoutSession{
		SessionID: sessionID,
		URL:       "https://checkout.stub.local/" + sessionID,
	}, nil
}

func (s *StubProvider) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.intents[intentID]
	if !ok {
		// Unknown intents happen when the webhook was simulated directly;
		// report them as capturable so the dev flow works end to end.
		status = IntentRequiresCapture
		s.intents[intentID] = status
	}
	return &Intent{IntentID: intentID, Status: status}, nil
}

func (s *StubProvider) CaptureIntent(ctx context.Context, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.intents[intentID] == IntentSucceeded {
		return fmt.Errorf("intent %s already captured", intentID)
	}
	s.intents[intentID] = IntentSucceeded
	return nil
}

func (s *StubProvider) RefundIntent(ctx context.Context, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.intents[intentID] = IntentCanceled
	return nil
}
