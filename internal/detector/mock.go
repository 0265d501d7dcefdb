package detector

import "context"

// MockClient is a Client for tests. Set the func fields to control behavior;
// unset fields return zero values.
type MockClient struct {
	DetectFunc func(ctx context.Context, image []byte) ([]Detection, error)
	HealthFunc func(ctx context.Context) error
}

// Detect calls DetectFunc when set.
func (m *MockClient) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, image)
	}

	return nil, nil
}

// Health calls HealthFunc when set.
func (m *MockClient) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}

	return nil
}
