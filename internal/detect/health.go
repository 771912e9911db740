package detect

import (
	"context"
	"time"
)

const healthCheckText = "Test detection for John Smith"

// HealthCheck runs one small inference so model loading problems show up at
// startup instead of on the first user request.
func HealthCheck(ctx context.Context, inf Inferencer, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := inf.Predict(ctx, healthCheckText)
	return err
}
