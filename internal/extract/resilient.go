package extract

import (
	"context"
	"log/slog"
)

// Resilient pairs a primary extractor with a fallback. Any primary failure
// class (unreachable service, timeout, unusable payload) routes the same
// turn to the fallback; context cancellation is the one exception and is
// surfaced so a cancelled session does not burn a fallback turn.
type Resilient struct {
	Primary  Extractor
	Fallback Extractor
	Logger   *slog.Logger
}

// Extract resolves the turn through the primary path when possible.
func (r Resilient) Extract(ctx context.Context, turn Context) (*Response, error) {
	if r.Primary != nil {
		resp, err := r.Primary.Extract(ctx, turn)
		if err == nil && resp != nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if r.Logger != nil && err != nil {
			r.Logger.Warn("primary extraction failed; using heuristic fallback", "error", err.Error())
		}
	}

	if r.Fallback == nil {
		return Heuristic{}.Extract(ctx, turn)
	}
	return r.Fallback.Extract(ctx, turn)
}
