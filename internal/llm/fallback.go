package llm

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Fallback tries each client in order and moves on only when a failure is
// retryable.
type Fallback struct {
	clients []Client
	log     *zap.Logger
}

// NewFallback wraps clients. The first one is the primary.
func NewFallback(log *zap.Logger, clients ...Client) *Fallback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{clients: clients, log: log}
}

func (f *Fallback) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	if len(f.clients) == 0 {
		return nil, errors.New("no llm clients configured")
	}

	var lastErr error
	for i, c := range f.clients {
		r := *req
		if i > 0 {
			// The sampling model names the primary; fallbacks use their own.
			r.Sampling.Model = ""
		}
		resp, err := c.Complete(ctx, &r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if i+1 < len(f.clients) {
			f.log.Warn("provider failed, trying fallback",
				zap.String("provider", c.Provider()),
				zap.String("model", c.Model()),
				zap.String("next", f.clients[i+1].Provider()),
				zap.Error(err))
		}
	}
	return nil, lastErr
}

func (f *Fallback) Provider() string {
	if len(f.clients) == 0 {
		return ""
	}
	return f.clients[0].Provider()
}

func (f *Fallback) Model() string {
	if len(f.clients) == 0 {
		return ""
	}
	return f.clients[0].Model()
}
