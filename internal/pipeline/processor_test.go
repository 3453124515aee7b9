package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-relay/internal/pipeline"
	"github.com/tinywideclouds/go-push-relay/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, payload *push.Payload) (*push.DeliveryResult, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.DeliveryResult), args.Error(1)
}

func TestProcessor_Process(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("Relays upstream result", func(t *testing.T) {
		deliverer := new(mockDeliverer)
		upstream := &push.DeliveryResult{StatusCode: 200, Body: json.RawMessage(`{"data":{"status":"ok"}}`)}
		deliverer.On("Deliver", ctx, mock.MatchedBy(func(p *push.Payload) bool {
			return !p.Compressed && p.Count == 1
		})).Return(upstream, nil).Once()

		processor := pipeline.NewProcessor(deliverer, logger)
		result, err := processor.Process(ctx, pipeline.ModeSingle, decode(t, `{"to":"ExponentPushToken[abc]"}`))

		require.NoError(t, err)
		assert.Equal(t, upstream, result)
		deliverer.AssertExpectations(t)
	})

	t.Run("Upstream error status is not an error", func(t *testing.T) {
		deliverer := new(mockDeliverer)
		upstream := &push.DeliveryResult{StatusCode: 429, Body: json.RawMessage(`{"errors":[{"code":"TOO_MANY_REQUESTS"}]}`)}
		deliverer.On("Deliver", ctx, mock.Anything).Return(upstream, nil).Once()

		processor := pipeline.NewProcessor(deliverer, logger)
		result, err := processor.Process(ctx, pipeline.ModeHeadless, decode(t, `{"to":"A"}`))

		require.NoError(t, err)
		assert.Equal(t, 429, result.StatusCode)
	})

	t.Run("Gzip sends compressed payload", func(t *testing.T) {
		deliverer := new(mockDeliverer)
		deliverer.On("Deliver", ctx, mock.MatchedBy(func(p *push.Payload) bool {
			return p.Compressed && p.Count == 2
		})).Return(&push.DeliveryResult{StatusCode: 200, Body: json.RawMessage(`{}`)}, nil).Once()

		processor := pipeline.NewProcessor(deliverer, logger)
		_, err := processor.Process(ctx, pipeline.ModeGzip, decode(t, `{"notifications":[{"to":"A"},{"to":"B"}]}`))

		require.NoError(t, err)
		deliverer.AssertExpectations(t)
	})

	t.Run("Invalid requests never reach the deliverer", func(t *testing.T) {
		bodies := map[pipeline.Mode]string{
			pipeline.ModeSingle:   `{"title":"no recipient"}`,
			pipeline.ModeHeadless: `{"body":"no recipient"}`,
			pipeline.ModeBatch:    `{"notifications":[{"to":"A"},{"body":"x"}]}`,
			pipeline.ModeGzip:     `{"notifications":[{"body":"x"},{"to":"A"}]}`,
		}

		for mode, body := range bodies {
			deliverer := new(mockDeliverer)
			processor := pipeline.NewProcessor(deliverer, logger)

			_, err := processor.Process(ctx, mode, decode(t, body))

			require.Error(t, err, mode.String())
			assert.Equal(t, 400, push.HTTPStatus(err), mode.String())
			deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
		}
	})

	t.Run("Transport failure is wrapped", func(t *testing.T) {
		deliverer := new(mockDeliverer)
		deliverer.On("Deliver", ctx, mock.Anything).
			Return(nil, &push.UpstreamError{Err: errors.New("connection refused")}).Once()

		processor := pipeline.NewProcessor(deliverer, logger)
		_, err := processor.Process(ctx, pipeline.ModeSingle, decode(t, `{"to":"A"}`))

		require.Error(t, err)
		assert.Equal(t, 502, push.HTTPStatus(err))
		assert.Contains(t, err.Error(), "single delivery")
	})
}
