package agents

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

type startKey struct{}

// LogHandler logs chat model invocations through zap.
type LogHandler struct {
	logger *zap.Logger
}

var _ callbacks.Handler = (*LogHandler)(nil)

func NewLogHandler(logger *zap.Logger) *LogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if !isChatModel(info) {
		return ctx
	}
	h.logger.Debug("role started", zap.String("node", info.Name))
	return context.WithValue(ctx, startKey{}, time.Now())
}

func (h *LogHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if !isChatModel(info) {
		return ctx
	}
	fields := []zap.Field{zap.String("node", info.Name)}
	if started, ok := ctx.Value(startKey{}).(time.Time); ok {
		fields = append(fields, zap.Duration("elapsed", time.Since(started)))
	}
	if out := ecmodel.ConvCallbackOutput(output); out != nil {
		if out.Message != nil {
			fields = append(fields, zap.Int("chars", len(out.Message.Content)))
		}
		if out.TokenUsage != nil {
			fields = append(fields,
				zap.Int("prompt_tokens", out.TokenUsage.PromptTokens),
				zap.Int("completion_tokens", out.TokenUsage.CompletionTokens))
		}
	}
	h.logger.Debug("role finished", fields...)
	return ctx
}

func (h *LogHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	name := ""
	if info != nil {
		name = info.Name
	}
	h.logger.Error("role failed", zap.String("node", name), zap.Error(err))
	return ctx
}

func (h *LogHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (h *LogHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	go func() {
		defer output.Close() // remember to close the stream in defer
		chars := 0
		for {
			frame, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				h.logger.Warn("role stream failed", zap.Error(err))
				return
			}
			if out := ecmodel.ConvCallbackOutput(frame); out != nil && out.Message != nil {
				chars += len(out.Message.Content)
			}
		}
		if isChatModel(info) {
			h.logger.Debug("role stream finished", zap.String("node", info.Name), zap.Int("chars", chars))
		}
	}()
	return ctx
}

func isChatModel(info *callbacks.RunInfo) bool {
	return info != nil && info.Component == components.ComponentOfChatModel
}
