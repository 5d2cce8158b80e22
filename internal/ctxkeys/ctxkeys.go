package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey     contextKey = "trace_id"
	requestIDKey   contextKey = "request_id"
	executionIDKey contextKey = "execution_id"
	nodeIDKey      contextKey = "node_id"
)

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithExecutionID 设置工作流执行 ID
func WithExecutionID(ctx context.Context, id uint) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// ExecutionID 获取工作流执行 ID
func ExecutionID(ctx context.Context) (uint, bool) {
	v, ok := ctx.Value(executionIDKey).(uint)
	if !ok || v == 0 {
		return 0, false
	}
	return v, true
}

// WithNodeID 设置当前节点 ID
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, nodeIDKey, nodeID)
}

// NodeID 获取当前节点 ID
func NodeID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(nodeIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
