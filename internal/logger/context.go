package logger

import "context"

type contextKey string

const TraceIDKey contextKey = "trace_id"
const PatientIDKey contextKey = "patient_id"

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

func WithPatientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, PatientIDKey, id)
}

func GetPatientID(ctx context.Context) string {
	if id, ok := ctx.Value(PatientIDKey).(string); ok {
		return id
	}
	return ""
}
