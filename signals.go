package crate

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// Signals for serializer events.
var (
	SignalSerializerCreated   = capitan.NewSignal("crate.serializer.created", "Serializer instantiated")
	SignalSerializeStart      = capitan.NewSignal("crate.serialize.start", "Serialize operation beginning")
	SignalSerializeComplete   = capitan.NewSignal("crate.serialize.complete", "Serialize operation finished")
	SignalUnserializeStart    = capitan.NewSignal("crate.unserialize.start", "Unserialize operation beginning")
	SignalUnserializeComplete = capitan.NewSignal("crate.unserialize.complete", "Unserialize operation finished")
	SignalIntegrityFailed     = capitan.NewSignal("crate.integrity.failed", "Signature check rejected input")
	SignalTypeFailOpen        = capitan.NewSignal("crate.type.failopen", "Type could not be described and is written inline")
)

// Keys for typed event data.
var (
	KeyContentType  = capitan.NewStringKey("content_type")
	KeyTypeName     = capitan.NewStringKey("type_name")
	KeySize         = capitan.NewIntKey("size")
	KeyDuration     = capitan.NewDurationKey("duration")
	KeyError        = capitan.NewErrorKey("error")
	KeyBoxCount     = capitan.NewIntKey("box_count")
	KeyClosureCount = capitan.NewIntKey("closure_count")
)

// emitSerializerCreated emits an event when a serializer is created.
func emitSerializerCreated(ctx context.Context, contentType string) {
	capitan.Emit(ctx, SignalSerializerCreated,
		KeyContentType.Field(contentType),
	)
}

// emitSerializeStart emits an event when serialize begins.
func emitSerializeStart(ctx context.Context, contentType string) {
	capitan.Emit(ctx, SignalSerializeStart,
		KeyContentType.Field(contentType),
	)
}

// emitSerializeComplete emits an event when serialize finishes.
func emitSerializeComplete(ctx context.Context, contentType string, size int, duration time.Duration, boxes, funcs int, err error) {
	fields := []capitan.Field{
		KeyContentType.Field(contentType),
		KeySize.Field(size),
		KeyDuration.Field(duration),
		KeyBoxCount.Field(boxes),
		KeyClosureCount.Field(funcs),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalSerializeComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalSerializeComplete, fields...)
	}
}

// emitUnserializeStart emits an event when unserialize begins.
func emitUnserializeStart(ctx context.Context, contentType string, size int) {
	capitan.Emit(ctx, SignalUnserializeStart,
		KeyContentType.Field(contentType),
		KeySize.Field(size),
	)
}

// emitUnserializeComplete emits an event when unserialize finishes.
func emitUnserializeComplete(ctx context.Context, contentType string, size int, duration time.Duration, boxes, funcs int, err error) {
	fields := []capitan.Field{
		KeyContentType.Field(contentType),
		KeySize.Field(size),
		KeyDuration.Field(duration),
		KeyBoxCount.Field(boxes),
		KeyClosureCount.Field(funcs),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalUnserializeComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalUnserializeComplete, fields...)
	}
}

// emitIntegrityFailed emits an event when sealed input is rejected.
func emitIntegrityFailed(ctx context.Context, contentType string, err error) {
	capitan.Error(ctx, SignalIntegrityFailed,
		KeyContentType.Field(contentType),
		KeyError.Field(err),
	)
}

// emitTypeFailOpen emits an event when a type falls back to inline.
func emitTypeFailOpen(ctx context.Context, typeName string, err error) {
	capitan.Error(ctx, SignalTypeFailOpen,
		KeyTypeName.Field(typeName),
		KeyError.Field(err),
	)
}
