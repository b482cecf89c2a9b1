package crate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEmitSerializerCreated(_ *testing.T) {
	// Should not panic
	emitSerializerCreated(context.Background(), "application/json")
}

func TestEmitSerializeStart(_ *testing.T) {
	emitSerializeStart(context.Background(), "application/json")
}

func TestEmitSerializeComplete_Success(_ *testing.T) {
	emitSerializeComplete(context.Background(), "application/json", 1024, 100*time.Millisecond, 3, 1, nil)
}

func TestEmitSerializeComplete_Error(_ *testing.T) {
	emitSerializeComplete(context.Background(), "application/json", 0, 100*time.Millisecond, 0, 0, errors.New("test error"))
}

func TestEmitUnserializeStart(_ *testing.T) {
	emitUnserializeStart(context.Background(), "application/json", 512)
}

func TestEmitUnserializeComplete_Success(_ *testing.T) {
	emitUnserializeComplete(context.Background(), "application/json", 512, 100*time.Millisecond, 2, 2, nil)
}

func TestEmitUnserializeComplete_Error(_ *testing.T) {
	emitUnserializeComplete(context.Background(), "application/json", 512, 100*time.Millisecond, 0, 0, errors.New("test error"))
}

func TestEmitIntegrityFailed(_ *testing.T) {
	emitIntegrityFailed(context.Background(), "application/json", newIntegrityError(ErrSignatureInvalid))
}

func TestEmitTypeFailOpen(_ *testing.T) {
	emitTypeFailOpen(context.Background(), "example.Broken", errors.New("describe failed"))
}

func TestSignalVariables(t *testing.T) {
	signals := []struct {
		name   string
		signal interface{}
	}{
		{"SignalSerializerCreated", SignalSerializerCreated},
		{"SignalSerializeStart", SignalSerializeStart},
		{"SignalSerializeComplete", SignalSerializeComplete},
		{"SignalUnserializeStart", SignalUnserializeStart},
		{"SignalUnserializeComplete", SignalUnserializeComplete},
		{"SignalIntegrityFailed", SignalIntegrityFailed},
		{"SignalTypeFailOpen", SignalTypeFailOpen},
	}

	for _, s := range signals {
		if s.signal == nil {
			t.Errorf("%s is nil", s.name)
		}
	}
}

func TestKeyVariables(t *testing.T) {
	keys := []struct {
		name string
		key  interface{}
	}{
		{"KeyContentType", KeyContentType},
		{"KeyTypeName", KeyTypeName},
		{"KeySize", KeySize},
		{"KeyDuration", KeyDuration},
		{"KeyError", KeyError},
		{"KeyBoxCount", KeyBoxCount},
		{"KeyClosureCount", KeyClosureCount},
	}

	for _, k := range keys {
		if k.key == nil {
			t.Errorf("%s is nil", k.name)
		}
	}
}
