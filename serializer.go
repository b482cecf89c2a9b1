package crate

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// Serializer boxes value graphs and writes them through a Codec.
//
// Configuration is fixed at construction, so a Serializer is safe for
// concurrent use. Every call works on its own identity trackers.
type Serializer struct {
	codec      Codec
	signer     Signer
	verifier   Verifier
	extractor  Extractor
	loader     Loader
	policy     BindPolicy
	maxDepth   int
	compressor Compressor
	encryptor  Encryptor
	logger     *zap.Logger
}

// New creates a Serializer writing through codec.
//
// Without options the output is unsigned and uncompressed, closures
// carry their own code descriptors, and function values cannot be
// unboxed until a Loader is configured.
func New(codec Codec, opts ...Option) *Serializer {
	s := &Serializer{
		codec:     codec,
		extractor: funcExtractor{},
		maxDepth:  DefaultMaxDepth,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	emitSerializerCreated(context.Background(), codec.ContentType())
	return s
}

// ContentType returns the content type of the underlying codec.
func (s *Serializer) ContentType() string {
	return s.codec.ContentType()
}

// Box converts v into its encodable tree. The tree is not signed; use
// Serialize for the full pipeline.
func (s *Serializer) Box(v any) (*Node, error) {
	n, _, err := s.box(v)
	return n, err
}

func (s *Serializer) box(v any) (*Node, *boxTracker, error) {
	e := &encoder{
		tracker:   newBoxTracker(),
		extractor: s.extractor,
		policy:    s.policy,
		maxDepth:  s.maxDepth,
		logger:    s.logger,
	}
	root, err := e.run(v)
	if err != nil {
		return nil, nil, err
	}
	return flatten(root), e.tracker, nil
}

// Unbox rebuilds the value described by n.
func (s *Serializer) Unbox(n *Node) (any, error) {
	var out any
	if _, err := s.unbox(n, reflect.ValueOf(&out).Elem()); err != nil {
		return nil, err
	}
	return out, nil
}

// UnboxInto rebuilds the value described by n into dst, which must be a
// non-nil pointer. The destination type guides decoding of untyped nodes.
func (s *Serializer) UnboxInto(n *Node, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: got %T", ErrInvalidTarget, dst)
	}
	_, err := s.unbox(n, rv.Elem())
	return err
}

func (s *Serializer) unbox(n *Node, dst reflect.Value) (*decoder, error) {
	d := &decoder{
		tracker:  newUnboxTracker(),
		loader:   s.loader,
		maxDepth: s.maxDepth,
		logger:   s.logger,
	}
	// Decode into a scratch value so a failed call leaves dst untouched.
	scratch := reflect.New(dst.Type()).Elem()
	if err := d.run(n, scratch); err != nil {
		return d, err
	}
	dst.Set(scratch)
	return d, nil
}

// Serialize boxes v and runs the tree through the codec, the optional
// compressor and encryptor, and finally seals it with the signer.
func (s *Serializer) Serialize(ctx context.Context, v any) ([]byte, error) {
	start := time.Now()
	emitSerializeStart(ctx, s.codec.ContentType())

	var retErr error
	var retData []byte
	var boxes, funcs int
	defer func() {
		emitSerializeComplete(ctx, s.codec.ContentType(),
			len(retData), time.Since(start), boxes, funcs, retErr)
	}()

	tree, tracker, err := s.box(v)
	if err != nil {
		retErr = err
		return nil, retErr
	}
	boxes, funcs = tracker.boxes, tracker.funcs

	payload, err := s.codec.Marshal(tree)
	if err != nil {
		retErr = newCodecError(ErrMarshal, err)
		return nil, retErr
	}
	if s.compressor != nil {
		if payload, err = s.compressor.Compress(payload); err != nil {
			retErr = newCodecError(ErrCompress, err)
			return nil, retErr
		}
	}
	if s.encryptor != nil {
		if payload, err = s.encryptor.Encrypt(payload); err != nil {
			retErr = newCodecError(ErrEncrypt, err)
			return nil, retErr
		}
	}

	retData = Seal(payload, s.signer)
	return retData, nil
}

// Tree checks the envelope of data and decodes it into its tree without
// rebuilding any values.
func (s *Serializer) Tree(ctx context.Context, data []byte) (*Node, error) {
	payload, err := Open(data, s.verifier)
	if err != nil {
		var ie *IntegrityError
		if errors.As(err, &ie) {
			emitIntegrityFailed(ctx, s.codec.ContentType(), err)
		}
		return nil, err
	}
	if s.encryptor != nil {
		if payload, err = s.encryptor.Decrypt(payload); err != nil {
			return nil, newCodecError(ErrDecrypt, err)
		}
	}
	if s.compressor != nil {
		if payload, err = s.compressor.Decompress(payload); err != nil {
			return nil, newCodecError(ErrDecompress, err)
		}
	}

	var tree Node
	if err := s.codec.Unmarshal(payload, &tree); err != nil {
		return nil, newCodecError(ErrUnmarshal, err)
	}
	return &tree, nil
}

// Unserialize reverses Serialize.
func (s *Serializer) Unserialize(ctx context.Context, data []byte) (any, error) {
	var out any
	if err := s.unserialize(ctx, data, reflect.ValueOf(&out).Elem()); err != nil {
		return nil, err
	}
	return out, nil
}

// UnserializeInto reverses Serialize into dst, which must be a non-nil
// pointer.
func (s *Serializer) UnserializeInto(ctx context.Context, data []byte, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: got %T", ErrInvalidTarget, dst)
	}
	return s.unserialize(ctx, data, rv.Elem())
}

func (s *Serializer) unserialize(ctx context.Context, data []byte, dst reflect.Value) error {
	start := time.Now()
	emitUnserializeStart(ctx, s.codec.ContentType(), len(data))

	var retErr error
	var boxes, funcs int
	defer func() {
		emitUnserializeComplete(ctx, s.codec.ContentType(),
			len(data), time.Since(start), boxes, funcs, retErr)
	}()

	tree, err := s.Tree(ctx, data)
	if err != nil {
		retErr = err
		return retErr
	}
	d, err := s.unbox(tree, dst)
	boxes, funcs = d.boxes, d.funcs
	retErr = err
	return retErr
}
