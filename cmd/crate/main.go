// crate inspects payloads written by a crate Serializer.
//
//	crate inspect [flags] [file]   print the decoded tree as YAML
//	crate verify [flags] [file]    check the signature envelope only
//
// Input is read from file, or from stdin when file is omitted or "-".
// Encrypted payloads cannot be inspected.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zoobzio/crate"
	"github.com/zoobzio/crate/bson"
	"github.com/zoobzio/crate/cbor"
	"github.com/zoobzio/crate/compress"
	"github.com/zoobzio/crate/json"
	"github.com/zoobzio/crate/msgpack"
	"github.com/zoobzio/crate/xml"
	cyaml "github.com/zoobzio/crate/yaml"
)

var codecs = map[string]func() crate.Codec{
	"bson":    bson.New,
	"cbor":    cbor.New,
	"json":    json.New,
	"msgpack": msgpack.New,
	"xml":     xml.New,
	"yaml":    cyaml.New,
}

// errUsage is returned for bad invocations so main can exit with 2.
var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	codec    string
	algo     string
	key      string
	compress string
	verbose  bool
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.codec, "codec", "json", "payload codec ("+strings.Join(codecNames(), ", ")+")")
	fs.StringVar(&o.algo, "algo", string(crate.SignHMAC), "signature algorithm")
	fs.StringVarP(&o.key, "key", "k", "", "signing key; unsigned payloads are expected when empty")
	fs.StringVar(&o.compress, "compress", "", "compression algorithm the payload was written with")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log decoding details to stderr")
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: crate <inspect|verify> [flags] [file]", errUsage)
	}
	cmd, rest := args[0], args[1:]

	var opts options
	fs := pflag.NewFlagSet("crate "+cmd, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts.addFlags(fs)

	switch cmd {
	case "inspect", "verify":
	case "help", "-h", "--help":
		printHelp(stdout, fs)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, fs)
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(1))
	}

	data, err := readInput(fs.Arg(0), stdin)
	if err != nil {
		return err
	}

	if cmd == "verify" {
		return verify(opts, data, stdout)
	}
	return inspect(opts, data, stdout)
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func verifier(opts options) (crate.Verifier, error) {
	if opts.key == "" {
		return nil, nil
	}
	return crate.NewSigner(crate.SignAlgo(opts.algo), []byte(opts.key))
}

func verify(opts options, data []byte, stdout io.Writer) error {
	v, err := verifier(opts)
	if err != nil {
		return err
	}
	payload, err := crate.Open(data, v)
	if err != nil {
		return err
	}
	if v == nil {
		fmt.Fprintf(stdout, "unsigned, %d bytes\n", len(payload))
		return nil
	}
	fmt.Fprintf(stdout, "ok, %s, %d bytes\n", opts.algo, len(payload))
	return nil
}

func inspect(opts options, data []byte, stdout io.Writer) error {
	newCodec, ok := codecs[opts.codec]
	if !ok {
		return fmt.Errorf("%w: unknown codec %q", errUsage, opts.codec)
	}

	logger := zap.NewNop()
	if opts.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer func() { _ = l.Sync() }()
		logger = l
	}
	serializerOpts := []crate.Option{crate.WithLogger(logger)}

	v, err := verifier(opts)
	if err != nil {
		return err
	}
	if v != nil {
		serializerOpts = append(serializerOpts, crate.WithVerifier(v))
	}
	if opts.compress != "" {
		c, err := compress.New(crate.CompressAlgo(opts.compress))
		if err != nil {
			return err
		}
		serializerOpts = append(serializerOpts, crate.WithCompressor(c))
	}

	s := crate.New(newCodec(), serializerOpts...)
	tree, err := s.Tree(context.Background(), data)
	if err != nil {
		return err
	}
	logger.Debug("decoded tree", zap.String("codec", opts.codec), zap.Int("bytes", len(data)))

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(tree); err != nil {
		return err
	}
	return enc.Close()
}

func codecNames() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprint(w, `crate inspects serialized payloads.

Usage:
  crate inspect [flags] [file]
  crate verify [flags] [file]

Examples:
  # Decode a signed msgpack payload
  crate inspect --codec msgpack --key "$SECRET" payload.bin

  # Check an Ed25519 signature read from stdin
  crate verify --algo ed25519 --key "$SEED" < payload.bin

Flags:
`)
	fs.SetOutput(w)
	fs.PrintDefaults()
}
