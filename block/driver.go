// Package block wraps an RS codec (rs256 or rsi16; anything implementing
// Codec[T]) into a streaming driver that segments arbitrary-length data
// into fixed-size blocks, tracks outcomes with Prometheus metrics, and
// supports either an inline (systematic, message+parity interleaved) or
// external (message and parity returned as separate streams) wire layout.
// The segmentation/short-trailing-block handling mirrors the stream
// processing shape of the host module's streaming pipeline
// (pkg/das/stream_pipeline.go), re-targeted from a goroutine-staged
// validate/decode/store pipeline to a single synchronous encode/decode
// driver, and from ad hoc atomic counters to a Prometheus collector set.
package block

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fecgo/rscodec/ferr"
	"github.com/fecgo/rscodec/flog"
	"github.com/fecgo/rscodec/gf65537"
	"github.com/fecgo/rscodec/rs256"
	"github.com/fecgo/rscodec/rsi16"
)

// Mode records the wire layout a Driver's caller intends to use. No Driver
// method consults it: EncodeMessage always produces the inline layout and
// EncodeExternal always produces the external one.
type Mode int

const (
	// ModeInline interleaves message and parity within each block, the
	// layout rs256/rsi16 Encode itself produces.
	ModeInline Mode = iota
	// ModeExternal returns the message stream and the parity stream
	// separately, e.g. for callers that store parity out of band.
	ModeExternal
)

// Codec is the subset of rs256.Codec / rsi16.Codec a Driver depends on.
// Both satisfy this interface: rs256.Codec as Codec[byte], rsi16.Codec as
// Codec[gf65537.Element].
type Codec[T any] interface {
	Encode([]T) error
	Decode([]T) error
	EncodeBlocks([]T) ([]T, error)
	FindErrors([]T) (map[int]T, error)
	BlockLen() int
	MessageLen() int
	EccLen() int
}

type metrics struct {
	blocksEncoded   prometheus.Counter
	blocksDecoded   prometheus.Counter
	decodeFailed    prometheus.Counter
	correctedErrors prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, driverName string) *metrics {
	labels := prometheus.Labels{"driver": driverName}
	m := &metrics{
		blocksEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rscodec",
			Subsystem:   "block",
			Name:        "blocks_encoded_total",
			Help:        "Blocks successfully encoded.",
			ConstLabels: labels,
		}),
		blocksDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rscodec",
			Subsystem:   "block",
			Name:        "blocks_decoded_total",
			Help:        "Blocks successfully decoded (including blocks with corrected errors).",
			ConstLabels: labels,
		}),
		decodeFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rscodec",
			Subsystem:   "block",
			Name:        "decode_failed_total",
			Help:        "Blocks that could not be decoded (uncorrectable error pattern).",
			ConstLabels: labels,
		}),
		correctedErrors: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "rscodec",
			Subsystem:   "block",
			Name:        "corrected_errors",
			Help:        "Number of symbol errors corrected per successfully decoded block.",
			ConstLabels: labels,
			Buckets:     prometheus.LinearBuckets(0, 1, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.blocksEncoded, m.blocksDecoded, m.decodeFailed, m.correctedErrors)
	}
	return m
}

// Option configures a Driver.
type Option[T any] func(*Driver[T])

// WithMode records the intended wire layout (see Mode). Defaults to
// ModeInline.
func WithMode[T any](mode Mode) Option[T] {
	return func(d *Driver[T]) { d.mode = mode }
}

// WithRegisterer registers the driver's metrics with reg under the given
// driver name (used as a const label). Pass a nil reg to skip registration
// (metrics are still collected internally, just not exported).
func WithRegisterer[T any](reg prometheus.Registerer, driverName string) Option[T] {
	return func(d *Driver[T]) { d.metrics = newMetrics(reg, driverName) }
}

// WithLogger attaches a structured logger. Defaults to a discard logger.
func WithLogger[T any](l *flog.Logger) Option[T] {
	return func(d *Driver[T]) { d.logger = l }
}

// WithTailFactory supplies a constructor for a codec reconfigured to a
// shorter block_len, used by DecodeMessage to decode a short trailing block
// (the decode-side counterpart of the block_len cloning rs256/rsi16 already
// do internally for EncodeBlocks). NewRS256 and NewRSi16 set this
// automatically; callers using New directly with a custom Codec[T] must
// supply it themselves if they ever decode data whose length is not an
// exact multiple of block_len.
func WithTailFactory[T any](f func(blockLen int) (Codec[T], error)) Option[T] {
	return func(d *Driver[T]) { d.tailFactory = f }
}

// Driver segments data into blocks and drives codec.Encode/Decode over
// each, tracking metrics and logging outcomes.
type Driver[T any] struct {
	codec       Codec[T]
	mode        Mode
	metrics     *metrics
	logger      *flog.Logger
	tailFactory func(blockLen int) (Codec[T], error)
}

// New wraps codec in a Driver. Defaults to ModeInline with unregistered
// metrics and a discard logger. Decoding data whose trailing segment is
// shorter than a full block requires WithTailFactory; prefer NewRS256 or
// NewRSi16, which wire it automatically.
func New[T any](codec Codec[T], opts ...Option[T]) *Driver[T] {
	d := &Driver[T]{
		codec:   codec,
		mode:    ModeInline,
		metrics: newMetrics(nil, "unnamed"),
		logger:  flog.Discard().Module("block"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// NewRS256 wraps a rs256.Codec in a Driver, wiring WithTailFactory to
// rs256.Codec.WithBlockLen so short trailing blocks decode correctly.
func NewRS256(codec *rs256.Codec, opts ...Option[byte]) *Driver[byte] {
	opts = append([]Option[byte]{WithTailFactory(func(n int) (Codec[byte], error) {
		return codec.WithBlockLen(n)
	})}, opts...)
	return New[byte](codec, opts...)
}

// NewRSi16 wraps a rsi16.Codec in a Driver, wiring WithTailFactory to
// rsi16.Codec.WithBlockLen so short trailing blocks decode correctly.
func NewRSi16(codec *rsi16.Codec, opts ...Option[gf65537.Element]) *Driver[gf65537.Element] {
	opts = append([]Option[gf65537.Element]{WithTailFactory(func(n int) (Codec[gf65537.Element], error) {
		return codec.WithBlockLen(n)
	})}, opts...)
	return New[gf65537.Element](codec, opts...)
}

func numBlocks(dataLen, segLen int) int {
	if dataLen == 0 {
		return 0
	}
	n := dataLen / segLen
	if dataLen%segLen != 0 {
		n++
	}
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EncodeMessage segments data into message_len-sized blocks, encodes each,
// and returns the concatenated inline (message||parity per block) stream.
func (d *Driver[T]) EncodeMessage(data []T) ([]T, error) {
	out, err := d.codec.EncodeBlocks(data)
	if err != nil {
		return nil, err
	}
	n := numBlocks(len(data), d.codec.MessageLen())
	d.metrics.blocksEncoded.Add(float64(n))
	d.logger.Debug("encoded blocks", "blocks", n, "input_len", len(data), "output_len", len(out))
	return out, nil
}

// EncodeExternal encodes data and returns the message and parity streams
// separately (ModeExternal layout), regardless of the Driver's configured
// Mode; the Mode field documents the caller's intended wire layout but
// both accessors are always available.
func (d *Driver[T]) EncodeExternal(data []T) (message []T, parity []T, err error) {
	inline, err := d.EncodeMessage(data)
	if err != nil {
		return nil, nil, err
	}
	messageLen := d.codec.MessageLen()
	eccLen := d.codec.EccLen()
	blockLen := messageLen + eccLen

	q := len(data) / messageLen
	r := len(data) % messageLen

	message = make([]T, 0, len(data))
	parity = make([]T, 0, (q+boolToInt(r > 0))*eccLen)
	pos := 0
	for k := 0; k < q; k++ {
		message = append(message, inline[pos:pos+messageLen]...)
		parity = append(parity, inline[pos+messageLen:pos+blockLen]...)
		pos += blockLen
	}
	if r > 0 {
		message = append(message, inline[pos:pos+r]...)
		parity = append(parity, inline[pos+r:pos+r+eccLen]...)
	}
	return message, parity, nil
}

// decodeOne corrects a single block in place using codec, recording
// metrics. FindErrors runs first so the corrected-error count is available
// for the histogram; Decode then applies the correction (or returns the
// same failure). codec may be d.codec itself (full-length blocks) or a
// tail-length clone built via d.tailFactory (the short trailing block).
func (d *Driver[T]) decodeOne(codec Codec[T], blk []T) error {
	errs, err := codec.FindErrors(blk)
	if err != nil {
		d.metrics.decodeFailed.Inc()
		d.logger.Warn("block decode failed", "err", err)
		return err
	}
	if len(errs) > 0 {
		if derr := codec.Decode(blk); derr != nil {
			d.metrics.decodeFailed.Inc()
			d.logger.Warn("block decode failed", "err", derr)
			return derr
		}
	}
	d.metrics.correctedErrors.Observe(float64(len(errs)))
	d.metrics.blocksDecoded.Inc()
	return nil
}

// DecodeMessage is the inverse of EncodeMessage: it splits an inline stream
// into block_len-sized blocks (a possible short trailing block inferred
// from the total length), corrects each, and returns the concatenated
// message payload with parity stripped. A short trailing block (produced by
// EncodeMessage when the input wasn't an exact multiple of message_len)
// requires a Driver built with WithTailFactory (see NewRS256/NewRSi16):
// rs256/rsi16 validate a Decode/FindErrors buffer's length against the
// codec's configured block_len exactly, so the trailing block must be
// decoded with a codec reconfigured to its own shorter length rather than
// with d.codec directly.
func (d *Driver[T]) DecodeMessage(data []T) ([]T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	blockLen := d.codec.BlockLen()
	messageLen := d.codec.MessageLen()
	eccLen := d.codec.EccLen()

	q := len(data) / blockLen
	r := len(data) % blockLen

	out := make([]T, 0, len(data))
	pos := 0
	for k := 0; k < q; k++ {
		blk := append([]T(nil), data[pos:pos+blockLen]...)
		if err := d.decodeOne(d.codec, blk); err != nil {
			return nil, err
		}
		out = append(out, blk[:messageLen]...)
		pos += blockLen
	}
	if r > 0 {
		if r <= eccLen {
			return nil, ferr.BufferSizef("block: trailing segment length %d too short for ecc_len %d", r, eccLen)
		}
		if d.tailFactory == nil {
			return nil, ferr.Invalidf("block: trailing segment of length %d requires a tail codec factory; construct the Driver with NewRS256/NewRSi16 or WithTailFactory", r)
		}
		tailCodec, err := d.tailFactory(r)
		if err != nil {
			return nil, err
		}
		blk := append([]T(nil), data[pos:]...)
		if err := d.decodeOne(tailCodec, blk); err != nil {
			return nil, err
		}
		out = append(out, blk[:r-eccLen]...)
	}
	return out, nil
}
