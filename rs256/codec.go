// Package rs256 implements the classical byte-oriented Reed-Solomon codec
// over GF(2^8): systematic encode via a generator polynomial, syndrome
// computation, Berlekamp-Massey error location, Chien search, and Forney
// magnitude recovery. Grounded on the host module's erasure-coding
// polynomial_ops.go (RSGeneratorPoly/RSCalcSyndromes/RSBerlekampMassey/
// RSErrorLocatorRoots/RSForneyAlgorithm/RSEncodeSystematic), generalized
// from a package-global GF(2^8) table to a configurable *gf256.Field, and
// re-targeted to the wire layout this library requires: message bytes at
// the front of the buffer, parity at the tail (the teacher's
// RSEncodeSystematic places parity at the front instead; see DESIGN.md).
package rs256

import (
	"github.com/fecgo/rscodec/ferr"
	"github.com/fecgo/rscodec/flog"
	"github.com/fecgo/rscodec/gf256"
)

// Params selects exactly two of {BlockLen, MessageLen, EccLen}; the third
// is derived. Leave the unused field at zero.
type Params struct {
	BlockLen   int
	MessageLen int
	EccLen     int
}

// Option configures optional Codec construction parameters.
type Option func(*config)

type config struct {
	poly1     uint16
	primitive byte
	logger    *flog.Logger
}

// WithPoly1 overrides the default irreducible polynomial (0x11d).
func WithPoly1(poly1 uint16) Option {
	return func(c *config) { c.poly1 = poly1 }
}

// WithPrimitive overrides the default primitive element (2).
func WithPrimitive(primitive byte) Option {
	return func(c *config) { c.primitive = primitive }
}

// WithLogger attaches a structured logger. Defaults to a discard logger.
func WithLogger(l *flog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Codec is an immutable (except for SetBlockLen) RS(block_len, message_len)
// codec instance over GF(2^8).
type Codec struct {
	field          *gf256.Field
	blockLen       int
	eccLen         int
	messageLen     int
	generator      []byte // descending order, length eccLen+1, leading 1
	generatorTail  []byte // generator[1:], length eccLen
	generatorRoots []byte // [alpha^0 .. alpha^(eccLen-1)]
	logger         *flog.Logger
}

// New constructs a Codec. Exactly two of Params.{BlockLen,MessageLen,EccLen}
// must be non-zero; the third is derived. Constraints: 1 <= ecc_len,
// 1 <= message_len, block_len <= 255, ecc_len+message_len == block_len.
func New(p Params, opts ...Option) (*Codec, error) {
	cfg := config{poly1: gf256.DefaultPoly1, primitive: gf256.DefaultPrimitive, logger: flog.Discard()}
	for _, o := range opts {
		o(&cfg)
	}

	blockLen, messageLen, eccLen, err := deriveLengths(p)
	if err != nil {
		return nil, err
	}

	field, err := gf256.New(cfg.poly1, cfg.primitive)
	if err != nil {
		return nil, err
	}

	c := &Codec{
		field:      field,
		blockLen:   blockLen,
		eccLen:     eccLen,
		messageLen: messageLen,
		logger:     cfg.logger.Module("rs256"),
	}
	c.buildGenerator()

	c.logger.Debug("codec constructed",
		"block_len", blockLen, "ecc_len", eccLen, "message_len", messageLen,
		"poly1", cfg.poly1, "primitive", cfg.primitive)
	return c, nil
}

func deriveLengths(p Params) (blockLen, messageLen, eccLen int, err error) {
	set := 0
	if p.BlockLen != 0 {
		set++
	}
	if p.MessageLen != 0 {
		set++
	}
	if p.EccLen != 0 {
		set++
	}
	if set != 2 {
		return 0, 0, 0, ferr.Invalidf("rs256: exactly two of block_len/message_len/ecc_len must be given, got %d", set)
	}

	blockLen, messageLen, eccLen = p.BlockLen, p.MessageLen, p.EccLen
	switch {
	case blockLen == 0:
		blockLen = messageLen + eccLen
	case messageLen == 0:
		messageLen = blockLen - eccLen
	case eccLen == 0:
		eccLen = blockLen - messageLen
	}

	if eccLen < 1 {
		return 0, 0, 0, ferr.Invalidf("rs256: ecc_len %d must be >= 1", eccLen)
	}
	if messageLen < 1 {
		return 0, 0, 0, ferr.Invalidf("rs256: message_len %d must be >= 1", messageLen)
	}
	if blockLen > 255 || blockLen < 2 {
		return 0, 0, 0, ferr.Invalidf("rs256: block_len %d must be in [2,255]", blockLen)
	}
	if eccLen+messageLen != blockLen {
		return 0, 0, 0, ferr.Invalidf("rs256: ecc_len(%d)+message_len(%d) != block_len(%d)", eccLen, messageLen, blockLen)
	}
	return blockLen, messageLen, eccLen, nil
}

// buildGenerator computes G(x) = prod_{i=0..eccLen-1}(x - alpha^i) in
// descending-coefficient order (index 0 is the x^eccLen leading term),
// matching the buffer-natural convention Encode/Decode use directly.
func (c *Codec) buildGenerator() {
	f := c.field
	gen := []byte{1}
	roots := make([]byte, c.eccLen)
	for i := 0; i < c.eccLen; i++ {
		root := f.Exp(i)
		roots[i] = root
		factor := []byte{1, f.Sub(0, root)} // (x - root), descending
		gen = f.PolyMul(gen, factor)
	}
	c.generator = gen
	c.generatorTail = gen[1:]
	c.generatorRoots = roots
}

// BlockLen returns the codec's configured block length.
func (c *Codec) BlockLen() int { return c.blockLen }

// MessageLen returns the codec's configured message length.
func (c *Codec) MessageLen() int { return c.messageLen }

// EccLen returns the codec's configured parity length.
func (c *Codec) EccLen() int { return c.eccLen }

// SetBlockLen reassigns block_len (and, with it, message_len); valid iff
// newBlockLen is in [ecc_len+1, 255]. The generator does not depend on
// block_len and is left untouched.
func (c *Codec) SetBlockLen(newBlockLen int) error {
	if newBlockLen < c.eccLen+1 || newBlockLen > 255 {
		return ferr.Invalidf("rs256: block_len %d must be in [%d,255]", newBlockLen, c.eccLen+1)
	}
	c.blockLen = newBlockLen
	c.messageLen = newBlockLen - c.eccLen
	return nil
}

// WithBlockLen returns a shallow copy of c configured for a different
// block_len, sharing the (block_len-independent) generator tables. Used by
// EncodeBlocks to handle a short trailing segment without mutating c, and
// by block.Driver to build a correctly-sized codec for decoding a short
// trailing block.
func (c *Codec) WithBlockLen(n int) (*Codec, error) {
	clone := *c
	if err := clone.SetBlockLen(n); err != nil {
		return nil, err
	}
	return &clone, nil
}

// evalBufferAt evaluates the buffer buf, read as a polynomial in
// descending-degree order (buf[0] is the highest-degree coefficient), at x
// using Horner's method. This is the buffer-natural evaluator used for
// syndromes; it is distinct from gf256.Field.PolyEval, which assumes the
// generic ascending Poly convention.
func (c *Codec) evalBufferAt(buf []byte, x byte) byte {
	f := c.field
	if len(buf) == 0 {
		return 0
	}
	result := buf[0]
	for _, coef := range buf[1:] {
		result = f.Add(f.Mul(result, x), coef)
	}
	return result
}

// Encode computes systematic parity for buf in place. buf must have length
// block_len; its last ecc_len bytes are overwritten unconditionally.
func (c *Codec) Encode(buf []byte) error {
	if len(buf) != c.blockLen {
		return ferr.BufferSizef("rs256: Encode buffer length %d != block_len %d", len(buf), c.blockLen)
	}
	parity := c.field.PolyModXN(buf[:c.messageLen], c.generatorTail)
	copy(buf[c.messageLen:], parity)
	return nil
}

// EncodeCopy returns a freshly-allocated codeword, leaving buf untouched.
// Bit-identical to copying buf and calling Encode on the copy.
func (c *Codec) EncodeCopy(buf []byte) ([]byte, error) {
	out := append([]byte(nil), buf...)
	if err := c.Encode(out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeBlocks splits data into message_len-sized segments, encoding each
// (segment || zero parity tail) independently, and concatenates the
// results. A short trailing segment is encoded with a correspondingly
// shorter block_len. Returns empty output for empty input.
func (c *Codec) EncodeBlocks(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	seg := c.messageLen
	q := len(data) / seg
	r := len(data) % seg

	out := make([]byte, 0, q*c.blockLen+boolToInt(r > 0)*(r+c.eccLen))
	for k := 0; k < q; k++ {
		scratch := make([]byte, c.blockLen)
		copy(scratch, data[k*seg:(k+1)*seg])
		if err := c.Encode(scratch); err != nil {
			return nil, err
		}
		out = append(out, scratch...)
	}
	if r > 0 {
		tail, err := c.WithBlockLen(r + c.eccLen)
		if err != nil {
			return nil, err
		}
		scratch := make([]byte, r+c.eccLen)
		copy(scratch, data[q*seg:])
		if err := tail.Encode(scratch); err != nil {
			return nil, err
		}
		out = append(out, scratch...)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// syndromes evaluates buf at each generator root.
func (c *Codec) syndromes(buf []byte) []byte {
	s := make([]byte, c.eccLen)
	for i, root := range c.generatorRoots {
		s[i] = c.evalBufferAt(buf, root)
	}
	return s
}

func allZero(s []byte) bool {
	for _, v := range s {
		if v != 0 {
			return false
		}
	}
	return true
}

// berlekampMassey computes the ascending-order error locator polynomial
// (Lambda[0] == 1) from the syndrome vector.
func (c *Codec) berlekampMassey(synd []byte) []byte {
	f := c.field
	errLoc := []byte{1}
	oldLoc := []byte{1}

	for i := 0; i < len(synd); i++ {
		delta := synd[i]
		for j := 1; j < len(errLoc); j++ {
			if i-j >= 0 {
				delta = f.Add(delta, f.Mul(errLoc[j], synd[i-j]))
			}
		}

		oldLoc = append([]byte{0}, oldLoc...)

		if delta != 0 {
			if len(oldLoc) > len(errLoc) {
				newLoc := f.PolyScale(oldLoc, delta)
				invDelta, _ := f.Inv(delta)
				oldLoc = f.PolyScale(errLoc, invDelta)
				errLoc = newLoc
			}
			adj := f.PolyScale(oldLoc, delta)
			errLoc = f.PolyAdd(errLoc, adj)
		}
	}
	return errLoc
}

// chienSearch finds the indices i in [0, blockLen) such that Lambda(alpha^-i)
// == 0. The returned indices are Chien-search indices, not buffer positions
// (see Decode for the position mapping).
func (c *Codec) chienSearch(lam []byte) []int {
	f := c.field
	var idx []int
	for i := 0; i < c.blockLen; i++ {
		x := f.Exp(-i)
		if f.PolyEval(lam, x) == 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

// formalDerivative computes d/dx of an ascending-order GF(2^8) polynomial.
// In characteristic 2, only odd-degree terms survive.
func formalDerivative(p []byte) []byte {
	if len(p) <= 1 {
		return nil
	}
	out := make([]byte, len(p)-1)
	for i := 1; i < len(p); i++ {
		if i%2 == 1 {
			out[i-1] = p[i]
		}
	}
	return out
}

// forney computes error magnitudes at the given Chien indices via
// Omega(x) = S(x)*Lambda(x) mod x^eccLen, magnitude =
// X*Omega(X^-1)/Lambda'(X^-1) with X = alpha^idx (the extra factor X comes
// from the generator roots starting at alpha^0).
func (c *Codec) forney(synd, lam []byte, chienIdx []int) ([]byte, error) {
	f := c.field
	product := f.PolyMul(synd, lam)
	if len(product) > c.eccLen {
		product = product[:c.eccLen]
	}
	omega := product

	lambdaPrime := formalDerivative(lam)
	if len(lambdaPrime) == 0 {
		return nil, ferr.DecodeFailedf("rs256: error locator has degree 0 derivative")
	}

	mags := make([]byte, len(chienIdx))
	for k, idx := range chienIdx {
		xInv := f.Exp(-idx)
		omegaVal := f.PolyEval(omega, xInv)
		lpVal := f.PolyEval(lambdaPrime, xInv)
		if lpVal == 0 {
			return nil, ferr.DecodeFailedf("rs256: degenerate Forney derivative at position %d", idx)
		}
		// Characteristic 2: negation is identity, so the sign of the
		// Forney quotient can be dropped.
		mags[k], _ = f.Div(f.Mul(f.Exp(idx), omegaVal), lpVal)
	}
	return mags, nil
}

// locate runs Berlekamp-Massey + Chien search and validates that the
// locator's degree matches the number of roots found.
func (c *Codec) locate(synd []byte) (lam []byte, chienIdx []int, err error) {
	lam = c.berlekampMassey(synd)
	nu := gf256.PolyDegree(lam)
	if nu <= 0 || nu > c.eccLen/2 {
		return nil, nil, ferr.DecodeFailedf("rs256: locator degree %d out of range", nu)
	}
	chienIdx = c.chienSearch(lam)
	if len(chienIdx) != nu {
		return nil, nil, ferr.DecodeFailedf("rs256: found %d roots, want %d", len(chienIdx), nu)
	}
	return lam, chienIdx, nil
}

// FindErrors reports the positions and magnitudes of errors in buf without
// mutating it. The returned map is empty (not nil) if buf is a valid
// codeword.
func (c *Codec) FindErrors(buf []byte) (map[int]byte, error) {
	if len(buf) != c.blockLen {
		return nil, ferr.BufferSizef("rs256: FindErrors buffer length %d != block_len %d", len(buf), c.blockLen)
	}
	synd := c.syndromes(buf)
	if allZero(synd) {
		return map[int]byte{}, nil
	}
	lam, chienIdx, err := c.locate(synd)
	if err != nil {
		return nil, err
	}
	mags, err := c.forney(synd, lam, chienIdx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]byte, len(chienIdx))
	for k, idx := range chienIdx {
		pos := c.blockLen - 1 - idx
		out[pos] = mags[k]
	}
	return out, nil
}

// Decode corrects buf in place. Returns ErrDecodeFailed (via ferr) if the
// errors cannot be located and corrected; buf is left unmodified in that
// case.
func (c *Codec) Decode(buf []byte) error {
	if len(buf) != c.blockLen {
		return ferr.BufferSizef("rs256: Decode buffer length %d != block_len %d", len(buf), c.blockLen)
	}
	synd := c.syndromes(buf)
	if allZero(synd) {
		return nil
	}
	lam, chienIdx, err := c.locate(synd)
	if err != nil {
		c.logger.Warn("decode failed", "block_len", c.blockLen, "ecc_len", c.eccLen, "err", err)
		return err
	}
	mags, err := c.forney(synd, lam, chienIdx)
	if err != nil {
		c.logger.Warn("decode failed", "block_len", c.blockLen, "ecc_len", c.eccLen, "err", err)
		return err
	}
	for k, idx := range chienIdx {
		pos := c.blockLen - 1 - idx
		buf[pos] = c.field.Add(buf[pos], mags[k])
	}
	return nil
}

// DecodeCopy returns a corrected copy, leaving buf untouched.
func (c *Codec) DecodeCopy(buf []byte) ([]byte, error) {
	out := append([]byte(nil), buf...)
	if err := c.Decode(out); err != nil {
		return nil, err
	}
	return out, nil
}
