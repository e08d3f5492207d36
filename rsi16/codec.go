// Package rsi16 implements a transform-domain Reed-Solomon codec over
// GF(65537): systematic encode via synthetic division against a generator
// built from consecutive powers of a root of unity, syndrome computation,
// a Hankel-matrix Gaussian-elimination error locator, Chien search, and a
// Vandermonde-system Forney solve for error magnitudes. The locator and
// Forney steps are grounded on the linear-algebra decoder in the original
// rsi16 prototype (gaussian_elim over a Hankel syndrome matrix, then a
// second gaussian_elim against a power-of-root-of-unity matrix for
// magnitudes); the generator itself uses consecutive powers of omega
// (omega^0..omega^(ecc_len-1)) rather than the prototype's decimated/mixed
// bin selection, which aliases for general error patterns (see DESIGN.md).
package rsi16

import (
	"github.com/fecgo/rscodec/ferr"
	"github.com/fecgo/rscodec/flog"
	"github.com/fecgo/rscodec/gf65537"
)

// Params selects exactly two of {BlockLen, MessageLen, EccLen} (measured in
// 16-bit words). N optionally fixes the backing root-of-unity order (a
// power of two, >= BlockLen); 0 derives the smallest valid power of two.
type Params struct {
	BlockLen   int
	MessageLen int
	EccLen     int
	N          uint32
}

// Option configures optional Codec construction parameters.
type Option func(*config)

type config struct {
	primitive gf65537.Element
	logger    *flog.Logger
}

// WithPrimitive overrides the default primitive root (3).
func WithPrimitive(primitive gf65537.Element) Option {
	return func(c *config) { c.primitive = primitive }
}

// WithLogger attaches a structured logger. Defaults to a discard logger.
func WithLogger(l *flog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Codec is an RS(block_len, message_len) codec instance over GF(65537).
type Codec struct {
	n              uint32
	omega          gf65537.Element
	omegaInv       gf65537.Element
	blockLen       int
	eccLen         int
	messageLen     int
	generator      []gf65537.Element // descending order, length eccLen+1, leading 1
	generatorTail  []gf65537.Element
	generatorRoots []gf65537.Element // [omega^0 .. omega^(eccLen-1)]
	logger         *flog.Logger
}

// New constructs a Codec. Exactly two of Params.{BlockLen,MessageLen,EccLen}
// must be non-zero.
func New(p Params, opts ...Option) (*Codec, error) {
	cfg := config{primitive: gf65537.DefaultPrimitive, logger: flog.Discard()}
	for _, o := range opts {
		o(&cfg)
	}

	blockLen, messageLen, eccLen, err := deriveLengths(p)
	if err != nil {
		return nil, err
	}

	n := p.N
	if n == 0 {
		n = nextPow2(uint32(blockLen))
	}
	if n < uint32(blockLen) {
		return nil, ferr.Invalidf("rsi16: transform length %d smaller than block_len %d", n, blockLen)
	}

	omega, err := gf65537.RootOfUnity(cfg.primitive, n)
	if err != nil {
		return nil, err
	}
	omegaInv, err := gf65537.Inv(omega)
	if err != nil {
		return nil, err
	}

	c := &Codec{
		n:          n,
		omega:      omega,
		omegaInv:   omegaInv,
		blockLen:   blockLen,
		eccLen:     eccLen,
		messageLen: messageLen,
		logger:     cfg.logger.Module("rsi16"),
	}
	c.buildGenerator()

	c.logger.Debug("codec constructed",
		"block_len", blockLen, "ecc_len", eccLen, "message_len", messageLen, "n", n)
	return c, nil
}

func nextPow2(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
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
		return 0, 0, 0, ferr.Invalidf("rsi16: exactly two of block_len/message_len/ecc_len must be given, got %d", set)
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
		return 0, 0, 0, ferr.Invalidf("rsi16: ecc_len %d must be >= 1", eccLen)
	}
	if messageLen < 1 {
		return 0, 0, 0, ferr.Invalidf("rsi16: message_len %d must be >= 1", messageLen)
	}
	if blockLen > 65536 || blockLen < 2 {
		return 0, 0, 0, ferr.Invalidf("rsi16: block_len %d must be in [2,65536]", blockLen)
	}
	if eccLen+messageLen != blockLen {
		return 0, 0, 0, ferr.Invalidf("rsi16: ecc_len(%d)+message_len(%d) != block_len(%d)", eccLen, messageLen, blockLen)
	}
	return blockLen, messageLen, eccLen, nil
}

// buildGenerator computes G(x) = prod_{i=0..eccLen-1}(x - omega^i) in
// descending-coefficient order, the GF(65537) analogue of rs256's generator.
func (c *Codec) buildGenerator() {
	gen := []gf65537.Element{1}
	roots := make([]gf65537.Element, c.eccLen)
	pw := gf65537.Element(1)
	for i := 0; i < c.eccLen; i++ {
		roots[i] = pw
		factor := []gf65537.Element{1, gf65537.Sub(0, pw)}
		gen = gf65537.PolyMul(gen, factor)
		pw = gf65537.Mul(pw, c.omega)
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

// N returns the order of the root of unity backing the codec's generator.
func (c *Codec) N() uint32 { return c.n }

// SetBlockLen reassigns block_len (and, with it, message_len); valid iff
// newBlockLen is in [ecc_len+1, N()].
func (c *Codec) SetBlockLen(newBlockLen int) error {
	if newBlockLen < c.eccLen+1 || uint32(newBlockLen) > c.n {
		return ferr.Invalidf("rsi16: block_len %d must be in [%d,%d]", newBlockLen, c.eccLen+1, c.n)
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

// evalBufferAt evaluates buf, read as a polynomial in descending-degree
// order (buf[0] is the highest-degree coefficient), at x using Horner's
// method.
func (c *Codec) evalBufferAt(buf []gf65537.Element, x gf65537.Element) gf65537.Element {
	if len(buf) == 0 {
		return 0
	}
	result := buf[0]
	for _, coef := range buf[1:] {
		result = gf65537.Add(gf65537.Mul(result, x), coef)
	}
	return result
}

// Encode computes systematic parity for buf in place. buf must have length
// block_len; its last ecc_len elements are overwritten unconditionally.
// Parity is the negated remainder of msg.x^ecc_len mod G(x): negation is
// required here (unlike rs256's characteristic-2 field) since the codeword
// must satisfy codeword(root) == 0 at each generator root.
func (c *Codec) Encode(buf []gf65537.Element) error {
	if len(buf) != c.blockLen {
		return ferr.BufferSizef("rsi16: Encode buffer length %d != block_len %d", len(buf), c.blockLen)
	}
	remainder := gf65537.PolyModXN(buf[:c.messageLen], c.generatorTail)
	for i, v := range remainder {
		buf[c.messageLen+i] = gf65537.Neg(v)
	}
	return nil
}

// EncodeCopy returns a freshly-allocated codeword, leaving buf untouched.
func (c *Codec) EncodeCopy(buf []gf65537.Element) ([]gf65537.Element, error) {
	out := append([]gf65537.Element(nil), buf...)
	if err := c.Encode(out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeBlocks splits data into message_len-sized segments, encoding each
// (segment || zero parity tail) independently, and concatenates the
// results. A short trailing segment is encoded with a correspondingly
// shorter block_len. Returns empty output for empty input.
func (c *Codec) EncodeBlocks(data []gf65537.Element) ([]gf65537.Element, error) {
	if len(data) == 0 {
		return nil, nil
	}
	seg := c.messageLen
	q := len(data) / seg
	r := len(data) % seg

	out := make([]gf65537.Element, 0, len(data)+q*c.eccLen+boolToInt(r > 0)*c.eccLen)
	for k := 0; k < q; k++ {
		scratch := make([]gf65537.Element, c.blockLen)
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
		scratch := make([]gf65537.Element, r+c.eccLen)
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

func (c *Codec) syndromes(buf []gf65537.Element) []gf65537.Element {
	s := make([]gf65537.Element, c.eccLen)
	for i, root := range c.generatorRoots {
		s[i] = c.evalBufferAt(buf, root)
	}
	return s
}

func allZero(s []gf65537.Element) bool {
	for _, v := range s {
		if v != 0 {
			return false
		}
	}
	return true
}

// gaussianSolve solves mat*x = rhs over GF(65537) via Gauss-Jordan
// elimination with partial pivoting on non-zero entries. Returns false if
// the system is singular.
func gaussianSolve(mat [][]gf65537.Element, rhs []gf65537.Element) ([]gf65537.Element, bool) {
	n := len(mat)
	a := make([][]gf65537.Element, n)
	for i := range a {
		row := make([]gf65537.Element, n+1)
		copy(row, mat[i])
		row[n] = rhs[i]
		a[i] = row
	}

	for col := 0; col < n; col++ {
		pivot := -1
		for r := col; r < n; r++ {
			if a[r][col] != 0 {
				pivot = r
				break
			}
		}
		if pivot < 0 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]

		inv, err := gf65537.Inv(a[col][col])
		if err != nil {
			return nil, false
		}
		for j := col; j <= n; j++ {
			a[col][j] = gf65537.Mul(a[col][j], inv)
		}
		for r := 0; r < n; r++ {
			if r == col || a[r][col] == 0 {
				continue
			}
			factor := a[r][col]
			for j := col; j <= n; j++ {
				a[r][j] = gf65537.Sub(a[r][j], gf65537.Mul(factor, a[col][j]))
			}
		}
	}

	sol := make([]gf65537.Element, n)
	for i := range sol {
		sol[i] = a[i][n]
	}
	return sol, true
}

// chienSearch finds the indices i in [0, blockLen) such that
// Lambda(omega^-i) == 0. The returned indices map to buffer position via
// blockLen-1-i (see Decode).
func (c *Codec) chienSearch(lam []gf65537.Element) []int {
	var idx []int
	x := gf65537.Element(1)
	for i := 0; i < c.blockLen; i++ {
		if gf65537.PolyEval(lam, x) == 0 {
			idx = append(idx, i)
		}
		x = gf65537.Mul(x, c.omegaInv)
	}
	return idx
}

// locate attempts to find a consistent error-locator polynomial by solving
// the Hankel syndrome system for decreasing assumed error counts (from
// ecc_len/2 down to 1), accepting the first candidate whose Chien search
// yields exactly as many roots as the assumed error count.
func (c *Codec) locate(synd []gf65537.Element) (lam []gf65537.Element, chienIdx []int, err error) {
	maxErr := c.eccLen / 2
	for errCount := maxErr; errCount >= 1; errCount-- {
		if 2*errCount > len(synd) {
			continue
		}
		mat := make([][]gf65537.Element, errCount)
		for i := 0; i < errCount; i++ {
			mat[i] = synd[i : i+errCount]
		}
		rhs := make([]gf65537.Element, errCount)
		for i := 0; i < errCount; i++ {
			rhs[i] = gf65537.Neg(synd[errCount+i])
		}

		coefs, ok := gaussianSolve(mat, rhs)
		if !ok {
			continue
		}

		cand := make([]gf65537.Element, errCount+1)
		cand[0] = 1
		for i, v := range coefs {
			cand[errCount-i] = v
		}

		idx := c.chienSearch(cand)
		if len(idx) == errCount {
			return cand, idx, nil
		}
	}
	return nil, nil, ferr.DecodeFailedf("rsi16: unable to locate a consistent error pattern")
}

// forney solves the Vandermonde system built from the Chien-search indices
// to recover each error's magnitude directly (no formal-derivative step is
// needed with this linear-algebra formulation).
func (c *Codec) forney(synd []gf65537.Element, chienIdx []int) ([]gf65537.Element, error) {
	m := len(chienIdx)
	mat := make([][]gf65537.Element, m)
	for j := 0; j < m; j++ {
		row := make([]gf65537.Element, m)
		for i, pos := range chienIdx {
			row[i] = gf65537.Pow(c.omega, uint32(pos*j))
		}
		mat[j] = row
	}
	rhs := append([]gf65537.Element(nil), synd[:m]...)

	mags, ok := gaussianSolve(mat, rhs)
	if !ok {
		return nil, ferr.DecodeFailedf("rsi16: singular Forney system")
	}
	return mags, nil
}

// FindErrors reports the positions and magnitudes of errors in buf without
// mutating it. The returned map is empty (not nil) if buf is a valid
// codeword.
func (c *Codec) FindErrors(buf []gf65537.Element) (map[int]gf65537.Element, error) {
	if len(buf) != c.blockLen {
		return nil, ferr.BufferSizef("rsi16: FindErrors buffer length %d != block_len %d", len(buf), c.blockLen)
	}
	synd := c.syndromes(buf)
	if allZero(synd) {
		return map[int]gf65537.Element{}, nil
	}
	_, chienIdx, err := c.locate(synd)
	if err != nil {
		return nil, err
	}
	mags, err := c.forney(synd, chienIdx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]gf65537.Element, len(chienIdx))
	for k, idx := range chienIdx {
		pos := c.blockLen - 1 - idx
		out[pos] = mags[k]
	}
	return out, nil
}

// Decode corrects buf in place. Returns a decode-failed error (via ferr) if
// the errors cannot be located and corrected; buf is left unmodified in
// that case.
func (c *Codec) Decode(buf []gf65537.Element) error {
	if len(buf) != c.blockLen {
		return ferr.BufferSizef("rsi16: Decode buffer length %d != block_len %d", len(buf), c.blockLen)
	}
	synd := c.syndromes(buf)
	if allZero(synd) {
		return nil
	}
	_, chienIdx, err := c.locate(synd)
	if err != nil {
		c.logger.Warn("decode failed", "block_len", c.blockLen, "ecc_len", c.eccLen, "err", err)
		return err
	}
	mags, err := c.forney(synd, chienIdx)
	if err != nil {
		c.logger.Warn("decode failed", "block_len", c.blockLen, "ecc_len", c.eccLen, "err", err)
		return err
	}
	for k, idx := range chienIdx {
		pos := c.blockLen - 1 - idx
		buf[pos] = gf65537.Sub(buf[pos], mags[k])
	}
	return nil
}

// DecodeCopy returns a corrected copy, leaving buf untouched.
func (c *Codec) DecodeCopy(buf []gf65537.Element) ([]gf65537.Element, error) {
	out := append([]gf65537.Element(nil), buf...)
	if err := c.Decode(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ElementsFromUint16 widens a 16-bit payload buffer into field elements.
func ElementsFromUint16(buf []uint16) []gf65537.Element {
	out := make([]gf65537.Element, len(buf))
	for i, v := range buf {
		out[i] = gf65537.FromUint16(v)
	}
	return out
}

// Uint16FromElements narrows a field-element buffer back to 16-bit payload
// words. Fails if any element is out of 16-bit range.
func Uint16FromElements(buf []gf65537.Element) ([]uint16, error) {
	out := make([]uint16, len(buf))
	for i, v := range buf {
		u, err := gf65537.ToUint16(v)
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}

// EncodeUint16 is the 16-bit-word convenience form of EncodeCopy.
func (c *Codec) EncodeUint16(buf []uint16) ([]uint16, error) {
	elems := ElementsFromUint16(buf)
	if err := c.Encode(elems); err != nil {
		return nil, err
	}
	return Uint16FromElements(elems)
}

// DecodeUint16 is the 16-bit-word convenience form of DecodeCopy.
func (c *Codec) DecodeUint16(buf []uint16) ([]uint16, error) {
	elems := ElementsFromUint16(buf)
	if err := c.Decode(elems); err != nil {
		return nil, err
	}
	return Uint16FromElements(elems)
}
