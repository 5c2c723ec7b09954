package hqcodec

import (
	"bytes"
	"fmt"

	"github.com/quic-go/qpack"
)

// CompressionContext is the connection-wide QPACK engine plus its two
// out-of-band instruction channels. Exactly one instance exists per
// connection; every stream codec holds it by reference, never by copy, so
// the evolving compression state stays a single ordered stream.
//
// The instruction buffers are append-only from the codec's point of view:
// the connection manager drains them onto the dedicated unidirectional
// streams.
type CompressionContext struct {
	encoder *qpack.Encoder
	decoder *qpack.Decoder

	// blockBuf is the encoder's scratch output; reset per header block.
	blockBuf bytes.Buffer

	encoderInstr bytes.Buffer
	decoderInstr bytes.Buffer

	info CompressionInfo
}

// CompressionInfo is a read-only snapshot of the context's accounting.
type CompressionInfo struct {
	EgressHeaderBlocks  uint64
	EgressHeaderBytes   uint64
	IngressHeaderBlocks uint64
	IngressHeaderBytes  uint64

	// TableCapacity is the dynamic table capacity in force. The shipped
	// encoder operates with the static table only, so this stays zero
	// until a dynamic-table-capable engine replaces it.
	TableCapacity uint64

	EncoderInstrBytes uint64
	DecoderInstrBytes uint64
}

// NewCompressionContext creates the connection's single QPACK context.
func NewCompressionContext() *CompressionContext {
	c := &CompressionContext{}
	c.encoder = qpack.NewEncoder(&c.blockBuf)
	c.decoder = qpack.NewDecoder(nil)
	return c
}

// EncodeHeaderBlock compresses one field section and returns the encoded
// block. The returned slice is owned by the caller.
func (c *CompressionContext) EncodeHeaderBlock(fields []qpack.HeaderField) ([]byte, error) {
	c.blockBuf.Reset()
	for _, f := range fields {
		if err := c.encoder.WriteField(f); err != nil {
			return nil, fmt.Errorf("qpack encode of %q: %w", f.Name, err)
		}
	}
	// Close ends the field section, so the next block starts with its own
	// required prefix.
	if err := c.encoder.Close(); err != nil {
		return nil, fmt.Errorf("qpack encode: %w", err)
	}
	block := make([]byte, c.blockBuf.Len())
	copy(block, c.blockBuf.Bytes())

	c.info.EgressHeaderBlocks++
	c.info.EgressHeaderBytes += uint64(len(block))
	return block, nil
}

// DecodeHeaderBlock decompresses one complete encoded field section.
func (c *CompressionContext) DecodeHeaderBlock(block []byte) ([]qpack.HeaderField, error) {
	fields, err := c.decoder.DecodeFull(block)
	if err != nil {
		return nil, fmt.Errorf("qpack decode: %w", err)
	}
	c.info.IngressHeaderBlocks++
	c.info.IngressHeaderBytes += uint64(len(block))
	return fields, nil
}

// EncoderInstrBuf is the outbound encoder-instruction channel, shared by
// reference with every stream codec.
func (c *CompressionContext) EncoderInstrBuf() *bytes.Buffer {
	return &c.encoderInstr
}

// DecoderInstrBuf is the outbound decoder-instruction channel.
func (c *CompressionContext) DecoderInstrBuf() *bytes.Buffer {
	return &c.decoderInstr
}

// Info returns the current accounting snapshot.
func (c *CompressionContext) Info() CompressionInfo {
	info := c.info
	info.EncoderInstrBytes = uint64(c.encoderInstr.Len())
	info.DecoderInstrBytes = uint64(c.decoderInstr.Len())
	return info
}
