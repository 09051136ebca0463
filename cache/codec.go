package cache

import (
	"encoding/json"

	"github.com/jmgilman/go/errors"
	"github.com/klauspost/compress/zstd"
)

// envelopeVersion is bumped whenever the persisted record layout
// changes incompatibly. Records with any other version are discarded on
// load and transparently refetched.
const envelopeVersion = 1

const defaultCompressionLevel = zstd.SpeedDefault

// envelope is the self-describing wrapper around every persisted value.
type envelope struct {
	Version int             `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// codec serializes records as zstd-compressed, versioned JSON.
// EncodeAll/DecodeAll on shared encoder and decoder instances are safe
// for concurrent use.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec(level zstd.EncoderLevel) (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create zstd decoder")
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}

func (c *codec) encode(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal cache record")
	}
	data, err := json.Marshal(envelope{Version: envelopeVersion, Payload: payload})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal cache envelope")
	}
	return c.enc.EncodeAll(data, nil), nil
}

func (c *codec) decode(data []byte, v interface{}) error {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "undecodable cache record")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "malformed cache envelope")
	}
	if env.Version != envelopeVersion {
		return errors.Newf(errors.CodeInvalidInput, "incompatible cache record version: %d", env.Version)
	}

	if err := json.Unmarshal(env.Payload, v); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "malformed cache record")
	}
	return nil
}
