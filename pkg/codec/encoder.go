package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Encoder writes an action result to the response.
type Encoder interface {
	// ContentType is the Content-Type header value set when the response
	// does not carry one already.
	ContentType() string

	// Encode serializes v and writes it to w. Headers and status must have
	// been written by the caller.
	Encode(w io.Writer, v any) error
}

// JSONEncoder encodes results as JSON.
type JSONEncoder struct{}

// NewJSONEncoder creates a JSONEncoder.
func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{}
}

// ContentType implements Encoder.
func (e *JSONEncoder) ContentType() string {
	return MediaTypeJSON
}

// Encode marshals v to JSON.
func (e *JSONEncoder) Encode(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ProtoEncoder encodes results that know how to marshal themselves in
// Protocol Buffers format, i.e. that expose a Marshal() ([]byte, error) method.
type ProtoEncoder struct{}

// NewProtoEncoder creates a ProtoEncoder.
func NewProtoEncoder() *ProtoEncoder {
	return &ProtoEncoder{}
}

// ContentType implements Encoder.
func (e *ProtoEncoder) ContentType() string {
	return "application/x-protobuf"
}

// Encode marshals v, which must implement Marshal() ([]byte, error).
func (e *ProtoEncoder) Encode(w io.Writer, v any) error {
	msg, ok := v.(interface {
		Marshal() ([]byte, error)
	})
	if !ok {
		return fmt.Errorf("type %T does not implement Marshal method", v)
	}
	body, err := msg.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// RawEncoder writes strings, byte slices and readers as they are.
type RawEncoder struct {
	// Type is the content type to advertise; text/plain when empty.
	Type string
}

// ContentType implements Encoder.
func (e *RawEncoder) ContentType() string {
	if e.Type == "" {
		return "text/plain; charset=utf-8"
	}
	return e.Type
}

// ErrUnsupportedRaw is returned by RawEncoder for values it cannot write.
var ErrUnsupportedRaw = errors.New("raw encoder supports string, []byte and io.Reader")

// Encode writes v.
func (e *RawEncoder) Encode(w io.Writer, v any) error {
	var err error
	switch b := v.(type) {
	case []byte:
		_, err = w.Write(b)
	case string:
		_, err = io.WriteString(w, b)
	case io.Reader:
		_, err = io.Copy(w, b)
	default:
		err = fmt.Errorf("%w, got %T", ErrUnsupportedRaw, v)
	}
	return err
}

// Write sets the content type (unless already set), writes status and the
// encoded value. Encoding happens before anything is written so that a failed
// encoding leaves the response untouched.
func Write(w http.ResponseWriter, enc Encoder, status int, v any) error {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, v); err != nil {
		return err
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", enc.ContentType())
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}
