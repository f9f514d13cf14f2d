package control

import (
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/switchml/switchio/pkg/swbuf"
)

// CodecName is the gRPC content-subtype of control-plane messages.
const CodecName = "swbuf"

// codec marshals control messages with swbuf instead of protobuf.
type codec struct{}

func (codec) Name() string { return CodecName }

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("swbuf codec: cannot marshal %T", v)
	}
	buf := swbuf.NewBuffer(64)
	m.Encode(buf)
	return buf.Bytes(), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("swbuf codec: cannot unmarshal into %T", v)
	}
	r := swbuf.NewReader(data)
	if err := m.Decode(r); err != nil {
		return fmt.Errorf("swbuf codec: %T: %w", v, err)
	}
	return r.Finish()
}

var _ encoding.Codec = codec{}
