package control

import (
	"testing"

	"github.com/switchml/switchio/pkg/swbuf"
)

func benchRequest(n int) *RetransmissionRequest {
	req := &RetransmissionRequest{JobID: 1, NodeID: 2, Data: make(map[uint32][]byte, n)}
	for i := 0; i < n; i++ {
		req.Data[uint32(i*3)] = make([]byte, 1024)
	}
	return req
}

func BenchmarkRetransmissionEncode(b *testing.B) {
	req := benchRequest(64)
	buf := swbuf.NewBuffer(64 * 1100)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		req.Encode(buf)
	}
	b.SetBytes(int64(buf.Len()))
}

func BenchmarkRetransmissionDecode(b *testing.B) {
	buf := swbuf.NewBuffer(64 * 1100)
	benchRequest(64).Encode(buf)
	data := buf.Bytes()
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var req RetransmissionRequest
		if err := req.Decode(swbuf.NewReader(data)); err != nil {
			b.Fatal(err)
		}
	}
}
