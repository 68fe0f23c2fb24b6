// Package syncproto implements the chunked configuration document transfer
// protocol spoken over the chamber's config characteristics.
//
// The protocol is a single-session state machine over three directions:
// a control channel carrying JSON op frames, a response channel pushing
// JSON frames back to the client (with a short retained backlog for late
// subscribers), and a chunk channel carrying staged upload data.
package syncproto

import "github.com/mycobotics/chamberlink/internal/configstore"

// Request and response ops.
const (
	OpHello     = "HELLO"
	OpGet       = "GET"
	OpPutBegin  = "PUT_BEGIN"
	OpChunk     = "CHUNK"
	OpAck       = "ACK"
	OpPutCommit = "PUT_COMMIT"
	OpPutResult = "PUT_RESULT"
	OpAbort     = "ABORT"
	OpDataBegin = "DATA_BEGIN"
	OpDataChunk = "DATA_CHUNK"
	OpDataEnd   = "DATA_END"
	OpError     = "ERROR"
)

// Protocol error codes carried in Frame.Err.
const (
	ErrBadOp            = "bad_op"
	ErrBusy             = "busy"
	ErrRateLimited      = "rate_limited"
	ErrUnauthorized     = "unauthorized"
	ErrNoActive         = "no_active"
	ErrOverflow         = "overflow"
	ErrLengthMismatch   = "length_mismatch"
	ErrChecksumMismatch = "checksum_mismatch"
	ErrSchemaValidation = "schema_validation_failed"
	ErrIO               = "io_error"
)

// Frame is one protocol message, request or response. One JSON object per
// write or notify event; unused fields are omitted on the wire.
type Frame struct {
	Op       string               `json:"op"`
	OK       bool                 `json:"ok,omitempty"`
	Err      string               `json:"err,omitempty"`
	Detail   string               `json:"detail,omitempty"`
	TxID     string               `json:"tx_id,omitempty"`
	Seq      int                  `json:"seq,omitempty"`
	TotalLen int                  `json:"total_len,omitempty"`
	SHA256   string               `json:"sha256,omitempty"`
	DataB64  string               `json:"data_b64,omitempty"`
	MTU      int                  `json:"mtu,omitempty"`
	MaxChunk int                  `json:"max_chunk,omitempty"`
	Auth     string               `json:"auth,omitempty"`
	Version  *configstore.Version `json:"version,omitempty"`
}

func errorFrame(op, code string) Frame {
	return Frame{Op: op, Err: code}
}
