package syncproto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mycobotics/chamberlink/internal/configstore"
	"github.com/mycobotics/chamberlink/internal/ringchan"
)

// ResponseBacklog is the number of pushed frames retained for late
// subscribers.
const ResponseBacklog = 16

// Config tunes a Session.
type Config struct {
	ChunkSize         int           // GET streaming chunk size (bytes)
	MTU               int           // advertised in HELLO, informational only
	WriteInterval     time.Duration // minimum interval between PUT_BEGINs
	WriteToken        string        // empty disables PUT authentication
	StagingDir        string        // empty selects os.TempDir()
	TransferIdleLimit time.Duration // reap a transfer idle longer than this (0 disables)
}

// Session is the single global document sync session. It is safe for
// concurrent use; the protocol allows at most one inbound transfer at a
// time regardless of how many clients talk to it.
type Session struct {
	store   *configstore.Store
	cfg     Config
	limiter *RateLimiter
	out     *ringchan.Ring[Frame]
	logger  *logrus.Logger

	onVersionChange func(configstore.Version)

	mu     sync.Mutex
	active *transfer
	now    func() time.Time
}

// transfer is the state of one PUT_BEGIN..PUT_COMMIT/ABORT exchange.
type transfer struct {
	id           string
	totalLen     int
	sha256       string
	received     int
	stagingPath  string
	file         *os.File
	lastActivity time.Time
}

// NewSession creates a sync session over the given store.
func NewSession(store *configstore.Store, cfg Config, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 180
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = os.TempDir()
	}
	return &Session{
		store:           store,
		cfg:             cfg,
		limiter:         NewRateLimiter(cfg.WriteInterval),
		out:             ringchan.New[Frame](ResponseBacklog),
		logger:          logger,
		onVersionChange: func(configstore.Version) {},
		now:             time.Now,
	}
}

// SetVersionChangeHandler registers the callback invoked after a committed
// transfer changes the persisted document. Set once during wiring.
func (s *Session) SetVersionChangeHandler(fn func(configstore.Version)) {
	if fn == nil {
		fn = func(configstore.Version) {}
	}
	s.onVersionChange = fn
}

// Responses returns the server-to-client push channel.
func (s *Session) Responses() <-chan Frame {
	return s.out.C()
}

// Backlog returns the retained tail of pushed frames, oldest first, so a
// subscriber that attached late can recover recent responses.
func (s *Session) Backlog() []Frame {
	return s.out.Backlog()
}

// Receiving reports whether an inbound transfer is active.
func (s *Session) Receiving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Close aborts any active transfer and closes the response channel.
func (s *Session) Close() {
	s.mu.Lock()
	s.clearTransferLocked()
	s.mu.Unlock()
	s.out.Close()
}

// HandleControl processes one JSON op frame from the control channel.
// Every frame produces exactly one terminal response (GET produces the
// full DATA_BEGIN/DATA_CHUNK/DATA_END stream); protocol failures are
// answered, never raised.
func (s *Session) HandleControl(raw []byte) {
	var req Frame
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.WithError(err).Warn("Malformed control frame")
		s.push(errorFrame(OpError, ErrBadOp))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapStaleLocked()

	switch req.Op {
	case OpHello:
		if s.active != nil {
			s.push(errorFrame(OpError, ErrBadOp))
			return
		}
		s.handleHelloLocked()
	case OpGet:
		if s.active != nil {
			s.push(errorFrame(OpError, ErrBadOp))
			return
		}
		s.handleGetLocked()
	case OpPutBegin:
		s.handlePutBeginLocked(req)
	case OpPutCommit:
		s.handlePutCommitLocked(req)
	case OpAbort:
		s.handleAbortLocked(req)
	default:
		s.logger.WithField("op", req.Op).Debug("Unknown op on control channel")
		s.push(errorFrame(OpError, ErrBadOp))
	}
}

// HandleChunk processes one chunk frame from the chunk-ingest channel.
func (s *Session) HandleChunk(raw []byte) {
	var req Frame
	if err := json.Unmarshal(raw, &req); err != nil || req.Op != OpChunk {
		s.logger.Warn("Malformed chunk frame")
		s.push(errorFrame(OpError, ErrBadOp))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapStaleLocked()

	if s.active == nil || req.TxID != s.active.id {
		s.push(Frame{Op: OpAck, TxID: req.TxID, Seq: req.Seq, Err: ErrNoActive})
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.DataB64)
	if err != nil {
		s.logger.WithError(err).WithField("seq", req.Seq).Warn("Chunk payload is not valid base64")
		s.push(Frame{Op: OpAck, TxID: req.TxID, Seq: req.Seq, Err: ErrBadOp})
		return
	}

	// A chunk past the declared length is rejected but leaves the
	// transfer active: the client may ABORT or retry within bounds.
	if s.active.received+len(data) > s.active.totalLen {
		s.push(Frame{Op: OpAck, TxID: req.TxID, Seq: req.Seq, Err: ErrOverflow})
		return
	}

	if _, err := s.active.file.Write(data); err != nil {
		s.logger.WithError(err).Error("Failed to stage chunk")
		s.clearTransferLocked()
		s.push(Frame{Op: OpAck, TxID: req.TxID, Seq: req.Seq, Err: ErrIO})
		return
	}
	s.active.received += len(data)
	s.active.lastActivity = s.now()

	s.push(Frame{Op: OpAck, OK: true, TxID: req.TxID, Seq: req.Seq})
}

func (s *Session) handleHelloLocked() {
	ver, err := s.store.Version()
	if err != nil {
		s.logger.WithError(err).Error("Failed to read document version")
		s.push(errorFrame(OpHello, ErrIO))
		return
	}
	s.push(Frame{
		Op:       OpHello,
		OK:       true,
		MTU:      s.cfg.MTU,
		MaxChunk: s.cfg.ChunkSize,
		Version:  &ver,
	})
}

func (s *Session) handleGetLocked() {
	raw, _, err := s.store.ReadRaw()
	if err != nil {
		s.logger.WithError(err).Error("Failed to read document")
		s.push(errorFrame(OpGet, ErrIO))
		return
	}

	digest := HexSHA256(raw)
	s.push(Frame{Op: OpDataBegin, OK: true, TotalLen: len(raw), SHA256: digest})
	for seq, chunk := range SplitUTF8(raw, s.cfg.ChunkSize) {
		s.push(Frame{Op: OpDataChunk, Seq: seq, DataB64: base64.StdEncoding.EncodeToString(chunk)})
	}
	s.push(Frame{Op: OpDataEnd, OK: true, SHA256: digest})
}

func (s *Session) handlePutBeginLocked(req Frame) {
	if s.active != nil {
		s.push(errorFrame(OpPutBegin, ErrBusy))
		return
	}
	if !s.limiter.Allow() {
		s.push(errorFrame(OpPutBegin, ErrRateLimited))
		return
	}
	if s.cfg.WriteToken != "" && req.Auth != s.cfg.WriteToken {
		s.logger.Warn("PUT_BEGIN with missing or wrong credential")
		s.push(errorFrame(OpPutBegin, ErrUnauthorized))
		return
	}
	if req.TotalLen < 0 || req.TotalLen > s.store.MaxSize() {
		s.push(errorFrame(OpPutBegin, ErrOverflow))
		return
	}

	file, err := os.CreateTemp(s.cfg.StagingDir, "chamber-put-*.staging")
	if err != nil {
		s.logger.WithError(err).Error("Failed to create staging file")
		s.push(errorFrame(OpPutBegin, ErrIO))
		return
	}

	s.active = &transfer{
		id:           newTxID(),
		totalLen:     req.TotalLen,
		sha256:       strings.ToLower(req.SHA256),
		stagingPath:  file.Name(),
		file:         file,
		lastActivity: s.now(),
	}
	s.logger.WithFields(logrus.Fields{
		"tx_id":     s.active.id,
		"total_len": req.TotalLen,
	}).Info("Inbound transfer started")

	s.push(Frame{Op: OpPutBegin, OK: true, TxID: s.active.id})
}

func (s *Session) handlePutCommitLocked(req Frame) {
	if s.active == nil || req.TxID != s.active.id {
		s.push(errorFrame(OpPutCommit, ErrNoActive))
		return
	}

	tx := s.active
	// Commit is terminal: whatever the outcome, the staging storage is
	// deleted and the transaction cleared before responding.
	staged, readErr := s.takeStagedLocked()

	result := Frame{Op: OpPutResult, TxID: tx.id}
	switch {
	case readErr != nil:
		s.logger.WithError(readErr).Error("Failed to read staged transfer")
		result.Err = ErrIO
	case tx.received != tx.totalLen:
		result.Err = ErrLengthMismatch
		result.Detail = fmt.Sprintf("declared %d bytes, received %d", tx.totalLen, tx.received)
	case HexSHA256(staged) != tx.sha256:
		result.Err = ErrChecksumMismatch
	default:
		result = s.commitStaged(tx.id, staged)
	}

	if result.Err != "" {
		s.logger.WithFields(logrus.Fields{
			"tx_id": tx.id,
			"err":   result.Err,
		}).Warn("Inbound transfer failed")
	}
	s.push(result)
}

// commitStaged parses and persists the staged document. Called without
// holding the transfer any more; the store does its own locking.
func (s *Session) commitStaged(txID string, staged []byte) Frame {
	result := Frame{Op: OpPutResult, TxID: txID}

	var doc map[string]interface{}
	if err := json.Unmarshal(staged, &doc); err != nil {
		result.Err = ErrSchemaValidation
		result.Detail = "document is not valid JSON"
		return result
	}

	ver, err := s.store.Write(doc)
	if err != nil {
		var verr *configstore.ValidationError
		if errors.As(err, &verr) {
			result.Err = ErrSchemaValidation
			result.Detail = verr.Error()
		} else {
			s.logger.WithError(err).Error("Failed to persist document")
			result.Err = ErrIO
		}
		return result
	}

	s.logger.WithFields(logrus.Fields{
		"tx_id": txID,
		"hash":  ver.ContentHash,
	}).Info("Inbound transfer committed")

	result.OK = true
	result.Version = &ver
	s.onVersionChange(ver)
	return result
}

func (s *Session) handleAbortLocked(req Frame) {
	if s.active == nil || req.TxID != s.active.id {
		s.push(Frame{Op: OpAbort, TxID: req.TxID, Err: ErrNoActive})
		return
	}
	s.logger.WithField("tx_id", s.active.id).Info("Inbound transfer aborted")
	s.clearTransferLocked()
	s.push(Frame{Op: OpAbort, OK: true, TxID: req.TxID})
}

// takeStagedLocked closes the staging file, reads its content, and clears
// the transfer. The staging file is always removed.
func (s *Session) takeStagedLocked() ([]byte, error) {
	tx := s.active
	s.active = nil

	_ = tx.file.Close()
	staged, err := os.ReadFile(tx.stagingPath)
	if rmErr := os.Remove(tx.stagingPath); rmErr != nil {
		s.logger.WithError(rmErr).WithField("path", tx.stagingPath).Debug("Failed to remove staging file")
	}
	return staged, err
}

func (s *Session) clearTransferLocked() {
	if s.active == nil {
		return
	}
	_ = s.active.file.Close()
	if err := os.Remove(s.active.stagingPath); err != nil {
		s.logger.WithError(err).WithField("path", s.active.stagingPath).Debug("Failed to remove staging file")
	}
	s.active = nil
}

// reapStaleLocked discards a transfer whose client went quiet. The stale
// client's next chunk or commit is answered with no_active.
func (s *Session) reapStaleLocked() {
	if s.active == nil || s.cfg.TransferIdleLimit <= 0 {
		return
	}
	if s.now().Sub(s.active.lastActivity) > s.cfg.TransferIdleLimit {
		s.logger.WithField("tx_id", s.active.id).Warn("Reaping idle inbound transfer")
		s.clearTransferLocked()
	}
}

func (s *Session) push(f Frame) {
	s.out.Send(f)
}

func newTxID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HexSHA256 returns the lowercase hex digest used in protocol frames.
func HexSHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
