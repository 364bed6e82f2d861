package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apierrors "wavesight/internal/errors"
)

// UploadKind identifies which of the three source reports an upload is.
type UploadKind string

// The three report kinds accepted by the upload endpoint.
const (
	KindInventory UploadKind = "inventory"
	KindConveyor  UploadKind = "conveyor"
	KindOutbound  UploadKind = "outbound"
)

// ValidKind reports whether s names a known upload kind.
func ValidKind(s string) bool {
	switch UploadKind(s) {
	case KindInventory, KindConveyor, KindOutbound:
		return true
	}
	return false
}

// Upload is a stored report file awaiting analysis.
type Upload struct {
	ID         string
	Kind       UploadKind
	Filename   string
	Data       []byte
	UploadedAt time.Time
}

// UploadStore keeps uploaded workbooks in memory, keyed by UUID, and
// expires them after a TTL.
type UploadStore struct {
	mu      sync.RWMutex
	uploads map[string]*Upload

	maxSize int64
	ttl     time.Duration
	logger  *slog.Logger

	now func() time.Time
}

// NewUploadStore creates a store enforcing maxSize per file and expiring
// entries after ttl.
func NewUploadStore(maxSize int64, ttl time.Duration, logger *slog.Logger) *UploadStore {
	return &UploadStore{
		uploads: make(map[string]*Upload),
		maxSize: maxSize,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "upload_store")),
		now:     time.Now,
	}
}

// MaxSize returns the per-file size cap in bytes.
func (s *UploadStore) MaxSize() int64 {
	return s.maxSize
}

// Put stores data under a fresh UUID and returns the upload record.
func (s *UploadStore) Put(kind UploadKind, filename string, data []byte) (*Upload, error) {
	if int64(len(data)) > s.maxSize {
		return nil, apierrors.ErrPayloadTooLarge
	}

	up := &Upload{
		ID:         uuid.New().String(),
		Kind:       kind,
		Filename:   filename,
		Data:       data,
		UploadedAt: s.now(),
	}

	s.mu.Lock()
	s.uploads[up.ID] = up
	s.mu.Unlock()

	s.logger.Info("upload stored",
		slog.String("upload_id", up.ID),
		slog.String("kind", string(kind)),
		slog.String("filename", filename),
		slog.Int("bytes", len(data)),
	)
	return up, nil
}

// Get returns the upload for id, or an upload-not-found error if the ID is
// unknown, expired, or belongs to a different report kind.
func (s *UploadStore) Get(id string, kind UploadKind) (*Upload, error) {
	s.mu.RLock()
	up, ok := s.uploads[id]
	s.mu.RUnlock()

	if !ok || s.expired(up) {
		return nil, apierrors.UploadNotFoundError(id)
	}
	if up.Kind != kind {
		return nil, apierrors.ErrValidation(string(kind)+"_id",
			"upload "+id+" is a "+string(up.Kind)+" report")
	}
	return up, nil
}

// Sweep removes expired uploads and returns how many were dropped.
func (s *UploadStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, up := range s.uploads {
		if s.expired(up) {
			delete(s.uploads, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("expired uploads removed", slog.Int("count", removed))
	}
	return removed
}

// Len returns the number of live uploads.
func (s *UploadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.uploads)
}

func (s *UploadStore) expired(up *Upload) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(up.UploadedAt) > s.ttl
}
