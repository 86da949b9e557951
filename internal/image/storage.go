package image

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hurricanerix/vizzy/internal/logging"
)

const (
	// MaxImages is the maximum number of images to keep in storage
	MaxImages = 500
	// MaxAge is the maximum age of an image before cleanup
	MaxAge = 1 * time.Hour
	// CleanupInterval is how often cleanup runs
	CleanupInterval = 10 * time.Minute
	// MaxImageSize is the maximum size of a single image (10MB)
	MaxImageSize = 10 * 1024 * 1024
)

var (
	// ErrNotFound indicates the requested image does not exist
	ErrNotFound = errors.New("image not found")
	// ErrInvalidID indicates the provided image ID is invalid
	ErrInvalidID = errors.New("invalid image ID")
	// ErrImageTooLarge indicates the image exceeds the maximum allowed size
	ErrImageTooLarge = errors.New("image exceeds maximum size")
)

type storedImage struct {
	data       []byte
	width      int
	height     int
	createdAt  time.Time
	accessedAt time.Time
}

// Storage keeps generated PNGs in memory so clients can fetch them by ID
// after a chat response.
type Storage struct {
	mu     sync.RWMutex
	images map[string]*storedImage
	now    func() time.Time
}

// NewStorage creates an empty storage.
func NewStorage() *Storage {
	return &Storage{
		images: make(map[string]*storedImage),
		now:    time.Now,
	}
}

// Store saves PNG bytes and returns a new ID. The dimensions are read from
// the PNG header.
func (s *Storage) Store(pngData []byte) (string, error) {
	if len(pngData) == 0 {
		return "", ErrEmptyImage
	}
	if len(pngData) > MaxImageSize {
		return "", ErrImageTooLarge
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(pngData))
	if err != nil {
		return "", err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", ErrInvalidDimensions
	}

	id := uuid.New().String()
	now := s.now()

	s.mu.Lock()
	s.images[id] = &storedImage{
		data:       pngData,
		width:      cfg.Width,
		height:     cfg.Height,
		createdAt:  now,
		accessedAt: now,
	}
	s.mu.Unlock()

	return id, nil
}

// Get returns a copy of the PNG bytes and the image dimensions.
func (s *Storage) Get(id string) ([]byte, int, int, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, 0, 0, ErrInvalidID
	}

	s.mu.Lock()
	img, ok := s.images[id]
	if ok {
		img.accessedAt = s.now()
	}
	s.mu.Unlock()

	if !ok {
		return nil, 0, 0, ErrNotFound
	}

	data := make([]byte, len(img.data))
	copy(data, img.data)
	return data, img.width, img.height, nil
}

// Count returns the number of stored images.
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// Delete removes an image. It reports whether the image existed.
func (s *Storage) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.images[id]
	delete(s.images, id)
	return ok
}

// StartCleanup removes old images every CleanupInterval until ctx is
// cancelled. The returned channel is closed once the goroutine exits.
func (s *Storage) StartCleanup(ctx context.Context, logger *logging.Logger) <-chan struct{} {
	if logger == nil {
		logger = logging.Nop()
	}
	done := make(chan struct{})
	ticker := time.NewTicker(CleanupInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Debug("image cleanup stopping")
				return
			case <-ticker.C:
				s.cleanup(logger)
			}
		}
	}()
	return done
}

// cleanup drops images older than MaxAge, then evicts the least recently
// accessed ones until at most MaxImages remain.
func (s *Storage) cleanup(logger *logging.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	before := len(s.images)

	for id, img := range s.images {
		if now.Sub(img.createdAt) > MaxAge {
			delete(s.images, id)
		}
	}

	if excess := len(s.images) - MaxImages; excess > 0 {
		ids := make([]string, 0, len(s.images))
		for id := range s.images {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return s.images[ids[i]].accessedAt.Before(s.images[ids[j]].accessedAt)
		})
		for _, id := range ids[:excess] {
			delete(s.images, id)
		}
	}

	if after := len(s.images); after != before {
		logger.Debug("image cleanup: %d -> %d images", before, after)
	}
}
