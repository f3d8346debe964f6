package booking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/localstore"
	"github.com/google/uuid"
)

// pendingBooking remembers the key of a submission whose outcome is unknown,
// so that retrying the same order cannot book it twice.
type pendingBooking struct {
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint"`
}

// fingerprint identifies an order by what is being booked, ignoring when
// the attempt was made.
func fingerprint(rec domain.BookingRecord) (string, error) {
	rec.PlacedAt = time.Time{}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// idempotencyKey returns the key remembered for rec, or a fresh one. A new
// key is remembered before the submission is sent.
func (s *Submitter) idempotencyKey(ctx context.Context, rec domain.BookingRecord) string {
	fp, err := fingerprint(rec)
	if err != nil {
		return uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil && s.storage != nil {
		raw, err := s.storage.Get(ctx, localstore.KeyPendingBooking)
		switch {
		case err == nil:
			var p pendingBooking
			if json.Unmarshal(raw, &p) == nil {
				s.pending = &p
			}
		case !errors.Is(err, localstore.ErrNotFound):
			s.log.Warn(ctx, "could not read pending booking", err)
		}
	}
	if s.pending != nil && s.pending.Fingerprint == fp {
		return s.pending.Key
	}

	s.pending = &pendingBooking{Key: uuid.NewString(), Fingerprint: fp}
	if s.storage != nil {
		raw, _ := json.Marshal(s.pending)
		if err := s.storage.Set(ctx, localstore.KeyPendingBooking, raw); err != nil {
			s.log.Warn(ctx, "could not remember pending booking", err)
		}
	}
	return s.pending.Key
}

// forgetPending drops the remembered key once its booking is acknowledged.
func (s *Submitter) forgetPending(ctx context.Context) {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	if s.storage == nil {
		return
	}
	if err := s.storage.Delete(ctx, localstore.KeyPendingBooking); err != nil && !errors.Is(err, localstore.ErrNotFound) {
		s.log.Warn(ctx, "could not forget pending booking", err)
	}
}
