package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/homeservices/cart-service/internal/cache"
	"github.com/fjod/homeservices/cart-service/internal/domain"
	"github.com/fjod/homeservices/cart-service/internal/repository"
	"github.com/fjod/homeservices/pkg/logger"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	repo  repository.CartRepository
	cache cache.CartCache
	log   *logger.Logger
	sfg   singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, log *logger.Logger) *CartService {
	if log == nil {
		log = logger.Nop()
	}
	return &CartService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetCart returns the user's cart, an empty one when none is stored.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn(ctx, "cache get failed", err)
		}

		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			now := time.Now().UTC()
			return &domain.Cart{UserID: userID, Items: []domain.CartLine{}, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, err
		}

		go func(cart *domain.Cart) {
			setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := s.cache.Set(setCtx, userID, cart); err != nil {
				s.log.Warn(setCtx, "cache set failed", err)
			}
		}(cart)

		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// AddLine stores line for its product, replacing the count and content of
// a line already holding that product.
func (s *CartService) AddLine(ctx context.Context, userID string, line domain.CartLine) (domain.CartLine, error) {
	saved, err := s.repo.UpsertLine(ctx, userID, line)
	if err != nil {
		s.log.Error(ctx, "repo upsert line failed", err)
		return domain.CartLine{}, err
	}
	s.invalidate(ctx, userID)
	return saved, nil
}

// UpdateLine applies patch to a line. A count of zero or less removes the
// line, reported by removed.
func (s *CartService) UpdateLine(ctx context.Context, userID, lineID string, patch domain.LinePatch) (line domain.CartLine, removed bool, err error) {
	if patch.Count != nil && *patch.Count <= 0 {
		return domain.CartLine{}, true, s.RemoveLine(ctx, userID, lineID)
	}
	line, err = s.repo.UpdateLine(ctx, userID, lineID, patch)
	if err != nil {
		if !errors.Is(err, repository.ErrItemNotFound) {
			s.log.Error(ctx, "repo update line failed", err)
		}
		return domain.CartLine{}, false, err
	}
	s.invalidate(ctx, userID)
	return line, false, nil
}

func (s *CartService) RemoveLine(ctx context.Context, userID, lineID string) error {
	if err := s.repo.RemoveLine(ctx, userID, lineID); err != nil {
		if !errors.Is(err, repository.ErrItemNotFound) {
			s.log.Error(ctx, "repo remove line failed", err)
		}
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// ClearCart deletes the user's cart. Clearing a missing cart is not an
// error.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.log.Error(ctx, "repo delete cart failed", err)
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *CartService) invalidate(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn(ctx, "cache invalidate failed", err)
	}
}
