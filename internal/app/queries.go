package app

import (
	"context"
	"fmt"
	"time"

	"staybook/internal/domain"
)

// QueryService serves public hotel reads cache-aside from the query cache,
// falling back to the data gateway.
type QueryService struct {
	gw       domain.DataGateway
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(gw domain.DataGateway, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{gw: gw, cache: c, cacheTTL: ttl}
}

func (s *QueryService) GetHotel(ctx context.Context, id string) (domain.Hotel, error) {
	key := fmt.Sprintf("hotel:%s", id)
	var h domain.Hotel
	if ok, _ := s.cache.Get(ctx, key, &h); ok {
		return h, nil
	}
	raw, err := s.gw.Get(ctx, domain.CollectionHotels, id)
	if err != nil {
		return domain.Hotel{}, err
	}
	h, err = domain.DecodeHotel(id, raw)
	if err != nil {
		return domain.Hotel{}, err
	}
	_ = s.cache.Set(ctx, key, h, int(s.cacheTTL.Seconds()))
	return h, nil
}
