package facility

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*HealthcareFacility, error) {
	return s.repo.GetByID(ctx, id)
}

// List filters facilities and, when an origin is given, orders them nearest
// first with their distance filled in. Paging happens after ordering.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*HealthcareFacility, int, error) {
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	if f.Origin != nil {
		for _, item := range items {
			d := HaversineKM(*f.Origin, Point{Lat: item.Latitude, Lng: item.Longitude})
			item.DistanceKM = &d
		}
		sort.SliceStable(items, func(i, j int) bool {
			return *items[i].DistanceKM < *items[j].DistanceKM
		})
	}

	total := len(items)
	if offset >= total {
		return []*HealthcareFacility{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total, nil
}
