package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	"wgwarden/internal/models"
)

// MemoryStore — реестр в памяти для запуска без БД и для тестов.
// Повторяет контракт PeerStore, включая уникальность имени и адреса.
type MemoryStore struct {
	mu        sync.RWMutex
	retention string
	nextID    uint
	byName    map[string]*models.Peer
	archives  []models.PeerArchive
}

func NewMemoryStore(retention string) *MemoryStore {
	if retention == "" {
		retention = RetentionArchive
	}
	return &MemoryStore{
		retention: retention,
		nextID:    1,
		byName:    make(map[string]*models.Peer),
	}
}

func (s *MemoryStore) Create(_ context.Context, p *models.Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[p.Username]; ok {
		return models.ErrDuplicateUsername
	}
	for _, q := range s.byName {
		if q.Address == p.Address {
			return models.ErrDuplicateAddress
		}
		if q.PublicKey == p.PublicKey {
			return models.ErrKeyCollision
		}
	}
	now := time.Now().UTC()
	p.ID = s.nextID
	s.nextID++
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	s.byName[p.Username] = &cp
	return nil
}

func (s *MemoryStore) GetByUsername(_ context.Context, username string) (*models.Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byName[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetByPublicKey(_ context.Context, publicKey string) (*models.Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byName {
		if p.PublicKey == publicKey {
			cp := *p
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStore) list(filter func(*models.Peer) bool) []models.Peer {
	out := make([]models.Peer, 0, len(s.byName))
	for _, p := range s.byName {
		if filter == nil || filter(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (s *MemoryStore) List(_ context.Context) ([]models.Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(nil), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID int64) ([]models.Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(func(p *models.Peer) bool { return p.OwnerID == ownerID }), nil
}

func (s *MemoryStore) ListEnabled(_ context.Context) ([]models.Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(func(p *models.Peer) bool { return p.Enabled }), nil
}

func (s *MemoryStore) UsedAddresses(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byName))
	for _, p := range s.byName {
		out = append(out, p.Address)
	}
	return out, nil
}

func (s *MemoryStore) SetEnabled(_ context.Context, username string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byName[username]
	if !ok {
		return models.ErrNotFound
	}
	p.Enabled = enabled
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byName[username]
	if !ok {
		return models.ErrNotFound
	}
	if s.retention == RetentionArchive {
		s.archives = append(s.archives, models.PeerArchive{
			Username:       p.Username,
			Address:        p.Address,
			PublicKey:      p.PublicKey,
			OwnerID:        p.OwnerID,
			CreatedAt:      p.CreatedAt,
			DeletedAt:      time.Now().UTC(),
			BytesSent:      p.BytesSent,
			BytesReceived:  p.BytesReceived,
			TrafficPeriods: p.TrafficPeriods,
		})
	}
	delete(s.byName, username)
	return nil
}

func (s *MemoryStore) UpdateStats(_ context.Context, publicKey string, handshake *time.Time, rx, tx int64, periods datatypes.JSON) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byName {
		if p.PublicKey != publicKey {
			continue
		}
		p.BytesReceived = rx
		p.BytesSent = tx
		if handshake != nil {
			hs := *handshake
			p.LastHandshakeAt = &hs
		}
		if len(periods) > 0 {
			p.TrafficPeriods = periods
		}
		p.UpdatedAt = time.Now().UTC()
		return nil
	}
	return models.ErrNotFound
}

func (s *MemoryStore) ListArchived(_ context.Context) ([]models.PeerArchive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PeerArchive, len(s.archives))
	copy(out, s.archives)
	return out, nil
}
