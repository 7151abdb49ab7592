package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wgwarden/internal/models"
)

// Политика хранения удалённых записей.
const (
	RetentionPurge   = "purge"
	RetentionArchive = "archive"
)

// PeerStore — реестр пиров поверх gorm. Вся многошаговая вставка
// оборачивается транзакцией: сбой на любом шаге не оставляет
// частичной строки.
type PeerStore struct {
	db        *gorm.DB
	retention string
}

func NewPeerStore(db *gorm.DB, retention string) *PeerStore {
	if retention == "" {
		retention = RetentionArchive
	}
	return &PeerStore{db: db, retention: retention}
}

// persistErr помечает сбой хранилища (не констрейнт и не отсутствие
// строки): недоступная БД, оборванное соединение и прочее.
func persistErr(op string, err error) error {
	return fmt.Errorf("repo: %s: %w: %v", op, models.ErrPersistence, err)
}

// Create вставляет запись пира. Конфликты уникальных индексов приходят
// как DuplicateUsername/DuplicateAddress; гонку двух вставок с одним
// именем разрешает сам индекс — выживает ровно одна строка.
func (s *PeerStore) Create(ctx context.Context, p *models.Peer) error {
	err := s.db.WithContext(ctx).Create(p).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		var n int64
		s.db.WithContext(ctx).Model(&models.Peer{}).
			Where("username = ?", p.Username).Count(&n)
		if n > 0 {
			return models.ErrDuplicateUsername
		}
		s.db.WithContext(ctx).Model(&models.Peer{}).
			Where("address = ?", p.Address).Count(&n)
		if n > 0 {
			return models.ErrDuplicateAddress
		}
		return models.ErrKeyCollision
	}
	return persistErr("create peer", err)
}

func (s *PeerStore) GetByUsername(ctx context.Context, username string) (*models.Peer, error) {
	var p models.Peer
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get peer", err)
	}
	return &p, nil
}

func (s *PeerStore) GetByPublicKey(ctx context.Context, publicKey string) (*models.Peer, error) {
	var p models.Peer
	err := s.db.WithContext(ctx).Where("public_key = ?", publicKey).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get peer by key", err)
	}
	return &p, nil
}

func (s *PeerStore) List(ctx context.Context) ([]models.Peer, error) {
	var out []models.Peer
	if err := s.db.WithContext(ctx).Order("username").Find(&out).Error; err != nil {
		return nil, persistErr("list peers", err)
	}
	return out, nil
}

func (s *PeerStore) ListByOwner(ctx context.Context, ownerID int64) ([]models.Peer, error) {
	var out []models.Peer
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("username").Find(&out).Error
	if err != nil {
		return nil, persistErr("list peers by owner", err)
	}
	return out, nil
}

// ListEnabled — желаемое множество живого интерфейса.
func (s *PeerStore) ListEnabled(ctx context.Context) ([]models.Peer, error) {
	var out []models.Peer
	err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("username").Find(&out).Error
	if err != nil {
		return nil, persistErr("list enabled peers", err)
	}
	return out, nil
}

// UsedAddresses — занятые адреса всех пиров, включая выключенных.
func (s *PeerStore) UsedAddresses(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&models.Peer{}).Pluck("address", &out).Error
	if err != nil {
		return nil, persistErr("used addresses", err)
	}
	return out, nil
}

func (s *PeerStore) SetEnabled(ctx context.Context, username string, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.Peer{}).
		Where("username = ?", username).
		Update("enabled", enabled)
	if res.Error != nil {
		return persistErr("set enabled", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete удаляет пира. При retention=archive счётчики и публичный ключ
// переезжают в peer_archives, приватный материал уничтожается вместе
// со строкой; адрес освобождается в обоих режимах сразу.
func (s *PeerStore) Delete(ctx context.Context, username string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Peer
		err := tx.Where("username = ?", username).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrNotFound
		}
		if err != nil {
			return persistErr("delete peer", err)
		}
		if s.retention == RetentionArchive {
			arch := models.PeerArchive{
				Username:       p.Username,
				Address:        p.Address,
				PublicKey:      p.PublicKey,
				OwnerID:        p.OwnerID,
				CreatedAt:      p.CreatedAt,
				DeletedAt:      time.Now().UTC(),
				BytesSent:      p.BytesSent,
				BytesReceived:  p.BytesReceived,
				TrafficPeriods: p.TrafficPeriods,
			}
			if err := tx.Create(&arch).Error; err != nil {
				return persistErr("archive peer", err)
			}
		}
		if err := tx.Delete(&p).Error; err != nil {
			return persistErr("delete peer", err)
		}
		return nil
	})
}

// UpdateStats обновляет телеметрию по публичному ключу. Неизвестный
// ключ — не ошибка сверки, вызывающий решает по ErrNotFound.
func (s *PeerStore) UpdateStats(ctx context.Context, publicKey string, handshake *time.Time, rx, tx int64, periods datatypes.JSON) error {
	upd := map[string]any{
		"bytes_received": rx,
		"bytes_sent":     tx,
	}
	if handshake != nil {
		upd["last_handshake_at"] = handshake
	}
	if len(periods) > 0 {
		upd["traffic_periods"] = periods
	}
	res := s.db.WithContext(ctx).Model(&models.Peer{}).
		Where("public_key = ?", publicKey).
		Updates(upd)
	if res.Error != nil {
		return persistErr("update stats", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListArchived — история удалённых пиров (retention=archive).
func (s *PeerStore) ListArchived(ctx context.Context) ([]models.PeerArchive, error) {
	var out []models.PeerArchive
	if err := s.db.WithContext(ctx).Order("deleted_at desc").Find(&out).Error; err != nil {
		return nil, persistErr("list archived", err)
	}
	return out, nil
}
