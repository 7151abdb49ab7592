package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"wgwarden/internal/logs"
	"wgwarden/internal/models"
)

// Registry — то, что сверке нужно от реестра.
type Registry interface {
	GetByPublicKey(ctx context.Context, publicKey string) (*models.Peer, error)
	UpdateStats(ctx context.Context, publicKey string, handshake *time.Time, rx, tx int64, periods datatypes.JSON) error
}

// Reconciler сопоставляет снапшот статистики с реестром по публичному
// ключу и обновляет телеметрию. Записи ленты без пира в реестре —
// осиротевшее состояние интерфейса: логируем и пропускаем. Пиры без
// записи в ленте сохраняют последние известные значения.
type Reconciler struct {
	src Source
	reg Registry
	now func() time.Time // подменяется в тестах
}

func NewReconciler(src Source, reg Registry) *Reconciler {
	return &Reconciler{src: src, reg: reg, now: time.Now}
}

// Tick — один проход сверки. Ошибка чтения/разбора ленты не фатальна:
// проход пропускается, следующий тик попробует снова.
func (r *Reconciler) Tick(ctx context.Context) error {
	snap, err := r.src.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("stats: snapshot: %w", err)
	}
	now := r.now().UTC()

	for _, st := range snap {
		p, err := r.reg.GetByPublicKey(ctx, st.PublicKey)
		if errors.Is(err, models.ErrNotFound) {
			logs.Logger.Debugf("stats: feed entry %s has no registry peer, skipping", st.PublicKey)
			continue
		}
		if err != nil {
			return fmt.Errorf("stats: lookup %s: %w", st.PublicKey, err)
		}

		// Дельта против последних известных счётчиков; отрицательная
		// дельта означает сброс счётчиков интерфейса.
		deltaRx := st.ReceiveBytes - p.BytesReceived
		if deltaRx < 0 {
			deltaRx = st.ReceiveBytes
		}
		deltaTx := st.TransmitBytes - p.BytesSent
		if deltaTx < 0 {
			deltaTx = st.TransmitBytes
		}

		var pt models.PeriodizedTraffic
		if len(p.TrafficPeriods) > 0 {
			if err := json.Unmarshal(p.TrafficPeriods, &pt); err != nil {
				logs.Logger.Warnf("stats: peer %s has corrupt traffic periods, resetting: %v", p.Username, err)
				pt = models.PeriodizedTraffic{}
			}
		}
		accumulate(&pt, deltaRx, deltaTx, now)
		periods, err := json.Marshal(pt)
		if err != nil {
			return fmt.Errorf("stats: marshal periods: %w", err)
		}

		var hs *time.Time
		if !st.LastHandshake.IsZero() {
			t := st.LastHandshake.UTC()
			hs = &t
		}
		if err := r.reg.UpdateStats(ctx, st.PublicKey, hs, st.ReceiveBytes, st.TransmitBytes, periods); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue // пира удалили, пока шла сверка
			}
			return fmt.Errorf("stats: update %s: %w", st.PublicKey, err)
		}
	}
	return nil
}
