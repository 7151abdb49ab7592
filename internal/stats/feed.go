package stats

import (
	"context"
	"fmt"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// OnlineWindow — свежесть рукопожатия, при которой пир считается
// подключённым. WireGuard шлёт keepalive не реже чем раз в ~2 минуты.
const OnlineWindow = 3 * time.Minute

// Online — есть ли у пира рукопожатие в пределах окна.
func Online(last *time.Time, now time.Time) bool {
	return last != nil && now.Sub(*last) < OnlineWindow
}

// PeerStat — одна запись снапшота статистики: рукопожатие и
// накопительные счётчики байт, ключ — публичный ключ пира.
type PeerStat struct {
	PublicKey     string
	Endpoint      string
	LastHandshake time.Time // нулевое время — рукопожатий не было
	ReceiveBytes  int64
	TransmitBytes int64
}

// Source — внешняя лента статистики. Для ядра она read-only.
type Source interface {
	Snapshot(ctx context.Context) ([]PeerStat, error)
}

// DeviceSource снимает статистику напрямую с устройства.
type DeviceSource struct {
	Dev interface {
		Peers() ([]wgtypes.Peer, error)
	}
}

func (s DeviceSource) Snapshot(ctx context.Context) ([]PeerStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	peers, err := s.Dev.Peers()
	if err != nil {
		return nil, fmt.Errorf("stats: read device: %w", err)
	}
	out := make([]PeerStat, 0, len(peers))
	for _, p := range peers {
		st := PeerStat{
			PublicKey:     p.PublicKey.String(),
			LastHandshake: p.LastHandshakeTime,
			ReceiveBytes:  p.ReceiveBytes,
			TransmitBytes: p.TransmitBytes,
		}
		if p.Endpoint != nil {
			st.Endpoint = p.Endpoint.String()
		}
		out = append(out, st)
	}
	return out, nil
}
