package wgiface

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgwarden/internal/logs"
	"wgwarden/internal/models"
)

// Device — живой WireGuard-интерфейс. Единственная точка доступа к
// разделяемому ресурсу ядра; вся запись идёт через Applier.
type Device interface {
	Peers() ([]wgtypes.Peer, error)
	ConfigurePeers([]wgtypes.PeerConfig) error
}

// KernelDevice — устройство ядра с обвязкой жизненного цикла.
type KernelDevice interface {
	Device
	EnsureAddress(cidr string) error
	Close() error
}

// Report — итог одного прохода сверки.
type Report struct {
	Added   []string
	Removed []string
	Updated []string
	// Транзиентные сбои этого прохода: public key → ошибка.
	Failed map[string]error
	// Пиры, по которым превышен лимит подряд идущих сбоев. Дальше не
	// ретраим — отдаём оператору как persistent-failure report.
	Persistent []PersistentFailure
}

// InSync — прошла ли сверка без изменений и без сбоев.
func (r *Report) InSync() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Updated) == 0 &&
		len(r.Failed) == 0 && len(r.Persistent) == 0
}

type PersistentFailure struct {
	PublicKey string
	Attempts  int
	LastErr   error
}

// Applier приводит живой набор пиров интерфейса к желаемому множеству.
// Минимальный дифф: трогаем только расхождения, каждый пир отдельной
// операцией, чтобы один сбойный не валил остальных.
type Applier struct {
	dev     Device
	maxFail int

	mu       sync.Mutex
	failures map[wgtypes.Key]int
	lastErr  map[wgtypes.Key]error
}

func New(dev Device, maxFailures int) *Applier {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &Applier{
		dev:      dev,
		maxFail:  maxFailures,
		failures: make(map[wgtypes.Key]int),
		lastErr:  make(map[wgtypes.Key]error),
	}
}

type desiredPeer struct {
	key wgtypes.Key
	psk *wgtypes.Key
	ip  net.IPNet
}

// Apply выполняет одну сверку. Сериализован: параллельные вызовы
// выстраиваются на мьютексе и никогда не перемешивают операции.
func (a *Applier) Apply(ctx context.Context, desired []models.Peer) (*Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	want := make(map[wgtypes.Key]desiredPeer, len(desired))
	rep := &Report{Failed: map[string]error{}}

	for i := range desired {
		p := &desired[i]
		key, err := wgtypes.ParseKey(p.PublicKey)
		if err != nil {
			// Ключи валидируются до записи в реестр; сюда попадает только
			// порча данных. Сообщаем, но остальных пиров не трогаем.
			rep.Failed[p.PublicKey] = fmt.Errorf("%w: %v", models.ErrInvalidKey, err)
			continue
		}
		ip := net.ParseIP(p.Address)
		if ip == nil {
			rep.Failed[p.PublicKey] = fmt.Errorf("bad address %q", p.Address)
			continue
		}
		dp := desiredPeer{key: key, ip: net.IPNet{IP: ip.To4(), Mask: net.CIDRMask(32, 32)}}
		if p.PresharedKey != "" {
			psk, err := wgtypes.ParseKey(p.PresharedKey)
			if err != nil {
				rep.Failed[p.PublicKey] = fmt.Errorf("%w: preshared: %v", models.ErrInvalidKey, err)
				continue
			}
			dp.psk = &psk
		}
		want[key] = dp
	}

	live, err := a.dev.Peers()
	if err != nil {
		return nil, fmt.Errorf("wgiface: list device peers: %w", err)
	}
	liveByKey := make(map[wgtypes.Key]wgtypes.Peer, len(live))
	for _, p := range live {
		liveByKey[p.PublicKey] = p
	}

	var ops []wgtypes.PeerConfig
	var kinds []string // "add" | "update" | "remove", параллельно ops

	for key, dp := range want {
		lp, ok := liveByKey[key]
		if ok && allowedIPsMatch(lp.AllowedIPs, dp.ip) && presharedMatch(lp.PresharedKey, dp.psk) {
			continue // уже в синхроне — не трогаем
		}
		cfg := wgtypes.PeerConfig{
			PublicKey:         key,
			PresharedKey:      dp.psk,
			ReplaceAllowedIPs: true,
			AllowedIPs:        []net.IPNet{dp.ip},
		}
		if ok {
			cfg.UpdateOnly = true
			// занесённый извне psk стираем явно: nil для ядра значит
			// "не менять"
			if dp.psk == nil {
				var zero wgtypes.Key
				cfg.PresharedKey = &zero
			}
			kinds = append(kinds, "update")
		} else {
			kinds = append(kinds, "add")
		}
		ops = append(ops, cfg)
	}
	for key := range liveByKey {
		if _, ok := want[key]; !ok {
			ops = append(ops, wgtypes.PeerConfig{PublicKey: key, Remove: true})
			kinds = append(kinds, "remove")
		}
	}

	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		key := op.PublicKey
		if n := a.failures[key]; n >= a.maxFail {
			rep.Persistent = append(rep.Persistent, PersistentFailure{
				PublicKey: key.String(),
				Attempts:  n,
				LastErr:   a.lastErr[key],
			})
			continue
		}
		if err := a.dev.ConfigurePeers([]wgtypes.PeerConfig{op}); err != nil {
			a.failures[key]++
			a.lastErr[key] = err
			rep.Failed[key.String()] = err
			logs.Logger.Warnf("apply %s peer=%s failed (%d/%d): %v",
				kinds[i], key, a.failures[key], a.maxFail, err)
			continue
		}
		delete(a.failures, key)
		delete(a.lastErr, key)
		switch kinds[i] {
		case "add":
			rep.Added = append(rep.Added, key.String())
		case "update":
			rep.Updated = append(rep.Updated, key.String())
		case "remove":
			rep.Removed = append(rep.Removed, key.String())
		}
	}

	// Счётчики пиров, которых больше нет ни в желаемом, ни в живом
	// состоянии, не нужны.
	for key := range a.failures {
		_, inWant := want[key]
		_, inLive := liveByKey[key]
		if !inWant && !inLive {
			delete(a.failures, key)
			delete(a.lastErr, key)
		}
	}

	return rep, nil
}

// ResetFailures сбрасывает счётчик сбоев пира — после вмешательства
// оператора ретраи начинаются заново.
func (a *Applier) ResetFailures(publicKey string) {
	key, err := wgtypes.ParseKey(publicKey)
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.failures, key)
	delete(a.lastErr, key)
}

// presharedMatch: nil в желаемом — psk не задан, в живом состоянии
// ему соответствует нулевой ключ.
func presharedMatch(live wgtypes.Key, want *wgtypes.Key) bool {
	if want == nil {
		return live == (wgtypes.Key{})
	}
	return live == *want
}

func allowedIPsMatch(live []net.IPNet, want net.IPNet) bool {
	if len(live) != 1 {
		return false
	}
	ones, bits := live[0].Mask.Size()
	return ones == 32 && bits == 32 && live[0].IP.Equal(want.IP)
}
