package wgiface

import (
	"context"
	"errors"
	"net"
	"sort"
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgwarden/internal/logs"
	"wgwarden/internal/models"
)

func init() {
	logs.Init(logs.Options{Level: "error"})
}

// fakeDevice имитирует интерфейс ядра в памяти.
type fakeDevice struct {
	peers map[wgtypes.Key]wgtypes.Peer
	// ключи, на которых ConfigurePeers должен падать
	failKeys map[wgtypes.Key]bool
	calls    int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		peers:    map[wgtypes.Key]wgtypes.Peer{},
		failKeys: map[wgtypes.Key]bool{},
	}
}

func (d *fakeDevice) Peers() ([]wgtypes.Peer, error) {
	out := make([]wgtypes.Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	return out, nil
}

func (d *fakeDevice) ConfigurePeers(cfgs []wgtypes.PeerConfig) error {
	d.calls += len(cfgs)
	for _, c := range cfgs {
		if d.failKeys[c.PublicKey] {
			return errors.New("device says no")
		}
		if c.Remove {
			delete(d.peers, c.PublicKey)
			continue
		}
		p := d.peers[c.PublicKey]
		p.PublicKey = c.PublicKey
		if c.ReplaceAllowedIPs {
			p.AllowedIPs = c.AllowedIPs
		}
		if c.PresharedKey != nil {
			p.PresharedKey = *c.PresharedKey
		}
		d.peers[c.PublicKey] = p
	}
	return nil
}

func genPeer(t *testing.T, name, addr string) models.Peer {
	t.Helper()
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return models.Peer{
		Username:  name,
		Address:   addr,
		PublicKey: priv.PublicKey().String(),
		Enabled:   true,
	}
}

func liveKeys(d *fakeDevice) []string {
	var out []string
	for k := range d.peers {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}

func TestApplyAddsAndRemoves(t *testing.T) {
	dev := newFakeDevice()
	a := New(dev, 3)
	ctx := context.Background()

	alice := genPeer(t, "alice", "10.0.0.2")
	bob := genPeer(t, "bob", "10.0.0.3")

	rep, err := a.Apply(ctx, []models.Peer{alice, bob})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Added) != 2 || len(rep.Removed) != 0 {
		t.Fatalf("added=%d removed=%d", len(rep.Added), len(rep.Removed))
	}
	if len(dev.peers) != 2 {
		t.Fatalf("device has %d peers", len(dev.peers))
	}

	// alice выключили: желаемое множество — только bob
	rep, err = a.Apply(ctx, []models.Peer{bob})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Removed) != 1 || rep.Removed[0] != alice.PublicKey {
		t.Fatalf("removed=%v", rep.Removed)
	}
	if got := liveKeys(dev); len(got) != 1 || got[0] != bob.PublicKey {
		t.Fatalf("live peers = %v, want only bob", got)
	}
}

func TestApplyIdempotent(t *testing.T) {
	dev := newFakeDevice()
	a := New(dev, 3)
	ctx := context.Background()

	alice := genPeer(t, "alice", "10.0.0.2")
	if _, err := a.Apply(ctx, []models.Peer{alice}); err != nil {
		t.Fatal(err)
	}
	before := dev.calls

	rep, err := a.Apply(ctx, []models.Peer{alice})
	if err != nil {
		t.Fatal(err)
	}
	if !rep.InSync() {
		t.Fatalf("expected in-sync report, got %+v", rep)
	}
	if dev.calls != before {
		t.Fatal("in-sync peer was touched")
	}
}

func TestApplyUpdatesChangedAllowedIPs(t *testing.T) {
	dev := newFakeDevice()
	a := New(dev, 3)
	ctx := context.Background()

	alice := genPeer(t, "alice", "10.0.0.2")
	key, _ := wgtypes.ParseKey(alice.PublicKey)
	// на устройстве остался старый allowed-ip
	dev.peers[key] = wgtypes.Peer{
		PublicKey:  key,
		AllowedIPs: []net.IPNet{{IP: net.ParseIP("10.0.0.99").To4(), Mask: net.CIDRMask(32, 32)}},
	}

	rep, err := a.Apply(ctx, []models.Peer{alice})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Updated) != 1 {
		t.Fatalf("updated=%v", rep.Updated)
	}
	got := dev.peers[key].AllowedIPs
	if len(got) != 1 || got[0].IP.String() != "10.0.0.2" {
		t.Fatalf("allowed ips = %v", got)
	}
}

func TestApplyRepairsPresharedDrift(t *testing.T) {
	dev := newFakeDevice()
	a := New(dev, 3)
	ctx := context.Background()

	alice := genPeer(t, "alice", "10.0.0.2")
	psk, err := wgtypes.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	alice.PresharedKey = psk.String()
	if _, err := a.Apply(ctx, []models.Peer{alice}); err != nil {
		t.Fatal(err)
	}

	// psk на устройстве подменили мимо нас
	key, _ := wgtypes.ParseKey(alice.PublicKey)
	other, err := wgtypes.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	p := dev.peers[key]
	p.PresharedKey = other
	dev.peers[key] = p

	rep, err := a.Apply(ctx, []models.Peer{alice})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Updated) != 1 || rep.Updated[0] != alice.PublicKey {
		t.Fatalf("updated=%v", rep.Updated)
	}
	if dev.peers[key].PresharedKey != psk {
		t.Fatal("preshared key drift not repaired")
	}

	// пир без psk: лишний ключ на устройстве стирается до нулевого
	bob := genPeer(t, "bob", "10.0.0.3")
	if _, err := a.Apply(ctx, []models.Peer{alice, bob}); err != nil {
		t.Fatal(err)
	}
	bkey, _ := wgtypes.ParseKey(bob.PublicKey)
	bp := dev.peers[bkey]
	bp.PresharedKey = other
	dev.peers[bkey] = bp

	rep, err = a.Apply(ctx, []models.Peer{alice, bob})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Updated) != 1 || rep.Updated[0] != bob.PublicKey {
		t.Fatalf("updated=%v", rep.Updated)
	}
	if dev.peers[bkey].PresharedKey != (wgtypes.Key{}) {
		t.Fatal("foreign preshared key not cleared")
	}
}

func TestApplyFailureBound(t *testing.T) {
	dev := newFakeDevice()
	a := New(dev, 2)
	ctx := context.Background()

	alice := genPeer(t, "alice", "10.0.0.2")
	key, _ := wgtypes.ParseKey(alice.PublicKey)
	dev.failKeys[key] = true

	// два прохода — транзиентные сбои
	for i := 0; i < 2; i++ {
		rep, err := a.Apply(ctx, []models.Peer{alice})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := rep.Failed[alice.PublicKey]; !ok {
			t.Fatalf("pass %d: expected transient failure", i)
		}
		if len(rep.Persistent) != 0 {
			t.Fatalf("pass %d: premature persistent report", i)
		}
	}

	// третий проход — лимит выбран, пир больше не ретраится
	before := dev.calls
	rep, err := a.Apply(ctx, []models.Peer{alice})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Persistent) != 1 || rep.Persistent[0].PublicKey != alice.PublicKey {
		t.Fatalf("persistent=%v", rep.Persistent)
	}
	if rep.Persistent[0].Attempts != 2 {
		t.Fatalf("attempts = %d", rep.Persistent[0].Attempts)
	}
	if dev.calls != before {
		t.Fatal("peer over the failure bound was retried")
	}

	// после починки и сброса счётчика пир добавляется
	dev.failKeys[key] = false
	a.ResetFailures(alice.PublicKey)
	rep, err = a.Apply(ctx, []models.Peer{alice})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Added) != 1 {
		t.Fatalf("added=%v", rep.Added)
	}
}

func TestApplyFailureCounterDropsWithPeer(t *testing.T) {
	dev := newFakeDevice()
	a := New(dev, 2)
	ctx := context.Background()

	alice := genPeer(t, "alice", "10.0.0.2")
	key, _ := wgtypes.ParseKey(alice.PublicKey)
	dev.failKeys[key] = true

	if _, err := a.Apply(ctx, []models.Peer{alice}); err != nil {
		t.Fatal(err)
	}
	// пир удалили из реестра — счётчик не должен жить вечно
	if _, err := a.Apply(ctx, nil); err != nil {
		t.Fatal(err)
	}
	a.mu.Lock()
	n := len(a.failures)
	a.mu.Unlock()
	if n != 0 {
		t.Fatalf("stale failure counters: %d", n)
	}
}
