//go:build linux

package wgiface

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// CtrlDevice — реальный интерфейс ядра через wgctrl (netlink).
type CtrlDevice struct {
	name   string
	client *wgctrl.Client
}

func NewCtrlDevice(name string) (KernelDevice, error) {
	c, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("wgiface: open wgctrl: %w", err)
	}
	if _, err := c.Device(name); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("wgiface: device %s: %w", name, err)
	}
	return &CtrlDevice{name: name, client: c}, nil
}

func (d *CtrlDevice) Peers() ([]wgtypes.Peer, error) {
	dev, err := d.client.Device(d.name)
	if err != nil {
		return nil, err
	}
	return dev.Peers, nil
}

func (d *CtrlDevice) ConfigurePeers(cfgs []wgtypes.PeerConfig) error {
	return d.client.ConfigureDevice(d.name, wgtypes.Config{Peers: cfgs})
}

func (d *CtrlDevice) Close() error { return d.client.Close() }

// EnsureAddress добавляет серверный адрес на линк, если его там нет.
// Сам линк создаёт внешнее окружение (wg-quick/systemd-networkd).
func (d *CtrlDevice) EnsureAddress(cidr string) error {
	link, err := netlink.LinkByName(d.name)
	if err != nil {
		return fmt.Errorf("wgiface: link %s: %w", d.name, err)
	}
	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		return fmt.Errorf("wgiface: parse address %q: %w", cidr, err)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("wgiface: list addresses: %w", err)
	}
	for _, a := range addrs {
		if a.IP.Equal(addr.IP) {
			return nil
		}
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("wgiface: add address %s: %w", cidr, err)
	}
	return netlink.LinkSetUp(link)
}
