package wgiface

import "golang.zx2c4.com/wireguard/wgctrl/wgtypes"

// NopDevice — заглушка для запуска без доступа к ядру (dry-run,
// разработка не под linux). Принимает любые изменения и всегда пуст.
type NopDevice struct{}

func (NopDevice) Peers() ([]wgtypes.Peer, error)            { return nil, nil }
func (NopDevice) ConfigurePeers([]wgtypes.PeerConfig) error { return nil }
