package wgconf

import (
	"fmt"
	"sort"
	"strings"

	"wgwarden/internal/models"
)

// ServerParams — серверная сторона, попадающая в клиентские конфиги.
type ServerParams struct {
	PublicKey string // публичный ключ сервера
	Endpoint  string // host:port
	DNS       string // адрес DNS внутри туннеля
}

// ClientConfig рендерит импортируемый клиентом конфиг. Чистая функция:
// одинаковые входы дают байт-в-байт одинаковый результат.
func ClientConfig(p *models.Peer, sp ServerParams) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "Address = %s/32\n", p.Address)
	fmt.Fprintf(&b, "PrivateKey = %s\n", p.PrivateKey)
	if sp.DNS != "" {
		fmt.Fprintf(&b, "DNS = %s\n", sp.DNS)
	}
	fmt.Fprintf(&b, "\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", sp.PublicKey)
	if p.PresharedKey != "" {
		fmt.Fprintf(&b, "PresharedKey = %s\n", p.PresharedKey)
	}
	fmt.Fprintf(&b, "Endpoint = %s\n", sp.Endpoint)
	fmt.Fprintf(&b, "AllowedIPs = 0.0.0.0/0\n")
	return []byte(b.String())
}

// PeerStanza рендерит серверный блок пира. Выключенный пир остаётся в
// файле, но каждая строка закомментирована — так блок переживает
// выключение/включение без потери адреса и ключей.
func PeerStanza(p *models.Peer) []byte {
	lines := []string{
		"[Peer]",
		"# " + p.Username,
		"PublicKey = " + p.PublicKey,
	}
	if p.PresharedKey != "" {
		lines = append(lines, "PresharedKey = "+p.PresharedKey)
	}
	lines = append(lines, "AllowedIPs = "+p.Address+"/32")

	var b strings.Builder
	for _, ln := range lines {
		if !p.Enabled {
			b.WriteString("#")
		}
		b.WriteString(ln)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// ServerConfig собирает полный файл пир-блоков. Порядок фиксирован по
// имени пользователя, чтобы файл можно было диффать при сверке.
func ServerConfig(peers []models.Peer) []byte {
	sorted := make([]models.Peer, len(peers))
	copy(sorted, peers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Username < sorted[j].Username })

	var b strings.Builder
	for i := range sorted {
		if i > 0 {
			b.WriteString("\n")
		}
		b.Write(PeerStanza(&sorted[i]))
	}
	return []byte(b.String())
}

// Stanza — разобранный серверный блок пира.
type Stanza struct {
	Username     string
	PublicKey    string
	PresharedKey string
	Address      string
	Enabled      bool
}

// ParseServerConfig разбирает файл пир-блоков обратно. Используется в
// тестах на round-trip и при ручном разборе дрейфа.
func ParseServerConfig(data []byte) ([]Stanza, error) {
	var out []Stanza
	var cur *Stanza

	flush := func() error {
		if cur == nil {
			return nil
		}
		if cur.PublicKey == "" {
			return fmt.Errorf("wgconf: stanza for %q has no PublicKey", cur.Username)
		}
		out = append(out, *cur)
		cur = nil
		return nil
	}

	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		// Блок выключенного пира закомментирован целиком: снимаем один '#'
		// и запоминаем состояние.
		commented := false
		if strings.HasPrefix(line, "#") {
			rest := strings.TrimSpace(line[1:])
			if rest == "[Peer]" || hasDirective(rest) || strings.HasPrefix(rest, "#") {
				line = rest
				commented = true
			}
		}

		switch {
		case line == "[Peer]":
			if err := flush(); err != nil {
				return nil, err
			}
			cur = &Stanza{Enabled: !commented}
		case cur == nil:
			continue
		case strings.HasPrefix(line, "#"):
			cur.Username = strings.TrimSpace(strings.TrimLeft(line, "#"))
		case hasDirective(line):
			k, v, _ := strings.Cut(line, "=")
			v = strings.TrimSpace(v)
			switch strings.TrimSpace(k) {
			case "PublicKey":
				cur.PublicKey = v
			case "PresharedKey":
				cur.PresharedKey = v
			case "AllowedIPs":
				cur.Address = strings.TrimSuffix(strings.Split(v, ",")[0], "/32")
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func hasDirective(line string) bool {
	k, _, ok := strings.Cut(line, "=")
	if !ok {
		return false
	}
	switch strings.TrimSpace(k) {
	case "PublicKey", "PresharedKey", "AllowedIPs":
		return true
	}
	return false
}
