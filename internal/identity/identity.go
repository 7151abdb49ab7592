package identity

import (
	"fmt"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgwarden/internal/models"
)

// Identity — криптографическая личность пира. Приватный материал
// генерируется один раз и для существующего пира не перегенерируется.
type Identity struct {
	PrivateKey   string
	PublicKey    string
	PresharedKey string
}

// Generate создаёт свежую пару ключей Curve25519 и, по запросу,
// preshared-ключ. Источник случайности — crypto/rand внутри wgtypes.
func Generate(withPSK bool) (Identity, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return Identity{}, fmt.Errorf("identity: generate private key: %w", err)
	}
	id := Identity{
		PrivateKey: priv.String(),
		PublicKey:  priv.PublicKey().String(),
	}
	if withPSK {
		psk, err := wgtypes.GenerateKey()
		if err != nil {
			return Identity{}, fmt.Errorf("identity: generate preshared key: %w", err)
		}
		id.PresharedKey = psk.String()
	}
	return id, nil
}

// ValidateKey проверяет длину и base64-кодировку ключа, принесённого
// оператором извне (импорт существующего пира). Возвращает каноническую
// строковую форму.
func ValidateKey(s string) (string, error) {
	k, err := wgtypes.ParseKey(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidKey, err)
	}
	return k.String(), nil
}
