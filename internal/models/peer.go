package models

import (
	"time"

	"gorm.io/datatypes"
)

// Peer — учётная запись VPN-пира. Источник истины о желаемом состоянии
// интерфейса: живой набор пиров приводится к множеству записей с Enabled=true.
type Peer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	// Адрес хоста без маски, например "10.0.0.2". Уникален среди всех пиров.
	Address      string `gorm:"uniqueIndex;size:64;not null" json:"address"`
	PublicKey    string `gorm:"uniqueIndex;size:64;not null" json:"public_key"`
	PrivateKey   string `gorm:"size:64" json:"-"`
	PresharedKey string `gorm:"size:64" json:"-"`

	// Идентификатор оператора, создавшего пира (telegram id на стороне моста).
	OwnerID int64 `gorm:"index" json:"owner_id"`
	Enabled bool  `gorm:"not null;default:true" json:"enabled"`

	// Телеметрия, заполняется асинхронно сверкой статистики.
	LastHandshakeAt *time.Time     `json:"last_handshake_at,omitempty"`
	BytesSent       int64          `json:"bytes_sent"`
	BytesReceived   int64          `json:"bytes_received"`
	TrafficPeriods  datatypes.JSON `gorm:"type:jsonb" json:"traffic_periods,omitempty"`
}

// Imported — у пира нет приватного ключа, если его публичный ключ
// был принесён оператором извне.
func (p *Peer) Imported() bool { return p.PrivateKey == "" }

// PeerArchive — история удалённого пира при retention=archive.
// Ключевой материал при удалении уничтожается, остаётся только
// публичный ключ и счётчики; адрес и имя сразу свободны для повторного
// использования, поэтому уникальных индексов здесь нет.
type PeerArchive struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"index;size:64" json:"username"`
	Address   string    `gorm:"size:64" json:"address"`
	PublicKey string    `gorm:"size:64" json:"public_key"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	DeletedAt time.Time `json:"deleted_at"`

	BytesSent      int64          `json:"bytes_sent"`
	BytesReceived  int64          `json:"bytes_received"`
	TrafficPeriods datatypes.JSON `gorm:"type:jsonb" json:"traffic_periods,omitempty"`
}

// TrafficStat — суммарный трафик (в байтах) за один период.
type TrafficStat struct {
	ReceivedBytes int64 `json:"received_bytes"`
	SentBytes     int64 `json:"sent_bytes"`
}

// PeriodizedTraffic — трафик, разбитый по периодам.
// Ключи: daily "2006-01-02", weekly "2006-W02" (ISO-неделя), monthly "2006-01".
type PeriodizedTraffic struct {
	Daily   map[string]TrafficStat `json:"daily,omitempty"`
	Weekly  map[string]TrafficStat `json:"weekly,omitempty"`
	Monthly map[string]TrafficStat `json:"monthly,omitempty"`
}
