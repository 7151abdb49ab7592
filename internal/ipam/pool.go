package ipam

import (
	"encoding/binary"
	"fmt"
	"net"

	"wgwarden/internal/models"
)

// Pool выдаёт хостовые адреса из настроенной IPv4-подсети.
// Сам пул не хранит занятость: множество занятых адресов приходит из
// реестра при каждом запросе, поэтому освобождённый адрес становится
// доступен сразу после удаления записи.
type Pool struct {
	subnet *net.IPNet
	base   uint32 // адрес сети
	first  uint32 // первый выдаваемый хост
	last   uint32 // последний выдаваемый хост
}

// New создаёт пул по CIDR. Хост .1 зарезервирован за сервером/DNS,
// поэтому выдача начинается с сети+2.
func New(cidr string) (*Pool, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("ipam: bad subnet %q: %w", cidr, err)
	}
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("ipam: only IPv4 subnets are supported, got %q", cidr)
	}
	ones, bits := ipnet.Mask.Size()
	if bits != 32 || ones > 30 {
		return nil, fmt.Errorf("ipam: subnet %q has no allocatable hosts", cidr)
	}
	base := binary.BigEndian.Uint32(ip4)
	size := uint32(1) << (32 - ones)
	return &Pool{
		subnet: ipnet,
		base:   base,
		first:  base + 2,
		last:   base + size - 2, // broadcast исключён
	}, nil
}

// Next возвращает наименьший свободный адрес хоста, которого нет в used.
// Детерминированно-возрастающий порядок держит пул компактным.
func (p *Pool) Next(used []string) (string, error) {
	busy := make(map[uint32]struct{}, len(used))
	for _, s := range used {
		ip := net.ParseIP(s)
		if ip == nil {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			busy[binary.BigEndian.Uint32(ip4)] = struct{}{}
		}
	}
	for n := p.first; n <= p.last; n++ {
		if _, ok := busy[n]; !ok {
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], n)
			return net.IPv4(b[0], b[1], b[2], b[3]).String(), nil
		}
	}
	return "", models.ErrPoolExhausted
}

// Contains сообщает, лежит ли адрес в подсети пула.
func (p *Pool) Contains(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && p.subnet.Contains(ip)
}

// ServerAddress — адрес сервера внутри туннеля (сеть+1).
func (p *Pool) ServerAddress() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], p.base+1)
	return net.IPv4(b[0], b[1], b[2], b[3]).String()
}

// Capacity — сколько адресов пул может выдать всего.
func (p *Pool) Capacity() int {
	return int(p.last - p.first + 1)
}
