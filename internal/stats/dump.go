package stats

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// ParseDump разбирает вывод `wg show <iface> dump`: первая строка —
// интерфейс, дальше по одному пиру на строку, поля через табуляцию:
// public-key, preshared-key, endpoint, allowed-ips, latest-handshake
// (unix-секунды, 0 — никогда), rx, tx, keepalive.
func ParseDump(r io.Reader) ([]PeerStat, error) {
	var out []PeerStat
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if lineNo == 1 && len(fields) == 4 {
			continue // заголовок интерфейса
		}
		if len(fields) < 8 {
			return nil, fmt.Errorf("stats: dump line %d: %d fields", lineNo, len(fields))
		}

		hs, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats: dump line %d: handshake: %w", lineNo, err)
		}
		rx, err := strconv.ParseInt(fields[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats: dump line %d: rx: %w", lineNo, err)
		}
		tx, err := strconv.ParseInt(fields[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats: dump line %d: tx: %w", lineNo, err)
		}

		st := PeerStat{
			PublicKey:     fields[0],
			ReceiveBytes:  rx,
			TransmitBytes: tx,
		}
		if fields[2] != "(none)" {
			st.Endpoint = fields[2]
		}
		if hs > 0 {
			st.LastHandshake = time.Unix(hs, 0).UTC()
		}
		out = append(out, st)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("stats: scan dump: %w", err)
	}
	return out, nil
}

// FileSource читает периодически обновляемый снапшот dump-формата.
type FileSource struct {
	Path string
}

func (s FileSource) Snapshot(ctx context.Context) ([]PeerStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("stats: open feed: %w", err)
	}
	defer f.Close()
	return ParseDump(f)
}
