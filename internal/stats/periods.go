package stats

import (
	"fmt"
	"time"

	"wgwarden/internal/models"
)

// Ключи периодов: daily "2006-01-02", weekly "2006-W02" (ISO-неделя),
// monthly "2006-01".
func periodKeys(now time.Time) (daily, weekly, monthly string) {
	daily = now.Format("2006-01-02")
	y, w := now.ISOWeek()
	weekly = fmt.Sprintf("%d-W%02d", y, w)
	monthly = now.Format("2006-01")
	return
}

// accumulate прибавляет дельту трафика к текущим периодам.
func accumulate(pt *models.PeriodizedTraffic, deltaRx, deltaTx int64, now time.Time) {
	if deltaRx <= 0 && deltaTx <= 0 {
		return
	}
	if pt.Daily == nil {
		pt.Daily = map[string]models.TrafficStat{}
	}
	if pt.Weekly == nil {
		pt.Weekly = map[string]models.TrafficStat{}
	}
	if pt.Monthly == nil {
		pt.Monthly = map[string]models.TrafficStat{}
	}
	d, w, m := periodKeys(now)
	add := func(bucket map[string]models.TrafficStat, key string) {
		st := bucket[key]
		st.ReceivedBytes += deltaRx
		st.SentBytes += deltaTx
		bucket[key] = st
	}
	add(pt.Daily, d)
	add(pt.Weekly, w)
	add(pt.Monthly, m)
}

// HumanBytes форматирует счётчик для отчётов оператору.
func HumanBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GiB", float64(n)/float64(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(n)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
