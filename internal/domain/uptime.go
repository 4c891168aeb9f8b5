package domain

import (
	"sort"
	"time"
)

// UptimePoint is one sample on a service's status timeline.
type UptimePoint struct {
	ServiceID string        `json:"serviceId" bson:"serviceId"`
	Timestamp time.Time     `json:"timestamp" bson:"timestamp"`
	Status    ServiceStatus `json:"status"    bson:"status"`
	IsUp      bool          `json:"isUp"      bson:"isUp"`
}

func NewUptimePoint(serviceID string, status ServiceStatus, at time.Time) UptimePoint {
	return UptimePoint{
		ServiceID: serviceID,
		Timestamp: at,
		Status:    status,
		IsUp:      status == StatusOperational,
	}
}

// DailyUptime is the share of operational samples recorded on one UTC day.
type DailyUptime struct {
	Date             string  `json:"date"`
	UptimePercentage float64 `json:"uptimePercentage"`
}

// AggregateDailyUptime groups points by UTC calendar day, ascending. Days
// without samples are omitted.
func AggregateDailyUptime(points []UptimePoint) []DailyUptime {
	type tally struct{ up, total int }
	days := make(map[string]*tally)
	for _, p := range points {
		key := p.Timestamp.UTC().Format("2006-01-02")
		t, ok := days[key]
		if !ok {
			t = &tally{}
			days[key] = t
		}
		t.total++
		if p.Status == StatusOperational {
			t.up++
		}
	}

	out := make([]DailyUptime, 0, len(days))
	for date, t := range days {
		out = append(out, DailyUptime{
			Date:             date,
			UptimePercentage: float64(t.up) / float64(t.total) * 100,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// UptimeWindowStart returns the start of the UTC day that lies days before now.
func UptimeWindowStart(now time.Time, days int) time.Time {
	d := now.UTC().AddDate(0, 0, -days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
