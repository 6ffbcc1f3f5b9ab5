package civic

import (
	"context"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/eljojo/civic/services/room"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

type HostStats struct {
	Uptime     uint64  `json:"uptime"`
	UptimeText string  `json:"uptimeText"`
	LoadAvg    float64 `json:"loadAvg"`
	MemUsed    string  `json:"memUsed"`
}

type RoomStatus struct {
	Phase        string `json:"phase"`
	Name         string `json:"name"`
	Members      int    `json:"members"`
	RefreshedAt  int64  `json:"refreshedAt,omitempty"`
	RefreshedAgo string `json:"refreshedAgo"`
	LastError    string `json:"lastError,omitempty"`
}

// Status is what /api/status reports.
type Status struct {
	Me         string         `json:"me"`
	StartedAt  int64          `json:"startedAt"`
	Records    int            `json:"records"`
	ByType     map[string]int `json:"byType"`
	Identities int            `json:"identities"`
	Room       *RoomStatus    `json:"room"`
	Host       HostStats      `json:"host"`
}

// StatusReporter gathers the server's health in one place.
type StatusReporter struct {
	me        string
	startedAt time.Time
	ledger    *Ledger
	abouts    *AboutProjection
	room      *room.Service // nil without a room
}

func NewStatusReporter(me string, ledger *Ledger, abouts *AboutProjection, roomSvc *room.Service) *StatusReporter {
	return &StatusReporter{
		me:        me,
		startedAt: time.Now(),
		ledger:    ledger,
		abouts:    abouts,
		room:      roomSvc,
	}
}

func (s *StatusReporter) Status() Status {
	if err := s.abouts.projection.RunToEnd(context.Background()); err != nil {
		logrus.WithError(err).Warn("📊 identity count may be stale")
	}
	st := Status{
		Me:         s.me,
		StartedAt:  s.startedAt.Unix(),
		Records:    s.ledger.Count(),
		ByType:     s.ledger.CountByType(),
		Identities: s.abouts.Count(),
		Host:       hostStats(),
	}
	if s.room != nil {
		st.Room = roomStatus(s.room.Phase(), s.room.Snapshot())
	}
	return st
}

func roomStatus(phase room.Phase, state *room.State) *RoomStatus {
	rs := &RoomStatus{
		Phase:        phase.String(),
		Name:         state.Name,
		Members:      len(state.Members),
		RefreshedAgo: "never",
		LastError:    state.LastError,
	}
	if !state.RefreshedAt.IsZero() {
		rs.RefreshedAt = state.RefreshedAt.Unix()
		rs.RefreshedAgo = humanize.Time(state.RefreshedAt)
	}
	return rs
}

func hostStats() HostStats {
	var stats HostStats

	uptime, _ := host.Uptime()
	stats.Uptime = uptime
	now := time.Now()
	stats.UptimeText = strings.TrimSpace(humanize.RelTime(now.Add(-time.Duration(uptime)*time.Second), now, "", ""))

	avg, err := load.Avg()
	if err == nil {
		loadavg := avg.Load1 / float64(goruntime.NumCPU())
		stats.LoadAvg = float64(int64(loadavg*100)) / 100 // truncate to 2 digits
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemUsed = humanize.Bytes(vm.Used) + " / " + humanize.Bytes(vm.Total)
	}
	return stats
}
