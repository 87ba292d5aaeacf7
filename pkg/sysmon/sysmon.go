// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package sysmon

import (
	"encoding/json"
	"html/template"
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"thermoreg/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Probe contributes one named section of key/value facts to the page.
type Probe func() map[string]any

type Service struct {
	started time.Time
	probes  map[string]Probe
	log     *logger.Logger
}

type Snapshot struct {
	GoVersion string                    `json:"go_version"`
	Uptime    string                    `json:"uptime"`
	CPU       CPUStats                  `json:"cpu"`
	Memory    MemoryStats               `json:"memory"`
	Disk      DiskStats                 `json:"disk"`
	BootTime  time.Time                 `json:"boot_time"`
	Sections  map[string]map[string]any `json:"sections,omitempty"`
}

type CPUStats struct {
	SystemPercent  float64 `json:"system_percent"`
	ProcessPercent float64 `json:"process_percent"`
}

type MemoryStats struct {
	SystemTotal uint64 `json:"system_total"`
	SystemUsed  uint64 `json:"system_used"`
	SystemFree  uint64 `json:"system_free"`
	ProcessRSS  uint64 `json:"process_rss"`
}

type DiskStats struct {
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

func New() *Service {
	return &Service{
		started: time.Now(),
		probes:  make(map[string]Probe),
		log:     logger.New("SystemMonitor"),
	}
}

// AddProbe registers a section; call before serving.
func (s *Service) AddProbe(name string, p Probe) *Service {
	s.probes[name] = p
	return s
}

func (s *Service) Collect() Snapshot {
	snap := Snapshot{
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		snap.CPU.SystemPercent = pct[0]
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		snap.Memory.SystemTotal = vmem.Total
		snap.Memory.SystemUsed = vmem.Used
		snap.Memory.SystemFree = vmem.Available
	}
	if boot, err := host.BootTime(); err == nil {
		snap.BootTime = time.Unix(int64(boot), 0)
	}
	if total, free, used, err := DiskUsage("/"); err == nil {
		snap.Disk = DiskStats{Total: total, Used: used, Free: free}
	} else {
		s.log.Debug("disk usage: %v", err)
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			snap.Memory.ProcessRSS = mi.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			snap.CPU.ProcessPercent = pct
		}
	}

	if len(s.probes) > 0 {
		snap.Sections = make(map[string]map[string]any, len(s.probes))
		for name, probe := range s.probes {
			snap.Sections[name] = probe()
		}
	}
	return snap
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := s.Collect()

	if r.Header.Get("Accept") == "application/json" || r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			s.log.Error("encode snapshot: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, pageData(snap)); err != nil {
		s.log.Error("render: %v", err)
	}
}

type section struct {
	Name string
	Rows [][2]any
}

func pageData(snap Snapshot) map[string]any {
	var sections []section
	for name, kv := range snap.Sections {
		sec := section{Name: name}
		for k, v := range kv {
			sec.Rows = append(sec.Rows, [2]any{k, v})
		}
		sort.Slice(sec.Rows, func(i, j int) bool { return sec.Rows[i][0].(string) < sec.Rows[j][0].(string) })
		sections = append(sections, sec)
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Name < sections[j].Name })

	const gb = 1024 * 1024 * 1024
	return map[string]any{
		"S":        snap,
		"MemTotal": float64(snap.Memory.SystemTotal) / gb,
		"MemUsed":  float64(snap.Memory.SystemUsed) / gb,
		"MemFree":  float64(snap.Memory.SystemFree) / gb,
		"RSS":      float64(snap.Memory.ProcessRSS) / (1024 * 1024),
		"DiskTot":  float64(snap.Disk.Total) / gb,
		"DiskUsed": float64(snap.Disk.Used) / gb,
		"DiskFree": float64(snap.Disk.Free) / gb,
		"Sections": sections,
	}
}

var page = template.Must(template.New("sysmon").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>System Monitor</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		table { border-collapse: collapse; width: 60%; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
		th { background: #eee; }
	</style>
</head>
<body>
	<h1>System Monitor</h1>
	<p>Go {{.S.GoVersion}}, up {{.S.Uptime}}</p>
	<h2>CPU</h2>
	<table>
		<tr><th>System %</th><th>Process %</th></tr>
		<tr><td>{{printf "%.2f" .S.CPU.SystemPercent}}</td><td>{{printf "%.2f" .S.CPU.ProcessPercent}}</td></tr>
	</table>
	<h2>Memory</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th><th>Process RSS</th></tr>
		<tr><td>{{printf "%.2f" .MemTotal}} GB</td><td>{{printf "%.2f" .MemUsed}} GB</td><td>{{printf "%.2f" .MemFree}} GB</td><td>{{printf "%.2f" .RSS}} MB</td></tr>
	</table>
	<h2>Disk (/)</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th></tr>
		<tr><td>{{printf "%.2f" .DiskTot}} GB</td><td>{{printf "%.2f" .DiskUsed}} GB</td><td>{{printf "%.2f" .DiskFree}} GB</td></tr>
	</table>
	{{range .Sections}}
	<h2>{{.Name}}</h2>
	<table>
		{{range .Rows}}<tr><th>{{index . 0}}</th><td>{{index . 1}}</td></tr>{{end}}
	</table>
	{{end}}
</body>
</html>
`))
