package system

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Report итог одного экспорта для --stats.
type Report struct {
	Build  string
	Input  string
	Mode   string
	Width  int
	Height int
	Frames int

	Total   time.Duration
	Capture time.Duration
	Encode  time.Duration

	// Заполняются CollectHost.
	RSS         uint64
	CPUs        int
	HostTotal   uint64
	HostUsedPct float64
}

// FPS эффективная скорость экспорта.
func (r Report) FPS() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Total.Seconds()
}

// CollectHost дописывает в отчёт память процесса и хоста. Ошибки gopsutil не фатальны:
// поле просто остаётся нулевым.
func CollectHost(r *Report) {
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			r.RSS = mi.RSS
		}
	}
	if n, err := cpu.Counts(true); err == nil {
		r.CPUs = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		r.HostTotal = vm.Total
		r.HostUsedPct = vm.UsedPercent
	}
}

func (r Report) String() string {
	var b strings.Builder
	b.WriteString("--- [PERFORMANCE REPORT] ---\n")
	fmt.Fprintf(&b, "Build: %s\n", r.Build)
	fmt.Fprintf(&b, "Mode: %s | Canvas: %dx%d | Frames: %d\n", r.Mode, r.Width, r.Height, r.Frames)
	fmt.Fprintf(&b, "Total: %.2fs | Capture: %.2fs | Encode: %.2fs\n", r.Total.Seconds(), r.Capture.Seconds(), r.Encode.Seconds())
	fmt.Fprintf(&b, "Effective FPS: %.2f\n", r.FPS())
	fmt.Fprintf(&b, "RSS: %.1f MiB | CPUs: %d | Host memory: %.1f GiB (%.0f%% used)\n",
		float64(r.RSS)/(1<<20), r.CPUs, float64(r.HostTotal)/(1<<30), r.HostUsedPct)
	b.WriteString("----------------------------\n")
	return b.String()
}

// AppendBenchmark дописывает строку отчёта в лог (обычно benchmark.log).
func AppendBenchmark(path string, r Report, now time.Time) error {
	entry := fmt.Sprintf("[%s] Build: %s | Input: %s | Mode: %s | Frames: %d | Total: %.2fs | Capture: %.2fs | Encode: %.2fs | FPS: %.2f | RSS: %d\n",
		now.Format("2006-01-02 15:04:05"),
		r.Build,
		filepath.Base(r.Input),
		r.Mode,
		r.Frames,
		r.Total.Seconds(),
		r.Capture.Seconds(),
		r.Encode.Seconds(),
		r.FPS(),
		r.RSS,
	)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(entry); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
