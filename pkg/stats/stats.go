package stats

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"cam-station/pkg/config"
	"cam-station/pkg/util"
)

// HandleRecordingStatsData assembles the recordings block of the stats page.
func HandleRecordingStatsData() gin.H {
	return gin.H{
		"total_recordings":    GetTotalRecordingsCount(),
		"recordings_size":     GetRecordingsDiskUsage(),
		"last_recording_time": GetLastRecordingTime(),
	}
}

func GetTotalRecordingsCount() int {
	count := 0
	files, err := os.ReadDir(config.AppConfig.RecordingsDir)
	if err != nil {
		return 0
	}
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".mp4") {
			count++
		}
	}
	return count
}

func GetRecordingsDiskUsage() string {
	var totalSize int64
	err := filepath.Walk(config.AppConfig.RecordingsDir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return err
	})

	if err != nil {
		log.Printf("Error calculating disk usage: %v", err)
		return "N/A"
	}

	return util.HumanSize(totalSize)
}

func GetLastRecordingTime() string {
	files, err := os.ReadDir(config.AppConfig.RecordingsDir)
	if err != nil {
		return "N/A"
	}

	var last time.Time
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".mp4") {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(last) {
			last = info.ModTime()
		}
	}

	if last.IsZero() {
		return "N/A"
	}
	return last.Format("2006-01-02 15:04:05")
}

// GetSystemInfo samples host CPU and memory usage.
func GetSystemInfo() gin.H {
	cpuUsage := "N/A"
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuUsage = fmt.Sprintf("%.1f%%", percents[0])
	} else if err != nil {
		log.Printf("Error sampling CPU usage: %v", err)
	}

	memUsage := "N/A"
	if vm, err := mem.VirtualMemory(); err == nil {
		memUsage = fmt.Sprintf("%.1f%%", vm.UsedPercent)
	} else if err != nil {
		log.Printf("Error sampling memory usage: %v", err)
	}

	return gin.H{
		"os_type":      runtime.GOOS,
		"cpu_usage":    cpuUsage,
		"memory_usage": memUsage,
	}
}

// CachedStats holds the cached statistics data.
// This probably will struggle and need a more robust caching solution as the
// app grows, larger data, or support for multiple instances, cameras etc
type CachedStats struct {
	sync.RWMutex
	Data gin.H
}

var Cache = &CachedStats{
	Data: make(gin.H),
}

func (cs *CachedStats) RunUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		for {
			cs.Update()
			<-ticker.C
		}
	}()
}

func (cs *CachedStats) Update() {
	cs.Lock()
	defer cs.Unlock()

	cs.Data = gin.H{
		"recordings":  HandleRecordingStatsData(),
		"system_info": GetSystemInfo(),
	}
}

func (cs *CachedStats) GetData() gin.H {
	cs.RLock()
	defer cs.RUnlock()
	return cs.Data
}
