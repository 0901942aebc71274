package transcribe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MimeLyc/video-sub-translator/pkg/executor"
)

// Device is where the speech model runs.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// DeviceInfo is what the accelerator probe found.
type DeviceInfo struct {
	CUDA    bool    `json:"cuda"`
	GPUName string  `json:"gpu_name,omitempty"`
	VRAMGB  float64 `json:"vram_gb,omitempty"`
}

// Prober reports accelerator availability. A failed probe means no GPU.
type Prober interface {
	Probe(ctx context.Context) DeviceInfo
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) DeviceInfo

func (f ProberFunc) Probe(ctx context.Context) DeviceInfo { return f(ctx) }

// NvidiaSMIProber asks nvidia-smi for the first GPU.
type NvidiaSMIProber struct {
	Exec executor.Executor
}

func NewNvidiaSMIProber(exec executor.Executor) *NvidiaSMIProber {
	if exec == nil {
		exec = executor.New()
	}
	return &NvidiaSMIProber{Exec: exec}
}

func (p *NvidiaSMIProber) Probe(ctx context.Context) DeviceInfo {
	out, err := p.Exec.Execute(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total",
		"--format=csv,noheader,nounits")
	if err != nil {
		return DeviceInfo{}
	}
	info, err := parseNvidiaSMI(out)
	if err != nil {
		return DeviceInfo{}
	}
	return info
}

// parseNvidiaSMI reads the first "name, MiB" row.
func parseNvidiaSMI(out string) (DeviceInfo, error) {
	for _, row := range strings.Split(out, "\n") {
		row = strings.TrimSpace(row)
		if row == "" {
			continue
		}
		idx := strings.LastIndex(row, ",")
		if idx < 0 {
			return DeviceInfo{}, fmt.Errorf("unexpected nvidia-smi output %q", row)
		}
		mib, err := strconv.ParseFloat(strings.TrimSpace(row[idx+1:]), 64)
		if err != nil {
			return DeviceInfo{}, fmt.Errorf("unexpected nvidia-smi memory %q: %w", row, err)
		}
		return DeviceInfo{
			CUDA:    true,
			GPUName: strings.TrimSpace(row[:idx]),
			VRAMGB:  mib / 1024,
		}, nil
	}
	return DeviceInfo{}, fmt.Errorf("nvidia-smi reported no GPU")
}

// SelectDevice validates tier against the probe result. When the GPU was
// requested but cannot host the tier the model runs on the CPU and the
// returned warning says why.
func SelectDevice(tier ModelTier, wantGPU bool, info DeviceInfo) (Device, string) {
	if !wantGPU {
		return DeviceCPU, ""
	}
	if !info.CUDA {
		return DeviceCPU, "GPU requested but CUDA is not available, falling back to CPU"
	}
	need := tier.Resources().VRAMGB
	if info.VRAMGB > 0 && info.VRAMGB < need {
		return DeviceCPU, fmt.Sprintf("GPU %s has %.1f GB VRAM but model %s needs about %.0f GB, falling back to CPU",
			info.GPUName, info.VRAMGB, tier, need)
	}
	return DeviceCUDA, ""
}
