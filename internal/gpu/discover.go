package gpu

import (
	"context"
	"encoding/xml"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/minimario/symlaunch/pkg/logging"
	"github.com/minimario/symlaunch/pkg/models"
	"github.com/minimario/symlaunch/pkg/retry"
)

// Device describes one discovered accelerator
type Device struct {
	Index         int     `json:"index"`
	Name          string  `json:"name"`
	UUID          string  `json:"uuid"`
	BusID         string  `json:"bus_id"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	UtilizationPC float64 `json:"utilization_percent"`
}

// nvidia-smi -q -x schema (the subset we read)
type smiLog struct {
	XMLName xml.Name `xml:"nvidia_smi_log"`
	GPUs    []smiGPU `xml:"gpu"`
}

type smiGPU struct {
	ID          string `xml:"id,attr"`
	ProductName string `xml:"product_name"`
	UUID        string `xml:"uuid"`
	FBMemory    struct {
		Used  string `xml:"used"`
		Total string `xml:"total"`
	} `xml:"fb_memory_usage"`
	Utilization struct {
		GPUUtil string `xml:"gpu_util"`
	} `xml:"utilization"`
}

// queryFunc runs the device query; swapped out in tests
type queryFunc func(ctx context.Context) ([]byte, error)

// Discoverer enumerates GPUs through nvidia-smi. When the tool is missing
// the discoverer reports unavailable and validation degrades to a warning,
// since the trainer itself is the final authority on device selection.
type Discoverer struct {
	log       *logging.Logger
	available bool
	query     queryFunc
}

// NewDiscoverer probes for nvidia-smi and returns a discoverer
func NewDiscoverer(log *logging.Logger) *Discoverer {
	d := &Discoverer{log: log, query: querySMI}
	if err := exec.Command("nvidia-smi", "-L").Run(); err != nil {
		log.Warn("nvidia-smi not available, GPU validation disabled")
		return d
	}
	d.available = true
	return d
}

// Available reports whether device discovery works on this host
func (d *Discoverer) Available() bool {
	return d.available
}

// Devices queries and parses the device list. Transient query failures are
// retried with backoff.
func (d *Discoverer) Devices(ctx context.Context) ([]Device, error) {
	if !d.available {
		return nil, nil
	}

	var raw []byte
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		out, qerr := d.query(ctx)
		if qerr != nil {
			return qerr
		}
		raw = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query nvidia-smi: %w", err)
	}

	return parseDevices(raw)
}

// ValidatePlan checks every launch's GPU index against the discovered
// devices. Unavailable discovery is not an error.
func (d *Discoverer) ValidatePlan(ctx context.Context, plan models.Plan) error {
	if !d.available {
		return nil
	}

	devices, err := d.Devices(ctx)
	if err != nil {
		return err
	}

	for i, l := range plan.Launches {
		if l.GPU >= len(devices) {
			return fmt.Errorf("launch %d: gpu %d not present (host has %d)", i, l.GPU, len(devices))
		}
	}
	return nil
}

func parseDevices(raw []byte) ([]Device, error) {
	var log smiLog
	if err := xml.Unmarshal(raw, &log); err != nil {
		return nil, fmt.Errorf("failed to parse nvidia-smi XML: %w", err)
	}

	devices := make([]Device, 0, len(log.GPUs))
	for i, gpu := range log.GPUs {
		devices = append(devices, Device{
			Index:         i,
			Name:          gpu.ProductName,
			UUID:          gpu.UUID,
			BusID:         gpu.ID,
			MemoryUsedMB:  parseFloat(gpu.FBMemory.Used),
			MemoryTotalMB: parseFloat(gpu.FBMemory.Total),
			UtilizationPC: parseFloat(gpu.Utilization.GPUUtil),
		})
	}
	return devices, nil
}

func querySMI(ctx context.Context) ([]byte, error) {
	return exec.CommandContext(ctx, "nvidia-smi", "-q", "-x").Output()
}

// parseFloat extracts a float from a value with unit ("123 MiB" -> 123)
func parseFloat(s string) float64 {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) == 0 {
		return 0
	}
	val, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	return val
}
