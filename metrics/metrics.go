package metrics

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"
)

type StageInfo struct {
	Name      string        `json:"name"`
	Duration  time.Duration `json:"duration"`
	Product   string        `json:"product"`
	Bands     []string      `json:"bands"`
	Pixels    int           `json:"pixels"`
	NaNPixels int           `json:"nan_pixels"`
	Error     string        `json:"error,omitempty"`
}

type SharpenerInfo struct {
	GoodCells       int     `json:"good_cells"`
	TrainingSamples int     `json:"training_samples"`
	CVThreshold     float64 `json:"cv_threshold"`
	LocalModels     int     `json:"local_models"`
	GlobalMSE       float64 `json:"global_mse"`
}

type RunInfo struct {
	RunID        string         `json:"run_id"`
	StartTime    string         `json:"start_time"`
	Duration     time.Duration  `json:"duration"`
	ConfigFile   string         `json:"config_file"`
	Acquisition  string         `json:"acquisition"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Processed    int            `json:"processed_pixels"`
	NotProcessed int            `json:"not_processed_pixels"`
	Stages       []*StageInfo   `json:"stages"`
	Sharpener    *SharpenerInfo `json:"sharpener"`
	QualityFlags map[string]int `json:"quality_flags"`
	Status       string         `json:"status"`
	Error        string         `json:"error,omitempty"`
}

type MetricsCollector struct {
	Info   *RunInfo
	logger Logger
	mu     sync.Mutex
}

func NewMetricsCollector(logger Logger) *MetricsCollector {
	return &MetricsCollector{
		Info: &RunInfo{
			Sharpener:    &SharpenerInfo{},
			QualityFlags: make(map[string]int),
		},
		logger: logger,
	}
}

// AddStage appends a finished stage to the run record.
func (m *MetricsCollector) AddStage(stage *StageInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Info.Stages = append(m.Info.Stages, stage)
}

func (m *MetricsCollector) Log() {
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

func (i *RunInfo) ToJSON() (string, error) {
	if i.Status == "" {
		i.Status = "unknown"
	}

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(i)
	if err == nil {
		return buf.String(), nil
	} else {
		return "", err
	}
}
