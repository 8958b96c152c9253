package ml

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	torch "github.com/wangkuiyi/gotorch"

	"traffic/config"
	"traffic/dataset"
	"traffic/util"
)

// ModelInfo is written next to a saved state dict so the architecture can be
// rebuilt without the training configuration.
type ModelInfo struct {
	ID          string    `json:"id"`
	InputShape  []int64   `json:"input_shape"` // width, height, channels
	OutputShape []int64   `json:"output_shape"`
	DropoutRate float64   `json:"dropout_rate"`
	Epochs      int       `json:"epochs"`
	CreatedAt   time.Time `json:"created_at"`
}

// InfoPath is the metadata file that accompanies a model saved at path.
func InfoPath(path string) string {
	return path + ".json"
}

// Save writes the gob-encoded state dict to path and its ModelInfo to
// InfoPath(path).
func (c *Classifier) Save(path string) error {
	if c.net == nil {
		return fmt.Errorf("%w: model released", ErrBadInput)
	}
	util.Logger.Info("saving model", "path", path)

	c.net.To(torch.NewDevice("cpu"))
	defer c.net.To(c.device)
	if err := writeStateDict(path, c.net.StateDict()); err != nil {
		return err
	}

	info := ModelInfo{
		ID:          uuid.NewString(),
		InputShape:  []int64{int64(c.cfg.ImageWidth), int64(c.cfg.ImageHeight), dataset.Channels},
		OutputShape: []int64{int64(c.cfg.NumCategories)},
		DropoutRate: c.cfg.DropoutRate,
		Epochs:      c.epochs,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model info: %w", err)
	}
	if err := os.WriteFile(InfoPath(path), data, 0o644); err != nil {
		return fmt.Errorf("write model info: %w", err)
	}
	return nil
}

// Load rebuilds a classifier saved with Save. Without a metadata file the
// default configuration is assumed.
func Load(path string, device torch.Device) (*Classifier, error) {
	cfg, epochs, err := readInfo(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	states := make(map[string]torch.Tensor)
	if err := gob.NewDecoder(f).Decode(&states); err != nil {
		return nil, fmt.Errorf("decode state dict %s: %w", path, err)
	}

	net, err := newTrafficNet(cfg)
	if err != nil {
		return nil, err
	}
	if err := restoreStateDict(net, states); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c := compile(net, cfg, device)
	c.epochs = epochs
	return c, nil
}

// writeStateDict gob-encodes states to path. A partially written file is
// removed.
func writeStateDict(path string, states map[string]torch.Tensor) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create file to save model: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(states); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode state dict: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func readInfo(path string) (config.Config, int, error) {
	cfg := config.Default()
	data, err := os.ReadFile(InfoPath(path))
	if errors.Is(err, os.ErrNotExist) {
		util.Logger.Warn("no model info found, assuming default shapes", "path", InfoPath(path))
		return cfg, 0, nil
	} else if err != nil {
		return cfg, 0, fmt.Errorf("read model info: %w", err)
	}

	var info ModelInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return cfg, 0, fmt.Errorf("%w: parse model info: %v", ErrModelConfig, err)
	}
	if len(info.InputShape) != 3 || info.InputShape[2] != dataset.Channels || len(info.OutputShape) != 1 {
		return cfg, 0, fmt.Errorf("%w: unsupported shapes %v -> %v", ErrModelConfig, info.InputShape, info.OutputShape)
	}

	cfg.ImageWidth = int(info.InputShape[0])
	cfg.ImageHeight = int(info.InputShape[1])
	cfg.NumCategories = int(info.OutputShape[0])
	cfg.DropoutRate = info.DropoutRate
	if err := cfg.Validate(); err != nil {
		return cfg, 0, fmt.Errorf("%w: %v", ErrModelConfig, err)
	}
	return cfg, info.Epochs, nil
}

// restoreStateDict replaces net's parameters with states, which must have
// exactly net's parameter names and shapes.
func restoreStateDict(net *TrafficNet, states map[string]torch.Tensor) error {
	if err := matchStateDict(net.StateDict(), states); err != nil {
		return err
	}
	if err := net.SetStateDict(states); err != nil {
		return fmt.Errorf("%w: %v", ErrModelConfig, err)
	}
	return nil
}

// matchStateDict checks that loaded has exactly the parameters of want, with
// the same shapes.
func matchStateDict(want, loaded map[string]torch.Tensor) error {
	for name, t := range want {
		l, ok := loaded[name]
		if !ok {
			return fmt.Errorf("%w: missing parameter %s", ErrModelConfig, name)
		}
		if !slices.Equal(t.Shape(), l.Shape()) {
			return fmt.Errorf("%w: parameter %s has shape %v, want %v", ErrModelConfig, name, l.Shape(), t.Shape())
		}
	}
	for name := range loaded {
		if _, ok := want[name]; !ok {
			return fmt.Errorf("%w: unexpected parameter %s", ErrModelConfig, name)
		}
	}
	return nil
}
