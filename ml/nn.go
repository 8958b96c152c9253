package ml

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	torch "github.com/wangkuiyi/gotorch"
	"github.com/wangkuiyi/gotorch/nn"
	F "github.com/wangkuiyi/gotorch/nn/functional"
	"github.com/wangkuiyi/gotorch/nn/initializer"

	"traffic/config"
	"traffic/dataset"
)

// Filter counts and kernel sizes of the two feature-extraction stages, and
// the widths of the hidden dense layers.
const (
	conv1Filters = 40
	conv1Kernel  = 3
	pool1Size    = 2
	conv2Filters = 80
	conv2Kernel  = 4
	pool2Size    = 3
)

var hiddenUnits = [3]int64{100, 200, 100}

// TrafficNet is two conv+maxpool stages followed by three ReLU dense layers,
// dropout and a softmax output with one unit per category.
type TrafficNet struct {
	nn.Module
	Conv1, Conv2  *nn.Conv2dModule
	FC1, FC2, FC3 *nn.LinearModule
	Out           *nn.LinearModule

	Flat        int64
	DropoutRate float64

	// Rand draws dropout masks. Device is where the masks are placed and
	// follows the tensors when compiled onto a device.
	Rand   *rand.Rand
	Device torch.Device
}

// featureDims returns the spatial size left after both conv+pool stages.
func featureDims(width, height int) (int, int) {
	stage := func(s int) int {
		s = pooled(s-conv1Kernel+1, pool1Size)
		return pooled(s-conv2Kernel+1, pool2Size)
	}
	return stage(width), stage(height)
}

func pooled(s, k int) int {
	if s < k {
		return 0
	}
	return (s-k)/k + 1
}

func newTrafficNet(cfg config.Config) (*TrafficNet, error) {
	w, h := featureDims(cfg.ImageWidth, cfg.ImageHeight)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d images are too small for the conv stack",
			ErrModelConfig, cfg.ImageWidth, cfg.ImageHeight)
	}

	flat := int64(conv2Filters * w * h)
	r := &TrafficNet{
		Conv1:       nn.Conv2d(dataset.Channels, conv1Filters, conv1Kernel, 1, 0, 1, 1, true, "zeros"),
		Conv2:       nn.Conv2d(conv1Filters, conv2Filters, conv2Kernel, 1, 0, 1, 1, true, "zeros"),
		FC1:         nn.Linear(flat, hiddenUnits[0], true),
		FC2:         nn.Linear(hiddenUnits[0], hiddenUnits[1], true),
		FC3:         nn.Linear(hiddenUnits[1], hiddenUnits[2], true),
		Out:         nn.Linear(hiddenUnits[2], int64(cfg.NumCategories), true),
		Flat:        flat,
		DropoutRate: cfg.DropoutRate,
		Rand:        rand.New(rand.NewSource(cfg.Seed)),
		Device:      torch.NewDevice("cpu"),
	}
	r.Init(r)
	return r, nil
}

// Forward maps an NCHW batch to per-category log-probabilities. Dropout is
// only applied when training is set.
func (n *TrafficNet) Forward(x torch.Tensor, training bool) torch.Tensor {
	x = torch.Relu(n.Conv1.Forward(x))
	x = F.MaxPool2d(x, []int64{pool1Size, pool1Size}, []int64{pool1Size, pool1Size}, []int64{0, 0}, []int64{1, 1}, false)
	x = torch.Relu(n.Conv2.Forward(x))
	x = F.MaxPool2d(x, []int64{pool2Size, pool2Size}, []int64{pool2Size, pool2Size}, []int64{0, 0}, []int64{1, 1}, false)
	x = x.View(-1, n.Flat)
	x = torch.Relu(n.FC1.Forward(x))
	x = torch.Relu(n.FC2.Forward(x))
	x = torch.Relu(n.FC3.Forward(x))
	x = n.dropout(x, training)
	return n.Out.Forward(x).LogSoftmax(1)
}

// dropout zeroes each activation with probability DropoutRate and scales the
// survivors by 1/(1-DropoutRate). Outside training x is returned unchanged.
func (n *TrafficNet) dropout(x torch.Tensor, training bool) torch.Tensor {
	if !training || n.DropoutRate == 0 {
		return x
	}
	shape := x.Shape()
	size := int64(1)
	for _, d := range shape {
		size *= d
	}
	keep := 1 - n.DropoutRate
	scale := float32(1 / keep)
	mask := make([]float32, size)
	for i := range mask {
		if n.Rand.Float64() < keep {
			mask[i] = scale
		}
	}
	m := torch.NewTensor(mask).View(shape...)
	return torch.Mul(x, m.To(n.Device, x.Dtype()))
}

// Classifier is a TrafficNet compiled with categorical cross-entropy, Adam
// and an accuracy metric.
type Classifier struct {
	net    *TrafficNet
	opt    torch.Optimizer
	cfg    config.Config
	device torch.Device
	rng    *rand.Rand
	epochs int

	// Progress receives a progress bar per training epoch. Nil disables it.
	Progress io.Writer
}

var _ Model = (*Classifier)(nil)

// NewModel returns an untrained, compiled classifier for cfg's image size
// and category count, placed on device.
func NewModel(cfg config.Config, device torch.Device) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelConfig, err)
	}
	if cfg.Seed != 0 {
		initializer.ManualSeed(cfg.Seed)
	}

	net, err := newTrafficNet(cfg)
	if err != nil {
		return nil, err
	}
	return compile(net, cfg, device), nil
}

func compile(net *TrafficNet, cfg config.Config, device torch.Device) *Classifier {
	net.To(device)
	net.Device = device
	opt := torch.Adam(cfg.LearningRate, 0.9, 0.999, 0)
	opt.AddParameters(net.Parameters())

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	net.Rand = rng
	return &Classifier{
		net:    net,
		opt:    opt,
		cfg:    cfg,
		device: device,
		rng:    rng,
	}
}

// OutputUnits is the width of the softmax layer.
func (c *Classifier) OutputUnits() int {
	return int(c.net.Out.Weight.Shape()[0])
}

func (c *Classifier) Config() config.Config {
	return c.cfg
}

func (c *Classifier) Release() {
	c.net = nil
	torch.GC()
}
