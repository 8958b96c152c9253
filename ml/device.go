package ml

import (
	"github.com/klauspost/cpuid/v2"
	torch "github.com/wangkuiyi/gotorch"

	"traffic/util"
)

// PickDevice returns CUDA when libtorch can see a GPU, the CPU otherwise.
func PickDevice() torch.Device {
	if torch.IsCUDAAvailable() {
		util.Logger.Info("CUDA is valid")
		return torch.NewDevice("cuda")
	}
	util.Logger.Info("No CUDA found; CPU only", "cpu", cpuid.CPU.BrandName,
		"cores", cpuid.CPU.PhysicalCores, "threads", cpuid.CPU.LogicalCores,
		"avx2", cpuid.CPU.Supports(cpuid.AVX2))
	return torch.NewDevice("cpu")
}
