package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xianggong/multi2sim/config"
)

var _ = Describe("Default", func() {
	It("returns a configuration that validates cleanly", func() {
		Expect(config.Default().Validate()).NotTo(HaveOccurred())
	})

	It("models a 64-lane, four-pool Southern Islands compute unit", func() {
		cfg := config.Default()
		Expect(cfg.WavefrontSize).To(Equal(64))
		Expect(cfg.NumWavefrontPools).To(Equal(4))
	})
})

var _ = Describe("Validate", func() {
	It("rejects a non-positive compute unit count", func() {
		cfg := config.Default()
		cfg.NumComputeUnits = 0
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects a non-positive fetch width", func() {
		cfg := config.Default()
		cfg.FetchWidth = 0
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects an M2S_WG_LIMIT above the hardware limit", func() {
		cfg := config.Default()
		cfg.MaxWorkGroupsPerPool = 2
		cfg.NumWavefrontPools = 2
		cfg.Env.WorkGroupLimit = 5
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("accepts an M2S_WG_LIMIT within the hardware limit", func() {
		cfg := config.Default()
		cfg.MaxWorkGroupsPerPool = 2
		cfg.NumWavefrontPools = 2
		cfg.Env.WorkGroupLimit = 4
		Expect(cfg.Validate()).NotTo(HaveOccurred())
	})
})

var _ = Describe("Clone", func() {
	It("returns an independent copy", func() {
		cfg := config.Default()
		clone := cfg.Clone()

		clone.NumComputeUnits = cfg.NumComputeUnits + 1

		Expect(clone.NumComputeUnits).NotTo(Equal(cfg.NumComputeUnits))
	})
})

var _ = Describe("LoadFile and SaveFile", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "multi2sim-config")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("round-trips a modified configuration through JSON", func() {
		cfg := config.Default()
		cfg.NumComputeUnits = 8
		cfg.MaxCycles = 12345

		path := filepath.Join(dir, "cfg.json")
		Expect(cfg.SaveFile(path)).NotTo(HaveOccurred())

		loaded, err := config.LoadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.NumComputeUnits).To(Equal(8))
		Expect(loaded.MaxCycles).To(Equal(uint64(12345)))
	})

	It("keeps Default's values for fields omitted from the file", func() {
		path := filepath.Join(dir, "partial.json")
		Expect(os.WriteFile(path, []byte(`{"NumComputeUnits": 2}`), 0o644)).NotTo(HaveOccurred())

		loaded, err := config.LoadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.WavefrontSize).To(Equal(config.Default().WavefrontSize))
	})

	It("rejects a file whose contents fail validation", func() {
		path := filepath.Join(dir, "invalid.json")
		Expect(os.WriteFile(path, []byte(`{"NumComputeUnits": 0}`), 0o644)).NotTo(HaveOccurred())

		_, err := config.LoadFile(path)
		Expect(err).To(HaveOccurred())
	})

	It("reports an error for a missing file", func() {
		_, err := config.LoadFile(filepath.Join(dir, "missing.json"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("EnvFromEnvironment", func() {
	It("defaults the TwinKernel mix ratio to 1.0 and the greater-than pattern", func() {
		env := config.EnvFromEnvironment()
		Expect(env.MixRatio).To(Equal(1.0))
		Expect(env.MixPatternSel).To(Equal(config.MixGreaterThan))
	})

	It("picks up M2S_RANDOM_CU", func() {
		os.Setenv("M2S_RANDOM_CU", "true")
		defer os.Unsetenv("M2S_RANDOM_CU")

		Expect(config.EnvFromEnvironment().RandomCU).To(BeTrue())
	})

	It("ignores an unparsable M2S_WG_LIMIT", func() {
		os.Setenv("M2S_WG_LIMIT", "not-a-number")
		defer os.Unsetenv("M2S_WG_LIMIT")

		Expect(config.EnvFromEnvironment().WorkGroupLimit).To(Equal(0))
	})
})
