// Command m2sim runs the timing core against a config file and a small
// built-in demo kernel, the way zeonica's verify/cmd tools wire a core
// builder up to a runnable main. Loading real kernels (ISA binaries, driver
// API calls) is outside this module's scope; the demo kernel below exists
// only to exercise the full Gpu/ComputeUnit/ExecutionUnit pipeline end to
// end from a single binary.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/spf13/cobra"
	"github.com/xianggong/multi2sim/config"
	"github.com/xianggong/multi2sim/emu"
	"github.com/xianggong/multi2sim/gpu"
	"github.com/xianggong/multi2sim/memory"
)

var (
	configPath    string
	numWorkGroups int
	workItemsPerWG int
)

func main() {
	root := &cobra.Command{
		Use:   "m2sim",
		Short: "m2sim runs the Southern-Islands-style compute-unit timing core",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "dispatch the demo kernel and run until it drains",
		RunE:  runSim,
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to a JSON timing config file (defaults built in)")
	runCmd.Flags().IntVar(&numWorkGroups, "work-groups", 8, "number of work-groups to dispatch")
	runCmd.Flags().IntVar(&workItemsPerWG, "work-items-per-group", 256, "work-items per work-group")

	dumpConfigCmd := &cobra.Command{
		Use:   "dump-config",
		Short: "write the default timing config to stdout as JSON",
		RunE:  dumpConfig,
	}

	root.AddCommand(runCmd, dumpConfigCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.LoadFile(configPath)
}

func dumpConfig(_ *cobra.Command, _ []string) error {
	data, err := json.MarshalIndent(config.Default(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runSim(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("m2sim: %w", err)
	}

	engine := sim.NewSerialEngine()

	scalarCache := memory.NewFixedLatencyCache(engine, 1*sim.GHz, cfg.Scalar.ReadLatency, cfg.Scalar.MaxInflightMemAccess)
	ldsCache := memory.NewFixedLatencyCache(engine, 1*sim.GHz, cfg.LDS.ReadLatency, cfg.LDS.MaxInflightMemAccess)
	vectorCache := memory.NewFixedLatencyCache(engine, 1*sim.GHz, cfg.VectorMemory.ReadLatency, cfg.VectorMemory.MaxInflightMemAccess)

	g := gpu.NewBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithConfig(cfg).
		WithMMU(memory.IdentityMMU{}).
		WithCacheFactories(
			func(int) memory.Cache { return scalarCache },
			func(int) memory.Cache { return ldsCache },
			func(int) memory.Cache { return vectorCache },
		).
		Build("GPU")

	_, err = g.MapNDRange(gpu.KernelLaunch{
		KernelName:       "demo",
		NumWorkGroups:    numWorkGroups,
		WorkItemsPerWG:   workItemsPerWG,
		VGPRPerWorkItem:  16,
		SGPRPerWavefront: 8,
		LDSPerWG:         0,
		MakeWavefront: func(_, _ int) emu.Wavefront {
			return emu.NewStub(demoProgram(), cfg.WavefrontSize)
		},
	})
	if err != nil {
		return fmt.Errorf("m2sim: dispatch failed: %w", err)
	}

	engine.Run()

	g.FlushStats()

	log.Printf("m2sim: drained after %d cycles, %d wavefronts completed", g.Cycle(), g.CompletedWavefronts())
	return nil
}

// demoProgram is a short scalar-ALU, vector-ALU, branch, vector-ALU sequence
// ending in a scalar end-of-program instruction that is the wavefront's last
// instruction. It exercises the scalar, SIMD and branch units; it issues no
// LDS or vector-memory instruction.
func demoProgram() []emu.ScriptedInstruction {
	return []emu.ScriptedInstruction{
		{Format: emu.FormatScalarALU, Opcode: 1, Disasm: "s_mov_b32"},
		{Format: emu.FormatVOP2, Opcode: 2, Disasm: "v_add_f32"},
		{Format: emu.FormatBranch, Opcode: 3, Disasm: "s_cbranch"},
		{Format: emu.FormatVOP1, Opcode: 4, Disasm: "v_mov_b32"},
		{
			Format: emu.FormatScalarALU, Opcode: 5, Disasm: "s_endpgm",
			SideEffects: emu.SideEffects{WavefrontLastInstruction: true},
		},
	}
}
