package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/kiln/internal/benchmark"
	"github.com/samcharles93/kiln/internal/executor"
	"github.com/samcharles93/kiln/internal/logger"
	"github.com/samcharles93/kiln/internal/pipeline"
	"github.com/samcharles93/kiln/internal/stoptoken"
	"github.com/samcharles93/kiln/internal/tensor"
	"github.com/samcharles93/kiln/internal/tokenizer"
)

func benchmarkCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		prompt     string
		steps      int64
	)

	flags := append([]cli.Flag{}, engineFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       3,
			Destination: &benchRuns,
		},
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text for benchmarking",
			Value:       "The quick brown fox jumps over the lazy dog.",
			Destination: &prompt,
		},
		&cli.Int64Flag{
			Name:        "steps",
			Aliases:     []string{"n"},
			Usage:       "number of tokens to decode per run",
			Value:       128,
			Destination: &steps,
		},
	)

	return &cli.Command{
		Name:  "benchmark",
		Usage: "Run standardized pipeline benchmarks",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyEngineConfig(cmd, cfg)

			tok := tokenizer.ByteVocab()
			promptIDs, err := tok.Encode(prompt)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: encode prompt: %v", err), 1)
			}

			fmt.Println("=== Kiln Benchmark ===")
			fmt.Printf("go:       %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Printf("prompt:   %d tokens\n", len(promptIDs))
			fmt.Printf("decode:   %d tokens per run\n", steps)

			oneRun := func() (*benchmark.Info, error) {
				exec := executor.NewToyExecutor(executor.ToyConfig{
					Vocab:     tok.Size(),
					Hidden:    int(hidden),
					MaxTokens: len(promptIDs) + int(steps) + 1,
					Seed:      engineSeed,
				})
				bench := benchmark.NewInfo(benchmark.Params{NumDecodeTokens: int(steps)})
				inputs := executor.Inputs{
					Text: &executor.TextData{TokenIDs: tensor.FromInt32(promptIDs, 1, len(promptIDs))},
				}
				if _, err := pipeline.Prefill(exec, inputs, true, bench); err != nil {
					return nil, err
				}
				if _, err := pipeline.Decode(exec, tok, stoptoken.NewDetector(1), bench, nil); err != nil {
					return nil, err
				}
				return bench, nil
			}

			for i := int64(0); i < warmupRuns; i++ {
				if _, err := oneRun(); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run: %v", err), 1)
				}
				log.Debug("warmup run finished", "run", i+1)
			}

			var prefillTPS, decodeTPS float64
			for i := int64(0); i < benchRuns; i++ {
				bench, err := oneRun()
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run: %v", err), 1)
				}
				prefill := bench.PrefillTurns()[0]
				decode := bench.DecodeTurns()[0]
				fmt.Printf("run %d: prefill %6.1f tok/s, decode %6.1f tok/s\n",
					i+1, prefill.TokensPerSecond(), decode.TokensPerSecond())
				prefillTPS += prefill.TokensPerSecond()
				decodeTPS += decode.TokensPerSecond()
			}

			if benchRuns > 0 {
				fmt.Printf("mean:  prefill %6.1f tok/s, decode %6.1f tok/s\n",
					prefillTPS/float64(benchRuns), decodeTPS/float64(benchRuns))
			}
			return nil
		},
	}
}
