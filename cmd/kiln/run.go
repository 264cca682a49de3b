package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/kiln/internal/inference"
	"github.com/samcharles93/kiln/internal/logger"
)

func runCmd() *cli.Command {
	var (
		prompt     string
		candidates int64
		steps      int64
		temp       float64
		topK       int64
		topP       float64
		seed       int64
		noStream   bool
	)

	flags := append([]cli.Flag{}, engineFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text",
			Destination: &prompt,
		},
		&cli.Int64Flag{
			Name:        "candidates",
			Aliases:     []string{"N"},
			Usage:       "number of candidates to generate",
			Value:       1,
			Destination: &candidates,
		},
		&cli.Int64Flag{
			Name:        "steps",
			Aliases:     []string{"n", "num-tokens"},
			Usage:       "number of tokens to generate (default -1 = until stop or context)",
			Value:       -1,
			Destination: &steps,
		},
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature", "t"},
			Usage:       "sampling temperature",
			Value:       0.8,
			Destination: &temp,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Aliases:     []string{"top_k", "topk"},
			Usage:       "top-k sampling parameter",
			Value:       40,
			Destination: &topK,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Aliases:     []string{"top_p", "topp"},
			Usage:       "top-p sampling parameter",
			Value:       0.95,
			Destination: &topP,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling seed (-1 = random)",
			Value:       -1,
			Destination: &seed,
		},
		&cli.StringSliceFlag{
			Name:  "stop",
			Usage: "stop sequence, repeatable",
		},
		&cli.BoolFlag{
			Name:        "no-stream",
			Usage:       "print the full result at the end instead of streaming",
			Destination: &noStream,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Generate text from a prompt",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyEngineConfig(cmd, cfg)

			if prompt == "" {
				return cli.Exit("error: --prompt is required", 1)
			}

			engine := inference.NewEngine(inference.Config{
				Hidden:     int(hidden),
				MaxContext: int(maxContext),
				Seed:       engineSeed,
			})

			nCand := int(candidates)
			nSteps := int(steps)
			nTopK := int(topK)
			req := inference.ResolveRequest(prompt, inference.RequestOptions{
				Candidates:  &nCand,
				Steps:       &nSteps,
				Seed:        &seed,
				Temperature: &temp,
				TopK:        &nTopK,
				TopP:        &topP,
				Stop:        cmd.StringSlice("stop"),
			}, genDefaults(cfg))

			var stream inference.StreamFunc
			if !noStream && nCand == 1 {
				stream = func(delta string) {
					_, _ = fmt.Fprint(os.Stdout, delta)
				}
			}

			result, err := engine.Generate(ctx, &req, stream)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: generate: %v", err), 1)
			}

			if stream != nil {
				fmt.Println()
			} else {
				for i, text := range result.Texts {
					if len(result.Texts) > 1 {
						fmt.Printf("--- candidate %d ---\n", i)
					}
					fmt.Println(text)
				}
			}

			log.Info("generation finished",
				"finish_reason", result.FinishReason,
				"prompt_tokens", result.Stats.PromptTokens,
				"tokens", result.Stats.TokensGenerated,
				"decode_tps", fmt.Sprintf("%.1f", result.Stats.DecodeTPS),
			)
			return nil
		},
	}
}
