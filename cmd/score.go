package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/guardian-card/guardian-core/internal/model"
	"github.com/guardian-card/guardian-core/internal/scoring"
)

var (
	scoreFile        string
	scoreConcurrency int
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score transactions read as JSON lines",
	Long:  "Reads one ScoreRequest JSON object per line from --file (or stdin) and writes one result per line in input order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "score")
		if err != nil {
			return err
		}
		defer env.Close()

		in := io.Reader(os.Stdin)
		if scoreFile != "" && scoreFile != "-" {
			f, err := os.Open(scoreFile)
			if err != nil {
				return eris.Wrapf(err, "open %s", scoreFile)
			}
			defer f.Close() //nolint:errcheck
			in = f
		}

		reqs, err := readScoreRequests(in)
		if err != nil {
			return err
		}
		results := scoreBatch(ctx, env.Scorer, reqs, scoreConcurrency)
		return writeJSONLines(cmd.OutOrStdout(), results)
	},
}

// scoreResult is one output line: a response or the error for that input.
type scoreResult struct {
	Line     int                  `json:"line"`
	Response *model.ScoreResponse `json:"response,omitempty"`
	Error    string               `json:"error,omitempty"`
}

func readScoreRequests(r io.Reader) ([]model.ScoreRequest, error) {
	var reqs []model.ScoreRequest
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var req model.ScoreRequest
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			return nil, eris.Wrapf(err, "parse line %d", line)
		}
		reqs = append(reqs, req)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read transactions")
	}
	return reqs, nil
}

// scoreBatch scores reqs with bounded concurrency. Per-user serialisation
// happens inside the scorer, so one user's charges still apply in some
// order even when they run on different workers.
func scoreBatch(ctx context.Context, scorer *scoring.Scorer, reqs []model.ScoreRequest, concurrency int) []scoreResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]scoreResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			results[i].Line = i + 1
			resp, err := scorer.Score(gctx, req)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Response = &resp
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func writeJSONLines[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return eris.Wrap(err, "write output")
		}
	}
	return nil
}

func init() {
	scoreCmd.Flags().StringVar(&scoreFile, "file", "", "JSON lines file of transactions (default stdin)")
	scoreCmd.Flags().IntVar(&scoreConcurrency, "concurrency", 1, "number of transactions scored in parallel")
	rootCmd.AddCommand(scoreCmd)
}
