package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/screener-go/internal/app"
)

func newRankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   `rank "JOB DESCRIPTION"`,
		Short: "Rank the uploaded resumes against a job description",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRank,
	}
}

func newInsightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insights",
		Short: "Show statistics of the latest ranking",
		Args:  cobra.NoArgs,
		RunE:  runInsights,
	}
}

func runRank(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := cliContextFrom(ctx)

	jd := strings.TrimSpace(strings.Join(args, " "))
	if jd == "" {
		return fmt.Errorf("job description is empty")
	}

	a, err := cc.openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer cc.closeApp(a)

	ranked, err := a.Client.Rank(ctx, jd)
	if err != nil {
		return fmt.Errorf("ranking: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, ranked)
	}

	if len(ranked) == 0 {
		cc.Statusf("No resumes to rank. Upload some first.\n")

		return nil
	}

	rows := make([][]string, 0, len(ranked))
	for i, r := range ranked {
		if r.Error != "" {
			rows = append(rows, []string{strconv.Itoa(i + 1), r.File, "-", "-", "-", "error: " + r.Error})

			continue
		}

		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			r.File,
			formatScore(r.HybridScore),
			formatScore(r.EmbeddingScore),
			formatScore(r.TFIDFScore),
			strings.Join(r.Skills, ", "),
		})
	}

	printTable(cc.Stdout, []string{"#", "FILE", "SCORE", "SEMANTIC", "KEYWORD", "SKILLS"}, rows)

	return nil
}

func runInsights(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := cliContextFrom(ctx)

	a, err := cc.openApp(ctx, app.Options{})
	if err != nil {
		return err
	}
	defer cc.closeApp(a)

	ins, err := a.Client.Insights(ctx)
	if err != nil {
		return fmt.Errorf("loading insights: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, ins)
	}

	w := cc.Stdout
	fmt.Fprintf(w, "Resumes:        %d\n", ins.TotalResumes)
	fmt.Fprintf(w, "Average score:  %s\n", formatScore(ins.AverageScore))
	fmt.Fprintf(w, "Matches:        %d high, %d medium, %d low\n", ins.HighMatches, ins.MediumMatches, ins.LowMatches)

	if len(ins.SkillsDistribution) > 0 {
		fmt.Fprintln(w)

		rows := make([][]string, 0, len(ins.SkillsDistribution))
		for _, s := range ins.SkillsDistribution {
			rows = append(rows, []string{s.Skill, strconv.Itoa(s.Count)})
		}

		printTable(w, []string{"SKILL", "RESUMES"}, rows)
	}

	if len(ins.ScoreDistribution) > 0 {
		fmt.Fprintln(w)

		rows := make([][]string, 0, len(ins.ScoreDistribution))
		for _, b := range ins.ScoreDistribution {
			rows = append(rows, []string{b.Range, strconv.Itoa(b.Count)})
		}

		printTable(w, []string{"SCORE", "RESUMES"}, rows)
	}

	return nil
}
