package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"kernelboard/model"
)

const (
	colUser  = 20
	colScore = 10
	colTime  = 18
)

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, err
	}

	if res.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return res.StatusCode, fmt.Errorf("%s", apiErr.Error)
		}
		return res.StatusCode, fmt.Errorf("server returned %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return res.StatusCode, err
		}
	}
	return res.StatusCode, nil
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func joinTargets(targets []model.Target) string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func formatBoardRow(b model.LeaderboardSummary) string {
	return fmt.Sprintf("%-*s %-*s %s",
		colUser, b.Name,
		colScore, b.Deadline.Format("2006-01-02"),
		joinTargets(b.Targets))
}

func printReports(reports []model.TargetReport) {
	header := color.New(color.FgCyan, color.Bold)
	header.Printf("%-*s %-*s %-*s\n", colUser, "TARGET", colScore, "SCORE", colTime, "SUBMISSION")
	for _, r := range reports {
		if r.Ok() {
			fmt.Printf("%-*s %-*s %-*s\n",
				colUser, r.Target,
				colScore, color.GreenString("%.4f", r.Score),
				colTime, r.SubmissionID.String()[:8])
			continue
		}
		fmt.Printf("%-*s %-*s %-*s\n",
			colUser, r.Target,
			colScore, color.RedString("failed"),
			colTime, r.Err)
	}
}

func main() {
	var serverURL string

	app := &cli.Command{
		Name:  "kernelboard",
		Usage: "manage kernel leaderboards and submissions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "server",
				Value:       "http://localhost:8080",
				Usage:       "kernelboard API address",
				Sources:     cli.EnvVars("KERNELBOARD_SERVER"),
				Destination: &serverURL,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "create a leaderboard",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "deadline", Required: true, Usage: "YYYY-MM-DD or YYYY-MM-DD HH:MM"},
					&cli.StringFlag{Name: "reference", Required: true, Usage: "path to the reference kernel"},
					&cli.StringSliceFlag{Name: "target", Required: true, Usage: "GPU target, repeatable"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("leaderboard name required")
					}
					ref, err := os.ReadFile(cmd.String("reference"))
					if err != nil {
						return err
					}
					body := map[string]any{
						"name":          name,
						"deadline":      cmd.String("deadline"),
						"referenceCode": string(ref),
						"targets":       cmd.StringSlice("target"),
					}
					if _, err := newAPIClient(serverURL).do(ctx, http.MethodPost, "/leaderboard", body, nil); err != nil {
						return err
					}
					color.Green("Leaderboard %q created.", name)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "list leaderboards",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					var boards []model.LeaderboardSummary
					if _, err := newAPIClient(serverURL).do(ctx, http.MethodGet, "/leaderboard", nil, &boards); err != nil {
						return err
					}
					header := color.New(color.FgCyan, color.Bold)
					header.Printf("%-*s %-*s %s\n", colUser, "NAME", colScore, "DEADLINE", "TARGETS")
					for _, b := range boards {
						fmt.Println(formatBoardRow(b))
					}
					return nil
				},
			},
			{
				Name:      "submissions",
				Usage:     "show the ranking for one leaderboard target",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "target", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("leaderboard name required")
					}
					var subs []model.Submission
					path := fmt.Sprintf("/leaderboard/%s/submissions?target=%s", name, cmd.String("target"))
					if _, err := newAPIClient(serverURL).do(ctx, http.MethodGet, path, nil, &subs); err != nil {
						return err
					}
					header := color.New(color.FgCyan, color.Bold)
					header.Printf("%-*s %-*s %-*s\n", colUser, "USER", colScore, "SCORE", colTime, "SUBMITTED")
					for _, s := range subs {
						score := color.GreenString("%.4f", s.Score)
						if s.Score == model.ScoreFailed {
							score = color.RedString("failed")
						}
						fmt.Printf("%-*s %-*s %-*s\n",
							colUser, s.UserID,
							colScore, score,
							colTime, s.SubmittedAt.Format("2006-01-02 15:04"))
					}
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "delete a leaderboard and all its submissions",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("leaderboard name required")
					}
					confirmation, err := prompt(fmt.Sprintf("Type the leaderboard name (%s) to confirm deletion: ", name))
					if err != nil {
						return err
					}
					var out struct {
						SubmissionsDeleted int64 `json:"submissionsDeleted"`
					}
					body := map[string]string{"confirmation": confirmation}
					path := "/leaderboard/" + name
					if _, err := newAPIClient(serverURL).do(ctx, http.MethodDelete, path, body, &out); err != nil {
						return err
					}
					color.Yellow("Deleted %q along with %d submissions.", name, out.SubmissionsDeleted)
					return nil
				},
			},
			{
				Name:      "submit",
				Usage:     "submit a kernel file to a leaderboard",
				ArgsUsage: "<leaderboard> <file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true, Usage: "submitting user id"},
					&cli.StringFlag{Name: "backend", Value: string(model.BackendCI), Usage: "runner backend"},
					&cli.StringSliceFlag{Name: "target", Usage: "skip the interactive picker, repeatable"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runSubmit(ctx, newAPIClient(serverURL), cmd)
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func runSubmit(ctx context.Context, client *apiClient, cmd *cli.Command) error {
	name := cmd.Args().First()
	file := cmd.Args().Get(1)
	if name == "" || file == "" {
		return fmt.Errorf("usage: submit <leaderboard> <file>")
	}

	code, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	targets := cmd.StringSlice("target")
	req := map[string]any{
		"leaderboardName": name,
		"userId":          cmd.String("user"),
		"fileName":        filepath.Base(file),
		"code":            code,
		"backend":         cmd.String("backend"),
		"targets":         targets,
	}

	// fixed targets run within the request and answer with reports directly
	if len(targets) > 0 {
		var out struct {
			Reports []model.TargetReport `json:"reports"`
		}
		if _, err := client.do(ctx, http.MethodPost, "/submission", req, &out); err != nil {
			return err
		}
		printReports(out.Reports)
		return nil
	}

	var opened struct {
		SessionID string         `json:"sessionId"`
		Targets   []model.Target `json:"targets"`
	}
	if _, err := client.do(ctx, http.MethodPost, "/submission", req, &opened); err != nil {
		return err
	}

	fmt.Println("Available targets:")
	for i, t := range opened.Targets {
		fmt.Printf("  %d) %s\n", i+1, t)
	}
	raw, err := prompt("Pick targets (comma separated names): ")
	if err != nil {
		return err
	}
	var picked []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			picked = append(picked, part)
		}
	}

	choice := map[string]any{"userId": cmd.String("user"), "targets": picked}
	if _, err := client.do(ctx, http.MethodPost, "/selection/"+opened.SessionID, choice, nil); err != nil {
		return err
	}

	fmt.Println("Running...")
	for {
		var out struct {
			Reports []model.TargetReport `json:"reports"`
		}
		status, err := client.do(ctx, http.MethodGet, "/submission/"+opened.SessionID+"/reports", nil, &out)
		if err != nil {
			return err
		}
		if status == http.StatusOK {
			printReports(out.Reports)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
