package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/app"
	"github.com/JakeFAU/directory-crawler/internal/config"
)

type fakeRunner struct {
	cfg      config.Config
	keywords []string
	summary  app.RunSummary
	err      error
	closed   bool
}

func (f *fakeRunner) Run(_ context.Context, keyword string) (app.RunSummary, error) {
	f.keywords = append(f.keywords, keyword)
	return f.summary, f.err
}

func (f *fakeRunner) Status() any { return app.Status{Stage: app.StageIdle} }

func (f *fakeRunner) Close() { f.closed = true }

func useRunner(t *testing.T, r *fakeRunner) {
	t.Helper()
	prev := newRunner
	newRunner = func(_ context.Context, cfg config.Config, _ *zap.Logger) (Runner, error) {
		r.cfg = cfg
		return r, nil
	}
	t.Cleanup(func() { newRunner = prev })
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "output:\n  path: " + filepath.Join(t.TempDir(), "out.csv") + "\nlogging:\n  development: false\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootPromptsForKeyword(t *testing.T) {
	r := &fakeRunner{summary: app.RunSummary{Status: app.StatusSucceeded, OutputPath: "out.csv"}}
	useRunner(t, r)

	out, err := execute(t, "  metall \n", "--config", writeConfig(t))
	require.NoError(t, err)
	require.Contains(t, out, keywordPrompt)
	require.Contains(t, out, "[INFO] Results saved to out.csv")
	require.Equal(t, []string{"metall"}, r.keywords)
	require.True(t, r.closed)
}

func TestRootFlagOverrides(t *testing.T) {
	r := &fakeRunner{summary: app.RunSummary{Status: app.StatusNoResults}}
	useRunner(t, r)
	output := filepath.Join(t.TempDir(), "companies.xlsx")

	out, err := execute(t, "", "--config", writeConfig(t), "--keyword", "stahl", "--output", output, "--workers", "7")
	require.NoError(t, err)
	require.NotContains(t, out, keywordPrompt)
	require.Contains(t, out, "No results found")
	require.Equal(t, output, r.cfg.Output.Path)
	require.Equal(t, 7, r.cfg.Enrich.Concurrency)
}

func TestRootRejectsBadOutputFlag(t *testing.T) {
	useRunner(t, &fakeRunner{})

	_, err := execute(t, "", "--config", writeConfig(t), "--keyword", "stahl", "--output", "out.txt")
	require.Error(t, err)
}

func TestRootEmptyKeyword(t *testing.T) {
	r := &fakeRunner{}
	useRunner(t, r)

	_, err := execute(t, "\n", "--config", writeConfig(t))
	require.Error(t, err)
	require.Empty(t, r.keywords)
}

func TestRootMissingConfig(t *testing.T) {
	useRunner(t, &fakeRunner{})

	_, err := execute(t, "", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "--keyword", "x")
	require.ErrorContains(t, err, "not found")
}

func TestRootRunFailure(t *testing.T) {
	r := &fakeRunner{summary: app.RunSummary{Status: app.StatusFailed}, err: errors.New("chrome not found")}
	useRunner(t, r)

	out, err := execute(t, "", "--config", writeConfig(t), "--keyword", "stahl")
	require.Error(t, err)
	require.Contains(t, out, "[ERROR] chrome not found")
	require.True(t, r.closed)
}

func TestRootSearchFailureIsNotFatal(t *testing.T) {
	r := &fakeRunner{summary: app.RunSummary{Status: app.StatusFailed, Error: "search failed: timeout"}}
	useRunner(t, r)

	out, err := execute(t, "", "--config", writeConfig(t), "--keyword", "stahl")
	require.NoError(t, err)
	require.Contains(t, out, "an error occurred during the search")
}

func TestRootSaveFailureLine(t *testing.T) {
	r := &fakeRunner{summary: app.RunSummary{Status: app.StatusSucceeded, Error: "save results: disk full"}}
	useRunner(t, r)

	out, err := execute(t, "", "--config", writeConfig(t), "--keyword", "stahl")
	require.NoError(t, err)
	require.Contains(t, out, "[ERROR] Failed to save results: save results: disk full")
	require.NotContains(t, out, "Results saved to")
}
