package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"deployment-manager/internal/bitbucket"
	"deployment-manager/internal/config"
	"deployment-manager/internal/domain"
	"deployment-manager/internal/pipeline"
	"deployment-manager/internal/remote"
	"deployment-manager/internal/sas"
)

type options struct {
	repo      string
	env       string
	configDir string
	merge     bool
	mock      bool
}

func parseOptions() (options, error) {
	var opts options
	flag.StringVar(&opts.repo, "repo", "", "repository to deploy")
	flag.StringVar(&opts.env, "env", "", "target environment (DEV, UAT, PROD)")
	flag.StringVar(&opts.configDir, "config", "configs", "configuration directory")
	flag.BoolVar(&opts.merge, "merge", false, "merge the deployed pull requests on Bitbucket")
	flag.BoolVar(&opts.mock, "mock", false, "dry run against canned pull requests, without SAS steps")
	flag.Parse()

	if opts.repo == "" {
		return opts, fmt.Errorf("-repo is required")
	}
	if opts.env == "" {
		return opts, fmt.Errorf("-env is required")
	}
	opts.env = strings.ToUpper(opts.env)
	return opts, nil
}

func uniqueWorkDirName() string {
	return fmt.Sprintf("%s%s_%s", pipeline.DeployDirPrefix, time.Now().Format("20060102_150405"), uuid.NewString())
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	opts, err := parseOptions()
	if err != nil {
		flag.Usage()
		logger.Fatal(err)
	}

	if err := run(context.Background(), opts, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, opts options, logger *logrus.Logger) error {
	if opts.mock {
		return runMock(ctx, opts, logger)
	}

	cfg, err := config.Load(opts.configDir, opts.env)
	if err != nil {
		return err
	}

	exec, err := remote.NewSSHExecutor(cfg.SSHHost, cfg.DeployUser, logger)
	if err != nil {
		return fmt.Errorf("connect to deploy host: %w", err)
	}
	defer exec.Close()

	workDir := cfg.RuntimeBaseDir + "/" + uniqueWorkDirName()
	if err := exec.Mkdir(ctx, workDir); err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	logger.WithField("dir", workDir).Info("Created deploy work directory")

	client := bitbucket.NewClient(cfg.BitbucketAPIToken, logger)
	platform := bitbucket.New(cfg, client, opts.repo, logger)
	factory := sas.NewBatchFactory(exec, cfg.RemoteSASPath, workDir, logger)

	prs, err := pipeline.AnalyzePullRequests(ctx, client, platform, cfg.Approvals, logger)
	if err != nil {
		return err
	}

	merger := pipeline.NewMerger(exec, cfg.RemoteGitPath, workDir, logger)
	cs, err := merger.MergeLocal(ctx, platform.CloneURL(), prs)
	if err != nil {
		return err
	}
	if len(cs.Merged) == 0 || len(cs.ChangedFiles) == 0 {
		logger.Info("No changes to deploy")
		return nil
	}

	assembler := pipeline.NewAssembler(exec, workDir, logger)
	if err := assembler.Build(ctx, cs.ChangedFiles); err != nil {
		return err
	}

	if err := pipeline.RunPredeployBash(ctx, exec, workDir, logger); err != nil {
		return err
	}
	if err := pipeline.UpdateModuleCode(ctx, exec, factory, opts.repo, workDir, opts.env, logger); err != nil {
		return err
	}
	if err := pipeline.RefreshDictionaries(ctx, exec, factory, workDir, opts.env, logger); err != nil {
		return err
	}
	if err := pipeline.RunPredeploySAS(ctx, exec, factory, workDir, opts.env, logger); err != nil {
		return err
	}

	if err := pipeline.ExportMetadata(ctx, exec, cfg, workDir, logger); err != nil {
		return err
	}
	if err := pipeline.ImportMetadata(ctx, exec, cfg, workDir, logger); err != nil {
		return err
	}
	if err := pipeline.RedeployJobs(ctx, exec, cfg, workDir, logger); err != nil {
		return err
	}
	pipeline.ReportDeployedFlows(ctx, exec, workDir, logger)

	if err := mergeDeployed(ctx, opts, platform, cs.Merged, logger); err != nil {
		return err
	}

	logger.WithField("dir", workDir).Info("Deploy finished, logs and package kept in the work directory")
	return nil
}

func mergeDeployed(ctx context.Context, opts options, platform bitbucket.Platform, merged []domain.PullRequest, logger *logrus.Logger) error {
	if !opts.merge {
		logger.Info("Skipping remote merge, run with -merge to merge the deployed pull requests")
		return nil
	}
	if opts.env != "PROD" {
		logger.WithField("env", opts.env).Warn("Merging pull requests after a non-PROD deploy")
	}
	return pipeline.MergeRemote(ctx, platform, merged, logger)
}

// runMock exercises discovery, local merge, and package assembly against
// canned pull requests on the local machine. Git commands are stubbed
// and the SAS steps are skipped.
func runMock(ctx context.Context, opts options, logger *logrus.Logger) error {
	logger.Info("Running in mock mode")

	exec := remote.NewMockExecutor(logger)
	workDir := filepath.Join(os.TempDir(), uniqueWorkDirName())
	if err := exec.Mkdir(ctx, workDir); err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	logger.WithField("dir", workDir).Info("Created mock work directory")

	platform := &bitbucket.MockPlatform{}
	prs := bitbucket.SamplePullRequests()
	for _, pr := range prs {
		logger.Info(pr.String())
	}

	merger := pipeline.NewMerger(exec, "git", workDir, logger)
	cs, err := merger.MergeLocal(ctx, platform.CloneURL(), prs)
	if err != nil {
		return err
	}
	if len(cs.Merged) == 0 || len(cs.ChangedFiles) == 0 {
		logger.Info("No changes to deploy")
		return nil
	}

	assembler := pipeline.NewAssembler(exec, workDir, logger)
	if err := assembler.Build(ctx, cs.ChangedFiles); err != nil {
		return err
	}
	if err := pipeline.RunPredeployBash(ctx, exec, workDir, logger); err != nil {
		return err
	}
	logger.Info("Skipping SAS steps in mock mode")

	if opts.merge {
		logger.Info("Skipping remote merge in mock mode")
	}
	logger.WithField("dir", workDir).Info("Mock deploy finished")
	return nil
}
