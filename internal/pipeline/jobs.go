package pipeline

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/config"
	"deployment-manager/internal/remote"
)

var (
	// jobLinePattern picks job names out of the merged metadata object
	// list, e.g. "/Shared Data/jobs/load_customers (Job)".
	jobLinePattern = regexp.MustCompile(`^(.+?)\s*\(\s*Job\s*\)\s*$`)

	deployedFlowPattern = regexp.MustCompile(`^(.+?)\s*\(\s*DeployedFlow\s*\)\s*$`)
)

func metaFileLines(ctx context.Context, exec remote.Executor, workDir string) ([]string, error) {
	metaPath := path.Join(workDir, MetaFileName)
	exists, err := exec.Exists(ctx, metaPath)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", MetaFileName, err)
	}
	if !exists {
		return nil, nil
	}
	content, err := exec.ReadFile(ctx, metaPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", MetaFileName, err)
	}
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// jobsFromMetaFile extracts the job names the metadata object list names.
func jobsFromMetaFile(ctx context.Context, exec remote.Executor, workDir string) ([]string, error) {
	lines, err := metaFileLines(ctx, exec, workDir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var jobs []string
	for _, line := range lines {
		m := jobLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		jobs = append(jobs, name)
	}
	sort.Strings(jobs)
	return jobs, nil
}

// RedeployJobs redeploys the jobs named in the metadata object list on the
// target application server so their deployed code matches the imported
// metadata.
func RedeployJobs(ctx context.Context, exec remote.Executor, cfg *config.Config, workDir string, logger *logrus.Logger) error {
	jobs, err := jobsFromMetaFile(ctx, exec, workDir)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		logger.Info("No jobs to redeploy")
		return nil
	}

	jobsFile := path.Join(workDir, JobsToRedeployName)
	if err := exec.WriteFile(ctx, jobsFile, strings.Join(jobs, "\n")+"\n"); err != nil {
		return fmt.Errorf("write %s: %w", JobsToRedeployName, err)
	}

	required := map[string]string{
		"path_to_deployjobs": cfg.PathToDeployJobs,
		"meta_profile":       cfg.MetaProfile,
		"meta_repo":          cfg.MetaRepo,
		"appserver":          cfg.AppServer,
		"server_machine":     cfg.ServerMachine,
		"server_port":        cfg.ServerPort,
		"deployed_jobs_dir":  cfg.DeployedJobsDir,
		"batch_server":       cfg.BatchServer,
		"display":            cfg.Display,
	}
	var missing []string
	for key, value := range required {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		logger.WithField("missing", strings.Join(missing, ", ")).Warn("Job redeploy not configured, skipping")
		return nil
	}

	logger.WithField("jobs", len(jobs)).Info("Redeploying jobs")
	batchServer := strings.Trim(cfg.BatchServer, `'"`)
	logPath := path.Join(workDir, LogsDirName, "redeploy_jobs.log")
	parts := []string{
		fmt.Sprintf("export DISPLAY=%s;", remote.Quote(cfg.Display)),
		remote.Quote(cfg.PathToDeployJobs),
		"-deploytype REDEPLOY",
		"-profile " + remote.Quote(cfg.MetaProfile),
		"-metarepository " + remote.Quote(cfg.MetaRepo),
		"-appservername " + remote.Quote(cfg.AppServer),
		"-servermachine " + remote.Quote(cfg.ServerMachine),
		"-serverport " + remote.Quote(cfg.ServerPort),
		"-batchserver " + remote.Quote(batchServer),
		"-sourcedir " + remote.Quote(cfg.DeployedJobsDir),
		"-deploymentdir " + remote.Quote(cfg.DeployedJobsDir),
		"-log " + remote.Quote(logPath),
		"-objects",
	}
	for _, job := range jobs {
		parts = append(parts, remote.Quote(job))
	}
	if _, err := exec.Run(ctx, strings.Join(parts, " "), remote.RunOptions{Dir: workDir}); err != nil {
		reportToolLog(ctx, exec, logPath, logger)
		return fmt.Errorf("redeploy jobs: %w", err)
	}
	reportToolLog(ctx, exec, logPath, logger)
	return nil
}

// ReportDeployedFlows lists the deployed flows the metadata object list
// touches; those need a manual refresh on the scheduler. Purely
// informational.
func ReportDeployedFlows(ctx context.Context, exec remote.Executor, workDir string, logger *logrus.Logger) {
	lines, err := metaFileLines(ctx, exec, workDir)
	if err != nil {
		logger.WithError(err).Warn("Cannot read metadata object list for flow report")
		return
	}
	seen := make(map[string]struct{})
	var flows []string
	for _, line := range lines {
		m := deployedFlowPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		full := strings.TrimSpace(m[1])
		name := full[strings.LastIndex(full, "/")+1:]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		flows = append(flows, name)
	}
	if len(flows) == 0 {
		return
	}
	sort.Strings(flows)
	logger.Warn("The following deployed flows changed, make sure the scheduler carries the right versions:")
	for _, flow := range flows {
		logger.Warn("  " + flow)
	}
}
