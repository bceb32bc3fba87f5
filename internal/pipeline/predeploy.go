package pipeline

import (
	"context"
	"fmt"
	"path"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/remote"
	"deployment-manager/internal/sas"
)

// RunPredeployBash runs the assembled pre-deploy shell script when one
// exists, capturing its output into the package logs.
func RunPredeployBash(ctx context.Context, exec remote.Executor, workDir string, logger *logrus.Logger) error {
	scriptPath := path.Join(workDir, PreDeployBashName)
	exists, err := exec.Exists(ctx, scriptPath)
	if err != nil {
		return fmt.Errorf("check %s: %w", PreDeployBashName, err)
	}
	if !exists {
		logger.Info("No pre-deploy shell script in this package")
		return nil
	}

	logger.Info("Running pre-deploy shell script")
	logPath := path.Join(workDir, LogsDirName, "pre_deploy_bash.log")
	command := fmt.Sprintf("./%s > %s 2>&1", PreDeployBashName, remote.Quote(logPath))
	if _, err := exec.Run(ctx, command, remote.RunOptions{Dir: workDir}); err != nil {
		return fmt.Errorf("pre-deploy shell script failed (see %s): %w", logPath, err)
	}
	return nil
}

// RunPredeploySAS submits the assembled pre-deploy SAS program when one
// exists, with the target environment bound into the session.
func RunPredeploySAS(ctx context.Context, exec remote.Executor, factory sas.Factory, workDir, env string, logger *logrus.Logger) error {
	scriptPath := path.Join(workDir, PreDeploySASName)
	exists, err := exec.Exists(ctx, scriptPath)
	if err != nil {
		return fmt.Errorf("check %s: %w", PreDeploySASName, err)
	}
	if !exists {
		logger.Info("No pre-deploy SAS program in this package")
		return nil
	}

	code, err := exec.ReadFile(ctx, scriptPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", PreDeploySASName, err)
	}

	logger.Info("Running pre-deploy SAS program")
	logPath := path.Join(workDir, LogsDirName, "pre_deploy_sas.log")
	return sas.WithSession(ctx, factory, env, func(session sas.Session) error {
		code = fmt.Sprintf("%%let environment = %s;\n%s", env, code)
		_, err := sas.SubmitChecked(ctx, session, exec, code, logPath, logger)
		return err
	})
}
