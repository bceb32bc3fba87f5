package pipeline

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/domain"
	"deployment-manager/internal/remote"
	"deployment-manager/internal/sas"
)

var modulePathPattern = regexp.MustCompile(`(?m)^MODULE_PATH=(.*)$`)

// moduleTargetPath asks the metadata server where the module's code
// lives by scanning the session log for the path the lookup prints.
func moduleTargetPath(ctx context.Context, session sas.Session, exec remote.Executor, repo, workDir string, logger *logrus.Logger) (string, error) {
	code := fmt.Sprintf(`proc sql noprint;
  select path into :module_path trimmed
  from MDS.MODULES
  where upcase(module_code) = upcase("%s");
quit;
%%put MODULE_PATH=&module_path;
`, repo)
	logPath := path.Join(workDir, LogsDirName, "get_module_path.log")
	logContent, err := sas.SubmitChecked(ctx, session, exec, code, logPath, logger)
	if err != nil {
		return "", fmt.Errorf("look up module path: %w", err)
	}
	m := modulePathPattern.FindStringSubmatch(logContent)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", fmt.Errorf("%w: repository %s has no registered module path", domain.ErrModulePathMissing, repo)
	}
	return strings.TrimSpace(m[1]), nil
}

// UpdateModuleCode replaces the module's registered codes directory on the
// target environment with the codes tree the package carries. A package
// without a codes tree skips the step.
func UpdateModuleCode(ctx context.Context, exec remote.Executor, factory sas.Factory, repo, workDir, env string, logger *logrus.Logger) error {
	srcDir := path.Join(workDir, CodesDirName, CodesDirName)
	exists, err := exec.Exists(ctx, srcDir)
	if err != nil {
		return fmt.Errorf("check %s: %w", srcDir, err)
	}
	if !exists {
		logger.Info("Package has no codes tree, skipping module code update")
		return nil
	}

	var targetPath string
	err = sas.WithSession(ctx, factory, env, func(session sas.Session) error {
		var err error
		targetPath, err = moduleTargetPath(ctx, session, exec, repo, workDir, logger)
		return err
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"module": repo,
		"target": targetPath,
	}).Info("Updating module code")

	targetCodes := path.Join(targetPath, CodesDirName)
	if err := exec.RemoveAll(ctx, targetCodes); err != nil {
		return fmt.Errorf("remove %s: %w", targetCodes, err)
	}
	command := fmt.Sprintf("cp -r %s %s", remote.Quote(srcDir), remote.Quote(targetPath))
	if _, err := exec.Run(ctx, command, remote.RunOptions{}); err != nil {
		return fmt.Errorf("update module code: %w", err)
	}
	return nil
}
