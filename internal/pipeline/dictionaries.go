package pipeline

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/remote"
	"deployment-manager/internal/sas"
)

// mdsFilePattern matches dictionary update files named
// <ISSUE-KEY>_mds.txt.
var mdsFilePattern = regexp.MustCompile(`^([A-Z][A-Z0-9]*-\d+)_mds\.txt$`)

// RefreshDictionaries applies the dictionary update files the package
// carries: each non-empty line of a <ISSUE-KEY>_mds.txt file names one
// dictionary to refresh. DEV reads dictionaries straight from the
// repository, so the step is skipped there.
func RefreshDictionaries(ctx context.Context, exec remote.Executor, factory sas.Factory, workDir, env string, logger *logrus.Logger) error {
	if strings.EqualFold(env, "DEV") {
		logger.Info("Skipping dictionary refresh on DEV")
		return nil
	}

	extraDir := path.Join(workDir, CodesDirName, ExtraFilesDirName)
	exists, err := exec.Exists(ctx, extraDir)
	if err != nil {
		return fmt.Errorf("check %s: %w", extraDir, err)
	}
	if !exists {
		logger.Info("No extra files directory, skipping dictionary refresh")
		return nil
	}

	mdsFiles, err := listMDSFiles(ctx, exec, extraDir)
	if err != nil {
		return err
	}
	if len(mdsFiles) == 0 {
		logger.Info("No dictionary updates in this package")
		return nil
	}

	var calls []string
	for _, file := range mdsFiles {
		taskID := mdsFilePattern.FindStringSubmatch(file)[1]
		content, err := exec.ReadFile(ctx, path.Join(extraDir, file))
		if err != nil {
			logger.WithError(err).WithField("file", file).Error("Cannot read dictionary file, skipping")
			continue
		}
		for _, line := range strings.Split(content, "\n") {
			dictionary := strings.TrimSpace(line)
			if dictionary == "" {
				continue
			}
			logger.WithFields(logrus.Fields{
				"dictionary": dictionary,
				"task":       taskID,
			}).Info("Refreshing dictionary")
			calls = append(calls, fmt.Sprintf("%%usr_update_dictionary(dictionary=%s, task_id=%s, target_env=%s);",
				dictionary, taskID, env))
		}
	}
	if len(calls) == 0 {
		logger.Info("Dictionary files are empty, nothing to refresh")
		return nil
	}

	logPath := path.Join(workDir, LogsDirName, "update_dictionaries.log")
	return sas.WithSession(ctx, factory, env, func(session sas.Session) error {
		_, err := sas.SubmitChecked(ctx, session, exec, strings.Join(calls, "\n"), logPath, logger)
		return err
	})
}

func listMDSFiles(ctx context.Context, exec remote.Executor, extraDir string) ([]string, error) {
	listing, err := exec.Run(ctx, fmt.Sprintf("ls -1 %s", remote.Quote(extraDir)), remote.RunOptions{})
	if err != nil {
		return nil, fmt.Errorf("list extra files: %w", err)
	}
	var files []string
	for _, name := range strings.Split(listing.Stdout, "\n") {
		name = strings.TrimSpace(name)
		if mdsFilePattern.MatchString(name) {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}
