package pipeline

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/config"
	"deployment-manager/internal/remote"
	"deployment-manager/internal/sas"
)

// readMetaObjects loads the metadata object list the package carries,
// one object path per line.
func readMetaObjects(ctx context.Context, exec remote.Executor, workDir string) ([]string, error) {
	objects, err := metaFileLines(ctx, exec, workDir)
	if err != nil {
		return nil, err
	}
	sort.Strings(objects)
	return objects, nil
}

// reportToolLog surfaces ERROR and WARNING lines from a platform tool
// log without failing the step. The tools signal failure through their
// exit code, the log is context.
func reportToolLog(ctx context.Context, exec remote.Executor, logPath string, logger *logrus.Logger) {
	content, err := exec.ReadFile(ctx, logPath)
	if err != nil {
		logger.WithError(err).WithField("log", logPath).Warn("Cannot read tool log")
		return
	}
	errLines, warnLines := sas.CheckLog(content)
	for _, line := range warnLines {
		logger.Warn(line)
	}
	for _, line := range errLines {
		logger.Error(line)
	}
}

// ExportMetadata exports the listed metadata objects from the DEV
// metadata tree into the package .spk archive. A package without a
// metadata object list skips the step.
func ExportMetadata(ctx context.Context, exec remote.Executor, cfg *config.Config, workDir string, logger *logrus.Logger) error {
	objects, err := readMetaObjects(ctx, exec, workDir)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		logger.Info("No metadata objects in this package")
		return nil
	}

	profile := cfg.DevMetaProfile
	if profile == "" {
		profile = cfg.MetaProfile
	}
	spkPath := path.Join(workDir, SpksDirName, MetadataSPKName)
	subpropPath := path.Join(workDir, SpksDirName, MetadataSubprop)
	logPath := path.Join(workDir, LogsDirName, "export_metadata.log")

	logger.WithField("objects", len(objects)).Info("Exporting metadata package")
	command := fmt.Sprintf("%s -disableX11 -profile %s -package %s -log %s -subprop %s -objects %s",
		remote.Quote(cfg.PathToExportPackage),
		remote.Quote(profile),
		remote.Quote(spkPath),
		remote.Quote(logPath),
		remote.Quote(subpropPath),
		strings.Join(quoteAll(objects), " "))
	if _, err := exec.Run(ctx, command, remote.RunOptions{Dir: workDir}); err != nil {
		reportToolLog(ctx, exec, logPath, logger)
		return fmt.Errorf("export metadata: %w", err)
	}
	reportToolLog(ctx, exec, logPath, logger)
	return nil
}

// ImportMetadata imports the exported .spk archive into the target
// environment's metadata tree. Skipped when the export produced nothing.
func ImportMetadata(ctx context.Context, exec remote.Executor, cfg *config.Config, workDir string, logger *logrus.Logger) error {
	spkPath := path.Join(workDir, SpksDirName, MetadataSPKName)
	exists, err := exec.Exists(ctx, spkPath)
	if err != nil {
		return fmt.Errorf("check %s: %w", MetadataSPKName, err)
	}
	if !exists {
		logger.Info("No metadata package to import")
		return nil
	}
	subpropPath := path.Join(workDir, SpksDirName, MetadataSubprop)
	logPath := path.Join(workDir, LogsDirName, "import_metadata.log")

	logger.Info("Importing metadata package")
	command := fmt.Sprintf("%s -disableX11 -profile %s -target / -package %s -subprop %s --includeACL -preservePaths -log %s",
		remote.Quote(cfg.PathToImportPackage),
		remote.Quote(cfg.MetaProfile),
		remote.Quote(spkPath),
		remote.Quote(subpropPath),
		remote.Quote(logPath))
	if _, err := exec.Run(ctx, command, remote.RunOptions{Dir: workDir}); err != nil {
		reportToolLog(ctx, exec, logPath, logger)
		return fmt.Errorf("import metadata: %w", err)
	}
	reportToolLog(ctx, exec, logPath, logger)
	return nil
}

func quoteAll(values []string) []string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = remote.Quote(v)
	}
	return quoted
}
