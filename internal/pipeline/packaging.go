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
)

// fragmentPattern matches deployable fragments named
// <ISSUE-KEY>_<target>, e.g. DEPLOY-12_pre_deploy.sas.
var fragmentPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d+_(.+)$`)

// Assembler lays out the deploy package inside the work directory from
// the files the merged pull requests changed.
type Assembler struct {
	exec    remote.Executor
	workDir string
	logger  *logrus.Logger
}

func NewAssembler(exec remote.Executor, workDir string, logger *logrus.Logger) *Assembler {
	return &Assembler{exec: exec, workDir: workDir, logger: logger}
}

// Build scaffolds the package directories, pulls the code tree and extra
// files out of the merged repository, and merges deploy fragments into
// their targets.
func (a *Assembler) Build(ctx context.Context, changedFiles []string) error {
	if err := a.scaffold(ctx); err != nil {
		return err
	}
	if err := a.copyRepoCodes(ctx); err != nil {
		return err
	}
	copied, err := a.copyExtraFiles(ctx, changedFiles)
	if err != nil {
		return err
	}
	return a.mergeFragments(ctx, copied)
}

func (a *Assembler) scaffold(ctx context.Context) error {
	dirs := []string{
		path.Join(a.workDir, CodesDirName),
		path.Join(a.workDir, CodesDirName, ExtraFilesDirName),
		path.Join(a.workDir, SpksDirName),
		path.Join(a.workDir, LogsDirName),
	}
	for _, dir := range dirs {
		if err := a.exec.Mkdir(ctx, dir); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// copyRepoCodes mirrors the repository's codes subtree into the package
// codes directory when the repository has one.
func (a *Assembler) copyRepoCodes(ctx context.Context) error {
	src := path.Join(a.workDir, RepoDirName, CodesDirName)
	dest := path.Join(a.workDir, CodesDirName)
	command := fmt.Sprintf("if [ -d %s ]; then cp -r %s %s/; fi",
		remote.Quote(src), remote.Quote(src), remote.Quote(dest))
	if _, err := a.exec.Run(ctx, command, remote.RunOptions{}); err != nil {
		return fmt.Errorf("copy repository codes: %w", err)
	}
	return nil
}

// copyExtraFiles copies changed files under extra_files/ into the
// package, flattened to their base names. Returns the repository paths
// that were copied.
func (a *Assembler) copyExtraFiles(ctx context.Context, changedFiles []string) ([]string, error) {
	var selected []string
	for _, f := range changedFiles {
		if strings.HasPrefix(f, ExtraFilesDirName+"/") {
			selected = append(selected, f)
		}
	}
	sort.Strings(selected)
	if len(selected) == 0 {
		a.logger.Info("No changed extra files to copy")
		return nil, nil
	}

	destDir := path.Join(a.workDir, CodesDirName, ExtraFilesDirName)
	seen := make(map[string]string)
	for _, f := range selected {
		base := path.Base(f)
		if prev, ok := seen[base]; ok {
			a.logger.WithFields(logrus.Fields{
				"file":     f,
				"previous": prev,
			}).Warn("Extra file base name collision, later file wins")
		}
		seen[base] = f

		src := path.Join(a.workDir, RepoDirName, f)
		command := fmt.Sprintf("cp %s %s", remote.Quote(src), remote.Quote(path.Join(destDir, base)))
		if _, err := a.exec.Run(ctx, command, remote.RunOptions{}); err != nil {
			return nil, fmt.Errorf("copy extra file %s: %w", f, err)
		}
	}
	return selected, nil
}

// mergeFragments groups the copied extra files by the target their name
// encodes and concatenates each group into the target file at the work
// directory root.
func (a *Assembler) mergeFragments(ctx context.Context, copied []string) error {
	groups := make(map[string][]string)
	for _, f := range copied {
		base := path.Base(f)
		m := fragmentPattern.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		target := m[1]
		groups[target] = append(groups[target], base)
	}

	targets := make([]string, 0, len(groups))
	for t := range groups {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	for _, target := range targets {
		sources := groups[target]
		sort.Strings(sources)
		if err := a.mergeGroup(ctx, target, sources); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) mergeGroup(ctx context.Context, target string, sources []string) error {
	a.logger.WithFields(logrus.Fields{
		"target":    target,
		"fragments": len(sources),
	}).Info("Merging deploy fragments")

	var sb strings.Builder
	switch target {
	case PreDeploySASName:
		sb.WriteString(sasEnvDeclaration + "\n")
	case PreDeployBashName:
		sb.WriteString("#!/bin/bash\n")
		sb.WriteString("set -euo pipefail\n")
	}

	srcDir := path.Join(a.workDir, CodesDirName, ExtraFilesDirName)
	for _, src := range sources {
		content, err := a.exec.ReadFile(ctx, path.Join(srcDir, src))
		if err != nil {
			return fmt.Errorf("read fragment %s: %w", src, err)
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}

	targetPath := path.Join(a.workDir, target)
	if err := a.exec.WriteFile(ctx, targetPath, sb.String()); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	if target == PreDeployBashName {
		command := fmt.Sprintf("chmod +x %s", remote.Quote(targetPath))
		if _, err := a.exec.Run(ctx, command, remote.RunOptions{}); err != nil {
			return fmt.Errorf("mark %s executable: %w", target, err)
		}
	}
	return nil
}
