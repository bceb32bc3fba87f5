package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deployment-manager/internal/config"
	"deployment-manager/internal/remote"
)

func TestReadMetaObjects(t *testing.T) {
	workDir := t.TempDir()
	content := "/Shared Data/jobs/load (Job)\n\n  /Shared Data/tables/customers (Table)  \n"
	require.NoError(t, os.WriteFile(filepath.Join(workDir, MetaFileName), []byte(content), 0o644))

	objects, err := readMetaObjects(context.Background(), remote.NewLocalExecutor(pipelineTestLogger()), workDir)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"/Shared Data/jobs/load (Job)",
		"/Shared Data/tables/customers (Table)",
	}, objects)
}

func TestExportMetadataSkipsWithoutObjects(t *testing.T) {
	workDir := t.TempDir()
	f := newFakeExecutor()
	cfg := &config.Config{PathToExportPackage: "/opt/tools/ExportPackage", MetaProfile: "/home/deploy/meta.swa"}

	err := ExportMetadata(context.Background(), f, cfg, workDir, pipelineTestLogger())

	require.NoError(t, err)
	assert.Empty(t, f.commands)
}

func TestExportMetadataRunsTool(t *testing.T) {
	workDir := t.TempDir()
	f := newFakeExecutor()
	f.files[filepath.Join(workDir, MetaFileName)] = "/Shared Data/jobs/load (Job)\n"
	cfg := &config.Config{
		PathToExportPackage: "/opt/tools/ExportPackage",
		MetaProfile:         "/home/deploy/meta.swa",
		DevMetaProfile:      "/home/deploy/dev_meta.swa",
	}

	err := ExportMetadata(context.Background(), f, cfg, workDir, pipelineTestLogger())

	require.NoError(t, err)
	require.Len(t, f.commands, 1)
	command := f.commands[0]
	assert.Contains(t, command, "/opt/tools/ExportPackage")
	// Export reads from the DEV metadata tree.
	assert.Contains(t, command, "-profile /home/deploy/dev_meta.swa")
	assert.Contains(t, command, "-disableX11")
	assert.Contains(t, command, "-objects '/Shared Data/jobs/load (Job)'")
}

func TestImportMetadataRunsTool(t *testing.T) {
	workDir := t.TempDir()
	f := newFakeExecutor()
	f.files[filepath.Join(workDir, SpksDirName, MetadataSPKName)] = "spk"
	cfg := &config.Config{
		PathToImportPackage: "/opt/tools/ImportPackage",
		MetaProfile:         "/home/deploy/meta.swa",
	}

	err := ImportMetadata(context.Background(), f, cfg, workDir, pipelineTestLogger())

	require.NoError(t, err)
	require.Len(t, f.commands, 1)
	command := f.commands[0]
	assert.Contains(t, command, "/opt/tools/ImportPackage")
	assert.Contains(t, command, "-profile /home/deploy/meta.swa")
	assert.Contains(t, command, "-target /")
	assert.Contains(t, command, "--includeACL -preservePaths")
	assert.Contains(t, command, "-subprop")
}

func TestImportMetadataSkipsWithoutPackage(t *testing.T) {
	workDir := t.TempDir()
	f := newFakeExecutor()
	cfg := &config.Config{
		PathToImportPackage: "/opt/tools/ImportPackage",
		MetaProfile:         "/home/deploy/meta.swa",
	}

	err := ImportMetadata(context.Background(), f, cfg, workDir, pipelineTestLogger())

	require.NoError(t, err)
	assert.Empty(t, f.commands)
}
