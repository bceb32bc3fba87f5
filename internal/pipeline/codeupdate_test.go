package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deployment-manager/internal/domain"
	"deployment-manager/internal/remote"
	"deployment-manager/internal/sas"
)

type stubSession struct {
	log       string
	submitted []string
}

func (s *stubSession) Submit(_ context.Context, code string) (string, error) {
	s.submitted = append(s.submitted, code)
	return s.log, nil
}

func (s *stubSession) Close() error { return nil }

func stubFactory(session sas.Session) sas.Factory {
	return func(context.Context, string) (sas.Session, error) { return session, nil }
}

func newWorkDir(t *testing.T) string {
	t.Helper()
	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, LogsDirName), 0o755))
	return workDir
}

func TestModuleTargetPath(t *testing.T) {
	workDir := newWorkDir(t)
	exec := remote.NewLocalExecutor(pipelineTestLogger())
	session := &stubSession{log: "NOTE: query ran\nMODULE_PATH=/opt/modules/risk-models\nNOTE: done\n"}

	path, err := moduleTargetPath(context.Background(), session, exec, "risk-models", workDir, pipelineTestLogger())

	require.NoError(t, err)
	assert.Equal(t, "/opt/modules/risk-models", path)
	require.Len(t, session.submitted, 1)
	assert.Contains(t, session.submitted[0], "MDS.MODULES")
	assert.Contains(t, session.submitted[0], `upcase("risk-models")`)
	assert.FileExists(t, filepath.Join(workDir, LogsDirName, "get_module_path.log"))
}

func TestModuleTargetPathMissing(t *testing.T) {
	workDir := newWorkDir(t)
	exec := remote.NewLocalExecutor(pipelineTestLogger())
	session := &stubSession{log: "NOTE: query ran\nMODULE_PATH=\n"}

	_, err := moduleTargetPath(context.Background(), session, exec, "risk-models", workDir, pipelineTestLogger())

	assert.ErrorIs(t, err, domain.ErrModulePathMissing)
}

func TestUpdateModuleCode(t *testing.T) {
	workDir := newWorkDir(t)
	target := t.TempDir()
	srcDir := filepath.Join(workDir, CodesDirName, CodesDirName)
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "score.sas"), []byte("data out; run;"), 0o644))

	// Pre-existing target content must be replaced, not merged.
	staleDir := filepath.Join(target, CodesDirName)
	require.NoError(t, os.MkdirAll(staleDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staleDir, "stale.sas"), []byte("old"), 0o644))

	session := &stubSession{log: "MODULE_PATH=" + target + "\n"}
	exec := remote.NewLocalExecutor(pipelineTestLogger())

	err := UpdateModuleCode(context.Background(), exec, stubFactory(session), "risk-models", workDir, "UAT", pipelineTestLogger())

	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(target, CodesDirName, "score.sas"))
	assert.NoFileExists(t, filepath.Join(target, CodesDirName, "stale.sas"))
}

func TestUpdateModuleCodeSkipsWithoutCodesTree(t *testing.T) {
	workDir := newWorkDir(t)
	session := &stubSession{}
	exec := remote.NewLocalExecutor(pipelineTestLogger())

	err := UpdateModuleCode(context.Background(), exec, stubFactory(session), "risk-models", workDir, "UAT", pipelineTestLogger())

	require.NoError(t, err)
	assert.Empty(t, session.submitted)
}
