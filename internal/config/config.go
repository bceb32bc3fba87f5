package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"deployment-manager/internal/domain"
)

// Config carries every setting a deployment run needs. Values come from
// layered JSON files in the config directory (common.json, then <env>.json,
// then an optional local.json), with the Bitbucket token overridable through
// the BITBUCKET_API_TOKEN environment variable.
type Config struct {
	RemoteGitPath       string `json:"remote_git_path"`
	PathToExportPackage string `json:"path_to_exportpackage"`
	PathToImportPackage string `json:"path_to_importpackage"`
	PathToDeployJobs    string `json:"path_to_deployjobs"`
	MetaRepo            string `json:"meta_repo"`
	AppServer           string `json:"appserver"`
	Display             string `json:"display"`
	BatchServer         string `json:"batch_server"`
	IsBitbucketServer   bool   `json:"is_bitbucket_server"`
	BitbucketWorkspace  string `json:"bitbucket_project_or_workspace"`
	BitbucketHost       string `json:"bitbucket_host"`
	BitbucketAPIToken   string `json:"bitbucket_api_token"`
	RuntimeBaseDir      string `json:"runtime_base_dir"`

	DeployUser      string `json:"deploy_user"`
	ServerMachine   string `json:"server_machine"`
	ServerPort      string `json:"server_port"`
	DeployedJobsDir string `json:"deployed_jobs_dir"`
	MetaProfile     string `json:"meta_profile"`
	DevMetaProfile  string `json:"dev_meta_profile"`
	SSHHost         string `json:"ssh_host"`
	Approvals       int    `json:"approvals"`

	RemoteSASPath string `json:"remote_sas_path"`
}

// Load reads the layered configuration for the given environment.
// Missing or empty required keys are a fatal startup error.
func Load(configDir, env string) (*Config, error) {
	// .env is a developer convenience; a missing file is not an error.
	_ = godotenv.Load()

	cfg := &Config{RemoteSASPath: "sas"}
	layers := []struct {
		name     string
		optional bool
	}{
		{"common", false},
		{strings.ToLower(env), false},
		{"local", true},
	}
	for _, layer := range layers {
		if err := applyFile(cfg, filepath.Join(configDir, layer.name+".json"), layer.optional); err != nil {
			return nil, err
		}
	}

	if token := os.Getenv("BITBUCKET_API_TOKEN"); token != "" {
		cfg.BitbucketAPIToken = token
	}
	cfg.RuntimeBaseDir = strings.TrimRight(strings.TrimSpace(cfg.RuntimeBaseDir), "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, file string, optional bool) error {
	data, err := os.ReadFile(file)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", file, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", file, err)
	}
	return nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"remote_git_path":                c.RemoteGitPath,
		"path_to_exportpackage":          c.PathToExportPackage,
		"path_to_importpackage":          c.PathToImportPackage,
		"path_to_deployjobs":             c.PathToDeployJobs,
		"meta_repo":                      c.MetaRepo,
		"appserver":                      c.AppServer,
		"batch_server":                   c.BatchServer,
		"bitbucket_project_or_workspace": c.BitbucketWorkspace,
		"bitbucket_host":                 c.BitbucketHost,
		"bitbucket_api_token":            c.BitbucketAPIToken,
		"runtime_base_dir":               c.RuntimeBaseDir,
		"deploy_user":                    c.DeployUser,
		"server_machine":                 c.ServerMachine,
		"server_port":                    c.ServerPort,
		"deployed_jobs_dir":              c.DeployedJobsDir,
		"meta_profile":                   c.MetaProfile,
		"ssh_host":                       c.SSHHost,
	}
	var missing []string
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", domain.ErrMissingConfig, strings.Join(missing, ", "))
	}
	if !strings.HasPrefix(c.RuntimeBaseDir, "/") {
		return fmt.Errorf("%w: runtime_base_dir must be an absolute path", domain.ErrMissingConfig)
	}
	return nil
}
