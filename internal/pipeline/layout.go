package pipeline

// Names inside a deploy work directory.
const (
	RepoDirName       = "repo"
	CodesDirName      = "codes"
	ExtraFilesDirName = "extra_files"
	SpksDirName       = "spks"
	LogsDirName       = "logs"

	PreDeploySASName   = "pre_deploy.sas"
	PreDeployBashName  = "pre_deploy.sh"
	MetaFileName       = "meta.txt"
	MetadataSPKName    = "metadata.spk"
	MetadataSubprop    = "metadata.subprop"
	JobsToRedeployName = "jobs_to_redeploy.txt"

	DeployDirPrefix = "deploy_"
)

const sasEnvDeclaration = "%let environment = %sysget(ENVIRONMENT);"
