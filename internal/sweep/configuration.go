package sweep

import "strings"

const (
	defaultSinceExpressionConstant = "1 month ago"
	defaultUntilExpressionConstant = "now"
	defaultRepositoryRootConstant  = "."
	defaultCommandAttemptsConstant = 1
	configurationKeySeparator      = "."
	remoteBranchConfigKeyConstant  = "remote_branch"
	sinceConfigKeyConstant         = "since"
	untilConfigKeyConstant         = "until"
	strategyConfigKeyConstant      = "strategy"
	dryRunConfigKeyConstant        = "dry_run"
	projectConfigKeyConstant       = "project"
	pullRequestProjectConfigKey    = "pr_project"
	repositoryRootConfigKey        = "repository_root"
	rulesPathConfigKeyConstant     = "rules_path"
	commandAttemptsConfigKey       = "command_attempts"
	configureRemotesConfigKey      = "configure_remotes"
	forkRemoteConfigKeyConstant    = "fork_remote"
	shortBranchPrefixConfigKey     = "short_branch_prefix"
	tokenConfigKeyConstant         = "token"
	labelsConfigKeyConstant        = "labels"
)

// CommandConfiguration captures persistent settings for the sweep command.
type CommandConfiguration struct {
	RemoteBranch       string      `mapstructure:"remote_branch"`
	Since              string      `mapstructure:"since"`
	Until              string      `mapstructure:"until"`
	Strategy           string      `mapstructure:"strategy"`
	DryRun             bool        `mapstructure:"dry_run"`
	Project            string      `mapstructure:"project"`
	PullRequestProject string      `mapstructure:"pr_project"`
	RepositoryRoot     string      `mapstructure:"repository_root"`
	RulesPath          string      `mapstructure:"rules_path"`
	CommandAttempts    int         `mapstructure:"command_attempts"`
	ConfigureRemotes   bool        `mapstructure:"configure_remotes"`
	ForkRemote         string      `mapstructure:"fork_remote"`
	ShortBranchPrefix  string      `mapstructure:"short_branch_prefix"`
	Token              string      `mapstructure:"token"`
	Labels             LabelScheme `mapstructure:"labels"`
}

// DefaultCommandConfiguration returns baseline configuration values for the sweep command.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Since:             defaultSinceExpressionConstant,
		Until:             defaultUntilExpressionConstant,
		Strategy:          string(StrategyReplay),
		RepositoryRoot:    defaultRepositoryRootConstant,
		RulesPath:         defaultRulesPathConstant,
		CommandAttempts:   defaultCommandAttemptsConstant,
		ForkRemote:        defaultForkRemoteConstant,
		ShortBranchPrefix: defaultShortBranchPrefixConstant,
		Labels:            DefaultLabelScheme(),
	}
}

// DefaultConfigurationValues flattens the defaults under the provided configuration key prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	key := func(name string) string {
		trimmedPrefix := strings.TrimSpace(prefix)
		if len(trimmedPrefix) == 0 {
			return name
		}
		return trimmedPrefix + configurationKeySeparator + name
	}
	labelKey := func(name string) string {
		return key(labelsConfigKeyConstant + configurationKeySeparator + name)
	}

	return map[string]any{
		key(remoteBranchConfigKeyConstant): defaults.RemoteBranch,
		key(sinceConfigKeyConstant):        defaults.Since,
		key(untilConfigKeyConstant):        defaults.Until,
		key(strategyConfigKeyConstant):     defaults.Strategy,
		key(dryRunConfigKeyConstant):       defaults.DryRun,
		key(projectConfigKeyConstant):      defaults.Project,
		key(pullRequestProjectConfigKey):   defaults.PullRequestProject,
		key(repositoryRootConfigKey):       defaults.RepositoryRoot,
		key(rulesPathConfigKeyConstant):    defaults.RulesPath,
		key(commandAttemptsConfigKey):      defaults.CommandAttempts,
		key(configureRemotesConfigKey):     defaults.ConfigureRemotes,
		key(forkRemoteConfigKeyConstant):   defaults.ForkRemote,
		key(shortBranchPrefixConfigKey):    defaults.ShortBranchPrefix,
		key(tokenConfigKeyConstant):        defaults.Token,
		labelKey("done"):                   defaults.Labels.Done,
		labelKey("ignore"):                 defaults.Labels.Ignore,
		labelKey("swept_from_prefix"):      defaults.Labels.SweptFromPrefix,
		labelKey("exclude_prefix"):         defaults.Labels.ExcludePrefix,
		labelKey("also_target_prefix"):     defaults.Labels.AlsoTargetPrefix,
		labelKey("failed"):                 defaults.Labels.Failed,
	}
}

// TokenConfigurationKey returns the configuration key holding the forge token under prefix.
func TokenConfigurationKey(prefix string) string {
	trimmedPrefix := strings.TrimSpace(prefix)
	if len(trimmedPrefix) == 0 {
		return tokenConfigKeyConstant
	}
	return trimmedPrefix + configurationKeySeparator + tokenConfigKeyConstant
}

// Sanitize trims whitespace and restores defaults for unset values.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.RemoteBranch = strings.TrimSpace(configuration.RemoteBranch)
	sanitized.Since = fallback(strings.TrimSpace(configuration.Since), defaults.Since)
	sanitized.Until = fallback(strings.TrimSpace(configuration.Until), defaults.Until)
	sanitized.Strategy = fallback(strings.TrimSpace(configuration.Strategy), defaults.Strategy)
	sanitized.Project = strings.TrimSpace(configuration.Project)
	sanitized.PullRequestProject = strings.TrimSpace(configuration.PullRequestProject)
	sanitized.RepositoryRoot = fallback(strings.TrimSpace(configuration.RepositoryRoot), defaults.RepositoryRoot)
	sanitized.RulesPath = fallback(strings.TrimSpace(configuration.RulesPath), defaults.RulesPath)
	if sanitized.CommandAttempts < 1 {
		sanitized.CommandAttempts = defaults.CommandAttempts
	}
	sanitized.ForkRemote = fallback(strings.TrimSpace(configuration.ForkRemote), defaults.ForkRemote)
	sanitized.ShortBranchPrefix = fallback(strings.TrimSpace(configuration.ShortBranchPrefix), defaults.ShortBranchPrefix)
	sanitized.Token = strings.TrimSpace(configuration.Token)
	sanitized.Labels = configuration.Labels.Sanitize()

	return sanitized
}
