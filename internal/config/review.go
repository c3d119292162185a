package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvReviewFlowPrefix    = "VIGIL_REVIEW_FLOW_PREFIX"
	EnvReviewHumanTaskUI   = "VIGIL_REVIEW_HUMAN_TASK_UI"
	EnvReviewRoleArn       = "VIGIL_REVIEW_ROLE_ARN"
	EnvReviewWorkteamName  = "VIGIL_REVIEW_WORKTEAM_NAME"
	EnvReviewFallbackArn   = "VIGIL_REVIEW_FALLBACK_WORKTEAM_ARN"
	EnvReviewCognitoPool   = "VIGIL_REVIEW_COGNITO_USER_POOL"
	EnvReviewCognitoGroup  = "VIGIL_REVIEW_COGNITO_USER_GROUP"
	EnvReviewCognitoClient = "VIGIL_REVIEW_COGNITO_CLIENT_ID"
	EnvReviewOutputBucket  = "VIGIL_REVIEW_OUTPUT_BUCKET"
	EnvReviewMaxPages      = "VIGIL_REVIEW_MAX_PAGES"
)

// CognitoConfig names the user pool group that staffs a new workteam.
type CognitoConfig struct {
	UserPool  string `toml:"user_pool"`
	UserGroup string `toml:"user_group"`
	ClientID  string `toml:"client_id"`
}

// ReviewConfig holds human review workflow provisioning parameters.
type ReviewConfig struct {
	FlowPrefix          string        `toml:"flow_prefix"`
	HumanTaskUI         string        `toml:"human_task_ui"`
	RoleArn             string        `toml:"role_arn"`
	WorkteamName        string        `toml:"workteam_name"`
	FallbackWorkteamArn string        `toml:"fallback_workteam_arn"`
	Cognito             CognitoConfig `toml:"cognito"`
	OutputBucket        string        `toml:"output_bucket"`

	// MaxPages caps workteam and review loop listings.
	MaxPages int `toml:"max_pages"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ReviewConfig) Finalize() error {
	c.loadDefaults()
	if err := c.loadEnv(); err != nil {
		return err
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ReviewConfig) Merge(overlay *ReviewConfig) {
	if overlay.FlowPrefix != "" {
		c.FlowPrefix = overlay.FlowPrefix
	}
	if overlay.HumanTaskUI != "" {
		c.HumanTaskUI = overlay.HumanTaskUI
	}
	if overlay.RoleArn != "" {
		c.RoleArn = overlay.RoleArn
	}
	if overlay.WorkteamName != "" {
		c.WorkteamName = overlay.WorkteamName
	}
	if overlay.FallbackWorkteamArn != "" {
		c.FallbackWorkteamArn = overlay.FallbackWorkteamArn
	}
	if overlay.Cognito.UserPool != "" {
		c.Cognito.UserPool = overlay.Cognito.UserPool
	}
	if overlay.Cognito.UserGroup != "" {
		c.Cognito.UserGroup = overlay.Cognito.UserGroup
	}
	if overlay.Cognito.ClientID != "" {
		c.Cognito.ClientID = overlay.Cognito.ClientID
	}
	if overlay.OutputBucket != "" {
		c.OutputBucket = overlay.OutputBucket
	}
	if overlay.MaxPages != 0 {
		c.MaxPages = overlay.MaxPages
	}
}

func (c *ReviewConfig) loadDefaults() {
	if c.FlowPrefix == "" {
		c.FlowPrefix = "vigil-"
	}
	if c.HumanTaskUI == "" {
		c.HumanTaskUI = "vigil-moderation-review"
	}
	if c.WorkteamName == "" {
		c.WorkteamName = "vigil-reviewers"
	}
	if c.MaxPages == 0 {
		c.MaxPages = 100
	}
}

func (c *ReviewConfig) loadEnv() error {
	vars := map[string]*string{
		EnvReviewFlowPrefix:    &c.FlowPrefix,
		EnvReviewHumanTaskUI:   &c.HumanTaskUI,
		EnvReviewRoleArn:       &c.RoleArn,
		EnvReviewWorkteamName:  &c.WorkteamName,
		EnvReviewFallbackArn:   &c.FallbackWorkteamArn,
		EnvReviewCognitoPool:   &c.Cognito.UserPool,
		EnvReviewCognitoGroup:  &c.Cognito.UserGroup,
		EnvReviewCognitoClient: &c.Cognito.ClientID,
		EnvReviewOutputBucket:  &c.OutputBucket,
	}
	for env, dst := range vars {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvReviewMaxPages); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvReviewMaxPages, err)
		}
		c.MaxPages = n
	}
	return nil
}

func (c *ReviewConfig) validate() error {
	if c.RoleArn == "" {
		return fmt.Errorf("role_arn required")
	}
	if c.OutputBucket == "" {
		return fmt.Errorf("output_bucket required")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max_pages must be positive")
	}
	return nil
}
