/*
Copyright 2025 Sello Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5080"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"SELLO_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"SELLO_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"SELLO_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"SELLO_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"SELLO_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"SELLO_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"SELLO_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"SELLO_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"SELLO_REDIS_SKIP_TLS_VERIFY"`
}

// ChainConfig points the anchoring core at its signing gateway. The service
// targets exactly one chain endpoint and one issuer wallet; key custody and
// gas strategy live inside the gateway, not here.
type ChainConfig struct {
	GatewayUrl             string `json:"gateway_url" envconfig:"SELLO_CHAIN_GATEWAY_URL"`
	ContractAddress        string `json:"contract_address" envconfig:"SELLO_CHAIN_CONTRACT_ADDRESS"`
	IssuerWallet           string `json:"issuer_wallet" envconfig:"SELLO_CHAIN_ISSUER_WALLET"`
	AuthToken              string `json:"auth_token" envconfig:"SELLO_CHAIN_AUTH_TOKEN"`
	ConfirmationTimeoutSec int    `json:"confirmation_timeout_sec" envconfig:"SELLO_CHAIN_CONFIRMATION_TIMEOUT_SEC"`
	ConfirmationPollSec    int    `json:"confirmation_poll_sec" envconfig:"SELLO_CHAIN_CONFIRMATION_POLL_SEC"`
}

// QueueConfig tunes the in-process anchoring queue. All delays are in
// seconds; attempt budgets are absolute counts.
type QueueConfig struct {
	MaxRetries           int `json:"max_retries" envconfig:"SELLO_QUEUE_MAX_RETRIES"`
	RetryDelaySec        int `json:"retry_delay_sec" envconfig:"SELLO_QUEUE_RETRY_DELAY_SEC"`
	InterJobPauseSec     int `json:"inter_job_pause_sec" envconfig:"SELLO_QUEUE_INTER_JOB_PAUSE_SEC"`
	DrainIntervalSec     int `json:"drain_interval_sec" envconfig:"SELLO_QUEUE_DRAIN_INTERVAL_SEC"`
	MaxCheckAttempts     int `json:"max_check_attempts" envconfig:"SELLO_QUEUE_MAX_CHECK_ATTEMPTS"`
	MonitorDelaySec      int `json:"monitor_delay_sec" envconfig:"SELLO_QUEUE_MONITOR_DELAY_SEC"`
	MonitorErrorDelaySec int `json:"monitor_error_delay_sec" envconfig:"SELLO_QUEUE_MONITOR_ERROR_DELAY_SEC"`
	StuckThresholdMin    int `json:"stuck_threshold_min" envconfig:"SELLO_QUEUE_STUCK_THRESHOLD_MIN"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"SELLO_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"SELLO_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"SELLO_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"SELLO_PROJECT_NAME"`
	AppUri          string           `json:"app_uri" envconfig:"SELLO_APP_URI"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"SELLO_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Chain           ChainConfig      `json:"chain"`
	Queue           QueueConfig      `json:"queue"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("sello", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called sello.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Sello Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Chain.GatewayUrl == "" {
		log.Println("Error: Chain gateway URL is empty. It's a required field.")
		return errors.New("chain gateway URL is required")
	}

	if cnf.Chain.ContractAddress == "" {
		log.Println("Error: Chain contract address is empty. It's a required field.")
		return errors.New("chain contract address is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Chain.GatewayUrl = strings.TrimSpace(cnf.Chain.GatewayUrl)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Chain.ConfirmationTimeoutSec <= 0 {
		cnf.Chain.ConfirmationTimeoutSec = 300
	}
	if cnf.Chain.ConfirmationPollSec <= 0 {
		cnf.Chain.ConfirmationPollSec = 15
	}

	if cnf.Queue.MaxRetries <= 0 {
		cnf.Queue.MaxRetries = 3
	}
	if cnf.Queue.RetryDelaySec <= 0 {
		cnf.Queue.RetryDelaySec = 5
	}
	if cnf.Queue.InterJobPauseSec <= 0 {
		cnf.Queue.InterJobPauseSec = 1
	}
	if cnf.Queue.DrainIntervalSec <= 0 {
		cnf.Queue.DrainIntervalSec = 10
	}
	if cnf.Queue.MaxCheckAttempts <= 0 {
		cnf.Queue.MaxCheckAttempts = 20
	}
	if cnf.Queue.MonitorDelaySec <= 0 {
		cnf.Queue.MonitorDelaySec = 600
	}
	if cnf.Queue.MonitorErrorDelaySec <= 0 {
		cnf.Queue.MonitorErrorDelaySec = 300
	}
	if cnf.Queue.StuckThresholdMin <= 0 {
		cnf.Queue.StuckThresholdMin = 60
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// ConfirmationTimeout returns the bounded wait applied after a submission
// before the anchor job hands the transaction off to monitoring.
func (cnf *Configuration) ConfirmationTimeout() time.Duration {
	return time.Duration(cnf.Chain.ConfirmationTimeoutSec) * time.Second
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyTestDefaults()
	ConfigStore.Store(mockConfig)
}

func (cnf *Configuration) applyTestDefaults() {
	if cnf.Redis.Dns == "" {
		cnf.Redis.Dns = "localhost:6379"
	}
	if cnf.Queue.MaxRetries <= 0 {
		cnf.Queue.MaxRetries = 3
	}
	if cnf.Queue.RetryDelaySec <= 0 {
		cnf.Queue.RetryDelaySec = 5
	}
	if cnf.Queue.MonitorDelaySec <= 0 {
		cnf.Queue.MonitorDelaySec = 600
	}
	if cnf.Queue.MonitorErrorDelaySec <= 0 {
		cnf.Queue.MonitorErrorDelaySec = 300
	}
	if cnf.Queue.MaxCheckAttempts <= 0 {
		cnf.Queue.MaxCheckAttempts = 20
	}
	if cnf.Chain.ConfirmationTimeoutSec <= 0 {
		cnf.Chain.ConfirmationTimeoutSec = 300
	}
	if cnf.Chain.ConfirmationPollSec <= 0 {
		cnf.Chain.ConfirmationPollSec = 15
	}
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
