package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the storage account credentials shared by every pipeline binary
type Config struct {
	StorageAccounts map[string]StorageAccount `yaml:"storage_accounts"`
}

// StorageAccount represents Azure Storage account configuration. Either a
// connection string or an account name and key is required.
type StorageAccount struct {
	AccountName      string `yaml:"account_name"`
	AccessKey        string `yaml:"access_key"`
	ConnectionString string `yaml:"connection_string"`
	// ServiceURL overrides the blob endpoint, e.g. for Azurite
	ServiceURL string `yaml:"service_url"`
	// TableURL overrides the table endpoint
	TableURL string `yaml:"table_url"`
}

// SafeStorageAccount represents a storage account with masked credentials for safe display
type SafeStorageAccount struct {
	AccountName      string `yaml:"account_name"`
	AccessKey        string `yaml:"access_key"`
	ConnectionString string `yaml:"connection_string"`
}

// BlobURL returns the blob service endpoint of the account
func (a StorageAccount) BlobURL() string {
	if a.ServiceURL != "" {
		return a.ServiceURL
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", a.AccountName)
}

// TableServiceURL returns the table service endpoint of the account
func (a StorageAccount) TableServiceURL() string {
	if a.TableURL != "" {
		return a.TableURL
	}
	return fmt.Sprintf("https://%s.table.core.windows.net/", a.AccountName)
}

// getConfigPaths returns possible config file locations, in order of preference
func getConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()
	paths := []string{
		filepath.Join(homeDir, ".nsg-flowlogs-pipeline", "storage.yaml"),
		filepath.Join(homeDir, ".config", "nsg-flowlogs-pipeline", "storage.yaml"),
	}

	if configPath := os.Getenv("NSGFLOW_STORAGE_CONFIG"); configPath != "" {
		paths = append([]string{configPath}, paths...)
	}

	// Local config (less secure, but convenient for dev)
	paths = append(paths, "storage.yaml")

	return paths
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configPath ...string) (*Config, error) {
	var paths []string
	if len(configPath) > 0 && configPath[0] != "" {
		paths = []string{configPath[0]}
	} else {
		paths = getConfigPaths()
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var config Config
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse storage config %s: %w", path, err)
		}

		return &config, nil
	}

	return nil, fmt.Errorf("no valid storage configuration found in any of these locations: %s", strings.Join(paths, ", "))
}

// ListAccounts returns the configured account references, sorted
func (c *Config) ListAccounts() []string {
	names := make([]string, 0, len(c.StorageAccounts))
	for name := range c.StorageAccounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetStorageAccount returns the account registered under name
func (c *Config) GetStorageAccount(name string) (StorageAccount, error) {
	account, exists := c.StorageAccounts[name]
	if !exists {
		return StorageAccount{}, fmt.Errorf("storage account '%s' not found", name)
	}
	return account, nil
}

// GetStorageAccountSafe returns storage account configuration with masked credentials
func (c *Config) GetStorageAccountSafe(name string) (SafeStorageAccount, error) {
	storage, err := c.GetStorageAccount(name)
	if err != nil {
		return SafeStorageAccount{}, err
	}

	safe := SafeStorageAccount{AccountName: storage.AccountName}
	if storage.AccessKey != "" {
		safe.AccessKey = maskCredential(storage.AccessKey, 4)
	}
	if storage.ConnectionString != "" {
		safe.ConnectionString = maskCredential(storage.ConnectionString, 12)
	}
	return safe, nil
}

// maskCredential masks a credential keeping only the first few characters visible
func maskCredential(value string, visibleChars int) string {
	if len(value) <= visibleChars {
		return strings.Repeat("*", 8)
	}
	return value[:visibleChars] + strings.Repeat("*", len(value)-visibleChars)
}

// ValidateConfig validates the configuration structure
func (c *Config) ValidateConfig() (bool, []string) {
	var issues []string

	if len(c.StorageAccounts) == 0 {
		issues = append(issues, "no storage accounts found")
		return false, issues
	}

	for _, name := range c.ListAccounts() {
		account := c.StorageAccounts[name]
		if account.ConnectionString != "" {
			continue
		}
		if account.AccountName == "" {
			issues = append(issues, fmt.Sprintf("%s missing 'account_name' or 'connection_string'", name))
		}
		if account.AccessKey == "" {
			issues = append(issues, fmt.Sprintf("%s missing 'access_key'", name))
		}
	}

	return len(issues) == 0, issues
}
