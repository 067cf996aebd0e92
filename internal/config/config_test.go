package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0", cfg.ServerHost)
				assert.Equal(t, 8080, cfg.ServerPort)
				assert.Equal(t, "postgres", cfg.DBDriver)
				assert.Equal(t, 25, cfg.DBMaxOpenConnections)
				assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.True(t, cfg.KMSEnabled)
				assert.Equal(t, 10*time.Second, cfg.KMSRetryMaxElapsed)
				assert.Equal(t, time.Duration(0), cfg.KeyRotationGracePeriod)
				assert.Equal(t, 300*time.Second, cfg.DEKCacheTTL)
				assert.Equal(t, 100, cfg.MigrationBatchSize)
				assert.Equal(t, time.Hour, cfg.IntegritySweepInterval)
				assert.Equal(t, "sha256", cfg.AuditHashAlgorithm)
				assert.Equal(t, MinAuditRetentionDays, cfg.AuditRetentionDays)
				assert.Equal(t, "casevault", cfg.MetricsNamespace)
			},
		},
		{
			name: "load custom server configuration",
			envVars: map[string]string{
				"SERVER_HOST": "localhost",
				"SERVER_PORT": "9090",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "localhost", cfg.ServerHost)
				assert.Equal(t, 9090, cfg.ServerPort)
			},
		},
		{
			name: "load custom database configuration",
			envVars: map[string]string{
				"DB_DRIVER":               "mysql",
				"DB_CONNECTION_STRING":    "user:password@tcp(localhost:3306)/testdb",
				"DB_MAX_OPEN_CONNECTIONS": "50",
				"DB_MAX_IDLE_CONNECTIONS": "10",
				"DB_CONN_MAX_LIFETIME":    "10",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mysql", cfg.DBDriver)
				assert.Equal(t, "user:password@tcp(localhost:3306)/testdb", cfg.DBConnectionString)
				assert.Equal(t, 50, cfg.DBMaxOpenConnections)
				assert.Equal(t, 10, cfg.DBMaxIdleConnections)
				assert.Equal(t, 10*time.Minute, cfg.DBConnMaxLifetime)
			},
		},
		{
			name: "load custom kms configuration",
			envVars: map[string]string{
				"KMS_ENABLED":               "false",
				"KMS_KEY_ID":                "master-1",
				"KMS_KEY_URI":               "awskms://alias/casevault",
				"KMS_RETRY_MAX_ELAPSED":     "3",
				"DEK_CACHE_TTL":             "0",
				"KEY_ROTATION_GRACE_PERIOD": "24",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.KMSEnabled)
				assert.Equal(t, "master-1", cfg.KMSKeyID)
				assert.Equal(t, "awskms://alias/casevault", cfg.KMSKeyURI)
				assert.Equal(t, 3*time.Second, cfg.KMSRetryMaxElapsed)
				assert.Equal(t, time.Duration(0), cfg.DEKCacheTTL)
				assert.Equal(t, 24*time.Hour, cfg.KeyRotationGracePeriod)
			},
		},
		{
			name: "load custom audit configuration",
			envVars: map[string]string{
				"AUDIT_HASH_ALGORITHM":        "blake3",
				"AUDIT_RETENTION_DAYS":        "3650",
				"AUDIT_ARCHIVE_URL":           "file:///var/archive",
				"INTEGRITY_SWEEP_INTERVAL":    "15",
				"INTEGRITY_SWEEP_CONCURRENCY": "8",
				"ADMIN_ALERT_WEBHOOK_URL":     "https://ops.example.com/hook",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "blake3", cfg.AuditHashAlgorithm)
				assert.Equal(t, 3650, cfg.AuditRetentionDays)
				assert.Equal(t, "file:///var/archive", cfg.AuditArchiveURL)
				assert.Equal(t, 15*time.Minute, cfg.IntegritySweepInterval)
				assert.Equal(t, 8, cfg.IntegritySweepConcurrency)
				assert.Equal(t, "https://ops.example.com/hook", cfg.AdminAlertWebhookURL)
			},
		},
		{
			name: "load custom log level",
			envVars: map[string]string{
				"LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "debug", cfg.GetGinMode())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()

			for key, value := range tt.envVars {
				err := os.Setenv(key, value)
				require.NoError(t, err)
			}

			cfg := Load()

			tt.validate(t, cfg)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			KMSEnabled:                true,
			KMSKeyURI:                 "base64key://",
			AuditRetentionDays:        MinAuditRetentionDays,
			AuditHashAlgorithm:        "sha256",
			MigrationBatchSize:        100,
			IntegritySweepConcurrency: 4,
		}
	}

	t.Run("Success_ValidConfig", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("Success_KMSDisabledWithoutURI", func(t *testing.T) {
		cfg := valid()
		cfg.KMSEnabled = false
		cfg.KMSKeyURI = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Error_MissingKMSKeyURI", func(t *testing.T) {
		cfg := valid()
		cfg.KMSKeyURI = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("Error_RetentionBelowMinimum", func(t *testing.T) {
		cfg := valid()
		cfg.AuditRetentionDays = 365
		assert.ErrorContains(t, cfg.Validate(), "AUDIT_RETENTION_DAYS")
	})

	t.Run("Error_UnsupportedHashAlgorithm", func(t *testing.T) {
		cfg := valid()
		cfg.AuditHashAlgorithm = "md5"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Error_InvalidBatchSize", func(t *testing.T) {
		cfg := valid()
		cfg.MigrationBatchSize = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("Error_InvalidMigrationCollections", func(t *testing.T) {
		cfg := valid()
		cfg.MigrationCollections = "cases:id"
		assert.ErrorContains(t, cfg.Validate(), "MIGRATION_COLLECTIONS")
	})
}

func TestParseMigrationCollections(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []MigrationCollection
		errMsg   string
	}{
		{name: "empty", input: ""},
		{
			name:  "two collections",
			input: "cases:id:tenant_id:title,notes; documents:id:tenant_id:body",
			expected: []MigrationCollection{
				{Table: "cases", IDColumn: "id", TenantColumn: "tenant_id", Fields: []string{"title", "notes"}},
				{Table: "documents", IDColumn: "id", TenantColumn: "tenant_id", Fields: []string{"body"}},
			},
		},
		{
			name:     "trailing separator",
			input:    "cases:id:tenant_id:title;",
			expected: []MigrationCollection{{Table: "cases", IDColumn: "id", TenantColumn: "tenant_id", Fields: []string{"title"}}},
		},
		{name: "missing fields", input: "cases:id:tenant_id:", errMsg: "empty component"},
		{name: "wrong arity", input: "cases:id", errMsg: "want table"},
		{name: "duplicate table", input: "cases:id:tenant_id:a;cases:id:tenant_id:b", errMsg: "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collections, err := ParseMigrationCollections(tt.input)
			if tt.errMsg != "" {
				assert.ErrorContains(t, err, tt.errMsg)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, collections)
		})
	}
}
