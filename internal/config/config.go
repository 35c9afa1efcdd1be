package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"ricorrenti/internal/core"
	"ricorrenti/internal/detect"
)

const (
	SourceCSV    = "csv"
	SourceXLSX   = "xlsx"
	SourceSQLite = "sqlite"
	SourceSheets = "sheets"

	SinkCSV     = "csv"
	SinkXLSX    = "xlsx"
	SinkConsole = "console"
	SinkSQLite  = "sqlite"
	SinkAMQP    = "amqp"
	SinkSheets  = "sheets"
)

var (
	validSources = []string{SourceCSV, SourceXLSX, SourceSQLite, SourceSheets}
	validSinks   = []string{SinkCSV, SinkXLSX, SinkConsole, SinkSQLite, SinkAMQP, SinkSheets}
)

type Config struct {
	// Detection
	Tolerance      string  `yaml:"tolerance"`
	MinCount       int     `yaml:"min_count"`
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
	FuzzyMatching  bool    `yaml:"fuzzy_matching"`
	DetectWorkers  int     `yaml:"detect_workers"`

	// Ledger source
	SourceType        string   `yaml:"source_type"`
	SourcePath        string   `yaml:"source_path"`
	DateColumn        string   `yaml:"date_column"`
	DescriptionColumn string   `yaml:"description_column"`
	AmountColumn      string   `yaml:"amount_column"`
	DateLayouts       []string `yaml:"date_layouts"`
	XLSXSheet         string   `yaml:"xlsx_sheet"`

	// Report sinks
	ReportSinks      []string `yaml:"report_sinks"`
	OutputDir        string   `yaml:"output_dir"`
	SummaryFile      string   `yaml:"summary_file"`
	TransactionsFile string   `yaml:"transactions_file"`
	XLSXReportFile   string   `yaml:"xlsx_report_file"`
	PreviewRows      int      `yaml:"preview_rows"`

	// Database
	SQLiteDBPath string `yaml:"sqlite_db_path"`

	// AMQP
	AMQPURL         string `yaml:"amqp_url"`
	AMQPExchange    string `yaml:"amqp_exchange"`
	AMQPQueue       string `yaml:"amqp_queue"`
	AMQPReportQueue string `yaml:"amqp_report_queue"`

	// Google Sheets
	GoogleSpreadsheetID      string `yaml:"google_spreadsheet_id"`
	GoogleSheetName          string `yaml:"google_sheet_name"`
	GoogleReportSheetName    string `yaml:"google_report_sheet_name"`
	GoogleServiceAccountFile string `yaml:"google_service_account_file"`
	GoogleServiceAccountJSON string `yaml:"-"`

	// Worker
	AnalysisInterval time.Duration `yaml:"analysis_interval"`
	ScoreCacheSize   int           `yaml:"score_cache_size"`
	ScoreCacheTTL    time.Duration `yaml:"score_cache_ttl"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Malformed environment values seen by applyEnv, reported by Validate.
	envErrors []string
}

// Defaults returns the configuration used when neither a file nor the
// environment sets a key.
func Defaults() *Config {
	return &Config{
		Tolerance:      "1.00",
		MinCount:       detect.DefaultMinCount,
		FuzzyThreshold: detect.DefaultFuzzyThreshold,
		FuzzyMatching:  true,
		DetectWorkers:  detect.DefaultWorkers,

		SourceType:        SourceCSV,
		DateColumn:        "Post Date",
		DescriptionColumn: "Description",
		AmountColumn:      "Debit",
		DateLayouts:       []string{"2006-01-02", "01/02/2006", "1/2/2006"},

		ReportSinks:      []string{SinkCSV},
		OutputDir:        ".",
		SummaryFile:      "recurring_payments_summary.csv",
		TransactionsFile: "transactions_with_groups.csv",
		XLSXReportFile:   "recurring_payments.xlsx",
		PreviewRows:      15,

		SQLiteDBPath: "./data/ricorrenti.db",

		AMQPExchange:    "ricorrenti",
		AMQPQueue:       "analysis_requests",
		AMQPReportQueue: "recurring_reports",

		GoogleSheetName:       "Expenses",
		GoogleReportSheetName: "Recurring",

		AnalysisInterval: 24 * time.Hour,
		ScoreCacheSize:   10000,
		ScoreCacheTTL:    24 * time.Hour,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load returns the defaults overridden by environment variables.
func Load() *Config {
	cfg := Defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile layers a YAML file between the defaults and the environment. An
// empty path behaves like Load.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.envErrors = nil

	c.Tolerance = getEnv("TOLERANCE", c.Tolerance)
	c.MinCount = c.getEnvInt("MIN_COUNT", c.MinCount)
	c.FuzzyThreshold = c.getEnvFloat("FUZZY_THRESHOLD", c.FuzzyThreshold)
	c.FuzzyMatching = c.getEnvBool("FUZZY_MATCHING", c.FuzzyMatching)
	c.DetectWorkers = c.getEnvInt("DETECT_WORKERS", c.DetectWorkers)

	c.SourceType = getEnv("SOURCE_TYPE", c.SourceType)
	c.SourcePath = getEnv("SOURCE_PATH", c.SourcePath)
	c.DateColumn = getEnv("DATE_COLUMN", c.DateColumn)
	c.DescriptionColumn = getEnv("DESCRIPTION_COLUMN", c.DescriptionColumn)
	c.AmountColumn = getEnv("AMOUNT_COLUMN", c.AmountColumn)
	c.DateLayouts = getEnvList("DATE_LAYOUTS", c.DateLayouts)
	c.XLSXSheet = getEnv("XLSX_SHEET", c.XLSXSheet)

	c.ReportSinks = getEnvList("REPORT_SINKS", c.ReportSinks)
	c.OutputDir = getEnv("OUTPUT_DIR", c.OutputDir)
	c.SummaryFile = getEnv("SUMMARY_FILE", c.SummaryFile)
	c.TransactionsFile = getEnv("TRANSACTIONS_FILE", c.TransactionsFile)
	c.XLSXReportFile = getEnv("XLSX_REPORT_FILE", c.XLSXReportFile)
	c.PreviewRows = c.getEnvInt("PREVIEW_ROWS", c.PreviewRows)

	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)
	c.AMQPReportQueue = getEnv("AMQP_REPORT_QUEUE", c.AMQPReportQueue)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", c.GoogleSheetName)
	c.GoogleReportSheetName = getEnv("GOOGLE_REPORT_SHEET_NAME", c.GoogleReportSheetName)
	c.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", c.GoogleServiceAccountFile)
	if c.GoogleServiceAccountFile == "" {
		c.GoogleServiceAccountFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")
	}
	c.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.GoogleServiceAccountJSON)

	c.AnalysisInterval = c.getEnvDuration("ANALYSIS_INTERVAL", c.AnalysisInterval)
	c.ScoreCacheSize = c.getEnvInt("SCORE_CACHE_SIZE", c.ScoreCacheSize)
	c.ScoreCacheTTL = c.getEnvDuration("SCORE_CACHE_TTL", c.ScoreCacheTTL)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// Detection builds the detection parameters. Call Validate first; an
// unparseable tolerance is reported there.
func (c *Config) Detection() (detect.Config, error) {
	tol, err := parseTolerance(c.Tolerance)
	if err != nil {
		return detect.Config{}, err
	}
	return detect.Config{
		Tolerance:      tol,
		MinCount:       c.MinCount,
		FuzzyThreshold: c.FuzzyThreshold,
		FuzzyMatching:  c.FuzzyMatching,
		Workers:        c.DetectWorkers,
	}, nil
}

// HasSink reports whether name is one of the configured report sinks.
func (c *Config) HasSink(name string) bool {
	return slices.Contains(c.ReportSinks, name)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string
	errors = append(errors, c.envErrors...)

	if dc, err := c.Detection(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid tolerance '%s': %v", c.Tolerance, err))
	} else if err := dc.Validate(); err != nil {
		errors = append(errors, detectionProblems(err)...)
	}

	if !slices.Contains(validSources, c.SourceType) {
		errors = append(errors, fmt.Sprintf("invalid source type '%s': must be one of %v", c.SourceType, validSources))
	}
	switch c.SourceType {
	case SourceCSV, SourceXLSX:
		if c.SourcePath == "" {
			errors = append(errors, fmt.Sprintf("source path is required for %s source", c.SourceType))
		}
		if c.DateColumn == "" || c.DescriptionColumn == "" || c.AmountColumn == "" {
			errors = append(errors, "date, description and amount column names cannot be empty")
		}
		if len(c.DateLayouts) == 0 {
			errors = append(errors, "at least one date layout is required")
		}
	}

	if len(c.ReportSinks) == 0 {
		errors = append(errors, "at least one report sink is required")
	}
	for _, s := range c.ReportSinks {
		if !slices.Contains(validSinks, s) {
			errors = append(errors, fmt.Sprintf("invalid report sink '%s': must be one of %v", s, validSinks))
		}
	}
	if c.HasSink(SinkCSV) && (c.SummaryFile == "" || c.TransactionsFile == "") {
		errors = append(errors, "summary and transactions file names cannot be empty when using csv sink")
	}
	if c.HasSink(SinkXLSX) && c.XLSXReportFile == "" {
		errors = append(errors, "xlsx report file name cannot be empty when using xlsx sink")
	}
	if c.PreviewRows < 0 {
		errors = append(errors, fmt.Sprintf("invalid preview rows %d: must not be negative", c.PreviewRows))
	}

	if c.SourceType == SourceSQLite || c.HasSink(SinkSQLite) {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" || c.AMQPReportQueue == "" {
			errors = append(errors, "AMQP queue names cannot be empty when AMQP URL is provided")
		}
	} else if c.HasSink(SinkAMQP) {
		errors = append(errors, "AMQP URL is required when using amqp sink")
	}

	if c.SourceType == SourceSheets || c.HasSink(SinkSheets) {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets")
		}
		if c.SourceType == SourceSheets && c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets source")
		}
		if c.HasSink(SinkSheets) && c.GoogleReportSheetName == "" {
			errors = append(errors, "Google report sheet name is required when using sheets sink")
		}
	}

	if c.AnalysisInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid analysis interval %v: must be at least 1 minute", c.AnalysisInterval))
	}
	if c.ScoreCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid score cache size %d: must be at least 1", c.ScoreCacheSize))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func parseTolerance(s string) (core.Money, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil || d.IsNegative() {
		return core.Money{}, errors.New("must be a non-negative decimal amount")
	}
	return core.Money{Cents: d.Shift(2).Round(0).IntPart()}, nil
}

// detectionProblems flattens detect.Config's aggregate error into lines.
func detectionProblems(err error) []string {
	lines := strings.Split(err.Error(), "\n- ")
	if len(lines) > 1 {
		return lines[1:]
	}
	return lines
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envValue parses the environment value for key, keeping defaultValue and
// recording the problem when it is malformed.
func envValue[T any](c *Config, key string, defaultValue T, parse func(string) (T, error)) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := parse(value)
	if err != nil {
		c.envErrors = append(c.envErrors, fmt.Sprintf("invalid %s '%s': %v", key, value, err))
		return defaultValue
	}
	return v
}

func (c *Config) getEnvInt(key string, defaultValue int) int {
	return envValue(c, key, defaultValue, strconv.Atoi)
}

func (c *Config) getEnvFloat(key string, defaultValue float64) float64 {
	return envValue(c, key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

func (c *Config) getEnvBool(key string, defaultValue bool) bool {
	return envValue(c, key, defaultValue, strconv.ParseBool)
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return envValue(c, key, defaultValue, time.ParseDuration)
}
