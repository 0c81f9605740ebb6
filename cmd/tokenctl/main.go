// Command tokenctl mints opaque session identifiers from the command line.
//
// Tokens are written to stdout one per line; structured logs go to stderr so
// the output stays pipe-safe.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/theory-cloud/tokentheory"
)

const (
	outputToken = "token"
	outputHex   = "hex"
)

type config struct {
	Count  int       `yaml:"count"`
	Output string    `yaml:"output"`
	Log    logConfig `yaml:"log"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() config {
	return config{
		Count:  1,
		Output: outputToken,
		Log: logConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tokenctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	def := defaultConfig()
	var configPath string
	fs.StringVar(&configPath, "config", "", "path to YAML config file")
	count := fs.Int("count", def.Count, "number of identifiers to mint")
	output := fs.String("output", def.Output, "output format: token or hex")
	logLevel := fs.String("log-level", def.Log.Level, "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", def.Log.Format, "log format: json or console")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := def
	if configPath != "" {
		loaded, err := loadConfig(configPath)
		if err != nil {
			fmt.Fprintf(stderr, "tokenctl: FAIL: %v\n", err)
			return 2
		}
		cfg = loaded
	}

	// Explicit flags win over the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "count":
			cfg.Count = *count
		case "output":
			cfg.Output = *output
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		}
	})

	if err := cfg.validate(); err != nil {
		fmt.Fprintf(stderr, "tokenctl: FAIL: %v\n", err)
		return 2
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "tokenctl: FAIL: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	// One ULID per invocation correlates every issuance in this batch.
	log := logger.With(zap.String("run_id", ulid.Make().String()))

	gen := tokentheory.New(tokentheory.WithIssueHook(func(rec tokentheory.IssueRecord) {
		log.Debug("identifier issued",
			zap.Uint64("bucket", rec.Bucket),
			zap.Uint16("counter", rec.Counter),
		)
	}))

	for range cfg.Count {
		line, err := mint(gen, cfg.Output)
		if err != nil {
			log.Error("generation failed", zap.Error(err))
			return 1
		}
		fmt.Fprintln(stdout, line)
	}

	log.Info("batch complete",
		zap.Int("count", cfg.Count),
		zap.String("output", cfg.Output),
	)
	return 0
}

func mint(gen *tokentheory.Generator, output string) (string, error) {
	if output == outputHex {
		id, err := gen.GenerateBytes()
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(id), nil
	}
	token, err := gen.Generate()
	if err != nil {
		return "", err
	}
	return token, nil
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	//nolint:gosec // Path is supplied by the operator running the tool.
	data, err := os.ReadFile(path)
	if err != nil {
		return config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", c.Count)
	}
	switch c.Output {
	case outputToken, outputHex:
	default:
		return fmt.Errorf("unsupported output format %q", c.Output)
	}
	return nil
}

func newLogger(cfg logConfig, sink io.Writer) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "console":
		encoder = zapcore.NewConsoleEncoder(enc)
	case "json", "":
		encoder = zapcore.NewJSONEncoder(enc)
	default:
		return nil, errors.New("unsupported log format")
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(sink), level)
	return zap.New(core), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, errors.New("unsupported log level")
	}
}
