// Package utils provides utility functions for the blood alert engine.
package utils

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the global logger instance.
var Logger *zap.Logger

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger builds a logger: JSON on Lambda or when LOG_FORMAT=json, colored console otherwise.
func NewLogger(level string) (*zap.Logger, error) {
	zapLevel := ParseLevel(level)

	isLambda := os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
	jsonOutput := isLambda || strings.EqualFold(os.Getenv("LOG_FORMAT"), "json")

	var config zap.Config
	if jsonOutput {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", "blood-alert-engine")), nil
}

// InitLogger initializes the global logger.
func InitLogger(level string) error {
	logger, err := NewLogger(level)
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// GetLogger returns the global logger, initializing if necessary.
func GetLogger() *zap.Logger {
	if Logger == nil {
		if err := InitLogger("info"); err != nil {
			Logger = zap.NewNop()
		}
	}
	return Logger
}

// Sync flushes any buffered log entries.
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Common field constructors
var (
	String = zap.String
	Int    = zap.Int
	Int64  = zap.Int64
	Error  = zap.Error
)
