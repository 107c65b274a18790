package logging

import (
	"github.com/c2h5oh/datasize"
	"go.uber.org/zap/zapcore"
)

// Config is the configuration for the logging subsystem.
type Config struct {
	// Level is the logging level.
	Level zapcore.Level `yaml:"level"`
	// File is an optional path of a log file that is written in addition to
	// stderr.
	//
	// The file is rotated once it grows beyond MaxSize.
	File string `yaml:"file"`
	// MaxSize is the size of the log file that triggers rotation.
	MaxSize datasize.ByteSize `yaml:"max_size"`
	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `yaml:"max_backups"`
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      zapcore.InfoLevel,
		MaxSize:    100 * datasize.MB,
		MaxBackups: 3,
	}
}
