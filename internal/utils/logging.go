package utils

import "go.uber.org/zap"

// NewLogger builds a production logger, or a human-readable development one
// when env is "development".
func NewLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
