package config

import (
	"fmt"
	"math"
	"strings"

	"netsniff/internal/pipeline"
)

func validateUint16(v int) error {
	if v < 0 || math.MaxUint16 < v {
		return fmt.Errorf("out of range[%d-%d]", 0, math.MaxUint16)
	}

	return nil
}

func validateNonNegative(v int) error {
	if v < 0 {
		return fmt.Errorf("must not be negative")
	}

	return nil
}

func validateProtocol(v string) error {
	_, err := pipeline.ParseFilter(strings.ToLower(v), 0)
	return err
}
