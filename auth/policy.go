package auth

import (
	"context"
	"errors"
	"fmt"
)

// ValidateOptions tunes the master-password acceptance gate applied during
// account setup and password changes. The gate lives here, with callers, so
// Analyze stays a pure function.
type ValidateOptions struct {
	// MinScore is the minimum acceptable Analyze score (0..100).
	MinScore int
	// MinZXCVBNScore is the minimum acceptable zxcvbn cross-check (0..4).
	MinZXCVBNScore int
	// EnableHIBP additionally queries the HIBP breach corpus. Network
	// failures fail open: a candidate is not rejected because the check
	// could not run.
	EnableHIBP bool
	// HIBP substitutes the breach checker; nil uses the package default.
	HIBP *HIBPChecker
}

// DefaultValidateOptions requires at least a fair rating on both scales.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{
		MinScore:       60,
		MinZXCVBNScore: 3,
	}
}

// ValidateMasterPassword applies the acceptance gate to a candidate master
// password. The returned error describes which requirement failed but never
// echoes the password.
func ValidateMasterPassword(ctx context.Context, pw string, opts ValidateOptions) error {
	if pw == "" {
		return errors.New("master password cannot be empty")
	}

	report := Analyze(pw)
	if report.Score < opts.MinScore {
		return fmt.Errorf("password strength %d below required %d (%s)", report.Score, opts.MinScore, report.Label)
	}
	if report.ZXCVBNScore < opts.MinZXCVBNScore {
		return fmt.Errorf("password too guessable (zxcvbn %d, need %d)", report.ZXCVBNScore, opts.MinZXCVBNScore)
	}

	if opts.EnableHIBP {
		checker := opts.HIBP
		if checker == nil {
			checker = defaultHIBP
		}
		result, err := checker.Check(ctx, pw)
		if err == nil && result.Found {
			return fmt.Errorf("password appeared in %d known breaches", result.Count)
		}
	}

	return nil
}
