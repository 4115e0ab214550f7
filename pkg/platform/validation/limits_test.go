package validation

import (
	"strings"
	"testing"

	dErrors "warden/pkg/domain-errors"

	"github.com/stretchr/testify/suite"
)

// LimitsSuite tests the validation helper functions.
//
// Justification: These are trust-boundary validators. The invariants
// "max+1 must fail" and "max must pass" are security-critical.
type LimitsSuite struct {
	suite.Suite
}

func TestLimitsSuite(t *testing.T) {
	suite.Run(t, new(LimitsSuite))
}

func (s *LimitsSuite) TestCheckStringLength() {
	s.Run("passes when length equals max", func() {
		err := CheckStringLength("token", strings.Repeat("a", MaxTokenLength), MaxTokenLength)
		s.NoError(err)
	})

	s.Run("passes when empty", func() {
		s.NoError(CheckStringLength("token", "", MaxTokenLength))
	})

	s.Run("fails when length exceeds max", func() {
		err := CheckStringLength("token", strings.Repeat("a", MaxTokenLength+1), MaxTokenLength)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "token exceeds max length of 4096")
	})
}
