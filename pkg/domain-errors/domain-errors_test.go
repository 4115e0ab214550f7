package domainerrors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives.
//
// Justification: These are core error primitives used at every trust boundary.
// Unit tests ensure invariants like "wrapped domain errors preserve original code"
// and "errors.Is matches by code" are maintained.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "user not found"}
		s.Equal("user not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeNotFound}
		s.Equal("not_found", err.Error())
	})
}

func (s *DomainErrorsSuite) TestUnwrap() {
	s.Run("returns wrapped error", func() {
		inner := errors.New("database connection failed")
		err := &Error{Code: CodeInternal, Message: "service error", Err: inner}
		s.Equal(inner, err.Unwrap())
	})

	s.Run("returns nil when no wrapped error", func() {
		err := &Error{Code: CodeNotFound, Message: "not found"}
		s.Nil(err.Unwrap())
	})

	s.Run("works with errors.Unwrap", func() {
		inner := errors.New("root cause")
		err := &Error{Code: CodeInternal, Err: inner}
		s.Equal(inner, errors.Unwrap(err))
	})
}

func (s *DomainErrorsSuite) TestIsMatching() {
	s.Run("matches by code only", func() {
		err1 := &Error{Code: CodeNotFound, Message: "user not found"}
		err2 := &Error{Code: CodeNotFound, Message: "session not found"}
		s.True(err1.Is(err2))
	})

	s.Run("does not match different codes", func() {
		err1 := &Error{Code: CodeNotFound}
		err2 := &Error{Code: CodeInternal}
		s.False(err1.Is(err2))
	})

	s.Run("does not match non-domain errors", func() {
		err1 := &Error{Code: CodeNotFound}
		err2 := errors.New("not found")
		s.False(err1.Is(err2))
	})

	s.Run("works with errors.Is through chain", func() {
		inner := &Error{Code: CodeNotFound, Message: "original"}
		wrapped := &Error{Code: CodeInternal, Message: "wrapped", Err: inner}
		target := &Error{Code: CodeNotFound}

		// errors.Is should find the inner error through the chain
		s.True(errors.Is(wrapped, target))
	})
}

func (s *DomainErrorsSuite) TestNew() {
	s.Run("creates error with code and message", func() {
		err := New(CodeBadRequest, "invalid input")
		s.Require().NotNil(err)

		var domainErr *Error
		s.Require().True(errors.As(err, &domainErr))
		s.Equal(CodeBadRequest, domainErr.Code)
		s.Equal("invalid input", domainErr.Message)
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves original domain code when wrapping domain error", func() {
		original := New(CodeNotFound, "user not found")
		wrapped := Wrap(original, CodeInternal, "service layer error")

		var domainErr *Error
		s.Require().True(errors.As(wrapped, &domainErr))
		// Should preserve CodeNotFound, not CodeInternal
		s.Equal(CodeNotFound, domainErr.Code)
		s.Equal("service layer error", domainErr.Message)
	})

	s.Run("uses provided code when wrapping non-domain error", func() {
		original := errors.New("database timeout")
		wrapped := Wrap(original, CodeInternal, "service error")

		var domainErr *Error
		s.Require().True(errors.As(wrapped, &domainErr))
		s.Equal(CodeInternal, domainErr.Code)
		s.Equal("service error", domainErr.Message)
	})

	s.Run("wrapped error is accessible via Unwrap", func() {
		original := errors.New("root cause")
		wrapped := Wrap(original, CodeInternal, "service error")

		s.True(errors.Is(wrapped, original))
	})
}

func (s *DomainErrorsSuite) TestHasCode() {
	s.Run("returns true for matching code", func() {
		err := New(CodeNotFound, "not found")
		s.True(HasCode(err, CodeNotFound))
	})

	s.Run("returns false for non-matching code", func() {
		err := New(CodeNotFound, "not found")
		s.False(HasCode(err, CodeInternal))
	})

	s.Run("returns false for non-domain error", func() {
		err := errors.New("regular error")
		s.False(HasCode(err, CodeNotFound))
	})

	s.Run("finds code through error chain", func() {
		inner := New(CodeNotFound, "original")
		wrapped := Wrap(inner, CodeInternal, "wrapped")
		// HasCode should find CodeNotFound since Wrap preserves original code
		s.True(HasCode(wrapped, CodeNotFound))
	})

	s.Run("returns false for nil error", func() {
		s.False(HasCode(nil, CodeNotFound))
	})
}

func (s *DomainErrorsSuite) TestRetryHints() {
	s.Run("retryable error carries retry-after", func() {
		err := NewRetryable(CodeRateLimited, "too many requests", 30*time.Second)
		s.True(HasCode(err, CodeRateLimited))
		s.Equal(30*time.Second, RetryAfterOf(err))
	})

	s.Run("negative retry-after is clamped to zero", func() {
		err := NewRetryable(CodeAccountLocked, "locked", -time.Second)
		s.Equal(time.Duration(0), RetryAfterOf(err))
	})

	s.Run("wrap keeps retry-after of inner domain error", func() {
		inner := NewRetryable(CodeAccountLocked, "locked", time.Minute)
		wrapped := Wrap(inner, CodeInternal, "login failed")
		s.True(HasCode(wrapped, CodeAccountLocked))
		s.Equal(time.Minute, RetryAfterOf(wrapped))
	})

	s.Run("foreign errors have no retry hint", func() {
		s.Equal(time.Duration(0), RetryAfterOf(errors.New("boom")))
	})

	s.Run("retryable reports transient codes only", func() {
		s.True((&Error{Code: CodeRateLimited}).Retryable())
		s.True((&Error{Code: CodeBackendUnavailable}).Retryable())
		s.False((&Error{Code: CodeInvalidCredentials}).Retryable())
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeInvalidCredentials, CodeOf(New(CodeInvalidCredentials, "bad")))
	s.Equal(CodeInternal, CodeOf(errors.New("plain")))
}
