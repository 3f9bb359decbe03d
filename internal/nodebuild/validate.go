package nodebuild

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/DeusData/docgraph/internal/domain"
)

// MaxFQNLength bounds the length of a node FQN in bytes.
const MaxFQNLength = 1000

// Validation sentinels. Callers match them with errors.Is.
var (
	ErrBlankFQN           = errors.New("fqn is blank")
	ErrFQNTooLong         = errors.New("fqn too long")
	ErrInvalidFQN         = errors.New("fqn has invalid characters")
	ErrInvalidSpan        = errors.New("invalid line span")
	ErrParentNotPersisted = errors.New("parent is not persisted")
	ErrForeignParent      = errors.New("parent belongs to another application")
	ErrSelfParent         = errors.New("node cannot be its own parent")
	ErrInvalidInput       = errors.New("invalid node input")
)

// ValidationError reports which node failed validation. It unwraps to one
// of the sentinels above.
type ValidationError struct {
	FQN string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %q: %v", e.FQN, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err came from input validation rather than persistence.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var fqnPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*(\([a-zA-Z0-9_,. ]*\))?$`)

// Virtual integration nodes use URL-like FQNs that the identifier pattern rejects.
var virtualPrefixes = []string{"endpoint://", "topic://"}

// IsVirtualFQN reports whether fqn names a virtual integration node.
func IsVirtualFQN(fqn string) bool {
	for _, p := range virtualPrefixes {
		if strings.HasPrefix(fqn, p) {
			return true
		}
	}
	return false
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("nodekind", func(fl validator.FieldLevel) bool {
		return domain.NodeKind(fl.Field().String()).Valid()
	})
}

func validateInput(in *Input) error {
	if err := checkInput(in); err != nil {
		return &ValidationError{FQN: in.FQN, Err: err}
	}
	return nil
}

func checkInput(in *Input) error {
	if strings.TrimSpace(in.FQN) == "" {
		return ErrBlankFQN
	}
	if len(in.FQN) > MaxFQNLength {
		return fmt.Errorf("%w: %d > %d", ErrFQNTooLong, len(in.FQN), MaxFQNLength)
	}
	if !IsVirtualFQN(in.FQN) && !fqnPattern.MatchString(in.FQN) {
		return ErrInvalidFQN
	}
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Span != nil {
		if in.Span.Start < 0 {
			return fmt.Errorf("%w: start %d < 0", ErrInvalidSpan, in.Span.Start)
		}
		if in.Span.Start > in.Span.End {
			return fmt.Errorf("%w: start %d > end %d", ErrInvalidSpan, in.Span.Start, in.Span.End)
		}
	}
	if p := in.Parent; p != nil {
		if p.ID == 0 {
			return fmt.Errorf("%w: %s", ErrParentNotPersisted, p.FQN)
		}
		if p.AppID != in.AppID {
			return fmt.Errorf("%w: %s", ErrForeignParent, p.FQN)
		}
		if p.FQN == in.FQN {
			return ErrSelfParent
		}
	}
	return nil
}
