package lookup

import (
	"net/netip"
	"strings"

	apperrors "github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/validator"
)

const maxTargetLength = 2048

var targetRules = map[Kind]string{
	KindIP:     "ip",
	KindDomain: "fqdn",
	KindURL:    "http_url",
	KindHash:   "hexadecimal,len=32|len=40|len=64",
}

// InferKind guesses the kind of an indicator from its shape.
func InferKind(target string) Kind {
	target = strings.TrimSpace(target)
	if _, err := netip.ParseAddr(target); err == nil {
		return KindIP
	}
	if strings.Contains(target, "://") {
		return KindURL
	}
	if validator.ValidateVar(target, targetRules[KindHash]) == nil {
		return KindHash
	}
	return KindDomain
}

// resolveKind picks the kind to use for target against p.
func resolveKind(p Provider, requested string, target string) (Kind, error) {
	if strings.TrimSpace(requested) != "" {
		kind, ok := ParseKind(requested)
		if !ok {
			return "", apperrors.NewValidation("Unsupported lookup type: " + requested)
		}
		if !p.Supports(kind) {
			return "", apperrors.NewValidation(p.Name + " does not support " + string(kind) + " lookups")
		}
		return kind, nil
	}

	if p.DefaultKind != "" {
		return p.DefaultKind, nil
	}
	kind := InferKind(target)
	if !p.Supports(kind) {
		return "", apperrors.NewValidation(p.Name + " does not support " + string(kind) + " lookups")
	}
	return kind, nil
}

// validateTarget checks the syntax of target for kind.
func validateTarget(kind Kind, target string) error {
	if target == "" {
		return apperrors.NewValidation("Service and target required")
	}
	if len(target) > maxTargetLength {
		return apperrors.NewValidation("Target is too long")
	}
	if err := validator.ValidateVar(target, targetRules[kind]); err != nil {
		return apperrors.NewValidation("Invalid " + string(kind) + " target")
	}
	return nil
}
