package httpapi

import (
	"github.com/fyrsmithlabs/engrama/internal/apperr"
	"github.com/fyrsmithlabs/engrama/internal/config"
	"github.com/fyrsmithlabs/engrama/internal/metadatastore"
)

const (
	listLimitMin   = 1
	listLimitMax   = 1000
	searchLimitMin = 1
	searchLimitMax = 100

	defaultListLimit   = 100
	defaultSearchLimit = 10
)

var validMemoryTypes = map[string]bool{
	string(metadatastore.MemoryTypeFactual):    true,
	string(metadatastore.MemoryTypePreference): true,
	string(metadatastore.MemoryTypeEpisodic):   true,
	string(metadatastore.MemoryTypeSession):    true,
}

func clampLimit(requested, def, min, max int) int {
	if requested == 0 {
		return def
	}
	if requested < min {
		return min
	}
	if requested > max {
		return max
	}
	return requested
}

func validateMemoryType(s string) (metadatastore.MemoryType, error) {
	if s == "" {
		return "", nil
	}
	if !validMemoryTypes[s] {
		return "", apperr.New(apperr.KindBadRequest, "unknown memory_type: "+s)
	}
	return metadatastore.MemoryType(s), nil
}

func validateContent(content string, limits config.InputLimits) error {
	if content == "" {
		return apperr.New(apperr.KindValidation, "content is required")
	}
	if len(content) > limits.MaxContentLength {
		return apperr.New(apperr.KindValidation, "content exceeds maximum length")
	}
	return nil
}

func validateTags(tags []string, limits config.InputLimits) error {
	if len(tags) > limits.MaxTagsCount {
		return apperr.New(apperr.KindValidation, "tags exceeds maximum count")
	}
	return nil
}

func validateName(name string, limits config.InputLimits) error {
	if name == "" {
		return apperr.New(apperr.KindValidation, "name is required")
	}
	if len(name) > limits.MaxNameLength {
		return apperr.New(apperr.KindValidation, "name exceeds maximum length")
	}
	return nil
}
