package services

import (
	"fmt"

	"github.com/gosimple/slug"
)

const maxSlugAttempts = 1000

// SetSlugBase is the slug a set would get before collision handling
func SetSlugBase(modelSlug, setName string) string {
	s := slug.Make(modelSlug + " " + setName)
	if s == "" {
		return "set"
	}
	return s
}

// UniqueSlug appends -2, -3, ... to base until exists reports it free
func UniqueSlug(base string, exists func(string) (bool, error)) (string, error) {
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", base, maxSlugAttempts)
}
