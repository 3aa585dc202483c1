package autopost

import (
	"fmt"
	"strings"
)

// MissingEnvError is returned when required configuration is missing.
type MissingEnvError struct {
	Provider  string
	Variables []string
}

func (e MissingEnvError) Error() string {
	if len(e.Variables) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Variables, ", "))
}

// ValidationError captures component-specific validation issues.
type ValidationError struct {
	Component string
	Reason    string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Component, e.Reason)
}

// FetchError is returned when a provider is unreachable or returns malformed data.
type FetchError struct {
	Provider string
	Err      error
}

func (e FetchError) Error() string {
	return fmt.Sprintf("fetch from %s: %v", e.Provider, e.Err)
}

func (e FetchError) Unwrap() error { return e.Err }

// CompressionExhaustedError is returned when no strategy fits the byte ceiling.
type CompressionExhaustedError struct {
	Ceiling  int
	Smallest int
	Attempts int
}

func (e CompressionExhaustedError) Error() string {
	return fmt.Sprintf("compression exhausted: smallest encoding was %d bytes after %d attempts (ceiling %d bytes)", e.Smallest, e.Attempts, e.Ceiling)
}

// CaptionTooLongError means the required segments alone exceed the ceiling.
type CaptionTooLongError struct {
	Ceiling int
	Length  int
}

func (e CaptionTooLongError) Error() string {
	return fmt.Sprintf("caption too long: required segments are %d characters (ceiling %d)", e.Length, e.Ceiling)
}

// TooManyImagesError is returned for empty posts or posts over the image limit.
type TooManyImagesError struct {
	Count int
	Max   int
}

func (e TooManyImagesError) Error() string {
	if e.Count == 0 {
		return "post has no images"
	}
	return fmt.Sprintf("post has %d images (max %d)", e.Count, e.Max)
}

// ImageAltMismatchError is returned when images and alt texts differ in length.
type ImageAltMismatchError struct {
	Images int
	Alts   int
}

func (e ImageAltMismatchError) Error() string {
	return fmt.Sprintf("%d images but %d alt texts", e.Images, e.Alts)
}

// UploadError is returned when a single image upload fails. Index is zero based.
type UploadError struct {
	Target string
	Index  int
	Err    error
}

func (e UploadError) Error() string {
	return fmt.Sprintf("%s: upload image %d: %v", e.Target, e.Index+1, e.Err)
}

func (e UploadError) Unwrap() error { return e.Err }

// PostCreationError is returned when the final create-post call fails.
type PostCreationError struct {
	Target string
	Err    error
}

func (e PostCreationError) Error() string {
	return fmt.Sprintf("%s: create post: %v", e.Target, e.Err)
}

func (e PostCreationError) Unwrap() error { return e.Err }
