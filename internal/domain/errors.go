package domain

import "errors"

var (
	// ErrTemplateNotFound is returned when a template lookup by name fails.
	// Any send operation depending on the template aborts on this error.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateExists is returned when creating a template whose name is taken.
	ErrTemplateExists = errors.New("template already exists")

	// ErrNotificationNotFound is returned when a notification lookup fails.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrNoRecipients is returned when a send is requested with an empty
	// recipient list.
	ErrNoRecipients = errors.New("no recipients provided")

	// ErrInvalidChannel is returned for a channel outside email/sms.
	ErrInvalidChannel = errors.New("invalid channel")
)
