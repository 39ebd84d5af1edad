// Package services defines the business logic for conversations, messages,
// and superstar profiles. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
package services

import "errors"

// Conversation-related errors.
var (
	// ErrConversationNotFound indicates that the requested conversation does
	// not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrSuperstarNotFound indicates that the referenced superstar profile
	// does not exist.
	ErrSuperstarNotFound = errors.New("superstar not found")

	// ErrNotParticipant is returned when an authenticated caller is neither
	// side of the conversation they are operating on.
	ErrNotParticipant = errors.New("not a participant of this conversation")

	// ErrInvalidStatus is returned when a status value is outside the
	// allowed set (active, ended, blocked).
	ErrInvalidStatus = errors.New("status must be one of: active, ended, blocked")
)

// Message-related errors.
var (
	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotSender is returned when a caller tries to delete a message they
	// did not author.
	ErrNotSender = errors.New("only the sender may delete a message")

	// ErrInvalidMessageType is returned when a message type is outside the
	// allowed set (text, image, video, file).
	ErrInvalidMessageType = errors.New("message_type must be one of: text, image, video, file")

	// ErrEmptyBody is returned when a message carries neither a body nor an
	// attachment.
	ErrEmptyBody = errors.New("body is required when no file is attached")

	// ErrBodyTooLong is returned when a message body exceeds the configured
	// maximum length.
	ErrBodyTooLong = errors.New("body too long")

	// ErrAttachmentStore wraps blob-store failures during sends. The message
	// row is never created when attachment persistence fails.
	ErrAttachmentStore = errors.New("attachment storage failed")

	// ErrAttachmentDelete wraps blob-store failures during deletes. The
	// message row is retained when the backing blob cannot be removed.
	ErrAttachmentDelete = errors.New("attachment deletion failed")
)
