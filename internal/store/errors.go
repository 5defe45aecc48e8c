package store

import "alumnichat/server/internal/apperror"

func errChatNotFound() error {
	return apperror.NotFound("Chat not found")
}

func errNotParticipant() error {
	return apperror.Forbidden("Not authorized to access this chat")
}

func errConcurrentUpdate() error {
	return apperror.Conflict("Chat was modified concurrently, please retry")
}
