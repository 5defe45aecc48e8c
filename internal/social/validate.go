package social

import (
	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/models"
)

func checkRequest(requesterID, recipientID string) error {
	if recipientID == "" {
		return apperror.Validation("Recipient ID is required")
	}
	if requesterID == recipientID {
		return apperror.Validation("You cannot connect with yourself")
	}
	return nil
}

// respond applies an accept or reject by userID to a pending connection.
func respond(conn *models.Connection, userID string, accept bool) error {
	if conn.RecipientID != userID {
		return apperror.Forbidden("Only the recipient can respond to this request")
	}
	if conn.Status != models.ConnectionPending {
		return apperror.Validation("Connection request already handled")
	}
	if accept {
		conn.Status = models.ConnectionAccepted
	} else {
		conn.Status = models.ConnectionRejected
	}
	return nil
}
