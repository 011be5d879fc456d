package jobs

import (
	"errors"
	"fmt"

	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/transport"
)

var errHandlerPanic = errors.New("unexpected internal error")

const genericFailure = "Something went wrong while processing the task. Please try again later."

// failureReason is the text stored on the failed job and sent to its owner.
// AppErrors carry their own user-facing message; transport errors are shown
// verbatim with guidance for the causes the owner can fix.
func failureReason(err error) string {
	if appErr, ok := apperrors.AsAppError(err); ok {
		switch appErr.Code {
		case apperrors.ErrCodeInternal, apperrors.ErrCodeDatabase:
			return genericFailure
		}
		return appErr.Message
	}

	switch {
	case errors.Is(err, errHandlerPanic):
		return genericFailure
	case errors.Is(err, transport.ErrNotAMember):
		return err.Error() + ". Join the chat with the connected account, then try again."
	case errors.Is(err, transport.ErrBadReference):
		return err.Error() + ". Check the chat link, @username or numeric id."
	case errors.Is(err, transport.ErrSessionExpired):
		return err.Error() + ". Run /setup to sign in again."
	case errors.Is(err, transport.ErrRateLimited):
		return err.Error() + ". The analysis service is busy, try again in a few minutes."
	}
	return err.Error()
}

func failureText(job model.Job, reason string) string {
	return fmt.Sprintf("Task #%d (%s) failed.\n\n%s", job.ID, job.Type, reason)
}
