package gateway

import (
	"errors"

	"github.com/park285/linebox-server/internal/matchmaking"
	"github.com/park285/linebox-server/internal/persist"
	"github.com/park285/linebox-server/internal/registry"
	"github.com/park285/linebox-server/internal/session"
	"github.com/park285/linebox-server/pkg/linedto"
)

var codes = []struct {
	err  error
	code string
}{
	{registry.ErrNotFound, linedto.CodeNotFound},
	{session.ErrNotAMember, linedto.CodeNotAMember},
	{session.ErrNotYourTurn, linedto.CodeNotYourTurn},
	{session.ErrGameNotActive, linedto.CodeGameNotActive},
	{session.ErrGamePaused, linedto.CodeGamePaused},
	{session.ErrDuplicateMove, linedto.CodeDuplicateMove},
	{session.ErrIllegalMove, linedto.CodeIllegalMove},
	{matchmaking.ErrAlreadyQueued, linedto.CodeAlreadyQueued},
	{matchmaking.ErrAlreadyInSession, linedto.CodeAlreadyInSession},
	{matchmaking.ErrInvalidArgs, linedto.CodeBadRequest},
	{persist.ErrInvalidKey, linedto.CodeBadRequest},
	{persist.ErrPlayerNotFound, linedto.CodeUnknownPlayer},
}

// ErrorCode maps a domain error onto its stable wire code.
func ErrorCode(err error) string {
	var de linedto.DomainError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return linedto.CodeInternal
}
