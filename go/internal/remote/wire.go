package remote

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/wordgame/go/internal/models"
)

// Fully qualified procedure names served over connect.
const (
	SessionServiceName     = "wordgame.v1.SessionService"
	GameServiceName        = "wordgame.v1.GameService"
	WordServiceName        = "wordgame.v1.WordService"
	AdminServiceName       = "wordgame.v1.AdminService"
	LeaderboardServiceName = "wordgame.v1.LeaderboardService"
	LoginServiceName       = "wordgame.v1.LoginService"

	JoinOrCreateGameSessionProcedure = "/" + SessionServiceName + "/JoinOrCreateGameSession"
	ListActiveGameSessionsProcedure  = "/" + SessionServiceName + "/ListActiveGameSessions"

	RequestToJoinGameProcedure = "/" + GameServiceName + "/RequestToJoinGame"
	GetWordMaskProcedure       = "/" + GameServiceName + "/GetWordMask"
	SubmitGuessProcedure       = "/" + GameServiceName + "/SubmitGuess"
	GetGameStatusProcedure     = "/" + GameServiceName + "/GetGameStatus"
	GetRoundStartTimeProcedure = "/" + GameServiceName + "/GetRoundStartTime"
	GetRoundDurationProcedure  = "/" + GameServiceName + "/GetRoundDuration"

	GetRandomWordProcedure          = "/" + WordServiceName + "/GetRandomWord"
	MarkWordAsUsedProcedure         = "/" + WordServiceName + "/MarkWordAsUsed"
	GetNewWordForNextRoundProcedure = "/" + WordServiceName + "/GetNewWordForNextRound"

	GetWaitTimeProcedure     = "/" + AdminServiceName + "/GetWaitTime"
	GetRoundTimeProcedure    = "/" + AdminServiceName + "/GetRoundTime"
	UpdateWaitTimeProcedure  = "/" + AdminServiceName + "/UpdateWaitTime"
	UpdateRoundTimeProcedure = "/" + AdminServiceName + "/UpdateRoundTime"

	GetTopPlayersProcedure = "/" + LeaderboardServiceName + "/GetTopPlayers"
	IncrementWinsProcedure = "/" + LeaderboardServiceName + "/IncrementWins"

	CreatePlayerProcedure = "/" + LoginServiceName + "/CreatePlayer"
	LoginPlayerProcedure  = "/" + LoginServiceName + "/LoginPlayer"
	LogoutPlayerProcedure = "/" + LoginServiceName + "/LogoutPlayer"
)

// ExceptionHeader carries the domain exception name on connect errors.
const ExceptionHeader = "Wordgame-Exception"

// Request and response messages.
type (
	Empty struct{}

	UsernameRequest struct {
		Username string `json:"username"`
	}
	SessionRequest struct {
		SessionID string `json:"session_id"`
	}
	SessionIDResponse struct {
		SessionID string `json:"session_id"`
	}
	ListSessionsResponse struct {
		Sessions []models.Session `json:"sessions"`
	}
	GuessRequest struct {
		Username string `json:"username"`
		Letter   string `json:"letter"`
	}
	StatusResponse struct {
		Status string `json:"status"`
	}
	RoundStartRequest struct {
		SessionID string `json:"session_id"`
		Round     int    `json:"round"`
	}
	TextResponse struct {
		Value string `json:"value"`
	}
	SecondsResponse struct {
		Seconds int `json:"seconds"`
	}
	SecondsRequest struct {
		Seconds int `json:"seconds"`
	}
	MarkWordRequest struct {
		Word      string `json:"word"`
		SessionID string `json:"session_id"`
	}
	CredentialsRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	LogoutRequest struct {
		SessionToken string `json:"session_token"`
	}
	TopPlayersResponse struct {
		Players []models.Player `json:"players"`
	}
)

// ToConnectError converts a domain exception or transport failure into a
// connect error for the wire. The exception name travels in error metadata.
func ToConnectError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return connect.NewError(connect.CodeCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	if IsTransport(err) {
		return connect.NewError(connect.CodeUnavailable, err)
	}

	name, ok := exceptionName(err)
	if !ok {
		return connect.NewError(connect.CodeInternal, err)
	}

	code := connect.CodeFailedPrecondition
	switch {
	case errors.Is(err, ErrGameNotFound), errors.Is(err, ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrAlreadyLoggedIn):
		code = connect.CodeAlreadyExists
	case errors.Is(err, ErrInvalidGuess):
		code = connect.CodeInvalidArgument
	case errors.Is(err, ErrInvalidCredentials):
		code = connect.CodeUnauthenticated
	}

	cerr := connect.NewError(code, errors.New(Reason(err)))
	cerr.Meta().Set(ExceptionHeader, name)
	return cerr
}

// fromConnectError maps an error returned by a connect call back to a domain
// exception or a TransportError.
func fromConnectError(op string, err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		if name := cerr.Meta().Get(ExceptionHeader); name != "" {
			if kind, ok := exceptionNames[name]; ok {
				return NewError(kind, cerr.Message())
			}
		}
	}
	return &TransportError{Op: op, Err: err}
}

// retryable reports whether a failed call may be attempted again.
func retryable(err error) bool {
	if IsDomain(err) {
		return false
	}
	switch connect.CodeOf(err) {
	case connect.CodeUnavailable, connect.CodeDeadlineExceeded, connect.CodeUnknown,
		connect.CodeAborted, connect.CodeResourceExhausted:
		return true
	}
	return false
}

func procedureName(procedure string) string {
	for i := len(procedure) - 1; i >= 0; i-- {
		if procedure[i] == '/' {
			return procedure[i+1:]
		}
	}
	return procedure
}
