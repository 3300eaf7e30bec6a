package memserver

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/remote"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// unary registers one connect procedure on the mux.
func unary[Req, Res any](mux *http.ServeMux, procedure string, fn func(context.Context, *Req) (*Res, error)) {
	handler := connect.NewUnaryHandler(
		procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, remote.ToConnectError(err)
			}
			return connect.NewResponse(res), nil
		},
		connect.WithCodec(remote.Codec()),
	)
	mux.Handle(procedure, handler)
}

// RegisterServices mounts every service group of b on the mux.
func RegisterServices(mux *http.ServeMux, b remote.Backend) {
	registerSessionService(mux, b)
	registerGameService(mux, b)
	registerWordService(mux, b)
	registerAdminService(mux, b)
	registerLeaderboardService(mux, b)
	registerLoginService(mux, b)
}

func registerSessionService(mux *http.ServeMux, b remote.Backend) {
	unary(mux, remote.JoinOrCreateGameSessionProcedure, func(ctx context.Context, req *remote.UsernameRequest) (*remote.SessionIDResponse, error) {
		id, err := b.JoinOrCreateGameSession(ctx, req.Username)
		if err != nil {
			return nil, err
		}
		return &remote.SessionIDResponse{SessionID: id}, nil
	})
	unary(mux, remote.ListActiveGameSessionsProcedure, func(ctx context.Context, _ *remote.Empty) (*remote.ListSessionsResponse, error) {
		sessions, err := b.ListActiveGameSessions(ctx)
		if err != nil {
			return nil, err
		}
		return &remote.ListSessionsResponse{Sessions: sessions}, nil
	})
}

func registerGameService(mux *http.ServeMux, b remote.Backend) {
	unary(mux, remote.RequestToJoinGameProcedure, func(ctx context.Context, req *remote.UsernameRequest) (*remote.Empty, error) {
		return &remote.Empty{}, b.RequestToJoinGame(ctx, req.Username)
	})
	unary(mux, remote.GetWordMaskProcedure, func(ctx context.Context, req *remote.UsernameRequest) (*models.WordMask, error) {
		mask, err := b.GetWordMask(ctx, req.Username)
		if err != nil {
			return nil, err
		}
		return &mask, nil
	})
	unary(mux, remote.SubmitGuessProcedure, func(ctx context.Context, req *remote.GuessRequest) (*remote.Empty, error) {
		return &remote.Empty{}, b.SubmitGuess(ctx, req.Username, req.Letter)
	})
	unary(mux, remote.GetGameStatusProcedure, func(ctx context.Context, req *remote.UsernameRequest) (*remote.StatusResponse, error) {
		status, err := b.GetGameStatus(ctx, req.Username)
		if err != nil {
			return nil, err
		}
		return &remote.StatusResponse{Status: status}, nil
	})
	unary(mux, remote.GetRoundStartTimeProcedure, func(ctx context.Context, req *remote.RoundStartRequest) (*remote.TextResponse, error) {
		start, err := b.GetRoundStartTime(ctx, req.SessionID, req.Round)
		if err != nil {
			return nil, err
		}
		return &remote.TextResponse{Value: start}, nil
	})
	unary(mux, remote.GetRoundDurationProcedure, func(ctx context.Context, req *remote.SessionRequest) (*remote.SecondsResponse, error) {
		secs, err := b.GetRoundDuration(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		return &remote.SecondsResponse{Seconds: secs}, nil
	})
}

func registerWordService(mux *http.ServeMux, b remote.Backend) {
	unary(mux, remote.GetRandomWordProcedure, func(ctx context.Context, req *remote.SessionRequest) (*remote.TextResponse, error) {
		word, err := b.GetRandomWord(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		return &remote.TextResponse{Value: word}, nil
	})
	unary(mux, remote.MarkWordAsUsedProcedure, func(ctx context.Context, req *remote.MarkWordRequest) (*remote.Empty, error) {
		return &remote.Empty{}, b.MarkWordAsUsed(ctx, req.Word, req.SessionID)
	})
	unary(mux, remote.GetNewWordForNextRoundProcedure, func(ctx context.Context, req *remote.SessionRequest) (*remote.TextResponse, error) {
		word, err := b.GetNewWordForNextRound(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		return &remote.TextResponse{Value: word}, nil
	})
}

func registerAdminService(mux *http.ServeMux, b remote.Backend) {
	unary(mux, remote.GetWaitTimeProcedure, func(ctx context.Context, _ *remote.Empty) (*remote.SecondsResponse, error) {
		secs, err := b.GetWaitTime(ctx)
		if err != nil {
			return nil, err
		}
		return &remote.SecondsResponse{Seconds: secs}, nil
	})
	unary(mux, remote.GetRoundTimeProcedure, func(ctx context.Context, _ *remote.Empty) (*remote.SecondsResponse, error) {
		secs, err := b.GetRoundTime(ctx)
		if err != nil {
			return nil, err
		}
		return &remote.SecondsResponse{Seconds: secs}, nil
	})
	unary(mux, remote.UpdateWaitTimeProcedure, func(ctx context.Context, req *remote.SecondsRequest) (*remote.Empty, error) {
		return &remote.Empty{}, b.UpdateWaitTime(ctx, req.Seconds)
	})
	unary(mux, remote.UpdateRoundTimeProcedure, func(ctx context.Context, req *remote.SecondsRequest) (*remote.Empty, error) {
		return &remote.Empty{}, b.UpdateRoundTime(ctx, req.Seconds)
	})
}

func registerLeaderboardService(mux *http.ServeMux, b remote.Backend) {
	unary(mux, remote.GetTopPlayersProcedure, func(ctx context.Context, _ *remote.Empty) (*remote.TopPlayersResponse, error) {
		players, err := b.GetTopPlayers(ctx)
		if err != nil {
			return nil, err
		}
		return &remote.TopPlayersResponse{Players: players}, nil
	})
	unary(mux, remote.IncrementWinsProcedure, func(ctx context.Context, req *remote.UsernameRequest) (*remote.Empty, error) {
		return &remote.Empty{}, b.IncrementWins(ctx, req.Username)
	})
}

func registerLoginService(mux *http.ServeMux, b remote.Backend) {
	unary(mux, remote.CreatePlayerProcedure, func(ctx context.Context, req *remote.CredentialsRequest) (*remote.Empty, error) {
		return &remote.Empty{}, b.CreatePlayer(ctx, req.Username, req.Password)
	})
	unary(mux, remote.LoginPlayerProcedure, func(ctx context.Context, req *remote.CredentialsRequest) (*models.LoginResult, error) {
		res, err := b.LoginPlayer(ctx, req.Username, req.Password)
		if err != nil {
			return nil, err
		}
		return &res, nil
	})
	unary(mux, remote.LogoutPlayerProcedure, func(ctx context.Context, req *remote.LogoutRequest) (*remote.Empty, error) {
		return &remote.Empty{}, b.LogoutPlayer(ctx, req.SessionToken)
	})
}

// NewHandler returns the full HTTP handler: every service, a health check,
// CORS and h2c.
func NewHandler(b remote.Backend) http.Handler {
	mux := http.NewServeMux()
	RegisterServices(mux, b)
	setupHealthCheck(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{remote.ExceptionHeader},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
