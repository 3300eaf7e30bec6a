package remote

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/mcdev12/wordgame/go/internal/scheduler"
	"github.com/rs/zerolog/log"
)

// ClientConfig holds the transport policy for remote calls.
type ClientConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
	RetryCount     int
	RetryBackoff   scheduler.Backoff
	Clock          clockwork.Clock
}

// DefaultClientConfig returns the standard transport policy: 5s connect,
// 10s per call, 3 retries.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:        baseURL,
		ConnectTimeout: 5 * time.Second,
		CallTimeout:    10 * time.Second,
		RetryCount:     3,
		RetryBackoff:   scheduler.Backoff{Base: 200 * time.Millisecond, Factor: 1.5, Max: 2 * time.Second},
		Clock:          clockwork.NewRealClock(),
	}
}

// Client is the connect transport adapter. It implements every service
// group interface.
type Client struct {
	cfg ClientConfig

	joinOrCreate   *connect.Client[UsernameRequest, SessionIDResponse]
	listSessions   *connect.Client[Empty, ListSessionsResponse]
	requestToJoin  *connect.Client[UsernameRequest, Empty]
	getWordMask    *connect.Client[UsernameRequest, models.WordMask]
	submitGuess    *connect.Client[GuessRequest, Empty]
	getGameStatus  *connect.Client[UsernameRequest, StatusResponse]
	getRoundStart  *connect.Client[RoundStartRequest, TextResponse]
	getRoundLength *connect.Client[SessionRequest, SecondsResponse]
	getRandomWord  *connect.Client[SessionRequest, TextResponse]
	markWordUsed   *connect.Client[MarkWordRequest, Empty]
	getNextWord    *connect.Client[SessionRequest, TextResponse]
	getWaitTime    *connect.Client[Empty, SecondsResponse]
	getRoundTime   *connect.Client[Empty, SecondsResponse]
	setWaitTime    *connect.Client[SecondsRequest, Empty]
	setRoundTime   *connect.Client[SecondsRequest, Empty]
	topPlayers     *connect.Client[Empty, TopPlayersResponse]
	incrementWins  *connect.Client[UsernameRequest, Empty]
	createPlayer   *connect.Client[CredentialsRequest, Empty]
	loginPlayer    *connect.Client[CredentialsRequest, models.LoginResult]
	logoutPlayer   *connect.Client[LogoutRequest, Empty]
}

var _ Backend = (*Client)(nil)

// NewClient creates a client with an HTTP client honouring the configured
// connect and call timeouts.
func NewClient(cfg ClientConfig) *Client {
	httpClient := &http.Client{
		Timeout: cfg.CallTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			TLSHandshakeTimeout: cfg.ConnectTimeout,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return NewClientWithHTTP(httpClient, cfg)
}

// NewClientWithHTTP creates a client over an existing HTTP client.
func NewClientWithHTTP(httpClient connect.HTTPClient, cfg ClientConfig) *Client {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	opts := []connect.ClientOption{connect.WithCodec(Codec())}

	return &Client{
		cfg: cfg,

		joinOrCreate:   connect.NewClient[UsernameRequest, SessionIDResponse](httpClient, base+JoinOrCreateGameSessionProcedure, opts...),
		listSessions:   connect.NewClient[Empty, ListSessionsResponse](httpClient, base+ListActiveGameSessionsProcedure, opts...),
		requestToJoin:  connect.NewClient[UsernameRequest, Empty](httpClient, base+RequestToJoinGameProcedure, opts...),
		getWordMask:    connect.NewClient[UsernameRequest, models.WordMask](httpClient, base+GetWordMaskProcedure, opts...),
		submitGuess:    connect.NewClient[GuessRequest, Empty](httpClient, base+SubmitGuessProcedure, opts...),
		getGameStatus:  connect.NewClient[UsernameRequest, StatusResponse](httpClient, base+GetGameStatusProcedure, opts...),
		getRoundStart:  connect.NewClient[RoundStartRequest, TextResponse](httpClient, base+GetRoundStartTimeProcedure, opts...),
		getRoundLength: connect.NewClient[SessionRequest, SecondsResponse](httpClient, base+GetRoundDurationProcedure, opts...),
		getRandomWord:  connect.NewClient[SessionRequest, TextResponse](httpClient, base+GetRandomWordProcedure, opts...),
		markWordUsed:   connect.NewClient[MarkWordRequest, Empty](httpClient, base+MarkWordAsUsedProcedure, opts...),
		getNextWord:    connect.NewClient[SessionRequest, TextResponse](httpClient, base+GetNewWordForNextRoundProcedure, opts...),
		getWaitTime:    connect.NewClient[Empty, SecondsResponse](httpClient, base+GetWaitTimeProcedure, opts...),
		getRoundTime:   connect.NewClient[Empty, SecondsResponse](httpClient, base+GetRoundTimeProcedure, opts...),
		setWaitTime:    connect.NewClient[SecondsRequest, Empty](httpClient, base+UpdateWaitTimeProcedure, opts...),
		setRoundTime:   connect.NewClient[SecondsRequest, Empty](httpClient, base+UpdateRoundTimeProcedure, opts...),
		topPlayers:     connect.NewClient[Empty, TopPlayersResponse](httpClient, base+GetTopPlayersProcedure, opts...),
		incrementWins:  connect.NewClient[UsernameRequest, Empty](httpClient, base+IncrementWinsProcedure, opts...),
		createPlayer:   connect.NewClient[CredentialsRequest, Empty](httpClient, base+CreatePlayerProcedure, opts...),
		loginPlayer:    connect.NewClient[CredentialsRequest, models.LoginResult](httpClient, base+LoginPlayerProcedure, opts...),
		logoutPlayer:   connect.NewClient[LogoutRequest, Empty](httpClient, base+LogoutPlayerProcedure, opts...),
	}
}

// invoke performs one unary call under the transport policy. Transport
// failures are retried with backoff; domain exceptions return immediately.
func invoke[Req, Res any](ctx context.Context, c *Client, cl *connect.Client[Req, Res], procedure string, req *Req) (*Res, error) {
	op := procedureName(procedure)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBackoff.Delay(attempt - 1)
			log.Debug().
				Str("op", op).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying remote call")
			select {
			case <-ctx.Done():
				return nil, &TransportError{Op: op, Err: ctx.Err()}
			case <-c.cfg.Clock.After(delay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		res, err := cl.CallUnary(callCtx, connect.NewRequest(req))
		cancel()
		if err == nil {
			return res.Msg, nil
		}

		mapped := fromConnectError(op, err)
		if IsDomain(mapped) || !retryable(err) || ctx.Err() != nil {
			return nil, mapped
		}
		lastErr = mapped
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt+1).Msg("remote call failed")
	}
	return nil, lastErr
}

func (c *Client) JoinOrCreateGameSession(ctx context.Context, username string) (string, error) {
	res, err := invoke(ctx, c, c.joinOrCreate, JoinOrCreateGameSessionProcedure, &UsernameRequest{Username: username})
	if err != nil {
		return "", err
	}
	return res.SessionID, nil
}

func (c *Client) ListActiveGameSessions(ctx context.Context) ([]models.Session, error) {
	res, err := invoke(ctx, c, c.listSessions, ListActiveGameSessionsProcedure, &Empty{})
	if err != nil {
		return nil, err
	}
	return res.Sessions, nil
}

func (c *Client) RequestToJoinGame(ctx context.Context, username string) error {
	_, err := invoke(ctx, c, c.requestToJoin, RequestToJoinGameProcedure, &UsernameRequest{Username: username})
	return err
}

func (c *Client) GetWordMask(ctx context.Context, username string) (models.WordMask, error) {
	res, err := invoke(ctx, c, c.getWordMask, GetWordMaskProcedure, &UsernameRequest{Username: username})
	if err != nil {
		return models.WordMask{}, err
	}
	return *res, nil
}

func (c *Client) SubmitGuess(ctx context.Context, username, letter string) error {
	_, err := invoke(ctx, c, c.submitGuess, SubmitGuessProcedure, &GuessRequest{Username: username, Letter: letter})
	return err
}

func (c *Client) GetGameStatus(ctx context.Context, username string) (string, error) {
	res, err := invoke(ctx, c, c.getGameStatus, GetGameStatusProcedure, &UsernameRequest{Username: username})
	if err != nil {
		return "", err
	}
	return res.Status, nil
}

func (c *Client) GetRoundStartTime(ctx context.Context, sessionID string, round int) (string, error) {
	res, err := invoke(ctx, c, c.getRoundStart, GetRoundStartTimeProcedure, &RoundStartRequest{SessionID: sessionID, Round: round})
	if err != nil {
		return "", err
	}
	return res.Value, nil
}

func (c *Client) GetRoundDuration(ctx context.Context, sessionID string) (int, error) {
	res, err := invoke(ctx, c, c.getRoundLength, GetRoundDurationProcedure, &SessionRequest{SessionID: sessionID})
	if err != nil {
		return 0, err
	}
	return res.Seconds, nil
}

func (c *Client) GetRandomWord(ctx context.Context, sessionID string) (string, error) {
	res, err := invoke(ctx, c, c.getRandomWord, GetRandomWordProcedure, &SessionRequest{SessionID: sessionID})
	if err != nil {
		return "", err
	}
	return res.Value, nil
}

func (c *Client) MarkWordAsUsed(ctx context.Context, word, sessionID string) error {
	_, err := invoke(ctx, c, c.markWordUsed, MarkWordAsUsedProcedure, &MarkWordRequest{Word: word, SessionID: sessionID})
	return err
}

func (c *Client) GetNewWordForNextRound(ctx context.Context, sessionID string) (string, error) {
	res, err := invoke(ctx, c, c.getNextWord, GetNewWordForNextRoundProcedure, &SessionRequest{SessionID: sessionID})
	if err != nil {
		return "", err
	}
	return res.Value, nil
}

func (c *Client) GetWaitTime(ctx context.Context) (int, error) {
	res, err := invoke(ctx, c, c.getWaitTime, GetWaitTimeProcedure, &Empty{})
	if err != nil {
		return 0, err
	}
	return res.Seconds, nil
}

func (c *Client) GetRoundTime(ctx context.Context) (int, error) {
	res, err := invoke(ctx, c, c.getRoundTime, GetRoundTimeProcedure, &Empty{})
	if err != nil {
		return 0, err
	}
	return res.Seconds, nil
}

func (c *Client) UpdateWaitTime(ctx context.Context, seconds int) error {
	_, err := invoke(ctx, c, c.setWaitTime, UpdateWaitTimeProcedure, &SecondsRequest{Seconds: seconds})
	return err
}

func (c *Client) UpdateRoundTime(ctx context.Context, seconds int) error {
	_, err := invoke(ctx, c, c.setRoundTime, UpdateRoundTimeProcedure, &SecondsRequest{Seconds: seconds})
	return err
}

func (c *Client) GetTopPlayers(ctx context.Context) ([]models.Player, error) {
	res, err := invoke(ctx, c, c.topPlayers, GetTopPlayersProcedure, &Empty{})
	if err != nil {
		return nil, err
	}
	return res.Players, nil
}

func (c *Client) IncrementWins(ctx context.Context, username string) error {
	_, err := invoke(ctx, c, c.incrementWins, IncrementWinsProcedure, &UsernameRequest{Username: username})
	return err
}

func (c *Client) CreatePlayer(ctx context.Context, username, password string) error {
	_, err := invoke(ctx, c, c.createPlayer, CreatePlayerProcedure, &CredentialsRequest{Username: username, Password: password})
	return err
}

func (c *Client) LoginPlayer(ctx context.Context, username, password string) (models.LoginResult, error) {
	res, err := invoke(ctx, c, c.loginPlayer, LoginPlayerProcedure, &CredentialsRequest{Username: username, Password: password})
	if err != nil {
		return models.LoginResult{}, err
	}
	return *res, nil
}

func (c *Client) LogoutPlayer(ctx context.Context, sessionToken string) error {
	_, err := invoke(ctx, c, c.logoutPlayer, LogoutPlayerProcedure, &LogoutRequest{SessionToken: sessionToken})
	return err
}
