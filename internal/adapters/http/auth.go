package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
)

const (
	sessionName = "nearfield_session"
	accountKey  = "account_id"
)

// SessionAuthenticator answers the "is this caller authenticated" fact from
// the session cookie. Account storage itself is out of scope; the guest
// login below is the only issuer this server ships.
type SessionAuthenticator struct {
	store sessions.Store
}

func NewSessionAuthenticator(store sessions.Store) *SessionAuthenticator {
	return &SessionAuthenticator{store: store}
}

func (a *SessionAuthenticator) Authenticate(r *http.Request) (domain.AccountID, bool) {
	s, err := a.store.Get(r, sessionName)
	if err != nil {
		return "", false
	}
	v, ok := s.Values[accountKey].(string)
	if !ok || v == "" {
		return "", false
	}
	return domain.AccountID(v), true
}

// AuthRequired gates the signaling endpoint on the Authenticator fact.
func AuthRequired(auth core.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := auth.Authenticate(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.Set("account_id", string(account))
		c.Next()
	}
}

// handleLogin issues a guest account id into the session. Re-login keeps the
// existing id so reconnects stay the same account.
func handleLogin(c *gin.Context) {
	s := sessions.Default(c)
	account, _ := s.Get(accountKey).(string)
	if account == "" {
		account = uuid.NewString()
		s.Set(accountKey, account)
		if err := s.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session save failed"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"account_id": account})
}

// AllowAllDirectory is the default room-existence collaborator: every room
// id may be used, so joining an unknown room creates it.
type AllowAllDirectory struct{}

func (AllowAllDirectory) RoomExists(domain.RoomID) bool { return true }
