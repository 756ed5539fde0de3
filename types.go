package warden

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Notifier delivers out-of-band messages, e.g. verification codes over email.
// Implementations must honor ctx cancellation; callers bound every Send with a
// timeout so a slow transport never blocks a registration response.
type Notifier interface {
	Send(ctx context.Context, appName, recipient, message string) error
}

// Principal is the capability set shared by admins and tenant end users.
type Principal interface {
	PrincipalID() string
	PrincipalEmail() string
	PrincipalKind() PrincipalKind
	CredentialHash() string
	Attempts() int
	Verified() bool
	PendingCode() string
}

// TokenPair is the access/refresh token set minted on a successful login.
// Tokens are never persisted server side; validity is signature + expiry plus
// a live re-check of the principal on every use.
type TokenPair struct {
	Access     string
	Refresh    string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args...) }
func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args...) }

func (d defLogger) print(level, msg string, args ...any) {
	out := fmt.Sprintf("[%s] WARDEN %s", level, msg)
	for i := 0; i+1 < len(args); i += 2 {
		out += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	fmt.Println(out)
}
