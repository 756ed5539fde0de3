package warden

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// CookieAccessToken and CookieRefreshToken are the session cookie names.
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"

	// HeaderAPIID and HeaderAPIKey carry the tenant API credentials on every
	// end-user route.
	HeaderAPIID  = "Warden-App-API-ID"
	HeaderAPIKey = "Warden-App-API-Key"
)

const localsAdmin = "warden_admin"
const localsTenant = "warden_tenant"
const localsUser = "warden_user"

// Server is the HTTP surface. It owns no business rules; every handler decodes
// input, calls one service, and encodes the result.
type Server struct {
	app       *fiber.App
	auth      *Authenticator
	registrar *Registrar
	tenants   *TenantManager
	logger    Logger
}

func NewServer(auth *Authenticator, registrar *Registrar, tenants *TenantManager) *Server {
	s := &Server{
		auth:      auth,
		registrar: registrar,
		tenants:   tenants,
		logger:    defLogger{},
	}

	s.app = fiber.New(fiber.Config{
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})

	s.routes()

	return s
}

func (s *Server) WithLogger(logger Logger) *Server {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// App exposes the underlying fiber app, mainly for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) routes() {
	admin := s.app.Group("/admin")
	admin.Post("/register", s.adminRegister)
	admin.Post("/login", s.adminLogin)
	admin.Get("/logout", s.adminLogout)
	admin.Get("/", s.requireAdmin, s.adminProfile)
	admin.Delete("/", s.requireAdmin, s.adminDelete)
	admin.Patch("/changepassword", s.requireAdmin, s.adminChangePassword)

	admin.Get("/app", s.requireAdmin, s.appList)
	admin.Post("/app", s.requireAdmin, s.appCreate)
	admin.Patch("/app/:id", s.requireAdmin, s.appUpdate)
	admin.Delete("/app/:id", s.requireAdmin, s.appDelete)
	admin.Get("/app/:id/generate_api_key", s.requireAdmin, s.appGenerateKey)
	admin.Post("/:id/verify", s.adminVerify)

	user := s.app.Group("/user", s.requireTenant)
	user.Post("/register", s.userRegister)
	user.Post("/login", s.userLogin)
	user.Get("/logout", s.userLogout)
	user.Patch("/changepassword", s.requireUser, s.userChangePassword)
	user.Get("/", s.requireUser, s.userProfile)
	user.Patch("/", s.requireUser, s.userUpdate)
	user.Delete("/", s.requireUser, s.userDelete)
	user.Post("/:id/verify", s.userVerify)
}

// errorHandler renders every error as {"error": text_code, "message": ...}.
// Rich errors carry their own HTTP status except account_locked, which has no
// status constant and maps to 429 here.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		status := richErr.Code
		if richErr.TextCode == TextCodeAccountLocked {
			status = fiber.StatusTooManyRequests
		}
		if status == 0 {
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).JSON(fiber.Map{
			"error":   richErr.TextCode,
			"message": richErr.Message,
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error":   TextCodeBadRequest,
			"message": fiberErr.Message,
		})
	}

	s.logger.Error("unhandled error reached the HTTP layer", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   TextCodeInternalError,
		"message": "internal server error",
	})
}

// requireAdmin resolves the access token cookie to a live admin account.
func (s *Server) requireAdmin(c *fiber.Ctx) error {
	raw := c.Cookies(CookieAccessToken)
	if raw == "" {
		return ErrUnauthorizedAccess
	}

	admin, err := s.auth.CurrentAdmin(c.UserContext(), raw)
	if err != nil {
		return err
	}

	c.Locals(localsAdmin, admin)
	return c.Next()
}

// requireTenant authenticates the tenant API headers and stashes the tenant
// for the rest of the chain. Every /user route runs through here.
func (s *Server) requireTenant(c *fiber.Ctx) error {
	tenant, err := s.tenants.Authenticate(c.UserContext(),
		c.Get(HeaderAPIID), c.Get(HeaderAPIKey))
	if err != nil {
		return err
	}

	c.Locals(localsTenant, tenant)
	return c.Next()
}

// requireUser resolves the access token cookie to a live end user of the
// already authenticated tenant.
func (s *Server) requireUser(c *fiber.Ctx) error {
	tenant := tenantFrom(c)

	raw := c.Cookies(CookieAccessToken)
	if raw == "" {
		return ErrUnauthorizedAccess
	}

	user, err := s.auth.CurrentUser(c.UserContext(), tenant, raw)
	if err != nil {
		return err
	}

	c.Locals(localsUser, user)
	return c.Next()
}

func adminFrom(c *fiber.Ctx) *Admin {
	admin, _ := c.Locals(localsAdmin).(*Admin)
	return admin
}

func tenantFrom(c *fiber.Ctx) *Tenant {
	tenant, _ := c.Locals(localsTenant).(*Tenant)
	return tenant
}

func userFrom(c *fiber.Ctx) *AppUser {
	user, _ := c.Locals(localsUser).(*AppUser)
	return user
}

func setTokenCookies(c *fiber.Ctx, pair TokenPair) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieAccessToken,
		Value:    pair.Access,
		MaxAge:   int(pair.AccessTTL.Seconds()),
		HTTPOnly: true,
		SameSite: "Strict",
	})
	c.Cookie(&fiber.Cookie{
		Name:     CookieRefreshToken,
		Value:    pair.Refresh,
		MaxAge:   int(pair.RefreshTTL.Seconds()),
		HTTPOnly: true,
		SameSite: "Strict",
	})
}

func clearTokenCookies(c *fiber.Ctx) {
	for _, name := range []string{CookieAccessToken, CookieRefreshToken} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Expires:  time.Now().Add(-time.Hour),
			HTTPOnly: true,
			SameSite: "Strict",
		})
	}
}
