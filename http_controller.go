package warden

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// CredentialsRequest is the register and login payload. Hash is the
// client-side sha256 digest of the password; the plaintext never crosses the
// wire.
type CredentialsRequest struct {
	Email string `json:"email"`
	Hash  string `json:"hash"`
}

func (r CredentialsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Hash, validation.Required),
	)
}

// VerifyRequest carries the emailed verification code.
type VerifyRequest struct {
	VerificationCode string `json:"verification_code"`
}

func (r VerifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.VerificationCode,
			validation.Required,
			validation.Length(VerificationCodeLength, VerificationCodeLength),
			is.Digit,
		),
	)
}

// ChangePasswordRequest carries the old and new credential digests.
type ChangePasswordRequest struct {
	Hash    string `json:"hash"`
	NewHash string `json:"new_hash"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Hash, validation.Required),
		validation.Field(&r.NewHash, validation.Required),
	)
}

// TenantRequest is the app create/update payload. APIKeyHash exists only to
// reject clients that try to set the key material directly.
type TenantRequest struct {
	TenantInput
	APIKeyHash *string `json:"api_key_hash"`
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return BadRequest("malformed request body")
	}
	if v, ok := out.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return BadRequest(err.Error())
		}
	}
	return nil
}

func (s *Server) adminRegister(c *fiber.Ctx) error {
	req := &CredentialsRequest{}
	if err := parseBody(c, req); err != nil {
		return err
	}

	admin, err := s.registrar.RegisterAdmin(c.UserContext(), req.Email, req.Hash)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":      admin.ID,
		"message": "verification code sent",
	})
}

func (s *Server) adminVerify(c *fiber.Ctx) error {
	req := &VerifyRequest{}
	if err := parseBody(c, req); err != nil {
		return err
	}

	// A malformed id answers the same as a wrong code.
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidCredentials
	}

	if err := s.registrar.VerifyAdmin(c.UserContext(), id, req.VerificationCode); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"message": "account verified"})
}

func (s *Server) adminLogin(c *fiber.Ctx) error {
	req := &CredentialsRequest{}
	if err := parseBody(c, req); err != nil {
		return err
	}

	_, pair, err := s.auth.LoginAdmin(c.UserContext(), req.Email, req.Hash)
	if err != nil {
		return err
	}

	setTokenCookies(c, pair)
	return c.JSON(fiber.Map{"message": "logged in"})
}

func (s *Server) adminLogout(c *fiber.Ctx) error {
	clearTokenCookies(c)
	return c.JSON(fiber.Map{"message": "logged out"})
}

func (s *Server) adminProfile(c *fiber.Ctx) error {
	admin := adminFrom(c)

	tenants, err := s.tenants.List(c.UserContext(), admin.ID)
	if err != nil {
		return err
	}

	apps := make([]uuid.UUID, 0, len(tenants))
	for _, t := range tenants {
		apps = append(apps, t.ID)
	}

	return c.JSON(fiber.Map{
		"id":         admin.ID,
		"email":      admin.Email,
		"created_at": admin.CreatedAt,
		"apps":       apps,
	})
}

func (s *Server) adminChangePassword(c *fiber.Ctx) error {
	req := &ChangePasswordRequest{}
	if err := parseBody(c, req); err != nil {
		return err
	}

	admin := adminFrom(c)
	if err := s.auth.ChangeAdminPassword(c.UserContext(), admin, req.Hash, req.NewHash); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"message": "password changed"})
}

func (s *Server) adminDelete(c *fiber.Ctx) error {
	admin := adminFrom(c)

	if err := s.tenants.DeleteAdmin(c.UserContext(), admin.ID); err != nil {
		return err
	}

	clearTokenCookies(c)
	return c.JSON(fiber.Map{"message": "account deleted"})
}

func (s *Server) appList(c *fiber.Ctx) error {
	admin := adminFrom(c)

	tenants, err := s.tenants.List(c.UserContext(), admin.ID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"apps": tenants})
}

func (s *Server) appCreate(c *fiber.Ctx) error {
	req := &TenantRequest{}
	if err := parseBody(c, req); err != nil {
		return err
	}
	if req.APIKeyHash != nil {
		return BadRequest("manual setting of api key is not allowed")
	}

	admin := adminFrom(c)
	tenant, err := s.tenants.Register(c.UserContext(), admin.ID, req.TenantInput)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(tenant)
}

func (s *Server) appUpdate(c *fiber.Ctx) error {
	req := &TenantRequest{}
	if err := parseBody(c, req); err != nil {
		return err
	}
	if req.APIKeyHash != nil {
		return BadRequest("manual setting of api key is not allowed")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest("malformed app id")
	}

	admin := adminFrom(c)
	tenant, err := s.tenants.Update(c.UserContext(), admin.ID, id, req.TenantInput)
	if err != nil {
		return err
	}

	return c.JSON(tenant)
}

func (s *Server) appDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest("malformed app id")
	}

	admin := adminFrom(c)
	if err := s.tenants.Delete(c.UserContext(), admin.ID, id); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"message": "app deleted"})
}

func (s *Server) appGenerateKey(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest("malformed app id")
	}

	admin := adminFrom(c)
	key, err := s.tenants.GenerateAPIKey(c.UserContext(), admin.ID, id)
	if err != nil {
		return err
	}

	// The plaintext key appears in this response and nowhere else.
	return c.JSON(fiber.Map{"api_key": key})
}
