package warden

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UserUpdateRequest carries the opaque per-user payload an app stores
// alongside the account. The service never inspects it.
type UserUpdateRequest struct {
	Data map[string]any `json:"data"`
}

func (s *Server) userRegister(c *fiber.Ctx) error {
	req := &CredentialsRequest{}
	if err := parseBody(c, req); err != nil {
		return err
	}

	tenant := tenantFrom(c)
	user, err := s.registrar.RegisterUser(c.UserContext(), tenant, req.Email, req.Hash)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":      user.ID,
		"message": "verification code sent",
	})
}

func (s *Server) userVerify(c *fiber.Ctx) error {
	req := &VerifyRequest{}
	if err := parseBody(c, req); err != nil {
		return err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidCredentials
	}

	tenant := tenantFrom(c)
	if err := s.registrar.VerifyUser(c.UserContext(), tenant, id, req.VerificationCode); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"message": "account verified"})
}

func (s *Server) userLogin(c *fiber.Ctx) error {
	req := &CredentialsRequest{}
	if err := parseBody(c, req); err != nil {
		return err
	}

	tenant := tenantFrom(c)
	_, pair, err := s.auth.LoginUser(c.UserContext(), tenant, req.Email, req.Hash)
	if err != nil {
		return err
	}

	setTokenCookies(c, pair)
	return c.JSON(fiber.Map{"message": "logged in"})
}

func (s *Server) userLogout(c *fiber.Ctx) error {
	clearTokenCookies(c)
	return c.JSON(fiber.Map{"message": "logged out"})
}

func (s *Server) userProfile(c *fiber.Ctx) error {
	return c.JSON(userFrom(c))
}

func (s *Server) userUpdate(c *fiber.Ctx) error {
	req := &UserUpdateRequest{}
	if err := parseBody(c, req); err != nil {
		return err
	}

	tenant := tenantFrom(c)
	user := userFrom(c)

	if err := s.auth.repo.UsersOf(tenant).SetData(c.UserContext(), user.ID, req.Data); err != nil {
		return internalError(s.logger, "failed to update user data", err, "user_id", user.ID)
	}

	user.Data = req.Data
	return c.JSON(user)
}

func (s *Server) userChangePassword(c *fiber.Ctx) error {
	req := &ChangePasswordRequest{}
	if err := parseBody(c, req); err != nil {
		return err
	}

	tenant := tenantFrom(c)
	user := userFrom(c)

	if err := s.auth.ChangeUserPassword(c.UserContext(), tenant, user, req.Hash, req.NewHash); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"message": "password changed"})
}

func (s *Server) userDelete(c *fiber.Ctx) error {
	tenant := tenantFrom(c)
	user := userFrom(c)

	if err := s.auth.repo.UsersOf(tenant).Delete(c.UserContext(), user.ID); err != nil {
		return internalError(s.logger, "failed to delete user", err, "user_id", user.ID)
	}

	clearTokenCookies(c)
	return c.JSON(fiber.Map{"message": "account deleted"})
}
